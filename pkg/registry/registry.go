// Package registry implements the persistent archive registry recording
// what was produced, where, and for which inputs.
package registry

import (
	"database/sql"
	"encoding/json"
	"os"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/legeapp/openarc/pkg/common"
)

// Archive is one row of the archives table.
type Archive struct {
	ID                  int64
	ArchivePath         string
	ArchiveSize         int64
	CreationDate        int64
	OriginalLocation    string
	DestinationLocation string
	Description         string
	FileCount           uint32
}

// FileMapping is one row of the archive_files table.
type FileMapping struct {
	ID           int64
	ArchiveID    int64
	FilePath     string
	OriginalPath string
	FileSize     int64
	ArchivedAt   int64
}

// Registry is the single-writer sqlite-backed store for archives and
// archive_files. Readers may open the same file read-only at any time.
type Registry struct {
	db   *sql.DB
	path string
}

// Open opens (creating if necessary) the registry database at dbPath.
func Open(dbPath string) (*Registry, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, common.Wrap(common.KindRegistryWriteFailed, dbPath, err)
	}
	db.SetMaxOpenConns(1)

	r := &Registry{db: db, path: dbPath}
	if err := r.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Registry) initSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS archives (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	archive_path TEXT NOT NULL,
	archive_size INTEGER NOT NULL,
	creation_date INTEGER NOT NULL,
	original_location TEXT NOT NULL,
	destination_location TEXT,
	description TEXT,
	file_count INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_archives_path ON archives (archive_path);
CREATE INDEX IF NOT EXISTS idx_archives_creation_date ON archives (creation_date);

CREATE TABLE IF NOT EXISTS archive_files (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	archive_id INTEGER NOT NULL,
	file_path TEXT NOT NULL,
	original_path TEXT NOT NULL,
	file_size INTEGER NOT NULL,
	archived_at INTEGER NOT NULL,
	FOREIGN KEY (archive_id) REFERENCES archives(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_archive_files_archive_id ON archive_files (archive_id);
CREATE INDEX IF NOT EXISTS idx_archive_files_path ON archive_files (file_path);
`
	if _, err := r.db.Exec(schema); err != nil {
		return common.Wrap(common.KindRegistryWriteFailed, r.path, err)
	}
	return nil
}

// Close releases the underlying database handle.
func (r *Registry) Close() error {
	return r.db.Close()
}

// RecordArchive inserts a new archive row and returns its assigned id.
func (r *Registry) RecordArchive(a Archive) (int64, error) {
	res, err := r.db.Exec(`INSERT INTO archives
		(archive_path, archive_size, creation_date, original_location, destination_location, description, file_count)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ArchivePath, a.ArchiveSize, time.Now().Unix(), a.OriginalLocation,
		nullable(a.DestinationLocation), nullable(a.Description), a.FileCount)
	if err != nil {
		return 0, common.Wrap(common.KindRegistryWriteFailed, a.ArchivePath, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, common.Wrap(common.KindRegistryWriteFailed, a.ArchivePath, err)
	}
	return id, nil
}

// RecordArchiveFiles inserts every mapping for archiveID in one transaction.
// The spec requires this to run immediately after the archive artefact is
// sealed; partial registry state is never left behind.
func (r *Registry) RecordArchiveFiles(archiveID int64, files []FileMapping) error {
	tx, err := r.db.Begin()
	if err != nil {
		return common.Wrap(common.KindRegistryWriteFailed, "", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO archive_files
		(archive_id, file_path, original_path, file_size, archived_at)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return common.Wrap(common.KindRegistryWriteFailed, "", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for _, f := range files {
		if _, err := stmt.Exec(archiveID, f.FilePath, f.OriginalPath, f.FileSize, now); err != nil {
			return common.Wrap(common.KindRegistryWriteFailed, f.FilePath, err)
		}
	}
	return tx.Commit()
}

// GetArchiveByPath looks up an archive row by its exact archive_path.
func (r *Registry) GetArchiveByPath(archivePath string) (*Archive, error) {
	row := r.db.QueryRow(`SELECT id, archive_path, archive_size, creation_date, original_location,
		destination_location, description, file_count FROM archives WHERE archive_path = ?`, archivePath)
	a, err := scanArchive(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, common.Wrap(common.KindRegistryWriteFailed, archivePath, err)
	}
	return a, nil
}

func scanArchive(row *sql.Row) (*Archive, error) {
	var a Archive
	var dest, desc sql.NullString
	if err := row.Scan(&a.ID, &a.ArchivePath, &a.ArchiveSize, &a.CreationDate,
		&a.OriginalLocation, &dest, &desc, &a.FileCount); err != nil {
		return nil, err
	}
	a.DestinationLocation = dest.String
	a.Description = desc.String
	return &a, nil
}

// GetArchiveFiles returns every archive_files row for archiveID, most
// recently archived first.
func (r *Registry) GetArchiveFiles(archiveID int64) ([]FileMapping, error) {
	rows, err := r.db.Query(`SELECT id, archive_id, file_path, original_path, file_size, archived_at
		FROM archive_files WHERE archive_id = ? ORDER BY archived_at DESC`, archiveID)
	if err != nil {
		return nil, common.Wrap(common.KindRegistryWriteFailed, "", err)
	}
	defer rows.Close()

	var out []FileMapping
	for rows.Next() {
		var m FileMapping
		if err := rows.Scan(&m.ID, &m.ArchiveID, &m.FilePath, &m.OriginalPath, &m.FileSize, &m.ArchivedAt); err != nil {
			return nil, common.Wrap(common.KindRegistryWriteFailed, "", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// GetAllArchives returns every archive row, most recently created first.
func (r *Registry) GetAllArchives() ([]Archive, error) {
	rows, err := r.db.Query(`SELECT id, archive_path, archive_size, creation_date, original_location,
		destination_location, description, file_count FROM archives ORDER BY creation_date DESC`)
	if err != nil {
		return nil, common.Wrap(common.KindRegistryWriteFailed, "", err)
	}
	defer rows.Close()

	var out []Archive
	for rows.Next() {
		var a Archive
		var dest, desc sql.NullString
		if err := rows.Scan(&a.ID, &a.ArchivePath, &a.ArchiveSize, &a.CreationDate,
			&a.OriginalLocation, &dest, &desc, &a.FileCount); err != nil {
			return nil, common.Wrap(common.KindRegistryWriteFailed, "", err)
		}
		a.DestinationLocation = dest.String
		a.Description = desc.String
		out = append(out, a)
	}
	return out, rows.Err()
}

// UpdateDestination sets destination_location for the archive at archivePath.
func (r *Registry) UpdateDestination(archivePath, destination string) error {
	_, err := r.db.Exec(`UPDATE archives SET destination_location = ? WHERE archive_path = ?`, destination, archivePath)
	if err != nil {
		return common.Wrap(common.KindRegistryWriteFailed, archivePath, err)
	}
	return nil
}

// ExportJSON writes every archive row as pretty-printed JSON to outputPath.
func (r *Registry) ExportJSON(outputPath string) error {
	archives, err := r.GetAllArchives()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(archives, "", "  ")
	if err != nil {
		return common.Wrap(common.KindRegistryWriteFailed, outputPath, err)
	}
	if err := os.WriteFile(outputPath, data, 0o644); err != nil {
		return common.Wrap(common.KindRegistryWriteFailed, outputPath, err)
	}
	return nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
