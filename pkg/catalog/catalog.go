// Package catalog implements the persistent incremental-backup catalog
// mapping a normalised input path to the (size, mtime, sha256) identity it
// had the last time it was archived.
package catalog

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/gofrs/flock"
	_ "github.com/mattn/go-sqlite3"

	"github.com/legeapp/openarc/pkg/common"
)

// Entry is one row of backed_up_files.
type Entry struct {
	Path       string
	Size       int64
	MtimeSecs  int64
	SHA256     string
	BackedUpAt int64
	ArchiveID  string
}

// Disposition is should_skip_file's three-way result.
type Disposition int

const (
	NotPresent Disposition = iota
	Skip
	ReBackup
)

// Catalog is a single-writer sqlite-backed store. Callers must not share a
// Catalog across goroutines without external synchronisation; the advisory
// flock only guards cross-process concurrent writers to the same db file.
type Catalog struct {
	db   *sql.DB
	lock *flock.Flock
	path string
}

// Open opens (creating if necessary) the catalog database at dbPath.
func Open(dbPath string) (*Catalog, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL")
	if err != nil {
		return nil, common.Wrap(common.KindCatalogWriteFailed, dbPath, err)
	}
	db.SetMaxOpenConns(1)

	c := &Catalog{db: db, lock: flock.New(dbPath + ".lock"), path: dbPath}
	if err := c.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

func (c *Catalog) initSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS backed_up_files (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	path TEXT UNIQUE NOT NULL,
	size INTEGER NOT NULL,
	mtime_secs INTEGER NOT NULL,
	sha256 TEXT,
	backed_up_at INTEGER NOT NULL,
	archive_id TEXT
);
CREATE INDEX IF NOT EXISTS idx_path ON backed_up_files (path);
CREATE INDEX IF NOT EXISTS idx_backed_up_at ON backed_up_files (backed_up_at);
`
	if _, err := c.db.Exec(schema); err != nil {
		return common.Wrap(common.KindCatalogWriteFailed, c.path, err)
	}
	return nil
}

// Close releases the underlying database handle.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// NormalizePath normalises a path for catalog identity: lowercase and
// forward-slashed on case-insensitive hosts (Windows), unchanged elsewhere.
func NormalizePath(path string) string {
	if runtime.GOOS == "windows" {
		return strings.ToLower(strings.ReplaceAll(path, `\`, "/"))
	}
	return path
}

// Record upserts a single entry, keyed on path, setting BackedUpAt to now.
func (c *Catalog) Record(e Entry) error {
	return c.RecordBatch([]Entry{e})
}

// RecordBatch upserts many entries in one transaction.
func (c *Catalog) RecordBatch(entries []Entry) error {
	if err := c.lock.Lock(); err != nil {
		return common.Wrap(common.KindCatalogWriteFailed, c.path, err)
	}
	defer c.lock.Unlock()

	tx, err := c.db.Begin()
	if err != nil {
		return common.Wrap(common.KindCatalogWriteFailed, c.path, err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	stmt, err := tx.Prepare(`INSERT INTO backed_up_files (path, size, mtime_secs, sha256, backed_up_at, archive_id)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET size=excluded.size, mtime_secs=excluded.mtime_secs,
			sha256=excluded.sha256, backed_up_at=excluded.backed_up_at, archive_id=excluded.archive_id`)
	if err != nil {
		return common.Wrap(common.KindCatalogWriteFailed, c.path, err)
	}
	defer stmt.Close()

	for _, e := range entries {
		path := NormalizePath(e.Path)
		if _, err := stmt.Exec(path, e.Size, e.MtimeSecs, nullable(e.SHA256), now, nullable(e.ArchiveID)); err != nil {
			return common.Wrap(common.KindCatalogWriteFailed, path, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return common.Wrap(common.KindCatalogWriteFailed, c.path, err)
	}
	return nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// ShouldSkip reads the current size+mtime of filePath from disk and compares
// against the catalog row for its normalised path. Any I/O error on the
// input reports Skip, so an unreadable file is never re-attempted run after
// run; the caller is expected to log a warning.
func (c *Catalog) ShouldSkip(filePath string) (Disposition, error) {
	info, err := os.Stat(filePath)
	if err != nil {
		return Skip, nil
	}
	path := NormalizePath(filePath)

	var size, mtime int64
	row := c.db.QueryRow(`SELECT size, mtime_secs FROM backed_up_files WHERE path = ?`, path)
	switch err := row.Scan(&size, &mtime); err {
	case sql.ErrNoRows:
		return NotPresent, nil
	case nil:
		// fallthrough below
	default:
		return Skip, nil
	}

	curMtime := info.ModTime().Unix()
	if size == info.Size() && mtime == curMtime {
		return Skip, nil
	}
	return ReBackup, nil
}

// Filter splits paths into (skip, backup) sets, preserving relative order
// within each set.
func (c *Catalog) Filter(paths []string) (skip, backup []string, err error) {
	for _, p := range paths {
		d, e := c.ShouldSkip(p)
		if e != nil {
			return nil, nil, e
		}
		switch d {
		case Skip:
			skip = append(skip, p)
		default:
			backup = append(backup, p)
		}
	}
	return skip, backup, nil
}

// ListAll returns every row, most recently backed up first.
func (c *Catalog) ListAll() ([]Entry, error) {
	return c.query(`SELECT path, size, mtime_secs, sha256, backed_up_at, archive_id
		FROM backed_up_files ORDER BY backed_up_at DESC`)
}

// ListSince returns rows backed up at or after ts (unix seconds).
func (c *Catalog) ListSince(ts int64) ([]Entry, error) {
	rows, err := c.db.Query(`SELECT path, size, mtime_secs, sha256, backed_up_at, archive_id
		FROM backed_up_files WHERE backed_up_at >= ? ORDER BY backed_up_at DESC`, ts)
	if err != nil {
		return nil, common.Wrap(common.KindCatalogWriteFailed, c.path, err)
	}
	return scanEntries(rows)
}

func (c *Catalog) query(q string) ([]Entry, error) {
	rows, err := c.db.Query(q)
	if err != nil {
		return nil, common.Wrap(common.KindCatalogWriteFailed, c.path, err)
	}
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var e Entry
		var sha, archiveID sql.NullString
		if err := rows.Scan(&e.Path, &e.Size, &e.MtimeSecs, &sha, &e.BackedUpAt, &archiveID); err != nil {
			return nil, common.Wrap(common.KindCatalogWriteFailed, "", err)
		}
		e.SHA256 = sha.String
		e.ArchiveID = archiveID.String
		out = append(out, e)
	}
	return out, rows.Err()
}

// Remove deletes the row for the given (un-normalised) path.
func (c *Catalog) Remove(path string) error {
	_, err := c.db.Exec(`DELETE FROM backed_up_files WHERE path = ?`, NormalizePath(path))
	if err != nil {
		return common.Wrap(common.KindCatalogWriteFailed, path, err)
	}
	return nil
}

// ClearAll truncates the catalog.
func (c *Catalog) ClearAll() error {
	_, err := c.db.Exec(`DELETE FROM backed_up_files`)
	if err != nil {
		return common.Wrap(common.KindCatalogWriteFailed, c.path, err)
	}
	return nil
}

// ExportJSON writes every row as pretty-printed JSON to outputPath.
func (c *Catalog) ExportJSON(outputPath string) error {
	entries, err := c.ListAll()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return common.Wrap(common.KindCatalogWriteFailed, outputPath, err)
	}
	if err := os.WriteFile(outputPath, data, 0o644); err != nil {
		return common.Wrap(common.KindCatalogWriteFailed, outputPath, err)
	}
	return nil
}

// PathFor returns the conventional sibling catalog path for an archive
// output path: "<output>.catalog.sqlite". Readers should locate the
// catalog by this convention rather than depending on its filename.
func PathFor(outputPath string) string {
	ext := filepath.Ext(outputPath)
	base := strings.TrimSuffix(outputPath, ext)
	base = strings.TrimSuffix(base, ".tar")
	return fmt.Sprintf("%s.catalog.sqlite", base)
}
