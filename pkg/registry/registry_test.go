package registry

import (
	"path/filepath"
	"testing"
)

func openTestRegistry(t *testing.T) *Registry {
	t.Helper()
	dir := t.TempDir()
	r, err := Open(filepath.Join(dir, "test.catalog.sqlite"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func TestRecordArchiveAndFiles(t *testing.T) {
	r := openTestRegistry(t)

	id, err := r.RecordArchive(Archive{
		ArchivePath:      "/out/archive.tar.zst",
		ArchiveSize:      1024,
		OriginalLocation: "/home/user/photos",
		Description:      "test archive",
		FileCount:        2,
	})
	if err != nil {
		t.Fatalf("RecordArchive: %v", err)
	}

	mappings := []FileMapping{
		{ArchiveID: id, FilePath: "media/a_0.bpg", OriginalPath: "/home/user/photos/a.jpg", FileSize: 100},
		{ArchiveID: id, FilePath: "media/b_1.bpg", OriginalPath: "/home/user/photos/b.jpg", FileSize: 200},
	}
	if err := r.RecordArchiveFiles(id, mappings); err != nil {
		t.Fatalf("RecordArchiveFiles: %v", err)
	}

	files, err := r.GetArchiveFiles(id)
	if err != nil {
		t.Fatalf("GetArchiveFiles: %v", err)
	}
	if len(files) != len(mappings) {
		t.Fatalf("got %d files, want %d", len(files), len(mappings))
	}
}

// TestFileCountMatchesArchiveFiles checks that file_count equals the number
// of associated archive_files rows at commit time.
func TestFileCountMatchesArchiveFiles(t *testing.T) {
	r := openTestRegistry(t)

	mappings := []FileMapping{
		{FilePath: "media/a.bpg", OriginalPath: "/a.jpg", FileSize: 10},
		{FilePath: "media/b.bpg", OriginalPath: "/b.jpg", FileSize: 20},
		{FilePath: "misc.arc", OriginalPath: "/c.txt", FileSize: 30},
	}
	id, err := r.RecordArchive(Archive{
		ArchivePath:      "/out/archive2.tar.zst",
		ArchiveSize:      2048,
		OriginalLocation: "/inputs",
		FileCount:        uint32(len(mappings)),
	})
	if err != nil {
		t.Fatalf("RecordArchive: %v", err)
	}
	for i := range mappings {
		mappings[i].ArchiveID = id
	}
	if err := r.RecordArchiveFiles(id, mappings); err != nil {
		t.Fatalf("RecordArchiveFiles: %v", err)
	}

	archive, err := r.GetArchiveByPath("/out/archive2.tar.zst")
	if err != nil {
		t.Fatalf("GetArchiveByPath: %v", err)
	}
	if archive == nil {
		t.Fatal("expected archive row to exist")
	}
	files, err := r.GetArchiveFiles(id)
	if err != nil {
		t.Fatalf("GetArchiveFiles: %v", err)
	}
	if int(archive.FileCount) != len(files) {
		t.Fatalf("file_count=%d does not match archive_files rows=%d", archive.FileCount, len(files))
	}
}

func TestGetArchiveByPathMissingReturnsNil(t *testing.T) {
	r := openTestRegistry(t)
	a, err := r.GetArchiveByPath("/does/not/exist.tar.zst")
	if err != nil {
		t.Fatalf("GetArchiveByPath: %v", err)
	}
	if a != nil {
		t.Fatalf("expected nil for missing archive, got %+v", a)
	}
}

func TestGetAllArchivesAndUpdateDestination(t *testing.T) {
	r := openTestRegistry(t)

	if _, err := r.RecordArchive(Archive{ArchivePath: "/out/1.tar.zst", OriginalLocation: "/a"}); err != nil {
		t.Fatalf("RecordArchive 1: %v", err)
	}
	if _, err := r.RecordArchive(Archive{ArchivePath: "/out/2.tar.zst", OriginalLocation: "/b"}); err != nil {
		t.Fatalf("RecordArchive 2: %v", err)
	}

	all, err := r.GetAllArchives()
	if err != nil {
		t.Fatalf("GetAllArchives: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 archives, got %d", len(all))
	}

	if err := r.UpdateDestination("/out/1.tar.zst", "/backup/1.tar.zst"); err != nil {
		t.Fatalf("UpdateDestination: %v", err)
	}
	updated, err := r.GetArchiveByPath("/out/1.tar.zst")
	if err != nil {
		t.Fatalf("GetArchiveByPath: %v", err)
	}
	if updated.DestinationLocation != "/backup/1.tar.zst" {
		t.Fatalf("expected updated destination, got %q", updated.DestinationLocation)
	}
}

func TestExportJSON(t *testing.T) {
	r := openTestRegistry(t)
	if _, err := r.RecordArchive(Archive{ArchivePath: "/out/x.tar.zst", OriginalLocation: "/x"}); err != nil {
		t.Fatalf("RecordArchive: %v", err)
	}

	out := filepath.Join(t.TempDir(), "export.json")
	if err := r.ExportJSON(out); err != nil {
		t.Fatalf("ExportJSON: %v", err)
	}
}

// TestArchiveFilesCascadeOnArchiveDelete checks the foreign-key cascade
// between archives and archive_files.
func TestArchiveFilesCascadeOnArchiveDelete(t *testing.T) {
	r := openTestRegistry(t)

	id, err := r.RecordArchive(Archive{ArchivePath: "/out/cascade.tar.zst", OriginalLocation: "/c"})
	if err != nil {
		t.Fatalf("RecordArchive: %v", err)
	}
	if err := r.RecordArchiveFiles(id, []FileMapping{
		{ArchiveID: id, FilePath: "media/a.bpg", OriginalPath: "/a.jpg", FileSize: 1},
	}); err != nil {
		t.Fatalf("RecordArchiveFiles: %v", err)
	}

	if _, err := r.db.Exec(`DELETE FROM archives WHERE id = ?`, id); err != nil {
		t.Fatalf("delete archive: %v", err)
	}

	files, err := r.GetArchiveFiles(id)
	if err != nil {
		t.Fatalf("GetArchiveFiles: %v", err)
	}
	if len(files) != 0 {
		t.Fatalf("expected archive_files to cascade-delete, got %+v", files)
	}
}
