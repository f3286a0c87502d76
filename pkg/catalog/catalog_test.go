package catalog

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func openTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	dir := t.TempDir()
	c, err := Open(filepath.Join(dir, "test.catalog.sqlite"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func writeFile(t *testing.T, path string, content []byte) {
	t.Helper()
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// TestRecordIdempotence checks that recording the same entry twice with
// an unchanged size/mtime still yields exactly one row for that path.
func TestRecordIdempotence(t *testing.T) {
	c := openTestCatalog(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "photo.jpg")
	writeFile(t, path, []byte("hello"))
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}

	e := Entry{Path: path, Size: info.Size(), MtimeSecs: info.ModTime().Unix(), SHA256: "abc"}
	if err := c.Record(e); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := c.Record(e); err != nil {
		t.Fatalf("Record (second): %v", err)
	}

	all, err := c.ListAll()
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	count := 0
	for _, row := range all {
		if row.Path == NormalizePath(path) {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one row for %s, got %d", path, count)
	}
}

// TestShouldSkipCorrectness checks that after recording an entry with
// its current (size, mtime), ShouldSkip reports Skip; once the file's mtime
// changes, it reports ReBackup.
func TestShouldSkipCorrectness(t *testing.T) {
	c := openTestCatalog(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "clip.mp4")
	writeFile(t, path, []byte("video bytes"))
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}

	if err := c.Record(Entry{Path: path, Size: info.Size(), MtimeSecs: info.ModTime().Unix()}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	disp, err := c.ShouldSkip(path)
	if err != nil {
		t.Fatalf("ShouldSkip: %v", err)
	}
	if disp != Skip {
		t.Fatalf("expected Skip right after recording, got %v", disp)
	}

	// Touch the file so its mtime changes to something the catalog has not
	// recorded.
	newMtime := info.ModTime().Add(2 * time.Hour)
	if err := os.Chtimes(path, newMtime, newMtime); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	disp, err = c.ShouldSkip(path)
	if err != nil {
		t.Fatalf("ShouldSkip after touch: %v", err)
	}
	if disp != ReBackup {
		t.Fatalf("expected ReBackup after mtime change, got %v", disp)
	}
}

func TestShouldSkipNotPresent(t *testing.T) {
	c := openTestCatalog(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "new.png")
	writeFile(t, path, []byte("new file"))

	disp, err := c.ShouldSkip(path)
	if err != nil {
		t.Fatalf("ShouldSkip: %v", err)
	}
	if disp != NotPresent {
		t.Fatalf("expected NotPresent for unrecorded file, got %v", disp)
	}
}

func TestShouldSkipUnreadableInputIsSkip(t *testing.T) {
	c := openTestCatalog(t)
	disp, err := c.ShouldSkip(filepath.Join(t.TempDir(), "does-not-exist.jpg"))
	if err != nil {
		t.Fatalf("ShouldSkip should never error on an unreadable input: %v", err)
	}
	if disp != Skip {
		t.Fatalf("expected Skip for an unreadable input, got %v", disp)
	}
}

func TestFilterPreservesOrder(t *testing.T) {
	c := openTestCatalog(t)
	dir := t.TempDir()

	recorded := filepath.Join(dir, "recorded.jpg")
	writeFile(t, recorded, []byte("a"))
	info, _ := os.Stat(recorded)
	if err := c.Record(Entry{Path: recorded, Size: info.Size(), MtimeSecs: info.ModTime().Unix()}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	fresh1 := filepath.Join(dir, "fresh1.jpg")
	fresh2 := filepath.Join(dir, "fresh2.jpg")
	writeFile(t, fresh1, []byte("b"))
	writeFile(t, fresh2, []byte("c"))

	skip, backup, err := c.Filter([]string{fresh1, recorded, fresh2})
	if err != nil {
		t.Fatalf("Filter: %v", err)
	}
	if len(skip) != 1 || skip[0] != recorded {
		t.Fatalf("expected skip=[%s], got %+v", recorded, skip)
	}
	if len(backup) != 2 || backup[0] != fresh1 || backup[1] != fresh2 {
		t.Fatalf("expected backup=[%s,%s] in order, got %+v", fresh1, fresh2, backup)
	}
}

func TestRemoveAndClearAll(t *testing.T) {
	c := openTestCatalog(t)
	dir := t.TempDir()
	p1 := filepath.Join(dir, "one.jpg")
	p2 := filepath.Join(dir, "two.jpg")
	writeFile(t, p1, []byte("1"))
	writeFile(t, p2, []byte("2"))
	i1, _ := os.Stat(p1)
	i2, _ := os.Stat(p2)

	if err := c.RecordBatch([]Entry{
		{Path: p1, Size: i1.Size(), MtimeSecs: i1.ModTime().Unix()},
		{Path: p2, Size: i2.Size(), MtimeSecs: i2.ModTime().Unix()},
	}); err != nil {
		t.Fatalf("RecordBatch: %v", err)
	}

	if err := c.Remove(p1); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	all, err := c.ListAll()
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(all) != 1 || all[0].Path != NormalizePath(p2) {
		t.Fatalf("expected only %s to remain, got %+v", p2, all)
	}

	if err := c.ClearAll(); err != nil {
		t.Fatalf("ClearAll: %v", err)
	}
	all, err = c.ListAll()
	if err != nil {
		t.Fatalf("ListAll after ClearAll: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("expected empty catalog after ClearAll, got %+v", all)
	}
}

func TestExportJSON(t *testing.T) {
	c := openTestCatalog(t)
	dir := t.TempDir()
	p := filepath.Join(dir, "a.jpg")
	writeFile(t, p, []byte("a"))
	info, _ := os.Stat(p)
	if err := c.Record(Entry{Path: p, Size: info.Size(), MtimeSecs: info.ModTime().Unix()}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	out := filepath.Join(dir, "export.json")
	if err := c.ExportJSON(out); err != nil {
		t.Fatalf("ExportJSON: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected non-empty export")
	}
}

func TestPathFor(t *testing.T) {
	got := PathFor("/tmp/out.tar.zst")
	want := "/tmp/out.catalog.sqlite"
	if got != want {
		t.Fatalf("PathFor(%q) = %q, want %q", "/tmp/out.tar.zst", got, want)
	}
}
