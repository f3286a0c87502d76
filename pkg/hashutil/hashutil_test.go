package hashutil

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
)

func writeTempFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func expectedHex(content []byte) string {
	h := sha256.Sum256(content)
	return hex.EncodeToString(h[:])
}

func TestSha256FileMatchesBytes(t *testing.T) {
	dir := t.TempDir()
	content := []byte("the quick brown fox jumps over the lazy dog")
	path := writeTempFile(t, dir, "a.txt", content)

	want := expectedHex(content)

	got, err := Sha256File(path)
	if err != nil {
		t.Fatalf("Sha256File: %v", err)
	}
	if got != want {
		t.Fatalf("got %s want %s", got, want)
	}

	if gotBytes := Sha256Bytes(content); gotBytes != want {
		t.Fatalf("Sha256Bytes mismatch: got %s want %s", gotBytes, want)
	}
}

func TestWriteReadHashesFile(t *testing.T) {
	dir := t.TempDir()
	pairs := []HashPair{
		{Hash: expectedHex([]byte("x")), Rel: "media/a.bpg"},
		{Hash: expectedHex([]byte("y")), Rel: "misc.arc"},
	}

	out := filepath.Join(dir, "HASHES.sha256")
	if err := WriteHashesFile(pairs, out); err != nil {
		t.Fatalf("WriteHashesFile: %v", err)
	}

	got, err := ReadHashesFile(out)
	if err != nil {
		t.Fatalf("ReadHashesFile: %v", err)
	}
	if len(got) != len(pairs) {
		t.Fatalf("got %d pairs, want %d", len(got), len(pairs))
	}
	for i, p := range pairs {
		if got[i] != p {
			t.Fatalf("pair %d: got %+v want %+v", i, got[i], p)
		}
	}
}

func TestVerifyAgainstDetectsMismatch(t *testing.T) {
	dir := t.TempDir()
	content := []byte("original contents")
	writeTempFile(t, dir, "media.bin", content)

	hashesPath := filepath.Join(dir, "HASHES.sha256")
	if err := WriteHashesFile([]HashPair{{Hash: expectedHex(content), Rel: "media.bin"}}, hashesPath); err != nil {
		t.Fatalf("WriteHashesFile: %v", err)
	}

	if err := VerifyAgainst(dir, hashesPath); err != nil {
		t.Fatalf("VerifyAgainst should succeed before tampering: %v", err)
	}

	// Tamper with the file after the sidecar was written.
	if err := os.WriteFile(filepath.Join(dir, "media.bin"), []byte("tampered"), 0o644); err != nil {
		t.Fatalf("tamper: %v", err)
	}

	err := VerifyAgainst(dir, hashesPath)
	if err == nil {
		t.Fatal("expected hash mismatch error")
	}
}

func TestBuildDedupMap(t *testing.T) {
	dir := t.TempDir()
	same := []byte("duplicate content")
	a := writeTempFile(t, dir, "a.txt", same)
	b := writeTempFile(t, dir, "b.txt", same)
	c := writeTempFile(t, dir, "c.txt", []byte("different"))

	m, err := BuildDedupMap([]string{a, b, c})
	if err != nil {
		t.Fatalf("BuildDedupMap: %v", err)
	}

	var group []string
	for _, paths := range m {
		if len(paths) == 2 {
			group = paths
		}
	}
	if group == nil {
		t.Fatalf("expected a dedup group of size 2, got %+v", m)
	}
}
