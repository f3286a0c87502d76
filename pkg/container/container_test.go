package container

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStagingLayoutOmitsEmptyMisc(t *testing.T) {
	root := t.TempDir()
	layout, err := NewStagingLayout(root, false)
	require.NoError(t, err)
	require.DirExists(t, layout.MediaDir)
	require.Empty(t, layout.MiscDir)
	require.NoDirExists(t, filepath.Join(root, "misc"))
}

func TestStagingLayoutCreatesMiscWhenNeeded(t *testing.T) {
	root := t.TempDir()
	layout, err := NewStagingLayout(root, true)
	require.NoError(t, err)
	require.DirExists(t, layout.MiscDir)
}

func TestSealExtractRoundtrip(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "media"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "media", "a.bpg"), []byte("payload"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, MetadataFilename), []byte("{}"), 0o644))

	out := filepath.Join(t.TempDir(), "archive.tar.zst")
	require.NoError(t, Seal(root, out, 3))

	dest := t.TempDir()
	require.NoError(t, Extract(out, dest))

	data, err := os.ReadFile(filepath.Join(dest, "media", "a.bpg"))
	require.NoError(t, err)
	require.Equal(t, "payload", string(data))
}

func TestExtractEntrySingleFile(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "media"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "media", "a.bpg"), []byte("hello"), 0o644))

	out := filepath.Join(t.TempDir(), "archive.tar.zst")
	require.NoError(t, Seal(root, out, 3))

	dest := filepath.Join(t.TempDir(), "a.bpg")
	require.NoError(t, ExtractEntry(out, "media/a.bpg", dest))
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))
}

func TestParseManifestSizes(t *testing.T) {
	text := "OpenArc Archive Manifest\n========================\n\nProcessed files: 1\nSkipped by catalog: 0\n\n/in/a.jpg -> media/a_0.bpg (1000 -> 200) [orig: Jpeg]\n"
	m := ParseManifestSizes(text)
	sizes, ok := m["media/a_0.bpg"]
	require.True(t, ok)
	require.Equal(t, int64(1000), sizes[0])
	require.Equal(t, int64(200), sizes[1])
}

func TestDetectFileTypeFromName(t *testing.T) {
	require.Equal(t, "image", string(detectFileTypeFromName("a.bpg")))
	require.Equal(t, "video", string(detectFileTypeFromName("a.mp4")))
	require.Equal(t, "misc", string(detectFileTypeFromName("a.pdf")))
}

func TestIsInternalFile(t *testing.T) {
	require.True(t, isInternalFile("MANIFEST.txt"))
	require.True(t, isInternalFile("hashes.sha256"))
	require.False(t, isInternalFile("media/a.bpg"))
}
