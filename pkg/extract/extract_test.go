package extract

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/legeapp/openarc/pkg/container"
	"github.com/legeapp/openarc/pkg/settings"
)

func sealFixtureArchive(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "media"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "media", "notes.bin"), []byte("payload"), 0o644))

	out := filepath.Join(t.TempDir(), "fixture.tar.zst")
	require.NoError(t, container.Seal(root, out, 3))
	return out
}

func TestArchiveExtractsEverything(t *testing.T) {
	archivePath := sealFixtureArchive(t)
	dest := t.TempDir()

	result, err := Archive(archivePath, dest)
	require.NoError(t, err)
	require.Equal(t, 1, result.FilesExtracted)

	data, err := os.ReadFile(filepath.Join(dest, "media", "notes.bin"))
	require.NoError(t, err)
	require.Equal(t, "payload", string(data))
}

func TestArchiveWithDecodingSkipsWhenNoMetadata(t *testing.T) {
	archivePath := sealFixtureArchive(t)
	dest := t.TempDir()

	result, err := ArchiveWithDecoding(context.Background(), archivePath, dest, settings.DefaultExtraction(), DecodeDeps{})
	require.NoError(t, err)
	require.Equal(t, 0, result.ImagesDecoded)
}

func TestEntryStreamsSingleFile(t *testing.T) {
	archivePath := sealFixtureArchive(t)
	dest := filepath.Join(t.TempDir(), "out.bin")

	require.NoError(t, Entry(archivePath, "media/notes.bin", dest))
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, "payload", string(data))
}

func TestListContentsReturnsEntries(t *testing.T) {
	archivePath := sealFixtureArchive(t)
	listed, err := ListContents(archivePath)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	require.Equal(t, "media/notes.bin", listed[0].Filename)
}
