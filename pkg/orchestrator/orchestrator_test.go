package orchestrator

import (
	"bytes"
	"context"
	stdimage "image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/legeapp/openarc/pkg/codec"
	"github.com/legeapp/openarc/pkg/container"
	"github.com/legeapp/openarc/pkg/settings"
)

type fakeImageEncoder struct{}

func (fakeImageEncoder) EncodeFromMemory(ctx context.Context, img codec.RawImage, cfg codec.EncodeConfig) ([]byte, error) {
	return []byte("fake-bpg-bytes"), nil
}

func writeTestPNG(t *testing.T, path string) {
	t.Helper()
	img := stdimage.NewRGBA(stdimage.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 10), G: uint8(y * 10), B: 50, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func TestCreateArchiveBasicFlow(t *testing.T) {
	inputDir := t.TempDir()
	writeTestPNG(t, filepath.Join(inputDir, "photo.png"))
	require.NoError(t, os.WriteFile(filepath.Join(inputDir, "notes.txt"), []byte("hello world"), 0o644))

	outDir := t.TempDir()
	outputArchive := filepath.Join(outDir, "out.tar.zst")

	s := settings.Default()
	s.EnableCatalog = false
	s.EnableDedup = false
	s.StagingDir = t.TempDir()

	deps := Dependencies{ImageEncoder: fakeImageEncoder{}}

	var reports [][3]int
	progressFn := func(done, total int, name string) {
		reports = append(reports, [3]int{done, total, len(name)})
	}

	result, err := CreateArchive(context.Background(), []string{inputDir}, outputArchive, s, deps, progressFn)
	require.NoError(t, err)
	require.Len(t, result.Discovered, 2)
	require.Len(t, result.Processed, 2)
	require.FileExists(t, outputArchive)
	require.NotEmpty(t, reports)

	listed, err := container.List(outputArchive)
	require.NoError(t, err)
	require.Len(t, listed, 2)
}

func TestCreateArchiveDedupKeepsOneCanonicalFile(t *testing.T) {
	inputDir := t.TempDir()
	payload := bytes.Repeat([]byte("same bytes "), 1024)
	require.NoError(t, os.WriteFile(filepath.Join(inputDir, "one.txt"), payload, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(inputDir, "two.txt"), payload, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(inputDir, "other.txt"), []byte("unrelated"), 0o644))

	outputArchive := filepath.Join(t.TempDir(), "dedup.tar.zst")
	s := settings.Default()
	s.EnableCatalog = false
	s.EnableDedup = true
	s.StagingDir = t.TempDir()

	result, err := CreateArchive(context.Background(), []string{inputDir}, outputArchive, s, Dependencies{}, nil)
	require.NoError(t, err)
	require.Len(t, result.Discovered, 3)
	// one.txt/two.txt collapse to a single canonical file; other.txt is
	// unique and forms no group.
	require.Len(t, result.Processed, 2)
	require.Equal(t, 1, result.DedupGroups)
}

func TestCreateArchiveIncrementalRerunSkipsEverything(t *testing.T) {
	inputDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(inputDir, "doc.txt"), []byte("stable content"), 0o644))

	outDir := t.TempDir()
	s := settings.Default()
	s.EnableCatalog = true
	s.EnableDedup = false
	s.StagingDir = t.TempDir()

	first, err := CreateArchive(context.Background(), []string{inputDir}, filepath.Join(outDir, "run1.tar.zst"), s, Dependencies{}, nil)
	require.NoError(t, err)
	require.Len(t, first.Processed, 1)

	// Same catalog sibling path, so the second run sees the first's rows.
	second, err := CreateArchive(context.Background(), []string{inputDir}, filepath.Join(outDir, "run1.tar.zst"), s, Dependencies{}, nil)
	require.NoError(t, err)
	require.Empty(t, second.Processed)
	require.Equal(t, second.Discovered, second.SkippedByCatalog)
	require.FileExists(t, filepath.Join(outDir, "run1.tar.zst"))
}

func TestCreateArchiveNoInputsReturnsEmptyResult(t *testing.T) {
	outputArchive := filepath.Join(t.TempDir(), "empty.tar.zst")
	s := settings.Default()
	s.EnableCatalog = false

	result, err := CreateArchive(context.Background(), []string{filepath.Join(t.TempDir(), "missing")}, outputArchive, s, Dependencies{}, nil)
	require.NoError(t, err)
	require.Empty(t, result.Discovered)
	require.NoFileExists(t, outputArchive)
}
