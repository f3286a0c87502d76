package misc

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteReadRoundtrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, "storing", 0)

	files := map[string][]byte{
		"a.txt": bytes.Repeat([]byte("a"), 1024),
		"b.txt": bytes.Repeat([]byte("b"), 2048),
		"c.txt": []byte("hello world"),
	}
	names := []string{"a.txt", "b.txt", "c.txt"}
	for _, n := range names {
		require.NoError(t, w.AddFile(n, files[n], 1700000000))
	}
	require.NoError(t, w.Seal())

	require.Equal(t, Magic[:], buf.Bytes()[:4], "archive must open with the header magic")

	r, err := OpenReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	require.Len(t, r.Directory.Files, len(names))

	for i, fi := range r.Directory.Files {
		data, err := r.ExtractFile(i)
		require.NoError(t, err)
		require.Equal(t, files[fi.Name], data)
	}
}

func TestReaderFindByName(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, "storing", 0)
	require.NoError(t, w.AddFile("a.txt", []byte("AAA"), 0))
	require.NoError(t, w.AddFile("b.txt", []byte("BBBB"), 0))
	require.NoError(t, w.Seal())

	r, err := OpenReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)

	data, err := r.ExtractByName("b.txt")
	require.NoError(t, err)
	require.Equal(t, []byte("BBBB"), data)

	_, ok := r.FindByName("missing.txt")
	require.False(t, ok)

	_, err = r.ExtractByName("missing.txt")
	require.Error(t, err)
}

func TestWriteReadRoundtripZstd(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, "zstd", 3)

	payload := bytes.Repeat([]byte("openarc misc substream "), 5000)
	require.NoError(t, w.AddFile("blob.bin", payload, 1700000001))
	require.NoError(t, w.Seal())

	r, err := OpenReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	require.Len(t, r.Directory.Files, 1)

	data, err := r.ExtractFile(0)
	require.NoError(t, err)
	require.Equal(t, payload, data)
}

func TestMultiBlockFlush(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, "storing", 0)

	big := bytes.Repeat([]byte{0xAB}, flushThreshold+1)
	require.NoError(t, w.AddFile("big.bin", big, 0))
	small := []byte("small trailer")
	require.NoError(t, w.AddFile("small.txt", small, 0))
	require.NoError(t, w.Seal())

	require.GreaterOrEqual(t, len(w.dataBlocks), 2)

	r, err := OpenReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)

	var gotBig, gotSmall []byte
	for i, fi := range r.Directory.Files {
		data, err := r.ExtractFile(i)
		require.NoError(t, err)
		switch fi.Name {
		case "big.bin":
			gotBig = data
		case "small.txt":
			gotSmall = data
		}
	}
	require.Equal(t, big, gotBig)
	require.Equal(t, small, gotSmall)
}

func TestDescriptorCRCMismatchDetected(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteDescriptor(&buf, &Descriptor{
		Type:       BlockFooter,
		Compressor: "storing",
		OrigSize:   10,
		CompSize:   10,
		DataCRC32:  0x1234,
	}))

	corrupt := buf.Bytes()
	corrupt[5] ^= 0xFF // perturb a byte inside the descriptor body

	_, err := ReadDescriptor(bufio.NewReader(bytes.NewReader(corrupt)))
	require.Error(t, err)
}

func TestOffsetInversion(t *testing.T) {
	// stored_offset = dirPos - blockPos; inverse: blockPos = dirPos - stored_offset.
	dirPos := uint64(1 << 20)
	for blockPos := uint64(0); blockPos <= dirPos; blockPos += dirPos / 16 {
		stored := dirPos - blockPos
		require.Equal(t, blockPos, dirPos-stored)
	}
}

func TestDirectoryBlockRoundtrip(t *testing.T) {
	dir := &DirectoryBlock{
		DataBlocks: []DataBlockInfo{
			{Compressor: "storing", OriginalSize: 30, CompressedSize: 30, Offset: 100, NumFiles: 2},
			{Compressor: "zstd:3", OriginalSize: 5, CompressedSize: 5, Offset: 40, NumFiles: 1},
		},
		Directories: []string{"", "sub"},
		Files: []FileInfo{
			{Name: "one.txt", DirIndex: 0, Size: 10, MtimeUnix: 111, CRC32: 1, DataBlockIndex: 0, OffsetInBlock: 0},
			{Name: "two.txt", DirIndex: 0, Size: 20, MtimeUnix: 222, CRC32: 2, DataBlockIndex: 0, OffsetInBlock: 10},
			{Name: "three.txt", DirIndex: 1, Size: 5, MtimeUnix: 333, CRC32: 3, DataBlockIndex: 1, OffsetInBlock: 0},
		},
	}

	payload := EncodeDirectoryBlock(dir)
	got, err := DecodeDirectoryBlock(payload)
	require.NoError(t, err)
	require.Len(t, got.Files, 3)
	require.Equal(t, "one.txt", got.Files[0].Name)
	require.Equal(t, uint64(10), got.Files[1].OffsetInBlock)
	require.Equal(t, []string{"", "sub"}, got.Directories)
}

func TestFooterBlockRoundtrip(t *testing.T) {
	footerDescPos := uint64(5000)
	footer := &FooterBlock{
		ControlBlocks: []ControlBlockRef{
			{Type: BlockDirectory, Compressor: "storing", Pos: 4000, OrigSize: 100, CompSize: 90, DataCRC32: 0xBEEF},
		},
		Locked:   false,
		Recovery: "",
		Comment:  "openarc",
	}
	payload := EncodeFooterBlock(footer, footerDescPos)
	got, err := DecodeFooterBlock(payload, footerDescPos)
	require.NoError(t, err)
	require.Len(t, got.ControlBlocks, 1)
	require.Equal(t, uint64(4000), got.ControlBlocks[0].Pos)
	require.Equal(t, "openarc", got.Comment)
}
