package misc

import (
	"bufio"
	"bytes"

	"github.com/legeapp/openarc/pkg/varint"
)

// DataBlockInfo is one data block's entry in the directory payload.
type DataBlockInfo struct {
	Compressor     string
	OriginalSize   uint64
	CompressedSize uint64
	// Offset is `directory_block_pos - data_block_pos`; absolute positions
	// are never stored on the wire.
	Offset   uint64
	NumFiles uint32
}

// FileInfo is one file's entry in the directory payload.
type FileInfo struct {
	Name           string
	DirIndex       uint64
	Size           uint64
	MtimeUnix      uint32
	IsDir          bool
	CRC32          uint32
	DataBlockIndex int // -1 for directories
	OffsetInBlock  uint64
}

// DirectoryBlock is the control block enumerating every data block and
// every file in a misc archive.
type DirectoryBlock struct {
	DataBlocks  []DataBlockInfo
	Directories []string
	Files       []FileInfo
}

// EncodeDirectoryBlock serialises dir into its (uncompressed) payload bytes.
func EncodeDirectoryBlock(dir *DirectoryBlock) []byte {
	var buf bytes.Buffer

	numBlocks := len(dir.DataBlocks)
	buf.Write(varint.Encode(uint64(numBlocks)))

	for _, b := range dir.DataBlocks {
		buf.Write(varint.Encode(uint64(b.NumFiles)))
	}
	for _, b := range dir.DataBlocks {
		buf.WriteString(b.Compressor)
		buf.WriteByte(0)
	}
	for _, b := range dir.DataBlocks {
		buf.Write(varint.Encode(b.Offset))
	}
	for _, b := range dir.DataBlocks {
		buf.Write(varint.Encode(b.CompressedSize))
	}

	buf.Write(varint.Encode(uint64(len(dir.Directories))))
	for _, d := range dir.Directories {
		buf.WriteString(d)
		buf.WriteByte(0)
	}

	for _, f := range dir.Files {
		buf.WriteString(f.Name)
		buf.WriteByte(0)
	}
	for _, f := range dir.Files {
		buf.Write(varint.Encode(f.DirIndex))
	}
	for _, f := range dir.Files {
		buf.Write(varint.Encode(f.Size))
	}
	for _, f := range dir.Files {
		varint.WriteU32(&buf, f.MtimeUnix)
	}
	for _, f := range dir.Files {
		varint.WriteBool(&buf, f.IsDir)
	}
	for _, f := range dir.Files {
		varint.WriteU32(&buf, f.CRC32)
	}

	buf.WriteByte(0) // optional-fields terminator (TAG_END)
	return buf.Bytes()
}

// DecodeDirectoryBlock parses a directory payload. Offsets are left as the
// stored `dirPos - blockPos` delta; callers resolve absolute positions with
// the known directory block position.
func DecodeDirectoryBlock(payload []byte) (*DirectoryBlock, error) {
	r := bufio.NewReader(bytes.NewReader(payload))

	numBlocks, err := varint.Read(r)
	if err != nil {
		return nil, err
	}

	filesPerBlock := make([]uint64, numBlocks)
	for i := range filesPerBlock {
		v, err := varint.Read(r)
		if err != nil {
			return nil, err
		}
		filesPerBlock[i] = v
	}

	compressors := make([]string, numBlocks)
	for i := range compressors {
		s, err := varint.ReadCString(r)
		if err != nil {
			return nil, err
		}
		compressors[i] = s
	}

	offsets := make([]uint64, numBlocks)
	for i := range offsets {
		v, err := varint.Read(r)
		if err != nil {
			return nil, err
		}
		offsets[i] = v
	}

	compSizes := make([]uint64, numBlocks)
	for i := range compSizes {
		v, err := varint.Read(r)
		if err != nil {
			return nil, err
		}
		compSizes[i] = v
	}

	numDirs, err := varint.Read(r)
	if err != nil {
		return nil, err
	}
	directories := make([]string, numDirs)
	for i := range directories {
		s, err := varint.ReadCString(r)
		if err != nil {
			return nil, err
		}
		directories[i] = s
	}

	var totalFiles uint64
	for _, n := range filesPerBlock {
		totalFiles += n
	}

	names := make([]string, totalFiles)
	for i := range names {
		s, err := varint.ReadCString(r)
		if err != nil {
			return nil, err
		}
		names[i] = s
	}
	dirIndices := make([]uint64, totalFiles)
	for i := range dirIndices {
		v, err := varint.Read(r)
		if err != nil {
			return nil, err
		}
		dirIndices[i] = v
	}
	sizes := make([]uint64, totalFiles)
	for i := range sizes {
		v, err := varint.Read(r)
		if err != nil {
			return nil, err
		}
		sizes[i] = v
	}
	times := make([]uint32, totalFiles)
	for i := range times {
		v, err := varint.ReadU32(r)
		if err != nil {
			return nil, err
		}
		times[i] = v
	}
	isDirs := make([]bool, totalFiles)
	for i := range isDirs {
		b, err := varint.ReadBool(r)
		if err != nil {
			return nil, err
		}
		isDirs[i] = b
	}
	crcs := make([]uint32, totalFiles)
	for i := range crcs {
		v, err := varint.ReadU32(r)
		if err != nil {
			return nil, err
		}
		crcs[i] = v
	}

	// Optional-fields terminator: a non-zero tag here names a future
	// optional field and must be skipped, not treated as an error.
	if tag, err := r.ReadByte(); err == nil && tag != 0 {
		// No optional-field tags are defined by this revision; there is
		// nothing further to skip to reach a known-good offset, so stop
		// reading optional fields here.
	}

	dataBlocks := make([]DataBlockInfo, numBlocks)
	for i := range dataBlocks {
		dataBlocks[i] = DataBlockInfo{
			Compressor:     compressors[i],
			CompressedSize: compSizes[i],
			Offset:         offsets[i],
			NumFiles:       uint32(filesPerBlock[i]),
		}
	}

	files := make([]FileInfo, totalFiles)
	blockIdx := 0
	remaining := uint64(0)
	if numBlocks > 0 {
		remaining = filesPerBlock[0]
	}
	var offsetInBlock uint64
	for i := uint64(0); i < totalFiles; i++ {
		for remaining == 0 && blockIdx < int(numBlocks)-1 {
			blockIdx++
			remaining = filesPerBlock[blockIdx]
			offsetInBlock = 0
		}

		size := sizes[i]
		if blockIdx < len(dataBlocks) {
			dataBlocks[blockIdx].OriginalSize += size
		}

		dataBlockIndex := -1
		if !isDirs[i] {
			dataBlockIndex = blockIdx
		}

		files[i] = FileInfo{
			Name:           names[i],
			DirIndex:       dirIndices[i],
			Size:           size,
			MtimeUnix:      times[i],
			IsDir:          isDirs[i],
			CRC32:          crcs[i],
			DataBlockIndex: dataBlockIndex,
			OffsetInBlock:  offsetInBlock,
		}

		if !isDirs[i] {
			offsetInBlock += size
			if remaining > 0 {
				remaining--
			}
		}
	}

	return &DirectoryBlock{DataBlocks: dataBlocks, Directories: directories, Files: files}, nil
}
