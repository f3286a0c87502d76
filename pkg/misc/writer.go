package misc

import (
	"errors"
	"hash/crc32"
	"io"
)

// ErrFooterDidNotConverge is returned when the footer-position fixed-point
// loop fails to stabilise within its retry bound.
var ErrFooterDidNotConverge = errors.New("misc: footer position did not converge")

// Writer builds a misc substream: files are accumulated into solid data
// blocks, flushed at flushThreshold, and sealed with a directory block and
// a footer whose own descriptor position is resolved by a bounded
// fixed-point loop (the footer's size depends on the offsets it records,
// which in turn depend on its own position).
type Writer struct {
	w              io.Writer
	compressorName string
	level          int

	currentOffset uint64

	dataBlocks  []DataBlockInfo
	files       []FileInfo
	directories []string

	pendingData  []byte
	pendingFiles []FileInfo
}

// NewWriter constructs a Writer over w using compressorName (e.g. "zstd")
// at the given level for every data/directory/footer block.
func NewWriter(w io.Writer, compressorName string, level int) *Writer {
	return &Writer{
		w:              w,
		compressorName: compressorName,
		level:          level,
		directories:    []string{""},
	}
}

// AddFile accumulates one file's bytes into the pending solid block,
// auto-flushing once the threshold is reached.
func (wr *Writer) AddFile(name string, data []byte, mtimeUnix uint32) error {
	fi := FileInfo{
		Name:          name,
		DirIndex:      0,
		Size:          uint64(len(data)),
		MtimeUnix:     mtimeUnix,
		IsDir:         false,
		CRC32:         crc32.ChecksumIEEE(data),
		OffsetInBlock: uint64(len(wr.pendingData)),
	}
	wr.pendingData = append(wr.pendingData, data...)
	wr.pendingFiles = append(wr.pendingFiles, fi)

	if len(wr.pendingData) >= flushThreshold {
		return wr.flushBlock()
	}
	return nil
}

// ensureHeader writes the archive's leading magic once, before the first
// block lands at byte 0.
func (wr *Writer) ensureHeader() error {
	if wr.currentOffset != 0 {
		return nil
	}
	if _, err := wr.w.Write(Magic[:]); err != nil {
		return err
	}
	wr.currentOffset = uint64(len(Magic))
	return nil
}

func (wr *Writer) flushBlock() error {
	if len(wr.pendingData) == 0 {
		return nil
	}
	if err := wr.ensureHeader(); err != nil {
		return err
	}

	origSize := uint64(len(wr.pendingData))
	compressed, method, err := compress(wr.compressorName, wr.level, wr.pendingData)
	if err != nil {
		return err
	}

	offset := wr.currentOffset
	if _, err := wr.w.Write(compressed); err != nil {
		return err
	}
	wr.currentOffset += uint64(len(compressed))

	blockIdx := len(wr.dataBlocks)
	wr.dataBlocks = append(wr.dataBlocks, DataBlockInfo{
		Compressor:     method,
		OriginalSize:   origSize,
		CompressedSize: uint64(len(compressed)),
		Offset:         offset, // absolute for now; converted to relative at Seal
		NumFiles:       uint32(len(wr.pendingFiles)),
	})

	for _, f := range wr.pendingFiles {
		f.DataBlockIndex = blockIdx
		wr.files = append(wr.files, f)
	}

	wr.pendingData = wr.pendingData[:0]
	wr.pendingFiles = wr.pendingFiles[:0]
	return nil
}

// Seal flushes any pending block, writes the directory block, and writes
// the footer (with its own bounded fixed-point position convergence).
func (wr *Writer) Seal() error {
	if err := wr.flushBlock(); err != nil {
		return err
	}
	if err := wr.ensureHeader(); err != nil {
		return err
	}

	dirStartPos := wr.currentOffset

	// Convert absolute offsets to the stored `dirPos - blockPos` delta.
	for i := range wr.dataBlocks {
		wr.dataBlocks[i].Offset = dirStartPos - wr.dataBlocks[i].Offset
	}

	dirBlock := &DirectoryBlock{
		DataBlocks:  wr.dataBlocks,
		Directories: wr.directories,
		Files:       wr.files,
	}
	dirPayload := EncodeDirectoryBlock(dirBlock)
	dirOrigCRC := crc32.ChecksumIEEE(dirPayload)
	dirCompressed, dirMethod, err := compress(wr.compressorName, wr.level, dirPayload)
	if err != nil {
		return err
	}

	if _, err := wr.w.Write(dirCompressed); err != nil {
		return err
	}
	wr.currentOffset += uint64(len(dirCompressed))

	dirRef := ControlBlockRef{
		Type:       BlockDirectory,
		Compressor: dirMethod,
		Pos:        dirStartPos,
		OrigSize:   uint64(len(dirPayload)),
		CompSize:   uint64(len(dirCompressed)),
		DataCRC32:  dirOrigCRC,
	}

	footerStartPos := wr.currentOffset
	footerDescPos := footerStartPos + 1024 // initial guess, converges below

	var footerCompressed []byte
	var footerMethod string
	var footerOrigCRC uint32
	var footerOrigLen int

	converged := false
	for i := 0; i < maxConvergeRetries; i++ {
		footer := &FooterBlock{
			ControlBlocks: []ControlBlockRef{dirRef},
			Locked:        false,
			Recovery:      "",
			Comment:       "",
		}
		payload := EncodeFooterBlock(footer, footerDescPos)
		footerOrigLen = len(payload)
		footerOrigCRC = crc32.ChecksumIEEE(payload)

		compressed, method, err := compress(wr.compressorName, wr.level, payload)
		if err != nil {
			return err
		}
		footerCompressed = compressed
		footerMethod = method

		newFooterDescPos := footerStartPos + uint64(len(compressed))
		if newFooterDescPos == footerDescPos {
			converged = true
			break
		}
		footerDescPos = newFooterDescPos
	}
	if !converged {
		return ErrFooterDidNotConverge
	}

	if _, err := wr.w.Write(footerCompressed); err != nil {
		return err
	}
	wr.currentOffset += uint64(len(footerCompressed))

	footerDesc := &Descriptor{
		Type:       BlockFooter,
		Compressor: footerMethod,
		OrigSize:   uint64(footerOrigLen),
		CompSize:   uint64(len(footerCompressed)),
		DataCRC32:  footerOrigCRC,
	}
	return WriteDescriptor(wr.w, footerDesc)
}
