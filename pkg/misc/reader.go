package misc

import (
	"bufio"
	"bytes"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/tidwall/btree"

	"github.com/legeapp/openarc/pkg/common"
)

// nameIndexEntry is one (file name -> directory-entry index) pairing kept in
// the Reader's ordered name index.
type nameIndexEntry struct {
	Name string
	Idx  int
}

// Reader opens a sealed misc substream for random single-file extraction or
// full extraction, by locating its footer descriptor via a backward scan
// from EOF.
type Reader struct {
	r         io.ReaderAt
	Footer    *FooterBlock
	Directory *DirectoryBlock
	dirPos    uint64
	byName    *btree.BTree
}

func newNameIndex() *btree.BTree {
	less := func(a, b interface{}) bool {
		return a.(nameIndexEntry).Name < b.(nameIndexEntry).Name
	}
	return btree.New(less)
}

// OpenReader parses the footer and directory of a misc substream of the
// given total size.
func OpenReader(r io.ReaderAt, size int64) (*Reader, error) {
	desc, descPos, err := findFooterDescriptor(r, size)
	if err != nil {
		return nil, err
	}

	// The footer payload sits immediately before its descriptor.
	if desc.CompSize > descPos {
		return nil, common.Wrap(common.KindOffsetOutOfRange, "", fmt.Errorf("footer payload size %d exceeds descriptor position %d", desc.CompSize, descPos))
	}
	footerPayload, err := readControlBlockPayload(r, descPos-desc.CompSize, desc.CompSize, desc.Compressor, int(desc.OrigSize))
	if err != nil {
		return nil, err
	}
	if crc32.ChecksumIEEE(footerPayload) != desc.DataCRC32 {
		return nil, common.Wrap(common.KindDataCrcMismatch, "", fmt.Errorf("footer payload crc mismatch"))
	}

	footer, err := DecodeFooterBlock(footerPayload, descPos)
	if err != nil {
		return nil, err
	}

	var dirRef *ControlBlockRef
	for i := range footer.ControlBlocks {
		if footer.ControlBlocks[i].Type == BlockDirectory {
			dirRef = &footer.ControlBlocks[i]
			break
		}
	}
	if dirRef == nil {
		return nil, common.Wrap(common.KindEncodeFailed, "", fmt.Errorf("misc: directory block not found in footer"))
	}

	dirPayload, err := readControlBlockPayload(r, dirRef.Pos, dirRef.CompSize, dirRef.Compressor, int(dirRef.OrigSize))
	if err != nil {
		return nil, err
	}
	if crc32.ChecksumIEEE(dirPayload) != dirRef.DataCRC32 {
		return nil, common.Wrap(common.KindDataCrcMismatch, "", fmt.Errorf("directory payload crc mismatch"))
	}

	dir, err := DecodeDirectoryBlock(dirPayload)
	if err != nil {
		return nil, err
	}

	byName := newNameIndex()
	for i, fi := range dir.Files {
		if !fi.IsDir {
			byName.Set(nameIndexEntry{Name: fi.Name, Idx: i})
		}
	}

	return &Reader{r: r, Footer: footer, Directory: dir, dirPos: dirRef.Pos, byName: byName}, nil
}

// FindByName looks up a file entry's directory index by name via the
// Reader's ordered name index, in O(log n) rather than scanning Directory.Files.
func (rd *Reader) FindByName(name string) (int, bool) {
	item := rd.byName.Get(nameIndexEntry{Name: name})
	if item == nil {
		return 0, false
	}
	return item.(nameIndexEntry).Idx, true
}

// ExtractByName decompresses and returns the bytes of the file entry named
// name, or an error if no such file exists in the directory.
func (rd *Reader) ExtractByName(name string) ([]byte, error) {
	idx, ok := rd.FindByName(name)
	if !ok {
		return nil, common.Wrap(common.KindOffsetOutOfRange, name, fmt.Errorf("no such file in misc substream"))
	}
	return rd.ExtractFile(idx)
}

func findFooterDescriptor(r io.ReaderAt, size int64) (*Descriptor, uint64, error) {
	scanSize := int64(scanWindow)
	if scanSize > size {
		scanSize = size
	}
	base := size - scanSize
	buf := make([]byte, scanSize)
	if _, err := r.ReadAt(buf, base); err != nil && err != io.EOF {
		return nil, 0, common.Wrap(common.KindEarlyEOF, "", err)
	}

	for i := len(buf) - 4; i >= 0; i-- {
		if bytes.Equal(buf[i:i+4], Magic[:]) {
			pos := uint64(base) + uint64(i)
			section := io.NewSectionReader(r, int64(pos), size-int64(pos))
			br := bufio.NewReader(section)
			if desc, err := ReadDescriptor(br); err == nil {
				return desc, pos, nil
			}
		}
	}
	return nil, 0, common.Wrap(common.KindMagicNotFound, "", fmt.Errorf("footer magic not found within scan window"))
}

func readControlBlockPayload(r io.ReaderAt, pos uint64, compSize uint64, method string, origSize int) ([]byte, error) {
	buf := make([]byte, compSize)
	if _, err := r.ReadAt(buf, int64(pos)); err != nil {
		return nil, common.Wrap(common.KindEarlyEOF, "", err)
	}
	return decompress(method, buf, origSize)
}

// ExtractFile returns the decompressed bytes of the i'th file entry.
func (rd *Reader) ExtractFile(i int) ([]byte, error) {
	if i < 0 || i >= len(rd.Directory.Files) {
		return nil, common.Wrap(common.KindOffsetOutOfRange, "", fmt.Errorf("invalid file index %d", i))
	}
	fi := rd.Directory.Files[i]
	if fi.IsDir {
		return nil, nil
	}
	if fi.DataBlockIndex < 0 || fi.DataBlockIndex >= len(rd.Directory.DataBlocks) {
		return nil, common.Wrap(common.KindOffsetOutOfRange, "", fmt.Errorf("file %q has no data block", fi.Name))
	}
	block := rd.Directory.DataBlocks[fi.DataBlockIndex]

	blockPos := rd.dirPos - block.Offset
	raw := make([]byte, block.CompressedSize)
	if _, err := rd.r.ReadAt(raw, int64(blockPos)); err != nil {
		return nil, common.Wrap(common.KindEarlyEOF, fi.Name, err)
	}
	decoded, err := decompress(block.Compressor, raw, int(block.OriginalSize))
	if err != nil {
		return nil, err
	}

	start := fi.OffsetInBlock
	end := start + fi.Size
	if end > uint64(len(decoded)) {
		return nil, common.Wrap(common.KindOffsetOutOfRange, fi.Name, fmt.Errorf("file data outside decompressed block bounds"))
	}
	out := decoded[start:end]
	if crc32.ChecksumIEEE(out) != fi.CRC32 {
		return nil, common.Wrap(common.KindDataCrcMismatch, fi.Name, fmt.Errorf("file crc mismatch"))
	}
	return out, nil
}

// ExtractAll decompresses every file entry and calls visit(name, data) for
// each, in directory order. A reader that cannot interpret one block still
// reports what it could read: per-entry and visit errors do not abort the
// remaining entries, but are collected for the caller to inspect.
func (rd *Reader) ExtractAll(visit func(name string, data []byte, isDir bool) error) []error {
	var errs []error
	for i, fi := range rd.Directory.Files {
		if fi.IsDir {
			if err := visit(fi.Name, nil, true); err != nil {
				errs = append(errs, err)
			}
			continue
		}
		data, err := rd.ExtractFile(i)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := visit(fi.Name, data, false); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
