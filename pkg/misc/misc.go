// Package misc implements the block-oriented solid archive format used for
// the "misc" substream (misc.arc) nested inside the outer container: a
// leading magic, data blocks and a directory block written without
// descriptors of their own (the directory block records each data block,
// the footer records the directory block), and a footer block followed by
// the file's only CRC-guarded descriptor, located by a backward scan from
// EOF. Integers are encoded with pkg/varint.
package misc

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/legeapp/openarc/pkg/common"
	"github.com/legeapp/openarc/pkg/varint"
)

// Magic introduces every block descriptor: "ArC\x01".
var Magic = [4]byte{0x41, 0x72, 0x43, 0x01}

// BlockType is the closed set of block kinds a descriptor may name.
type BlockType uint8

const (
	BlockDescriptorType BlockType = 0
	BlockHeader         BlockType = 1
	BlockData           BlockType = 2
	BlockDirectory      BlockType = 3
	BlockFooter         BlockType = 4
	BlockRecovery       BlockType = 5
	BlockUnknown        BlockType = 255
)

// flushThreshold is the accumulated-bytes point at which a pending data
// block is flushed to the underlying writer.
const flushThreshold = 16 << 20

// scanWindow bounds the backward scan for the footer magic at read time.
const scanWindow = 4096

// maxConvergeRetries bounds the footer-position fixed-point loop.
const maxConvergeRetries = 8

// Descriptor is one block's on-disk header: magic, type, compressor chain,
// sizes and CRCs. Pos is reader-side context, not part of the wire format.
type Descriptor struct {
	Type       BlockType
	Compressor string
	OrigSize   uint64
	CompSize   uint64
	DataCRC32  uint32
	Pos        uint64
}

// crcTee mirrors every byte read through it into buf, so the descriptor CRC
// can be recomputed over exactly the bytes consumed — no read-ahead.
type crcTee struct {
	r   varint.ByteReader
	buf *bytes.Buffer
}

func (t *crcTee) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	t.buf.Write(p[:n])
	return n, err
}

func (t *crcTee) ReadByte() (byte, error) {
	b, err := t.r.ReadByte()
	if err == nil {
		t.buf.WriteByte(b)
	}
	return b, err
}

// ReadDescriptor parses one descriptor from r, verifying the magic and the
// descriptor CRC (computed over all bytes from magic through data CRC).
func ReadDescriptor(r *bufio.Reader) (*Descriptor, error) {
	var buf bytes.Buffer
	tee := &crcTee{r: r, buf: &buf}

	var sig [4]byte
	if _, err := io.ReadFull(tee, sig[:]); err != nil {
		return nil, common.Wrap(common.KindDescriptorCrcMismatch, "", fmt.Errorf("magic: %w", err))
	}
	if sig != Magic {
		return nil, common.Wrap(common.KindDescriptorCrcMismatch, "", fmt.Errorf("bad magic %x", sig))
	}

	blockType, err := varint.Read(tee)
	if err != nil {
		return nil, common.Wrap(common.KindDescriptorCrcMismatch, "", err)
	}
	compressor, err := varint.ReadCString(tee)
	if err != nil {
		return nil, common.Wrap(common.KindDescriptorCrcMismatch, "", err)
	}
	origSize, err := varint.Read(tee)
	if err != nil {
		return nil, common.Wrap(common.KindDescriptorCrcMismatch, "", err)
	}
	compSize, err := varint.Read(tee)
	if err != nil {
		return nil, common.Wrap(common.KindDescriptorCrcMismatch, "", err)
	}
	var crcBuf [4]byte
	if _, err := io.ReadFull(tee, crcBuf[:]); err != nil {
		return nil, common.Wrap(common.KindDescriptorCrcMismatch, "", err)
	}
	dataCRC := binary.LittleEndian.Uint32(crcBuf[:])

	wantCRC := crc32.ChecksumIEEE(buf.Bytes())

	var storedCRCBuf [4]byte
	if _, err := io.ReadFull(r, storedCRCBuf[:]); err != nil {
		return nil, common.Wrap(common.KindDescriptorCrcMismatch, "", err)
	}
	storedCRC := binary.LittleEndian.Uint32(storedCRCBuf[:])
	if storedCRC != wantCRC {
		return nil, common.Wrap(common.KindDescriptorCrcMismatch, "", fmt.Errorf("descriptor crc mismatch: want %x got %x", wantCRC, storedCRC))
	}

	return &Descriptor{
		Type:       BlockType(blockType),
		Compressor: compressor,
		OrigSize:   origSize,
		CompSize:   compSize,
		DataCRC32:  dataCRC,
	}, nil
}

// WriteDescriptor serialises d to w, computing and appending the descriptor
// CRC over the fields from magic through data CRC, inclusive.
func WriteDescriptor(w io.Writer, d *Descriptor) error {
	var buf bytes.Buffer
	buf.Write(Magic[:])
	buf.Write(varint.Encode(uint64(d.Type)))
	buf.WriteString(d.Compressor)
	buf.WriteByte(0)
	buf.Write(varint.Encode(d.OrigSize))
	buf.Write(varint.Encode(d.CompSize))
	var crcBuf [4]byte
	binary.LittleEndian.PutUint32(crcBuf[:], d.DataCRC32)
	buf.Write(crcBuf[:])

	descCRC := crc32.ChecksumIEEE(buf.Bytes())
	if _, err := w.Write(buf.Bytes()); err != nil {
		return err
	}
	var descCRCBuf [4]byte
	binary.LittleEndian.PutUint32(descCRCBuf[:], descCRC)
	_, err := w.Write(descCRCBuf[:])
	return err
}
