package misc

import (
	"bufio"
	"bytes"
	"io"

	"github.com/legeapp/openarc/pkg/varint"
)

// ControlBlockRef is one footer entry describing a control block (in
// practice, the directory block): its descriptor fields plus the position
// delta `footerDescPos - blockPos`.
type ControlBlockRef struct {
	Type       BlockType
	Compressor string
	// RelOffset is the stored delta; Pos, once resolved, is the absolute
	// block position.
	RelOffset uint64
	Pos       uint64
	OrigSize  uint64
	CompSize  uint64
	DataCRC32 uint32
}

// FooterBlock is the control block holding control-block descriptors, the
// locked flag, and the archive comment/recovery-info strings.
type FooterBlock struct {
	ControlBlocks []ControlBlockRef
	Locked        bool
	Recovery      string
	Comment       string
}

// EncodeFooterBlock serialises f's payload, computing each entry's
// RelOffset against footerDescPos (the position the footer descriptor will
// occupy once written).
func EncodeFooterBlock(f *FooterBlock, footerDescPos uint64) []byte {
	var buf bytes.Buffer

	buf.Write(varint.Encode(uint64(len(f.ControlBlocks))))
	for _, b := range f.ControlBlocks {
		buf.Write(varint.Encode(uint64(b.Type)))
		buf.WriteString(b.Compressor)
		buf.WriteByte(0)
		rel := footerDescPos - b.Pos
		buf.Write(varint.Encode(rel))
		buf.Write(varint.Encode(b.OrigSize))
		buf.Write(varint.Encode(b.CompSize))
		varint.WriteU32(&buf, b.DataCRC32)
	}

	varint.WriteBool(&buf, f.Locked)

	buf.Write(varint.Encode(0)) // legacy comment length, always 0 on write

	buf.WriteString(f.Recovery)
	buf.WriteByte(0)

	commentBytes := []byte(f.Comment)
	buf.Write(varint.Encode(uint64(len(commentBytes))))
	buf.Write(commentBytes)

	return buf.Bytes()
}

// DecodeFooterBlock parses a footer payload. footerDescPos resolves each
// control block's relative offset to an absolute position.
func DecodeFooterBlock(payload []byte, footerDescPos uint64) (*FooterBlock, error) {
	r := bufio.NewReader(bytes.NewReader(payload))

	numBlocks, err := varint.Read(r)
	if err != nil {
		return nil, err
	}

	blocks := make([]ControlBlockRef, numBlocks)
	for i := range blocks {
		typ, err := varint.Read(r)
		if err != nil {
			return nil, err
		}
		compressor, err := varint.ReadCString(r)
		if err != nil {
			return nil, err
		}
		rel, err := varint.Read(r)
		if err != nil {
			return nil, err
		}
		origSize, err := varint.Read(r)
		if err != nil {
			return nil, err
		}
		compSize, err := varint.Read(r)
		if err != nil {
			return nil, err
		}
		dataCRC, err := varint.ReadU32(r)
		if err != nil {
			return nil, err
		}
		blocks[i] = ControlBlockRef{
			Type:       BlockType(typ),
			Compressor: compressor,
			RelOffset:  rel,
			Pos:        footerDescPos - rel,
			OrigSize:   origSize,
			CompSize:   compSize,
			DataCRC32:  dataCRC,
		}
	}

	locked, err := varint.ReadBool(r)
	if err != nil {
		return nil, err
	}

	oldCommentLen, err := varint.Read(r)
	if err != nil {
		return nil, err
	}
	if oldCommentLen > 0 {
		skip := make([]byte, oldCommentLen)
		if _, err := io.ReadFull(r, skip); err != nil {
			return nil, err
		}
	}

	recovery, err := varint.ReadCString(r)
	if err != nil {
		recovery = ""
	}

	var comment string
	if commentLen, err := varint.Read(r); err == nil {
		commentBytes := make([]byte, commentLen)
		if _, err := io.ReadFull(r, commentBytes); err == nil {
			comment = string(commentBytes)
		}
	}

	return &FooterBlock{
		ControlBlocks: blocks,
		Locked:        locked,
		Recovery:      recovery,
		Comment:       comment,
	}, nil
}
