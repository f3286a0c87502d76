// Package varint implements the FreeArc-style self-describing variable
// length integer encoding used throughout the misc substream format: the
// number of trailing zero bits in the first byte selects the width.
package varint

import (
	"encoding/binary"
	"errors"
	"io"
)

// ByteReader is the read surface the streaming decoders need: block reads
// for fixed-width tails plus single-byte reads to pick a width. Both
// bufio.Reader and bytes.Reader satisfy it.
type ByteReader interface {
	io.Reader
	io.ByteReader
}

// ErrTruncated is returned when a buffer or reader does not contain enough
// bytes to decode a varint whose width byte has already been read.
var ErrTruncated = errors.New("varint: truncated input")

// Encode returns the smallest FreeArc varint encoding of value.
func Encode(value uint64) []byte {
	switch {
	case value < 1<<7:
		return []byte{byte(value << 1)}
	case value < 1<<14:
		v := (value << 2) | 0b01
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, v)
		return buf[:2]
	case value < 1<<21:
		v := (value << 3) | 0b011
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, v)
		return buf[:3]
	case value < 1<<28:
		v := (value << 4) | 0b0111
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, v)
		return buf[:4]
	case value < 1<<35:
		v := (value << 5) | 0b01111
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, v)
		return buf[:5]
	case value < 1<<42:
		v := (value << 6) | 0b011111
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, v)
		return buf[:6]
	case value < 1<<49:
		v := (value << 7) | 0b0111111
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, v)
		return buf[:7]
	case value < 1<<56:
		v := (value << 8) | 0b01111111
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, v)
		return buf
	default:
		buf := make([]byte, 9)
		buf[0] = 0xFF
		binary.LittleEndian.PutUint64(buf[1:], value)
		return buf
	}
}

// Decode reads a FreeArc varint from the front of data and returns the
// decoded value and the number of bytes consumed.
func Decode(data []byte) (value uint64, consumed int, err error) {
	if len(data) == 0 {
		return 0, 0, ErrTruncated
	}

	var buf [8]byte
	copy(buf[:], data)

	x32 := binary.LittleEndian.Uint32(buf[:4])
	x64 := binary.LittleEndian.Uint64(buf[:])

	switch {
	case x32&1 == 0:
		return uint64(buf[0] >> 1), 1, nil
	case x32&3 == 1:
		if len(data) < 2 {
			return 0, 0, ErrTruncated
		}
		v := binary.LittleEndian.Uint16(buf[:2])
		return uint64(v >> 2), 2, nil
	case x32&7 == 3:
		if len(data) < 3 {
			return 0, 0, ErrTruncated
		}
		v := uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16
		return uint64(v >> 3), 3, nil
	case x32&15 == 7:
		if len(data) < 4 {
			return 0, 0, ErrTruncated
		}
		return uint64(x32 >> 4), 4, nil
	case x32&31 == 15:
		if len(data) < 5 {
			return 0, 0, ErrTruncated
		}
		return (x64 >> 5) & (1<<35 - 1), 5, nil
	case x32&63 == 31:
		if len(data) < 6 {
			return 0, 0, ErrTruncated
		}
		return (x64 >> 6) & (1<<42 - 1), 6, nil
	case x32&127 == 63:
		if len(data) < 7 {
			return 0, 0, ErrTruncated
		}
		return (x64 >> 7) & (1<<49 - 1), 7, nil
	case x32&255 == 127:
		if len(data) < 8 {
			return 0, 0, ErrTruncated
		}
		return x64 >> 8, 8, nil
	default:
		if len(data) < 9 {
			return 0, 0, ErrTruncated
		}
		return binary.LittleEndian.Uint64(data[1:9]), 9, nil
	}
}

// Write encodes value and writes it to w, returning the number of bytes written.
func Write(w io.Writer, value uint64) (int, error) {
	enc := Encode(value)
	if err := writeFull(w, enc); err != nil {
		return 0, err
	}
	return len(enc), nil
}

// Read decodes a varint from r, reading one byte at a time since the width
// is only known after the first byte.
func Read(r ByteReader) (uint64, error) {
	first, err := r.ReadByte()
	if err != nil {
		return 0, err
	}

	width := widthFromFirstByte(first)
	if width == 1 {
		v, _, _ := Decode([]byte{first})
		return v, nil
	}

	rest := make([]byte, width-1)
	if _, err := io.ReadFull(r, rest); err != nil {
		return 0, ErrTruncated
	}

	buf := append([]byte{first}, rest...)
	v, _, err := Decode(buf)
	return v, err
}

func widthFromFirstByte(b byte) int {
	switch {
	case b&1 == 0:
		return 1
	case b&3 == 1:
		return 2
	case b&7 == 3:
		return 3
	case b&15 == 7:
		return 4
	case b&31 == 15:
		return 5
	case b&63 == 31:
		return 6
	case b&127 == 63:
		return 7
	case b == 0x7F:
		return 8
	default:
		return 9
	}
}

// WriteCString writes a NUL-terminated string.
func WriteCString(w io.Writer, s string) (int, error) {
	if err := writeFull(w, []byte(s)); err != nil {
		return 0, err
	}
	if err := writeFull(w, []byte{0}); err != nil {
		return 0, err
	}
	return len(s) + 1, nil
}

// ReadCString reads a NUL-terminated string.
func ReadCString(r ByteReader) (string, error) {
	var b []byte
	for {
		c, err := r.ReadByte()
		if err != nil {
			return "", err
		}
		if c == 0 {
			return string(b), nil
		}
		b = append(b, c)
	}
}

// WriteU32 writes a fixed-width little-endian u32 (CRC-32 and mtime fields
// are the only descriptor integers not varint-encoded).
func WriteU32(w io.Writer, v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return writeFull(w, b[:])
}

// ReadU32 reads a fixed-width little-endian u32.
func ReadU32(r ByteReader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

// WriteU8 writes a single byte.
func WriteU8(w io.Writer, v uint8) error {
	return writeFull(w, []byte{v})
}

// ReadU8 reads a single byte.
func ReadU8(r ByteReader) (uint8, error) {
	return r.ReadByte()
}

// WriteBool writes a boolean as a single 0/1 byte.
func WriteBool(w io.Writer, v bool) error {
	if v {
		return WriteU8(w, 1)
	}
	return WriteU8(w, 0)
}

// ReadBool reads a single byte; any non-zero value is true.
func ReadBool(r ByteReader) (bool, error) {
	b, err := r.ReadByte()
	return b != 0, err
}

func writeFull(w io.Writer, b []byte) error {
	_, err := w.Write(b)
	return err
}
