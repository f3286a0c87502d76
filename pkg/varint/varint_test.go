package varint

import (
	"bufio"
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoundtripSmall(t *testing.T) {
	for v := uint64(0); v < 128; v++ {
		enc := Encode(v)
		require.Len(t, enc, 1, "value %d should encode to 1 byte", v)

		dec, n, err := Decode(enc)
		require.NoError(t, err)
		require.Equal(t, v, dec)
		require.Equal(t, 1, n)
	}
}

func TestRoundtripMedium(t *testing.T) {
	values := []uint64{128, 255, 1000, 16383, 16384, 100000, 1_000_000}
	for _, v := range values {
		enc := Encode(v)
		dec, n, err := Decode(enc)
		require.NoError(t, err)
		require.Equal(t, v, dec, "roundtrip failed for %d", v)
		require.Equal(t, len(enc), n)
	}
}

func TestRoundtripLarge(t *testing.T) {
	values := []uint64{1 << 30, 1 << 40, 1 << 50, 1 << 60, math.MaxUint64}
	for _, v := range values {
		enc := Encode(v)
		dec, n, err := Decode(enc)
		require.NoError(t, err)
		require.Equal(t, v, dec, "roundtrip failed for %d", v)
		require.Equal(t, len(enc), n)
	}
}

func TestEncodingSizes(t *testing.T) {
	cases := []struct {
		value uint64
		size  int
	}{
		{0, 1}, {127, 1},
		{128, 2}, {16383, 2},
		{16384, 3}, {2097151, 3},
		{2097152, 4}, {268435455, 4},
		{math.MaxUint64, 9},
	}
	for _, c := range cases {
		require.Len(t, Encode(c.value), c.size, "value %d", c.value)
	}
}

func TestDecodeEmptyIsTruncated(t *testing.T) {
	_, _, err := Decode(nil)
	require.ErrorIs(t, err, ErrTruncated)
}

func TestWriteReadStream(t *testing.T) {
	values := []uint64{0, 1, 127, 128, 16384, 1 << 35, math.MaxUint64}
	var buf bytes.Buffer
	for _, v := range values {
		_, err := Write(&buf, v)
		require.NoError(t, err)
	}

	r := bufio.NewReader(&buf)
	for _, want := range values {
		got, err := Read(r)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestCStringRoundtrip(t *testing.T) {
	var buf bytes.Buffer
	n, err := WriteCString(&buf, "zstd:5")
	require.NoError(t, err)
	require.Equal(t, len("zstd:5")+1, n)

	r := bufio.NewReader(&buf)
	s, err := ReadCString(r)
	require.NoError(t, err)
	require.Equal(t, "zstd:5", s)
}

func TestCStringEmpty(t *testing.T) {
	var buf bytes.Buffer
	_, err := WriteCString(&buf, "")
	require.NoError(t, err)

	r := bufio.NewReader(&buf)
	s, err := ReadCString(r)
	require.NoError(t, err)
	require.Equal(t, "", s)
}
