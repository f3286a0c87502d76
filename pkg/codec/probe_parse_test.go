package codec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseProbeOutput(t *testing.T) {
	raw := "codec_name=h264\nwidth=1920\nheight=1080\nduration=12.500000\nbit_rate=20000000\nbit_rate=20100000\n"
	r := parseProbeOutput(raw)
	require.Equal(t, "h264", r.Codec)
	require.Equal(t, 1920, r.Width)
	require.Equal(t, 1080, r.Height)
	require.InDelta(t, 12.5, r.DurationSecs, 0.001)
	require.InDelta(t, 20000.0, r.BitrateKbps, 0.001)
}

func TestChromaFormatArg(t *testing.T) {
	require.Equal(t, "420", chromaFormatArg(0))
	require.Equal(t, "444", chromaFormatArg(1))
	require.Equal(t, "444", chromaFormatArg(2))
}
