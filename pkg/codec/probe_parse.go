package codec

import (
	"strconv"
	"strings"
)

// parseProbeOutput parses ffprobe's `key=value` per-line format, as emitted
// by `-of default=noprint_wrappers=1`.
func parseProbeOutput(s string) ProbeResult {
	var r ProbeResult
	var bitrateBps float64

	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "codec_name="):
			if r.Codec == "" {
				r.Codec = strings.TrimPrefix(line, "codec_name=")
			}
		case strings.HasPrefix(line, "bit_rate="):
			if v, err := strconv.ParseFloat(strings.TrimPrefix(line, "bit_rate="), 64); err == nil && bitrateBps == 0 {
				bitrateBps = v
			}
		case strings.HasPrefix(line, "duration="):
			if v, err := strconv.ParseFloat(strings.TrimPrefix(line, "duration="), 64); err == nil && r.DurationSecs == 0 {
				r.DurationSecs = v
			}
		case strings.HasPrefix(line, "width="):
			if v, err := strconv.Atoi(strings.TrimPrefix(line, "width=")); err == nil {
				r.Width = v
			}
		case strings.HasPrefix(line, "height="):
			if v, err := strconv.Atoi(strings.TrimPrefix(line, "height=")); err == nil {
				r.Height = v
			}
		}
	}
	r.BitrateKbps = bitrateBps / 1000.0
	return r
}
