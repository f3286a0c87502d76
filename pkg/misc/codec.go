package misc

import (
	"fmt"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// codecStage is one parsed `<name>[:<param>]*` segment of a compressor
// chain string. The chain is `<codec>[+<encryption>]`; this revision
// registers only the "storing" identity codec and "zstd", and wires no
// encryption scheme.
type codecStage struct {
	name   string
	params []string
}

func parseChain(s string) []codecStage {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, "+")
	out := make([]codecStage, 0, len(parts))
	for _, p := range parts {
		fields := strings.Split(p, ":")
		out = append(out, codecStage{name: fields[0], params: fields[1:]})
	}
	return out
}

// compress runs name (optionally parameterised by level) over data,
// returning the compressed bytes and the canonical compressor string to
// record in the block descriptor.
func compress(name string, level int, data []byte) ([]byte, string, error) {
	switch name {
	case "", "storing":
		return data, "storing", nil
	case "zstd":
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(levelFor(level)))
		if err != nil {
			return nil, "", err
		}
		out := enc.EncodeAll(data, nil)
		enc.Close()
		return out, fmt.Sprintf("zstd:%d", level), nil
	default:
		return nil, "", fmt.Errorf("misc: unknown codec %q", name)
	}
}

func levelFor(level int) zstd.EncoderLevel {
	switch {
	case level <= 1:
		return zstd.SpeedFastest
	case level <= 3:
		return zstd.SpeedDefault
	case level <= 6:
		return zstd.SpeedBetterCompression
	default:
		return zstd.SpeedBestCompression
	}
}

// decompress walks the compressor chain string in reverse, decoding data
// back to its original bytes. origSize sizes the output buffer.
func decompress(method string, data []byte, origSize int) ([]byte, error) {
	stages := parseChain(method)
	if len(stages) == 0 {
		return data, nil
	}
	out := data
	for i := len(stages) - 1; i >= 0; i-- {
		stage := stages[i]
		switch stage.name {
		case "", "storing":
			// identity
		case "zstd":
			dec, err := zstd.NewReader(nil)
			if err != nil {
				return nil, err
			}
			decoded, err := dec.DecodeAll(out, make([]byte, 0, origSize))
			dec.Close()
			if err != nil {
				return nil, err
			}
			out = decoded
		default:
			return nil, fmt.Errorf("misc: unknown codec %q", stage.name)
		}
	}
	return out, nil
}
