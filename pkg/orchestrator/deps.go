package orchestrator

import (
	"github.com/legeapp/openarc/pkg/codec"
)

// Dependencies are the external-tool seams CreateArchive drives. Nil
// decoders/prober are tolerated: video analysis then always reports
// "unknown" (safe default: recompress) and HEIC/RAW sources fall back to
// the copy-through path, as on a host with the tool missing from PATH.
type Dependencies struct {
	ImageEncoder codec.ImageEncoder
	HeicDecoder  codec.ImageDecoder
	RawDecoder   codec.ImageDecoder
	VideoEncoder codec.VideoEncoder
	Prober       codec.Prober
}

// DefaultDependencies wires the exec-backed implementations: bpgenc/bpgdec,
// heif-dec, dcraw, and ffmpeg/ffprobe on PATH.
func DefaultDependencies() Dependencies {
	return Dependencies{
		ImageEncoder: codec.NewExecImageCodec(),
		HeicDecoder:  codec.NewExecHeicDecoder(),
		RawDecoder:   codec.NewExecRawDecoder(),
		VideoEncoder: codec.NewExecVideoEncoder(),
		Prober:       codec.NewExecProber(),
	}
}
