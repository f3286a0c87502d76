package image

import (
	"context"

	"github.com/legeapp/openarc/pkg/codec"
	"github.com/legeapp/openarc/pkg/common"
)

// EncodeOptions carries everything Encode needs beyond the raw BPG config:
// the original format (to decide PNG-intermediate vs direct) and the
// external codec seams (still-image recompressor, HEIC/RAW decoders).
type EncodeOptions struct {
	Format   common.OriginalImageFormat
	BaseCfg  codec.EncodeConfig
	Encoder  codec.ImageEncoder
	Decoders Decoders
}

// Result is what the caller needs to record for this file: the bytes
// written, their size, and whether recompression happened at all.
type Result struct {
	Bytes             []byte
	Skipped           bool
	SkippedCopySource string
}

// Encode recompresses the image at inputPath per opts. When the source
// cannot be decoded (corrupt/truncated/unsupported), Encode reports
// Result.Skipped so the caller can fall back to copying the original file
// through unmodified: an unreadable image is preserved, never dropped.
func Encode(ctx context.Context, inputPath string, opts EncodeOptions, userBitDepthSetting int) (Result, error) {
	img, err := Decode(inputPath, opts.Format, opts.Decoders)
	if err != nil {
		return Result{Skipped: true, SkippedCopySource: inputPath}, nil
	}

	bitDepth := DetectBitDepth(img, opts.Format, userBitDepthSetting)
	raw := ToRawImage(img, bitDepth)

	cfg := opts.BaseCfg
	cfg.BitDepth = bitDepth

	data, err := opts.Encoder.EncodeFromMemory(ctx, raw, cfg)
	if err != nil {
		return Result{}, common.Wrap(common.KindEncodeFailed, inputPath, err)
	}
	return Result{Bytes: data}, nil
}
