// Package codec defines the narrow external-codec contracts the image and
// video pipelines encode through. Production builds shell out to real
// encoder binaries (bpgenc/bpgdec, ffmpeg/ffprobe); tests substitute fakes
// that satisfy the same interfaces.
package codec

import (
	"context"
)

// PixelFormat mirrors the small set of in-memory layouts BPG-style encoders
// accept: packed RGB or RGBA, at 8 or 16 bits per channel.
type PixelFormat int

const (
	FormatRGB24 PixelFormat = iota
	FormatRGBA32
)

// EncodeConfig is the image-encoder configuration surface, shaped directly
// after the block-image encoder's own config struct: quality/lossless
// toggle, bit depth, chroma subsampling, encoder backend selection and
// compression effort.
type EncodeConfig struct {
	Quality          int
	Lossless         bool
	BitDepth         int
	ChromaFormat     int
	EncoderType      int
	CompressionLevel int
}

// DefaultEncodeConfig matches the reference encoder's documented default.
func DefaultEncodeConfig() EncodeConfig {
	return EncodeConfig{
		Quality:          25,
		Lossless:         false,
		BitDepth:         8,
		ChromaFormat:     1,
		EncoderType:      0,
		CompressionLevel: 8,
	}
}

// RawImage is raw interleaved pixel data plus the geometry/format needed to
// hand it to an encoder.
type RawImage struct {
	Width          int
	Height         int
	Stride         int
	Format         PixelFormat
	BytesPerSample int
	Pixels         []byte
}

// ImageEncoder compresses raw pixel data to the archiver's still-image
// codec. Implementations are expected to be stateless and safe for
// concurrent use by distinct calls.
type ImageEncoder interface {
	EncodeFromMemory(ctx context.Context, img RawImage, cfg EncodeConfig) ([]byte, error)
}

// ImageDecoder reverses ImageEncoder: it turns a compressed still image back
// into raw RGBA8 pixels plus geometry.
type ImageDecoder interface {
	DecodeToRGBA(ctx context.Context, data []byte) (pixels []byte, width, height int, err error)
}

// VideoCodecName is a coarse encoder family selector; VideoSpeedPreset
// trades encode time for compression efficiency.
type VideoCodecName int

const (
	VideoCodecH264 VideoCodecName = iota
	VideoCodecH265
)

type VideoSpeedPreset int

const (
	SpeedFast VideoSpeedPreset = iota
	SpeedMedium
	SpeedSlow
)

// VideoEncodeOptions configures a transcode pass.
type VideoEncodeOptions struct {
	Codec     VideoCodecName
	Speed     VideoSpeedPreset
	CRF       int
	CopyAudio bool
}

// VideoEncoder transcodes a video file on disk to another file on disk; this
// stays file-to-file (rather than in-memory) because the reference tooling
// is itself a subprocess that reads/writes files.
type VideoEncoder interface {
	EncodeFile(ctx context.Context, input, output string, opts VideoEncodeOptions) error
}

func (c VideoCodecName) ffmpegName() string {
	if c == VideoCodecH265 {
		return "libx265"
	}
	return "libx264"
}

func (p VideoSpeedPreset) ffmpegPreset() string {
	switch p {
	case SpeedFast:
		return "fast"
	case SpeedSlow:
		return "slow"
	default:
		return "medium"
	}
}
