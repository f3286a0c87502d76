// Package video classifies source video files as already-efficiently
// compressed or phone-raw, and dispatches transcoding through a narrow
// external encoder contract.
package video

import (
	"context"
	"time"

	"github.com/legeapp/openarc/pkg/codec"
	"github.com/legeapp/openarc/pkg/common"
)

// Analysis is the result of probing one video file.
type Analysis struct {
	BitrateKbps             float64
	Codec                   string
	DurationSecs            float64
	Width, Height           int
	FileSize                int64
	IsEfficientlyCompressed bool
	CompressionReason       string
}

// AnalyzeTimeout bounds how long probing may take before the caller treats
// the result as unknown: a hung ffprobe must never block the pipeline.
const AnalyzeTimeout = 5 * time.Second

// Analyze probes path and classifies its compression efficiency. Probe
// failure or timeout returns (Analysis{}, false) — "unknown", handled by
// callers as "not efficiently compressed" (the safe default: recompress).
func Analyze(ctx context.Context, prober codec.Prober, path string, fileSize int64) (Analysis, bool) {
	ctx, cancel := context.WithTimeout(ctx, AnalyzeTimeout)
	defer cancel()

	type probeOutcome struct {
		res codec.ProbeResult
		err error
	}
	ch := make(chan probeOutcome, 1)
	go func() {
		res, err := prober.Probe(ctx, path)
		ch <- probeOutcome{res, err}
	}()

	select {
	case out := <-ch:
		if out.err != nil {
			return Analysis{}, false
		}
		bitrateKbps := out.res.BitrateKbps
		if bitrateKbps == 0 && out.res.DurationSecs > 0 {
			// Stream/format bit_rate was absent from the probe output; estimate
			// from the file size instead, per the documented fallback.
			bitrateKbps = float64(fileSize) * 8 / (out.res.DurationSecs * 1000)
		}
		compressed, reason := AssessCompressionEfficiency(out.res.Codec, bitrateKbps, out.res.Width, out.res.Height, fileSize)
		return Analysis{
			BitrateKbps:             bitrateKbps,
			Codec:                   out.res.Codec,
			DurationSecs:            out.res.DurationSecs,
			Width:                   out.res.Width,
			Height:                  out.res.Height,
			FileSize:                fileSize,
			IsEfficientlyCompressed: compressed,
			CompressionReason:       reason,
		}, true
	case <-ctx.Done():
		return Analysis{}, false
	}
}

// AssessCompressionEfficiency tells already-compressed video from raw phone
// footage using three heuristics: bitrate, bits per pixel (assuming 30fps),
// and file size relative to resolution.
func AssessCompressionEfficiency(videoCodec string, bitrateKbps float64, width, height int, fileSize int64) (bool, string) {
	pixels := float64(width) * float64(height)
	var bpp float64
	if pixels > 0 && bitrateKbps > 0 {
		bpp = (bitrateKbps * 1000.0) / (pixels * 30.0)
	}

	if bitrateKbps > 12000.0 {
		return false, "very high bitrate suggests unoptimized encoding"
	}
	if bpp > 0.12 {
		return false, "high bits-per-pixel indicates inefficient compression"
	}

	resolutionFactor := pixels / (1920.0 * 1080.0)
	sizeMB := float64(fileSize) / (1024.0 * 1024.0)
	if sizeMB > 150.0*resolutionFactor {
		return false, "large file size for resolution suggests phone encoding"
	}

	if bitrateKbps < 8000.0 && bpp < 0.10 {
		return true, "moderate bitrate and bpp indicate efficient compression"
	}
	if videoCodec == "hevc" && bitrateKbps < 10000.0 {
		return true, "HEVC codec with moderate bitrate suggests prior optimization"
	}
	return true, "bitrate appears reasonably compressed"
}

// presetFor maps the archiver's small preset enum onto a codec/speed pair.
func presetFor(videoPreset int) (codec.VideoCodecName, codec.VideoSpeedPreset) {
	switch videoPreset {
	case 1:
		return codec.VideoCodecH265, codec.SpeedMedium
	case 2:
		return codec.VideoCodecH264, codec.SpeedFast
	case 3:
		return codec.VideoCodecH265, codec.SpeedSlow
	default:
		return codec.VideoCodecH264, codec.SpeedMedium
	}
}

// Transcode encodes input to output per videoPreset/crf using enc. Callers
// gate memory and heavy-task concurrency before calling Transcode; it does
// no gating of its own.
func Transcode(ctx context.Context, enc codec.VideoEncoder, input, output string, videoPreset, crf int) error {
	vcodec, speed := presetFor(videoPreset)
	opts := codec.VideoEncodeOptions{
		Codec:     vcodec,
		Speed:     speed,
		CRF:       crf,
		CopyAudio: true,
	}
	if err := enc.EncodeFile(ctx, input, output, opts); err != nil {
		return common.Wrap(common.KindEncodeFailed, input, err)
	}
	return nil
}
