package codec

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/legeapp/openarc/pkg/common"
)

// ExecImageCodec shells out to bpgenc/bpgdec binaries on PATH. The encoder
// has no stdin/stdout raw-pixel mode in the reference tool, so raw pixels
// are staged to a temporary PNG/PPM-equivalent file first.
type ExecImageCodec struct {
	EncoderBin string
	DecoderBin string
}

// NewExecImageCodec returns a codec using the conventional binary names.
func NewExecImageCodec() *ExecImageCodec {
	return &ExecImageCodec{EncoderBin: "bpgenc", DecoderBin: "bpgdec"}
}

func (c *ExecImageCodec) bin(name string) string {
	if name != "" {
		return name
	}
	return "bpgenc"
}

// EncodeFromMemory writes img to a temporary PPM file, invokes the encoder
// binary against it, and returns the resulting BPG bytes.
func (c *ExecImageCodec) EncodeFromMemory(ctx context.Context, img RawImage, cfg EncodeConfig) ([]byte, error) {
	tmpDir, err := os.MkdirTemp("", "openarc-bpgenc")
	if err != nil {
		return nil, common.Wrap(common.KindEncodeFailed, "", err)
	}
	defer os.RemoveAll(tmpDir)

	ppmPath := filepath.Join(tmpDir, "in.ppm")
	if err := writePPM(ppmPath, img); err != nil {
		return nil, common.Wrap(common.KindEncodeFailed, ppmPath, err)
	}
	outPath := filepath.Join(tmpDir, "out.bpg")

	args := []string{
		"-q", fmt.Sprintf("%d", cfg.Quality),
		"-b", fmt.Sprintf("%d", cfg.BitDepth),
		"-f", chromaFormatArg(cfg.ChromaFormat),
		"-m", fmt.Sprintf("%d", cfg.CompressionLevel),
		"-o", outPath,
	}
	if cfg.ChromaFormat == 2 {
		args = append(args, "-c", "rgb")
	}
	if cfg.EncoderType == 1 {
		args = append(args, "-e", "jctvc")
	}
	if cfg.Lossless {
		args = append(args, "-lossless")
	}
	args = append(args, ppmPath)

	cmd := exec.CommandContext(ctx, c.bin(c.EncoderBin), args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, common.Wrap(common.KindEncodeFailed, ppmPath, fmt.Errorf("%s: %s", err, stderr.String()))
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		return nil, common.Wrap(common.KindEncodeFailed, outPath, err)
	}
	return data, nil
}

// DecodeToRGBA writes data to a temp file, invokes the decoder binary
// requesting PNG output, and decodes that PNG to raw RGBA8.
func (c *ExecImageCodec) DecodeToRGBA(ctx context.Context, data []byte) ([]byte, int, int, error) {
	tmpDir, err := os.MkdirTemp("", "openarc-bpgdec")
	if err != nil {
		return nil, 0, 0, common.Wrap(common.KindDecodeFailed, "", err)
	}
	defer os.RemoveAll(tmpDir)

	bpgPath := filepath.Join(tmpDir, "in.bpg")
	if err := os.WriteFile(bpgPath, data, 0o644); err != nil {
		return nil, 0, 0, common.Wrap(common.KindDecodeFailed, bpgPath, err)
	}
	pngPath := filepath.Join(tmpDir, "out.png")

	cmd := exec.CommandContext(ctx, c.bin(c.DecoderBin), "-o", pngPath, bpgPath)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, 0, 0, common.Wrap(common.KindDecodeFailed, bpgPath, fmt.Errorf("%s: %s", err, stderr.String()))
	}

	return decodeRGBAFromPNGFile(pngPath)
}

// chromaFormatArg maps the archiver's chroma-format setting (0=4:2:0,
// 1=4:4:4, 2=RGB) onto bpgenc's -f subsampling flag. RGB output (2) still
// needs 4:4:4 subsampling alongside the separate -c rgb colorspace flag.
func chromaFormatArg(v int) string {
	switch v {
	case 0:
		return "420"
	default:
		return "444"
	}
}
