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

// HeicEncoder re-encodes a decoded PNG intermediate back to HEIC at
// extraction time. It is optional: with no encoder available, HEIC sources
// stay restored as PNG.
type HeicEncoder interface {
	EncodeFromPNGFile(ctx context.Context, pngPath, outPath string, quality uint8) error
}

// ExecHeicEncoder shells out to libheif's heif-enc tool on PATH.
type ExecHeicEncoder struct {
	Bin string
}

func NewExecHeicEncoder() *ExecHeicEncoder {
	return &ExecHeicEncoder{Bin: "heif-enc"}
}

func (e *ExecHeicEncoder) bin() string {
	if e.Bin != "" {
		return e.Bin
	}
	return "heif-enc"
}

func (e *ExecHeicEncoder) EncodeFromPNGFile(ctx context.Context, pngPath, outPath string, quality uint8) error {
	cmd := exec.CommandContext(ctx, e.bin(), "-q", fmt.Sprintf("%d", quality), "-o", outPath, pngPath)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return common.Wrap(common.KindEncodeFailed, pngPath, fmt.Errorf("heif-enc: %w: %s", err, stderr.String()))
	}
	return nil
}

// ExecHeicDecoder shells out to libheif's heif-dec tool on PATH, converting
// HEIC sources to a temporary PNG that is then decoded to raw RGBA8. It is
// the decode half of the HEIC seam, used at archive-creation time so HEIC
// inputs can be recompressed rather than copied through.
type ExecHeicDecoder struct {
	Bin string
}

func NewExecHeicDecoder() *ExecHeicDecoder {
	return &ExecHeicDecoder{Bin: "heif-dec"}
}

func (d *ExecHeicDecoder) bin() string {
	if d.Bin != "" {
		return d.Bin
	}
	return "heif-dec"
}

func (d *ExecHeicDecoder) DecodeToRGBA(ctx context.Context, data []byte) ([]byte, int, int, error) {
	tmpDir, err := os.MkdirTemp("", "openarc-heifdec")
	if err != nil {
		return nil, 0, 0, common.Wrap(common.KindDecodeFailed, "", err)
	}
	defer os.RemoveAll(tmpDir)

	heicPath := filepath.Join(tmpDir, "in.heic")
	if err := os.WriteFile(heicPath, data, 0o644); err != nil {
		return nil, 0, 0, common.Wrap(common.KindDecodeFailed, heicPath, err)
	}
	pngPath := filepath.Join(tmpDir, "out.png")

	cmd := exec.CommandContext(ctx, d.bin(), heicPath, pngPath)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, 0, 0, common.Wrap(common.KindDecodeFailed, heicPath, fmt.Errorf("heif-dec: %w: %s", err, stderr.String()))
	}

	return decodeRGBAFromPNGFile(pngPath)
}
