package codec

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"golang.org/x/image/tiff"

	"github.com/legeapp/openarc/pkg/common"
)

// ExecRawDecoder shells out to dcraw on PATH, developing camera RAW files
// (CR2/NEF/ARW/DNG/...) to a temporary TIFF that is then decoded to raw
// RGBA8. dcraw autodetects the RAW container from content, so the staged
// input needs no format-specific extension.
type ExecRawDecoder struct {
	Bin string
}

func NewExecRawDecoder() *ExecRawDecoder {
	return &ExecRawDecoder{Bin: "dcraw"}
}

func (d *ExecRawDecoder) bin() string {
	if d.Bin != "" {
		return d.Bin
	}
	return "dcraw"
}

func (d *ExecRawDecoder) DecodeToRGBA(ctx context.Context, data []byte) ([]byte, int, int, error) {
	tmpDir, err := os.MkdirTemp("", "openarc-dcraw")
	if err != nil {
		return nil, 0, 0, common.Wrap(common.KindDecodeFailed, "", err)
	}
	defer os.RemoveAll(tmpDir)

	rawPath := filepath.Join(tmpDir, "in.raw")
	if err := os.WriteFile(rawPath, data, 0o644); err != nil {
		return nil, 0, 0, common.Wrap(common.KindDecodeFailed, rawPath, err)
	}

	// -T develops to in.tiff next to the input; -w uses the camera's
	// recorded white balance.
	cmd := exec.CommandContext(ctx, d.bin(), "-w", "-T", rawPath)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, 0, 0, common.Wrap(common.KindDecodeFailed, rawPath, fmt.Errorf("dcraw: %w: %s", err, stderr.String()))
	}

	tiffPath := filepath.Join(tmpDir, "in.tiff")
	f, err := os.Open(tiffPath)
	if err != nil {
		return nil, 0, 0, common.Wrap(common.KindDecodeFailed, tiffPath, err)
	}
	defer f.Close()

	img, err := tiff.Decode(f)
	if err != nil {
		return nil, 0, 0, common.Wrap(common.KindDecodeFailed, tiffPath, err)
	}
	pixels, w, h := rgbaFromImage(img)
	return pixels, w, h, nil
}
