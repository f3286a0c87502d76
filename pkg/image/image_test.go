package image

import (
	"context"
	stdimage "image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/legeapp/openarc/pkg/codec"
	"github.com/legeapp/openarc/pkg/common"
	"github.com/stretchr/testify/require"
)

// fakeRGBADecoder satisfies codec.ImageDecoder with a fixed 2x2 opaque
// gradient, standing in for the heif-dec/dcraw shims.
type fakeRGBADecoder struct {
	calls int
}

func (f *fakeRGBADecoder) DecodeToRGBA(ctx context.Context, data []byte) ([]byte, int, int, error) {
	f.calls++
	pix := make([]byte, 2*2*4)
	for i := 0; i < len(pix); i += 4 {
		pix[i], pix[i+1], pix[i+2], pix[i+3] = byte(i), byte(i+1), byte(i+2), 255
	}
	return pix, 2, 2, nil
}

func writeOpaqueBlob(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("not a real image payload"), 0o644))
	return path
}

func TestDecodeHeicRoutesThroughExternalDecoder(t *testing.T) {
	path := writeOpaqueBlob(t, "photo.heic")
	dec := &fakeRGBADecoder{}

	img, err := Decode(path, common.FormatHeic, Decoders{Heic: dec})
	require.NoError(t, err)
	require.Equal(t, 1, dec.calls)
	require.Equal(t, stdimage.Rect(0, 0, 2, 2), img.Bounds())
}

func TestDecodeRawRoutesThroughExternalDecoder(t *testing.T) {
	path := writeOpaqueBlob(t, "shot.cr2")
	dec := &fakeRGBADecoder{}

	img, err := Decode(path, common.FormatRaw, Decoders{Raw: dec})
	require.NoError(t, err)
	require.Equal(t, 1, dec.calls)
	require.Equal(t, stdimage.Rect(0, 0, 2, 2), img.Bounds())
}

func TestDecodeWithoutExternalDecoderFails(t *testing.T) {
	heicPath := writeOpaqueBlob(t, "photo.heic")
	_, err := Decode(heicPath, common.FormatHeic, Decoders{})
	require.Error(t, err)

	rawPath := writeOpaqueBlob(t, "shot.nef")
	_, err = Decode(rawPath, common.FormatRaw, Decoders{})
	require.Error(t, err)
}

func TestDetectBitDepthJpegAlways8(t *testing.T) {
	img := stdimage.NewRGBA64(stdimage.Rect(0, 0, 2, 2))
	require.Equal(t, 8, DetectBitDepth(img, common.FormatJpeg, 12))
}

func TestDetectBitDepth8BitSourceStays8(t *testing.T) {
	img := stdimage.NewRGBA(stdimage.Rect(0, 0, 2, 2))
	require.Equal(t, 8, DetectBitDepth(img, common.FormatPng, 12))
}

func TestDetectBitDepth16BitHonorsUserSetting(t *testing.T) {
	img := stdimage.NewRGBA64(stdimage.Rect(0, 0, 2, 2))
	require.Equal(t, 10, DetectBitDepth(img, common.FormatPng, 10))
	require.Equal(t, 12, DetectBitDepth(img, common.FormatPng, 12))
	require.Equal(t, 10, DetectBitDepth(img, common.FormatPng, 9))
	require.Equal(t, 12, DetectBitDepth(img, common.FormatPng, 20))
}

func TestToRawImage8BitRGBA(t *testing.T) {
	img := stdimage.NewRGBA(stdimage.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 10, G: 20, B: 30, A: 255})
	raw := ToRawImage(img, 8)
	require.Equal(t, 2, raw.Width)
	require.Equal(t, 2, raw.Height)
	require.Equal(t, 1, raw.BytesPerSample)
	require.Equal(t, codec.FormatRGBA32, raw.Format)
}
