// Package image dispatches still images through format-specific decoding and
// into the archiver's recompression codec, preserving enough metadata to
// reconstruct the original format on extraction.
package image

import (
	"context"
	"errors"
	stdimage "image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	"golang.org/x/image/webp"

	"github.com/legeapp/openarc/pkg/codec"
	"github.com/legeapp/openarc/pkg/common"
)

// Decoders bundles the external decode seams format dispatch needs: HEIC
// and camera RAW both route through their native tooling, consumed here
// through the same narrow bytes-in/pixels-out contract.
type Decoders struct {
	Heic codec.ImageDecoder
	Raw  codec.ImageDecoder
}

// Decode opens path and decodes it per its classified original format.
// HEIC and RAW decoding go through external tools since the standard
// library and golang.org/x/image carry neither; a missing tool is reported
// as a decode error, which callers treat as "copy through unmodified"
// exactly like any other undecodable source image.
func Decode(path string, format common.OriginalImageFormat, dec Decoders) (stdimage.Image, error) {
	switch format {
	case common.FormatJpeg:
		f, err := os.Open(path)
		if err != nil {
			return nil, common.Wrap(common.KindDecodeFailed, path, err)
		}
		defer f.Close()
		img, err := jpeg.Decode(f)
		if err != nil {
			return nil, common.Wrap(common.KindDecodeFailed, path, err)
		}
		return img, nil
	case common.FormatHeic:
		return decodeViaExternalTool(path, dec.Heic, errHeicUnavailable)
	case common.FormatRaw:
		return decodeViaExternalTool(path, dec.Raw, errRawUnavailable)
	case common.FormatBmp:
		f, err := os.Open(path)
		if err != nil {
			return nil, common.Wrap(common.KindDecodeFailed, path, err)
		}
		defer f.Close()
		img, err := bmp.Decode(f)
		if err != nil {
			return nil, common.Wrap(common.KindDecodeFailed, path, err)
		}
		return img, nil
	case common.FormatTiff:
		f, err := os.Open(path)
		if err != nil {
			return nil, common.Wrap(common.KindDecodeFailed, path, err)
		}
		defer f.Close()
		img, err := tiff.Decode(f)
		if err != nil {
			return nil, common.Wrap(common.KindDecodeFailed, path, err)
		}
		return img, nil
	case common.FormatWebP:
		f, err := os.Open(path)
		if err != nil {
			return nil, common.Wrap(common.KindDecodeFailed, path, err)
		}
		defer f.Close()
		img, err := webp.Decode(f)
		if err != nil {
			return nil, common.Wrap(common.KindDecodeFailed, path, err)
		}
		return img, nil
	default:
		f, err := os.Open(path)
		if err != nil {
			return nil, common.Wrap(common.KindDecodeFailed, path, err)
		}
		defer f.Close()
		img, err := png.Decode(f)
		if err != nil {
			return nil, common.Wrap(common.KindDecodeFailed, path, err)
		}
		return img, nil
	}
}

func decodeViaExternalTool(path string, dec codec.ImageDecoder, unavailable error) (stdimage.Image, error) {
	if dec == nil {
		return nil, common.Wrap(common.KindDecodeFailed, path, unavailable)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, common.Wrap(common.KindDecodeFailed, path, err)
	}
	pixels, w, h, err := dec.DecodeToRGBA(context.Background(), data)
	if err != nil {
		return nil, common.Wrap(common.KindDecodeFailed, path, err)
	}
	return &stdimage.NRGBA{Pix: pixels, Stride: w * 4, Rect: stdimage.Rect(0, 0, w, h)}, nil
}

var (
	errHeicUnavailable = errors.New("HEIC decoding unavailable: no external HEIC decoder configured")
	errRawUnavailable  = errors.New("RAW decoding unavailable: no external RAW decoder configured")
)

// DetectBitDepth selects the encode bit depth from the source: JPEG is
// always 8-bit; 16-bit-channel sources encode at 10 or 12 bits (a user
// setting of 10 or 12 is kept, 9 and 11 become 10, any other value,
// 8 included, becomes 12); everything else stays 8-bit.
func DetectBitDepth(img stdimage.Image, format common.OriginalImageFormat, userSetting int) int {
	if format == common.FormatJpeg {
		return 8
	}
	if !has16BitChannel(img) {
		return 8
	}
	switch {
	case userSetting == 10 || userSetting == 12:
		return userSetting
	case userSetting >= 9 && userSetting <= 11:
		return 10
	default:
		return 12
	}
}

func has16BitChannel(img stdimage.Image) bool {
	switch img.(type) {
	case *stdimage.Gray16, *stdimage.RGBA64, *stdimage.NRGBA64:
		return true
	default:
		return false
	}
}

// ToRawImage converts img to packed interleaved pixels at the requested bit
// depth, preferring RGBA when the source carries an alpha channel.
func ToRawImage(img stdimage.Image, bitDepth int) codec.RawImage {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	hasAlpha := carriesAlpha(img)
	if bitDepth > 8 {
		return toRaw16(img, w, h, hasAlpha)
	}
	return toRaw8(img, w, h, hasAlpha)
}

func carriesAlpha(img stdimage.Image) bool {
	switch img.(type) {
	case *stdimage.RGBA, *stdimage.NRGBA, *stdimage.RGBA64, *stdimage.NRGBA64:
		return true
	default:
		return false
	}
}

func toRaw8(img stdimage.Image, w, h int, alpha bool) codec.RawImage {
	bounds := img.Bounds()
	channels := 3
	format := codec.FormatRGB24
	if alpha {
		channels = 4
		format = codec.FormatRGBA32
	}
	stride := w * channels
	pixels := make([]byte, stride*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, a := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			idx := y*stride + x*channels
			pixels[idx] = byte(r >> 8)
			pixels[idx+1] = byte(g >> 8)
			pixels[idx+2] = byte(b >> 8)
			if alpha {
				pixels[idx+3] = byte(a >> 8)
			}
		}
	}
	return codec.RawImage{Width: w, Height: h, Stride: stride, Format: format, BytesPerSample: 1, Pixels: pixels}
}

func toRaw16(img stdimage.Image, w, h int, alpha bool) codec.RawImage {
	bounds := img.Bounds()
	channels := 3
	format := codec.FormatRGB24
	if alpha {
		channels = 4
		format = codec.FormatRGBA32
	}
	stride := w * channels * 2
	pixels := make([]byte, stride*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, a := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			idx := y*stride + x*channels*2
			putLE16(pixels, idx, uint16(r))
			putLE16(pixels, idx+2, uint16(g))
			putLE16(pixels, idx+4, uint16(b))
			if alpha {
				putLE16(pixels, idx+6, uint16(a))
			}
		}
	}
	return codec.RawImage{Width: w, Height: h, Stride: stride, Format: format, BytesPerSample: 2, Pixels: pixels}
}

func putLE16(b []byte, i int, v uint16) {
	b[i] = byte(v)
	b[i+1] = byte(v >> 8)
}

// ConvertToPNGIntermediate decodes a non-JPEG source and re-encodes it as
// PNG, the lossless intermediate every format except JPEG passes through
// ahead of BPG recompression (JPEG skips straight to recompression).
func ConvertToPNGIntermediate(input, output string, format common.OriginalImageFormat, dec Decoders) error {
	img, err := Decode(input, format, dec)
	if err != nil {
		return err
	}
	f, err := os.Create(output)
	if err != nil {
		return common.Wrap(common.KindEncodeFailed, output, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		return common.Wrap(common.KindEncodeFailed, output, err)
	}
	return nil
}

// OriginalExtension returns the lowercase extension (no dot) of path.
func OriginalExtension(path string) string {
	ext := filepath.Ext(path)
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}
