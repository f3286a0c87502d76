package codec

import (
	"bufio"
	"fmt"
	"image"
	"image/png"
	"os"
)

// writePPM writes img as a binary PPM (P6), the simplest format the bpg
// reference encoder accepts as raw input. Alpha, if present, is dropped:
// the reference encoder takes alpha via a side-channel the exec wrapper
// does not need, since archived images recompress color data only.
func writePPM(path string, img RawImage) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	bw := bufio.NewWriter(f)
	fmt.Fprintf(bw, "P6\n%d %d\n255\n", img.Width, img.Height)

	channels := 3
	if img.Format == FormatRGBA32 {
		channels = 4
	}
	bytesPerSample := img.BytesPerSample
	if bytesPerSample == 0 {
		bytesPerSample = 1
	}

	// 16-bit samples are little-endian; PPM at maxval 255 wants the high
	// byte of each sample.
	hi := 0
	if bytesPerSample == 2 {
		hi = 1
	}

	row := make([]byte, img.Width*3)
	for y := 0; y < img.Height; y++ {
		rowStart := y * img.Stride
		for x := 0; x < img.Width; x++ {
			px := rowStart + x*channels*bytesPerSample
			for c := 0; c < 3; c++ {
				row[x*3+c] = img.Pixels[px+c*bytesPerSample+hi]
			}
		}
		if _, err := bw.Write(row); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func decodeRGBAFromPNGFile(path string) ([]byte, int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, 0, err
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		return nil, 0, 0, err
	}
	pixels, w, h := rgbaFromImage(img)
	return pixels, w, h, nil
}

// rgbaFromImage flattens any decoded image into packed interleaved RGBA8.
func rgbaFromImage(img image.Image) ([]byte, int, int) {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	out := make([]byte, w*h*4)
	idx := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, a := img.At(x, y).RGBA()
			out[idx] = byte(r >> 8)
			out[idx+1] = byte(g >> 8)
			out[idx+2] = byte(b >> 8)
			out[idx+3] = byte(a >> 8)
			idx += 4
		}
	}
	return out, w, h
}
