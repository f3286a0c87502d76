// Package extract unpacks a sealed archive back to a directory tree,
// optionally decoding recompressed images back to their original container
// format.
package extract

import (
	"context"
	"encoding/json"
	stdimage "image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/legeapp/openarc/pkg/codec"
	"github.com/legeapp/openarc/pkg/common"
	"github.com/legeapp/openarc/pkg/container"
	"github.com/legeapp/openarc/pkg/settings"
)

// Result summarises one extraction run.
type Result struct {
	FilesExtracted int
	ImagesDecoded  int
	TotalBytes     int64
}

// Archive unpacks archivePath into destDir verbatim: every media/misc file
// keeps its staged name, still BPG-compressed where applicable.
func Archive(archivePath, destDir string) (*Result, error) {
	if err := container.Extract(archivePath, destDir); err != nil {
		return nil, err
	}
	return statDir(destDir)
}

// DecodeDeps carries the external codec seams an extraction run may use:
// the still-image decoder (the BPG side of the round trip; may be nil only
// if the archive contains no images) and an optional HEIC re-encoder. With
// no HEIC encoder, HEIC sources stay restored as PNG.
type DecodeDeps struct {
	Image codec.ImageDecoder
	Heic  codec.HeicEncoder
}

// ArchiveWithDecoding unpacks archivePath and, when s.DecodeImages is set,
// decodes every recompressed image back to its recorded original format.
// Per-image decode failures keep the compressed artefact in place and never
// abort the rest of the extraction.
func ArchiveWithDecoding(ctx context.Context, archivePath, destDir string, s settings.ExtractionSettings, deps DecodeDeps) (*Result, error) {
	if err := container.Extract(archivePath, destDir); err != nil {
		return nil, err
	}

	decoded := 0
	if s.DecodeImages {
		var err error
		decoded, err = decodeImages(ctx, destDir, deps, s)
		if err != nil {
			return nil, err
		}
	}

	if err := os.Remove(filepath.Join(destDir, container.MetadataFilename)); err != nil && !os.IsNotExist(err) {
		return nil, common.Wrap(common.KindStagingIoFailure, destDir, err)
	}

	result, err := statDir(destDir)
	if err != nil {
		return nil, err
	}
	result.ImagesDecoded = decoded
	return result, nil
}

func decodeImages(ctx context.Context, destDir string, deps DecodeDeps, s settings.ExtractionSettings) (int, error) {
	metaPath := filepath.Join(destDir, container.MetadataFilename)
	data, err := os.ReadFile(metaPath)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, common.Wrap(common.KindInputUnreadable, metaPath, err)
	}

	var meta common.ArchiveMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return 0, common.Wrap(common.KindDecodeFailed, metaPath, err)
	}

	decoded := 0
	for _, img := range meta.Images {
		if deps.Image == nil {
			break
		}
		bpgPath := filepath.Join(destDir, "media", img.BPGFilename)
		if err := decodeOne(ctx, bpgPath, img, deps, s); err != nil {
			log.Warn().Err(err).Str("file", img.BPGFilename).Msg("keeping compressed artefact after decode failure")
			continue
		}
		decoded++
	}
	return decoded, nil
}

// decodeOne restores a single recompressed image to its original container
// format, deleting the compressed artefact on success.
func decodeOne(ctx context.Context, bpgPath string, img common.ImageMetadata, deps DecodeDeps, s settings.ExtractionSettings) error {
	bpgData, err := os.ReadFile(bpgPath)
	if err != nil {
		return common.Wrap(common.KindInputUnreadable, bpgPath, err)
	}
	pixels, w, h, err := deps.Image.DecodeToRGBA(ctx, bpgData)
	if err != nil {
		return common.Wrap(common.KindDecodeFailed, bpgPath, err)
	}
	rgba := &stdimage.NRGBA{Pix: pixels, Stride: w * 4, Rect: stdimage.Rect(0, 0, w, h)}

	outPath := restoredPath(bpgPath, img.OriginalFilename, img.OriginalFormat)

	// HEIC goes through a PNG intermediate; the .heic name is only claimed
	// once the re-encode actually succeeds.
	if img.OriginalFormat == common.FormatHeic {
		pngPath := strings.TrimSuffix(outPath, filepath.Ext(outPath)) + ".png"
		if err := writeDecoded(pngPath, rgba, img.OriginalFormat, s.JpegQuality); err != nil {
			return err
		}
		if deps.Heic != nil {
			if err := deps.Heic.EncodeFromPNGFile(ctx, pngPath, outPath, s.HeicQuality); err != nil {
				log.Warn().Err(err).Str("file", filepath.Base(pngPath)).Msg("HEIC re-encode unavailable, keeping PNG")
			} else {
				os.Remove(pngPath)
			}
		}
	} else if err := writeDecoded(outPath, rgba, img.OriginalFormat, s.JpegQuality); err != nil {
		return err
	}

	if outPath != bpgPath {
		if err := os.Remove(bpgPath); err != nil && !os.IsNotExist(err) {
			return common.Wrap(common.KindStagingIoFailure, bpgPath, err)
		}
	}
	return nil
}

func restoredPath(bpgPath, originalFilename string, format common.OriginalImageFormat) string {
	dir := filepath.Dir(bpgPath)
	stem := strings.TrimSuffix(originalFilename, filepath.Ext(originalFilename))
	return filepath.Join(dir, stem+"."+format.ExtractionExtension())
}

func writeDecoded(outPath string, img stdimage.Image, format common.OriginalImageFormat, jpegQuality uint8) error {
	f, err := os.Create(outPath)
	if err != nil {
		return common.Wrap(common.KindStagingIoFailure, outPath, err)
	}
	defer f.Close()

	if format == common.FormatJpeg {
		return wrapEncodeErr(jpeg.Encode(f, img, &jpeg.Options{Quality: int(jpegQuality)}), outPath)
	}
	// Everything else lands on PNG here: RAW/TIFF/BMP/WebP because PNG was
	// always their lossless intermediate on the way in, HEIC because its
	// re-encode (if any) runs as a separate pass over this PNG.
	return wrapEncodeErr(png.Encode(f, img), outPath)
}

func wrapEncodeErr(err error, path string) error {
	if err == nil {
		return nil
	}
	return common.Wrap(common.KindEncodeFailed, path, err)
}

// Entry streams a single archived entry out without extracting the rest.
func Entry(archivePath, entryRelPath, outputPath string) error {
	return container.ExtractEntry(archivePath, entryRelPath, outputPath)
}

// ListContents returns the archive's manifest-backed listing.
func ListContents(archivePath string) ([]common.ListedArchiveFile, error) {
	return container.List(archivePath)
}

func statDir(root string) (*Result, error) {
	res := &Result{}
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		res.FilesExtracted++
		res.TotalBytes += info.Size()
		return nil
	})
	if err != nil {
		return nil, common.Wrap(common.KindStagingIoFailure, root, err)
	}
	return res, nil
}
