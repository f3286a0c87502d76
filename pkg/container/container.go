// Package container builds and unpacks the final `.tar.zst` archive: a
// staging directory layout (media/, optional misc/, manifest, hash
// sidecar, metadata JSON) sealed into a single tar-over-zstd file, and the
// inverse extraction/listing operations.
package container

import (
	"archive/tar"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"github.com/legeapp/openarc/pkg/common"
)

const (
	MetadataFilename = "OPENARC_METADATA.json"
	HashesFilename   = "HASHES.sha256"
	ManifestFilename = "MANIFEST.txt"
	MiscArcFilename  = "misc.arc"
)

// StagingLayout is the set of directories/files assembled under a temporary
// root before sealing. media/ is always created; misc/ is created only when
// there is at least one misc file, since an empty directory entry in a tar
// stream causes problems for some extractors on Windows.
type StagingLayout struct {
	Root     string
	MediaDir string
	MiscDir  string
}

// NewStagingLayout creates root/media (and root/misc, when hasMiscFiles) and
// returns their paths.
func NewStagingLayout(root string, hasMiscFiles bool) (*StagingLayout, error) {
	media := filepath.Join(root, "media")
	if err := os.MkdirAll(media, 0o755); err != nil {
		return nil, common.Wrap(common.KindStagingIoFailure, media, err)
	}
	layout := &StagingLayout{Root: root, MediaDir: media}
	if hasMiscFiles {
		misc := filepath.Join(root, "misc")
		if err := os.MkdirAll(misc, 0o755); err != nil {
			return nil, common.Wrap(common.KindStagingIoFailure, misc, err)
		}
		layout.MiscDir = misc
	}
	return layout, nil
}

// Seal tars stagingRoot and writes it, zstd-compressed, to outputPath.
func Seal(stagingRoot, outputPath string, level int) error {
	out, err := os.Create(outputPath)
	if err != nil {
		return common.Wrap(common.KindContainerSealFailed, outputPath, err)
	}
	defer out.Close()

	zw, err := zstd.NewWriter(out, zstd.WithEncoderLevel(levelFor(level)))
	if err != nil {
		return common.Wrap(common.KindContainerSealFailed, outputPath, err)
	}
	defer zw.Close()

	tw := tar.NewWriter(zw)
	defer tw.Close()

	err = filepath.WalkDir(stagingRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(stagingRoot, path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
	if err != nil {
		return common.Wrap(common.KindContainerSealFailed, outputPath, err)
	}

	if err := tw.Close(); err != nil {
		return common.Wrap(common.KindContainerSealFailed, outputPath, err)
	}
	return zw.Close()
}

func levelFor(level int) zstd.EncoderLevel {
	switch {
	case level <= 1:
		return zstd.SpeedFastest
	case level <= 6:
		return zstd.SpeedDefault
	case level <= 12:
		return zstd.SpeedBetterCompression
	default:
		return zstd.SpeedBestCompression
	}
}

// Extract unpacks archivePath into destDir. It implements hashutil.ExtractFunc.
func Extract(archivePath, destDir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return common.Wrap(common.KindInputUnreadable, archivePath, err)
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return common.Wrap(common.KindDecodeFailed, archivePath, err)
	}
	defer zr.Close()

	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return common.Wrap(common.KindDecodeFailed, archivePath, err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		target := filepath.Join(destDir, filepath.FromSlash(hdr.Name))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return common.Wrap(common.KindStagingIoFailure, target, err)
		}
		out, err := os.Create(target)
		if err != nil {
			return common.Wrap(common.KindStagingIoFailure, target, err)
		}
		if _, err := io.Copy(out, tr); err != nil {
			out.Close()
			return common.Wrap(common.KindDecodeFailed, target, err)
		}
		out.Close()
	}
	return nil
}

// ExtractEntry streams a single named tar entry out of archivePath without
// materializing the rest of the archive.
func ExtractEntry(archivePath, entryName, outputPath string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return common.Wrap(common.KindInputUnreadable, archivePath, err)
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return common.Wrap(common.KindDecodeFailed, archivePath, err)
	}
	defer zr.Close()

	tr := tar.NewReader(zr)
	normalized := normalizeRelPath(entryName)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return common.Wrap(common.KindDecodeFailed, archivePath, err)
		}
		if hdr.Typeflag != tar.TypeReg || normalizeRelPath(hdr.Name) != normalized {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
			return common.Wrap(common.KindStagingIoFailure, outputPath, err)
		}
		out, err := os.Create(outputPath)
		if err != nil {
			return common.Wrap(common.KindStagingIoFailure, outputPath, err)
		}
		defer out.Close()
		if _, err := io.Copy(out, tr); err != nil {
			return common.Wrap(common.KindDecodeFailed, outputPath, err)
		}
		return nil
	}
	return common.Wrap(common.KindInputUnreadable, entryName, errEntryNotFound)
}

var errEntryNotFound = fileNotFoundErr("entry not found in archive")

type fileNotFoundErr string

func (e fileNotFoundErr) Error() string { return string(e) }
