package container

import (
	"archive/tar"
	"io"
	"os"
	"sort"

	"github.com/klauspost/compress/zstd"

	"github.com/legeapp/openarc/pkg/common"
)

// List returns the archive's user-facing contents. MANIFEST.txt, when
// present and non-empty, is authoritative for sizes; this hides internal
// control files (metadata JSON, hash sidecar, the manifest itself) without
// needing to special-case them against the tar stream directly. Falls back
// to the raw tar entries (still hiding internal files) if no manifest could
// be parsed.
func List(archivePath string) ([]common.ListedArchiveFile, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return nil, common.Wrap(common.KindInputUnreadable, archivePath, err)
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return nil, common.Wrap(common.KindDecodeFailed, archivePath, err)
	}
	defer zr.Close()

	tr := tar.NewReader(zr)

	type rawEntry struct {
		name string
		size int64
	}
	var rawEntries []rawEntry
	var manifestText string

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, common.Wrap(common.KindDecodeFailed, archivePath, err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		rel := normalizeRelPath(hdr.Name)
		if rel == ManifestFilename {
			buf := make([]byte, hdr.Size)
			if _, err := io.ReadFull(tr, buf); err != nil {
				return nil, common.Wrap(common.KindDecodeFailed, archivePath, err)
			}
			manifestText = string(buf)
			continue
		}
		rawEntries = append(rawEntries, rawEntry{name: rel, size: hdr.Size})
	}

	var out []common.ListedArchiveFile
	if sizeMap := ParseManifestSizes(manifestText); len(sizeMap) > 0 {
		out = make([]common.ListedArchiveFile, 0, len(sizeMap))
		for name, sizes := range sizeMap {
			out = append(out, common.ListedArchiveFile{
				Filename:       name,
				OriginalSize:   sizes[0],
				CompressedSize: sizes[1],
				FileType:       detectFileTypeFromName(name),
			})
		}
	} else {
		out = make([]common.ListedArchiveFile, 0, len(rawEntries))
		for _, e := range rawEntries {
			if isInternalFile(e.name) {
				continue
			}
			out = append(out, common.ListedArchiveFile{
				Filename:       e.name,
				OriginalSize:   e.size,
				CompressedSize: e.size,
				FileType:       detectFileTypeFromName(e.name),
			})
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Filename < out[j].Filename })
	return out, nil
}
