package container

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/legeapp/openarc/pkg/common"
)

// ManifestEntry is one processed-file row in MANIFEST.txt.
type ManifestEntry struct {
	OriginalPath      string
	ArchivedRelPath   string
	OriginalSize      int64
	OutputSize        int64
	SkippedProcessing bool
	OriginalFormat    common.OriginalImageFormat
	HasFormat         bool
}

// WriteManifest writes MANIFEST.txt in the archiver's fixed textual format:
// a two-line header, a blank line, two summary lines, a blank line, then one
// record per processed file.
func WriteManifest(entries []ManifestEntry, skippedByCatalogCount int, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return common.Wrap(common.KindStagingIoFailure, path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintln(w, "OpenArc Archive Manifest")
	fmt.Fprintln(w, "========================")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Processed files: %d\n", len(entries))
	fmt.Fprintf(w, "Skipped by catalog: %d\n", skippedByCatalogCount)
	fmt.Fprintln(w)

	for _, e := range entries {
		formatInfo := ""
		if e.HasFormat {
			formatInfo = fmt.Sprintf(" [orig: %s]", e.OriginalFormat)
		}
		skippedInfo := ""
		if e.SkippedProcessing {
			skippedInfo = " [skipped_processing]"
		}
		fmt.Fprintf(w, "%s -> %s (%d -> %d)%s%s\n",
			e.OriginalPath, e.ArchivedRelPath, e.OriginalSize, e.OutputSize, skippedInfo, formatInfo)
	}

	return w.Flush()
}

var manifestLineRe = regexp.MustCompile(`^(.*) -> (.*) \((\d+) -> (\d+)\)`)

// ParseManifestSizes parses MANIFEST.txt's records into a rel-path -> (orig,
// compressed) size map, used by listing to report authoritative sizes
// without re-reading every tar entry.
func ParseManifestSizes(manifestText string) map[string][2]int64 {
	out := make(map[string][2]int64)
	for _, line := range strings.Split(manifestText, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || !strings.Contains(line, " -> ") {
			continue
		}
		m := manifestLineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		rel := normalizeRelPath(m[2])
		orig, err1 := strconv.ParseInt(m[3], 10, 64)
		comp, err2 := strconv.ParseInt(m[4], 10, 64)
		if err1 != nil || err2 != nil {
			continue
		}
		out[rel] = [2]int64{orig, comp}
	}
	return out
}

func normalizeRelPath(p string) string {
	p = strings.TrimPrefix(p, "./")
	p = strings.TrimPrefix(p, "/")
	return strings.ReplaceAll(p, "\\", "/")
}

// isInternalFile reports whether name is one of the archive's own control
// files rather than a user-facing archived entry.
func isInternalFile(name string) bool {
	lower := strings.ToLower(name)
	return lower == strings.ToLower(MetadataFilename) ||
		lower == strings.ToLower(HashesFilename) ||
		lower == strings.ToLower(ManifestFilename)
}

// detectFileTypeFromName classifies a listed archive entry by extension
// into the coarse image/video/misc grouping used for display.
func detectFileTypeFromName(name string) common.FileClass {
	lower := strings.ToLower(name)
	idx := strings.LastIndex(lower, ".")
	ext := ""
	if idx >= 0 {
		ext = lower[idx+1:]
	}
	switch ext {
	case "bpg", "jpg", "jpeg", "png", "bmp", "tif", "tiff", "webp", "heic", "heif", "ico",
		"jp2", "j2k", "j2c", "jpc", "jpt", "jph", "jhc",
		"dng", "cr2", "nef", "arw", "orf", "rw2", "raf":
		return common.ClassImage
	case "mp4", "mov", "m4v", "avi", "mkv", "wmv", "webm":
		return common.ClassVideo
	default:
		return common.ClassMisc
	}
}
