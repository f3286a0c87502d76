// Package common holds the tagged-sum types shared across the archiver
// pipeline: file classification, original image format, and the per-file
// and per-archive records the orchestrator accumulates during a run.
package common

import "time"

// FileClass is a finite tagged sum over the three kinds of input the
// orchestrator routes to different work kernels. Extensions are parsed
// exactly once, at classification time.
type FileClass string

const (
	ClassImage FileClass = "image"
	ClassVideo FileClass = "video"
	ClassMisc  FileClass = "misc"
)

// OriginalImageFormat is the only piece of information about an image's
// original container that must survive the recompression round trip.
type OriginalImageFormat string

const (
	FormatJpeg OriginalImageFormat = "Jpeg"
	FormatPng  OriginalImageFormat = "Png"
	FormatHeic OriginalImageFormat = "Heic"
	FormatRaw  OriginalImageFormat = "Raw"
	FormatTiff OriginalImageFormat = "Tiff"
	FormatBmp  OriginalImageFormat = "Bmp"
	FormatWebP OriginalImageFormat = "WebP"
)

// ExtractionExtension returns the file extension extraction should restore
// this format to.
func (f OriginalImageFormat) ExtractionExtension() string {
	switch f {
	case FormatJpeg:
		return "jpg"
	case FormatHeic:
		return "heic"
	default:
		return "png"
	}
}

// NeedsPNGIntermediate reports whether the image recompression path must
// decode this format to an RGB(A) pixel buffer via a PNG round trip rather
// than handing the codec the source bytes directly.
func (f OriginalImageFormat) NeedsPNGIntermediate() bool {
	return f != FormatJpeg
}

// ClassifyExtension maps a lowercase, dot-less file extension to a
// (FileClass, OriginalImageFormat) pair. Everything unrecognised is Misc.
func ClassifyExtension(ext string) (FileClass, OriginalImageFormat) {
	switch ext {
	case "jpg", "jpeg":
		return ClassImage, FormatJpeg
	case "png":
		return ClassImage, FormatPng
	case "heic", "heif", "hif":
		return ClassImage, FormatHeic
	case "cr2", "cr3", "nef", "arw", "dng", "orf", "rw2", "raf", "pef", "srw":
		return ClassImage, FormatRaw
	case "tiff", "tif":
		return ClassImage, FormatTiff
	case "bmp":
		return ClassImage, FormatBmp
	case "webp":
		return ClassImage, FormatWebP
	case "mp4", "mov", "avi", "mkv", "webm", "m4v", "3gp", "flv", "wmv", "mts", "m2ts":
		return ClassVideo, ""
	default:
		return ClassMisc, ""
	}
}

// ImageMetadata is one entry in the archive-metadata blob's "images" array.
type ImageMetadata struct {
	OriginalFilename  string              `json:"original_filename"`
	OriginalFormat    OriginalImageFormat `json:"original_format"`
	OriginalExtension string              `json:"original_extension"`
	BPGFilename       string              `json:"bpg_filename"`
}

// ArchiveMetadata is OPENARC_METADATA.json's schema.
type ArchiveMetadata struct {
	Version   uint32          `json:"version"`
	CreatedAt int64           `json:"created_at"`
	Images    []ImageMetadata `json:"images"`
}

// NewArchiveMetadata returns the default empty metadata blob for a new run.
func NewArchiveMetadata(now time.Time) *ArchiveMetadata {
	return &ArchiveMetadata{
		Version:   1,
		CreatedAt: now.Unix(),
		Images:    []ImageMetadata{},
	}
}

// ProcessedFile records what happened to one input file during a run.
type ProcessedFile struct {
	OriginalPath      string
	Class             FileClass
	ArchivedRelPath   string
	OriginalSize      int64
	OutputSize        int64
	SHA256            string
	SkippedProcessing bool
	OriginalFormat    OriginalImageFormat
	HasOriginalFormat bool
}

// ListedArchiveFile is one row of list_archive_contents' result.
type ListedArchiveFile struct {
	Filename       string
	OriginalSize   int64
	CompressedSize int64
	FileType       FileClass
}

// OrchestratorResult is create_archive's success return value. Warnings
// collects the non-fatal problems of a run: per-file encode failures (those
// files are omitted from the manifest) and catalog/registry write failures
// after a successful seal (the archive itself is still valid).
type OrchestratorResult struct {
	Discovered       []string
	Processed        []ProcessedFile
	SkippedByCatalog []string
	DedupGroups      int
	Warnings         []string
}

// ProgressFunc is the orchestrator's progress callback shape: completed
// count so far, total task count, and a human-displayable name for the
// just-finished task.
type ProgressFunc func(completed, total int, name string)
