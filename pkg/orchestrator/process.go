package orchestrator

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/legeapp/openarc/pkg/codec"
	"github.com/legeapp/openarc/pkg/common"
	"github.com/legeapp/openarc/pkg/container"
	"github.com/legeapp/openarc/pkg/hashutil"
	"github.com/legeapp/openarc/pkg/image"
	"github.com/legeapp/openarc/pkg/settings"
	"github.com/legeapp/openarc/pkg/video"
)

// processWorkItem runs one input file through its class-specific path and
// returns the record to fold into the run's manifest/hash sidecar. The
// memory-gate comparisons run highest threshold first so the heavier
// response fires at the heavier pressure level.
func processWorkItem(ctx context.Context, item workItem, layout *container.StagingLayout, s settings.Settings, deps Dependencies, heavySem *semaphore.Weighted, mu *sync.Mutex, metadata *common.ArchiveMetadata) (common.ProcessedFile, error) {
	if usage, err := CheckMemoryUsage(); err == nil {
		switch {
		case usage > 0.95:
			return common.ProcessedFile{}, common.Wrap(common.KindEncodeFailed, item.input, fmt.Errorf("insufficient memory to start task (%.0f%% used)", usage*100))
		case usage > 0.90:
			time.Sleep(500 * time.Millisecond)
		case usage > 0.85:
			time.Sleep(100 * time.Millisecond)
		}
	}

	info, err := os.Stat(item.input)
	if err != nil {
		return common.ProcessedFile{}, common.Wrap(common.KindInputUnreadable, item.input, err)
	}
	originalSize := info.Size()

	base := filepath.Base(item.input)
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	var relPath, outPath string
	skippedProcessing := false

	switch item.class {
	case common.ClassImage:
		relPath, outPath, skippedProcessing, err = processImage(ctx, item, layout, s, deps, heavySem, originalSize, base, stem, mu, metadata)
	case common.ClassVideo:
		relPath, outPath, skippedProcessing, err = processVideo(ctx, item, layout, s, deps, heavySem, originalSize, base, stem)
	default:
		relPath, outPath, err = processMisc(item, layout, base)
	}
	if err != nil {
		return common.ProcessedFile{}, err
	}

	var outputSize int64
	if outInfo, statErr := os.Stat(outPath); statErr == nil {
		outputSize = outInfo.Size()
	}
	sum, err := hashutil.Sha256File(outPath)
	if err != nil {
		return common.ProcessedFile{}, err
	}

	return common.ProcessedFile{
		OriginalPath:      item.input,
		Class:             item.class,
		ArchivedRelPath:   relPath,
		OriginalSize:      originalSize,
		OutputSize:        outputSize,
		SHA256:            sum,
		SkippedProcessing: skippedProcessing,
		OriginalFormat:    item.format,
		HasOriginalFormat: item.hasFmt,
	}, nil
}

func processImage(ctx context.Context, item workItem, layout *container.StagingLayout, s settings.Settings, deps Dependencies, heavySem *semaphore.Weighted, originalSize int64, base, stem string, mu *sync.Mutex, metadata *common.ArchiveMetadata) (relPath, outPath string, skipped bool, err error) {
	heavy := originalSize > heavyImageThreshold
	if heavy {
		if err := heavySem.Acquire(ctx, 1); err != nil {
			return "", "", false, err
		}
		defer heavySem.Release(1)
	}

	opts := image.EncodeOptions{
		Format: item.format,
		BaseCfg: codec.EncodeConfig{
			Quality:          s.BpgQuality,
			Lossless:         s.BpgLossless,
			ChromaFormat:     s.BpgChromaFormat,
			EncoderType:      s.BpgEncoderType,
			CompressionLevel: s.BpgCompressionLevel,
		},
		Encoder:  deps.ImageEncoder,
		Decoders: image.Decoders{Heic: deps.HeicDecoder, Raw: deps.RawDecoder},
	}

	result, err := image.Encode(ctx, item.input, opts, s.BpgBitDepth)
	if err != nil {
		return "", "", false, err
	}

	if result.Skipped {
		ext := imageExt(item.input)
		filename := fmt.Sprintf("%s_%d.%s", stem, item.idx, ext)
		outPath = filepath.Join(layout.MediaDir, filename)
		if err := copyFile(item.input, outPath); err != nil {
			return "", "", false, err
		}
		return "media/" + filename, outPath, true, nil
	}

	filename := fmt.Sprintf("%s_%d.bpg", stem, item.idx)
	outPath = filepath.Join(layout.MediaDir, filename)
	if err := os.WriteFile(outPath, result.Bytes, 0o644); err != nil {
		return "", "", false, common.Wrap(common.KindStagingIoFailure, outPath, err)
	}

	mu.Lock()
	metadata.Images = append(metadata.Images, common.ImageMetadata{
		OriginalFilename:  base,
		OriginalFormat:    item.format,
		OriginalExtension: imageExt(item.input),
		BPGFilename:       filename,
	})
	mu.Unlock()

	return "media/" + filename, outPath, false, nil
}

func processVideo(ctx context.Context, item workItem, layout *container.StagingLayout, s settings.Settings, deps Dependencies, heavySem *semaphore.Weighted, originalSize int64, base, stem string) (relPath, outPath string, skipped bool, err error) {
	shouldSkip := deps.VideoEncoder == nil
	if !shouldSkip && s.SkipAlreadyCompressedVideos && deps.Prober != nil {
		analysis, ok := video.Analyze(ctx, deps.Prober, item.input, originalSize)
		shouldSkip = ok && analysis.IsEfficientlyCompressed
	}

	if shouldSkip {
		outPath = filepath.Join(layout.MediaDir, base)
		if err := copyFile(item.input, outPath); err != nil {
			return "", "", false, err
		}
		return "media/" + base, outPath, true, nil
	}

	if err := heavySem.Acquire(ctx, 1); err != nil {
		return "", "", false, err
	}
	defer heavySem.Release(1)

	filename := stem + ".mp4"
	outPath = filepath.Join(layout.MediaDir, filename)
	if err := video.EncodeWithMemoryConstraints(ctx, deps.VideoEncoder, item.input, outPath, s.VideoPreset, s.VideoCRF, CheckMemoryUsage); err != nil {
		os.Remove(outPath)
		return "", "", false, err
	}
	return "media/" + filename, outPath, false, nil
}

func processMisc(item workItem, layout *container.StagingLayout, base string) (relPath, outPath string, err error) {
	outPath = filepath.Join(layout.MiscDir, base)
	if err := copyFile(item.input, outPath); err != nil {
		return "", "", err
	}
	return "misc/" + base, outPath, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return common.Wrap(common.KindInputUnreadable, src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return common.Wrap(common.KindStagingIoFailure, dst, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return common.Wrap(common.KindStagingIoFailure, dst, err)
	}
	return nil
}
