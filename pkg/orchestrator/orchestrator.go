// Package orchestrator drives the end-to-end archive-creation pipeline:
// discover, consult the catalog, dedup, classify, stage, encode
// concurrently, seal the misc substream, write the manifest and hash
// sidecar, seal the container, and record catalog/registry state.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/legeapp/openarc/pkg/catalog"
	"github.com/legeapp/openarc/pkg/common"
	"github.com/legeapp/openarc/pkg/container"
	"github.com/legeapp/openarc/pkg/hashutil"
	"github.com/legeapp/openarc/pkg/misc"
	"github.com/legeapp/openarc/pkg/progress"
	"github.com/legeapp/openarc/pkg/registry"
	"github.com/legeapp/openarc/pkg/settings"
)

// heavyTaskCapacity bounds concurrent large-image/video tasks independent
// of the worker-pool's overall thread count, to avoid simultaneous memory
// spikes from several heavy encodes at once.
const heavyTaskCapacity = 2

// heavyImageThreshold is the input size above which an image encode must
// acquire a heavy-task permit alongside every video encode.
const heavyImageThreshold = 50_000_000

// baseThreadCount is the worker-pool size before memory-pressure scaling.
const baseThreadCount = 5

type workItem struct {
	idx    int
	input  string
	class  common.FileClass
	format common.OriginalImageFormat
	hasFmt bool
}

// CreateArchive runs the full archival pipeline for inputPaths, writing the
// sealed container to outputArchive.
func CreateArchive(ctx context.Context, inputPaths []string, outputArchive string, s settings.Settings, deps Dependencies, progressFn common.ProgressFunc) (*common.OrchestratorResult, error) {
	discovered, err := CollectFiles(inputPaths)
	if err != nil {
		return nil, err
	}
	if len(discovered) == 0 {
		return &common.OrchestratorResult{}, nil
	}

	var cat *catalog.Catalog
	if s.EnableCatalog {
		cat, err = catalog.Open(catalog.PathFor(outputArchive))
		if err != nil {
			return nil, err
		}
		defer cat.Close()
	}

	var skippedByCatalog, toProcess []string
	if cat != nil {
		skippedByCatalog, toProcess, err = cat.Filter(discovered)
		if err != nil {
			return nil, err
		}
	} else {
		toProcess = discovered
	}
	skipSet := toSet(skippedByCatalog)

	dedupCanon := make(map[string]string)  // sha256 -> canonical path
	duplicateOf := make(map[string]string) // path -> canonical path
	if s.EnableDedup {
		for _, p := range toProcess {
			sum, err := hashutil.Sha256File(p)
			if err != nil {
				continue // unreadable input: leave it out of the dedup map, it still gets processed/fails on its own
			}
			if canon, ok := dedupCanon[sum]; ok {
				duplicateOf[p] = canon
			} else {
				dedupCanon[sum] = p
			}
		}
	}

	var work []workItem
	for idx, p := range discovered {
		if skipSet[p] {
			continue
		}
		if canon, isDup := duplicateOf[p]; isDup && canon != p {
			continue
		}
		class, format := common.ClassifyExtension(imageExt(p))
		work = append(work, workItem{idx: idx, input: p, class: class, format: format, hasFmt: class == common.ClassImage})
	}

	stagingRoot := s.StagingDir
	if stagingRoot == "" {
		stagingRoot = os.TempDir()
	}
	tempDir := filepath.Join(stagingRoot, "openarc-"+uuid.NewString())
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return nil, common.Wrap(common.KindStagingIoFailure, tempDir, err)
	}
	defer os.RemoveAll(tempDir)

	hasMisc := false
	for _, w := range work {
		if w.class == common.ClassMisc {
			hasMisc = true
			break
		}
	}
	layout, err := container.NewStagingLayout(tempDir, hasMisc)
	if err != nil {
		return nil, err
	}

	reporter := progress.NewReporter(len(work), progress.Func(progressFn))

	var mu sync.Mutex
	var processed []common.ProcessedFile
	var warnings []string
	var firstFatal error
	var metadata = common.NewArchiveMetadata(time.Now())

	threads := optimalThreadCount(baseThreadCount)
	heavySem := semaphore.NewWeighted(heavyTaskCapacity)

	var wg sync.WaitGroup
	sem := semaphore.NewWeighted(int64(threads))
	for _, item := range work {
		item := item
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			pf, err := processWorkItem(ctx, item, layout, s, deps, heavySem, &mu, metadata)
			if err != nil {
				mu.Lock()
				if isFatalWorkerErr(err) {
					if firstFatal == nil {
						firstFatal = err
					}
				} else {
					warnings = append(warnings, fmt.Sprintf("%s: %v", item.input, err))
				}
				mu.Unlock()
				log.Warn().Err(err).Str("path", item.input).Msg("skipping file after processing error")
				reporter.Report(filepath.Base(item.input))
				return
			}
			mu.Lock()
			processed = append(processed, pf)
			mu.Unlock()
			reporter.Report(filepath.Base(item.input))
		}()
	}
	wg.Wait()
	reporter.Close()

	if firstFatal != nil {
		return nil, firstFatal
	}

	metadataPath := filepath.Join(tempDir, container.MetadataFilename)
	metadataJSON, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return nil, common.Wrap(common.KindStagingIoFailure, metadataPath, err)
	}
	if err := os.WriteFile(metadataPath, metadataJSON, 0o644); err != nil {
		return nil, common.Wrap(common.KindStagingIoFailure, metadataPath, err)
	}

	miscArcPath := filepath.Join(tempDir, container.MiscArcFilename)
	if hasMisc {
		if err := sealMiscArc(processed, miscArcPath, s.CompressionLevel); err != nil {
			return nil, err
		}
	}

	manifestPath := filepath.Join(tempDir, container.ManifestFilename)
	if err := writeManifest(processed, len(skippedByCatalog), manifestPath); err != nil {
		return nil, err
	}

	hashesPath := filepath.Join(tempDir, container.HashesFilename)
	if err := writeHashes(processed, miscArcPath, manifestPath, hashesPath); err != nil {
		return nil, err
	}

	if err := container.Seal(tempDir, outputArchive, s.CompressionLevel); err != nil {
		return nil, err
	}

	// Catalog/registry failures past this point never mask the sealed
	// archive: the file on disk is already valid.
	if cat != nil {
		if err := recordCatalogEntries(cat, processed, outputArchive); err != nil {
			log.Warn().Err(err).Msg("catalog update failed after seal")
			warnings = append(warnings, fmt.Sprintf("catalog update failed: %v", err))
		}
	}
	if err := recordRegistry(outputArchive, processed); err != nil {
		log.Warn().Err(err).Msg("registry update failed after seal")
		warnings = append(warnings, fmt.Sprintf("registry update failed: %v", err))
	}

	// A dedup group is a content hash that occurred more than once; unique
	// files do not form groups.
	groupCanon := make(map[string]bool)
	for _, canon := range duplicateOf {
		groupCanon[canon] = true
	}

	return &common.OrchestratorResult{
		Discovered:       discovered,
		Processed:        processed,
		SkippedByCatalog: skippedByCatalog,
		DedupGroups:      len(groupCanon),
		Warnings:         warnings,
	}, nil
}

// isFatalWorkerErr reports whether a per-item error must abort the whole
// run (staging or container trouble) rather than degrade to a per-file
// warning.
func isFatalWorkerErr(err error) bool {
	var ce *common.Error
	if !errors.As(err, &ce) {
		return false
	}
	return ce.Kind == common.KindStagingIoFailure || ce.Kind == common.KindContainerSealFailed
}

func toSet(paths []string) map[string]bool {
	m := make(map[string]bool, len(paths))
	for _, p := range paths {
		m[p] = true
	}
	return m
}

func imageExt(path string) string {
	ext := filepath.Ext(path)
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

func writeManifest(processed []common.ProcessedFile, skippedCount int, path string) error {
	entries := make([]container.ManifestEntry, len(processed))
	for i, p := range processed {
		entries[i] = container.ManifestEntry{
			OriginalPath:      p.OriginalPath,
			ArchivedRelPath:   p.ArchivedRelPath,
			OriginalSize:      p.OriginalSize,
			OutputSize:        p.OutputSize,
			SkippedProcessing: p.SkippedProcessing,
			OriginalFormat:    p.OriginalFormat,
			HasFormat:         p.HasOriginalFormat,
		}
	}
	return container.WriteManifest(entries, skippedCount, path)
}

func writeHashes(processed []common.ProcessedFile, miscArcPath, manifestPath, hashesPath string) error {
	var pairs []hashutil.HashPair
	for _, p := range processed {
		if p.SHA256 != "" {
			pairs = append(pairs, hashutil.HashPair{Hash: p.SHA256, Rel: p.ArchivedRelPath})
		}
	}
	if _, err := os.Stat(miscArcPath); err == nil {
		sum, err := hashutil.Sha256File(miscArcPath)
		if err != nil {
			return err
		}
		pairs = append(pairs, hashutil.HashPair{Hash: sum, Rel: container.MiscArcFilename})
	}
	if _, err := os.Stat(manifestPath); err == nil {
		sum, err := hashutil.Sha256File(manifestPath)
		if err != nil {
			return err
		}
		pairs = append(pairs, hashutil.HashPair{Hash: sum, Rel: container.ManifestFilename})
	}
	return hashutil.WriteHashesFile(pairs, hashesPath)
}

func sealMiscArc(processed []common.ProcessedFile, outPath string, level int) error {
	var miscFiles []common.ProcessedFile
	for _, p := range processed {
		if p.Class == common.ClassMisc {
			miscFiles = append(miscFiles, p)
		}
	}
	if len(miscFiles) == 0 {
		return nil
	}

	f, err := os.Create(outPath)
	if err != nil {
		return common.Wrap(common.KindContainerSealFailed, outPath, err)
	}
	defer f.Close()

	w := misc.NewWriter(f, "zstd", level)
	nameCounts := make(map[string]int)
	for _, p := range miscFiles {
		data, err := os.ReadFile(filepath.Join(filepath.Dir(outPath), p.ArchivedRelPath))
		if err != nil {
			return common.Wrap(common.KindContainerSealFailed, p.ArchivedRelPath, err)
		}
		name := filepath.Base(p.ArchivedRelPath)
		if c := nameCounts[name]; c > 0 {
			name = fmt.Sprintf("%d_%s", c, name)
		}
		nameCounts[filepath.Base(p.ArchivedRelPath)]++

		info, statErr := os.Stat(filepath.Join(filepath.Dir(outPath), p.ArchivedRelPath))
		var mtime uint32
		if statErr == nil {
			mtime = uint32(info.ModTime().Unix())
		}
		if err := w.AddFile(name, data, mtime); err != nil {
			return common.Wrap(common.KindContainerSealFailed, name, err)
		}
	}
	return w.Seal()
}

func recordCatalogEntries(cat *catalog.Catalog, processed []common.ProcessedFile, outputArchive string) error {
	archiveID := filepath.Base(outputArchive)
	entries := make([]catalog.Entry, 0, len(processed))
	for _, p := range processed {
		info, err := os.Stat(p.OriginalPath)
		if err != nil {
			continue
		}
		entries = append(entries, catalog.Entry{
			Path:      p.OriginalPath,
			Size:      info.Size(),
			MtimeSecs: info.ModTime().Unix(),
			SHA256:    p.SHA256,
			ArchiveID: archiveID,
		})
	}
	return cat.RecordBatch(entries)
}

func recordRegistry(outputArchive string, processed []common.ProcessedFile) error {
	reg, err := registry.Open(catalog.PathFor(outputArchive))
	if err != nil {
		return err
	}
	defer reg.Close()

	info, err := os.Stat(outputArchive)
	if err != nil {
		return common.Wrap(common.KindRegistryWriteFailed, outputArchive, err)
	}

	archiveID, err := reg.RecordArchive(registry.Archive{
		ArchivePath:      outputArchive,
		ArchiveSize:      info.Size(),
		OriginalLocation: filepath.Dir(outputArchive),
		Description:      fmt.Sprintf("Archive with %d files", len(processed)),
		FileCount:        uint32(len(processed)),
	})
	if err != nil {
		return err
	}

	mappings := make([]registry.FileMapping, len(processed))
	for i, p := range processed {
		mappings[i] = registry.FileMapping{
			ArchiveID:    archiveID,
			FilePath:     p.ArchivedRelPath,
			OriginalPath: p.OriginalPath,
			FileSize:     p.OriginalSize,
		}
	}
	return reg.RecordArchiveFiles(archiveID, mappings)
}
