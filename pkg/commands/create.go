package commands

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/legeapp/openarc/pkg/orchestrator"
	"github.com/legeapp/openarc/pkg/settings"
)

type CreateCmdOptions struct {
	OutputPath           string
	StagingDir           string
	EnableCatalog        bool
	EnableDedup          bool
	SkipCompressedVideos bool
	BpgQuality           int
	VideoCRF             int
}

var createOpts = &CreateCmdOptions{}

var CreateCmd = &cobra.Command{
	Use:   "create [paths...]",
	Short: "Create an archive from the given files and directories",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runCreate,
}

func init() {
	CreateCmd.Flags().StringVarP(&createOpts.OutputPath, "output", "o", "archive.tar.zst", "Output archive path")
	CreateCmd.Flags().StringVar(&createOpts.StagingDir, "staging-dir", "", "Staging directory override (default: system temp)")
	CreateCmd.Flags().BoolVar(&createOpts.EnableCatalog, "catalog", true, "Skip inputs already recorded in the incremental-backup catalog")
	CreateCmd.Flags().BoolVar(&createOpts.EnableDedup, "dedup", true, "Deduplicate identical inputs by content hash")
	CreateCmd.Flags().BoolVar(&createOpts.SkipCompressedVideos, "skip-compressed-videos", true, "Copy already-efficiently-compressed videos through unmodified")
	CreateCmd.Flags().IntVar(&createOpts.BpgQuality, "bpg-quality", 25, "Image codec quality (lower is better)")
	CreateCmd.Flags().IntVar(&createOpts.VideoCRF, "video-crf", 23, "Video encoder CRF")
}

func runCreate(cmd *cobra.Command, args []string) error {
	s := settings.Default()
	s.StagingDir = createOpts.StagingDir
	s.EnableCatalog = createOpts.EnableCatalog
	s.EnableDedup = createOpts.EnableDedup
	s.SkipAlreadyCompressedVideos = createOpts.SkipCompressedVideos
	s.BpgQuality = createOpts.BpgQuality
	s.VideoCRF = createOpts.VideoCRF

	log.Info().Strs("inputs", args).Str("output", createOpts.OutputPath).Msg("starting archive creation")

	result, err := orchestrator.CreateArchive(context.Background(), args, createOpts.OutputPath, s, orchestrator.DefaultDependencies(), reportProgress)
	if err != nil {
		log.Error().Err(err).Msg("archive creation failed")
		return err
	}

	log.Info().
		Int("discovered", len(result.Discovered)).
		Int("processed", len(result.Processed)).
		Int("skipped_by_catalog", len(result.SkippedByCatalog)).
		Int("dedup_groups", result.DedupGroups).
		Msg("archive created successfully")
	return nil
}

func reportProgress(done, total int, name string) {
	log.Info().Int("done", done).Int("total", total).Str("file", name).Msg("processed")
}
