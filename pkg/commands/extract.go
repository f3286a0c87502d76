package commands

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/legeapp/openarc/pkg/codec"
	"github.com/legeapp/openarc/pkg/extract"
	"github.com/legeapp/openarc/pkg/settings"
)

type ExtractCmdOptions struct {
	InputFile    string
	OutputPath   string
	DecodeImages bool
}

var extractOpts = &ExtractCmdOptions{}

var ExtractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract an archive to the specified directory",
	RunE:  runExtract,
}

func init() {
	ExtractCmd.Flags().StringVarP(&extractOpts.InputFile, "input", "i", "", "Archive to extract")
	ExtractCmd.Flags().StringVarP(&extractOpts.OutputPath, "output", "o", ".", "Destination directory")
	ExtractCmd.Flags().BoolVar(&extractOpts.DecodeImages, "decode-images", true, "Decode recompressed images back to their original format")
	ExtractCmd.MarkFlagRequired("input")
}

func runExtract(cmd *cobra.Command, args []string) error {
	log.Info().Str("archive", extractOpts.InputFile).Str("destination", extractOpts.OutputPath).Msg("extracting archive")

	es := settings.DefaultExtraction()
	es.DecodeImages = extractOpts.DecodeImages

	deps := extract.DecodeDeps{Image: codec.NewExecImageCodec(), Heic: codec.NewExecHeicEncoder()}
	result, err := extract.ArchiveWithDecoding(context.Background(), extractOpts.InputFile, extractOpts.OutputPath, es, deps)
	if err != nil {
		log.Error().Err(err).Msg("extraction failed")
		return err
	}

	log.Info().Int("files_extracted", result.FilesExtracted).Int("images_decoded", result.ImagesDecoded).Int64("total_bytes", result.TotalBytes).Msg("extraction complete")
	return nil
}
