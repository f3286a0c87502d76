package commands

import (
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/legeapp/openarc/pkg/container"
	"github.com/legeapp/openarc/pkg/hashutil"
	"github.com/legeapp/openarc/pkg/misc"
)

type VerifyCmdOptions struct {
	InputFile string
}

var verifyOpts = &VerifyCmdOptions{}

var VerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify every archived file against its recorded hash",
	RunE:  runVerify,
}

func init() {
	VerifyCmd.Flags().StringVarP(&verifyOpts.InputFile, "input", "i", "", "Archive to verify")
	VerifyCmd.MarkFlagRequired("input")
}

func runVerify(cmd *cobra.Command, args []string) error {
	if err := hashutil.VerifyTarZst(verifyOpts.InputFile, container.Extract); err != nil {
		log.Error().Err(err).Msg("verification failed")
		return err
	}
	if err := verifyMiscSubstream(verifyOpts.InputFile); err != nil {
		log.Error().Err(err).Msg("misc substream verification failed")
		return err
	}
	log.Info().Str("archive", verifyOpts.InputFile).Msg("all hashes verified")
	return nil
}

// verifyMiscSubstream walks misc.arc's directory, decompressing every entry
// so block and per-file CRCs are actually checked, not just the sidecar hash
// of the substream file as a whole. An archive without a misc.arc member
// has nothing to verify.
func verifyMiscSubstream(archivePath string) error {
	tmp, err := os.MkdirTemp("", "openarc-misc-verify-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tmp)

	arcPath := filepath.Join(tmp, container.MiscArcFilename)
	if err := container.ExtractEntry(archivePath, container.MiscArcFilename, arcPath); err != nil {
		return nil
	}

	f, err := os.Open(arcPath)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}

	rd, err := misc.OpenReader(f, info.Size())
	if err != nil {
		return err
	}
	if errs := rd.ExtractAll(func(name string, data []byte, isDir bool) error { return nil }); len(errs) > 0 {
		return errs[0]
	}
	log.Info().Int("misc_files", len(rd.Directory.Files)).Msg("misc substream intact")
	return nil
}
