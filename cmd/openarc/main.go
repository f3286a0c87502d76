package main

import (
	"os"
	"os/signal"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/legeapp/openarc/pkg/commands"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})

	rootCmd := &cobra.Command{
		Use:   "openarc",
		Short: "A content-addressed media archiver: recompress, dedup, and seal images/video/misc files into a single sealed container",
	}

	rootCmd.AddCommand(commands.CreateCmd)
	rootCmd.AddCommand(commands.ExtractCmd)
	rootCmd.AddCommand(commands.ListCmd)
	rootCmd.AddCommand(commands.VerifyCmd)

	// Setup signal catching
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)

	go func() {
		<-sigs
		log.Warn().Msg("interrupted, exiting")
		os.Exit(1)
	}()

	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("command failed")
	}
}
