package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/legeapp/openarc/pkg/extract"
)

type ListCmdOptions struct {
	InputFile string
}

var listOpts = &ListCmdOptions{}

var ListCmd = &cobra.Command{
	Use:   "list",
	Short: "List an archive's contents",
	RunE:  runList,
}

func init() {
	ListCmd.Flags().StringVarP(&listOpts.InputFile, "input", "i", "", "Archive to list")
	ListCmd.MarkFlagRequired("input")
}

func runList(cmd *cobra.Command, args []string) error {
	entries, err := extract.ListContents(listOpts.InputFile)
	if err != nil {
		return err
	}
	for _, e := range entries {
		fmt.Printf("%-10s %12d -> %12d  %s\n", e.FileType, e.OriginalSize, e.CompressedSize, e.Filename)
	}
	return nil
}
