package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/yonagi/mailharvest/internal/extract"
)

// rootCmd represents the base command for the mailharvest application
var rootCmd = &cobra.Command{
	Use:   "mailharvest",
	Short: "Extracts Gmail attachments into per-sender directories",
	Long: `mailharvest pulls attachment-bearing messages from a Gmail mailbox and
fans the attachments out to disk, one directory per sender address.

Unwanted attachment types (calendar invites, inline images, markup) are
filtered out, and two maintenance stages clean up an existing output tree.`,
	SilenceUsage: true,
}

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "mailharvest version %s\n" .Version}}`)

	// If no subcommand is provided, run the full pipeline by default
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "run")
	}

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newStageCmd(extract.StageExtract,
		"Extract attachments from matching messages"))
	rootCmd.AddCommand(newStageCmd(extract.StageFilterUnwanted,
		"Delete already-written files matching the exclusion set"))
	rootCmd.AddCommand(newStageCmd(extract.StagePruneEmptyDirs,
		"Remove empty directories under the output root"))
	rootCmd.AddCommand(newAuthCmd())
	rootCmd.AddCommand(newVersionCmd())
}
