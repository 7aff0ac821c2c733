package main

import (
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// Version is set via ldflags at build time.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "listbridge",
	Short: "listbridge - mirror mailing-list replies onto pull requests",
	Long: "listbridge reads a git mirror of a mailing-list archive and posts every reply to a\n" +
		"patch series as a comment on the pull request the series came from.",
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Cron output of overlapping runs is easier to untangle with a run id.
		log.SetPrefix(fmt.Sprintf("[%s] ", uuid.NewString()[:8]))
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "listbridge version %s\n", Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
