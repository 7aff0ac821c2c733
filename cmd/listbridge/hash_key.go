package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vdavid/listbridge/internal/notes"
)

var hashKeyCmd = &cobra.Command{
	Use:   "hash-key KEY [KEY...]",
	Short: "Print the note key a Message-ID (or the state key) is stored under",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		for _, key := range args {
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", notes.HashKey(key), key)
		}
	},
}

func init() {
	rootCmd.AddCommand(hashKeyCmd)
}
