package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Manage the forwarded content history",
	}

	historyCmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Count history entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fs, err := ctx.fileStore()
			if err != nil {
				return err
			}
			ids, err := fs.ReadHistory()
			if err != nil {
				return err
			}
			unique := make(map[string]struct{}, len(ids))
			for _, id := range ids {
				unique[id] = struct{}{}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Entries: %d\nUnique:  %d\n", len(ids), len(unique))
			return nil
		},
	})
	historyCmd.AddCommand(&cobra.Command{
		Use:   "compact",
		Short: "Rewrite the history file without duplicate entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fs, err := ctx.fileStore()
			if err != nil {
				return err
			}
			removed, err := fs.CompactHistory()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d duplicate entries\n", removed)
			return nil
		},
	})

	return historyCmd
}
