package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"mirror_bot/internal/telegram/models"
	"mirror_bot/internal/telegram/report"
)

func newPendingCommand(ctx *commandContext) *cobra.Command {
	pendingCmd := &cobra.Command{
		Use:   "pending",
		Short: "Inspect or discard the staged batch",
	}

	pendingCmd.AddCommand(newPendingShowCommand(ctx))
	pendingCmd.AddCommand(newPendingClearCommand(ctx))

	return pendingCmd
}

func newPendingShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the staged batch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fs, err := ctx.fileStore()
			if err != nil {
				return err
			}
			actions, err := fs.LoadPending()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(actions) == 0 {
				fmt.Fprintln(out, "No pending actions")
				return nil
			}

			first := actions[0]
			state := "valid"
			if first.Expired(time.Now()) {
				state = "expired"
			}
			fmt.Fprintf(out, "Batch %s (%s): %d actions, created %s, expires %s\n",
				valueOr(first.BatchID, "-"), state, len(actions),
				first.CreatedAt.Format(time.RFC3339), first.ExpiresAt.Format(time.RFC3339))
			fmt.Fprintln(out, actionsTable(actions))
			return nil
		},
	}
}

func newPendingClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Discard the staged batch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fs, err := ctx.fileStore()
			if err != nil {
				return err
			}
			if err := fs.ClearPending(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Pending actions cleared")
			return nil
		},
	}
}

func actionsTable(actions []models.PendingAction) string {
	rows := make([][]string, 0, len(actions))
	for _, a := range actions {
		detail := a.Reason
		switch a.Type {
		case models.ActionEditCaption:
			detail = a.Text
		case models.ActionForward:
			detail = "-> " + strconv.FormatInt(a.TargetChatID, 10)
			if a.Record != nil {
				detail = a.Record.DisplayName + " " + detail
			}
		}
		rows = append(rows, []string{
			string(a.Type),
			valueOr(string(a.Target), "-"),
			strconv.FormatInt(a.ChatID, 10),
			strconv.Itoa(a.MessageID),
			truncate(detail, 60),
		})
	}
	return report.Table(
		[]string{"Type", "Target", "Chat", "Message", "Detail"},
		rows,
		report.AlignLeft, report.AlignLeft, report.AlignRight, report.AlignRight, report.AlignLeft,
	)
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-1]) + "…"
}
