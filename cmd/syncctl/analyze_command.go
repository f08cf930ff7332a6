package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"mirror_bot/internal/telegram/analyzer"
	"mirror_bot/internal/telegram/models"
)

type analyzeFlags struct {
	category string
	footer   string
	allowed  []string
	fuzzy    float64
	allTiers bool
	list     bool
	stage    bool
	ttl      time.Duration
}

func newAnalyzeCommand(ctx *commandContext) *cobra.Command {
	var flags analyzeFlags

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Dry-run curation over a saved index",
		Long: "Runs the curation rules against the index file saved by /index and prints the plan.\n" +
			"Nothing is deleted or edited; --stage writes the plan as the pending batch for /confirm.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			category, err := models.ParseCategory(flags.category)
			if err != nil {
				return err
			}
			if flags.fuzzy < 0 || flags.fuzzy > 1 {
				return fmt.Errorf("--fuzzy must be between 0 and 1")
			}
			fs, err := ctx.fileStore()
			if err != nil {
				return err
			}
			records, err := fs.LoadIndex(category)
			if err != nil {
				return fmt.Errorf("load %s index: %w", category, err)
			}

			opts := analyzer.DefaultOptions()
			opts.KeepBestTierOnly = !flags.allTiers
			opts.FuzzyThreshold = flags.fuzzy
			if flags.footer != "" || len(flags.allowed) > 0 {
				opts.Captions = &analyzer.CaptionCleaner{Footer: flags.footer, Allowed: flags.allowed}
			}
			plan := analyzer.New(opts).Curate(records)

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, plan.Summary.Table())
			if flags.list && !plan.Empty() {
				fmt.Fprintln(out, actionsTable(plan.Actions))
			}
			if !flags.stage {
				return nil
			}
			if plan.Empty() {
				fmt.Fprintln(out, "Nothing to stage")
				return nil
			}

			batchID := uuid.New().String()
			now := time.Now()
			models.StampBatch(plan.Actions, batchID, now, flags.ttl)
			if err := fs.SavePending(plan.Actions); err != nil {
				return err
			}
			fmt.Fprintf(out, "Staged batch %s: %d actions, expires %s\n",
				batchID, len(plan.Actions), now.Add(flags.ttl).Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().StringVar(&flags.category, "category", string(models.CategoryFull), "Index category (full, movie, series, bad)")
	cmd.Flags().StringVar(&flags.footer, "footer", "", "Caption footer; enables caption edits")
	cmd.Flags().StringSliceVar(&flags.allowed, "allow-mention", nil, "Mentions kept by the caption cleaner")
	cmd.Flags().Float64Var(&flags.fuzzy, "fuzzy", 0, "Merge groups with similar titles (Jaro-Winkler threshold, 0 disables)")
	cmd.Flags().BoolVar(&flags.allTiers, "all-tiers", false, "Keep the best copy of every quality tier")
	cmd.Flags().BoolVar(&flags.list, "list", false, "Print every planned action")
	cmd.Flags().BoolVar(&flags.stage, "stage", false, "Save the plan as the pending batch")
	cmd.Flags().DurationVar(&flags.ttl, "ttl", 30*time.Minute, "Pending batch lifetime")

	return cmd
}
