package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"mirror_bot/internal/telegram/classifier"
	"mirror_bot/internal/telegram/models"
	"mirror_bot/internal/telegram/quality"
	"mirror_bot/internal/telegram/report"
)

func newClassifyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "classify <name> [caption]",
		Short: "Show how a file name and caption are classified and scored",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			caption := ""
			if len(args) > 1 {
				caption = args[1]
			}
			result := classifier.New().Classify(name, caption)
			fmt.Fprintln(cmd.OutOrStdout(), classifyTable(name, caption, result))
			return nil
		},
	}
}

func newNormalizeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "normalize <title>...",
		Short: "Print the grouping key used for each title",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, title := range args {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", title, quality.Normalize(title))
			}
			return nil
		},
	}
}

func classifyTable(name, caption string, result classifier.Result) string {
	text := strings.TrimSpace(name + " " + caption)
	rows := [][2]string{
		{"Tag", string(result.Tag)},
		{"Matcher", valueOr(result.Matcher, "-")},
		{"Low quality", strconv.FormatBool(result.LowQuality)},
		{"Tier", quality.DetectTier(text).String()},
		{"Score", strconv.Itoa(quality.Score(name, caption))},
		{"Group key", valueOr(quality.Normalize(name), "-")},
	}
	if ep := result.Episode; ep != nil {
		rows = append(rows,
			[2]string{"Series", ep.Title},
			[2]string{"Episode", episodeLabel(ep)},
		)
	}
	return report.KeyValue(rows)
}

func episodeLabel(ep *models.EpisodeInfo) string {
	switch {
	case ep.IsSeasonPack():
		return fmt.Sprintf("S%02d (season pack)", ep.Season)
	case ep.EpisodeEnd > ep.Episode:
		return fmt.Sprintf("S%02dE%02d-E%02d", ep.Season, ep.Episode, ep.EpisodeEnd)
	default:
		return fmt.Sprintf("S%02dE%02d", ep.Season, ep.Episode)
	}
}

func valueOr(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
