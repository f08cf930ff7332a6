package main

import (
	"os"
	"sync"

	"github.com/spf13/cobra"

	"mirror_bot/internal/logger"
	"mirror_bot/internal/store"
)

// commandContext 子命令共享的状态
type commandContext struct {
	dataDir  *string
	logLevel *string

	once  sync.Once
	store *store.FileStore
	err   error
}

func (c *commandContext) fileStore() (*store.FileStore, error) {
	c.once.Do(func() {
		c.store, c.err = store.NewFileStore(*c.dataDir)
	})
	return c.store, c.err
}

func newRootCommand() *cobra.Command {
	dataDir := os.Getenv("DATA_DIR")
	if dataDir == "" {
		dataDir = "data"
	}
	logLevel := "warn"

	ctx := &commandContext{dataDir: &dataDir, logLevel: &logLevel}

	rootCmd := &cobra.Command{
		Use:           "syncctl",
		Short:         "Offline maintenance for the mirror bot data directory",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.Configure(cmd.ErrOrStderr(), *ctx.logLevel, "text")
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&dataDir, "data-dir", "d", dataDir, "Data directory shared with the bot")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", logLevel, "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(newClassifyCommand())
	rootCmd.AddCommand(newNormalizeCommand())
	rootCmd.AddCommand(newAnalyzeCommand(ctx))
	rootCmd.AddCommand(newPendingCommand(ctx))
	rootCmd.AddCommand(newHistoryCommand(ctx))

	return rootCmd
}
