package main

import (
	"context"
	"os/signal"
	"syscall"

	"mirror_bot/internal/app"
	"mirror_bot/internal/config"
	"mirror_bot/internal/logger"
)

func main() {
	// 初始化logger
	logger.Init()

	cfg, err := config.Load()
	if err != nil {
		logger.L().Fatalf("配置加载失败: %v", err)
	}

	application, err := app.New(cfg)
	if err != nil {
		logger.L().Fatalf("应用初始化失败: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		logger.L().Errorf("Bot stopped with error: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.ShutdownTimeout)
	defer cancel()
	if err := application.Close(shutdownCtx); err != nil {
		logger.L().Errorf("Shutdown failed: %v", err)
	}
	logger.L().Info("Bye")
}
