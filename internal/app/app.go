package app

import (
	"context"
	"fmt"
	"time"

	"mirror_bot/internal/config"
	"mirror_bot/internal/logger"
	"mirror_bot/internal/mongo"
	"mirror_bot/internal/store"
	"mirror_bot/internal/telegram"
	"mirror_bot/internal/telegram/analyzer"
	"mirror_bot/internal/telegram/classifier"
	"mirror_bot/internal/telegram/dedup"
	"mirror_bot/internal/telegram/forward"
	"mirror_bot/internal/telegram/repository"
	"mirror_bot/internal/telegram/scanner"
	"mirror_bot/internal/telegram/service"
	"mirror_bot/internal/telegram/transport"

	"github.com/go-telegram/bot"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
)

// App 应用服务容器
// 负责管理所有服务的生命周期（初始化、运行、关闭）
type App struct {
	MongoDB     *mongo.Client
	Store       *store.FileStore
	Sessions    []*transport.BotAPI
	Sync        *service.SyncService
	TelegramBot *telegram.Bot
}

// New 初始化应用及其所有服务
// 按顺序初始化各个服务，任何服务初始化失败都会清理已初始化的部分并返回错误
func New(cfg *config.Config) (*App, error) {
	app := &App{}

	// 初始化 MongoDB（可选）
	mongoClient, err := mongo.InitFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("init MongoDB failed: %w", err)
	}
	app.MongoDB = mongoClient

	var (
		indexers []telegram.Indexer
		history  transport.HistoryStore
		catalog  repository.CatalogRepository
		records  repository.ForwardRecordRepository
		messages service.MessageService
	)
	if mongoClient != nil {
		logger.L().Info("MongoDB initialized successfully")
		db := mongoClient.Database()
		messageRepo := repository.NewMongoMessageRepository(db)
		catalog = repository.NewCatalogRepository(db)
		records = repository.NewForwardRecordRepository(db, cfg.ForwardRecordTTL)
		messages = service.NewMessageService(messageRepo)
		history = messageRepo
		indexers = append(indexers, messageRepo, catalog, records)
	} else {
		logger.L().Warn("MONGO_URI is empty: channel history, catalog and forward records are disabled")
	}

	app.Store, err = store.NewFileStore(cfg.DataDir)
	if err != nil {
		app.Close(context.Background())
		return nil, fmt.Errorf("init file store failed: %w", err)
	}

	// 初始化投递会话，第一个会话同时作为操作员 bot
	var primary *bot.Bot
	sessions := make([]transport.Transport, 0, len(cfg.Sessions)+1)
	for i, s := range cfg.SessionTokens() {
		client, err := bot.New(s.Token)
		if err != nil {
			app.Close(context.Background())
			return nil, fmt.Errorf("init session %s failed: %w", s.Name, err)
		}
		if i == 0 {
			primary = client
		}
		session := transport.NewBotAPI(s.Name, client, history, transport.Mode(cfg.ForwardMode), cfg.RatePerSecond)
		app.Sessions = append(app.Sessions, session)
		sessions = append(sessions, session)
	}
	logger.L().Infof("Sessions initialized: count=%d mode=%s", len(sessions), cfg.ForwardMode)

	cache := dedup.NewCache(app.Store)
	dispatcher := forward.NewDispatcher(sessions, cache, records, forward.Config{
		BatchSize:          cfg.BatchSize,
		BatchPause:         cfg.BatchPause,
		ItemDelay:          cfg.ItemDelay,
		CooldownMargin:     cfg.CooldownMargin,
		MaxCooldownRetries: cfg.MaxCooldownRetries,
	})

	app.Sync, err = service.NewSyncService(service.SyncDeps{
		Sessions:   sessions,
		Scanner:    scanner.New(classifier.New(), cfg.ScanStatusEvery),
		Analyzer:   analyzer.New(analyzerOptions(cfg)),
		Dispatcher: dispatcher,
		Cache:      cache,
		Store:      app.Store,
		Catalog:    catalog,
		Records:    records,
		Messages:   messages,
	}, service.SyncConfig{
		SourceRef:  cfg.SourceRef,
		TargetRef:  cfg.TargetRef,
		PendingTTL: cfg.PendingTTL,
	})
	if err != nil {
		app.Close(context.Background())
		return nil, fmt.Errorf("init sync service failed: %w", err)
	}
	if err := app.Sync.ReloadCache(); err != nil {
		app.Close(context.Background())
		return nil, fmt.Errorf("load dedup cache failed: %w", err)
	}
	stats := cache.Stats()
	logger.L().Infof("Dedup cache loaded: content_ids=%d compound_keys=%d", stats.ContentIDs, stats.CompoundKeys)

	app.TelegramBot, err = telegram.New(telegram.Config{
		OwnerIDs:         cfg.BotOwnerIDs,
		ProgressInterval: cfg.ProgressInterval,
	}, primary, app.Sync, messages, mongoDatabase(mongoClient), indexers...)
	if err != nil {
		app.Close(context.Background())
		return nil, fmt.Errorf("init Telegram bot failed: %w", err)
	}

	return app, nil
}

// Run 启动 bot 并阻塞直到 ctx 取消
func (a *App) Run(ctx context.Context) error {
	return a.TelegramBot.Start(ctx)
}

// Close 优雅关闭所有服务
// 应该在应用退出时调用，确保资源正确释放
func (a *App) Close(ctx context.Context) error {
	if a.TelegramBot != nil {
		if err := a.TelegramBot.Stop(ctx); err != nil {
			logger.L().Warnf("Stop Telegram bot: %v", err)
		}
	}
	for _, s := range a.Sessions {
		s.Close()
	}
	if a.MongoDB != nil {
		if err := a.MongoDB.Close(ctx); err != nil {
			return fmt.Errorf("close MongoDB failed: %w", err)
		}
	}
	return nil
}

func mongoDatabase(client *mongo.Client) *mongodriver.Database {
	if client == nil {
		return nil
	}
	return client.Database()
}

func analyzerOptions(cfg *config.Config) analyzer.Options {
	opts := analyzer.DefaultOptions()
	opts.KeepBestTierOnly = !cfg.KeepAllTiers
	opts.FuzzyThreshold = cfg.FuzzyGroupThreshold
	opts.Captions = &analyzer.CaptionCleaner{
		Footer:  cfg.CaptionFooter,
		Allowed: cfg.CaptionAllowed,
	}
	return opts
}

// ShutdownTimeout 关闭时等待运行中任务的最长时间
const ShutdownTimeout = 30 * time.Second
