// Package telegram 操作员 bot：命令、回调按钮、进度消息与频道消息记录
package telegram

import (
	"context"
	"fmt"
	"time"

	"mirror_bot/internal/logger"
	"mirror_bot/internal/telegram/forward"
	"mirror_bot/internal/telegram/models"
	"mirror_bot/internal/telegram/service"

	"github.com/go-telegram/bot"
	"go.mongodb.org/mongo-driver/mongo"
)

// Config Telegram Bot 配置
type Config struct {
	OwnerIDs         []int64       // Owner 用户 IDs
	ProgressInterval time.Duration // 进度消息刷新间隔
	Workers          int           // handler 工作协程数
	QueueSize        int           // handler 队列长度
}

// Operator 同步服务能力（由 *service.SyncService 实现）
type Operator interface {
	Index(ctx context.Context, ref string, category models.Category, opts service.RunOptions) (service.IndexReport, error)
	IndexTarget(ctx context.Context, ref string, category models.Category, opts service.RunOptions) (service.TargetReport, error)
	Analyze(ctx context.Context, ref string, opts service.RunOptions) (service.StagedPlan, error)
	Reconcile(ctx context.Context, ref string, opts service.RunOptions) (service.StagedPlan, error)
	PlanForward(ctx context.Context, category models.Category, targetRef string, limit int) (service.StagedPlan, error)
	Confirm(ctx context.Context, opts service.RunOptions) (service.ApplyReport, error)
	Cancel() error
	Forward(ctx context.Context, category models.Category, targetRef string, limit int, opts service.RunOptions) (forward.Result, error)
	Recall(ctx context.Context, taskID string, opts service.RunOptions) (service.RecallReport, error)
	Stop() bool
	Status() (service.Status, error)
	Identities(ctx context.Context) []service.SessionIdentity
	CompactHistory() (int, error)
}

// Indexer 需要建立索引的仓储
type Indexer interface {
	EnsureIndexes(ctx context.Context) error
}

// Bot Telegram Bot 服务
type Bot struct {
	bot              *bot.Bot
	api              messenger
	db               *mongo.Database
	ownerIDs         map[int64]struct{}
	operator         Operator
	messages         service.MessageService
	workerPool       *WorkerPool
	progressInterval time.Duration
	startTime        time.Time
}

// New 创建 Telegram Bot 实例
// b 为主会话的 bot 客户端，update 由 Start 拉取；messages 为空时不记录频道消息
func New(cfg Config, b *bot.Bot, operator Operator, messages service.MessageService, db *mongo.Database, indexers ...Indexer) (*Bot, error) {
	if b == nil {
		return nil, fmt.Errorf("bot client cannot be nil")
	}
	if operator == nil {
		return nil, fmt.Errorf("operator cannot be nil")
	}
	if len(cfg.OwnerIDs) == 0 {
		logger.L().Warn("BOT_OWNER_IDS is empty, every command will be rejected")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}

	telegramBot := &Bot{
		bot:              b,
		api:              b,
		db:               db,
		ownerIDs:         make(map[int64]struct{}, len(cfg.OwnerIDs)),
		operator:         operator,
		messages:         messages,
		workerPool:       NewWorkerPool(cfg.Workers, cfg.QueueSize),
		progressInterval: cfg.ProgressInterval,
	}
	for _, id := range cfg.OwnerIDs {
		telegramBot.ownerIDs[id] = struct{}{}
	}

	// 注册 handlers
	telegramBot.registerHandlers()

	// 初始化数据库索引
	if err := ensureIndexes(context.Background(), indexers...); err != nil {
		telegramBot.workerPool.Shutdown()
		return nil, fmt.Errorf("failed to ensure indexes: %w", err)
	}

	logger.L().Info("Telegram bot initialized successfully")
	return telegramBot, nil
}

// Start 启动 Bot（阻塞式，应在 goroutine 中运行）
func (b *Bot) Start(ctx context.Context) error {
	logger.L().Info("Starting Telegram bot...")
	b.startTime = time.Now()
	b.bot.Start(ctx)
	logger.L().Info("Telegram bot stopped")
	return nil
}

// Stop 停止 Bot：请求当前任务停止并等待 handler 退出
func (b *Bot) Stop(ctx context.Context) error {
	logger.L().Info("Stopping Telegram bot...")
	if b.operator.Stop() {
		logger.L().Info("Running task asked to stop")
	}

	done := make(chan struct{})
	go func() {
		b.workerPool.Shutdown()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("worker pool shutdown: %w", ctx.Err())
	}
}

// ensureIndexes 确保所有数据库索引存在
func ensureIndexes(ctx context.Context, indexers ...Indexer) error {
	for _, indexer := range indexers {
		if indexer == nil {
			continue
		}
		if err := indexer.EnsureIndexes(ctx); err != nil {
			return err
		}
	}
	logger.L().Debugf("Indexes ensured: repositories=%d", len(indexers))
	return nil
}
