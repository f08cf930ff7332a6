package telegram

import (
	"context"
	"sync"

	"github.com/go-telegram/bot"
	botModels "github.com/go-telegram/bot/models"

	"mirror_bot/internal/logger"
)

// HandlerTask Handler 任务
type HandlerTask struct {
	Ctx         context.Context
	BotInstance *bot.Bot
	Update      *botModels.Update
	Handler     bot.HandlerFunc
	// OnPanic handler panic 后调用（通知用户）
	OnPanic func(task HandlerTask)
}

// WorkerPoolStats 工作池状态
type WorkerPoolStats struct {
	Workers       int
	QueueLength   int
	QueueCapacity int
	Busy          int
}

// WorkerPool Handler 工作池
// 长任务（扫描、投递）会占用一个 worker，/stop 等命令由其他 worker 处理
type WorkerPool struct {
	taskQueue chan HandlerTask
	wg        sync.WaitGroup
	workers   int

	mu     sync.RWMutex
	closed bool
	busy   int
}

// NewWorkerPool 创建工作池
// workers: worker 协程数量
// queueSize: 任务队列大小
func NewWorkerPool(workers int, queueSize int) *WorkerPool {
	pool := &WorkerPool{
		taskQueue: make(chan HandlerTask, queueSize),
		workers:   workers,
	}

	// 启动 worker goroutines
	for i := 0; i < workers; i++ {
		pool.wg.Add(1)
		go pool.worker(i)
	}

	logger.L().Infof("Worker pool started with %d workers, queue size %d", workers, queueSize)
	return pool
}

// worker 工作协程
func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	logger.L().Debugf("Worker %d started", id)

	for task := range p.taskQueue {
		p.setBusy(1)
		// 执行 handler，带 panic recovery
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.L().Errorf("Worker %d: handler panic recovered: %v", id, r)
					if task.OnPanic != nil {
						task.OnPanic(task)
					}
				}
			}()

			task.Handler(task.Ctx, task.BotInstance, task.Update)
		}()
		p.setBusy(-1)
	}

	logger.L().Debugf("Worker %d stopped", id)
}

func (p *WorkerPool) setBusy(delta int) {
	p.mu.Lock()
	p.busy += delta
	p.mu.Unlock()
}

// Submit 提交任务到工作池，队列已满或已关闭时丢弃并返回 false
func (p *WorkerPool) Submit(task HandlerTask) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		logger.L().Warn("Worker pool is shut down, task dropped")
		return false
	}

	select {
	case p.taskQueue <- task:
		return true
	default:
		logger.L().Warnf("Worker pool queue is full, task dropped")
		return false
	}
}

// Stats 当前状态
func (p *WorkerPool) Stats() WorkerPoolStats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return WorkerPoolStats{
		Workers:       p.workers,
		QueueLength:   len(p.taskQueue),
		QueueCapacity: cap(p.taskQueue),
		Busy:          p.busy,
	}
}

// Shutdown 优雅关闭工作池
// 等待所有正在执行的任务完成，可重复调用
func (p *WorkerPool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.taskQueue)
	p.mu.Unlock()

	logger.L().Info("Shutting down worker pool...")
	p.wg.Wait()
	logger.L().Info("Worker pool shut down successfully")
}

// asyncHandler 将 handler 放入工作池执行，避免阻塞 update 轮询
func (b *Bot) asyncHandler(next bot.HandlerFunc) bot.HandlerFunc {
	return func(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
		submitted := b.workerPool.Submit(HandlerTask{
			Ctx:         ctx,
			BotInstance: botInstance,
			Update:      update,
			Handler:     next,
			OnPanic:     b.notifyPanic,
		})
		if !submitted && update.Message != nil {
			b.sendErrorMessage(ctx, update.Message.Chat.ID, "服务繁忙，请稍后重试")
		}
	}
}

func (b *Bot) notifyPanic(task HandlerTask) {
	if task.Update.Message != nil {
		b.sendErrorMessage(task.Ctx, task.Update.Message.Chat.ID, "服务器内部错误，请稍后重试")
	}
}
