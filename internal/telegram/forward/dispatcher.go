// Package forward 多会话并发投递
package forward

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"mirror_bot/internal/logger"
	"mirror_bot/internal/telegram/dedup"
	"mirror_bot/internal/telegram/models"
	"mirror_bot/internal/telegram/report"
	"mirror_bot/internal/telegram/task"
	"mirror_bot/internal/telegram/transport"
)

// 删除消息单次调用上限（平台限制）
const maxDeleteBatch = 100

// errInterrupted 等待期间收到停止信号
var errInterrupted = errors.New("interrupted by stop request")

// Config 投递节奏配置
type Config struct {
	BatchSize          int           // 每成功多少条暂停一次
	BatchPause         time.Duration // 批次暂停时长
	ItemDelay          time.Duration // 每条之间的间隔
	CooldownMargin     time.Duration // 限流等待额外余量
	MaxCooldownRetries int           // 单条消息最多因限流重试几次
}

// DefaultConfig 默认投递节奏
func DefaultConfig() Config {
	return Config{
		BatchSize:          100,
		BatchPause:         30 * time.Second,
		ItemDelay:          time.Second,
		CooldownMargin:     5 * time.Second,
		MaxCooldownRetries: 3,
	}
}

// RecordWriter 投递记录持久化
type RecordWriter interface {
	BulkCreateRecords(ctx context.Context, records []*models.ForwardRecord) error
}

// SleepFunc 可被停止信号打断的等待
type SleepFunc func(ctx context.Context, d time.Duration, stop <-chan struct{}) error

// Job 一次投递任务
type Job struct {
	TaskID   string
	Actions  []models.PendingAction
	Token    *task.Token // 为空时任务不可停止
	Progress *Progress   // 为空时内部创建

	// OnApplied 删除或修改说明成功后回调（每条消息一次，可能被多个会话并发调用），可为空
	OnApplied func(action models.PendingAction)
}

// SessionResult 单会话统计
type SessionResult struct {
	Name      string
	Assigned  int
	Sent      int
	Skipped   int
	Failed    int
	Cooldowns int
	Remaining int
}

// Result 任务统计
type Result struct {
	TaskID    string
	Total     int
	Sent      int
	Skipped   int
	Failed    int
	Cooldowns int
	Remaining int
	Stopped   bool
	Sessions  []SessionResult
	Elapsed   time.Duration
}

// Table 渲染任务报告
func (r Result) Table() string {
	rows := make([][]string, 0, len(r.Sessions))
	for _, s := range r.Sessions {
		rows = append(rows, []string{
			s.Name,
			strconv.Itoa(s.Assigned),
			strconv.Itoa(s.Sent),
			strconv.Itoa(s.Skipped),
			strconv.Itoa(s.Failed),
			strconv.Itoa(s.Cooldowns),
			strconv.Itoa(s.Remaining),
		})
	}
	summary := report.KeyValue([][2]string{
		{"Task", r.TaskID},
		{"Total", strconv.Itoa(r.Total)},
		{"Sent", strconv.Itoa(r.Sent)},
		{"Skipped", strconv.Itoa(r.Skipped)},
		{"Failed", strconv.Itoa(r.Failed)},
		{"Remaining", strconv.Itoa(r.Remaining)},
		{"Elapsed", r.Elapsed.Round(time.Second).String()},
	})
	sessions := report.Table(
		[]string{"Session", "Assigned", "Sent", "Skipped", "Failed", "Cooldowns", "Remaining"},
		rows,
		report.AlignLeft, report.AlignRight, report.AlignRight, report.AlignRight,
		report.AlignRight, report.AlignRight, report.AlignRight,
	)
	return summary + "\n" + sessions
}

// Dispatcher 将操作列表切分给多个会话并发执行
// 每个会话只受自己的限流影响；去重缓存在会话间共享
type Dispatcher struct {
	sessions []transport.Transport
	cache    *dedup.Cache
	records  RecordWriter
	cfg      Config
	sleep    SleepFunc
}

// NewDispatcher 创建调度器，records 可为空
func NewDispatcher(sessions []transport.Transport, cache *dedup.Cache, records RecordWriter, cfg Config) *Dispatcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.MaxCooldownRetries < 0 {
		cfg.MaxCooldownRetries = 0
	}
	return &Dispatcher{
		sessions: sessions,
		cache:    cache,
		records:  records,
		cfg:      cfg,
		sleep:    sleepInterruptible,
	}
}

// WithSleep 替换等待实现
func (d *Dispatcher) WithSleep(fn SleepFunc) *Dispatcher {
	d.sleep = fn
	return d
}

// SessionNames 会话名称列表
func (d *Dispatcher) SessionNames() []string {
	names := make([]string, len(d.sessions))
	for i, s := range d.sessions {
		names[i] = s.Name()
	}
	return names
}

// Run 执行任务，直到全部完成、收到停止信号或出现致命错误
// 已在目标频道的转发操作在切分前被过滤并计为跳过
func (d *Dispatcher) Run(ctx context.Context, job Job) (Result, error) {
	if len(d.sessions) == 0 {
		return Result{}, fmt.Errorf("no sessions configured")
	}
	if job.Token == nil {
		job.Token = task.NewToken("forward")
	}
	if job.Progress == nil {
		job.Progress = NewProgress("forward")
	}

	start := time.Now()
	work, preSkipped := d.prefilter(job.Actions)
	parts := Partition(work, len(d.sessions))

	sizes := make([]int, len(parts))
	for i, part := range parts {
		sizes[i] = len(part)
	}
	counters := job.Progress.reset(len(job.Actions), preSkipped, d.SessionNames(), sizes)

	logger.L().Infof("Dispatch started: task_id=%s total=%d pre_skipped=%d sessions=%d",
		job.TaskID, len(job.Actions), preSkipped, len(d.sessions))

	results := make([]SessionResult, len(d.sessions))
	g, gctx := errgroup.WithContext(ctx)
	for i := range d.sessions {
		g.Go(func() error {
			res, err := d.runSession(gctx, d.sessions[i], job, parts[i], counters[i])
			results[i] = res
			return err
		})
	}
	err := g.Wait()

	result := Result{
		TaskID:   job.TaskID,
		Total:    len(job.Actions),
		Skipped:  preSkipped,
		Sessions: results,
		Elapsed:  time.Since(start),
	}
	for _, s := range results {
		result.Sent += s.Sent
		result.Skipped += s.Skipped
		result.Failed += s.Failed
		result.Cooldowns += s.Cooldowns
		result.Remaining += s.Remaining
	}
	result.Stopped = job.Token.Stopped() || (err == nil && result.Remaining > 0)
	job.Progress.finish(result.Stopped)

	logger.L().Infof("Dispatch completed: task_id=%s sent=%d skipped=%d failed=%d remaining=%d stopped=%t duration=%v",
		job.TaskID, result.Sent, result.Skipped, result.Failed, result.Remaining, result.Stopped, result.Elapsed)

	if err != nil {
		return result, fmt.Errorf("dispatch aborted: %w", err)
	}
	return result, nil
}

func (d *Dispatcher) prefilter(actions []models.PendingAction) ([]models.PendingAction, int) {
	work := make([]models.PendingAction, 0, len(actions))
	skipped := 0
	for _, a := range actions {
		if a.Type == models.ActionForward && a.Record != nil && d.cache.Contains(a.Record) {
			skipped++
			continue
		}
		work = append(work, a)
	}
	return work, skipped
}

// unit 一次平台调用：单条转发/改说明，或同一频道的连续删除
type unit struct {
	action models.PendingAction
	ids    []int
}

func (u unit) size() int {
	if len(u.ids) > 0 {
		return len(u.ids)
	}
	return 1
}

func groupUnits(actions []models.PendingAction) []unit {
	units := make([]unit, 0, len(actions))
	for _, a := range actions {
		if a.Type == models.ActionDelete {
			if n := len(units); n > 0 {
				last := &units[n-1]
				if last.action.Type == models.ActionDelete && last.action.ChatID == a.ChatID &&
					last.action.Target == a.Target && len(last.ids) < maxDeleteBatch {
					last.ids = append(last.ids, a.MessageID)
					continue
				}
			}
			units = append(units, unit{action: a, ids: []int{a.MessageID}})
			continue
		}
		units = append(units, unit{action: a})
	}
	return units
}

// session 单个会话的执行状态
type session struct {
	tr      transport.Transport
	job     Job
	c       *sessionCounters
	records []*models.ForwardRecord
}

func (d *Dispatcher) runSession(ctx context.Context, tr transport.Transport, job Job, items []models.PendingAction, c *sessionCounters) (SessionResult, error) {
	s := &session{tr: tr, job: job, c: c}
	units := groupUnits(items)
	remaining := len(items)
	successes := 0

	c.setState(StateRunning)
	logger.L().Infof("Session started: task_id=%s session=%s assigned=%d", job.TaskID, tr.Name(), len(items))

	var fatal error
	for _, u := range units {
		if job.Token.Stopped() || ctx.Err() != nil {
			break
		}

		ok, err := d.execute(ctx, s, u)
		if errors.Is(err, errInterrupted) {
			break
		}
		remaining -= u.size()
		if err != nil {
			fatal = err
			break
		}
		if !ok || remaining == 0 {
			continue
		}

		successes++
		pause := d.cfg.ItemDelay
		if successes%d.cfg.BatchSize == 0 {
			pause = d.cfg.BatchPause
			c.setState(StatePause)
			logger.L().Infof("Batch pause: session=%s sent=%d pause=%v", tr.Name(), successes, pause)
		}
		if err := d.sleep(ctx, pause, job.Token.Done()); err != nil {
			break
		}
		c.setState(StateRunning)
	}

	if remaining > 0 {
		c.setState(StateStopped)
	} else {
		c.setState(StateDone)
	}
	d.saveRecords(context.WithoutCancel(ctx), s)

	res := SessionResult{
		Name:      tr.Name(),
		Assigned:  len(items),
		Sent:      int(c.sent.Load()),
		Skipped:   int(c.skipped.Load()),
		Failed:    int(c.failed.Load()),
		Cooldowns: int(c.cooldowns.Load()),
		Remaining: remaining,
	}
	logger.L().Infof("Session finished: task_id=%s session=%s sent=%d skipped=%d failed=%d cooldowns=%d remaining=%d",
		job.TaskID, res.Name, res.Sent, res.Skipped, res.Failed, res.Cooldowns, res.Remaining)
	return res, fatal
}

// execute 执行单元，ok 表示产生了实际投递（用于节奏控制）
// 返回的错误只有 errInterrupted 与致命错误两种
func (d *Dispatcher) execute(ctx context.Context, s *session, u unit) (bool, error) {
	a := u.action
	switch a.Type {
	case models.ActionForward:
		return d.forward(ctx, s, a)

	case models.ActionDelete:
		if a.Target == models.TargetCatalog {
			s.c.skipped.Add(int64(len(u.ids)))
			logger.L().Warnf("Skipped item: session=%s chat=%d reason=catalog delete is not a channel action", s.tr.Name(), a.ChatID)
			return false, nil
		}
		err := d.withCooldown(ctx, s, func(callCtx context.Context) error {
			return s.tr.DeleteMessages(callCtx, a.ChatID, u.ids)
		})
		ok, err := d.settle(s, a, len(u.ids), err)
		if ok {
			for _, id := range u.ids {
				a.MessageID = id
				s.applied(a)
			}
		}
		return ok, err

	case models.ActionEditCaption:
		err := d.withCooldown(ctx, s, func(callCtx context.Context) error {
			return s.tr.EditCaption(callCtx, a.ChatID, a.MessageID, a.Text)
		})
		ok, err := d.settle(s, a, 1, err)
		if ok {
			s.applied(a)
		}
		return ok, err

	default:
		s.c.skipped.Add(1)
		logger.L().Warnf("Skipped item: session=%s msg=%d reason=unknown action type %q", s.tr.Name(), a.MessageID, a.Type)
		return false, nil
	}
}

func (d *Dispatcher) settle(s *session, a models.PendingAction, n int, err error) (bool, error) {
	switch {
	case err == nil:
		s.c.sent.Add(int64(n))
		return true, nil
	case errors.Is(err, errInterrupted):
		return false, err
	default:
		s.c.failed.Add(int64(n))
		logger.L().Warnf("Skipped item: session=%s type=%s chat=%d msg=%d count=%d reason=%v",
			s.tr.Name(), a.Type, a.ChatID, a.MessageID, n, err)
		return false, nil
	}
}

func (d *Dispatcher) forward(ctx context.Context, s *session, a models.PendingAction) (bool, error) {
	record := a.Record
	if record == nil {
		record = &models.MediaRecord{ChatID: a.ChatID, MessageID: a.MessageID}
	}

	release, ok := d.cache.Claim(record)
	if !ok {
		s.c.skipped.Add(1)
		logger.L().Debugf("Skipped item: session=%s chat=%d msg=%d reason=already present", s.tr.Name(), a.ChatID, a.MessageID)
		return false, nil
	}

	var forwardedID int
	err := d.withCooldown(ctx, s, func(callCtx context.Context) error {
		id, err := s.tr.CopyOrForward(callCtx, a.TargetChatID, a.ChatID, a.MessageID)
		forwardedID = id
		return err
	})
	if err != nil {
		release()
		if !errors.Is(err, errInterrupted) {
			s.records = append(s.records, s.record(a, record, 0, models.ForwardStatusFailed))
		}
		return d.settle(s, a, 1, err)
	}

	s.c.sent.Add(1)
	s.records = append(s.records, s.record(a, record, forwardedID, models.ForwardStatusSuccess))
	if err := d.cache.Commit(record); err != nil {
		return true, fmt.Errorf("session %s: %w", s.tr.Name(), err)
	}
	return true, nil
}

// withCooldown 执行平台调用，限流时只让当前会话等待 RetryAfter+余量后重试
// 进行中的调用使用不可取消的上下文，停止信号只在调用之间生效
func (d *Dispatcher) withCooldown(ctx context.Context, s *session, call func(context.Context) error) error {
	callCtx := context.WithoutCancel(ctx)
	for attempt := 0; ; attempt++ {
		err := call(callCtx)
		cooldown, ok := transport.AsCooldown(err)
		if !ok {
			return err
		}

		s.c.cooldowns.Add(1)
		if attempt >= d.cfg.MaxCooldownRetries {
			return fmt.Errorf("cooldown retries exhausted after %d attempts: %w", attempt+1, err)
		}

		wait := cooldown.RetryAfter + d.cfg.CooldownMargin
		s.c.setState(StateCooldown)
		logger.L().Warnf("Cooldown: session=%s wait=%v attempt=%d", s.tr.Name(), wait, attempt+1)
		if err := d.sleep(ctx, wait, s.job.Token.Done()); err != nil {
			return errInterrupted
		}
		s.c.setState(StateRunning)
	}
}

func (s *session) applied(a models.PendingAction) {
	if s.job.OnApplied != nil {
		s.job.OnApplied(a)
	}
}

func (s *session) record(a models.PendingAction, r *models.MediaRecord, forwardedID int, status string) *models.ForwardRecord {
	return &models.ForwardRecord{
		TaskID:             s.job.TaskID,
		Session:            s.tr.Name(),
		SourceChatID:       a.ChatID,
		SourceMessageID:    int64(a.MessageID),
		TargetChatID:       a.TargetChatID,
		ForwardedMessageID: int64(forwardedID),
		ContentID:          r.ContentID,
		Status:             status,
		CreatedAt:          time.Now(),
	}
}

func (d *Dispatcher) saveRecords(ctx context.Context, s *session) {
	if d.records == nil || len(s.records) == 0 {
		return
	}
	if err := d.records.BulkCreateRecords(ctx, s.records); err != nil {
		logger.L().Errorf("Failed to save forward records: session=%s err=%v", s.tr.Name(), err)
	}
}

func sleepInterruptible(ctx context.Context, d time.Duration, stop <-chan struct{}) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-stop:
		return errInterrupted
	}
}
