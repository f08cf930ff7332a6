package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"mirror_bot/internal/logger"
	"mirror_bot/internal/store"
	"mirror_bot/internal/telegram/analyzer"
	"mirror_bot/internal/telegram/dedup"
	"mirror_bot/internal/telegram/forward"
	"mirror_bot/internal/telegram/models"
	"mirror_bot/internal/telegram/report"
	"mirror_bot/internal/telegram/repository"
	"mirror_bot/internal/telegram/scanner"
	"mirror_bot/internal/telegram/task"
	"mirror_bot/internal/telegram/transport"
)

// DefaultPendingTTL 待确认操作的默认有效期
const DefaultPendingTTL = 30 * time.Minute

// 任务类型
const (
	TaskIndex       = "index"
	TaskIndexTarget = "index_target"
	TaskAnalyze     = "analyze"
	TaskReconcile   = "reconcile"
	TaskConfirm     = "confirm"
	TaskForward     = "forward"
	TaskRecall      = "recall"
)

// ErrNoCatalog 未配置外部目录
var ErrNoCatalog = errors.New("catalog store is not configured")

// SyncConfig 同步服务配置
type SyncConfig struct {
	SourceRef  string        // 默认源频道
	TargetRef  string        // 默认目标频道
	PendingTTL time.Duration // 待确认操作有效期
}

// SyncDeps 同步服务依赖，Catalog/Records/Messages 可为空
type SyncDeps struct {
	Sessions   []transport.Transport // 第一个会话用于解析、扫描
	Scanner    *scanner.Scanner
	Analyzer   *analyzer.Analyzer
	Dispatcher *forward.Dispatcher
	Cache      *dedup.Cache
	Store      store.Repository
	Catalog    repository.CatalogRepository
	Records    repository.ForwardRecordRepository
	Messages   MessageService
	Tasks      *task.Manager
}

// RunOptions 长任务的进度回调
type RunOptions struct {
	OnStatus scanner.StatusFunc // 扫描进度
	Progress *forward.Progress  // 投递进度
}

// IndexReport 源频道索引结果
type IndexReport struct {
	Chat            transport.Chat
	Category        models.Category
	Records         int
	Classes         map[models.Classification]int
	LowQuality      int
	CatalogInserted int64
	Stopped         bool
}

// Table 渲染索引报告
func (r IndexReport) Table() string {
	rows := [][2]string{
		{"Chat", r.Chat.Label()},
		{"Category", string(r.Category)},
		{"Records", strconv.Itoa(r.Records)},
	}
	for _, class := range []models.Classification{models.ClassMovie, models.ClassEpisodic, models.ClassLowQuality, models.ClassUnknown} {
		rows = append(rows, [2]string{string(class), strconv.Itoa(r.Classes[class])})
	}
	rows = append(rows,
		[2]string{"Low quality flag", strconv.Itoa(r.LowQuality)},
		[2]string{"Catalog inserted", strconv.FormatInt(r.CatalogInserted, 10)},
	)
	return report.KeyValue(rows)
}

// TargetReport 目标频道索引结果
type TargetReport struct {
	Chat         transport.Chat
	Category     models.Category
	ContentIDs   int
	CompoundKeys int
	Cache        dedup.Stats
}

// StagedPlan 已暂存、等待确认的计划
type StagedPlan struct {
	BatchID   string
	ExpiresAt time.Time
	Chat      transport.Chat
	Plan      analyzer.Plan
}

// ApplyReport 确认执行结果
type ApplyReport struct {
	BatchID        string
	CatalogDeleted int64
	Channel        *forward.Result
}

// RecallReport 撤回结果
type RecallReport struct {
	TaskID  string
	Records int
	Result  forward.Result
}

// SessionIdentity 会话身份
type SessionIdentity struct {
	Name     string
	Identity string
	Err      error
}

// Status 当前状态
type Status struct {
	Task           *task.Token
	Cache          dedup.Stats
	Pending        int
	PendingBatch   string
	PendingExpires time.Time
	Sessions       []string
}

// SyncService 组合扫描、分析、去重与投递
type SyncService struct {
	sessions   []transport.Transport
	primary    transport.Transport
	scanner    *scanner.Scanner
	analyzer   *analyzer.Analyzer
	dispatcher *forward.Dispatcher
	cache      *dedup.Cache
	store      store.Repository
	catalog    repository.CatalogRepository
	records    repository.ForwardRecordRepository
	messages   MessageService
	tasks      *task.Manager
	cfg        SyncConfig
	now        func() time.Time
}

// NewSyncService 创建同步服务
func NewSyncService(deps SyncDeps, cfg SyncConfig) (*SyncService, error) {
	if len(deps.Sessions) == 0 {
		return nil, fmt.Errorf("at least one session is required")
	}
	if deps.Store == nil || deps.Cache == nil || deps.Dispatcher == nil {
		return nil, fmt.Errorf("store, cache and dispatcher are required")
	}
	if deps.Scanner == nil {
		deps.Scanner = scanner.New(nil, 0)
	}
	if deps.Analyzer == nil {
		deps.Analyzer = analyzer.New(analyzer.DefaultOptions())
	}
	if deps.Tasks == nil {
		deps.Tasks = task.NewManager()
	}
	if cfg.PendingTTL <= 0 {
		cfg.PendingTTL = DefaultPendingTTL
	}

	return &SyncService{
		sessions:   deps.Sessions,
		primary:    deps.Sessions[0],
		scanner:    deps.Scanner,
		analyzer:   deps.Analyzer,
		dispatcher: deps.Dispatcher,
		cache:      deps.Cache,
		store:      deps.Store,
		catalog:    deps.Catalog,
		records:    deps.Records,
		messages:   deps.Messages,
		tasks:      deps.Tasks,
		cfg:        cfg,
		now:        time.Now,
	}, nil
}

// ReloadCache 由目标索引与转发日志重建去重缓存
func (s *SyncService) ReloadCache() error {
	targets, err := s.store.LoadTargets()
	if err != nil {
		return fmt.Errorf("failed to load target indexes: %w", err)
	}
	return s.cache.Load(targets...)
}

// Index 扫描源频道并写入分类索引
// 遍历失败时不写索引，返回已扫描数量与错误；被停止时同样不写索引
func (s *SyncService) Index(ctx context.Context, ref string, category models.Category, opts RunOptions) (IndexReport, error) {
	token, finish, err := s.tasks.Begin(TaskIndex)
	if err != nil {
		return IndexReport{}, err
	}
	defer finish()

	res, err := s.scanner.Scan(ctx, s.primary, s.sourceRef(ref), category, token, opts.OnStatus)
	rep := indexReport(res, category)
	if err != nil {
		return rep, s.scanFailure(err)
	}
	if res.Stopped {
		return rep, nil
	}

	if err := s.store.SaveIndex(category, res.Records); err != nil {
		return rep, err
	}
	if s.catalog != nil {
		inserted, err := s.catalog.UpsertRecords(ctx, res.Records)
		if err != nil {
			return rep, err
		}
		rep.CatalogInserted = inserted
	}

	logger.L().Infof("Index saved: chat=%s category=%s records=%d", res.Chat.Label(), category, len(res.Records))
	return rep, nil
}

// IndexTarget 扫描目标频道，写入目标索引并重建去重缓存
func (s *SyncService) IndexTarget(ctx context.Context, ref string, category models.Category, opts RunOptions) (TargetReport, error) {
	token, finish, err := s.tasks.Begin(TaskIndexTarget)
	if err != nil {
		return TargetReport{}, err
	}
	defer finish()

	index, chat, err := s.scanner.ScanTarget(ctx, s.primary, s.targetRef(ref), token, opts.OnStatus)
	if err != nil {
		return TargetReport{Chat: chat, Category: category}, s.scanFailure(err)
	}
	if err := s.store.SaveTarget(category, index); err != nil {
		return TargetReport{Chat: chat, Category: category}, err
	}
	if err := s.ReloadCache(); err != nil {
		return TargetReport{Chat: chat, Category: category}, err
	}

	return TargetReport{
		Chat:         chat,
		Category:     category,
		ContentIDs:   len(index.ContentIDs),
		CompoundKeys: len(index.CompoundKeys),
		Cache:        s.cache.Stats(),
	}, nil
}

// Analyze 扫描源频道，生成整理计划并暂存等待确认
func (s *SyncService) Analyze(ctx context.Context, ref string, opts RunOptions) (StagedPlan, error) {
	token, finish, err := s.tasks.Begin(TaskAnalyze)
	if err != nil {
		return StagedPlan{}, err
	}
	defer finish()

	res, err := s.scanComplete(ctx, ref, token, opts)
	if err != nil {
		return StagedPlan{}, err
	}
	return s.stage(s.analyzer.Curate(res.Records), res.Chat)
}

// Reconcile 以频道内容为准，生成外部目录的清理计划
func (s *SyncService) Reconcile(ctx context.Context, ref string, opts RunOptions) (StagedPlan, error) {
	if s.catalog == nil {
		return StagedPlan{}, ErrNoCatalog
	}
	token, finish, err := s.tasks.Begin(TaskReconcile)
	if err != nil {
		return StagedPlan{}, err
	}
	defer finish()

	res, err := s.scanComplete(ctx, ref, token, opts)
	if err != nil {
		return StagedPlan{}, err
	}
	external, err := s.catalog.ListByChat(ctx, res.Chat.ID)
	if err != nil {
		return StagedPlan{}, err
	}
	return s.stage(s.analyzer.Reconcile(res.Records, external), res.Chat)
}

// PlanForward 由已保存的索引生成转发计划并暂存
func (s *SyncService) PlanForward(ctx context.Context, category models.Category, targetRef string, limit int) (StagedPlan, error) {
	records, chat, err := s.deliveryList(ctx, category, targetRef)
	if err != nil {
		return StagedPlan{}, err
	}
	return s.stage(s.analyzer.PlanForward(records, s.cache, chat.ID, limit), chat)
}

// Pending 查看暂存的操作
func (s *SyncService) Pending() ([]models.PendingAction, error) {
	return s.store.LoadPending()
}

// Cancel 丢弃暂存的操作
func (s *SyncService) Cancel() error {
	if err := s.store.ClearPending(); err != nil {
		return err
	}
	logger.L().Info("Pending actions cancelled")
	return nil
}

// Confirm 取出暂存操作并执行
// 目录删除直接写库；频道操作交给调度器
func (s *SyncService) Confirm(ctx context.Context, opts RunOptions) (ApplyReport, error) {
	token, finish, err := s.tasks.Begin(TaskConfirm)
	if err != nil {
		return ApplyReport{}, err
	}
	defer finish()

	actions, err := s.store.TakePending(s.now())
	if err != nil {
		return ApplyReport{}, err
	}

	rep := ApplyReport{BatchID: actions[0].BatchID}
	catalogDeletes, channel := splitActions(actions)
	logger.L().Infof("Confirm started: batch_id=%s catalog_deletes=%d channel_actions=%d",
		rep.BatchID, len(catalogDeletes), len(channel))

	if len(catalogDeletes) > 0 {
		deleted, err := s.applyCatalogDeletes(ctx, catalogDeletes)
		rep.CatalogDeleted = deleted
		if err != nil {
			return rep, err
		}
	}
	if len(channel) > 0 {
		result, err := s.dispatch(ctx, token, channel, opts.Progress)
		rep.Channel = &result
		if err != nil {
			return rep, err
		}
	}
	return rep, nil
}

// Forward 立即转发，不经过确认步骤
func (s *SyncService) Forward(ctx context.Context, category models.Category, targetRef string, limit int, opts RunOptions) (forward.Result, error) {
	token, finish, err := s.tasks.Begin(TaskForward)
	if err != nil {
		return forward.Result{}, err
	}
	defer finish()

	records, chat, err := s.deliveryList(ctx, category, targetRef)
	if err != nil {
		return forward.Result{}, err
	}
	plan := s.analyzer.PlanForward(records, s.cache, chat.ID, limit)
	if plan.Empty() {
		logger.L().Infof("Nothing to forward: category=%s target=%s", category, chat.Label())
		return forward.Result{TaskID: token.ID, Skipped: plan.Summary.AlreadyPresent}, nil
	}
	return s.dispatch(ctx, token, plan.Actions, opts.Progress)
}

// Recall 删除某次投递任务送达的全部消息
// 转发日志保持不变，撤回的内容不会被自动重新投递
func (s *SyncService) Recall(ctx context.Context, taskID string, opts RunOptions) (RecallReport, error) {
	if s.records == nil {
		return RecallReport{}, fmt.Errorf("forward records are not configured")
	}
	token, finish, err := s.tasks.Begin(TaskRecall)
	if err != nil {
		return RecallReport{}, err
	}
	defer finish()

	records, err := s.records.GetSuccessRecordsByTaskID(ctx, taskID)
	if err != nil {
		return RecallReport{}, err
	}
	if len(records) == 0 {
		return RecallReport{}, fmt.Errorf("no records found for task %s", taskID)
	}

	actions := make([]models.PendingAction, 0, len(records))
	for _, r := range records {
		actions = append(actions, models.NewDelete(models.TargetChannel, r.TargetChatID, int(r.ForwardedMessageID), "recall "+taskID))
	}

	logger.L().Infof("Starting recall: task_id=%s, total_records=%d", taskID, len(records))
	result, err := s.dispatch(ctx, token, actions, opts.Progress)
	rep := RecallReport{TaskID: taskID, Records: len(records), Result: result}
	if err != nil {
		return rep, err
	}

	if result.Failed == 0 && result.Remaining == 0 {
		if err := s.records.DeleteRecordsByTaskID(ctx, taskID); err != nil {
			logger.L().Errorf("Failed to delete forward records: %v", err)
		}
	}
	logger.L().Infof("Recall completed: task_id=%s, success=%d, failed=%d", taskID, result.Sent, result.Failed)
	return rep, nil
}

// Stop 请求当前任务停止
func (s *SyncService) Stop() bool {
	return s.tasks.Stop()
}

// Status 当前任务、缓存与暂存操作概况
func (s *SyncService) Status() (Status, error) {
	st := Status{
		Task:     s.tasks.Current(),
		Cache:    s.cache.Stats(),
		Sessions: s.dispatcher.SessionNames(),
	}
	pending, err := s.store.LoadPending()
	if err != nil {
		return st, err
	}
	st.Pending = len(pending)
	if len(pending) > 0 {
		st.PendingBatch = pending[0].BatchID
		st.PendingExpires = pending[0].ExpiresAt
	}
	return st, nil
}

// Identities 查询所有会话的身份（连通性检查）
func (s *SyncService) Identities(ctx context.Context) []SessionIdentity {
	out := make([]SessionIdentity, len(s.sessions))
	for i, tr := range s.sessions {
		identity, err := tr.Identity(ctx)
		out[i] = SessionIdentity{Name: tr.Name(), Identity: identity, Err: err}
	}
	return out
}

// CompactHistory 去除转发日志中的重复行
func (s *SyncService) CompactHistory() (int, error) {
	return s.store.CompactHistory()
}

func (s *SyncService) sourceRef(ref string) string {
	if ref != "" {
		return ref
	}
	return s.cfg.SourceRef
}

func (s *SyncService) targetRef(ref string) string {
	if ref != "" {
		return ref
	}
	return s.cfg.TargetRef
}

// scanComplete 完整扫描源频道，部分结果不可用于分析
func (s *SyncService) scanComplete(ctx context.Context, ref string, token *task.Token, opts RunOptions) (scanner.Result, error) {
	res, err := s.scanner.Scan(ctx, s.primary, s.sourceRef(ref), models.CategoryFull, token, opts.OnStatus)
	if err != nil {
		return res, s.scanFailure(err)
	}
	if res.Stopped {
		return res, scanner.ErrStopped
	}
	return res, nil
}

func (s *SyncService) scanFailure(err error) error {
	var scanErr *scanner.ScanError
	if errors.As(err, &scanErr) || errors.Is(err, scanner.ErrStopped) {
		return err
	}
	return fmt.Errorf("failed to resolve conversation: %w", err)
}

// deliveryList 读取索引并按投递顺序排列，同时解析目标频道
func (s *SyncService) deliveryList(ctx context.Context, category models.Category, targetRef string) ([]models.MediaRecord, transport.Chat, error) {
	records, err := s.store.LoadIndex(category)
	if err != nil {
		if errors.Is(err, store.ErrIndexNotFound) {
			return nil, transport.Chat{}, fmt.Errorf("no %s index, run index first: %w", category, err)
		}
		return nil, transport.Chat{}, err
	}
	chat, err := s.primary.ResolveConversation(ctx, s.targetRef(targetRef))
	if err != nil {
		return nil, transport.Chat{}, fmt.Errorf("failed to resolve target: %w", err)
	}
	return scanner.OrderForDelivery(records, category), chat, nil
}

func (s *SyncService) stage(plan analyzer.Plan, chat transport.Chat) (StagedPlan, error) {
	staged := StagedPlan{Chat: chat, Plan: plan}
	if plan.Empty() {
		if err := s.store.ClearPending(); err != nil {
			return staged, err
		}
		return staged, nil
	}

	now := s.now()
	staged.BatchID = uuid.New().String()
	staged.ExpiresAt = now.Add(s.cfg.PendingTTL)
	models.StampBatch(plan.Actions, staged.BatchID, now, s.cfg.PendingTTL)
	if err := s.store.SavePending(plan.Actions); err != nil {
		return staged, err
	}

	logger.L().Infof("Plan staged: batch_id=%s actions=%d expires_at=%s",
		staged.BatchID, len(plan.Actions), staged.ExpiresAt.Format(time.RFC3339))
	return staged, nil
}

func (s *SyncService) dispatch(ctx context.Context, token *task.Token, actions []models.PendingAction, progress *forward.Progress) (forward.Result, error) {
	return s.dispatcher.Run(ctx, forward.Job{
		TaskID:    token.ID,
		Actions:   actions,
		Token:     token,
		Progress:  progress,
		OnApplied: s.onApplied(ctx),
	})
}

// onApplied 频道操作成功后同步消息记录与目录
func (s *SyncService) onApplied(ctx context.Context) func(models.PendingAction) {
	ctx = context.WithoutCancel(ctx)
	return func(a models.PendingAction) {
		switch a.Type {
		case models.ActionDelete:
			if s.messages != nil {
				if err := s.messages.ForgetMessages(ctx, a.ChatID, []int{a.MessageID}); err != nil {
					logger.L().Warnf("Failed to sync deleted message: chat=%d msg=%d err=%v", a.ChatID, a.MessageID, err)
				}
			}
			if s.catalog != nil {
				if _, err := s.catalog.DeleteByMessages(ctx, a.ChatID, []int{a.MessageID}); err != nil {
					logger.L().Warnf("Failed to sync catalog: chat=%d msg=%d err=%v", a.ChatID, a.MessageID, err)
				}
			}
		case models.ActionEditCaption:
			if s.messages != nil {
				if err := s.messages.HandleEditedCaption(ctx, int64(a.MessageID), a.ChatID, a.Text); err != nil {
					logger.L().Warnf("Failed to sync caption: chat=%d msg=%d err=%v", a.ChatID, a.MessageID, err)
				}
			}
		}
	}
}

func (s *SyncService) applyCatalogDeletes(ctx context.Context, actions []models.PendingAction) (int64, error) {
	if s.catalog == nil {
		return 0, ErrNoCatalog
	}

	byChat := make(map[int64][]int)
	var order []int64
	for _, a := range actions {
		if _, ok := byChat[a.ChatID]; !ok {
			order = append(order, a.ChatID)
		}
		byChat[a.ChatID] = append(byChat[a.ChatID], a.MessageID)
	}

	var total int64
	for _, chatID := range order {
		deleted, err := s.catalog.DeleteByMessages(ctx, chatID, byChat[chatID])
		if err != nil {
			return total, err
		}
		total += deleted
	}
	logger.L().Infof("Catalog cleaned: requested=%d deleted=%d", len(actions), total)
	return total, nil
}

// splitActions 分离目录删除与频道操作，保持原有顺序
func splitActions(actions []models.PendingAction) (catalog, channel []models.PendingAction) {
	for _, a := range actions {
		if a.Type == models.ActionDelete && a.Target == models.TargetCatalog {
			catalog = append(catalog, a)
			continue
		}
		channel = append(channel, a)
	}
	return catalog, channel
}

func indexReport(res scanner.Result, category models.Category) IndexReport {
	rep := IndexReport{
		Chat:     res.Chat,
		Category: category,
		Records:  len(res.Records),
		Classes:  make(map[models.Classification]int),
		Stopped:  res.Stopped,
	}
	for _, r := range res.Records {
		rep.Classes[r.Classification]++
		if r.LowQuality {
			rep.LowQuality++
		}
	}
	return rep
}
