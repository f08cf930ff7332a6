// Package analyzer 资源库分析（试运行规划）
//
// 分析只生成待确认操作，不修改任何远端数据。
package analyzer

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/hbollon/go-edlib"

	"mirror_bot/internal/logger"
	"mirror_bot/internal/telegram/models"
	"mirror_bot/internal/telegram/quality"
	"mirror_bot/internal/telegram/report"
)

// 删除原因
const (
	ReasonLowQuality = "low quality, better copy exists"
	ReasonDuplicate  = "duplicate in same quality tier"
	ReasonLowerTier  = "lower quality tier"
	ReasonMissing    = "missing from channel"
)

// Options 分析选项
type Options struct {
	// KeepBestTierOnly 每组只保留最高档位中体积最大的一条
	// 关闭时每个档位各保留一条
	KeepBestTierOnly bool
	// FuzzyThreshold 相似标题合并阈值（Jaro-Winkler，0 表示关闭）
	FuzzyThreshold float64
	// Captions 非空时为保留下来的记录生成说明文字修改
	Captions *CaptionCleaner
}

// DefaultOptions 默认选项
func DefaultOptions() Options {
	return Options{KeepBestTierOnly: true}
}

// Summary 分析统计
type Summary struct {
	Records        int
	Groups         int
	Kept           int
	LowQuality     int
	Duplicates     int
	LowerTier      int
	CaptionEdits   int
	Forwards       int
	AlreadyPresent int
	Missing        int
}

// Deletes 删除操作总数
func (s Summary) Deletes() int {
	return s.LowQuality + s.Duplicates + s.LowerTier + s.Missing
}

// Table 以表格形式展示统计
func (s Summary) Table() string {
	rows := [][2]string{
		{"Records", strconv.Itoa(s.Records)},
		{"Groups", strconv.Itoa(s.Groups)},
		{"Kept", strconv.Itoa(s.Kept)},
		{"Delete: low quality", strconv.Itoa(s.LowQuality)},
		{"Delete: duplicates", strconv.Itoa(s.Duplicates)},
		{"Delete: lower tier", strconv.Itoa(s.LowerTier)},
		{"Delete: missing", strconv.Itoa(s.Missing)},
		{"Caption edits", strconv.Itoa(s.CaptionEdits)},
		{"Forwards", strconv.Itoa(s.Forwards)},
		{"Already present", strconv.Itoa(s.AlreadyPresent)},
	}
	return report.KeyValue(rows)
}

// Plan 分析结果
type Plan struct {
	Actions []models.PendingAction
	Summary Summary
}

// Empty 没有任何操作
func (p *Plan) Empty() bool { return len(p.Actions) == 0 }

// Analyzer 资源库分析器
type Analyzer struct {
	opts Options
}

// New 创建分析器
func New(opts Options) *Analyzer {
	return &Analyzer{opts: opts}
}

type entry struct {
	index  int // 扫描顺序
	record *models.MediaRecord
	score  int
	tier   int
	low    bool
}

type group struct {
	key     string
	entries []*entry
}

// Curate 按归一化标题分组，生成删除与说明文字修改操作
//
// 规则 1：组内只要有一条非低画质记录，所有低画质记录删除
// 规则 2：同一档位多条记录时保留体积最大的一条（相同体积保留先扫描到的）
func (a *Analyzer) Curate(records []models.MediaRecord) Plan {
	groups := a.group(records)
	plan := Plan{Summary: Summary{Records: len(records), Groups: len(groups)}}

	for _, g := range groups {
		kept := a.curateGroup(g, &plan)
		plan.Summary.Kept += len(kept)
		if a.opts.Captions == nil {
			continue
		}
		for _, e := range kept {
			cleaned := a.opts.Captions.Clean(e.record.Caption)
			if cleaned == e.record.Caption {
				continue
			}
			plan.Actions = append(plan.Actions, models.NewEditCaption(e.record.ChatID, e.record.MessageID, cleaned))
			plan.Summary.CaptionEdits++
		}
	}

	logger.L().Infof("Curate planned: records=%d groups=%d deletes=%d caption_edits=%d",
		plan.Summary.Records, plan.Summary.Groups, plan.Summary.Deletes(), plan.Summary.CaptionEdits)
	return plan
}

// curateGroup 对单组应用删除规则，返回保留的记录
func (a *Analyzer) curateGroup(g *group, plan *Plan) []*entry {
	hasGood := false
	for _, e := range g.entries {
		if !e.low {
			hasGood = true
			break
		}
	}

	remaining := make([]*entry, 0, len(g.entries))
	for _, e := range g.entries {
		if hasGood && e.low {
			a.markDelete(plan, e, ReasonLowQuality)
			plan.Summary.LowQuality++
			continue
		}
		remaining = append(remaining, e)
	}

	// 按档位保留体积最大的一条，档位顺序按首次出现
	best := make(map[int]*entry)
	var tiers []int
	for _, e := range remaining {
		current, ok := best[e.tier]
		if !ok {
			best[e.tier] = e
			tiers = append(tiers, e.tier)
			continue
		}
		if e.record.ByteSize > current.record.ByteSize {
			best[e.tier] = e
		}
	}
	for _, e := range remaining {
		if best[e.tier] != e {
			a.markDelete(plan, e, ReasonDuplicate)
			plan.Summary.Duplicates++
		}
	}

	kept := make([]*entry, 0, len(tiers))
	for _, tier := range tiers {
		kept = append(kept, best[tier])
	}
	if !a.opts.KeepBestTierOnly || len(kept) <= 1 {
		return sortByIndex(kept)
	}

	top := kept[0]
	for _, e := range kept[1:] {
		if e.tier > top.tier {
			top = e
		}
	}
	for _, e := range kept {
		if e != top {
			a.markDelete(plan, e, ReasonLowerTier)
			plan.Summary.LowerTier++
		}
	}
	return []*entry{top}
}

func (a *Analyzer) markDelete(plan *Plan, e *entry, reason string) {
	plan.Actions = append(plan.Actions, models.NewDelete(
		models.TargetChannel, e.record.ChatID, e.record.MessageID,
		fmt.Sprintf("%s: %s", reason, e.record.DisplayName),
	))
}

// group 按归一化标题分组，组顺序为首次出现顺序
func (a *Analyzer) group(records []models.MediaRecord) []*group {
	var groups []*group
	byKey := make(map[string]*group)

	for i := range records {
		record := &records[i]
		name := record.DisplayName
		if name == "" {
			name = record.Caption
		}
		score := quality.Score(record.DisplayName, record.Caption)
		e := &entry{
			index:  i,
			record: record,
			score:  score,
			tier:   floorDiv(score, 10),
			low:    record.LowQuality || record.Classification == models.ClassLowQuality,
		}

		key := quality.Normalize(name)
		if g, ok := byKey[key]; ok {
			g.entries = append(g.entries, e)
			continue
		}
		if target := a.fuzzyMatch(groups, key); target != nil {
			byKey[key] = target
			target.entries = append(target.entries, e)
			continue
		}
		g := &group{key: key, entries: []*entry{e}}
		byKey[key] = g
		groups = append(groups, g)
	}
	return groups
}

// fuzzyMatch 查找相似度达到阈值且数字序列一致的已有分组
func (a *Analyzer) fuzzyMatch(groups []*group, key string) *group {
	if a.opts.FuzzyThreshold <= 0 || key == "" {
		return nil
	}
	var (
		best      *group
		bestScore float64
	)
	for _, g := range groups {
		if g.key == "" || !quality.SameNumbers(g.key, key) {
			continue
		}
		score := float64(edlib.JaroWinklerSimilarity(g.key, key))
		if score >= a.opts.FuzzyThreshold && score > bestScore {
			best, bestScore = g, score
		}
	}
	if best != nil {
		logger.L().Debugf("Fuzzy merged group: key=%q into=%q score=%.3f", key, best.key, bestScore)
	}
	return best
}

// Contains 目标频道存在性检查（由去重缓存实现）
type Contains interface {
	Contains(record *models.MediaRecord) bool
}

// PlanForward 为尚未到达目标频道的记录生成转发操作
// 保持输入顺序；同一文件在列表中出现多次只转发第一次；limit <= 0 表示不限
func (a *Analyzer) PlanForward(records []models.MediaRecord, present Contains, targetChatID int64, limit int) Plan {
	plan := Plan{Summary: Summary{Records: len(records)}}
	seenIDs := make(map[string]struct{})
	seenKeys := make(map[string]struct{})

	for i := range records {
		record := &records[i]
		if present != nil && present.Contains(record) {
			plan.Summary.AlreadyPresent++
			continue
		}
		if seen(seenIDs, record.ContentID) || seen(seenKeys, record.CompoundKey()) {
			plan.Summary.AlreadyPresent++
			continue
		}
		if limit > 0 && plan.Summary.Forwards >= limit {
			break
		}
		plan.Actions = append(plan.Actions, models.NewForward(*record, targetChatID))
		plan.Summary.Forwards++
	}

	logger.L().Infof("Forward planned: records=%d forwards=%d already_present=%d",
		plan.Summary.Records, plan.Summary.Forwards, plan.Summary.AlreadyPresent)
	return plan
}

// Reconcile 以频道内容为准，外部目录中频道已不存在的记录生成删除操作
func (a *Analyzer) Reconcile(fresh []models.MediaRecord, external []models.MediaRecord) Plan {
	type messageKey struct {
		chatID    int64
		messageID int
	}
	present := make(map[messageKey]struct{}, len(fresh))
	for _, r := range fresh {
		present[messageKey{r.ChatID, r.MessageID}] = struct{}{}
	}

	plan := Plan{Summary: Summary{Records: len(external)}}
	for _, r := range external {
		if _, ok := present[messageKey{r.ChatID, r.MessageID}]; ok {
			plan.Summary.Kept++
			continue
		}
		plan.Actions = append(plan.Actions, models.NewDelete(
			models.TargetCatalog, r.ChatID, r.MessageID,
			fmt.Sprintf("%s: %s", ReasonMissing, r.DisplayName),
		))
		plan.Summary.Missing++
	}

	logger.L().Infof("Reconcile planned: external=%d fresh=%d missing=%d",
		len(external), len(fresh), plan.Summary.Missing)
	return plan
}

// seen 记录并判断 key 是否已出现过；空 key 视为未出现
func seen(set map[string]struct{}, key string) bool {
	if key == "" {
		return false
	}
	if _, ok := set[key]; ok {
		return true
	}
	set[key] = struct{}{}
	return false
}

func sortByIndex(entries []*entry) []*entry {
	slices.SortFunc(entries, func(a, b *entry) int { return a.index - b.index })
	return entries
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
