package classifier

import (
	"regexp"
	"strconv"

	"mirror_bot/internal/telegram/models"
)

// Matcher 剧集信息匹配器
// 级联按声明顺序执行，第一个命中的匹配器胜出
type Matcher interface {
	Name() string
	Match(text string) (models.EpisodeInfo, bool)
}

// DefaultMatchers 默认级联：区间 > 单集 > 整季 > 仅集数 > 季标记兜底
func DefaultMatchers() []Matcher {
	return []Matcher{
		rangeMatcher{},
		singleMatcher{},
		seasonCompleteMatcher{},
		episodeOnlyMatcher{},
		fallbackMatcher{},
	}
}

var (
	// S01E01-E05 / S01E01-05 / Season 1 Episode 1 to 5
	rangeRegex = regexp.MustCompile(`(?i)^(.*?)\b(?:s|season\s*)(\d{1,2})[\s-]*(?:e|ep|episode)\s*(\d{1,3})\s*(?:-|~|to)\s*(?:e|ep|episode)?\s*(\d{1,3})\b`)

	// S02E05 / S02 E05 / Season 2 Episode 13
	singleRegex = regexp.MustCompile(`(?i)^(.*?)\b(?:s|season\s*)(\d{1,2})[\s-]*(?:e|ep|episode)\s*(\d{1,3})\b`)

	seasonCompleteRegexes = []*regexp.Regexp{
		// Show S01 Complete / Show Season 1 All Episodes
		regexp.MustCompile(`(?i)^(.*?)\b(?:s|season\s*)(\d{1,2})\b.*?\b(?:complete|combined|all\s+episodes|full\s+season)\b`),
		// Show Complete Season 1
		regexp.MustCompile(`(?i)^(.*?)\b(?:complete|full)\s+(?:s|season\s*)(\d{1,2})\b`),
	}

	// Ep05 / Episode 5 / E05
	episodeOnlyRegex = regexp.MustCompile(`(?i)^(.*?)(?:\b(?:ep|episode)\s*(\d{1,3})\b|\be(\d{1,3})\b)`)

	// 剧集标识：任意命中即视为剧集
	seriesTokenRegex = regexp.MustCompile(`(?i)\bs(\d{1,2})(?:\s*e\d{1,3})?\b|\bseason\s*(\d{1,2})?\b|\bep\b|\bepisode\b`)
)

type rangeMatcher struct{}

func (rangeMatcher) Name() string { return "range" }

func (rangeMatcher) Match(text string) (models.EpisodeInfo, bool) {
	m := rangeRegex.FindStringSubmatch(text)
	if m == nil {
		return models.EpisodeInfo{}, false
	}
	start, end := atoi(m[3]), atoi(m[4])
	if end <= start {
		return models.EpisodeInfo{}, false
	}
	return models.EpisodeInfo{
		Title:      cleanTitle(m[1]),
		Season:     atoi(m[2]),
		Episode:    start,
		EpisodeEnd: end,
	}, true
}

type singleMatcher struct{}

func (singleMatcher) Name() string { return "single" }

func (singleMatcher) Match(text string) (models.EpisodeInfo, bool) {
	m := singleRegex.FindStringSubmatch(text)
	if m == nil {
		return models.EpisodeInfo{}, false
	}
	return models.EpisodeInfo{
		Title:   cleanTitle(m[1]),
		Season:  atoi(m[2]),
		Episode: atoi(m[3]),
	}, true
}

type seasonCompleteMatcher struct{}

func (seasonCompleteMatcher) Name() string { return "season_complete" }

func (seasonCompleteMatcher) Match(text string) (models.EpisodeInfo, bool) {
	for _, re := range seasonCompleteRegexes {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		return models.EpisodeInfo{
			Title:   cleanTitle(m[1]),
			Season:  atoi(m[2]),
			Episode: models.EpisodeSentinel,
		}, true
	}
	return models.EpisodeInfo{}, false
}

type episodeOnlyMatcher struct{}

func (episodeOnlyMatcher) Name() string { return "episode_only" }

func (episodeOnlyMatcher) Match(text string) (models.EpisodeInfo, bool) {
	m := episodeOnlyRegex.FindStringSubmatch(text)
	if m == nil {
		return models.EpisodeInfo{}, false
	}
	episode := m[2]
	if episode == "" {
		episode = m[3]
	}
	return models.EpisodeInfo{
		Title:   cleanTitle(m[1]),
		Season:  1,
		Episode: atoi(episode),
	}, true
}

// fallbackMatcher 只有季标记时兜底：标题取整段文本，集数默认 1
type fallbackMatcher struct{}

const fallbackName = "fallback"

func (fallbackMatcher) Name() string { return fallbackName }

func (fallbackMatcher) Match(text string) (models.EpisodeInfo, bool) {
	m := seriesTokenRegex.FindStringSubmatch(text)
	if m == nil {
		return models.EpisodeInfo{}, false
	}
	season := 1
	for _, group := range m[1:] {
		if group != "" {
			season = atoi(group)
			break
		}
	}
	return models.EpisodeInfo{
		Title:   cleanTitle(text),
		Season:  season,
		Episode: 1,
	}, true
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
