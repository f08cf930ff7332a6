// Package classifier 媒体分类与剧集信息解析
package classifier

import (
	"regexp"
	"strings"

	"mirror_bot/internal/telegram/models"
	"mirror_bot/internal/telegram/quality"
)

var (
	extensionRegex  = regexp.MustCompile(`(?i)\.(mkv|mp4|avi|mov|wmv|flv|webm|m4v|mpg|mpeg|m2ts|ts|3gp)$`)
	separatorRegex  = regexp.MustCompile(`[._]+`)
	whitespaceRegex = regexp.MustCompile(`\s+`)
)

// Result 分类结果
// Tag 四选一；LowQuality 独立于 Tag，剧集也可能是低画质
type Result struct {
	Tag        models.Classification
	Episode    *models.EpisodeInfo // 仅剧集非空
	LowQuality bool
	Matcher    string // 命中的匹配器名称
}

// Classifier 按固定优先级执行匹配器级联
type Classifier struct {
	matchers []Matcher
}

// New 创建分类器，未传入匹配器时使用 DefaultMatchers
func New(matchers ...Matcher) *Classifier {
	if len(matchers) == 0 {
		matchers = DefaultMatchers()
	}
	return &Classifier{matchers: matchers}
}

// Classify 根据文件名与说明文字分类
// 每个匹配器先尝试文件名，再逐行尝试说明文字；结果只取决于输入文本
func (c *Classifier) Classify(displayName, caption string) Result {
	name := prepare(displayName)
	lines := captionLines(caption)
	if name == "" && len(lines) == 0 {
		return Result{Tag: models.ClassUnknown}
	}

	result := Result{
		Tag:        models.ClassMovie,
		LowQuality: quality.IsLowQuality(displayName, caption),
	}

	candidates := make([]string, 0, len(lines)+1)
	if name != "" {
		candidates = append(candidates, name)
	}
	candidates = append(candidates, lines...)

	for _, matcher := range c.matchers {
		for _, text := range candidates {
			info, ok := matcher.Match(text)
			if !ok {
				continue
			}
			// 兜底匹配只说明有季标记，标题以文件名为准
			if matcher.Name() == fallbackName && name != "" {
				info.Title = cleanTitle(name)
			}
			if info.Title == "" {
				info.Title = quality.Normalize(displayName)
			}
			result.Tag = models.ClassEpisodic
			result.Episode = &info
			result.Matcher = matcher.Name()
			return result
		}
	}

	if result.LowQuality {
		result.Tag = models.ClassLowQuality
	}
	return result
}

// Apply 将分类结果写入记录
func (r Result) Apply(record *models.MediaRecord) {
	record.Classification = r.Tag
	record.LowQuality = r.LowQuality
	record.Episode = r.Episode
}

// Accepts 判断分类结果是否属于指定索引分类
func Accepts(category models.Category, r Result) bool {
	switch category {
	case models.CategoryMovie:
		return r.Tag == models.ClassMovie || r.Tag == models.ClassLowQuality
	case models.CategorySeries:
		return r.Tag == models.ClassEpisodic
	case models.CategoryBad:
		return r.LowQuality
	default:
		return true
	}
}

// prepare 去扩展名，点号和下划线转为空格
func prepare(text string) string {
	text = strings.TrimSpace(text)
	text = extensionRegex.ReplaceAllString(text, "")
	text = separatorRegex.ReplaceAllString(text, " ")
	return strings.TrimSpace(whitespaceRegex.ReplaceAllString(text, " "))
}

func captionLines(caption string) []string {
	var lines []string
	for _, line := range strings.Split(caption, "\n") {
		if line = prepare(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// cleanTitle 标题小写、去首尾分隔符、合并空白
func cleanTitle(title string) string {
	title = strings.ToLower(separatorRegex.ReplaceAllString(title, " "))
	title = whitespaceRegex.ReplaceAllString(title, " ")
	return strings.Trim(title, " -–|:[](){}")
}
