package analyzer

import (
	"regexp"
	"strings"
)

var (
	linkRegex     = regexp.MustCompile(`(?i)(?:https?://)?(?:t\.me|telegram\.me)/\S+`)
	mentionRegex  = regexp.MustCompile(`@[A-Za-z][A-Za-z0-9_]{3,31}`)
	blankRunRegex = regexp.MustCompile(`\n{3,}`)
)

// CaptionCleaner 清理说明文字：去除 t.me 链接与其他频道的 @ 提及，追加统一落款
type CaptionCleaner struct {
	Footer  string
	Allowed []string // 保留的 @username（不区分大小写，可带 @）
}

// Clean 返回清理后的说明文字；结果与原文相同时原样返回
// 对已清理过的文本再次调用结果不变
func (c *CaptionCleaner) Clean(caption string) string {
	footer := strings.TrimSpace(c.Footer)
	body := strings.TrimSpace(caption)
	if footer != "" {
		body = strings.TrimSpace(strings.TrimSuffix(body, footer))
	}

	body = linkRegex.ReplaceAllString(body, "")
	body = mentionRegex.ReplaceAllStringFunc(body, func(m string) string {
		if c.allowed(strings.TrimPrefix(m, "@")) {
			return m
		}
		return ""
	})

	lines := strings.Split(body, "\n")
	for i, line := range lines {
		lines[i] = strings.Join(strings.Fields(line), " ")
	}
	body = strings.TrimSpace(blankRunRegex.ReplaceAllString(strings.Join(lines, "\n"), "\n\n"))

	text := body
	if footer != "" {
		if text == "" {
			text = footer
		} else {
			text += "\n\n" + footer
		}
	}
	if text == strings.TrimSpace(caption) {
		return caption
	}
	return text
}

func (c *CaptionCleaner) allowed(username string) bool {
	for _, a := range c.Allowed {
		if strings.EqualFold(strings.TrimPrefix(a, "@"), username) {
			return true
		}
	}
	return false
}
