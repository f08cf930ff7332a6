package quality

import (
	"regexp"
	"strings"
)

// Tier 分辨率档位，数值越大画质越高
type Tier int

const (
	TierUnknown Tier = iota
	TierLow
	TierMedium
	TierHigh
	TierUltra
)

func (t Tier) String() string {
	switch t {
	case TierUltra:
		return "2160p"
	case TierHigh:
		return "1080p"
	case TierMedium:
		return "720p"
	case TierLow:
		return "sd"
	default:
		return "unknown"
	}
}

const (
	tierWeight        = 10
	efficientBonus    = 1
	lowQualityPenalty = 20
)

var (
	tierPatterns = []struct {
		tier Tier
		re   *regexp.Regexp
	}{
		{TierUltra, regexp.MustCompile(`\b(2160p|4k|uhd)\b`)},
		{TierHigh, regexp.MustCompile(`\b(1080p|1080i|fhd)\b`)},
		{TierMedium, regexp.MustCompile(`\b(720p|hdrip)\b`)},
		{TierLow, regexp.MustCompile(`\b(480p|360p|240p|576p|sd)\b`)},
	}

	efficientRegex = regexp.MustCompile(`\b(x265|h ?265|hevc|av1)\b`)

	// 低画质关键字：枪版、TS、预发布、录音轨等
	lowQualityRegex = regexp.MustCompile(`\b(cam|camrip|hdcam|hdts|hd-ts|ts|telesync|tc|pre-?dvdrip|predvd|scr|screener|line audio|bad audio)\b`)
)

// scoringText 评分前的预处理：小写、下划线/点号转空格、去扩展名
func scoringText(parts ...string) string {
	texts := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		p = extensionRegex.ReplaceAllString(p, "")
		p = strings.NewReplacer("_", " ", ".", " ").Replace(p)
		texts = append(texts, p)
	}
	return strings.Join(texts, " ")
}

// DetectTier 识别文本中的分辨率档位，多个档位同时出现时取最高
func DetectTier(text string) Tier {
	s := scoringText(text)
	for _, p := range tierPatterns {
		if p.re.MatchString(s) {
			return p.tier
		}
	}
	return TierUnknown
}

// IsLowQuality 文件名或说明文字是否包含低画质关键字
// 两者分别去扩展名，.ts 容器不算作 TS 枪版
func IsLowQuality(name, caption string) bool {
	return lowQualityRegex.MatchString(scoringText(name, caption))
}

// IsEfficient 是否为高压缩率编码
func IsEfficient(text string) bool {
	return efficientRegex.MatchString(scoringText(text))
}

// Score 综合文件名与说明文字计算画质分
// 只有同一归一化标题组内的分数才有比较意义
func Score(name, caption string) int {
	text := scoringText(name, caption)
	score := int(DetectTier(text)) * tierWeight
	if efficientRegex.MatchString(text) {
		score += efficientBonus
	}
	if lowQualityRegex.MatchString(text) {
		score -= lowQualityPenalty
	}
	return score
}
