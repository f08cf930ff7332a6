// Package quality 标题归一化与画质评分
package quality

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	extensionRegex = regexp.MustCompile(`\.(mkv|mp4|avi|mov|wmv|flv|webm|m4v|mpg|mpeg|m2ts|ts|3gp|rar|zip)$`)
	nonAlnumRegex  = regexp.MustCompile(`[^\p{L}\p{N}]+`)
	joinedRegex    = regexp.MustCompile(`\b(blu[\s._-]?ray|web[\s._-]?(dl|rip)|pre[\s._-]?dvd(rip)?|hd[\s._-]?(cam|ts|rip))\b`)
	yearRegex      = regexp.MustCompile(`^(19|20)\d{2}$`)
	digitsRegex    = regexp.MustCompile(`\d+`)

	// 带数字的画质/编码 token
	patternTokens = []*regexp.Regexp{
		regexp.MustCompile(`^\d{3,4}[pi]$`),             // 1080p, 720p, 480i
		regexp.MustCompile(`^[xh]26[456]$`),              // x264, h265
		regexp.MustCompile(`^\d{1,2}bit$`),               // 10bit
		regexp.MustCompile(`^\d+(mb|gb)$`),               // 700mb, 2gb
		regexp.MustCompile(`^(dd|ddp|aac|ac3|eac3)\d*$`), // ddp5, aac2
		regexp.MustCompile(`^hdr10(plus)?$`),
	}
)

// qualityTokens 归一化时剔除的画质、来源、编码、语言标记
var qualityTokens = buildTokenSet(
	// 分辨率
	[]string{"4k", "uhd", "fhd", "hd", "sd", "hq", "hdr", "dv", "dovi", "sdr"},
	// 来源
	[]string{"bluray", "bdrip", "brrip", "bdremux", "remux", "webrip", "webdl", "web",
		"hdtv", "pdtv", "dvdrip", "dvd", "dvdscr", "hdrip", "rip", "amzn", "nf", "dsnp", "hmax", "zee5", "hotstar",
		"cam", "camrip", "hdcam", "hdts", "ts", "telesync", "tc", "scr", "screener", "predvd", "predvdrip"},
	// 编码与音频
	[]string{"hevc", "avc", "xvid", "divx", "av1", "aac", "ac3", "eac3", "dts", "truehd", "atmos", "ddp", "dd", "opus", "flac"},
	// 发布标记
	[]string{"proper", "repack", "extended", "uncut", "unrated", "remastered", "internal", "limited"},
	// 语言与字幕
	[]string{"hindi", "english", "eng", "tamil", "telugu", "malayalam", "kannada", "bengali", "dual", "multi",
		"audio", "org", "esub", "esubs", "msub", "msubs", "sub", "subs", "dubbed"},
)

func buildTokenSet(groups ...[]string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, group := range groups {
		for _, token := range group {
			set[token] = struct{}{}
		}
	}
	return set
}

// Normalize 将标题归一化为分组键
// 小写、去重音、去扩展名、去年份、去画质标记、去非字母数字、合并空白
// 同一作品的不同文件名应得到相同结果（启发式，不保证无碰撞）
func Normalize(title string) string {
	s := strings.ToLower(strings.TrimSpace(title))
	s = foldAccents(s)
	s = extensionRegex.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "_", " ")
	s = joinedRegex.ReplaceAllStringFunc(s, func(m string) string {
		return " " + nonAlnumRegex.ReplaceAllString(m, "") + " "
	})
	s = nonAlnumRegex.ReplaceAllString(s, " ")

	fields := strings.Fields(s)
	kept := make([]string, 0, len(fields))
	for _, field := range fields {
		if yearRegex.MatchString(field) || IsQualityToken(field) {
			continue
		}
		kept = append(kept, field)
	}

	// 标题本身就是年份时（例如 "1917"），保留第一个年份
	if len(kept) == 0 {
		for _, field := range fields {
			if yearRegex.MatchString(field) {
				return field
			}
		}
		return strings.Join(fields, " ")
	}
	return strings.Join(kept, " ")
}

// IsQualityToken 是否为画质/编码/语言标记（输入应为小写单词）
func IsQualityToken(token string) bool {
	if _, ok := qualityTokens[token]; ok {
		return true
	}
	for _, re := range patternTokens {
		if re.MatchString(token) {
			return true
		}
	}
	return false
}

// SameNumbers 两个归一化标题中的数字序列是否一致
// 用于模糊合并时区分续集与不同集数
func SameNumbers(a, b string) bool {
	na := digitsRegex.FindAllString(a, -1)
	nb := digitsRegex.FindAllString(b, -1)
	if len(na) != len(nb) {
		return false
	}
	for i := range na {
		if strings.TrimLeft(na[i], "0") != strings.TrimLeft(nb[i], "0") {
			return false
		}
	}
	return true
}

func foldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return result
}
