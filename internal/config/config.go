package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config 应用程序配置
type Config struct {
	TelegramToken string    // 主会话 + 操作 bot 的 Token
	Sessions      []Session // 额外投递会话（SESSION_TOKENS 与 SESSIONS_FILE 合并）
	BotOwnerIDs   []int64   // Bot 管理员 ID 列表
	MongoURI      string    // MongoDB 连接 URI，为空时不启用消息记录与目录
	MongoDBName   string    // MongoDB 数据库名称
	DataDir       string    // 索引、转发日志、待确认文件目录

	SourceRef string // 默认源频道
	TargetRef string // 默认目标频道

	ForwardMode        string // copy | forward
	RatePerSecond      int
	BatchSize          int
	BatchPause         time.Duration
	ItemDelay          time.Duration
	CooldownMargin     time.Duration
	MaxCooldownRetries int

	ScanStatusEvery  int
	ProgressInterval time.Duration
	PendingTTL       time.Duration
	ForwardRecordTTL time.Duration

	CaptionFooter       string
	CaptionAllowed      []string
	FuzzyGroupThreshold float64
	KeepAllTiers        bool
}

// Session 单个投递会话
type Session struct {
	Name  string `toml:"name"`
	Token string `toml:"token"`
}

type sessionsFile struct {
	Session []Session `toml:"session"`
}

// Load 从环境变量加载配置
func Load() (*Config, error) {
	mongoDBName := os.Getenv("MONGO_DB_NAME")
	if mongoDBName == "" {
		mongoDBName = "mirror_bot"
	}
	dataDir := strings.TrimSpace(os.Getenv("DATA_DIR"))
	if dataDir == "" {
		dataDir = "data"
	}

	cfg := &Config{
		TelegramToken: strings.TrimSpace(os.Getenv("TELEGRAM_TOKEN")),
		MongoURI:      strings.TrimSpace(os.Getenv("MONGO_URI")),
		MongoDBName:   mongoDBName,
		DataDir:       dataDir,
		SourceRef:     strings.TrimSpace(os.Getenv("SOURCE_CHAT")),
		TargetRef:     strings.TrimSpace(os.Getenv("TARGET_CHAT")),
		CaptionFooter: os.Getenv("CAPTION_FOOTER"),
	}

	if cfg.TelegramToken == "" {
		return nil, fmt.Errorf("TELEGRAM_TOKEN is required")
	}

	// 解析BOT_OWNER_IDS
	ownerIDsStr := os.Getenv("BOT_OWNER_IDS")
	if ownerIDsStr != "" {
		var err error
		cfg.BotOwnerIDs, err = parseOwnerIDs(ownerIDsStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse BOT_OWNER_IDS: %w", err)
		}
	}

	sessions, err := loadSessions()
	if err != nil {
		return nil, err
	}
	cfg.Sessions = sessions

	cfg.ForwardMode = strings.ToLower(strings.TrimSpace(os.Getenv("FORWARD_MODE")))
	switch cfg.ForwardMode {
	case "":
		cfg.ForwardMode = "copy"
	case "copy", "forward":
	default:
		return nil, fmt.Errorf("FORWARD_MODE must be copy or forward, got %q", cfg.ForwardMode)
	}

	ints := []struct {
		key  string
		def  int
		min  int
		dest *int
	}{
		{"RATE_PER_SECOND", 20, 1, &cfg.RatePerSecond},
		{"BATCH_SIZE", 100, 1, &cfg.BatchSize},
		{"MAX_COOLDOWN_RETRIES", 3, 0, &cfg.MaxCooldownRetries},
		{"SCAN_STATUS_EVERY", 1000, 0, &cfg.ScanStatusEvery},
	}
	for _, item := range ints {
		value, err := intEnv(item.key, item.def, item.min)
		if err != nil {
			return nil, err
		}
		*item.dest = value
	}

	durations := []struct {
		key  string
		def  int
		unit time.Duration
		dest *time.Duration
	}{
		{"BATCH_PAUSE_SECONDS", 30, time.Second, &cfg.BatchPause},
		{"ITEM_DELAY_MS", 1000, time.Millisecond, &cfg.ItemDelay},
		{"COOLDOWN_MARGIN_SECONDS", 5, time.Second, &cfg.CooldownMargin},
		{"PROGRESS_INTERVAL_SECONDS", 5, time.Second, &cfg.ProgressInterval},
		{"PENDING_TTL_MINUTES", 30, time.Minute, &cfg.PendingTTL},
		{"FORWARD_RECORD_TTL_HOURS", 168, time.Hour, &cfg.ForwardRecordTTL},
	}
	for _, item := range durations {
		value, err := intEnv(item.key, item.def, 0)
		if err != nil {
			return nil, err
		}
		*item.dest = time.Duration(value) * item.unit
	}

	if v := strings.TrimSpace(os.Getenv("FUZZY_GROUP_THRESHOLD")); v != "" {
		threshold, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse FUZZY_GROUP_THRESHOLD: %w", err)
		}
		if threshold < 0 || threshold > 1 {
			return nil, fmt.Errorf("FUZZY_GROUP_THRESHOLD must be within [0, 1], got %v", threshold)
		}
		cfg.FuzzyGroupThreshold = threshold
	}

	if v := strings.TrimSpace(os.Getenv("KEEP_ALL_TIERS")); v != "" {
		keep, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("failed to parse KEEP_ALL_TIERS: %w", err)
		}
		cfg.KeepAllTiers = keep
	}

	cfg.CaptionAllowed = splitList(os.Getenv("CAPTION_ALLOWED_MENTIONS"))

	return cfg, nil
}

// SessionTokens 全部会话，主 Token 排在第一位
func (c *Config) SessionTokens() []Session {
	out := make([]Session, 0, len(c.Sessions)+1)
	out = append(out, Session{Name: "primary", Token: c.TelegramToken})
	return append(out, c.Sessions...)
}

// loadSessions 合并 SESSION_TOKENS 与 SESSIONS_FILE
func loadSessions() ([]Session, error) {
	var sessions []Session
	for i, token := range splitList(os.Getenv("SESSION_TOKENS")) {
		sessions = append(sessions, Session{Name: fmt.Sprintf("session-%d", i+1), Token: token})
	}

	path := strings.TrimSpace(os.Getenv("SESSIONS_FILE"))
	if path == "" {
		return sessions, nil
	}
	fromFile, err := LoadSessionsFile(path)
	if err != nil {
		return nil, err
	}
	return append(sessions, fromFile...), nil
}

// LoadSessionsFile 读取 TOML 会话列表
//
//	[[session]]
//	name = "worker-1"
//	token = "123:abc"
func LoadSessionsFile(path string) ([]Session, error) {
	var file sessionsFile
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return nil, fmt.Errorf("failed to decode SESSIONS_FILE %s: %w", path, err)
	}

	seen := make(map[string]struct{}, len(file.Session))
	sessions := make([]Session, 0, len(file.Session))
	for i, s := range file.Session {
		s.Name = strings.TrimSpace(s.Name)
		s.Token = strings.TrimSpace(s.Token)
		if s.Token == "" {
			return nil, fmt.Errorf("session #%d in %s has no token", i+1, path)
		}
		if s.Name == "" {
			s.Name = fmt.Sprintf("file-%d", i+1)
		}
		if _, dup := seen[s.Name]; dup {
			return nil, fmt.Errorf("duplicate session name %q in %s", s.Name, path)
		}
		seen[s.Name] = struct{}{}
		sessions = append(sessions, s)
	}
	return sessions, nil
}

// parseOwnerIDs 解析逗号分隔的用户ID字符串
// 支持格式: "123456789" 或 "123456789,987654321"
func parseOwnerIDs(s string) ([]int64, error) {
	parts := strings.Split(s, ",")
	ids := make([]int64, 0, len(parts))

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid owner ID %q: %w", part, err)
		}
		ids = append(ids, id)
	}

	return ids, nil
}

func intEnv(key string, def, min int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s: %w", key, err)
	}
	if value < min {
		return 0, fmt.Errorf("%s must be >= %d, got %d", key, min, value)
	}
	return value, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
