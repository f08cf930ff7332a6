package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TELEGRAM_TOKEN", "1:primary")
	t.Setenv("SESSION_TOKENS", "")
	t.Setenv("SESSIONS_FILE", "")
	t.Setenv("FORWARD_MODE", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.ForwardMode != "copy" {
		t.Fatalf("expected copy mode, got %q", cfg.ForwardMode)
	}
	if cfg.BatchSize != 100 || cfg.BatchPause != 30*time.Second || cfg.ItemDelay != time.Second {
		t.Fatalf("unexpected pacing defaults: %+v", cfg)
	}
	if cfg.MaxCooldownRetries != 3 || cfg.CooldownMargin != 5*time.Second {
		t.Fatalf("unexpected cooldown defaults: %+v", cfg)
	}
	if cfg.PendingTTL != 30*time.Minute || cfg.ForwardRecordTTL != 168*time.Hour {
		t.Fatalf("unexpected ttl defaults: %+v", cfg)
	}
	if cfg.FuzzyGroupThreshold != 0 {
		t.Fatalf("fuzzy grouping should be disabled by default")
	}
	sessions := cfg.SessionTokens()
	if len(sessions) != 1 || sessions[0].Token != "1:primary" {
		t.Fatalf("unexpected sessions: %+v", sessions)
	}
}

func TestLoadRequiresToken(t *testing.T) {
	t.Setenv("TELEGRAM_TOKEN", "")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error without TELEGRAM_TOKEN")
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"FORWARD_MODE":          "teleport",
		"BATCH_SIZE":            "0",
		"ITEM_DELAY_MS":         "fast",
		"FUZZY_GROUP_THRESHOLD": "1.5",
		"BOT_OWNER_IDS":         "abc",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv("TELEGRAM_TOKEN", "1:primary")
			t.Setenv(key, value)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%s", key, value)
			}
		})
	}
}

func TestLoadMergesSessions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sessions.toml")
	content := `
[[session]]
name = "worker-a"
token = "3:aaa"

[[session]]
token = "4:bbb"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write sessions file: %v", err)
	}

	t.Setenv("TELEGRAM_TOKEN", "1:primary")
	t.Setenv("SESSION_TOKENS", "2:env, ")
	t.Setenv("SESSIONS_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	sessions := cfg.SessionTokens()
	want := []Session{
		{Name: "primary", Token: "1:primary"},
		{Name: "session-1", Token: "2:env"},
		{Name: "worker-a", Token: "3:aaa"},
		{Name: "file-2", Token: "4:bbb"},
	}
	if len(sessions) != len(want) {
		t.Fatalf("expected %d sessions, got %+v", len(want), sessions)
	}
	for i := range want {
		if sessions[i] != want[i] {
			t.Fatalf("session %d: expected %+v, got %+v", i, want[i], sessions[i])
		}
	}
}

func TestLoadSessionsFileRejectsDuplicates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.toml")
	content := "[[session]]\nname = \"a\"\ntoken = \"1\"\n\n[[session]]\nname = \"a\"\ntoken = \"2\"\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write sessions file: %v", err)
	}
	if _, err := LoadSessionsFile(path); err == nil {
		t.Fatalf("expected duplicate name error")
	}
}

func TestParseOwnerIDs(t *testing.T) {
	ids, err := parseOwnerIDs("123, 456,,789")
	if err != nil {
		t.Fatalf("parseOwnerIDs returned error: %v", err)
	}
	if len(ids) != 3 || ids[0] != 123 || ids[2] != 789 {
		t.Fatalf("unexpected ids: %v", ids)
	}
}
