package transport

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/go-telegram/bot"
)

func TestShouldRetryNetwork(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "too many requests handled by dispatcher",
			err: &bot.TooManyRequestsError{
				Message:    "too many requests",
				RetryAfter: 3,
			},
			want: false,
		},
		{
			name: "forbidden non retryable",
			err:  fmt.Errorf("%w, bot was kicked", bot.ErrorForbidden),
			want: false,
		},
		{
			name: "bad request non retryable",
			err:  fmt.Errorf("%w, message to copy not found", bot.ErrorBadRequest),
			want: false,
		},
		{
			name: "migrate error non retryable",
			err: &bot.MigrateError{
				Message:         "bad request: group upgraded",
				MigrateToChatID: -1001234567890,
			},
			want: false,
		},
		{
			name: "unauthorized non retryable",
			err:  fmt.Errorf("%w, invalid token", bot.ErrorUnauthorized),
			want: false,
		},
		{
			name: "generic error retryable",
			err:  errors.New("temporary network error"),
			want: true,
		},
		{
			name: "nil error non retryable",
			err:  nil,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := shouldRetryNetwork(tt.err); got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestMapBotError(t *testing.T) {
	cooldown := mapBotError("boss", 3, &bot.TooManyRequestsError{Message: "flood", RetryAfter: 30})
	c, ok := AsCooldown(cooldown)
	if !ok {
		t.Fatalf("expected cooldown error, got %v", cooldown)
	}
	if c.Session != "boss" {
		t.Fatalf("expected session boss, got %s", c.Session)
	}
	if want := 30*time.Second + 800*time.Millisecond; c.RetryAfter != want {
		t.Fatalf("expected %v, got %v", want, c.RetryAfter)
	}

	for _, err := range []error{
		fmt.Errorf("%w, chat not found", bot.ErrorBadRequest),
		fmt.Errorf("%w, not enough rights", bot.ErrorForbidden),
		&bot.MigrateError{Message: "upgraded", MigrateToChatID: -100},
	} {
		if mapped := mapBotError("boss", 1, err); !IsItemError(mapped) {
			t.Fatalf("expected item error for %v, got %v", err, mapped)
		}
	}

	network := errors.New("connection reset")
	if mapped := mapBotError("boss", 1, network); mapped != network {
		t.Fatalf("expected network error unchanged, got %v", mapped)
	}
	if mapBotError("boss", 1, nil) != nil {
		t.Fatalf("expected nil")
	}
}

func TestMigrateToChatID(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int64
		ok   bool
	}{
		{name: "nil error", err: nil},
		{name: "not migrate error", err: errors.New("temporary network error")},
		{
			name: "wrapped migrate error",
			err: fmt.Errorf("wrap: %w", &bot.MigrateError{
				Message:         "bad request: group chat was upgraded",
				MigrateToChatID: -1005006007008,
			}),
			want: -1005006007008,
			ok:   true,
		},
		{
			name: "migrate error with zero id",
			err:  &bot.MigrateError{Message: "bad request: group chat was upgraded"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := migrateToChatID(tt.err)
			if ok != tt.ok || got != tt.want {
				t.Fatalf("expected (%d, %v), got (%d, %v)", tt.want, tt.ok, got, ok)
			}
		})
	}
}

func TestCooldownDelay(t *testing.T) {
	if got, want := cooldownDelay(4, 123), 4*time.Second+800*time.Millisecond; got != want {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if got, want := cooldownDelay(0, 1), defaultCooldown+400*time.Millisecond; got != want {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestCooldownJitter(t *testing.T) {
	tests := []struct {
		chatID int64
		want   time.Duration
	}{
		{chatID: 6, want: 400 * time.Millisecond},
		{chatID: -6, want: 400 * time.Millisecond},
		{chatID: 0, want: 200 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := cooldownJitter(tt.chatID); got != tt.want {
			t.Fatalf("chat %d: expected %v, got %v", tt.chatID, tt.want, got)
		}
	}
}

func TestNetworkBackoff(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 0, want: time.Second},
		{attempt: 1, want: time.Second},
		{attempt: 2, want: 2 * time.Second},
		{attempt: 4, want: 8 * time.Second},
		{attempt: 6, want: maxNetworkBackoff},
		{attempt: 80, want: maxNetworkBackoff},
	}
	for _, tt := range tests {
		if got := networkBackoff(tt.attempt); got != tt.want {
			t.Fatalf("attempt %d: expected %v, got %v", tt.attempt, tt.want, got)
		}
	}
}
