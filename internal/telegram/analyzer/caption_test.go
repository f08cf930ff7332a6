package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCaptionCleaner(t *testing.T) {
	c := &CaptionCleaner{Footer: "Join @mine", Allowed: []string{"@friends"}}

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"strips links and mentions", "Movie 2020 1080p\nhttps://t.me/other @other", "Movie 2020 1080p\n\nJoin @mine"},
		{"keeps allowed mention", "Movie @friends", "Movie @friends\n\nJoin @mine"},
		{"empty caption gets footer", "", "Join @mine"},
		{"collapses blank runs", "A\n\n\n\nB", "A\n\nB\n\nJoin @mine"},
		{"already clean unchanged", "Movie\n\nJoin @mine", "Movie\n\nJoin @mine"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Clean(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, c.Clean(got), "clean must be idempotent")
		})
	}
}

func TestCaptionCleanerWithoutFooter(t *testing.T) {
	c := &CaptionCleaner{}
	assert.Equal(t, "Movie", c.Clean("Movie t.me/abc"))
	assert.Equal(t, "Movie 2020", c.Clean("Movie 2020"))
}
