// Copyright 2026 The Remote Guard Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package watch

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/paduck86/claude-remote-guard/internal/store"
)

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "hello", truncateRunes("hello", 10))
	assert.Equal(t, "hello", truncateRunes("hello", 5))
	assert.Equal(t, "hell…", truncateRunes("hello!", 5))
	assert.Equal(t, "h", truncateRunes("hello", 1))
	assert.Equal(t, "", truncateRunes("hello", 0))
	// Multibyte runes must not be split.
	assert.Equal(t, "héll…", truncateRunes("héllo!", 5))
}

func TestRelativeTime(t *testing.T) {
	now := time.Unix(1700000000, 0)

	tests := []struct {
		ago  time.Duration
		want string
	}{
		{0, "now"},
		{500 * time.Millisecond, "now"},
		{45 * time.Second, "45s ago"},
		{3 * time.Minute, "3m ago"},
		{59 * time.Minute, "59m ago"},
		{time.Hour, "1h ago"},
		{90 * time.Minute, "1h30m ago"},
		{25 * time.Hour, "25h ago"},
		{-time.Minute, "now"}, // clock skew
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, relativeTime(now, now.Add(-tt.ago)), "ago %v", tt.ago)
	}
}

func TestFormatRequestLine(t *testing.T) {
	now := time.Unix(1700000000, 0)
	req := store.Request{
		Severity:     "high",
		Command:      "  sudo reboot  ",
		DangerReason: "Runs with elevated privileges",
		CreatedAt:    now.Add(-2 * time.Minute),
	}

	line := formatRequestLine(req, 200, now)
	assert.Contains(t, line, "2m ago")
	assert.Contains(t, line, `"sudo reboot"`)
	assert.Contains(t, line, "[Runs with elevated privileges]")

	// Empty fields render placeholders, never empty quotes.
	line = formatRequestLine(store.Request{CreatedAt: now}, 200, now)
	assert.Contains(t, line, `"-"`)
	assert.Contains(t, line, "[-]")

	// Long commands are clipped before the line is clipped to width.
	req.Command = strings.Repeat("x", 300)
	line = formatRequestLine(req, 40, now)
	assert.LessOrEqual(t, len([]rune(line)), 40)
}

func TestTrimRequests(t *testing.T) {
	few := make([]store.Request, 3)
	assert.Len(t, trimRequests(few), 3)

	many := make([]store.Request, maxVisibleRequests+50)
	assert.Len(t, trimRequests(many), maxVisibleRequests)
}
