// Copyright 2026 The Remote Guard Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package watch

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/paduck86/claude-remote-guard/internal/rules"
	"github.com/paduck86/claude-remote-guard/internal/store"
)

const (
	maxVisibleRequests = 500
	maxCommandWidth    = 80
)

func severityMeta(severity string) (icon string, color lipgloss.Color) {
	switch rules.ParseSeverity(severity) {
	case rules.SeverityCritical:
		return "\U0001f534", lipgloss.Color("9")
	case rules.SeverityHigh:
		return "\U0001f7e0", lipgloss.Color("208")
	case rules.SeverityMedium:
		return "\U0001f7e1", lipgloss.Color("11")
	default:
		return "•", lipgloss.Color("7")
	}
}

func truncateRunes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max <= 1 {
		return string(runes[:max])
	}
	return string(runes[:max-1]) + "…"
}

// relativeTime formats the elapsed time as a human-readable string.
func relativeTime(now, ts time.Time) string {
	d := now.Sub(ts)
	if d < 0 {
		d = 0
	}
	switch {
	case d < time.Second:
		return "now"
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	default:
		h := int(d.Hours())
		m := int(d.Minutes()) % 60
		if m > 0 {
			return fmt.Sprintf("%dh%dm ago", h, m)
		}
		return fmt.Sprintf("%dh ago", h)
	}
}

// formatRequestLine renders one pending request row.
func formatRequestLine(req store.Request, width int, now time.Time) string {
	icon, _ := severityMeta(req.Severity)
	rel := fmt.Sprintf("%-8s", relativeTime(now, req.CreatedAt))

	command := strings.TrimSpace(req.Command)
	if command == "" {
		command = "-"
	}
	command = truncateRunes(command, maxCommandWidth)

	reason := strings.TrimSpace(req.DangerReason)
	if reason == "" {
		reason = "-"
	}

	base := fmt.Sprintf("%s %s %-8s %q [%s]", icon, rel, req.Severity, command, reason)
	return truncateRunes(base, width)
}

func trimRequests(reqs []store.Request) []store.Request {
	if len(reqs) <= maxVisibleRequests {
		return reqs
	}
	trimmed := make([]store.Request, maxVisibleRequests)
	copy(trimmed, reqs[:maxVisibleRequests])
	return trimmed
}
