// Copyright 2026 The Remote Guard Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package watch provides the live terminal dashboard for pending
// approval requests.
package watch

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fsnotify/fsnotify"

	"github.com/paduck86/claude-remote-guard/internal/store"
)

const (
	pollInterval = 2 * time.Second

	// pendingWindow bounds how far back the dashboard lists rows. It
	// matches the resolvability window: older rows can no longer be
	// approved, so showing them only misleads.
	pendingWindow = time.Hour
)

// Lister is the slice of the row store the dashboard polls.
type Lister interface {
	ListPending(ctx context.Context, since time.Time) ([]store.Request, error)
}

// Config holds settings for the watch TUI.
type Config struct {
	Store      Lister
	ConfigPath string // watched for changes; empty disables the notice
	Out        io.Writer
}

type pendingMsg struct {
	rows []store.Request
	err  error
}

type tickMsg time.Time

type configChangedMsg time.Time

// Model is the bubbletea model for the watch TUI.
type Model struct {
	cfg       Config
	startedAt time.Time
	width     int
	height    int
	rows      []store.Request
	scroll    int
	polls     int
	lastErr   error
	reloadAt  time.Time
	watcher   *fsnotify.Watcher

	frameStyle      lipgloss.Style
	headerStyle     lipgloss.Style
	sectionStyle    lipgloss.Style
	criticalStyle   lipgloss.Style
	highStyle       lipgloss.Style
	mediumStyle     lipgloss.Style
	mutedStyle      lipgloss.Style
	statusLineStyle lipgloss.Style
}

// NewModel creates a new watch TUI model.
func NewModel(cfg Config) *Model {
	return &Model{
		cfg:       cfg,
		startedAt: time.Now(),
		width:     80,
		height:    24,
		rows:      make([]store.Request, 0, 16),
		frameStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("7")),
		headerStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("14")),
		sectionStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")),
		criticalStyle: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9")),
		highStyle:     lipgloss.NewStyle().Foreground(lipgloss.Color("208")),
		mediumStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		mutedStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		statusLineStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("7")),
	}
}

// Run starts the watch TUI.
func Run(ctx context.Context, cfg Config) error {
	model := NewModel(cfg)

	if cfg.ConfigPath != "" {
		watcher, err := fsnotify.NewWatcher()
		if err == nil && watcher.Add(cfg.ConfigPath) == nil {
			model.watcher = watcher
			defer watcher.Close()
		}
	}

	opts := []tea.ProgramOption{tea.WithContext(ctx), tea.WithAltScreen()}
	if cfg.Out != nil {
		opts = append(opts, tea.WithOutput(cfg.Out))
	}
	p := tea.NewProgram(model, opts...)
	_, err := p.Run()
	return err
}

func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.pollCmd(), tickCmd()}
	if m.watcher != nil {
		cmds = append(cmds, waitForConfigChange(m.watcher))
	}
	return tea.Batch(cmds...)
}

func (m *Model) pollCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		rows, err := m.cfg.Store.ListPending(ctx, time.Now().Add(-pendingWindow))
		return pendingMsg{rows: rows, err: err}
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func waitForConfigChange(watcher *fsnotify.Watcher) tea.Cmd {
	return func() tea.Msg {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return nil
				}
				if event.Op.Has(fsnotify.Write) || event.Op.Has(fsnotify.Create) {
					return configChangedMsg(time.Now())
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return nil
				}
			}
		}
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.KeyMsg:
		switch typed.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "j", "down":
			if m.scroll < max(0, len(m.rows)-1) {
				m.scroll++
			}
		case "k", "up":
			if m.scroll > 0 {
				m.scroll--
			}
		case "g":
			m.scroll = 0
		case "r":
			return m, m.pollCmd()
		}
	case tea.WindowSizeMsg:
		if typed.Width > 0 {
			m.width = typed.Width
		}
		if typed.Height > 0 {
			m.height = typed.Height
		}
	case pendingMsg:
		m.polls++
		if typed.err != nil {
			m.lastErr = typed.err
			return m, nil
		}
		m.lastErr = nil
		m.rows = trimRequests(typed.rows)
		if m.scroll >= len(m.rows) {
			m.scroll = max(0, len(m.rows)-1)
		}
		return m, nil
	case tickMsg:
		return m, tea.Batch(m.pollCmd(), tickCmd())
	case configChangedMsg:
		m.reloadAt = time.Time(typed)
		return m, waitForConfigChange(m.watcher)
	}

	return m, nil
}

func (m *Model) View() string {
	innerWidth := max(20, m.width-4)
	feedRows := max(5, m.height-7)
	now := time.Now()
	uptime := now.Sub(m.startedAt).Round(time.Second)

	summaryLine := fmt.Sprintf("🚧 Remote Guard | %s | uptime: %s",
		m.headerStyle.Render(fmt.Sprintf("%d pending", len(m.rows))),
		formatUptime(uptime),
	)

	lines := make([]string, 0, m.height)
	lines = append(lines, frameLineTop(innerWidth))
	lines = append(lines, frameLineBody(innerWidth, "  "+summaryLine))
	lines = append(lines, frameLineMid(innerWidth))
	lines = append(lines, frameLineBody(innerWidth, m.sectionStyle.Render("  PENDING APPROVALS")))

	visible := m.visibleRows(feedRows)
	for _, row := range visible {
		line := formatRequestLine(row, innerWidth-4, now)
		lines = append(lines, frameLineBody(innerWidth, "  "+m.colorizeLine(line, row.Severity)))
	}
	for i := len(visible); i < feedRows; i++ {
		lines = append(lines, frameLineBody(innerWidth, ""))
	}

	lines = append(lines, frameLineMid(innerWidth))
	status := fmt.Sprintf("POLLS: %d | WINDOW: %s", m.polls, pendingWindow)
	if !m.reloadAt.IsZero() {
		status += fmt.Sprintf(" | CONFIG CHANGED: %s", m.reloadAt.Format("15:04:05"))
	}
	lines = append(lines, frameLineBody(innerWidth, "  "+m.statusLineStyle.Render(truncateRunes(status, innerWidth-2))))

	if m.lastErr != nil {
		errLine := "STORE: " + m.lastErr.Error()
		lines = append(lines, frameLineBody(innerWidth, "  "+m.mutedStyle.Render(truncateRunes(errLine, innerWidth-2))))
	}

	lines = append(lines, frameLineBottom(innerWidth))

	return m.frameStyle.Render(strings.Join(lines, "\n"))
}

func (m *Model) visibleRows(rows int) []store.Request {
	if rows <= 0 || len(m.rows) == 0 {
		return nil
	}
	start := m.scroll
	if start >= len(m.rows) {
		start = len(m.rows) - 1
	}
	if start < 0 {
		start = 0
	}
	end := min(len(m.rows), start+rows)
	out := make([]store.Request, 0, end-start)
	out = append(out, m.rows[start:end]...)
	return out
}

func (m *Model) colorizeLine(line, severity string) string {
	switch strings.ToLower(strings.TrimSpace(severity)) {
	case "critical":
		return m.criticalStyle.Render(line)
	case "high":
		return m.highStyle.Render(line)
	case "medium":
		return m.mediumStyle.Render(line)
	default:
		return line
	}
}

func frameLineTop(width int) string {
	return "╔" + strings.Repeat("═", width) + "╗"
}

func frameLineMid(width int) string {
	return "╠" + strings.Repeat("═", width) + "╣"
}

func frameLineBottom(width int) string {
	return "╚" + strings.Repeat("═", width) + "╝"
}

func frameLineBody(width int, s string) string {
	return "║" + lipgloss.NewStyle().Width(width).Render(truncateRunes(s, width)) + "║"
}

func formatUptime(d time.Duration) string {
	if d < time.Minute {
		return d.String()
	}
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}
