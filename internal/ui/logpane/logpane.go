// Package logpane is the in-app log viewer. It keeps the most recent lines
// delivered by the log listener and shows them in a filterable overlay.
package logpane

import (
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/zjrosen/deskmate/internal/log"
	"github.com/zjrosen/deskmate/internal/ui/overlay"
	"github.com/zjrosen/deskmate/internal/ui/styles"
)

const (
	// DefaultCapacity is how many lines are retained.
	DefaultCapacity = 500

	maxViewportHeight = 25
	minViewportHeight = 5
	maxBoxWidth       = 160
	minBoxWidth       = 40
)

// CloseMsg is sent when the pane closes itself.
type CloseMsg struct{}

// Model is the log pane state.
type Model struct {
	lines    []string
	capacity int
	minLevel log.Level
	visible  bool
	width    int
	height   int
	viewport viewport.Model
}

// New returns a hidden pane retaining up to capacity lines.
func New(capacity int) Model {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return Model{capacity: capacity, minLevel: log.LevelDebug}
}

// Append records a log line, dropping the oldest past capacity.
func (m *Model) Append(line string) {
	m.lines = append(m.lines, strings.TrimSuffix(line, "\n"))
	if over := len(m.lines) - m.capacity; over > 0 {
		m.lines = append(m.lines[:0:0], m.lines[over:]...)
	}
	if m.visible {
		m.refresh()
		m.viewport.GotoBottom()
	}
}

// Lines returns the retained lines passing the level filter.
func (m Model) Lines() []string {
	var out []string
	for _, l := range m.lines {
		if levelOf(l) >= m.minLevel {
			out = append(out, l)
		}
	}
	return out
}

// Update handles keys while visible.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if !m.visible {
		return m, nil
	}
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "c":
			m.lines = nil
		case "d":
			m.minLevel = log.LevelDebug
		case "i":
			m.minLevel = log.LevelInfo
		case "w":
			m.minLevel = log.LevelWarn
		case "e":
			m.minLevel = log.LevelError
		case "j", "down":
			m.viewport.ScrollDown(1)
			return m, nil
		case "k", "up":
			m.viewport.ScrollUp(1)
			return m, nil
		case "esc", "ctrl+x":
			m.visible = false
			return m, func() tea.Msg { return CloseMsg{} }
		default:
			return m, nil
		}
		m.refresh()
	case tea.WindowSizeMsg:
		m.SetSize(msg.Width, msg.Height)
	}
	return m, nil
}

// View renders the boxed pane, or "" when hidden.
func (m Model) View() string {
	if !m.visible {
		return ""
	}
	w := m.boxWidth()
	divider := lipgloss.NewStyle().Foreground(styles.BorderDefaultColor).Render(strings.Repeat("─", w))

	var b strings.Builder
	b.WriteString(styles.TitleStyle.PaddingLeft(1).Render("Logs"))
	b.WriteString("\n" + divider + "\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n" + divider + "\n")
	b.WriteString(m.hints())

	return styles.PaneStyle.Width(w).Render(b.String())
}

// Overlay draws the pane centered on bg.
func (m Model) Overlay(bg string) string {
	if !m.visible {
		return bg
	}
	return overlay.Place(overlay.Config{Width: m.width, Height: m.height}, m.View(), bg)
}

// Visible reports whether the pane is open.
func (m Model) Visible() bool {
	return m.visible
}

// Toggle opens or closes the pane.
func (m *Model) Toggle() {
	m.visible = !m.visible
	if m.visible {
		m.refresh()
		m.viewport.GotoBottom()
	}
}

// SetSize records the terminal size.
func (m *Model) SetSize(width, height int) {
	m.width, m.height = width, height
	m.refresh()
}

func (m Model) boxWidth() int {
	return max(min(m.width-4, maxBoxWidth), minBoxWidth)
}

func (m *Model) refresh() {
	if m.width == 0 || m.height == 0 {
		return
	}
	contentWidth := m.boxWidth() - 2
	// header, footer and borders take six rows
	height := max(min(maxViewportHeight, m.height-6), minViewportHeight)

	lines := m.Lines()
	var content string
	if len(lines) == 0 {
		content = styles.MutedStyle.Italic(true).Render("No logs to display")
	} else {
		rendered := make([]string, len(lines))
		for i, l := range lines {
			rendered[i] = colorize(l, contentWidth)
		}
		content = strings.Join(rendered, "\n")
	}

	m.viewport = viewport.New(contentWidth, height)
	m.viewport.SetContent(content)
}

func (m Model) hints() string {
	hint := styles.MutedStyle
	active := lipgloss.NewStyle().Foreground(styles.TextPrimaryColor).Bold(true)

	parts := []string{hint.Render("[c] Clear")}
	for _, f := range []struct {
		label string
		level log.Level
	}{
		{"[d] Debug", log.LevelDebug},
		{"[i] Info", log.LevelInfo},
		{"[w] Warn", log.LevelWarn},
		{"[e] Error", log.LevelError},
	} {
		if m.minLevel == f.level {
			parts = append(parts, active.Render(f.label))
		} else {
			parts = append(parts, hint.Render(f.label))
		}
	}
	return strings.Join(parts, "  ")
}

// levelOf reads the level tag written by log.Format. Untagged lines always
// pass the filter.
func levelOf(line string) log.Level {
	switch {
	case strings.Contains(line, "[ERROR]"):
		return log.LevelError
	case strings.Contains(line, "[WARN]"):
		return log.LevelWarn
	case strings.Contains(line, "[INFO]"):
		return log.LevelInfo
	case strings.Contains(line, "[DEBUG]"):
		return log.LevelDebug
	}
	return log.LevelError
}

func colorize(line string, width int) string {
	if ansi.StringWidth(line) > width {
		line = ansi.Truncate(line, width-3, "...")
	}
	color := styles.TextPrimaryColor
	switch levelOf(line) {
	case log.LevelError:
		color = styles.LogErrorColor
	case log.LevelWarn:
		color = styles.LogWarnColor
	case log.LevelInfo:
		color = styles.LogInfoColor
	case log.LevelDebug:
		color = styles.LogDebugColor
	}
	return lipgloss.NewStyle().Foreground(color).Render(line)
}
