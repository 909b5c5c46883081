// Package toaster shows short-lived notifications at the bottom of the
// screen.
package toaster

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/zjrosen/deskmate/internal/ui/overlay"
	"github.com/zjrosen/deskmate/internal/ui/styles"
)

// DefaultDuration is how long a toast stays up.
const DefaultDuration = 3 * time.Second

// Style picks the icon and border color.
type Style int

const (
	StyleSuccess Style = iota
	StyleError
	StyleInfo
	StyleWarn
)

// Model is immutable; every method returns an updated copy.
type Model struct {
	message string
	style   Style
	seq     int
	visible bool
}

// New returns a hidden toaster.
func New() Model {
	return Model{}
}

// Show replaces any current toast and schedules its dismissal after d.
func (m Model) Show(message string, style Style, d time.Duration) (Model, tea.Cmd) {
	m.seq++
	m.message = message
	m.style = style
	m.visible = true
	seq := m.seq
	return m, tea.Tick(d, func(time.Time) tea.Msg { return DismissMsg{seq: seq} })
}

// Update hides the toast when its own dismissal fires. A dismissal for a
// toast that has since been replaced is ignored.
func (m Model) Update(msg tea.Msg) Model {
	if d, ok := msg.(DismissMsg); ok && d.seq == m.seq {
		return m.Hide()
	}
	return m
}

// Hide dismisses the toast now.
func (m Model) Hide() Model {
	m.visible = false
	m.message = ""
	return m
}

// Visible reports whether a toast is showing.
func (m Model) Visible() bool {
	return m.visible && m.message != ""
}

// View renders the toast box, or "" when hidden.
func (m Model) View() string {
	if !m.Visible() {
		return ""
	}
	icon, color := "✅", styles.ToastBorderSuccessColor
	switch m.style {
	case StyleError:
		icon, color = "❌", styles.ToastBorderErrorColor
	case StyleInfo:
		icon, color = "ℹ️", styles.ToastBorderInfoColor
	case StyleWarn:
		icon, color = "⚠️", styles.ToastBorderWarnColor
	}
	return lipgloss.NewStyle().
		Padding(0, 1).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(color).
		Render(icon + " " + m.message)
}

// Overlay draws the toast one row above the bottom of bg.
func (m Model) Overlay(bg string, width, height int) string {
	if !m.Visible() {
		return bg
	}
	return overlay.Place(overlay.Config{
		Width:    width,
		Height:   height,
		Position: overlay.Bottom,
		PadY:     1,
	}, m.View(), bg)
}

// DismissMsg hides the toast it was scheduled for.
type DismissMsg struct{ seq int }
