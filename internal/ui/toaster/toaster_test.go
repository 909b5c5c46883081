package toaster

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Hidden(t *testing.T) {
	m := New()
	assert.False(t, m.Visible())
	assert.Empty(t, m.View())
}

func TestShow_Styles(t *testing.T) {
	tests := []struct {
		style Style
		icon  string
	}{
		{StyleSuccess, "✅"},
		{StyleError, "❌"},
		{StyleInfo, "ℹ️"},
		{StyleWarn, "⚠️"},
	}
	for _, tt := range tests {
		m, cmd := New().Show("hello", tt.style, time.Millisecond)
		require.NotNil(t, cmd)
		view := m.View()
		assert.Contains(t, view, tt.icon)
		assert.Contains(t, view, "hello")
		assert.Contains(t, view, "╭")
	}
}

func TestDismiss_OwnToast(t *testing.T) {
	m, cmd := New().Show("bye", StyleInfo, time.Millisecond)
	m = m.Update(cmd())
	assert.False(t, m.Visible())
}

func TestDismiss_StaleTimerKeepsNewerToast(t *testing.T) {
	m, first := New().Show("first", StyleInfo, time.Millisecond)
	m, _ = m.Show("second", StyleWarn, time.Hour)

	m = m.Update(first())

	require.True(t, m.Visible())
	assert.Contains(t, m.View(), "second")
}

func TestShow_Immutable(t *testing.T) {
	m1 := New()
	m2, _ := m1.Show("x", StyleSuccess, time.Second)
	assert.False(t, m1.Visible())
	assert.True(t, m2.Visible())
}

func TestOverlay(t *testing.T) {
	bg := strings.TrimSuffix(strings.Repeat(strings.Repeat(".", 30)+"\n", 10), "\n")
	assert.Equal(t, bg, New().Overlay(bg, 30, 10))

	m, _ := New().Show("Toast", StyleSuccess, time.Second)
	lines := strings.Split(m.Overlay(bg, 30, 10), "\n")
	require.Len(t, lines, 10)
	assert.Contains(t, lines[7], "Toast")
	assert.Equal(t, strings.Repeat(".", 30), lines[0])
}
