package overlay

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/require"
)

func canvas(w, h int) string {
	rows := make([]string, h)
	for i := range rows {
		rows[i] = strings.Repeat(".", w)
	}
	return strings.Join(rows, "\n")
}

func TestPlace_Center(t *testing.T) {
	out := Place(Config{Width: 5, Height: 3}, "X", canvas(5, 3))
	require.Equal(t, ".....\n..X..\n.....", out)
}

func TestPlace_Bottom(t *testing.T) {
	out := Place(Config{Width: 5, Height: 4, Position: Bottom, PadY: 1}, "XXX", canvas(5, 4))
	require.Equal(t, ".....\n.....\n.XXX.\n.....", out)
}

func TestPlace_At(t *testing.T) {
	out := Place(Config{Width: 6, Height: 3, Position: At, X: 4, Y: 1}, "ab\ncd", canvas(6, 3))
	require.Equal(t, "......\n....ab\n....cd", out)
}

func TestPlace_ClipsAtEdges(t *testing.T) {
	out := Place(Config{Width: 4, Height: 2, Position: At, X: 2, Y: 1}, "wxyz\nmore", canvas(4, 2))
	require.Equal(t, "....\n..wx", out)
}

func TestPlace_PadsShortBackground(t *testing.T) {
	out := Place(Config{Width: 3, Height: 3, Position: At, X: 0, Y: 2}, "X", "...")
	require.Equal(t, "...\n   \nX  ", out)
}

func TestPlace_KeepsForegroundStyling(t *testing.T) {
	styled := lipgloss.NewStyle().Bold(true).Render("X")
	out := Place(Config{Width: 3, Height: 1, Position: At, X: 1}, styled, "...")
	require.Contains(t, out, styled)
	require.Equal(t, 3, lipgloss.Width(out))
}

func TestPlace_EmptyForeground(t *testing.T) {
	bg := canvas(3, 2)
	require.Equal(t, bg, Place(Config{Width: 3, Height: 2}, "", bg))
}
