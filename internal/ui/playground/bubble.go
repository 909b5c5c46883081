package playground

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/zjrosen/deskmate/internal/ui/styles"
)

const maxBubbleWidth = 40

// renderBubble wraps text into a bordered speech bubble no wider than the
// grid.
func renderBubble(text string, gridWidth int) string {
	text = strings.TrimSpace(text)
	if text == "" || gridWidth < 6 {
		return ""
	}
	// border and padding take four columns
	inner := min(maxBubbleWidth, gridWidth) - 4
	return styles.BubbleStyle.Render(wordwrap.String(text, inner))
}

// bubbleOrigin puts the bubble above the pet, or below it when there is no
// room, keeping it inside the grid horizontally.
func bubbleOrigin(bubble string, col, row, gridWidth int) (x, y int) {
	w, h := lipgloss.Size(bubble)
	x = min(max(col-w/2, 0), max(gridWidth-w, 0))
	y = row - h
	if y < 0 {
		y = row + 2
	}
	return x, y
}
