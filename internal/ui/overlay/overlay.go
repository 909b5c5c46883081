// Package overlay composites one rendered block on top of another, keeping
// ANSI styling on both sides intact.
package overlay

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

// Position selects how the foreground is anchored.
type Position int

const (
	// Center anchors the block in the middle of the canvas.
	Center Position = iota
	// Bottom centers horizontally and sits PadY rows above the last row.
	Bottom
	// At places the top-left corner at X, Y.
	At
)

// Config describes the canvas and the anchor.
type Config struct {
	Width, Height int
	Position      Position
	X, Y          int // used by At
	PadY          int // used by Bottom
}

// Place draws fg over bg. The canvas is padded to Height rows; foreground
// cells past the canvas edges are clipped.
func Place(cfg Config, fg, bg string) string {
	if fg == "" {
		return bg
	}
	rows := strings.Split(bg, "\n")
	for len(rows) < cfg.Height {
		rows = append(rows, strings.Repeat(" ", cfg.Width))
	}

	block := strings.Split(fg, "\n")
	x, y := origin(cfg, lipgloss.Width(fg), len(block))

	for i, line := range block {
		row := y + i
		if row < 0 {
			continue
		}
		if row >= len(rows) {
			break
		}
		if cfg.Width > 0 {
			line = ansi.Truncate(line, max(cfg.Width-x, 0), "")
		}
		rows[row] = splice(rows[row], line, x)
	}
	return strings.Join(rows, "\n")
}

// splice replaces the cells of row starting at column x with line.
func splice(row, line string, x int) string {
	left := ansi.Truncate(row, x, "")
	if w := ansi.StringWidth(left); w < x {
		left += strings.Repeat(" ", x-w)
	}
	end := x + ansi.StringWidth(line)
	var right string
	if end < ansi.StringWidth(row) {
		right = ansi.TruncateLeft(row, end, "")
	}
	return left + line + right
}

func origin(cfg Config, w, h int) (x, y int) {
	switch cfg.Position {
	case At:
		x, y = cfg.X, cfg.Y
	case Bottom:
		x, y = (cfg.Width-w)/2, cfg.Height-h-cfg.PadY
	default:
		x, y = (cfg.Width-w)/2, (cfg.Height-h)/2
	}
	return max(x, 0), max(y, 0)
}
