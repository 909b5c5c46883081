// Package playground draws the pet on a terminal grid scaled from screen
// coordinates and turns mouse gestures on it into drag and petting messages.
package playground

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	zone "github.com/lrstanley/bubblezone"
	"github.com/mattn/go-runewidth"

	"github.com/zjrosen/deskmate/internal/event"
	"github.com/zjrosen/deskmate/internal/plugins/pet"
	"github.com/zjrosen/deskmate/internal/ui/overlay"
	"github.com/zjrosen/deskmate/internal/ui/styles"
)

// ZoneID marks the pet sprite for mouse hit testing.
const ZoneID = "playground-pet"

var sprites = map[string]string{
	"happy":     "(=^.^=)",
	"calm":      "(=-.-=)",
	"sad":       "(=;.;=)",
	"miserable": "(=x.x=)",
}

const (
	defaultSprite = "(=-.-=)"
	heldSprite    = `\(=O.O=)/`
)

// DragStartMsg reports that the user grabbed the pet.
type DragStartMsg struct{ At event.Point }

// DragMsg reports the pet being carried to a new position.
type DragMsg struct{ At event.Point }

// DropMsg reports that the user let go after moving the pet.
type DropMsg struct{ At event.Point }

// PetMsg reports a click on the pet without moving it.
type PetMsg struct{}

// Model is the playground state.
type Model struct {
	width, height int
	top           int // first terminal row of the playground
	bounds        pet.Size
	pos           event.Point
	name          string
	mood          string
	speech        string

	dragging bool
	moved    bool
}

// New returns an empty playground for a screen of the given bounds.
func New(bounds pet.Size) Model {
	return Model{bounds: bounds}
}

// SetSize sets the grid size and the terminal row it starts at.
func (m *Model) SetSize(width, height, top int) {
	m.width, m.height, m.top = width, height, top
}

// SetPet updates what is drawn.
func (m *Model) SetPet(name string, pos event.Point, bounds pet.Size) {
	m.name, m.pos = name, pos
	if bounds.Width > 0 && bounds.Height > 0 {
		m.bounds = bounds
	}
}

// SetMood selects the sprite from a mood word.
func (m *Model) SetMood(word string) {
	m.mood = word
}

// Say shows text in a speech bubble until the next Say. Empty clears it.
func (m *Model) Say(text string) {
	m.speech = text
}

// Dragging reports whether a drag gesture is in progress.
func (m Model) Dragging() bool {
	return m.dragging
}

func (m Model) sprite() string {
	if m.dragging {
		return heldSprite
	}
	if s, ok := sprites[m.mood]; ok {
		return s
	}
	return defaultSprite
}

// Cell maps a screen point onto the grid cell of the sprite's left edge.
func (m Model) Cell(p event.Point) (col, row int) {
	spanX := max(m.width-runewidth.StringWidth(m.sprite()), 0)
	spanY := max(m.height-1, 0)
	col = scale(p.X, m.bounds.Width, spanX)
	row = scale(p.Y, m.bounds.Height, spanY)
	return col, row
}

// Point maps a grid cell back onto screen coordinates.
func (m Model) Point(col, row int) event.Point {
	spanX := max(m.width-runewidth.StringWidth(m.sprite()), 1)
	spanY := max(m.height-1, 1)
	return event.Point{
		X: scale(float64(col), float64(spanX), m.bounds.Width),
		Y: scale(float64(row), float64(spanY), m.bounds.Height),
	}
}

// scale maps v in [0, from] onto [0, to].
func scale[T, U int | float64](v T, from T, to U) U {
	if from <= 0 {
		return 0
	}
	r := float64(v) / float64(from)
	r = min(max(r, 0), 1)
	return U(r * float64(to))
}

// Update turns mouse gestures into playground messages.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	mouse, ok := msg.(tea.MouseMsg)
	if !ok {
		return m, nil
	}
	switch {
	case mouse.Action == tea.MouseActionPress && mouse.Button == tea.MouseButtonLeft:
		if z := zone.Get(ZoneID); z != nil && z.InBounds(mouse) {
			m.dragging, m.moved = true, false
			at := m.pos
			return m, func() tea.Msg { return DragStartMsg{At: at} }
		}
	case mouse.Action == tea.MouseActionMotion && m.dragging:
		m.moved = true
		m.pos = m.Point(mouse.X, mouse.Y-m.top)
		at := m.pos
		return m, func() tea.Msg { return DragMsg{At: at} }
	case mouse.Action == tea.MouseActionRelease && m.dragging:
		m.dragging = false
		if !m.moved {
			return m, func() tea.Msg { return PetMsg{} }
		}
		at := m.pos
		return m, func() tea.Msg { return DropMsg{At: at} }
	}
	return m, nil
}

// View renders the grid with the pet, its name tag and any speech bubble.
// Zones are marked but not scanned; the root view scans once.
func (m Model) View() string {
	if m.width <= 0 || m.height <= 0 {
		return ""
	}
	rows := make([]string, m.height)
	blank := strings.Repeat(" ", m.width)
	for i := range rows {
		rows[i] = blank
	}
	bg := strings.Join(rows, "\n")

	col, row := m.Cell(m.pos)
	sprite := zone.Mark(ZoneID, styles.PetStyle.Render(m.sprite()))
	out := overlay.Place(overlay.Config{Width: m.width, Height: m.height, Position: overlay.At, X: col, Y: row}, sprite, bg)

	if m.name != "" && row+1 < m.height {
		tag := styles.NameStyle.Render(runewidth.Truncate(m.name, m.width, "…"))
		out = overlay.Place(overlay.Config{Width: m.width, Height: m.height, Position: overlay.At, X: col, Y: row + 1}, tag, out)
	}

	if b := renderBubble(m.speech, m.width); b != "" {
		bx, by := bubbleOrigin(b, col, row, m.width)
		out = overlay.Place(overlay.Config{Width: m.width, Height: m.height, Position: overlay.At, X: bx, Y: by}, b, out)
	}
	return out
}
