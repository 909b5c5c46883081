// Package markdown renders the status block with glamour.
package markdown

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/muesli/termenv"
)

// Styles accepted by New. Auto resolves through ResolveStyle.
const (
	StyleAuto  = "auto"
	StyleDark  = "dark"
	StyleLight = "light"
	StyleNoTTY = "notty"
)

const noMarginStyle = `{
	"document": {
		"margin": 0,
		"block_prefix": "",
		"block_suffix": ""
	}
}`

// Renderer wraps a glamour renderer fixed to one width.
type Renderer struct {
	renderer *glamour.TermRenderer
	width    int
}

// ResolveStyle maps "auto" and "" to a concrete glamour style using only
// the environment. Querying the terminal for its background would leak
// escape sequence replies into the input stream.
func ResolveStyle(style string) string {
	switch style {
	case StyleDark, StyleLight, StyleNoTTY:
		return style
	}
	if termenv.EnvNoColor() || termenv.EnvColorProfile() == termenv.Ascii {
		return StyleNoTTY
	}
	return StyleDark
}

// New builds a renderer wrapping at width.
func New(width int, style string) (*Renderer, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithStylePath(ResolveStyle(style)),
		glamour.WithStylesFromJSONBytes([]byte(noMarginStyle)),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil, err
	}
	return &Renderer{renderer: r, width: width}, nil
}

// Width returns the wrap width.
func (r *Renderer) Width() int {
	return r.width
}

// Render turns markdown into styled terminal output without the trailing
// blank lines glamour adds.
func (r *Renderer) Render(md string) (string, error) {
	out, err := r.renderer.Render(md)
	if err != nil {
		return "", err
	}
	return strings.Trim(out, "\n"), nil
}
