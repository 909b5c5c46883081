package markdown

import (
	"testing"

	"github.com/charmbracelet/x/ansi"
	"github.com/stretchr/testify/require"
)

func TestResolveStyle_Explicit(t *testing.T) {
	require.Equal(t, StyleLight, ResolveStyle(StyleLight))
	require.Equal(t, StyleNoTTY, ResolveStyle(StyleNoTTY))
}

func TestResolveStyle_UnknownFallsBack(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	require.Equal(t, StyleNoTTY, ResolveStyle("solarized"))
}

func TestResolveStyle_NoColor(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	require.Equal(t, StyleNoTTY, ResolveStyle(StyleAuto))
	require.Equal(t, StyleNoTTY, ResolveStyle(""))
}

func TestRender_StatusBlock(t *testing.T) {
	r, err := New(60, StyleNoTTY)
	require.NoError(t, err)
	require.Equal(t, 60, r.Width())

	out, err := r.Render("### Pet\n- Name: Mochi\n- Position: (100, 100)")
	require.NoError(t, err)

	plain := ansi.Strip(out)
	require.Contains(t, plain, "Pet")
	require.Contains(t, plain, "Name: Mochi")
	require.NotRegexp(t, `^\n`, out)
}
