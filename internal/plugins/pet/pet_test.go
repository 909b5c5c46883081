package pet

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/deskmate/internal/event"
	"github.com/zjrosen/deskmate/internal/plugin"
	"github.com/zjrosen/deskmate/internal/testutil"
)

func TestPet_AwakensOnInit(t *testing.T) {
	env := testutil.NewBuilder(t).WithPlugins(Descriptor()).Build()
	env.Init()

	got := testutil.WaitFor[event.Plain](env, nil)
	require.Equal(t, "You've just been awakened...", got.Content)
}

func TestPet_ConfigAndClamp(t *testing.T) {
	env := testutil.NewBuilder(t).
		WithPlugins(Descriptor()).
		WithConfig(ID, "name: Tofu\nstart: {x: 900, y: -5}\nbounds: {width: 800, height: 600}\n").
		Build()
	env.Init()

	p := env.Instance(ID).(*Pet)
	require.Equal(t, "Tofu", p.Name())
	require.Equal(t, event.Point{X: 800, Y: 0}, p.Position())

	got := p.SetPosition(event.Point{X: 10, Y: 700})
	require.Equal(t, event.Point{X: 10, Y: 600}, got)
	require.Equal(t, got, p.Position())
}

func TestPet_InfosAndPrompt(t *testing.T) {
	env := testutil.NewBuilder(t).WithPlugins(Descriptor()).Build()
	env.Init()

	groups := env.Infos()
	require.Len(t, groups, 1)
	require.Equal(t, "Pet", groups[0].Title)
	require.Contains(t, groups[0].Items, plugin.InfoItem{Key: "Position", Value: "(100, 100)"})

	var prompts map[string]string
	env.Do(func() { prompts = env.Plugins.Prompts() })
	require.Contains(t, prompts["persona"], "You are Mochi")
}
