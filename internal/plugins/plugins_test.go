package plugins

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/deskmate/internal/plugin"
	"github.com/zjrosen/deskmate/internal/plugins/toolcall"
	"github.com/zjrosen/deskmate/internal/testutil"
)

func TestAll_OrdersWithoutCycles(t *testing.T) {
	ordered, err := plugin.Order(Registry().All())
	require.NoError(t, err)
	pos := map[string]int{}
	for i, d := range ordered {
		pos[d.ID] = i
	}
	require.Less(t, pos["pet"], pos["move"])
	require.Less(t, pos["move"], pos["idle"])
	require.Less(t, pos["petstate"], pos["petstate/digest"])
}

func TestAll_LoadEverything(t *testing.T) {
	env := testutil.NewBuilder(t).WithPlugins(All()...).Build()
	env.Init()

	var loaded []string
	var tools []plugin.Tool
	env.Do(func() {
		loaded = env.Plugins.Loaded()
		tools = env.Plugins.Tools()
	})
	require.Len(t, loaded, len(All()))

	names := make([]string, len(tools))
	for i, tl := range tools {
		names[i] = tl.Name()
	}
	require.ElementsMatch(t, []string{"move_to", "get_time"}, names)

	titles := []string{}
	for _, g := range env.Infos() {
		titles = append(titles, g.Title)
	}
	require.Equal(t, []string{"Pet", "Pet State", "Environment"}, titles)

	env.Trigger(toolcall.Request{ID: "t", Tool: "get_time"})
	res := testutil.WaitFor[toolcall.Result](env, nil)
	require.NoError(t, res.Err)
}
