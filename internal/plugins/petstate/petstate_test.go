package petstate

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/zjrosen/deskmate/internal/event"
	"github.com/zjrosen/deskmate/internal/plugin"
	"github.com/zjrosen/deskmate/internal/testutil"
)

func newEnv(t *testing.T, doc string) *testutil.Env {
	b := testutil.NewBuilder(t).WithPlugins(Descriptor())
	if doc != "" {
		b = b.WithConfig(ID, doc)
	}
	env := b.Build()
	env.Init()
	return env
}

func TestTracker_ModifyClampsAndPersists(t *testing.T) {
	env := newEnv(t, "mood: 60\nhealth: 100\nhunger: 30\n")
	tr := env.Instance(ID).(*Tracker)

	env.Trigger(Modify{Mood: 50, Hunger: -40})

	var s State
	env.Do(func() { s = tr.State() })
	require.Equal(t, State{Mood: 100, Health: 100, Hunger: 0}, s)

	raw, err := os.ReadFile(env.Store.Path(ID))
	require.NoError(t, err)
	var onDisk Config
	require.NoError(t, yaml.Unmarshal(raw, &onDisk))
	require.Equal(t, s, onDisk.State)
	require.True(t, onDisk.Enabled)

	changed := testutil.WaitFor[Changed](env, nil)
	require.Equal(t, State{Mood: 60, Health: 100, Hunger: 30}, changed.Old)
	msg, ok := changed.AgentMessage()
	require.True(t, ok)
	require.Equal(t, "You feel happy now. You are starving now.", msg.Content)
}

func TestTracker_NoChangeNoEvent(t *testing.T) {
	env := newEnv(t, "mood: 100\nhealth: 100\nhunger: 100\n")
	env.Trigger(Modify{Mood: 10, Health: 5})
	require.Empty(t, testutil.EventsOf[Changed](env.Events()))
}

func TestTracker_SmallChangeIsSilent(t *testing.T) {
	env := newEnv(t, "hunger: 70\n")
	env.Trigger(Modify{Hunger: -1})

	changed := testutil.WaitFor[Changed](env, nil)
	require.Equal(t, 69, changed.New.Hunger)
	_, ok := changed.AgentMessage()
	require.False(t, ok)
}

func TestTracker_Infos(t *testing.T) {
	env := newEnv(t, "mood: 10\nhealth: 55\nhunger: 150\n")
	groups := env.Infos()
	require.Equal(t, []plugin.InfoGroup{{
		Title: "Pet State",
		Items: []plugin.InfoItem{
			{Key: "Mood", Value: "miserable (10/100)"},
			{Key: "Health", Value: "tired (55/100)"},
			{Key: "Hunger", Value: "full (100/100)"},
		},
	}}, groups)
}

func TestWords(t *testing.T) {
	tests := []struct {
		v    int
		want string
	}{
		{100, "happy"}, {80, "happy"}, {79, "calm"}, {50, "calm"},
		{49, "sad"}, {20, "sad"}, {19, "miserable"}, {0, "miserable"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, MoodWord(tt.v), "v=%d", tt.v)
	}
	require.Equal(t, "starving", HungerWord(0))
	require.Equal(t, "sick", HealthWord(30))
}

func TestModify_NotSeenByAgent(t *testing.T) {
	_, ok := event.Event(Modify{Mood: 1}).AgentMessage()
	require.False(t, ok)
}
