package speak

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/deskmate/internal/event"
	"github.com/zjrosen/deskmate/internal/plugins/think"
	"github.com/zjrosen/deskmate/internal/testutil"
)

func TestSpeaker_FieldBecomesSpeech(t *testing.T) {
	env := testutil.NewBuilder(t).
		WithPlugins(Descriptor()).
		WithConfig(ID, "max_length: 5\n").
		Build()
	env.Init()

	env.Trigger(event.PluginField{Key: Field, Value: "  hello world "})
	got := testutil.WaitFor[Speak](env, nil)
	require.Equal(t, "hell…", got.Text)

	env.Trigger(event.PluginField{Key: Field, Value: "   "})
	env.Trigger(event.PluginField{Key: "other", Value: "x"})
	env.Do(func() {})
	require.Len(t, testutil.EventsOf[Speak](env.Events()), 1)
}

func TestPrompts_MergeUnderOutput(t *testing.T) {
	env := testutil.NewBuilder(t).WithPlugins(Descriptor(), think.Descriptor()).Build()
	env.Init()

	var prompts map[string]string
	env.Do(func() { prompts = env.Plugins.Prompts() })
	require.Equal(t,
		"Put anything you want to say to the user in the `speak` field. Keep it to one or two short sentences.\n"+
			"Use the `think` field to reason before you act. The user never sees it.",
		prompts["output"])
}

func TestTruncate(t *testing.T) {
	require.Equal(t, "abc", truncate("abc", 3))
	require.Equal(t, "ab…", truncate("abcd", 3))
	require.Equal(t, "abcd", truncate("abcd", 0))
}

func TestTruncate_KeepsGraphemesWhole(t *testing.T) {
	family := "👨‍👩‍👧"
	require.Equal(t, family+"…", truncate(family+family+family, 2))
	require.Equal(t, "🇯🇵🇯🇵", truncate("🇯🇵🇯🇵", 2))
}
