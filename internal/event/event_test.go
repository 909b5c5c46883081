package event

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type customEvent struct {
	Base
	n int
}

func (customEvent) Tags() []Tag { return []Tag{TagMove, TagUser} }

func TestName(t *testing.T) {
	require.Equal(t, "event.Plain", Name(Plain{Content: "hi"}))
	require.Equal(t, "event.customEvent", Name(&customEvent{}))
	require.Equal(t, "<nil>", Name(nil))
}

func TestHasTag(t *testing.T) {
	e := customEvent{}
	require.True(t, HasTag(e, TagMove))
	require.True(t, HasTag(e, TagMove, TagUser))
	require.False(t, HasTag(e, TagMove, TagAgent))
	require.True(t, HasTag(e), "no tags requested")
	require.False(t, HasTag(Plain{}, TagUser))
}

func TestAgentMessage(t *testing.T) {
	tests := []struct {
		name string
		ev   Event
		want Message
		ok   bool
	}{
		{name: "plain", ev: Plain{Content: "You feel a bit bored..."}, want: Message{Role: RoleEvent, Content: "You feel a bit bored..."}, ok: true},
		{name: "user input", ev: UserInput{Content: "hello"}, want: Message{Role: RoleUser, Content: "hello"}, ok: true},
		{name: "invoke start", ev: InvokeStart{}, ok: false},
		{name: "plugin field", ev: PluginField{Key: "speak", Value: "hi"}, ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, ok := tt.ev.AgentMessage()
			require.Equal(t, tt.ok, ok)
			require.Equal(t, tt.want, msg)

			again, _ := tt.ev.AgentMessage()
			require.Equal(t, msg, again)
		})
	}
}

func TestPointString(t *testing.T) {
	require.Equal(t, "(10, 20)", Point{X: 10.7, Y: 20.2}.String())
}
