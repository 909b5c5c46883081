package pubsub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestListenCmd_ReceivesEvent(t *testing.T) {
	broker := NewBroker[string]()
	defer broker.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := broker.Subscribe(ctx)
	broker.Publish(LogLine, "hello world")

	msg := ListenCmd(ctx, ch)()
	ev, ok := msg.(Event[string])
	require.True(t, ok)
	require.Equal(t, "hello world", ev.Payload)
	require.Equal(t, LogLine, ev.Type)
}

func TestListenCmd_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.Nil(t, ListenCmd(ctx, make(chan Event[string]))())
}

func TestListenCmd_ChannelClosed(t *testing.T) {
	ch := make(chan Event[string])
	close(ch)

	require.Nil(t, ListenCmd(context.Background(), ch)())
}

func TestContinuousListener_DeliversInOrder(t *testing.T) {
	broker := NewBroker[int]()
	defer broker.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	listener := NewContinuousListener(ctx, broker)
	broker.Publish(Emitted, 1)
	broker.Publish(LogLine, 2)
	broker.Publish(Emitted, 3)

	want := []Event[int]{{Type: Emitted, Payload: 1}, {Type: LogLine, Payload: 2}, {Type: Emitted, Payload: 3}}
	for _, w := range want {
		ev, ok := listener.Listen()().(Event[int])
		require.True(t, ok)
		require.Equal(t, w.Payload, ev.Payload)
		require.Equal(t, w.Type, ev.Type)
	}
}
