package idle

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/deskmate/internal/event"
	"github.com/zjrosen/deskmate/internal/plugins/move"
	"github.com/zjrosen/deskmate/internal/plugins/pet"
	"github.com/zjrosen/deskmate/internal/testutil"
)

func TestIdle_WandersNearby(t *testing.T) {
	env := testutil.NewBuilder(t).
		WithPlugins(pet.Descriptor(), move.Descriptor(), Descriptor()).
		WithConfig(pet.ID, "start: {x: 500, y: 500}\n").
		WithConfig(move.ID, "step: 1ms\n").
		WithConfig(ID, "speed: 20000\nmin_distance: 10\nmax_distance: 20\nwander_min: 5ms\nwander_max: 10ms\nbored_min: 1h\nbored_max: 1h\n").
		Build()
	env.Init()
	require.True(t, env.Running(WanderTask))
	require.True(t, env.Running(BoredTask))

	arrived := testutil.WaitFor[move.Move](env, func(e move.Move) bool { return e.Finished })
	d := math.Hypot(arrived.Pos.X-500, arrived.Pos.Y-500)
	require.GreaterOrEqual(t, d, 9.0)
	require.LessOrEqual(t, d, 21.0)
}

func TestIdle_DisabledStopsTasks(t *testing.T) {
	env := testutil.NewBuilder(t).
		WithPlugins(pet.Descriptor(), move.Descriptor(), Descriptor()).
		Build()
	env.Init()
	require.True(t, env.Running(BoredTask))

	var err error
	env.Do(func() { err = env.Plugins.SetEnabled(t.Context(), ID, false) })
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return !env.Running(BoredTask) && !env.Running(WanderTask)
	}, testutil.DefaultTimeout, time.Millisecond)
}

func TestBored_FiresAfterQuiet(t *testing.T) {
	var em testutil.Emitter
	b := NewBored(10*time.Millisecond, 10*time.Millisecond)
	cancel, done := testutil.RunTask(b, &em)
	defer cancel()

	require.Eventually(t, func() bool {
		return len(em.Events()) > 0
	}, testutil.DefaultTimeout, time.Millisecond)
	require.Equal(t, event.Plain{Content: BoredMessage}, em.Events()[0])

	cancel()
	require.Error(t, <-done)
}

func TestBored_UserActivityResets(t *testing.T) {
	var em testutil.Emitter
	b := NewBored(100*time.Millisecond, 100*time.Millisecond)
	cancel, _ := testutil.RunTask(b, &em)
	defer cancel()

	deadline := time.Now().Add(250 * time.Millisecond)
	for time.Now().Before(deadline) {
		b.OnEvent(event.UserInput{Content: "hey"})
		time.Sleep(10 * time.Millisecond)
	}
	require.Empty(t, em.Events())

	require.Eventually(t, func() bool {
		return len(em.Events()) > 0
	}, testutil.DefaultTimeout, 5*time.Millisecond)
}

func TestBored_IgnoresNonUserEvents(t *testing.T) {
	b := NewBored(time.Second, time.Second)
	require.False(t, b.OnEvent(move.Move{}))
	require.Empty(t, b.reset)
	require.False(t, b.OnEvent(event.UserInput{}))
	require.Len(t, b.reset, 1)
}

func TestBetween(t *testing.T) {
	require.Equal(t, time.Second, between(time.Second, time.Second))
	for range 100 {
		d := between(time.Second, 2*time.Second)
		require.GreaterOrEqual(t, d, time.Second)
		require.Less(t, d, 2*time.Second)
	}
}
