package behavior

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gate returns a behavior that blocks until release is closed and then
// returns value.
func gate(id ID, release <-chan struct{}, value any) Behavior {
	return New(id, func(ctx context.Context, _ any) (any, error) {
		select {
		case <-release:
			return value, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
}

func echo(id ID) Behavior {
	return New(id, func(_ context.Context, input any) (any, error) {
		return input, nil
	})
}

func TestTracker_UntilCompleteRemovesFinished(t *testing.T) {
	tr := NewTracker()
	defer tr.Close()

	res := tr.Start(context.Background(), echo("a"), 1)
	got, err := res.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, got.Value)

	assert.Eventually(t, func() bool { return len(tr.Behaviors()) == 0 },
		time.Second, 5*time.Millisecond)
}

func TestTracker_IndefinitelyKeepsFinished(t *testing.T) {
	tr := NewTracker(WithTracking(TrackIndefinitely))
	defer tr.Close()

	for _, id := range []ID{"a", "b"} {
		_, err := tr.Start(context.Background(), echo(id), string(id)).Wait(context.Background())
		require.NoError(t, err)
	}

	require.NoError(t, tr.AwaitBehaviors(context.Background(), time.Second))
	results, err := tr.Resolutions(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, ID("a"), results[0].ID)
	assert.Equal(t, "a", results[0].Value)
	assert.Equal(t, ID("b"), results[1].ID)
}

func TestTracker_AwaitReadyThenBehaviors(t *testing.T) {
	tr := NewTracker()
	defer tr.Close()

	release := make(chan struct{})
	res := tr.Start(context.Background(), gate("slow", release, "done"), nil)

	require.NoError(t, tr.AwaitReady(context.Background(), time.Second))
	assert.Equal(t, StateStarted, res.State())

	close(release)
	require.NoError(t, tr.AwaitBehaviors(context.Background(), time.Second))
	got, ok := res.Result()
	require.True(t, ok)
	assert.Equal(t, "done", got.Value)
	assert.Equal(t, StateFinished, res.State())
}

func TestTracker_TimeoutLeavesBehaviorRunning(t *testing.T) {
	tr := NewTracker()
	defer tr.Close()

	release := make(chan struct{})
	res := tr.Start(context.Background(), gate("slow", release, 7), nil)

	err := tr.AwaitBehaviors(context.Background(), 20*time.Millisecond)
	require.Error(t, err)
	assert.True(t, IsTimeout(err))
	var te *TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "await_behaviors", te.Op)
	assert.Equal(t, 1, te.Pending)

	close(release)
	got, err := res.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, got.Value)
	assert.False(t, got.Cancelled)
}

func TestTracker_InterceptorRewritesInputAndBody(t *testing.T) {
	tr := NewTracker(WithInterceptors(
		Interceptor{ID: "double", Intercept: func(_ *Behavior, input any) any {
			return input.(int) * 2
		}},
		Substitute("network", func(context.Context, any) (any, error) {
			return "stubbed", nil
		}),
	))
	defer tr.Close()

	got, err := tr.Start(context.Background(), echo("double"), 21).Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, got.Value)

	network := New("network", func(context.Context, any) (any, error) {
		return nil, errors.New("real network call")
	})
	got, err = tr.Start(context.Background(), network, nil).Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "stubbed", got.Value)
}

func TestNewTracker_DuplicateInterceptorPanics(t *testing.T) {
	assert.Panics(t, func() {
		NewTracker(WithInterceptors(
			Substitute("x", nil),
			Substitute("x", nil),
		))
	})
}

func TestTracker_CancelledBeforeStart(t *testing.T) {
	tr := NewTracker(WithTracking(TrackIndefinitely))
	defer tr.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ran := false
	res := tr.Start(ctx, New("never", func(context.Context, any) (any, error) {
		ran = true
		return nil, nil
	}), nil)

	got, err := res.Wait(context.Background())
	require.NoError(t, err)
	assert.True(t, got.Cancelled)
	assert.ErrorIs(t, got.Err, context.Canceled)
	assert.False(t, ran)
	require.NoError(t, tr.AwaitReady(context.Background(), time.Second))
}

func TestTracker_CancelWhileRunning(t *testing.T) {
	tr := NewTracker()
	defer tr.Close()

	ctx, cancel := context.WithCancel(context.Background())
	res := tr.Start(ctx, gate("slow", make(chan struct{}), nil), nil)
	require.NoError(t, tr.AwaitReady(context.Background(), time.Second))
	cancel()

	got, err := res.Wait(context.Background())
	require.NoError(t, err)
	assert.True(t, got.Cancelled)
}

func TestTracker_PanicBecomesError(t *testing.T) {
	tr := NewTracker()
	defer tr.Close()

	res := tr.Start(context.Background(), New("boom", func(context.Context, any) (any, error) {
		panic("kaboom")
	}), nil)
	got, err := res.Wait(context.Background())
	require.NoError(t, err)
	require.Error(t, got.Err)
	assert.Contains(t, got.Err.Error(), "kaboom")
	assert.False(t, got.Cancelled)
}

func TestTracker_EmptyAwaitWarns(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	tr := NewTracker(WithLogger(logger))
	defer tr.Close()

	require.NoError(t, tr.AwaitReady(context.Background(), time.Second))
	require.NoError(t, tr.AwaitBehaviors(context.Background(), 0))
	assert.Contains(t, buf.String(), "there are no registered behaviors to await")
}

func TestTracker_TrackCallbacksAreOneShot(t *testing.T) {
	tr := NewTracker(WithTracking(TrackIndefinitely))
	defer tr.Close()

	res := NewResolution("manual")
	onStarted, onFinished := tr.Track(res)
	assert.Equal(t, StateCreated, res.State())

	onStarted()
	onStarted()
	assert.Equal(t, StateStarted, res.State())

	require.True(t, res.Resolve(Result{Value: "first"}))
	assert.False(t, res.Resolve(Result{Value: "second"}))
	onFinished()
	onFinished()

	got, ok := res.Result()
	require.True(t, ok)
	assert.Equal(t, "first", got.Value)
	assert.Equal(t, ID("manual"), got.ID)
	assert.Len(t, tr.Behaviors(), 1)
}

func TestTracker_FinishedWithoutResolve(t *testing.T) {
	tr := NewTracker()
	defer tr.Close()

	res := NewResolution("lost")
	_, onFinished := tr.Track(res)
	onFinished()

	got, ok := res.Result()
	require.True(t, ok)
	assert.ErrorIs(t, got.Err, ErrUnresolved)
	assert.Empty(t, tr.Behaviors())
}

func TestTracker_SubscribeSeesLifecycle(t *testing.T) {
	tr := NewTracker()
	defer tr.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, err := tr.Subscribe(ctx)
	require.NoError(t, err)

	_, err = tr.Start(context.Background(), echo("watched"), nil).Wait(context.Background())
	require.NoError(t, err)

	var kinds []Kind
	timeout := time.After(2 * time.Second)
	for len(kinds) < 3 {
		select {
		case e := <-events:
			assert.Equal(t, ID("watched"), e.BehaviorID)
			kinds = append(kinds, e.Kind)
		case <-timeout:
			t.Fatalf("saw only %v", kinds)
		}
	}
	assert.Equal(t, []Kind{KindCreated, KindStarted, KindFinished}, kinds)
}

func TestTracker_SubscribeKeepsEmissionOrder(t *testing.T) {
	tr := NewTracker(WithEventBuffer(1))
	defer tr.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, err := tr.Subscribe(ctx)
	require.NoError(t, err)

	ids := []ID{"a", "b", "c", "d", "e", "f", "g", "h"}
	for _, id := range ids {
		_, onFinished := tr.Track(NewResolution(id))
		onFinished()
	}

	var got []Event
	timeout := time.After(2 * time.Second)
	for len(got) < 2*len(ids) {
		select {
		case e := <-events:
			got = append(got, e)
		case <-timeout:
			t.Fatalf("saw only %d events", len(got))
		}
	}
	for i, id := range ids {
		assert.Equal(t, Event{Kind: KindCreated, BehaviorID: id}, got[2*i])
		assert.Equal(t, Event{Kind: KindFinished, BehaviorID: id}, got[2*i+1])
	}
}

func TestTracker_TrackTwiceIsIgnored(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, "test")
	tr := NewTracker(WithMetrics(m), WithTracking(TrackIndefinitely))
	defer tr.Close()

	res := NewResolution("once")
	onStarted, onFinished := tr.Track(res)
	againStarted, againFinished := tr.Track(res)
	require.Len(t, tr.Behaviors(), 1)
	assert.Equal(t, 1.0, promtest.ToFloat64(m.events.WithLabelValues("created")))

	againStarted()
	againFinished()
	assert.Equal(t, StateCreated, res.State())

	onStarted()
	onFinished()
	assert.Equal(t, StateFinished, res.State())
	assert.Len(t, tr.Behaviors(), 1)
	assert.Equal(t, 1.0, promtest.ToFloat64(m.events.WithLabelValues("finished")))
}

func TestTracker_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, "test")
	tr := NewTracker(WithMetrics(m), WithTracking(TrackIndefinitely))
	defer tr.Close()

	_, err := tr.Start(context.Background(), echo("m"), nil).Wait(context.Background())
	require.NoError(t, err)
	require.NoError(t, tr.AwaitBehaviors(context.Background(), time.Second))

	assert.Equal(t, 1.0, promtest.ToFloat64(m.events.WithLabelValues("created")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.tracked))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.waits.WithLabelValues("await_behaviors", "ok")))
}

func TestEvent_String(t *testing.T) {
	e := Event{Kind: KindCreated, BehaviorID: "X"}
	assert.Equal(t, "created behavior (id: X)", e.String())
}

func TestParseTracking(t *testing.T) {
	got, err := ParseTracking("until_complete")
	require.NoError(t, err)
	assert.Equal(t, TrackUntilComplete, got)

	got, err = ParseTracking("Indefinitely")
	require.NoError(t, err)
	assert.Equal(t, TrackIndefinitely, got)

	_, err = ParseTracking("forever")
	assert.Error(t, err)
}

func TestTracker_AnonymousBehaviorGetsID(t *testing.T) {
	tr := NewTracker()
	defer tr.Close()

	res := tr.Start(context.Background(), New("", func(context.Context, any) (any, error) {
		return nil, nil
	}), nil)
	assert.Len(t, string(res.ID()), 36)
	_, err := res.Wait(context.Background())
	require.NoError(t, err)
}
