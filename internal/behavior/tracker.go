package behavior

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/roach88/statetree/internal/behavior"

const defaultEventBuffer = 64

// Tracker registers behavior resolutions and waits on them.
type Tracker struct {
	tracking     Tracking
	interceptors map[ID]Interceptor
	logger       *slog.Logger
	tracer       trace.Tracer
	metrics      *Metrics
	bus          *bus

	mu      sync.Mutex
	tracked []*Resolution
}

// Option configures a Tracker.
type Option func(*trackerConfig)

type trackerConfig struct {
	tracking     Tracking
	interceptors []Interceptor
	logger       *slog.Logger
	metrics      *Metrics
	buffer       int64
}

// WithTracking sets the retention policy. The default is
// TrackUntilComplete.
func WithTracking(t Tracking) Option {
	return func(c *trackerConfig) {
		c.tracking = t
	}
}

// WithInterceptors installs interceptors. NewTracker panics if two share
// an ID.
func WithInterceptors(is ...Interceptor) Option {
	return func(c *trackerConfig) {
		c.interceptors = append(c.interceptors, is...)
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *trackerConfig) {
		c.logger = l
	}
}

func WithMetrics(m *Metrics) Option {
	return func(c *trackerConfig) {
		c.metrics = m
	}
}

// WithEventBuffer sets the per-subscriber event buffer.
func WithEventBuffer(n int64) Option {
	return func(c *trackerConfig) {
		c.buffer = n
	}
}

// NewTracker returns an empty tracker.
func NewTracker(opts ...Option) *Tracker {
	cfg := trackerConfig{
		tracking: TrackUntilComplete,
		logger:   slog.Default(),
		buffer:   defaultEventBuffer,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.metrics == nil {
		cfg.metrics = NewMetrics(nil, "")
	}

	interceptors := make(map[ID]Interceptor, len(cfg.interceptors))
	for _, in := range cfg.interceptors {
		if _, dup := interceptors[in.ID]; dup {
			panic(fmt.Sprintf("behavior: duplicate interceptor for %q", in.ID))
		}
		interceptors[in.ID] = in
	}

	return &Tracker{
		tracking:     cfg.tracking,
		interceptors: interceptors,
		logger:       cfg.logger,
		tracer:       otel.Tracer(tracerName),
		metrics:      cfg.metrics,
		bus:          newBus(cfg.logger, cfg.buffer),
	}
}

// Tracking returns the retention policy.
func (t *Tracker) Tracking() Tracking {
	return t.tracking
}

// Track adds res to the tracked set and returns its lifecycle callbacks.
// Each callback has an effect at most once. onFinished resolves res with
// ErrUnresolved if nothing resolved it first. A resolution is tracked at
// most once; later calls return callbacks that do nothing.
func (t *Tracker) Track(res *Resolution) (onStarted, onFinished func()) {
	if !res.tracked.CompareAndSwap(false, true) {
		t.logger.Warn("behavior already tracked", "behavior_id", res.ID())
		return func() {}, func() {}
	}

	t.mu.Lock()
	t.tracked = append(t.tracked, res)
	size := len(t.tracked)
	t.mu.Unlock()

	t.metrics.tracked.Set(float64(size))
	t.emit(Event{Kind: KindCreated, BehaviorID: res.ID()})

	var startOnce, finishOnce sync.Once
	onStarted = func() {
		startOnce.Do(func() {
			if res.markStarted() {
				t.emit(Event{Kind: KindStarted, BehaviorID: res.ID()})
			}
		})
	}
	onFinished = func() {
		finishOnce.Do(func() {
			res.Resolve(Result{ID: res.ID(), Err: ErrUnresolved})
			if t.tracking == TrackUntilComplete {
				t.untrack(res)
			}
			t.emit(Event{Kind: KindFinished, BehaviorID: res.ID()})
		})
	}
	return onStarted, onFinished
}

func (t *Tracker) untrack(res *Resolution) {
	t.mu.Lock()
	t.tracked = slices.DeleteFunc(t.tracked, func(r *Resolution) bool { return r == res })
	size := len(t.tracked)
	t.mu.Unlock()
	t.metrics.tracked.Set(float64(size))
}

// Intercept applies the interceptor registered for b.ID, if any, and
// returns the input to start b with.
func (t *Tracker) Intercept(b *Behavior, input any) any {
	in, ok := t.interceptors[b.ID]
	if !ok || in.Intercept == nil {
		return input
	}
	t.logger.Debug("intercept behavior", "behavior_id", string(b.ID))
	return in.Intercept(b, input)
}

// Start tracks and runs b in its own goroutine. If ctx is already done the
// behavior never starts and resolves as cancelled. A panic in the body
// resolves the behavior with an error. A behavior without an ID is given
// a UUIDv7.
func (t *Tracker) Start(ctx context.Context, b Behavior, input any) *Resolution {
	if b.ID == "" {
		b.ID = ID(uuid.Must(uuid.NewV7()).String())
	}
	input = t.Intercept(&b, input)
	res := NewResolution(b.ID)
	onStarted, onFinished := t.Track(res)

	go func() {
		defer onFinished()
		if ctx.Err() != nil {
			res.Resolve(Result{ID: b.ID, Err: ctx.Err(), Cancelled: true})
			return
		}
		onStarted()
		value, err := t.run(ctx, b, input)
		res.Resolve(Result{
			ID:        b.ID,
			Value:     value,
			Err:       err,
			Cancelled: err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()),
		})
	}()
	return res
}

func (t *Tracker) run(ctx context.Context, b Behavior, input any) (value any, err error) {
	defer func() {
		if p := recover(); p != nil {
			t.logger.Error("behavior panicked", "behavior_id", string(b.ID), "panic", p)
			err = fmt.Errorf("behavior %s panicked: %v", b.ID, p)
		}
	}()
	if b.Run == nil {
		return nil, fmt.Errorf("behavior %s has no body", b.ID)
	}
	return b.Run(ctx, input)
}

// Behaviors returns a snapshot of the tracked set in registration order.
func (t *Tracker) Behaviors() []*Resolution {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.tracked)
}

// Resolutions waits for every behavior tracked at call time and returns
// their results in registration order.
func (t *Tracker) Resolutions(ctx context.Context) ([]Result, error) {
	snapshot := t.Behaviors()
	results := make([]Result, 0, len(snapshot))
	for _, r := range snapshot {
		res, err := r.Wait(ctx)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

// AwaitReady waits until every behavior tracked at call time has started.
// A non-positive timeout waits without bound.
func (t *Tracker) AwaitReady(ctx context.Context, timeout time.Duration) error {
	return t.await(ctx, "await_ready", timeout, (*Resolution).Started)
}

// AwaitBehaviors waits until every behavior tracked at call time has
// finished. A non-positive timeout waits without bound.
func (t *Tracker) AwaitBehaviors(ctx context.Context, timeout time.Duration) error {
	return t.await(ctx, "await_behaviors", timeout, (*Resolution).Done)
}

func (t *Tracker) await(ctx context.Context, op string, timeout time.Duration, signal func(*Resolution) <-chan struct{}) error {
	snapshot := t.Behaviors()
	if len(snapshot) == 0 {
		t.logger.Warn("there are no registered behaviors to await", "op", op)
		t.metrics.waits.WithLabelValues(op, "empty").Inc()
		return nil
	}

	ctx, span := t.tracer.Start(ctx, "statetree.behavior."+op, trace.WithAttributes(
		attribute.Int("behaviors", len(snapshot)),
		attribute.Int64("timeout_ms", timeout.Milliseconds()),
	))
	defer span.End()

	err := race(ctx, timeout, func(ctx context.Context) error {
		for _, r := range snapshot {
			select {
			case <-signal(r):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})
	if errors.Is(err, errTimedOut) {
		err = &TimeoutError{Op: op, After: timeout, Pending: pending(snapshot, signal)}
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		outcome := "error"
		if IsTimeout(err) {
			outcome = "timeout"
		}
		t.metrics.waits.WithLabelValues(op, outcome).Inc()
		t.logger.Debug("await failed", "op", op, "behaviors", len(snapshot), "error", err)
		return err
	}
	t.metrics.waits.WithLabelValues(op, "ok").Inc()
	return nil
}

func pending(rs []*Resolution, signal func(*Resolution) <-chan struct{}) int {
	n := 0
	for _, r := range rs {
		select {
		case <-signal(r):
		default:
			n++
		}
	}
	return n
}

// Subscribe streams lifecycle events emitted after the call until ctx is
// done or the tracker closes.
func (t *Tracker) Subscribe(ctx context.Context) (<-chan Event, error) {
	return t.bus.subscribe(ctx)
}

func (t *Tracker) emit(e Event) {
	t.metrics.events.WithLabelValues(string(e.Kind)).Inc()
	t.logger.Debug(e.String())
	t.bus.publish(e)
}

// Close shuts down the event bus. Running behaviors are not cancelled.
func (t *Tracker) Close() error {
	return t.bus.close()
}
