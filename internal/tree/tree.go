package tree

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/roach88/statetree/internal/behavior"
	"github.com/roach88/statetree/internal/route"
	"github.com/roach88/statetree/internal/router"
)

const tracerName = "github.com/roach88/statetree/internal/tree"

// Tree hosts a state tree rooted at a single node.
type Tree struct {
	mu sync.RWMutex

	proto    router.Node
	ids      route.Generator
	clock    *Clock
	logger   *slog.Logger
	tracer   trace.Tracer
	metrics  *Metrics
	maxSteps int

	tracker     *behavior.Tracker
	ownsTracker bool

	started    bool
	root       *Scope
	rootRouter router.Router
	scopes     map[route.NodeID]*Scope
	records    map[route.FieldID]route.Record
	stats      UpdateStats

	snapshots singleflight.Group
}

// Option configures a Tree.
type Option func(*Tree)

// WithIDGenerator sets the node identity source. Default: UUIDv7.
func WithIDGenerator(g route.Generator) Option {
	return func(t *Tree) {
		t.ids = g
	}
}

// WithMaxSteps bounds node evaluations per cycle. Default: DefaultMaxSteps.
func WithMaxSteps(n int) Option {
	return func(t *Tree) {
		t.maxSteps = n
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(t *Tree) {
		t.logger = l
	}
}

// WithMetrics records cycle metrics on m.
func WithMetrics(m *Metrics) Option {
	return func(t *Tree) {
		t.metrics = m
	}
}

// WithTracker runs node behaviors on an existing tracker. The tree does not
// close a tracker it did not create.
func WithTracker(tr *behavior.Tracker) Option {
	return func(t *Tree) {
		t.tracker = tr
	}
}

// WithClock continues cycle numbering from c.
func WithClock(c *Clock) Option {
	return func(t *Tree) {
		t.clock = c
	}
}

// New creates a tree whose root is declared by root. Every Start connects a
// fresh copy of it (see router.Clone), so a tree started again after Stop
// begins from the declared state. root doubles as the prototype used to
// decode the root's persisted state on Restore.
func New(root router.Node, opts ...Option) *Tree {
	if root == nil {
		panic("tree: New requires a root node")
	}
	t := &Tree{
		proto:    root,
		ids:      route.UUIDv7Generator{},
		clock:    NewClock(),
		logger:   slog.Default(),
		tracer:   otel.Tracer(tracerName),
		maxSteps: DefaultMaxSteps,
		scopes:   make(map[route.NodeID]*Scope),
		records:  make(map[route.FieldID]route.Record),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.metrics == nil {
		t.metrics = NewMetrics(nil, "")
	}
	if t.tracker == nil {
		t.tracker = behavior.NewTracker(behavior.WithLogger(t.logger))
		t.ownsTracker = true
	}
	return t
}

// Start connects the root node and runs the first cycle.
func (t *Tree) Start(ctx context.Context) (*Scope, error) {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return nil, ErrAlreadyStarted
	}

	tx := t.newTxn()
	rootRouter := router.NewSingle(t.proto)
	rootRouter.Bind(router.Context{})
	if err := rootRouter.Apply(route.RootField, tx); err != nil {
		tx.discard()
		t.mu.Unlock()
		return nil, err
	}
	hooks, err := t.cycle(ctx, "start", tx)
	if err != nil {
		t.mu.Unlock()
		return nil, err
	}
	t.attachRoot(rootRouter)
	root := t.root
	t.mu.Unlock()

	hooks.run()
	return root, nil
}

// attachRoot marks the tree started with the root referenced by the
// committed root record. Caller must hold the write lock.
func (t *Tree) attachRoot(r router.Router) {
	single := t.records[route.RootField].(route.Single)
	t.root = t.scopes[single.ID]
	t.rootRouter = r
	t.started = true
}

// Stop releases every scope. The tree can be started or restored again.
func (t *Tree) Stop(ctx context.Context) error {
	t.mu.Lock()
	if !t.started {
		t.mu.Unlock()
		return ErrNotStarted
	}
	tx := t.newTxn()
	tx.Release(t.root.id)
	delete(tx.records, route.RootField)
	tx.dropped[route.RootField] = true
	hooks := t.commit(tx)
	t.started = false
	t.root = nil
	t.rootRouter = nil
	t.mu.Unlock()

	t.logger.Debug("tree stopped", "node_stops", tx.counts.NodeStops)
	hooks.run()
	return nil
}

// Close stops the tree if it is running and closes the behavior tracker
// it created.
func (t *Tree) Close() error {
	if err := t.Stop(context.Background()); err != nil && !errors.Is(err, ErrNotStarted) {
		return err
	}
	if t.ownsTracker {
		return t.tracker.Close()
	}
	return nil
}

// Mutate runs fn against the node of scope id, then runs one update cycle
// seeded by that scope. fn runs under the write lock and must not call
// back into the tree. If fn or the cycle fails, no route or scope change
// is committed.
func (t *Tree) Mutate(ctx context.Context, id route.NodeID, fn func(router.Node) error) error {
	t.mu.Lock()
	if !t.started {
		t.mu.Unlock()
		return ErrNotStarted
	}
	sc, ok := t.scopes[id]
	if !ok {
		t.mu.Unlock()
		return &ScopeNotFoundError{Node: id}
	}
	if err := fn(sc.node); err != nil {
		t.mu.Unlock()
		return err
	}

	tx := t.newTxn()
	tx.enqueue(sc)
	hooks, err := t.cycle(ctx, "mutate", tx)
	t.mu.Unlock()

	hooks.run()
	return err
}

// Update is Mutate for a node of known type T.
func Update[T router.Node](ctx context.Context, t *Tree, id route.NodeID, fn func(T) error) error {
	return t.Mutate(ctx, id, func(n router.Node) error {
		typed, ok := n.(T)
		if !ok {
			return &ScopeNotFoundError{Node: id}
		}
		return fn(typed)
	})
}

// Root returns the root scope.
func (t *Tree) Root() (*Scope, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.started {
		return nil, ErrNotStarted
	}
	return t.root, nil
}

// Scope returns the live scope id.
func (t *Tree) Scope(id route.NodeID) (*Scope, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	sc, ok := t.scopes[id]
	return sc, ok
}

// Record returns the committed route record of field.
func (t *Tree) Record(field route.FieldID) (route.Record, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rec, ok := t.records[field]
	return rec, ok
}

// Current returns the live value of a routed field.
func (t *Tree) Current(id route.NodeID, field string) (router.Value, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	sc, ok := t.scopes[id]
	if !ok {
		return nil, &ScopeNotFoundError{Node: id}
	}
	r, ok := sc.router(field)
	if !ok {
		return nil, &UnknownFieldError{Node: id, Field: field}
	}
	return r.Current(route.Field(id, field), t.view()), nil
}

// Children returns the nodes of a routed field that have type T.
func Children[T router.Node](t *Tree, id route.NodeID, field string) ([]T, error) {
	v, err := t.Current(id, field)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(v))
	for _, c := range v {
		if n, ok := c.Node.(T); ok {
			out = append(out, n)
		}
	}
	return out, nil
}

// Child returns the first node of a routed field if it has type T.
func Child[T router.Node](t *Tree, id route.NodeID, field string) (T, bool) {
	var zero T
	nodes, err := Children[T](t, id, field)
	if err != nil || len(nodes) == 0 {
		return zero, false
	}
	return nodes[0], true
}

// Info describes the committed tree.
func (t *Tree) Info() Info {
	t.mu.RLock()
	defer t.mu.RUnlock()
	info := Info{
		Started:   t.started,
		NodeCount: len(t.scopes),
		Cycle:     t.clock.Current(),
	}
	if t.root != nil {
		info.Root = t.root.id
	}
	for _, sc := range t.scopes {
		info.MaxDepth = max(info.MaxDepth, sc.pos.Depth)
	}
	return info
}

// FlushUpdateStats returns the counts accumulated since the previous flush
// and resets them.
func (t *Tree) FlushUpdateStats() UpdateStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	stats := t.stats
	t.stats = UpdateStats{}
	return stats
}

// Behaviors returns the tracker running this tree's behaviors.
func (t *Tree) Behaviors() *behavior.Tracker {
	return t.tracker
}

// RunBehavior starts b on behalf of scope id. The behavior's context is
// cancelled when the scope stops.
func (t *Tree) RunBehavior(id route.NodeID, b behavior.Behavior, input any) (*behavior.Resolution, error) {
	sc, ok := t.Scope(id)
	if !ok {
		return nil, &ScopeNotFoundError{Node: id}
	}
	return t.tracker.Start(sc.ctx, b, input), nil
}
