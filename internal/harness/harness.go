package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/roach88/statetree/internal/behavior"
	"github.com/roach88/statetree/internal/route"
	"github.com/roach88/statetree/internal/router"
	"github.com/roach88/statetree/internal/store"
	"github.com/roach88/statetree/internal/testutil"
	"github.com/roach88/statetree/internal/tree"
)

// DefaultAwaitTimeout bounds a behavior step.
const DefaultAwaitTimeout = 5 * time.Second

// Runner executes scenarios. Each run gets a fresh tree, node ids from a
// fresh "n" sequence, and a fresh behavior tracker, so runs are isolated
// and their traces are deterministic.
type Runner struct {
	store        *store.Store
	logger       *slog.Logger
	awaitTimeout time.Duration
	maxSteps     int
	tracking     behavior.Tracking
	treeMetrics  *tree.Metrics
	behMetrics   *behavior.Metrics
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithStore persists snapshot steps in s. Snapshots are stored under
// "<scenario>/<name>" and restore steps load them back from s.
func WithStore(s *store.Store) RunnerOption {
	return func(r *Runner) {
		r.store = s
	}
}

// WithLogger sets the logger. Default: discard.
func WithLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = l
	}
}

// WithAwaitTimeout bounds behavior steps. Default: DefaultAwaitTimeout.
func WithAwaitTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) {
		r.awaitTimeout = d
	}
}

// WithMaxSteps bounds node evaluations per cycle for scenarios that do not
// set max_steps.
func WithMaxSteps(n int) RunnerOption {
	return func(r *Runner) {
		r.maxSteps = n
	}
}

// WithTracking sets the behavior retention policy. The default keeps every
// behavior, so a behaviors expectation counts all behaviors started so far.
func WithTracking(tr behavior.Tracking) RunnerOption {
	return func(r *Runner) {
		r.tracking = tr
	}
}

// WithMetrics records tree and behavior metrics of every run.
func WithMetrics(tm *tree.Metrics, bm *behavior.Metrics) RunnerOption {
	return func(r *Runner) {
		r.treeMetrics = tm
		r.behMetrics = bm
	}
}

// NewRunner creates a runner.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		awaitTimeout: DefaultAwaitTimeout,
		maxSteps:     tree.DefaultMaxSteps,
		tracking:     behavior.TrackIndefinitely,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes a scenario with a default runner.
func Run(sc *Scenario) (*Result, error) {
	return NewRunner().Run(context.Background(), sc)
}

// Run executes sc and checks its expectations. Step errors are part of the
// result; the returned error is reserved for failures of the harness
// itself.
func (r *Runner) Run(ctx context.Context, sc *Scenario) (*Result, error) {
	ex := r.newExecution(sc)
	defer ex.close()

	res := NewResult(sc.Name)
	res.Start = ex.start(ctx)
	for _, msg := range checkStep(res.Start, sc.ExpectStart, sc.ExpectStartError, ex) {
		res.AddError(msg)
	}
	if res.Start.err != nil {
		r.logger.Debug("scenario start failed",
			"scenario", sc.Name,
			"error_kind", res.Start.Error,
		)
		return res, nil
	}

	for i, st := range sc.Steps {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		sr := ex.step(ctx, i+1, st)
		res.Steps = append(res.Steps, sr)
		for _, msg := range checkStep(sr, st.Expect, st.ExpectError, ex) {
			res.AddError(msg)
		}
		r.logger.Debug("scenario step",
			"scenario", sc.Name,
			"index", sr.Index,
			"op", sr.Op,
			"node_starts", sr.Counts.NodeStarts,
			"node_stops", sr.Counts.NodeStops,
			"node_updates", sr.Counts.NodeUpdates,
			"error_kind", sr.Error,
		)
	}
	if snap, err := ex.tree.Snapshot(); err == nil {
		res.Final = &snap
	}
	return res, nil
}

// execution is the state of one scenario run.
type execution struct {
	r         *Runner
	sc        *Scenario
	cat       *catalog
	ids       *testutil.SequenceGenerator
	clock     *tree.Clock
	tracker   *behavior.Tracker
	tree      *tree.Tree
	snapshots map[string]route.Snapshot
}

func (r *Runner) newExecution(sc *Scenario) *execution {
	opts := []behavior.Option{
		behavior.WithTracking(r.tracking),
		behavior.WithLogger(r.logger),
	}
	if r.behMetrics != nil {
		opts = append(opts, behavior.WithMetrics(r.behMetrics))
	}
	ex := &execution{
		r:         r,
		sc:        sc,
		cat:       &catalog{kinds: sc.Kinds},
		ids:       testutil.NewSequenceGenerator("n"),
		clock:     tree.NewClock(),
		tracker:   behavior.NewTracker(opts...),
		snapshots: make(map[string]route.Snapshot),
	}
	ex.tree = ex.newTree(sc.Root, false)
	return ex
}

func (ex *execution) newTree(kind string, pin bool) *tree.Tree {
	maxSteps := ex.r.maxSteps
	if ex.sc.MaxSteps > 0 {
		maxSteps = ex.sc.MaxSteps
	}
	opts := []tree.Option{
		tree.WithIDGenerator(ex.ids),
		tree.WithMaxSteps(maxSteps),
		tree.WithLogger(ex.r.logger),
		tree.WithTracker(ex.tracker),
		tree.WithClock(ex.clock),
	}
	if ex.r.treeMetrics != nil {
		opts = append(opts, tree.WithMetrics(ex.r.treeMetrics))
	}
	return tree.New(&node{Kind: kind, cat: ex.cat, pin: pin}, opts...)
}

func (ex *execution) close() {
	if err := ex.tree.Close(); err != nil {
		ex.r.logger.Warn("close tree", "scenario", ex.sc.Name, "error", err)
	}
	if err := ex.tracker.Close(); err != nil {
		ex.r.logger.Warn("close tracker", "scenario", ex.sc.Name, "error", err)
	}
}

func (ex *execution) start(ctx context.Context) StepResult {
	sr := StepResult{Op: OpStart}
	if _, err := ex.tree.Start(ctx); err != nil {
		sr.fail(err)
	}
	ex.settle(&sr)
	return sr
}

// settle records the counts committed since the last step and the live
// node count.
func (ex *execution) settle(sr *StepResult) {
	stats := ex.tree.FlushUpdateStats()
	if sr.err == nil {
		sr.Counts = stats.Counts
	}
	sr.Nodes = ex.tree.Info().NodeCount
}

func (ex *execution) step(ctx context.Context, index int, st Step) StepResult {
	sr := StepResult{Index: index, Name: st.Name, Op: st.Op()}

	var err error
	switch sr.Op {
	case OpServe:
		err = ex.mutate(ctx, st.Serve.Path, func(n *node) func() {
			return n.serve(st.Serve.Field, st.Serve.Entries)
		})
	case OpUnserve:
		err = ex.mutate(ctx, st.Unserve.Path, func(n *node) func() {
			return n.unserve(st.Unserve.Field)
		})
	case OpSet:
		err = ex.mutate(ctx, st.Set.Path, func(n *node) func() {
			return n.set(st.Set.Key, st.Set.Value)
		})
	case OpSnapshot:
		err = ex.snapshot(ctx, st.Snapshot)
	case OpRestore:
		err = ex.restore(ctx, st.Restore.Name, st.Restore.Root)
	case OpBehavior:
		err = ex.behavior(ctx, st.Behavior.Path, st.Behavior.ID)
	default:
		err = fmt.Errorf("step has no operation")
	}
	if err != nil {
		sr.fail(err)
	}
	ex.settle(&sr)
	return sr
}

// mutate edits the node at path and runs one cycle. The tree discards a
// failed cycle but not the edit itself, so the edit is undone with a
// second cycle whose counts are dropped.
func (ex *execution) mutate(ctx context.Context, path string, edit func(*node) func()) error {
	id, err := ex.resolve(path)
	if err != nil {
		return err
	}
	var undo func()
	err = ex.tree.Mutate(ctx, id, func(n router.Node) error {
		nd, ok := n.(*node)
		if !ok {
			return fmt.Errorf("node %q is not a scenario node", id)
		}
		undo = edit(nd)
		return nil
	})
	if err == nil || undo == nil {
		return err
	}
	rerr := ex.tree.Mutate(context.WithoutCancel(ctx), id, func(router.Node) error {
		undo()
		return nil
	})
	if rerr != nil {
		ex.r.logger.Warn("revert failed step", "node_id", id, "error", rerr)
	}
	ex.tree.FlushUpdateStats()
	return err
}

func (ex *execution) snapshot(ctx context.Context, name string) error {
	snap, err := ex.tree.Snapshot()
	if err != nil {
		return err
	}
	ex.snapshots[name] = snap
	if ex.r.store != nil {
		if _, _, err := ex.r.store.SaveSnapshot(ctx, ex.storeName(name), snap); err != nil {
			return err
		}
	}
	return nil
}

func (ex *execution) restore(ctx context.Context, name, root string) error {
	snap, err := ex.loadSnapshot(ctx, name)
	if err != nil {
		return err
	}
	kind := ex.sc.Root
	if root != "" {
		kind = root
	}
	next := ex.newTree(kind, root != "")
	if _, err := next.Restore(ctx, snap); err != nil {
		return err
	}
	if err := ex.tree.Close(); err != nil {
		ex.r.logger.Warn("close replaced tree", "error", err)
	}
	ex.tree = next
	return nil
}

func (ex *execution) loadSnapshot(ctx context.Context, name string) (route.Snapshot, error) {
	if ex.r.store != nil {
		snap, _, err := ex.r.store.LoadSnapshot(ctx, ex.storeName(name))
		return snap, err
	}
	snap, ok := ex.snapshots[name]
	if !ok {
		return route.Snapshot{}, fmt.Errorf("snapshot %q: %w", name, store.ErrSnapshotNotFound)
	}
	return snap, nil
}

func (ex *execution) storeName(name string) string {
	return ex.sc.Name + "/" + name
}

// behavior runs a behavior resolving to a copy of the node's state and
// waits for every tracked behavior.
func (ex *execution) behavior(ctx context.Context, path, id string) error {
	nid, err := ex.resolve(path)
	if err != nil {
		return err
	}
	sc, ok := ex.tree.Scope(nid)
	if !ok {
		return &tree.ScopeNotFoundError{Node: nid}
	}
	input := map[string]string{}
	if n, ok := sc.Node().(*node); ok && n.State != nil {
		input = n.snapshotState()
	}
	b := behavior.New(behavior.ID(id), func(ctx context.Context, in any) (any, error) {
		return in, ctx.Err()
	})
	res, err := ex.tree.RunBehavior(nid, b, input)
	if err != nil {
		return err
	}
	if err := ex.tracker.AwaitBehaviors(ctx, ex.r.awaitTimeout); err != nil {
		return err
	}
	out, _ := res.Result()
	return out.Err
}

// resolve maps a node path to a live node id.
func (ex *execution) resolve(path string) (route.NodeID, error) {
	root, err := ex.tree.Root()
	if err != nil {
		return "", err
	}
	id := root.ID()
	if path == "" {
		return id, nil
	}
	for _, seg := range strings.Split(path, "/") {
		field, key, keyed := strings.Cut(seg, ".")
		v, err := ex.tree.Current(id, field)
		if err != nil {
			return "", err
		}
		child, ok := lookup(v, key, keyed)
		if !ok {
			return "", &PathError{Path: path, Segment: seg}
		}
		id = child.ID
	}
	return id, nil
}

// lookup finds the realized child keyed key, or the only child when the
// segment names no key.
func lookup(v router.Value, key string, keyed bool) (router.Child, bool) {
	for _, c := range v {
		if !c.ID.Valid() {
			continue
		}
		if !keyed || c.Key == key {
			return c, true
		}
	}
	return router.Child{}, false
}

// fieldKeys returns the child keys of a field path "node/path/field".
func (ex *execution) fieldKeys(path string) ([]string, error) {
	nodePath, field := "", path
	if i := strings.LastIndex(path, "/"); i >= 0 {
		nodePath, field = path[:i], path[i+1:]
	}
	id, err := ex.resolve(nodePath)
	if err != nil {
		return nil, err
	}
	v, err := ex.tree.Current(id, field)
	if err != nil {
		return nil, err
	}
	return v.Keys(), nil
}

func (ex *execution) state(path string) (map[string]string, error) {
	id, err := ex.resolve(path)
	if err != nil {
		return nil, err
	}
	sc, ok := ex.tree.Scope(id)
	if !ok {
		return nil, &tree.ScopeNotFoundError{Node: id}
	}
	n, ok := sc.Node().(*node)
	if !ok {
		return nil, fmt.Errorf("node %q is not a scenario node", id)
	}
	return n.State, nil
}
