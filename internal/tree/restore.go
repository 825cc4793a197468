package tree

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/roach88/statetree/internal/route"
	"github.com/roach88/statetree/internal/router"
)

// Restorer nodes decode their own persisted state. Nodes that do not
// implement it are decoded with encoding/json into a fresh value of the
// prototype's type.
type Restorer interface {
	Restore(state []byte) (router.Node, error)
}

func decodeNode(proto router.Node, state json.RawMessage) (router.Node, error) {
	if r, ok := proto.(Restorer); ok {
		return r.Restore(state)
	}

	typ := reflect.TypeOf(proto)
	isPtr := typ.Kind() == reflect.Pointer
	if isPtr {
		typ = typ.Elem()
	}
	v := reflect.New(typ)
	if len(state) > 0 {
		if err := json.Unmarshal(state, v.Interface()); err != nil {
			return nil, fmt.Errorf("decode %s: %w", typ, err)
		}
	}
	if !isPtr {
		v = v.Elem()
	}
	node, ok := v.Interface().(router.Node)
	if !ok {
		return nil, fmt.Errorf("decoded %s does not implement router.Node", v.Type())
	}
	return node, nil
}

// Snapshot captures every committed route record and every live node with
// its JSON-encoded state. Concurrent callers share one capture. The
// returned snapshot must not be modified.
func (t *Tree) Snapshot() (route.Snapshot, error) {
	v, err, _ := t.snapshots.Do("snapshot", func() (any, error) {
		return t.snapshot()
	})
	if err != nil {
		return route.Snapshot{}, err
	}
	return v.(route.Snapshot), nil
}

func (t *Tree) snapshot() (route.Snapshot, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.started {
		return route.Snapshot{}, ErrNotStarted
	}

	snap := route.NewSnapshot()
	snap.Root = t.root.id
	for fid, rec := range t.records {
		snap.Routes[fid] = rec
	}
	for id, sc := range t.scopes {
		state, err := json.Marshal(sc.node)
		if err != nil {
			return route.Snapshot{}, fmt.Errorf("snapshot node %q: %w", id, err)
		}
		rec := sc.record()
		rec.State = state
		snap.Nodes[id] = rec
	}
	return snap, nil
}

// Restore starts the tree from snap instead of allocating fresh
// identities. Route records are hydrated by the routers declared for them,
// starting at the root; records no declared field reaches are dropped.
// The first failure (missing record, shape mismatch, undecodable state)
// aborts the restore and leaves the tree stopped.
func (t *Tree) Restore(ctx context.Context, snap route.Snapshot) (*Scope, error) {
	ctx, span := t.tracer.Start(ctx, "statetree.restore")
	defer span.End()

	if err := snap.Validate(); err != nil {
		return nil, fmt.Errorf("restore: %w", err)
	}

	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return nil, ErrAlreadyStarted
	}

	tx := t.newTxn()
	tx.persisted = snap.Routes
	tx.nodes = snap.Nodes

	rootRouter := router.NewSingle(t.proto)
	rootRouter.Bind(router.Context{})
	if err := t.hydrate(ctx, tx, rootRouter); err != nil {
		tx.discard()
		t.mu.Unlock()
		span.RecordError(err)
		return nil, fmt.Errorf("restore: %w", err)
	}

	h := t.commit(tx)
	t.metrics.committed(tx.counts, len(t.scopes), 0)
	t.attachRoot(rootRouter)
	root := t.root
	t.mu.Unlock()

	t.logger.Debug("tree restored", "root", root.id, "node_starts", tx.counts.NodeStarts)
	h.run()
	return root, nil
}

// hydrate walks the snapshot breadth first from the root slot, reattaching
// every routed field of every reconnected scope.
func (t *Tree) hydrate(ctx context.Context, tx *txn, rootRouter router.Router) error {
	pending, err := rootRouter.Hydrate(route.RootField, tx)
	if err != nil {
		return err
	}
	for len(pending) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		sc := pending[0].(*Scope)
		pending = pending[1:]
		for _, f := range sc.fields {
			more, err := f.router.Hydrate(route.Field(sc.id, f.name), tx)
			if err != nil {
				return err
			}
			pending = append(pending, more...)
		}
	}
	return nil
}
