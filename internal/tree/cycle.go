package tree

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/roach88/statetree/internal/route"
	"github.com/roach88/statetree/internal/router"
)

// cycle evaluates every queued scope of tx and commits it. On failure the
// txn is discarded and the committed tree is untouched. Caller must hold
// the write lock.
func (t *Tree) cycle(ctx context.Context, op string, tx *txn) (hooks, error) {
	ctx, span := t.tracer.Start(ctx, "statetree.cycle")
	defer span.End()
	span.SetAttributes(attribute.String("statetree.op", op))
	start := time.Now()

	for {
		sc, ok := tx.next()
		if !ok {
			break
		}
		err := ctx.Err()
		if err == nil {
			err = tx.evaluate(sc)
		}
		if err != nil {
			tx.discard()
			t.metrics.discarded(time.Since(start))
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			t.logger.Warn("cycle discarded",
				"op", op,
				"node_id", sc.id,
				"error", err,
			)
			return hooks{}, err
		}
	}

	h := t.commit(tx)
	t.metrics.committed(tx.counts, len(t.scopes), time.Since(start))
	span.SetAttributes(
		attribute.Int64("statetree.cycle", t.stats.LastCycle),
		attribute.Int("statetree.node_starts", tx.counts.NodeStarts),
		attribute.Int("statetree.node_stops", tx.counts.NodeStops),
		attribute.Int("statetree.node_updates", tx.counts.NodeUpdates),
	)
	t.logger.Debug("cycle committed",
		"op", op,
		"cycle", t.stats.LastCycle,
		"node_starts", tx.counts.NodeStarts,
		"node_stops", tx.counts.NodeStops,
		"node_updates", tx.counts.NodeUpdates,
	)
	return h, nil
}

// evaluate runs sc's rules and reconciles each routed field in declaration
// order. Fields the rules do not serve are applied once, then held at their
// declared default.
func (tx *txn) evaluate(sc *Scope) error {
	if err := tx.quota.Check(sc.id); err != nil {
		return err
	}
	tx.counts.NodeUpdates++

	rules := router.NewRules()
	sc.node.Rules(rules)
	for _, name := range rules.Fields() {
		if _, ok := sc.field(name); !ok {
			return &UnknownFieldError{Node: sc.id, Field: name}
		}
	}

	for i, f := range sc.fields {
		fid := route.Field(sc.id, f.name)
		r := tx.routerAt(sc, i)
		desired, served := rules.Lookup(f.name)
		switch {
		case served:
			if _, err := r.Reconcile(desired, fid, tx); err != nil {
				return err
			}
		case !r.Applied():
			if err := r.Apply(fid, tx); err != nil {
				return err
			}
		default:
			if _, err := r.Reconcile(r.Default(), fid, defaultRuntime{tx}); err != nil {
				return err
			}
		}
	}
	return nil
}

// commit publishes tx. Records are written before released scopes are
// removed, and both happen under the caller's write lock, so no reader sees
// a record pointing at a missing scope or a scope nothing references.
func (t *Tree) commit(tx *txn) hooks {
	for fid, rec := range tx.records {
		t.records[fid] = rec
	}
	for fid := range tx.dropped {
		delete(t.records, fid)
	}
	for _, m := range tx.merges {
		if !tx.gone[m.scope.id] {
			m.scope.fields[m.index].router = m.router
		}
	}

	var h hooks
	for _, sc := range tx.released {
		if _, staged := tx.staged[sc.id]; staged {
			sc.cancel()
			continue
		}
		delete(t.scopes, sc.id)
		h.stopped = append(h.stopped, sc)
	}
	for _, sc := range tx.created {
		if tx.gone[sc.id] {
			continue
		}
		t.scopes[sc.id] = sc
		h.started = append(h.started, sc)
	}

	t.stats.add(tx.counts)
	t.stats.Cycles++
	t.stats.LastCycle = t.clock.Next()
	return h
}

// hooks are the lifecycle notifications of a committed cycle. They run
// after the write lock is released.
type hooks struct {
	started []*Scope
	stopped []*Scope
}

func (h hooks) run() {
	for _, sc := range h.stopped {
		sc.cancel()
		if s, ok := sc.node.(router.Stopper); ok {
			s.Stop()
		}
	}
	for _, sc := range h.started {
		if s, ok := sc.node.(router.Starter); ok {
			s.Start(sc.ctx)
		}
	}
}
