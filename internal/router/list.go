package router

import (
	"slices"

	"github.com/roach88/statetree/internal/route"
)

// List routes an ordered sequence of children addressed by identity key.
type List struct {
	binding
	proto    Node
	defaults Topology
}

// NewList returns a list router for children shaped like proto, realizing
// defaults on first apply.
func NewList(proto Node, defaults ...Entry) *List {
	if proto == nil {
		panic("router: NewList requires a prototype node")
	}
	return &List{proto: proto, defaults: defaults}
}

func (l *List) Shape() route.Shape { return route.ShapeList }

func (l *List) Default() Topology {
	top := slices.Clone(l.defaults)
	for i := range top {
		top[i].Node = Clone(top[i].Node)
	}
	return top
}

func (l *List) record(field route.FieldID, rt Runtime) (route.List, bool, error) {
	rec, ok := rt.RouteRecord(field)
	if !ok {
		return route.List{}, false, nil
	}
	list, ok := rec.(route.List)
	if !ok {
		return route.List{}, false, &ShapeMismatchError{Field: field, Want: route.ShapeList, Got: rec.Shape()}
	}
	return list, true, nil
}

func (l *List) Current(field route.FieldID, rt Runtime) Value {
	list, ok, err := l.record(field, rt)
	if err != nil || !ok {
		return l.Default().value()
	}
	v := make(Value, 0, len(list.Entries))
	for _, e := range list.Entries {
		if sc, ok := rt.Scope(e.ID); ok {
			v = append(v, childOf(sc))
		}
	}
	return v
}

func (l *List) Apply(field route.FieldID, rt Runtime) error {
	if l.applied {
		return nil
	}
	if err := l.check(field); err != nil {
		return err
	}
	if err := validateList(field, l.defaults); err != nil {
		return err
	}

	entries := make([]route.ListEntry, 0, len(l.defaults))
	for _, e := range l.Default() {
		sc, err := rt.Connect(e.Node, l.position(field, e))
		if err != nil {
			return err
		}
		entries = append(entries, route.ListEntry{Key: e.Key, ID: sc.ID()})
	}
	rt.SetRouteRecord(field, route.List{Entries: entries})
	l.applied = true
	return nil
}

func (l *List) Hydrate(field route.FieldID, rt Runtime) ([]Scope, error) {
	if err := l.check(field); err != nil {
		return nil, err
	}
	list, ok, err := l.record(field, rt)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &RecordNotFoundError{Field: field}
	}
	l.applied = true
	rt.SetRouteRecord(field, list)

	var scopes []Scope
	for _, e := range list.Entries {
		if _, live := rt.Scope(e.ID); live {
			continue
		}
		nrec, ok := rt.NodeRecord(e.ID)
		if !ok {
			return nil, &RecordNotFoundError{Field: field, Node: e.ID}
		}
		sc, err := rt.Reconnect(l.proto, nrec, Position{Field: field, Key: e.Key, Depth: l.ctx.Depth})
		if err != nil {
			return nil, err
		}
		scopes = append(scopes, sc)
	}
	return scopes, nil
}

func validateList(field route.FieldID, desired Topology) error {
	seen := make(map[string]int, len(desired))
	for i, e := range desired {
		if e.Node == nil {
			return &InvalidTopologyError{Field: field, Shape: route.ShapeList, Reason: "nil node for key " + e.Key}
		}
		if first, dup := seen[e.Key]; dup {
			return &DuplicateKeyError{Field: field, Key: e.Key, First: first, Second: i}
		}
		seen[e.Key] = i
	}
	return nil
}

// Reconcile diffs by identity key. Keys in both sequences keep their scope
// and move to their new position, keys only in desired are created, and
// keys only in the realized record are released after the new record is
// written. The resulting order is exactly desired's order.
func (l *List) Reconcile(desired Topology, field route.FieldID, rt Runtime) (Result, error) {
	if err := l.check(field); err != nil {
		return Result{}, err
	}
	if err := validateList(field, desired); err != nil {
		return Result{}, err
	}
	prev, _, err := l.record(field, rt)
	if err != nil {
		return Result{}, err
	}
	l.applied = true

	existing := make(map[string]route.NodeID, len(prev.Entries))
	for _, e := range prev.Entries {
		existing[e.Key] = e.ID
	}

	var res Result
	next := make([]route.ListEntry, 0, len(desired))
	for _, want := range desired {
		if id, ok := existing[want.Key]; ok {
			if _, live := rt.Scope(id); live {
				delete(existing, want.Key)
				if err := rt.Propagate(id, want.Node); err != nil {
					return Result{}, err
				}
				next = append(next, route.ListEntry{Key: want.Key, ID: id})
				res.Preserved = append(res.Preserved, id)
				continue
			}
		}
		sc, err := rt.Connect(want.Node, l.position(field, want))
		if err != nil {
			return Result{}, err
		}
		next = append(next, route.ListEntry{Key: want.Key, ID: sc.ID()})
		res.Created = append(res.Created, sc.ID())
	}
	rt.SetRouteRecord(field, route.List{Entries: next})

	for _, e := range prev.Entries {
		if id, gone := existing[e.Key]; gone && id == e.ID {
			rt.Release(id)
			res.Destroyed = append(res.Destroyed, id)
		}
	}
	return res, nil
}

// Merge keeps the receiver unless both routers declare non-empty default
// key sequences that differ.
func (l *List) Merge(next Router) Router {
	n, ok := next.(*List)
	if !ok || len(l.defaults) == 0 || len(n.defaults) == 0 {
		return l
	}
	if slices.Equal(l.defaults.Keys(), n.defaults.Keys()) {
		return l
	}
	n.binding = l.binding
	return n
}
