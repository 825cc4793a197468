package router

import (
	"fmt"
	"slices"

	"github.com/roach88/statetree/internal/route"
)

// label is a leaf without identity.
type label struct {
	Leaf
	Name string
}

// ident is a leaf keyed by ID.
type ident struct {
	Leaf
	ID string
}

func (n *ident) Identity() string { return n.ID }

type fakeScope struct {
	id       route.NodeID
	node     Node
	pos      Position
	received []Node
}

func (s *fakeScope) ID() route.NodeID { return s.id }
func (s *fakeScope) Node() Node       { return s.node }
func (s *fakeScope) Key() string      { return s.pos.Key }
func (s *fakeScope) Tag() int         { return s.pos.Tag }

// fakeRuntime applies router writes immediately and records every call so
// tests can check counts and ordering constraints.
type fakeRuntime struct {
	seq        int
	records    map[route.FieldID]route.Record
	nodes      map[route.NodeID]route.NodeRecord
	scopes     map[route.NodeID]*fakeScope
	connects   int
	reconnects int
	propagates int
	released   []route.NodeID
	// violations lists releases of ids still referenced by a record.
	violations []route.NodeID
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{
		records: make(map[route.FieldID]route.Record),
		nodes:   make(map[route.NodeID]route.NodeRecord),
		scopes:  make(map[route.NodeID]*fakeScope),
	}
}

func (rt *fakeRuntime) RouteRecord(field route.FieldID) (route.Record, bool) {
	rec, ok := rt.records[field]
	return rec, ok
}

func (rt *fakeRuntime) SetRouteRecord(field route.FieldID, rec route.Record) {
	rt.records[field] = rec
}

func (rt *fakeRuntime) NodeRecord(id route.NodeID) (route.NodeRecord, bool) {
	rec, ok := rt.nodes[id]
	return rec, ok
}

func (rt *fakeRuntime) Scope(id route.NodeID) (Scope, bool) {
	sc, ok := rt.scopes[id]
	if !ok {
		return nil, false
	}
	return sc, true
}

func (rt *fakeRuntime) Connect(node Node, at Position) (Scope, error) {
	rt.seq++
	rt.connects++
	sc := &fakeScope{id: route.NodeID(fmt.Sprintf("n%d", rt.seq)), node: node, pos: at}
	rt.scopes[sc.id] = sc
	return sc, nil
}

func (rt *fakeRuntime) Reconnect(proto Node, rec route.NodeRecord, at Position) (Scope, error) {
	rt.reconnects++
	sc := &fakeScope{id: rec.ID, node: proto, pos: at}
	rt.scopes[sc.id] = sc
	return sc, nil
}

func (rt *fakeRuntime) Propagate(id route.NodeID, next Node) error {
	rt.propagates++
	sc, ok := rt.scopes[id]
	if !ok {
		return fmt.Errorf("propagate to unknown scope %q", id)
	}
	sc.received = append(sc.received, next)
	return nil
}

func (rt *fakeRuntime) Release(id route.NodeID) {
	for _, rec := range rt.records {
		if slices.Contains(rec.Children(), id) {
			rt.violations = append(rt.violations, id)
		}
	}
	delete(rt.scopes, id)
	rt.released = append(rt.released, id)
}

var testField = route.Field("parent", "child")

func bound[R Router](r R) R {
	r.Bind(Context{Parent: "parent", Depth: 1})
	return r
}

func keyed(keys ...int) Topology {
	top := make(Topology, len(keys))
	for i, k := range keys {
		key := fmt.Sprint(k)
		top[i] = Keyed(key, &label{Name: key})
	}
	return top
}

func intRange(from, to int) []int {
	out := make([]int, 0, to-from)
	for i := from; i < to; i++ {
		out = append(out, i)
	}
	return out
}
