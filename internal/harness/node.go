package harness

import (
	"encoding/json"
	"fmt"
	"maps"

	"github.com/roach88/statetree/internal/route"
	"github.com/roach88/statetree/internal/router"
)

// catalog resolves node kinds to their declared fields.
type catalog struct {
	kinds map[string]KindSpec
}

func (c *catalog) field(kind, name string) (FieldSpec, bool) {
	for _, f := range c.kinds[kind].Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// build returns the node for entry e of field f.
func (c *catalog) build(f FieldSpec, e EntrySpec) *node {
	kind := e.Kind
	if kind == "" {
		i := e.Tag
		if i >= len(f.Kinds) {
			i = 0
		}
		kind = f.Kinds[i]
	}
	return &node{Kind: kind, Ident: e.Key, cat: c}
}

func (c *catalog) topology(f FieldSpec, shape route.Shape, entries []EntrySpec) router.Topology {
	top := make(router.Topology, 0, len(entries))
	for _, e := range entries {
		n := c.build(f, e)
		switch {
		case shape == route.ShapeList:
			top = append(top, router.Keyed(e.Key, n))
		case shape.Arity() > 1:
			top = append(top, router.Case(e.Tag, n))
		default:
			top = append(top, router.Item(n))
		}
	}
	return top
}

// router builds a fresh router for f. Shapes were checked when the
// scenario was validated.
func (c *catalog) router(f FieldSpec) router.Router {
	shape, _ := route.ParseShape(f.Shape)
	protos := make([]router.Node, len(f.Kinds))
	for i, k := range f.Kinds {
		protos[i] = &node{Kind: k, cat: c}
	}
	defaults := c.topology(f, shape, f.Default)

	switch shape {
	case route.ShapeSingle:
		return router.NewSingle(defaults[0].Node)
	case route.ShapeMaybeSingle:
		r := router.NewMaybe(protos[0])
		if len(defaults) == 1 {
			r.WithDefault(defaults[0].Node)
		}
		return r
	case route.ShapeUnion2, route.ShapeUnion3:
		return router.NewUnion(defaults[0], protos...)
	case route.ShapeMaybeUnion2, route.ShapeMaybeUnion3:
		r := router.NewMaybeUnion(protos...)
		if len(defaults) == 1 {
			r.WithDefault(defaults[0])
		}
		return r
	default:
		return router.NewList(protos[0], defaults...)
	}
}

// node is a scenario node. Its routed fields come from the catalog entry
// of its kind and its rules serve whatever the scenario's steps set.
type node struct {
	Kind   string                 `json:"kind"`
	Ident  string                 `json:"id,omitempty"`
	State  map[string]string      `json:"state,omitempty"`
	Served map[string][]EntrySpec `json:"served,omitempty"`

	cat *catalog
	// pin keeps Kind when restoring, so a snapshot can be hydrated as a
	// different root kind.
	pin bool
}

func (n *node) Identity() string { return n.Ident }

func (n *node) Routes() []router.Field {
	ks := n.cat.kinds[n.Kind]
	fields := make([]router.Field, 0, len(ks.Fields))
	for _, f := range ks.Fields {
		fields = append(fields, router.Field{Name: f.Name, Router: n.cat.router(f)})
	}
	return fields
}

func (n *node) Rules(r *router.Rules) {
	for name, entries := range n.Served {
		f, ok := n.cat.field(n.Kind, name)
		if !ok {
			r.Serve(name, router.None())
			continue
		}
		shape, _ := route.ParseShape(f.Shape)
		r.Serve(name, n.cat.topology(f, shape, entries))
	}
}

// Clone copies n so that edits to the copy's state leave n untouched.
func (n *node) Clone() router.Node {
	out := *n
	out.State = maps.Clone(n.State)
	out.Served = maps.Clone(n.Served)
	return &out
}

// Restore decodes persisted state into a node bound to the same catalog.
func (n *node) Restore(state []byte) (router.Node, error) {
	out := &node{cat: n.cat}
	if len(state) > 0 {
		if err := json.Unmarshal(state, out); err != nil {
			return nil, fmt.Errorf("decode %s node: %w", n.Kind, err)
		}
	}
	if n.pin || out.Kind == "" {
		out.Kind = n.Kind
	}
	return out, nil
}

// serve sets the served entries of field and returns a func restoring the
// previous value.
func (n *node) serve(field string, entries []EntrySpec) func() {
	prev, had := n.Served[field]
	if n.Served == nil {
		n.Served = make(map[string][]EntrySpec)
	}
	if entries == nil {
		entries = []EntrySpec{}
	}
	n.Served[field] = entries
	return func() {
		if had {
			n.Served[field] = prev
		} else {
			delete(n.Served, field)
		}
	}
}

func (n *node) unserve(field string) func() {
	prev, had := n.Served[field]
	delete(n.Served, field)
	return func() {
		if had {
			n.Served[field] = prev
		}
	}
}

func (n *node) set(key, value string) func() {
	prev, had := n.State[key]
	if n.State == nil {
		n.State = make(map[string]string)
	}
	n.State[key] = value
	return func() {
		if had {
			n.State[key] = prev
		} else {
			delete(n.State, key)
		}
	}
}

func (n *node) snapshotState() map[string]string {
	return maps.Clone(n.State)
}
