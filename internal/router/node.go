package router

import (
	"context"
	"reflect"
	"slices"
)

// Node is application state hosted by a tree.
type Node interface {
	// Routes declares the node's routed fields. The runtime calls it once
	// when the node is connected and keeps the returned routers. When a
	// preserved node receives new input, Routes is called on the incoming
	// value and each router is merged into the kept one.
	Routes() []Field

	// Rules serves the desired topology of routed fields for the node's
	// current state. Fields left unserved fall back to their router's
	// declared default.
	Rules(r *Rules)
}

// Field names one routed field and the router backing it.
type Field struct {
	Name   string
	Router Router
}

// Identifiable nodes supply the identity key used to decide whether a
// single or union child can be preserved across cycles.
type Identifiable interface {
	Identity() string
}

// Receiver nodes accept the input computed for them by their parent when
// they are preserved. Receive reports whether the node's state changed,
// which schedules the node for re-evaluation in the same cycle.
type Receiver interface {
	Receive(next Node) bool
}

// Starter nodes are notified after the cycle that connected them commits.
// The context is cancelled when the node stops.
type Starter interface {
	Start(ctx context.Context)
}

// Stopper nodes are notified after the cycle that released them commits.
type Stopper interface {
	Stop()
}

// Cloner nodes copy themselves. Nodes holding maps, slices or pointers
// they mutate in place implement it so that copies share nothing.
type Cloner interface {
	Clone() Node
}

// Clone returns a copy of n. Routers connect copies of their declared
// defaults, so every realization of a default starts from the declared
// state. Without Cloner, a pointer to a struct is copied shallowly and any
// other node is returned as is.
func Clone(n Node) Node {
	if c, ok := n.(Cloner); ok {
		return c.Clone()
	}
	v := reflect.ValueOf(n)
	if v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return n
	}
	cp := reflect.New(v.Elem().Type())
	cp.Elem().Set(v.Elem())
	if node, ok := cp.Interface().(Node); ok {
		return node
	}
	return n
}

// Leaf can be embedded by nodes without routed fields.
type Leaf struct{}

func (Leaf) Routes() []Field { return nil }
func (Leaf) Rules(*Rules)    {}

// IdentityOf returns n's identity key, or "" when n is not Identifiable.
func IdentityOf(n Node) string {
	if id, ok := n.(Identifiable); ok {
		return id.Identity()
	}
	return ""
}

// Rules collects the desired topology a node serves during one evaluation.
type Rules struct {
	served map[string]Topology
}

// NewRules returns an empty collector.
func NewRules() *Rules {
	return &Rules{served: make(map[string]Topology)}
}

// Serve sets the desired topology of field. A nil or empty topology is a
// valid value and means "no children".
func (r *Rules) Serve(field string, top Topology) {
	if top == nil {
		top = Topology{}
	}
	r.served[field] = top
}

// Lookup returns the topology served for field, if any.
func (r *Rules) Lookup(field string) (Topology, bool) {
	top, ok := r.served[field]
	return top, ok
}

// Fields returns the served field names in sorted order.
func (r *Rules) Fields() []string {
	names := make([]string, 0, len(r.served))
	for name := range r.served {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
