package router

import "github.com/roach88/statetree/internal/route"

// Entry is one desired child: the node value to connect or propagate, the
// identity key it is matched by, and the union case it occupies.
type Entry struct {
	Tag  int
	Key  string
	Node Node
}

// Topology is the desired child sequence of one routed field.
type Topology []Entry

// Item builds an untagged entry keyed by the node's identity.
func Item(n Node) Entry {
	return Entry{Key: IdentityOf(n), Node: n}
}

// Case builds a union entry for case tag.
func Case(tag int, n Node) Entry {
	return Entry{Tag: tag, Key: IdentityOf(n), Node: n}
}

// Keyed builds a list entry with an explicit identity key.
func Keyed(key string, n Node) Entry {
	return Entry{Key: key, Node: n}
}

// One is the topology holding exactly n.
func One(n Node) Topology {
	return Topology{Item(n)}
}

// None is the empty topology.
func None() Topology {
	return Topology{}
}

// ForEach builds a list topology from items, keying each entry with key
// and constructing its node with build.
func ForEach[T any](items []T, key func(T) string, build func(T) Node) Topology {
	top := make(Topology, 0, len(items))
	for _, item := range items {
		top = append(top, Keyed(key(item), build(item)))
	}
	return top
}

// Keys returns the identity keys in order.
func (t Topology) Keys() []string {
	keys := make([]string, len(t))
	for i, e := range t {
		keys[i] = e.Key
	}
	return keys
}

func (t Topology) value() Value {
	v := make(Value, len(t))
	for i, e := range t {
		v[i] = Child{Key: e.Key, Tag: e.Tag, Node: e.Node}
	}
	return v
}

// Child is one element of a router's current value. ID is empty for a
// declared default that has not been realized yet.
type Child struct {
	ID   route.NodeID
	Key  string
	Tag  int
	Node Node
}

// Value is the current children of a routed field in route order.
type Value []Child

// First returns the first child, if any.
func (v Value) First() (Child, bool) {
	if len(v) == 0 {
		return Child{}, false
	}
	return v[0], true
}

// Nodes returns the children's node values.
func (v Value) Nodes() []Node {
	nodes := make([]Node, len(v))
	for i, c := range v {
		nodes[i] = c.Node
	}
	return nodes
}

// IDs returns the children's node ids.
func (v Value) IDs() []route.NodeID {
	ids := make([]route.NodeID, len(v))
	for i, c := range v {
		ids[i] = c.ID
	}
	return ids
}

// Keys returns the children's identity keys.
func (v Value) Keys() []string {
	keys := make([]string, len(v))
	for i, c := range v {
		keys[i] = c.Key
	}
	return keys
}

func childOf(sc Scope) Child {
	return Child{ID: sc.ID(), Key: sc.Key(), Tag: sc.Tag(), Node: sc.Node()}
}
