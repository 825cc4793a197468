package router

import "github.com/roach88/statetree/internal/route"

// Scope is the router's view of a live node.
type Scope interface {
	ID() route.NodeID
	Node() Node
	Key() string
	Tag() int
}

// Position is where a scope is attached in the tree.
type Position struct {
	Field route.FieldID
	Key   string
	Tag   int
	Depth int
}

// Runtime is the staging area a router reconciles against. Reads observe
// the router's own staged writes. Writes become visible to other readers
// only when the runtime commits the whole cycle.
type Runtime interface {
	RouteRecord(field route.FieldID) (route.Record, bool)
	SetRouteRecord(field route.FieldID, rec route.Record)
	NodeRecord(id route.NodeID) (route.NodeRecord, bool)
	Scope(id route.NodeID) (Scope, bool)

	// Connect allocates a fresh identity for node and constructs its scope.
	Connect(node Node, at Position) (Scope, error)
	// Reconnect rebuilds the scope described by rec, keeping its identity.
	// proto supplies the concrete node type to decode rec.State into.
	Reconnect(proto Node, rec route.NodeRecord, at Position) (Scope, error)
	// Propagate hands next to the preserved scope id.
	Propagate(id route.NodeID, next Node) error
	// Release schedules the scope id and its subtree for destruction. The
	// caller must already have replaced every record referencing id.
	Release(id route.NodeID)
}

// Context is the routing context a router is bound to when its field is
// registered on a connected node.
type Context struct {
	Parent route.NodeID
	Depth  int
}
