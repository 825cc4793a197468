package router

import "github.com/roach88/statetree/internal/route"

// Router reconciles one routed field.
type Router interface {
	Shape() route.Shape

	// Bind attaches the router to the routing context of its field. Every
	// other operation fails with UnboundRouterError until Bind is called.
	Bind(ctx Context)
	Bound() bool
	// Applied reports whether the router has realized any topology, by
	// Apply, Hydrate or Reconcile.
	Applied() bool

	// Default returns the declared default topology.
	Default() Topology

	// Current returns the live children of field, or the declared default
	// when nothing is realized. It never fails.
	Current(field route.FieldID, rt Runtime) Value

	// Apply realizes the declared default the first time it is called.
	// Later calls are no-ops.
	Apply(field route.FieldID, rt Runtime) error

	// Hydrate reattaches to the persisted record of field and returns the
	// scopes it connected.
	Hydrate(field route.FieldID, rt Runtime) ([]Scope, error)

	// Reconcile diffs desired against the realized record of field.
	Reconcile(desired Topology, field route.FieldID, rt Runtime) (Result, error)

	// Merge returns the router to keep when the declaring node is rebuilt
	// and declares next for the same field. The receiver is kept unless
	// next declares a different default identity.
	Merge(next Router) Router
}

// Result lists the node ids a reconciliation created, preserved and
// destroyed, in route order.
type Result struct {
	Created   []route.NodeID
	Preserved []route.NodeID
	Destroyed []route.NodeID
}

// Changed reports whether the result created or destroyed anything.
func (r Result) Changed() bool {
	return len(r.Created) > 0 || len(r.Destroyed) > 0
}

// binding holds the state shared by every router shape.
type binding struct {
	ctx     Context
	bound   bool
	applied bool
}

func (b *binding) Bind(ctx Context) {
	b.ctx = ctx
	b.bound = true
}

func (b *binding) Bound() bool   { return b.bound }
func (b *binding) Applied() bool { return b.applied }

func (b *binding) check(field route.FieldID) error {
	if !b.bound {
		return &UnboundRouterError{Field: field}
	}
	return nil
}

func (b *binding) position(field route.FieldID, e Entry) Position {
	return Position{Field: field, Key: e.Key, Tag: e.Tag, Depth: b.ctx.Depth}
}
