package router

import (
	"fmt"

	"github.com/roach88/statetree/internal/route"
)

// choice is the reconciliation core shared by every shape that realizes at
// most one child: Single, Maybe, Union and MaybeUnion.
type choice struct {
	binding
	shape route.Shape
	// protos holds one prototype per tag, used to decode persisted state.
	protos []Node
	// fallback is the declared default; nil declares "none". It is never
	// connected itself, only copies of it.
	fallback *Entry
}

func (c *choice) Shape() route.Shape { return c.shape }

func (c *choice) Default() Topology {
	if c.fallback == nil {
		return Topology{}
	}
	e := *c.fallback
	e.Node = Clone(e.Node)
	return Topology{e}
}

func (c *choice) encode(tag int, id route.NodeID) route.Record {
	switch c.shape {
	case route.ShapeSingle:
		return route.Single{ID: id}
	case route.ShapeMaybeSingle:
		return route.MaybeSingle{ID: id}
	case route.ShapeUnion2, route.ShapeUnion3:
		return route.Union{Arity: c.shape.Arity(), Tag: tag, ID: id}
	default:
		return route.MaybeUnion{Arity: c.shape.Arity(), Tag: tag, ID: id}
	}
}

// decode extracts the realized tag and id from rec. ok is false when rec
// has a different shape.
func (c *choice) decode(rec route.Record) (tag int, id route.NodeID, ok bool) {
	if rec.Shape() != c.shape {
		return 0, "", false
	}
	switch r := rec.(type) {
	case route.Single:
		return 0, r.ID, true
	case route.MaybeSingle:
		return 0, r.ID, true
	case route.Union:
		return r.Tag, r.ID, true
	case route.MaybeUnion:
		return r.Tag, r.ID, true
	}
	return 0, "", false
}

func (c *choice) Current(field route.FieldID, rt Runtime) Value {
	if rec, ok := rt.RouteRecord(field); ok {
		if _, id, ok := c.decode(rec); ok {
			if !id.Valid() {
				return Value{}
			}
			if sc, ok := rt.Scope(id); ok {
				return Value{childOf(sc)}
			}
		}
	}
	return c.Default().value()
}

func (c *choice) Apply(field route.FieldID, rt Runtime) error {
	if c.applied {
		return nil
	}
	if err := c.check(field); err != nil {
		return err
	}

	rec := c.encode(0, "")
	if def := c.Default(); len(def) == 1 {
		sc, err := rt.Connect(def[0].Node, c.position(field, def[0]))
		if err != nil {
			return err
		}
		rec = c.encode(def[0].Tag, sc.ID())
	}
	rt.SetRouteRecord(field, rec)
	c.applied = true
	return nil
}

func (c *choice) Hydrate(field route.FieldID, rt Runtime) ([]Scope, error) {
	if err := c.check(field); err != nil {
		return nil, err
	}
	rec, ok := rt.RouteRecord(field)
	if !ok {
		return nil, &RecordNotFoundError{Field: field}
	}
	tag, id, ok := c.decode(rec)
	if !ok {
		return nil, &ShapeMismatchError{Field: field, Want: c.shape, Got: rec.Shape()}
	}
	if tag < 0 || tag >= len(c.protos) {
		return nil, &ShapeMismatchError{Field: field, Want: c.shape, Got: rec.Shape(), Tag: tag}
	}
	c.applied = true
	rt.SetRouteRecord(field, rec)

	if !id.Valid() {
		return nil, nil
	}
	if _, live := rt.Scope(id); live {
		return nil, nil
	}
	nrec, ok := rt.NodeRecord(id)
	if !ok {
		return nil, &RecordNotFoundError{Field: field, Node: id}
	}
	sc, err := rt.Reconnect(c.protos[tag], nrec, Position{
		Field: field,
		Key:   nrec.Key,
		Tag:   tag,
		Depth: c.ctx.Depth,
	})
	if err != nil {
		return nil, err
	}
	return []Scope{sc}, nil
}

func (c *choice) validate(field route.FieldID, desired Topology) error {
	switch {
	case len(desired) > 1:
		return &InvalidTopologyError{Field: field, Shape: c.shape,
			Reason: fmt.Sprintf("%d entries, at most one allowed", len(desired))}
	case len(desired) == 0 && !c.shape.Optional():
		return &InvalidTopologyError{Field: field, Shape: c.shape, Reason: "exactly one entry required"}
	case len(desired) == 0:
		return nil
	}
	e := desired[0]
	if e.Node == nil {
		return &InvalidTopologyError{Field: field, Shape: c.shape, Reason: "nil node"}
	}
	if e.Tag < 0 || e.Tag >= c.shape.Arity() {
		return &InvalidTopologyError{Field: field, Shape: c.shape,
			Reason: fmt.Sprintf("tag %d out of range", e.Tag)}
	}
	return nil
}

// Reconcile preserves the realized child when the desired entry has the
// same tag and identity key. Otherwise it creates the desired child, points
// the record at it, and only then releases the old one.
func (c *choice) Reconcile(desired Topology, field route.FieldID, rt Runtime) (Result, error) {
	if err := c.check(field); err != nil {
		return Result{}, err
	}
	if err := c.validate(field, desired); err != nil {
		return Result{}, err
	}

	var curTag int
	var curID route.NodeID
	if rec, ok := rt.RouteRecord(field); ok {
		tag, id, ok := c.decode(rec)
		if !ok {
			return Result{}, &ShapeMismatchError{Field: field, Want: c.shape, Got: rec.Shape()}
		}
		curTag, curID = tag, id
	}
	c.applied = true

	var want *Entry
	if len(desired) == 1 {
		want = &desired[0]
	}

	if want != nil && curID.Valid() && want.Tag == curTag {
		if sc, live := rt.Scope(curID); live && sc.Key() == want.Key {
			if err := rt.Propagate(curID, want.Node); err != nil {
				return Result{}, err
			}
			return Result{Preserved: []route.NodeID{curID}}, nil
		}
	}

	var res Result
	rec := c.encode(0, "")
	if want != nil {
		sc, err := rt.Connect(want.Node, c.position(field, *want))
		if err != nil {
			return Result{}, err
		}
		rec = c.encode(want.Tag, sc.ID())
		res.Created = []route.NodeID{sc.ID()}
	}
	rt.SetRouteRecord(field, rec)
	if curID.Valid() {
		rt.Release(curID)
		res.Destroyed = []route.NodeID{curID}
	}
	return res, nil
}

// adopt reports whether next should replace c, moving c's binding to next
// when it does. Only a change of declared default identity qualifies.
func (c *choice) adopt(next *choice) bool {
	if next.shape != c.shape || c.fallback == nil || next.fallback == nil {
		return false
	}
	prev, key := c.fallback.Key, next.fallback.Key
	if prev == "" || key == "" || prev == key {
		return false
	}
	next.binding = c.binding
	return true
}

// Single routes exactly one child.
type Single struct {
	choice
}

// NewSingle returns a router whose default child is def.
func NewSingle(def Node) *Single {
	if def == nil {
		panic("router: NewSingle requires a default node")
	}
	e := Item(def)
	return &Single{choice{shape: route.ShapeSingle, protos: []Node{def}, fallback: &e}}
}

func (s *Single) Merge(next Router) Router {
	if n, ok := next.(*Single); ok && s.adopt(&n.choice) {
		return n
	}
	return s
}

// Maybe routes zero or one child.
type Maybe struct {
	choice
}

// NewMaybe returns a router for children shaped like proto whose default
// is none.
func NewMaybe(proto Node) *Maybe {
	if proto == nil {
		panic("router: NewMaybe requires a prototype node")
	}
	return &Maybe{choice{shape: route.ShapeMaybeSingle, protos: []Node{proto}}}
}

// WithDefault declares def as the default child.
func (m *Maybe) WithDefault(def Node) *Maybe {
	e := Item(def)
	m.fallback = &e
	return m
}

func (m *Maybe) Merge(next Router) Router {
	if n, ok := next.(*Maybe); ok && m.adopt(&n.choice) {
		return n
	}
	return m
}

// Union routes exactly one of two or three tagged cases. protos[i] is the
// prototype for case i.
type Union struct {
	choice
}

// NewUnion returns a union router over len(protos) cases, defaulting to def.
// It panics unless there are two or three cases and def's tag is in range.
func NewUnion(def Entry, protos ...Node) *Union {
	shape, err := route.UnionShape(len(protos), false)
	if err != nil {
		panic("router: " + err.Error())
	}
	if def.Node == nil || def.Tag < 0 || def.Tag >= len(protos) {
		panic(fmt.Sprintf("router: invalid union default (tag %d)", def.Tag))
	}
	return &Union{choice{shape: shape, protos: protos, fallback: &def}}
}

func (u *Union) Merge(next Router) Router {
	if n, ok := next.(*Union); ok && u.adopt(&n.choice) {
		return n
	}
	return u
}

// MaybeUnion routes zero or one of two or three tagged cases.
type MaybeUnion struct {
	choice
}

// NewMaybeUnion returns an optional union router over len(protos) cases
// whose default is none.
func NewMaybeUnion(protos ...Node) *MaybeUnion {
	shape, err := route.UnionShape(len(protos), true)
	if err != nil {
		panic("router: " + err.Error())
	}
	return &MaybeUnion{choice{shape: shape, protos: protos}}
}

// WithDefault declares def as the default case.
func (u *MaybeUnion) WithDefault(def Entry) *MaybeUnion {
	if def.Node == nil || def.Tag < 0 || def.Tag >= len(u.protos) {
		panic(fmt.Sprintf("router: invalid union default (tag %d)", def.Tag))
	}
	u.fallback = &def
	return u
}

func (u *MaybeUnion) Merge(next Router) Router {
	if n, ok := next.(*MaybeUnion); ok && u.adopt(&n.choice) {
		return n
	}
	return u
}
