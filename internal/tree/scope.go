package tree

import (
	"context"
	"fmt"

	"github.com/roach88/statetree/internal/route"
	"github.com/roach88/statetree/internal/router"
)

// Scope is a live node hosted by the tree, together with the routers of
// its routed fields. Scopes are owned by the tree; a scope's children are
// owned by the scope through its route records.
type Scope struct {
	id     route.NodeID
	node   router.Node
	pos    router.Position
	fields []boundField

	ctx    context.Context
	cancel context.CancelFunc
}

type boundField struct {
	name   string
	router router.Router
}

// newScope declares node's routed fields and binds their routers to a
// routing context one level below pos.
func newScope(id route.NodeID, node router.Node, pos router.Position) (*Scope, error) {
	declared := node.Routes()
	fields := make([]boundField, 0, len(declared))
	seen := make(map[string]bool, len(declared))
	for _, f := range declared {
		if f.Name == "" || f.Router == nil {
			return nil, fmt.Errorf("node %q declares an incomplete routed field %q", id, f.Name)
		}
		if seen[f.Name] {
			return nil, fmt.Errorf("node %q declares routed field %q twice", id, f.Name)
		}
		seen[f.Name] = true
		f.Router.Bind(router.Context{Parent: id, Depth: pos.Depth + 1})
		fields = append(fields, boundField{name: f.Name, router: f.Router})
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scope{
		id:     id,
		node:   node,
		pos:    pos,
		fields: fields,
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

func (s *Scope) ID() route.NodeID      { return s.id }
func (s *Scope) Node() router.Node     { return s.node }
func (s *Scope) Key() string           { return s.pos.Key }
func (s *Scope) Tag() int              { return s.pos.Tag }
func (s *Scope) Depth() int            { return s.pos.Depth }
func (s *Scope) Parent() route.FieldID { return s.pos.Field }

// Context is cancelled when the scope stops. Behaviors bound to the scope
// run under it.
func (s *Scope) Context() context.Context {
	return s.ctx
}

// Fields returns the routed field names in declaration order.
func (s *Scope) Fields() []string {
	names := make([]string, len(s.fields))
	for i, f := range s.fields {
		names[i] = f.name
	}
	return names
}

func (s *Scope) field(name string) (int, bool) {
	for i, f := range s.fields {
		if f.name == name {
			return i, true
		}
	}
	return -1, false
}

func (s *Scope) router(name string) (router.Router, bool) {
	i, ok := s.field(name)
	if !ok {
		return nil, false
	}
	return s.fields[i].router, true
}

func (s *Scope) record() route.NodeRecord {
	return route.NodeRecord{
		ID:     s.id,
		Parent: s.pos.Field,
		Key:    s.pos.Key,
		Tag:    s.pos.Tag,
		Depth:  s.pos.Depth,
	}
}
