package tree

import (
	"context"
	"strconv"
	"sync/atomic"

	"github.com/roach88/statetree/internal/router"
	"github.com/roach88/statetree/internal/testutil"
)

// item is a list child with mutable local state.
type item struct {
	router.Leaf
	ID    int    `json:"id"`
	State string `json:"state"`
}

// listRoot serves one item per id.
type listRoot struct {
	IDs []int `json:"ids"`
}

func (*listRoot) Routes() []router.Field {
	return []router.Field{{Name: "children", Router: router.NewList(&item{})}}
}

func (n *listRoot) Rules(r *router.Rules) {
	r.Serve("children", router.ForEach(n.IDs, strconv.Itoa, func(id int) router.Node {
		return &item{ID: id, State: "new"}
	}))
}

type paneA struct{ router.Leaf }
type paneB struct{ router.Leaf }
type paneC struct{ router.Leaf }

// switchRoot routes a two-case union.
type switchRoot struct {
	Right bool `json:"right"`
}

func (*switchRoot) Routes() []router.Field {
	return []router.Field{{
		Name:   "pane",
		Router: router.NewUnion(router.Case(0, &paneA{}), &paneA{}, &paneB{}),
	}}
}

func (n *switchRoot) Rules(r *router.Rules) {
	if n.Right {
		r.Serve("pane", router.Topology{router.Case(1, &paneB{})})
		return
	}
	r.Serve("pane", router.Topology{router.Case(0, &paneA{})})
}

// optRoot routes an optional three-case union. Which < 0 means none.
type optRoot struct {
	Which int `json:"which"`
}

func (*optRoot) Routes() []router.Field {
	return []router.Field{{
		Name:   "slot",
		Router: router.NewMaybeUnion(&paneA{}, &paneB{}, &paneC{}),
	}}
}

func (n *optRoot) Rules(r *router.Rules) {
	switch n.Which {
	case 0:
		r.Serve("slot", router.Topology{router.Case(0, &paneA{})})
	case 1:
		r.Serve("slot", router.Topology{router.Case(1, &paneB{})})
	case 2:
		r.Serve("slot", router.Topology{router.Case(2, &paneC{})})
	default:
		r.Serve("slot", router.None())
	}
}

// folder nests folders by name and carries a label it receives from its
// parent.
type folder struct {
	Name  string   `json:"name"`
	Label string   `json:"label"`
	Subs  []string `json:"subs"`
}

func (*folder) Routes() []router.Field {
	return []router.Field{
		{Name: "subs", Router: router.NewList(&folder{})},
		{Name: "note", Router: router.NewMaybe(&item{})},
	}
}

func (n *folder) Rules(r *router.Rules) {
	r.Serve("subs", router.ForEach(n.Subs, func(s string) string { return s }, func(s string) router.Node {
		return &folder{Name: s, Label: n.Name + "/" + s}
	}))
}

func (n *folder) Identity() string { return n.Name }

func (n *folder) Receive(next router.Node) bool {
	in, ok := next.(*folder)
	if !ok || in.Label == n.Label {
		return false
	}
	n.Label = in.Label
	return true
}

// hooked records Start and Stop notifications.
type hooked struct {
	router.Leaf
	Name    string `json:"name"`
	started *atomic.Int32
	stopped *atomic.Int32
	ctx     context.Context
}

func (h *hooked) Start(ctx context.Context) {
	h.ctx = ctx
	h.started.Add(1)
}

func (h *hooked) Stop() {
	h.stopped.Add(1)
}

type hookRoot struct {
	Show    bool `json:"show"`
	started atomic.Int32
	stopped atomic.Int32
	child   *hooked
}

func (*hookRoot) Routes() []router.Field {
	return []router.Field{{Name: "child", Router: router.NewMaybe(&hooked{})}}
}

func (n *hookRoot) Rules(r *router.Rules) {
	if !n.Show {
		r.Serve("child", router.None())
		return
	}
	n.child = &hooked{Name: "watched", started: &n.started, stopped: &n.stopped}
	r.Serve("child", router.One(n.child))
}

func newTestTree(root router.Node, opts ...Option) *Tree {
	opts = append([]Option{WithIDGenerator(testutil.NewSequenceGenerator("n"))}, opts...)
	return New(root, opts...)
}

// noteRoot hides its note when Hide is set and otherwise leaves the field
// to its declared default.
type noteRoot struct {
	Hide bool `json:"hide"`
}

func (*noteRoot) Routes() []router.Field {
	return []router.Field{{
		Name:   "note",
		Router: router.NewMaybe(&item{}).WithDefault(&item{State: "fresh"}),
	}}
}

func (n *noteRoot) Rules(r *router.Rules) {
	if n.Hide {
		r.Serve("note", router.None())
	}
}

// theme is a leaf keyed by its name.
type theme struct {
	router.Leaf
	Name string `json:"name"`
}

func (n *theme) Identity() string { return n.Name }

// panel leaves its body to a default theme named after Theme.
type panel struct {
	Key   string `json:"key"`
	Theme string `json:"theme"`
}

func (n *panel) Routes() []router.Field {
	return []router.Field{{Name: "body", Router: router.NewSingle(&theme{Name: n.Theme})}}
}

func (*panel) Rules(*router.Rules) {}

// shelf serves one panel whose default body follows Theme.
type shelf struct {
	Title string `json:"title"`
	Theme string `json:"theme"`
}

func (*shelf) Routes() []router.Field {
	return []router.Field{{Name: "panels", Router: router.NewList(&panel{})}}
}

func (n *shelf) Rules(r *router.Rules) {
	r.Serve("panels", router.Topology{router.Keyed("main", &panel{Key: "main", Theme: n.Theme})})
}
