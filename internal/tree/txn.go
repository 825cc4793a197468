package tree

import (
	"fmt"

	"github.com/roach88/statetree/internal/route"
	"github.com/roach88/statetree/internal/router"
)

// txn stages the writes of one cycle. It implements router.Runtime: reads
// see staged writes first, then the committed tree. Nothing a txn does is
// visible outside it until Tree.commit.
type txn struct {
	tree *Tree

	records map[route.FieldID]route.Record
	dropped map[route.FieldID]bool

	// persisted and nodes hold the snapshot being restored. Persisted
	// records are only read; hydration stages the ones it reaches.
	persisted map[route.FieldID]route.Record
	nodes     map[route.NodeID]route.NodeRecord

	staged   map[route.NodeID]*Scope
	created  []*Scope
	released []*Scope
	gone     map[route.NodeID]bool
	merges   map[route.FieldID]merge

	queue  []*Scope
	queued map[route.NodeID]bool
	quota  *QuotaEnforcer
	counts Counts
}

// merge is a router replacement decided by Router.Merge, applied on commit.
type merge struct {
	scope  *Scope
	index  int
	router router.Router
}

func (t *Tree) newTxn() *txn {
	return &txn{
		tree:    t,
		records: make(map[route.FieldID]route.Record),
		dropped: make(map[route.FieldID]bool),
		staged:  make(map[route.NodeID]*Scope),
		gone:    make(map[route.NodeID]bool),
		merges:  make(map[route.FieldID]merge),
		queued:  make(map[route.NodeID]bool),
		quota:   NewQuotaEnforcer(t.maxSteps),
	}
}

// view is a read-only runtime over the committed tree.
func (t *Tree) view() *txn {
	return &txn{tree: t}
}

func (tx *txn) RouteRecord(field route.FieldID) (route.Record, bool) {
	if tx.dropped[field] {
		return nil, false
	}
	if rec, ok := tx.records[field]; ok {
		return rec, true
	}
	if rec, ok := tx.persisted[field]; ok {
		return rec, true
	}
	rec, ok := tx.tree.records[field]
	return rec, ok
}

func (tx *txn) SetRouteRecord(field route.FieldID, rec route.Record) {
	tx.records[field] = rec
	delete(tx.dropped, field)
}

func (tx *txn) NodeRecord(id route.NodeID) (route.NodeRecord, bool) {
	rec, ok := tx.nodes[id]
	return rec, ok
}

func (tx *txn) scope(id route.NodeID) (*Scope, bool) {
	if tx.gone[id] {
		return nil, false
	}
	if sc, ok := tx.staged[id]; ok {
		return sc, true
	}
	sc, ok := tx.tree.scopes[id]
	return sc, ok
}

func (tx *txn) Scope(id route.NodeID) (router.Scope, bool) {
	sc, ok := tx.scope(id)
	if !ok {
		return nil, false
	}
	return sc, true
}

func (tx *txn) allocate() route.NodeID {
	for {
		id := route.NodeID(tx.tree.ids.Generate())
		if !id.Valid() {
			continue
		}
		if _, ok := tx.staged[id]; ok {
			continue
		}
		if _, ok := tx.tree.scopes[id]; ok {
			continue
		}
		if _, ok := tx.nodes[id]; ok {
			continue
		}
		return id
	}
}

func (tx *txn) stage(sc *Scope) {
	tx.staged[sc.id] = sc
	tx.created = append(tx.created, sc)
	tx.counts.NodeStarts++
}

func (tx *txn) Connect(node router.Node, at router.Position) (router.Scope, error) {
	if node == nil {
		return nil, fmt.Errorf("connect %s: nil node", at.Field)
	}
	sc, err := newScope(tx.allocate(), node, at)
	if err != nil {
		return nil, err
	}
	tx.stage(sc)
	tx.enqueue(sc)
	return sc, nil
}

func (tx *txn) Reconnect(proto router.Node, rec route.NodeRecord, at router.Position) (router.Scope, error) {
	node, err := decodeNode(proto, rec.State)
	if err != nil {
		return nil, fmt.Errorf("reconnect node %q: %w", rec.ID, err)
	}
	sc, err := newScope(rec.ID, node, at)
	if err != nil {
		return nil, err
	}
	tx.stage(sc)
	return sc, nil
}

// Propagate hands next to a preserved scope. Receiver nodes decide whether
// their state changed; routers declared by next are merged into the kept
// ones. Either kind of change schedules the scope for evaluation.
func (tx *txn) Propagate(id route.NodeID, next router.Node) error {
	sc, ok := tx.scope(id)
	if !ok {
		return &ScopeNotFoundError{Node: id}
	}
	changed := false
	if recv, ok := sc.node.(router.Receiver); ok {
		changed = recv.Receive(next)
	}
	if next != nil {
		for _, f := range next.Routes() {
			i, ok := sc.field(f.Name)
			if !ok || f.Router == nil {
				continue
			}
			cur := tx.routerAt(sc, i)
			if merged := cur.Merge(f.Router); merged != cur {
				tx.merges[route.Field(sc.id, f.Name)] = merge{scope: sc, index: i, router: merged}
				changed = true
			}
		}
	}
	if changed {
		tx.enqueue(sc)
	}
	return nil
}

// Release stages the destruction of id and, depth first, of every scope
// its route records reference. Children are released before their parent.
func (tx *txn) Release(id route.NodeID) {
	sc, ok := tx.scope(id)
	if !ok {
		return
	}
	tx.gone[id] = true
	for _, f := range sc.fields {
		fid := route.Field(id, f.name)
		if rec, ok := tx.RouteRecord(fid); ok {
			for _, child := range rec.Children() {
				tx.Release(child)
			}
		}
		delete(tx.records, fid)
		tx.dropped[fid] = true
	}
	tx.released = append(tx.released, sc)
	tx.counts.NodeStops++
}

func (tx *txn) routerAt(sc *Scope, i int) router.Router {
	if m, ok := tx.merges[route.Field(sc.id, sc.fields[i].name)]; ok {
		return m.router
	}
	return sc.fields[i].router
}

func (tx *txn) enqueue(sc *Scope) {
	if tx.queued[sc.id] {
		return
	}
	tx.queued[sc.id] = true
	tx.queue = append(tx.queue, sc)
}

// next pops the next scope to evaluate, skipping released ones.
func (tx *txn) next() (*Scope, bool) {
	for len(tx.queue) > 0 {
		sc := tx.queue[0]
		tx.queue[0] = nil
		tx.queue = tx.queue[1:]
		if !tx.gone[sc.id] {
			return sc, true
		}
	}
	return nil, false
}

// discard drops everything staged. Scopes created by the txn never started,
// so only their contexts need releasing.
func (tx *txn) discard() {
	for _, sc := range tx.created {
		sc.cancel()
	}
}

// defaultRuntime reconciles an unserved field back to its declared default
// without feeding the default values to the children it keeps.
type defaultRuntime struct {
	*txn
}

func (defaultRuntime) Propagate(route.NodeID, router.Node) error {
	return nil
}
