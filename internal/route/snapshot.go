package route

import (
	"cmp"
	"encoding/json"
	"fmt"
	"slices"
)

// NodeRecord is the persisted description of one live node.
type NodeRecord struct {
	ID     NodeID          `json:"id"`
	Parent FieldID         `json:"parent"`
	Key    string          `json:"key,omitempty"`
	Tag    int             `json:"tag,omitempty"`
	Depth  int             `json:"depth"`
	State  json.RawMessage `json:"state,omitempty"`
}

// Snapshot is a complete persisted tree: every route record and every node
// record reachable from Root.
type Snapshot struct {
	Root   NodeID
	Routes map[FieldID]Record
	Nodes  map[NodeID]NodeRecord
}

// NewSnapshot returns an empty snapshot with allocated maps.
func NewSnapshot() Snapshot {
	return Snapshot{
		Routes: make(map[FieldID]Record),
		Nodes:  make(map[NodeID]NodeRecord),
	}
}

// Fields returns the snapshot's route keys in deterministic order.
func (s Snapshot) Fields() []FieldID {
	fields := make([]FieldID, 0, len(s.Routes))
	for f := range s.Routes {
		fields = append(fields, f)
	}
	slices.SortFunc(fields, CompareFields)
	return fields
}

// NodeIDs returns the snapshot's node ids in sorted order.
func (s Snapshot) NodeIDs() []NodeID {
	ids := make([]NodeID, 0, len(s.Nodes))
	for id := range s.Nodes {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// CompareFields orders FieldIDs by node, then field name.
func CompareFields(a, b FieldID) int {
	if c := cmp.Compare(a.Node, b.Node); c != 0 {
		return c
	}
	return cmp.Compare(a.Field, b.Field)
}

// Validate checks that the snapshot forms a tree: the root slot references
// Root, every referenced node has a record that points back at the
// referencing field, and no node is referenced twice.
func (s Snapshot) Validate() error {
	rootRec, ok := s.Routes[RootField]
	if !ok {
		return fmt.Errorf("snapshot has no root record")
	}
	if single, ok := rootRec.(Single); !ok || single.ID != s.Root {
		return fmt.Errorf("snapshot root record does not reference root %q", s.Root)
	}

	owner := make(map[NodeID]FieldID, len(s.Nodes))
	for _, field := range s.Fields() {
		rec := s.Routes[field]
		if err := ValidateRecord(rec); err != nil {
			return fmt.Errorf("route %s: %w", field, err)
		}
		for _, id := range rec.Children() {
			if prev, dup := owner[id]; dup {
				return fmt.Errorf("node %q referenced by both %s and %s", id, prev, field)
			}
			owner[id] = field
			node, ok := s.Nodes[id]
			if !ok {
				return fmt.Errorf("route %s references unknown node %q", field, id)
			}
			if node.Parent != field {
				return fmt.Errorf("node %q records parent %s, referenced by %s", id, node.Parent, field)
			}
		}
	}
	for _, id := range s.NodeIDs() {
		if _, ok := owner[id]; !ok {
			return fmt.Errorf("node %q is not referenced by any route", id)
		}
	}
	return nil
}

type routeJSON struct {
	Field  FieldID         `json:"field"`
	Record json.RawMessage `json:"record"`
}

type snapshotJSON struct {
	Root   NodeID       `json:"root"`
	Routes []routeJSON  `json:"routes"`
	Nodes  []NodeRecord `json:"nodes"`
}

// MarshalJSON encodes the snapshot with routes and nodes as sorted arrays.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	w := snapshotJSON{
		Root:   s.Root,
		Routes: make([]routeJSON, 0, len(s.Routes)),
		Nodes:  make([]NodeRecord, 0, len(s.Nodes)),
	}
	for _, field := range s.Fields() {
		data, err := MarshalRecord(s.Routes[field])
		if err != nil {
			return nil, fmt.Errorf("route %s: %w", field, err)
		}
		w.Routes = append(w.Routes, routeJSON{Field: field, Record: data})
	}
	for _, id := range s.NodeIDs() {
		w.Nodes = append(w.Nodes, s.Nodes[id])
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes the output of MarshalJSON.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var w snapshotJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	out := NewSnapshot()
	out.Root = w.Root
	for _, r := range w.Routes {
		rec, err := UnmarshalRecord(r.Record)
		if err != nil {
			return fmt.Errorf("route %s: %w", r.Field, err)
		}
		out.Routes[r.Field] = rec
	}
	for _, n := range w.Nodes {
		out.Nodes[n.ID] = n
	}
	*s = out
	return nil
}

// Hash returns the domain-separated SHA-256 of the snapshot's canonical
// encoding. Equal trees hash equally regardless of map iteration order.
func (s Snapshot) Hash() (string, error) {
	routes := make([]any, 0, len(s.Routes))
	for _, field := range s.Fields() {
		data, err := MarshalRecord(s.Routes[field])
		if err != nil {
			return "", fmt.Errorf("route %s: %w", field, err)
		}
		routes = append(routes, map[string]any{
			"node":   string(field.Node),
			"field":  field.Field,
			"record": string(data),
		})
	}
	nodes := make([]any, 0, len(s.Nodes))
	for _, id := range s.NodeIDs() {
		n := s.Nodes[id]
		nodes = append(nodes, map[string]any{
			"id":           string(n.ID),
			"parent_node":  string(n.Parent.Node),
			"parent_field": n.Parent.Field,
			"key":          n.Key,
			"tag":          n.Tag,
			"depth":        n.Depth,
			"state":        string(n.State),
		})
	}

	canonical, err := MarshalCanonical(map[string]any{
		"root":   string(s.Root),
		"routes": routes,
		"nodes":  nodes,
	})
	if err != nil {
		return "", fmt.Errorf("snapshot hash: %w", err)
	}
	return HashWithDomain(DomainSnapshot, canonical), nil
}
