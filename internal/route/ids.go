package route

// NodeID identifies a node within one runtime. IDs are opaque and never
// reused while any record references them.
type NodeID string

// Valid reports whether the id is non-empty.
func (id NodeID) Valid() bool {
	return id != ""
}

// FieldID identifies one routed field on a parent node. It is stable for the
// lifetime of the parent.
type FieldID struct {
	Node  NodeID `json:"node"`
	Field string `json:"field"`
}

// RootField is the slot the runtime attaches its root node to.
var RootField = FieldID{Field: "$root"}

// Field returns the FieldID of the named field on node id.
func Field(id NodeID, name string) FieldID {
	return FieldID{Node: id, Field: name}
}

// IsRoot reports whether f is the root slot.
func (f FieldID) IsRoot() bool {
	return f == RootField
}

func (f FieldID) String() string {
	if f.IsRoot() {
		return f.Field
	}
	return string(f.Node) + "." + f.Field
}
