package route

import (
	"encoding/json"
	"fmt"
)

// Shape is the static shape of a router and of the records it writes.
type Shape int

const (
	ShapeSingle Shape = iota + 1
	ShapeMaybeSingle
	ShapeUnion2
	ShapeUnion3
	ShapeMaybeUnion2
	ShapeMaybeUnion3
	ShapeList
)

var shapeNames = map[Shape]string{
	ShapeSingle:      "single",
	ShapeMaybeSingle: "maybe_single",
	ShapeUnion2:      "union2",
	ShapeUnion3:      "union3",
	ShapeMaybeUnion2: "maybe_union2",
	ShapeMaybeUnion3: "maybe_union3",
	ShapeList:        "list",
}

func (s Shape) String() string {
	if name, ok := shapeNames[s]; ok {
		return name
	}
	return fmt.Sprintf("shape(%d)", int(s))
}

// ParseShape is the inverse of Shape.String.
func ParseShape(name string) (Shape, error) {
	for s, n := range shapeNames {
		if n == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown route shape %q", name)
}

// Optional reports whether the shape admits an empty realization.
func (s Shape) Optional() bool {
	switch s {
	case ShapeMaybeSingle, ShapeMaybeUnion2, ShapeMaybeUnion3, ShapeList:
		return true
	}
	return false
}

// Arity is the number of distinct tags a shape can hold. Lists report 0.
func (s Shape) Arity() int {
	switch s {
	case ShapeSingle, ShapeMaybeSingle:
		return 1
	case ShapeUnion2, ShapeMaybeUnion2:
		return 2
	case ShapeUnion3, ShapeMaybeUnion3:
		return 3
	}
	return 0
}

// UnionShape returns the union shape for arity n, optional or not.
func UnionShape(n int, optional bool) (Shape, error) {
	switch {
	case n == 2 && !optional:
		return ShapeUnion2, nil
	case n == 3 && !optional:
		return ShapeUnion3, nil
	case n == 2 && optional:
		return ShapeMaybeUnion2, nil
	case n == 3 && optional:
		return ShapeMaybeUnion3, nil
	}
	return 0, fmt.Errorf("unions support 2 or 3 cases, got %d", n)
}

// Record describes the realized topology of one routed field.
// The set of implementations is closed: Single, MaybeSingle, Union,
// MaybeUnion and List.
type Record interface {
	Shape() Shape
	// Children returns the realized node ids in route order.
	Children() []NodeID
	isRecord()
}

// Single holds exactly one child.
type Single struct {
	ID NodeID
}

func (Single) Shape() Shape         { return ShapeSingle }
func (r Single) Children() []NodeID { return []NodeID{r.ID} }
func (Single) isRecord()            {}

// MaybeSingle holds zero or one child. A zero ID means none.
type MaybeSingle struct {
	ID NodeID
}

func (MaybeSingle) Shape() Shape { return ShapeMaybeSingle }
func (r MaybeSingle) Children() []NodeID {
	if !r.ID.Valid() {
		return nil
	}
	return []NodeID{r.ID}
}
func (MaybeSingle) isRecord() {}

// Union holds exactly one of Arity cases, selected by Tag.
type Union struct {
	Arity int
	Tag   int
	ID    NodeID
}

func (r Union) Shape() Shape {
	if r.Arity == 3 {
		return ShapeUnion3
	}
	return ShapeUnion2
}
func (r Union) Children() []NodeID { return []NodeID{r.ID} }
func (Union) isRecord()            {}

// MaybeUnion holds zero or one of Arity cases. A zero ID means none and
// Tag is then meaningless.
type MaybeUnion struct {
	Arity int
	Tag   int
	ID    NodeID
}

func (r MaybeUnion) Shape() Shape {
	if r.Arity == 3 {
		return ShapeMaybeUnion3
	}
	return ShapeMaybeUnion2
}
func (r MaybeUnion) Children() []NodeID {
	if !r.ID.Valid() {
		return nil
	}
	return []NodeID{r.ID}
}
func (MaybeUnion) isRecord() {}

// ListEntry is one keyed element of a List record.
type ListEntry struct {
	Key string `json:"key"`
	ID  NodeID `json:"id"`
}

// List holds zero or more children addressed by unique identity keys.
type List struct {
	Entries []ListEntry
}

func (List) Shape() Shape { return ShapeList }
func (r List) Children() []NodeID {
	ids := make([]NodeID, len(r.Entries))
	for i, e := range r.Entries {
		ids[i] = e.ID
	}
	return ids
}
func (List) isRecord() {}

// Keys returns the identity keys in route order.
func (r List) Keys() []string {
	keys := make([]string, len(r.Entries))
	for i, e := range r.Entries {
		keys[i] = e.Key
	}
	return keys
}

// recordJSON is the wire form of a Record.
type recordJSON struct {
	Shape   string      `json:"shape"`
	ID      NodeID      `json:"id,omitempty"`
	Tag     int         `json:"tag,omitempty"`
	Entries []ListEntry `json:"entries,omitempty"`
}

// MarshalRecord encodes a record as a shape-discriminated JSON object.
func MarshalRecord(r Record) ([]byte, error) {
	if r == nil {
		return nil, fmt.Errorf("marshal record: nil record")
	}
	w := recordJSON{Shape: r.Shape().String()}
	switch v := r.(type) {
	case Single:
		w.ID = v.ID
	case MaybeSingle:
		w.ID = v.ID
	case Union:
		w.ID, w.Tag = v.ID, v.Tag
	case MaybeUnion:
		w.ID, w.Tag = v.ID, v.Tag
	case List:
		w.Entries = v.Entries
	default:
		return nil, fmt.Errorf("marshal record: unsupported type %T", r)
	}
	return json.Marshal(w)
}

// UnmarshalRecord decodes the output of MarshalRecord and validates it.
func UnmarshalRecord(data []byte) (Record, error) {
	var w recordJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}
	shape, err := ParseShape(w.Shape)
	if err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}

	var r Record
	switch shape {
	case ShapeSingle:
		r = Single{ID: w.ID}
	case ShapeMaybeSingle:
		r = MaybeSingle{ID: w.ID}
	case ShapeUnion2, ShapeUnion3:
		r = Union{Arity: shape.Arity(), Tag: w.Tag, ID: w.ID}
	case ShapeMaybeUnion2, ShapeMaybeUnion3:
		r = MaybeUnion{Arity: shape.Arity(), Tag: w.Tag, ID: w.ID}
	case ShapeList:
		if w.Entries == nil {
			w.Entries = []ListEntry{}
		}
		r = List{Entries: w.Entries}
	}
	if err := ValidateRecord(r); err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}
	return r, nil
}

// ValidateRecord checks the structural invariants of a record: required
// children are present, tags are in range and list keys are unique.
func ValidateRecord(r Record) error {
	switch v := r.(type) {
	case Single:
		if !v.ID.Valid() {
			return fmt.Errorf("single record has no child")
		}
	case MaybeSingle:
	case Union:
		if !v.ID.Valid() {
			return fmt.Errorf("%s record has no child", v.Shape())
		}
		if v.Tag < 0 || v.Tag >= v.Arity {
			return fmt.Errorf("%s record tag %d out of range", v.Shape(), v.Tag)
		}
	case MaybeUnion:
		if v.ID.Valid() && (v.Tag < 0 || v.Tag >= v.Arity) {
			return fmt.Errorf("%s record tag %d out of range", v.Shape(), v.Tag)
		}
	case List:
		seen := make(map[string]struct{}, len(v.Entries))
		for _, e := range v.Entries {
			if _, dup := seen[e.Key]; dup {
				return fmt.Errorf("list record has duplicate key %q", e.Key)
			}
			if !e.ID.Valid() {
				return fmt.Errorf("list record entry %q has no child", e.Key)
			}
			seen[e.Key] = struct{}{}
		}
	default:
		return fmt.Errorf("unsupported record type %T", r)
	}
	return nil
}
