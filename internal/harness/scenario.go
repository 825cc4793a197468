package harness

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/statetree/internal/route"
)

// Scenario defines one tree scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Root is the kind of the root node.
	Root string `yaml:"root"`

	// MaxSteps bounds node evaluations per cycle. Zero keeps the tree
	// default.
	MaxSteps int `yaml:"max_steps,omitempty"`

	// Kinds declares every node kind by name.
	Kinds map[string]KindSpec `yaml:"kinds"`

	// ExpectStart checks the counts of the initial cycle.
	ExpectStart *Expect `yaml:"expect_start,omitempty"`

	// ExpectStartError names the error kind the initial cycle must fail
	// with. Steps are not run when the start fails.
	ExpectStartError string `yaml:"expect_start_error,omitempty"`

	Steps []Step `yaml:"steps"`
}

// KindSpec declares the routed fields of a node kind.
type KindSpec struct {
	Fields []FieldSpec `yaml:"fields,omitempty"`
}

// FieldSpec declares one routed field.
type FieldSpec struct {
	Name  string `yaml:"name"`
	Shape string `yaml:"shape"`

	// Kinds are the prototype kinds: one for single, maybe_single and
	// list, one per case for unions.
	Kinds []string `yaml:"kinds"`

	// Default is the declared default topology.
	Default []EntrySpec `yaml:"default,omitempty"`
}

// EntrySpec is one desired child. Kind defaults to the field's prototype
// kind for Tag.
type EntrySpec struct {
	Key  string `yaml:"key,omitempty" json:"key,omitempty"`
	Kind string `yaml:"kind,omitempty" json:"kind,omitempty"`
	Tag  int    `yaml:"tag,omitempty" json:"tag,omitempty"`
}

// Step is one scenario step. Exactly one operation must be set.
type Step struct {
	Name string `yaml:"name,omitempty"`

	Serve    *ServeStep    `yaml:"serve,omitempty"`
	Unserve  *FieldRef     `yaml:"unserve,omitempty"`
	Set      *SetStep      `yaml:"set,omitempty"`
	Snapshot string        `yaml:"snapshot,omitempty"`
	Restore  *RestoreStep  `yaml:"restore,omitempty"`
	Behavior *BehaviorStep `yaml:"behavior,omitempty"`

	Expect      *Expect `yaml:"expect,omitempty"`
	ExpectError string  `yaml:"expect_error,omitempty"`
}

// FieldRef names a field of the node at Path.
type FieldRef struct {
	Path  string `yaml:"path,omitempty"`
	Field string `yaml:"field"`
}

// ServeStep sets the topology served for a field.
type ServeStep struct {
	Path    string      `yaml:"path,omitempty"`
	Field   string      `yaml:"field"`
	Entries []EntrySpec `yaml:"entries"`
}

// SetStep sets one state value of the node at Path.
type SetStep struct {
	Path  string `yaml:"path,omitempty"`
	Key   string `yaml:"key"`
	Value string `yaml:"value"`
}

// RestoreStep rebuilds the tree from a snapshot. Root overrides the root
// kind the snapshot is hydrated with.
type RestoreStep struct {
	Name string `yaml:"name"`
	Root string `yaml:"root,omitempty"`
}

// BehaviorStep runs a behavior bound to the node at Path. The behavior
// resolves to the node's state.
type BehaviorStep struct {
	Path string `yaml:"path,omitempty"`
	ID   string `yaml:"id"`
}

// Expect lists the checks of one step. Nil fields are not checked.
type Expect struct {
	Starts    *int `yaml:"starts,omitempty"`
	Stops     *int `yaml:"stops,omitempty"`
	Updates   *int `yaml:"updates,omitempty"`
	Events    *int `yaml:"events,omitempty"`
	Nodes     *int `yaml:"nodes,omitempty"`
	Behaviors *int `yaml:"behaviors,omitempty"`

	// Keys maps a field path ("children", "children.3/tabs") to its child
	// keys in route order.
	Keys map[string][]string `yaml:"keys,omitempty"`

	// State maps a node path to expected state values.
	State map[string]map[string]string `yaml:"state,omitempty"`
}

// Op names the step's operation.
func (s Step) Op() string {
	switch {
	case s.Serve != nil:
		return OpServe
	case s.Unserve != nil:
		return OpUnserve
	case s.Set != nil:
		return OpSet
	case s.Snapshot != "":
		return OpSnapshot
	case s.Restore != nil:
		return OpRestore
	case s.Behavior != nil:
		return OpBehavior
	}
	return ""
}

func (s Step) opCount() int {
	n := 0
	for _, set := range []bool{
		s.Serve != nil, s.Unserve != nil, s.Set != nil,
		s.Snapshot != "", s.Restore != nil, s.Behavior != nil,
	} {
		if set {
			n++
		}
	}
	return n
}

// Step operations.
const (
	OpStart    = "start"
	OpServe    = "serve"
	OpUnserve  = "unserve"
	OpSet      = "set"
	OpSnapshot = "snapshot"
	OpRestore  = "restore"
	OpBehavior = "behavior"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or fails validation.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	sc, err := ParseScenario(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return sc, nil
}

// ParseScenario decodes a scenario, checks it against the CUE schema and
// validates the references between kinds, fields and steps.
func ParseScenario(data []byte) (*Scenario, error) {
	var sc Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&sc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := ValidateSchema(data); err != nil {
		return nil, err
	}
	if errs := Validate(&sc); len(errs) > 0 {
		joined := make([]error, len(errs))
		for i, e := range errs {
			joined[i] = e
		}
		return nil, fmt.Errorf("invalid scenario: %w", errors.Join(joined...))
	}
	return &sc, nil
}

// Validation error codes (E200-E299)
const (
	ErrMissingField    = "E201" // required field is empty
	ErrUnknownKind     = "E202" // kind reference is not declared
	ErrInvalidShape    = "E203" // unknown shape or wrong prototype count
	ErrInvalidDefault  = "E204" // default topology does not fit the shape
	ErrDuplicateField  = "E205" // field declared twice on a kind
	ErrStepOperation   = "E206" // step has zero or several operations
	ErrInvalidKey      = "E207" // key contains a path separator
	ErrUnknownSnapshot = "E208" // restore names a snapshot never taken
)

// ValidationError is one semantic problem in a scenario.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks the scenario's internal references.
// Returns all errors found (does not fail-fast).
func Validate(sc *Scenario) []ValidationError {
	var errs []ValidationError
	add := func(field, code, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Code: code, Message: fmt.Sprintf(format, args...)})
	}

	if sc.Name == "" {
		add("name", ErrMissingField, "name is required")
	}
	if sc.Root == "" {
		add("root", ErrMissingField, "root kind is required")
	} else if _, ok := sc.Kinds[sc.Root]; !ok {
		add("root", ErrUnknownKind, "kind %q is not declared", sc.Root)
	}

	kinds := make([]string, 0, len(sc.Kinds))
	for name := range sc.Kinds {
		kinds = append(kinds, name)
	}
	slices.Sort(kinds)
	for _, kind := range kinds {
		seen := map[string]bool{}
		for i, f := range sc.Kinds[kind].Fields {
			at := fmt.Sprintf("kinds.%s.fields[%d]", kind, i)
			if seen[f.Name] {
				add(at, ErrDuplicateField, "field %q declared twice", f.Name)
			}
			seen[f.Name] = true
			errs = append(errs, validateField(at, f, sc.Kinds)...)
		}
	}

	taken := map[string]bool{}
	for i, st := range sc.Steps {
		at := fmt.Sprintf("steps[%d]", i)
		if st.opCount() != 1 {
			add(at, ErrStepOperation, "step must have exactly one operation, has %d", st.opCount())
			continue
		}
		switch {
		case st.Serve != nil:
			for j, e := range st.Serve.Entries {
				if strings.ContainsAny(e.Key, "./") {
					add(fmt.Sprintf("%s.serve.entries[%d]", at, j), ErrInvalidKey, "key %q contains '.' or '/'", e.Key)
				}
				if e.Kind != "" {
					if _, ok := sc.Kinds[e.Kind]; !ok {
						add(fmt.Sprintf("%s.serve.entries[%d]", at, j), ErrUnknownKind, "kind %q is not declared", e.Kind)
					}
				}
			}
		case st.Snapshot != "":
			taken[st.Snapshot] = true
		case st.Restore != nil:
			if !taken[st.Restore.Name] {
				add(at+".restore", ErrUnknownSnapshot, "snapshot %q is not taken by an earlier step", st.Restore.Name)
			}
			if st.Restore.Root != "" {
				if _, ok := sc.Kinds[st.Restore.Root]; !ok {
					add(at+".restore.root", ErrUnknownKind, "kind %q is not declared", st.Restore.Root)
				}
			}
		}
	}
	return errs
}

func validateField(at string, f FieldSpec, kinds map[string]KindSpec) []ValidationError {
	var errs []ValidationError
	add := func(code, format string, args ...any) {
		errs = append(errs, ValidationError{Field: at, Code: code, Message: fmt.Sprintf(format, args...)})
	}

	if f.Name == "" {
		add(ErrMissingField, "field name is required")
	}
	shape, err := route.ParseShape(f.Shape)
	if err != nil {
		add(ErrInvalidShape, "%v", err)
		return errs
	}
	want := shape.Arity()
	if shape == route.ShapeList {
		want = 1
	}
	if len(f.Kinds) != want {
		add(ErrInvalidShape, "%s needs %d prototype kinds, has %d", shape, want, len(f.Kinds))
	}
	for _, k := range f.Kinds {
		if _, ok := kinds[k]; !ok {
			add(ErrUnknownKind, "kind %q is not declared", k)
		}
	}

	switch {
	case shape == route.ShapeList:
		keys := map[string]bool{}
		for _, e := range f.Default {
			if keys[e.Key] {
				add(ErrInvalidDefault, "default key %q repeated", e.Key)
			}
			keys[e.Key] = true
		}
	case shape.Optional():
		if len(f.Default) > 1 {
			add(ErrInvalidDefault, "%s default has at most one entry", shape)
		}
	default:
		if len(f.Default) != 1 {
			add(ErrInvalidDefault, "%s default needs exactly one entry", shape)
		}
	}
	for _, e := range f.Default {
		if e.Tag < 0 || (shape != route.ShapeList && e.Tag >= shape.Arity()) {
			add(ErrInvalidDefault, "default tag %d out of range", e.Tag)
		}
		if strings.ContainsAny(e.Key, "./") {
			add(ErrInvalidKey, "key %q contains '.' or '/'", e.Key)
		}
		if e.Kind != "" {
			if _, ok := kinds[e.Kind]; !ok {
				add(ErrUnknownKind, "kind %q is not declared", e.Kind)
			}
		}
	}
	return errs
}
