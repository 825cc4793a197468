// Package harness runs YAML scenarios against a state tree.
//
// A scenario declares node kinds and the routed fields each kind carries
// (shape, prototype kinds, default entries), names the root kind, and
// lists steps. Each step edits one node and runs one update cycle:
//
//   - serve:    set the desired topology of a field
//   - unserve:  stop serving a field so it falls back to its default
//   - set:      change a state value
//   - snapshot: capture the tree under a name
//   - restore:  rebuild the tree from a named snapshot
//   - behavior: run a behavior bound to a node and await it
//
// Steps may expect node event counts, live node count, the child keys of
// a field, node state values, or an error kind. Node identities come from
// a deterministic sequence, so a scenario's trace is reproducible and can
// be compared against a golden file.
//
// Node paths address nodes from the root: "" is the root, "children.3" is
// the child keyed "3" in the root's children field, "pane" is the single
// child of the root's pane field, and segments nest with "/", as in
// "children.3/tabs.a".
package harness
