// Package route defines the persisted vocabulary of a state tree.
//
// A tree is described by two record families:
//
//   - Route records, keyed by FieldID, describe which children a routed
//     field currently realizes. Record is a closed union with one variant per
//     router shape (Single, MaybeSingle, Union, MaybeUnion, List).
//   - Node records, keyed by NodeID, describe a live node: where it is
//     attached, its identity key, and its encoded state.
//
// Together they form a Snapshot, which is what hydration consumes. The
// package also owns identity generation and the canonical JSON encoding used
// to hash snapshots.
package route
