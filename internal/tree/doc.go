// Package tree implements the runtime that hosts a state tree.
//
// The Tree owns every live Scope (FieldID to Record, NodeID to Scope) and
// runs update cycles. A cycle starts from one or more dirty scopes,
// evaluates each scope's Rules, and reconciles every routed field through
// its router. Routers write into a staged transaction; nothing becomes
// visible until the cycle commits, and a failed cycle is discarded whole.
//
// Thread-safety model:
//   - Readers (Scope, Current, Info, Snapshot) take the read lock and only
//     ever see committed cycles.
//   - Mutate, Start, Restore and Stop take the write lock for the whole
//     cycle, so cycles are serialized.
//   - Loop funnels mutations from concurrent producers onto one goroutine.
//   - Node lifecycle hooks (Start, Stop) run after the lock is released.
//
// Per cycle the tree counts node starts (creates), node stops (destroys)
// and node updates (evaluations). Counts accumulate until FlushUpdateStats.
package tree
