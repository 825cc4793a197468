// Package router implements reconciliation for routed fields.
//
// A Node declares routed fields through Routes and serves the desired
// topology of those fields through Rules. Each field is backed by a Router
// with a static shape:
//
//   - Single: exactly one child.
//   - Maybe: zero or one child.
//   - Union: exactly one of two or three tagged cases.
//   - MaybeUnion: zero or one of two or three tagged cases.
//   - List: an ordered sequence of children addressed by identity key.
//
// Every router offers the same operations. Current reads the live value,
// Apply realizes the declared default once, Hydrate reattaches to persisted
// records, Reconcile diffs a desired topology against the realized one, and
// Merge carries router state across a rebuild of the declaring node.
//
// Routers never own nodes. They read and write route records and ask the
// Runtime to connect, propagate and release scopes, so the runtime can stage
// a whole cycle and publish it atomically.
package router
