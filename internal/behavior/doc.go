// Package behavior tracks asynchronous units of work started by nodes.
//
// A Tracker registers each Behavior's Resolution, emits lifecycle events
// (created, started, finished) and lets callers wait for every tracked
// behavior to start (AwaitReady) or finish (AwaitBehaviors), optionally
// bounded by a timeout. A timeout abandons the wait only; the behaviors
// keep running.
//
// The tracked set is guarded by one mutex that is never held while
// waiting: waits operate on a snapshot copy. Events are broadcast on an
// in-memory watermill pub/sub without persistence, so producers never
// block and late subscribers see nothing that came before them.
package behavior
