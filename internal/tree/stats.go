package tree

import "github.com/roach88/statetree/internal/route"

// Counts are the node events of one or more cycles.
type Counts struct {
	// NodeStarts counts scopes connected (created or hydrated).
	NodeStarts int `json:"node_starts"`
	// NodeStops counts scopes released.
	NodeStops int `json:"node_stops"`
	// NodeUpdates counts node evaluations.
	NodeUpdates int `json:"node_updates"`
}

// AllNodeEvents is the sum of every count.
func (c Counts) AllNodeEvents() int {
	return c.NodeStarts + c.NodeStops + c.NodeUpdates
}

func (c *Counts) add(o Counts) {
	c.NodeStarts += o.NodeStarts
	c.NodeStops += o.NodeStops
	c.NodeUpdates += o.NodeUpdates
}

// UpdateStats are the counts accumulated since the last flush.
type UpdateStats struct {
	Counts
	// Cycles is the number of cycles committed.
	Cycles int `json:"cycles"`
	// LastCycle is the clock value of the most recent committed cycle.
	LastCycle int64 `json:"last_cycle"`
}

// Info describes the committed state of a tree.
type Info struct {
	Started   bool
	Root      route.NodeID
	NodeCount int
	MaxDepth  int
	Cycle     int64
}
