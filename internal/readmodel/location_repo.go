// Package readmodel holds the external read-side location repositories
// (spec 4.J). After each tick the Runner pushes a best-effort copy of
// the destination position of every agent named in an AgentMoved event;
// arrivals of multi-tick kinematic moves (MoveArrived) are not pushed.
// Outside collaborators read through one of these repos instead of
// taking the World Model's lock, so a slow external reader can never
// hold up a tick.
package readmodel

import (
	"context"

	"github.com/kestrel-sim/worldkernel/internal/geo"
)

// LocationRepo stores and retrieves the last known position of an
// agent, keyed by agent ID. Implementations must be safe for
// concurrent use.
type LocationRepo interface {
	// Put records pos as agentID's current position.
	Put(ctx context.Context, agentID string, pos geo.Pos) error

	// Get returns the last recorded position for agentID, or
	// ok == false if none has ever been recorded.
	Get(ctx context.Context, agentID string) (pos geo.Pos, ok bool, err error)

	// Delete removes any recorded position for agentID.
	Delete(ctx context.Context, agentID string) error

	// BatchPut records positions for several agents in one call, used
	// by the periodic sweep that reconciles the read model after a
	// backlog of tick commits.
	BatchPut(ctx context.Context, positions map[string]geo.Pos) error
}
