// Package store defines the persistence boundary of the patch graph.
// Implementations live in subpackages; consumers depend only on the
// interface so the router and the commands can be tested against
// in-memory fakes.
package store

import (
	"context"
	"errors"

	"patchsage/pkg/graph"
	"patchsage/pkg/patch"
)

// ErrNoPatches indicates the graph holds no patch yet.
var ErrNoPatches = errors.New("store: no patches ingested")

// Hit is one retrieved change together with its ranking signals.
// Entity hits carry the mention that produced them; full-text hits
// carry the rank score in Confidence and no agent.
type Hit struct {
	Change       patch.Change
	PatchID      string
	SectionOrder int
	AgentID      string
	Method       patch.MatchMethod
	Confidence   float64
}

// GraphStore persists and queries the patch knowledge graph.
type GraphStore interface {
	// ProjectPatch applies a projection plan in one transaction. The
	// patch's existing subgraph is replaced in full; agents are
	// upserted and survive across patches.
	ProjectPatch(ctx context.Context, plan *graph.Plan) error

	// ListAgents returns all known agents in name order.
	ListAgents(ctx context.Context) ([]patch.Agent, error)

	// CurrentPatch returns the most recently published patch, or
	// ErrNoPatches when the graph is empty.
	CurrentPatch(ctx context.Context) (patch.Patch, error)

	// ChangesByAgents returns the current patch's changes mentioning
	// any of the agents, ordered by mention confidence, then section
	// and change order.
	ChangesByAgents(ctx context.Context, agentIDs []string, limit int) ([]Hit, error)

	// SearchChanges runs a full-text query over the current patch's
	// change texts and section names, best rank first.
	SearchChanges(ctx context.Context, query string, limit int) ([]Hit, error)
}
