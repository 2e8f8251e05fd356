// Package query routes a question to a retrieval strategy. When the
// question names known entities, retrieval walks the graph from those
// entities; otherwise it falls back to full-text search. The choice
// is made once per question and is reported in the result.
package query

import (
	"context"
	"fmt"
	"sort"

	"patchsage/pkg/dictionary"
	"patchsage/pkg/linker"
	"patchsage/pkg/patch"
	"patchsage/pkg/store"
)

// Strategy names the retrieval path a question took.
type Strategy string

const (
	StrategyEntityFirst      Strategy = "ENTITY_FIRST"
	StrategyFulltextFallback Strategy = "FULLTEXT_FALLBACK"
)

// DefaultTopK bounds retrieval when the caller does not.
const DefaultTopK = 8

// maxMatchedAgents caps how many resolved agents feed the graph
// traversal. Longer names win the cut since they carry more signal
// than incidental short matches.
const maxMatchedAgents = 4

// Context is one retrieved change, ready for answer assembly.
type Context struct {
	ChangeID    string  `json:"change_id"`
	Text        string  `json:"text"`
	SectionName string  `json:"section_name"`
	PatchID     string  `json:"patch_id"`
	SourceURL   string  `json:"source_url"`
	Confidence  float64 `json:"confidence"`
}

// Result is the outcome of one retrieval. A recognized entity with no
// linked changes still reports StrategyEntityFirst with MatchedAgents
// set and Contexts empty; the router never switches strategy after
// the fact.
type Result struct {
	Strategy      Strategy      `json:"strategy"`
	MatchedAgents []patch.Agent `json:"matched_agents,omitempty"`
	Contexts      []Context     `json:"contexts"`
}

// Store is the slice of the graph store the router needs.
type Store interface {
	ListAgents(ctx context.Context) ([]patch.Agent, error)
	ChangesByAgents(ctx context.Context, agentIDs []string, limit int) ([]store.Hit, error)
	SearchChanges(ctx context.Context, query string, limit int) ([]store.Hit, error)
}

// Router resolves questions against the graph.
type Router struct {
	store    Store
	linkOpts linker.Options
}

func NewRouter(st Store, linkOpts linker.Options) *Router {
	return &Router{store: st, linkOpts: linkOpts}
}

// Retrieve answers one question. The entity dictionary is rebuilt
// from the store on every call so newly ingested agents resolve
// without a restart.
func (r *Router) Retrieve(ctx context.Context, question string, topK int) (*Result, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}

	agents, err := r.store.ListAgents(ctx)
	if err != nil {
		return nil, fmt.Errorf("load entity dictionary: %w", err)
	}
	dict := dictionary.Build(agents)

	matches := linker.Link(question, dict, r.linkOpts)
	if len(matches) == 0 {
		return r.fulltext(ctx, question, topK)
	}

	matched := make([]patch.Agent, 0, len(matches))
	seen := make(map[string]bool, len(matches))
	for _, m := range matches {
		if seen[m.Agent.ID] {
			continue
		}
		seen[m.Agent.ID] = true
		matched = append(matched, m.Agent)
	}
	sort.Slice(matched, func(i, j int) bool {
		if len(matched[i].Name) != len(matched[j].Name) {
			return len(matched[i].Name) > len(matched[j].Name)
		}
		return matched[i].Name < matched[j].Name
	})
	if len(matched) > maxMatchedAgents {
		matched = matched[:maxMatchedAgents]
	}
	agentIDs := make([]string, 0, len(matched))
	for _, agent := range matched {
		agentIDs = append(agentIDs, agent.ID)
	}

	hits, err := r.store.ChangesByAgents(ctx, agentIDs, topK)
	if err != nil {
		return nil, fmt.Errorf("graph retrieval: %w", err)
	}
	return &Result{
		Strategy:      StrategyEntityFirst,
		MatchedAgents: matched,
		Contexts:      dedupeContexts(hits, topK),
	}, nil
}

func (r *Router) fulltext(ctx context.Context, question string, topK int) (*Result, error) {
	hits, err := r.store.SearchChanges(ctx, question, topK)
	if err != nil {
		return nil, fmt.Errorf("fulltext retrieval: %w", err)
	}
	return &Result{
		Strategy: StrategyFulltextFallback,
		Contexts: dedupeContexts(hits, topK),
	}, nil
}

// dedupeContexts keeps the first (best ranked) hit per change. The
// same change can arrive once per matched agent.
func dedupeContexts(hits []store.Hit, topK int) []Context {
	contexts := make([]Context, 0, len(hits))
	seen := make(map[string]bool, len(hits))
	for _, h := range hits {
		if seen[h.Change.ID] {
			continue
		}
		seen[h.Change.ID] = true
		contexts = append(contexts, Context{
			ChangeID:    h.Change.ID,
			Text:        h.Change.Text,
			SectionName: h.Change.SectionName,
			PatchID:     h.PatchID,
			SourceURL:   h.Change.SourceURL,
			Confidence:  h.Confidence,
		})
		if len(contexts) == topK {
			break
		}
	}
	return contexts
}
