// Package graph turns a parsed patch document and its linked mentions
// into a validated projection plan. The plan is plain data with no
// store dependency, so the full-replace semantics can be tested
// without a database; executing a plan is the store's job.
package graph

import (
	"fmt"
	"sort"

	"patchsage/pkg/patch"
)

// Plan is everything a single projection writes, flattened for the
// store. Projecting the same plan twice leaves the graph unchanged.
type Plan struct {
	Patch    patch.Patch
	Sections []patch.Section
	Changes  []patch.Change
	Agents   []patch.Agent
	Mentions []patch.Mention

	// Wipe requests that all patch subgraphs, not just this patch's,
	// are removed before inserting.
	Wipe bool
}

// PlanError reports why a document and its mentions could not be
// assembled into a consistent plan.
type PlanError struct {
	Reason string
}

func (e *PlanError) Error() string {
	return "graph: invalid projection plan: " + e.Reason
}

func planErrorf(format string, args ...any) error {
	return &PlanError{Reason: fmt.Sprintf(format, args...)}
}

// Options control plan assembly.
type Options struct {
	// Wipe carries the caller's request to clear all patches first.
	Wipe bool
}

// BuildPlan validates the document tree and assembles the projection
// plan. Section orders must be unique and contiguous from zero, every
// change must belong to exactly one section of the document and every
// mention must reference a change in the document and an agent in
// agents. Duplicate mentions for the same change and
// agent collapse to the highest-confidence one.
func BuildPlan(doc *patch.Document, mentions []patch.Mention, agents []patch.Agent, opts Options) (*Plan, error) {
	if doc == nil {
		return nil, planErrorf("nil document")
	}
	if doc.Patch.ID == "" {
		return nil, planErrorf("document has no patch id")
	}

	plan := &Plan{Patch: doc.Patch, Wipe: opts.Wipe}

	changeSection := make(map[string]string)
	sectionOrders := make(map[int]string, len(doc.Sections))
	for _, section := range doc.Sections {
		if section.Name == "" {
			return nil, planErrorf("patch %s has a section with no name", doc.Patch.ID)
		}
		if other, dup := sectionOrders[section.Order]; dup {
			return nil, planErrorf("sections %q and %q share order %d", other, section.Name, section.Order)
		}
		if section.Order < 0 || section.Order >= len(doc.Sections) {
			return nil, planErrorf("section %q order %d is outside the contiguous 0-based range", section.Name, section.Order)
		}
		sectionOrders[section.Order] = section.Name
		plan.Sections = append(plan.Sections, section)
		for _, change := range section.Changes {
			if change.ID == "" {
				return nil, planErrorf("section %q has a change with no id", section.Name)
			}
			if owner, seen := changeSection[change.ID]; seen {
				return nil, planErrorf("change %s appears in both %q and %q", change.ID, owner, section.Name)
			}
			if change.SectionName != section.Name {
				return nil, planErrorf("change %s claims section %q but sits in %q", change.ID, change.SectionName, section.Name)
			}
			changeSection[change.ID] = section.Name
			plan.Changes = append(plan.Changes, change)
		}
	}

	knownAgents := make(map[string]bool, len(agents))
	for _, agent := range agents {
		if agent.ID == "" || agent.Name == "" {
			return nil, planErrorf("agent entry missing id or name: %+v", agent)
		}
		knownAgents[agent.ID] = true
	}
	plan.Agents = append(plan.Agents, agents...)

	type mentionKey struct {
		changeID string
		agentID  string
	}
	best := make(map[mentionKey]patch.Mention, len(mentions))
	for _, m := range mentions {
		if _, ok := changeSection[m.ChangeID]; !ok {
			return nil, planErrorf("mention references unknown change %q", m.ChangeID)
		}
		if !knownAgents[m.AgentID] {
			return nil, planErrorf("mention references unknown agent %q", m.AgentID)
		}
		key := mentionKey{changeID: m.ChangeID, agentID: m.AgentID}
		if prev, seen := best[key]; !seen || m.Confidence > prev.Confidence {
			best[key] = m
		}
	}
	for _, m := range best {
		plan.Mentions = append(plan.Mentions, m)
	}
	sort.Slice(plan.Mentions, func(i, j int) bool {
		a, b := plan.Mentions[i], plan.Mentions[j]
		if a.ChangeID != b.ChangeID {
			return a.ChangeID < b.ChangeID
		}
		return a.AgentID < b.AgentID
	})

	return plan, nil
}
