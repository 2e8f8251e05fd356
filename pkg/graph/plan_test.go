package graph

import (
	"errors"
	"reflect"
	"testing"

	"patchsage/pkg/patch"
)

func sampleDocument() *patch.Document {
	return &patch.Document{
		Patch: patch.Patch{ID: "9.05", Title: "Patch Notes 9.05", URL: "https://example.com/9-05"},
		Sections: []patch.Section{
			{
				Name:  "Agent Updates",
				Order: 0,
				Changes: []patch.Change{
					{ID: "9.05-s0-c0", Text: "Reyna Leer duration decreased.", SectionName: "Agent Updates", SourceURL: "https://example.com/9-05", Order: 0},
					{ID: "9.05-s0-c1", Text: "Viper Toxic Screen cost increased.", SectionName: "Agent Updates", SourceURL: "https://example.com/9-05", Order: 1},
				},
			},
			{Name: "Known Issues", Order: 1},
		},
	}
}

func sampleAgents() []patch.Agent {
	return []patch.Agent{
		{ID: "agent-reyna", Name: "Reyna"},
		{ID: "agent-viper", Name: "Viper"},
	}
}

func TestBuildPlanFlattensTree(t *testing.T) {
	plan, err := BuildPlan(sampleDocument(), []patch.Mention{
		{ChangeID: "9.05-s0-c0", AgentID: "agent-reyna", Method: patch.MatchExact, Confidence: 1.0},
	}, sampleAgents(), Options{Wipe: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if plan.Patch.ID != "9.05" || !plan.Wipe {
		t.Fatalf("unexpected plan head: %+v", plan.Patch)
	}
	if len(plan.Sections) != 2 {
		t.Fatalf("expected 2 sections (empty ones kept), got %d", len(plan.Sections))
	}
	if len(plan.Changes) != 2 {
		t.Fatalf("expected 2 changes, got %d", len(plan.Changes))
	}
	if len(plan.Agents) != 2 || len(plan.Mentions) != 1 {
		t.Fatalf("expected 2 agents and 1 mention, got %d and %d", len(plan.Agents), len(plan.Mentions))
	}
}

func TestBuildPlanIsDeterministic(t *testing.T) {
	mentions := []patch.Mention{
		{ChangeID: "9.05-s0-c1", AgentID: "agent-viper", Method: patch.MatchExact, Confidence: 1.0},
		{ChangeID: "9.05-s0-c0", AgentID: "agent-reyna", Method: patch.MatchExact, Confidence: 1.0},
	}
	first, err := BuildPlan(sampleDocument(), mentions, sampleAgents(), Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := BuildPlan(sampleDocument(), mentions, sampleAgents(), Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatal("plans built from the same inputs differ")
	}
	if first.Mentions[0].ChangeID != "9.05-s0-c0" {
		t.Fatalf("mentions not in stable order: %+v", first.Mentions)
	}
}

func TestBuildPlanCollapsesDuplicateMentions(t *testing.T) {
	plan, err := BuildPlan(sampleDocument(), []patch.Mention{
		{ChangeID: "9.05-s0-c0", AgentID: "agent-reyna", Method: patch.MatchFuzzy, Confidence: 0.9},
		{ChangeID: "9.05-s0-c0", AgentID: "agent-reyna", Method: patch.MatchExact, Confidence: 1.0},
		{ChangeID: "9.05-s0-c0", AgentID: "agent-reyna", Method: patch.MatchSubstring, Confidence: 0.85},
	}, sampleAgents(), Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(plan.Mentions) != 1 {
		t.Fatalf("expected 1 collapsed mention, got %d: %+v", len(plan.Mentions), plan.Mentions)
	}
	if plan.Mentions[0].Method != patch.MatchExact || plan.Mentions[0].Confidence != 1.0 {
		t.Fatalf("expected highest-confidence mention to survive, got %+v", plan.Mentions[0])
	}
}

func TestBuildPlanRejectsInconsistentTrees(t *testing.T) {
	t.Run("nil document", func(t *testing.T) {
		if _, err := BuildPlan(nil, nil, nil, Options{}); err == nil {
			t.Fatal("expected error for nil document")
		}
	})

	t.Run("missing patch id", func(t *testing.T) {
		doc := sampleDocument()
		doc.Patch.ID = ""
		if _, err := BuildPlan(doc, nil, nil, Options{}); err == nil {
			t.Fatal("expected error for missing patch id")
		}
	})

	t.Run("duplicate change id", func(t *testing.T) {
		doc := sampleDocument()
		dup := doc.Sections[0].Changes[0]
		dup.SectionName = "Known Issues"
		doc.Sections[1].Changes = append(doc.Sections[1].Changes, dup)
		_, err := BuildPlan(doc, nil, nil, Options{})
		var planErr *PlanError
		if !errors.As(err, &planErr) {
			t.Fatalf("expected PlanError, got %v", err)
		}
	})

	t.Run("duplicate section order", func(t *testing.T) {
		doc := sampleDocument()
		doc.Sections[1].Order = 0
		_, err := BuildPlan(doc, nil, nil, Options{})
		var planErr *PlanError
		if !errors.As(err, &planErr) {
			t.Fatalf("expected PlanError for duplicate section order, got %v", err)
		}
	})

	t.Run("gapped section orders", func(t *testing.T) {
		doc := sampleDocument()
		doc.Sections[1].Order = 2
		_, err := BuildPlan(doc, nil, nil, Options{})
		var planErr *PlanError
		if !errors.As(err, &planErr) {
			t.Fatalf("expected PlanError for gapped section orders, got %v", err)
		}
	})

	t.Run("change claims wrong section", func(t *testing.T) {
		doc := sampleDocument()
		doc.Sections[0].Changes[0].SectionName = "Map Updates"
		if _, err := BuildPlan(doc, nil, nil, Options{}); err == nil {
			t.Fatal("expected error for section mismatch")
		}
	})

	t.Run("mention with unknown change", func(t *testing.T) {
		mentions := []patch.Mention{{ChangeID: "9.05-s9-c9", AgentID: "agent-reyna", Method: patch.MatchExact, Confidence: 1.0}}
		if _, err := BuildPlan(sampleDocument(), mentions, sampleAgents(), Options{}); err == nil {
			t.Fatal("expected error for mention referencing unknown change")
		}
	})

	t.Run("mention with unknown agent", func(t *testing.T) {
		mentions := []patch.Mention{{ChangeID: "9.05-s0-c0", AgentID: "agent-ghost", Method: patch.MatchExact, Confidence: 1.0}}
		if _, err := BuildPlan(sampleDocument(), mentions, sampleAgents(), Options{}); err == nil {
			t.Fatal("expected error for mention referencing unknown agent")
		}
	})
}
