package query

import (
	"context"
	"errors"
	"testing"

	"patchsage/pkg/linker"
	"patchsage/pkg/patch"
	"patchsage/pkg/store"
)

type fakeStore struct {
	agents []patch.Agent

	byAgents    []store.Hit
	byAgentsErr error
	gotAgentIDs []string

	searched  []store.Hit
	searchErr error
	gotQuery  string
}

func (f *fakeStore) ListAgents(ctx context.Context) ([]patch.Agent, error) {
	return f.agents, nil
}

func (f *fakeStore) ChangesByAgents(ctx context.Context, agentIDs []string, limit int) ([]store.Hit, error) {
	f.gotAgentIDs = agentIDs
	return f.byAgents, f.byAgentsErr
}

func (f *fakeStore) SearchChanges(ctx context.Context, query string, limit int) ([]store.Hit, error) {
	f.gotQuery = query
	return f.searched, f.searchErr
}

func testAgents() []patch.Agent {
	return []patch.Agent{
		{ID: "agent-reyna", Name: "Reyna", Aliases: []string{"Reyna", "Leer"}},
		{ID: "agent-viper", Name: "Viper", Aliases: []string{"Viper", "Toxic Screen"}},
	}
}

func hit(changeID, text, section string, sectionOrder int, confidence float64) store.Hit {
	return store.Hit{
		Change:       patch.Change{ID: changeID, Text: text, SectionName: section},
		PatchID:      "9.05",
		SectionOrder: sectionOrder,
		Confidence:   confidence,
	}
}

func TestRetrieveEntityFirst(t *testing.T) {
	st := &fakeStore{
		agents: testAgents(),
		byAgents: []store.Hit{
			hit("9.05-s1-c0", "Reyna Leer duration decreased.", "Agent Updates", 1, 1.0),
			hit("9.05-s1-c2", "Reyna Empress bonus adjusted.", "Agent Updates", 1, 0.85),
		},
	}

	result, err := NewRouter(st, linker.Options{}).Retrieve(context.Background(), "What changed for Reyna?", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Strategy != StrategyEntityFirst {
		t.Fatalf("expected entity-first strategy, got %s", result.Strategy)
	}
	if len(result.MatchedAgents) != 1 || result.MatchedAgents[0].ID != "agent-reyna" {
		t.Fatalf("unexpected matched agents: %+v", result.MatchedAgents)
	}
	if len(st.gotAgentIDs) != 1 || st.gotAgentIDs[0] != "agent-reyna" {
		t.Fatalf("store queried with wrong agents: %v", st.gotAgentIDs)
	}
	if len(result.Contexts) != 2 || result.Contexts[0].ChangeID != "9.05-s1-c0" {
		t.Fatalf("unexpected contexts: %+v", result.Contexts)
	}
	if st.gotQuery != "" {
		t.Fatal("fulltext search must not run when an entity resolved")
	}
}

func TestRetrieveFulltextFallback(t *testing.T) {
	st := &fakeStore{
		agents:   testAgents(),
		searched: []store.Hit{hit("9.05-s2-c0", "Ascent mid door health increased.", "Map Updates", 2, 0.4)},
	}

	result, err := NewRouter(st, linker.Options{}).Retrieve(context.Background(), "What happened to the mid door?", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Strategy != StrategyFulltextFallback {
		t.Fatalf("expected fulltext fallback, got %s", result.Strategy)
	}
	if len(result.MatchedAgents) != 0 {
		t.Fatalf("fallback must not report matched agents: %+v", result.MatchedAgents)
	}
	if len(result.Contexts) != 1 || result.Contexts[0].SectionName != "Map Updates" {
		t.Fatalf("unexpected contexts: %+v", result.Contexts)
	}
	if st.gotAgentIDs != nil {
		t.Fatal("graph traversal must not run without a resolved entity")
	}
}

func TestRetrieveRecognizedEntityWithNoChangesStaysEntityFirst(t *testing.T) {
	st := &fakeStore{agents: testAgents()}

	result, err := NewRouter(st, linker.Options{}).Retrieve(context.Background(), "Anything new for Viper?", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Strategy != StrategyEntityFirst {
		t.Fatalf("expected entity-first strategy, got %s", result.Strategy)
	}
	if len(result.Contexts) != 0 {
		t.Fatalf("expected no contexts, got %+v", result.Contexts)
	}
	if st.gotQuery != "" {
		t.Fatal("an empty graph result must not switch to fulltext")
	}
}

func TestRetrievePropagatesStoreErrors(t *testing.T) {
	boom := errors.New("connection reset")

	st := &fakeStore{agents: testAgents(), byAgentsErr: boom}
	if _, err := NewRouter(st, linker.Options{}).Retrieve(context.Background(), "Reyna changes?", 5); !errors.Is(err, boom) {
		t.Fatalf("expected graph error to propagate, got %v", err)
	}
	if st.gotQuery != "" {
		t.Fatal("a graph error must not trigger the fulltext path")
	}

	st = &fakeStore{agents: testAgents(), searchErr: boom}
	if _, err := NewRouter(st, linker.Options{}).Retrieve(context.Background(), "smokes rework?", 5); !errors.Is(err, boom) {
		t.Fatalf("expected fulltext error to propagate, got %v", err)
	}
}

func TestRetrieveDedupesSharedChanges(t *testing.T) {
	shared := hit("9.05-s1-c0", "Reyna and Viper trade adjustments.", "Agent Updates", 1, 1.0)
	st := &fakeStore{
		agents:   testAgents(),
		byAgents: []store.Hit{shared, shared},
	}

	result, err := NewRouter(st, linker.Options{}).Retrieve(context.Background(), "Reyna and Viper changes?", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.MatchedAgents) != 2 {
		t.Fatalf("expected both agents matched, got %+v", result.MatchedAgents)
	}
	if len(result.Contexts) != 1 {
		t.Fatalf("expected shared change deduped, got %+v", result.Contexts)
	}
}

func TestRetrieveCapsMatchedAgents(t *testing.T) {
	st := &fakeStore{
		agents: []patch.Agent{
			{ID: "agent-brimstone", Name: "Brimstone"},
			{ID: "agent-killjoy", Name: "Killjoy"},
			{ID: "agent-omen", Name: "Omen"},
			{ID: "agent-phoenix", Name: "Phoenix"},
			{ID: "agent-sage", Name: "Sage"},
		},
	}

	result, err := NewRouter(st, linker.Options{}).Retrieve(context.Background(),
		"Do Brimstone, Killjoy, Phoenix, Omen and Sage share any changes?", 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"agent-brimstone", "agent-killjoy", "agent-phoenix", "agent-omen"}
	if len(st.gotAgentIDs) != len(want) {
		t.Fatalf("expected %d agents queried, got %v", len(want), st.gotAgentIDs)
	}
	for i, id := range want {
		if st.gotAgentIDs[i] != id {
			t.Fatalf("expected longest-name-first cap %v, got %v", want, st.gotAgentIDs)
		}
	}
	if len(result.MatchedAgents) != len(want) {
		t.Fatalf("matched agents not capped: %+v", result.MatchedAgents)
	}
}

func TestRetrieveAppliesTopK(t *testing.T) {
	hits := []store.Hit{
		hit("9.05-s1-c0", "first", "Agent Updates", 1, 1.0),
		hit("9.05-s1-c1", "second", "Agent Updates", 1, 0.9),
		hit("9.05-s1-c2", "third", "Agent Updates", 1, 0.8),
	}
	st := &fakeStore{agents: testAgents(), byAgents: hits}

	result, err := NewRouter(st, linker.Options{}).Retrieve(context.Background(), "Reyna?", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Contexts) != 2 {
		t.Fatalf("expected topK to cap contexts at 2, got %d", len(result.Contexts))
	}
}
