package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-playground/validator"
	"github.com/labstack/echo/v4"

	"patchsage/pkg/graph"
	"patchsage/pkg/linker"
	"patchsage/pkg/patch"
	"patchsage/pkg/query"
	"patchsage/pkg/store"
)

type fakeGraphStore struct {
	agents []patch.Agent
	hits   []store.Hit
	patch  patch.Patch
}

func (f *fakeGraphStore) ProjectPatch(ctx context.Context, plan *graph.Plan) error { return nil }

func (f *fakeGraphStore) ListAgents(ctx context.Context) ([]patch.Agent, error) {
	return f.agents, nil
}

func (f *fakeGraphStore) CurrentPatch(ctx context.Context) (patch.Patch, error) {
	if f.patch.ID == "" {
		return patch.Patch{}, store.ErrNoPatches
	}
	return f.patch, nil
}

func (f *fakeGraphStore) ChangesByAgents(ctx context.Context, agentIDs []string, limit int) ([]store.Hit, error) {
	return f.hits, nil
}

func (f *fakeGraphStore) SearchChanges(ctx context.Context, q string, limit int) ([]store.Hit, error) {
	return f.hits, nil
}

func newTestContext(t *testing.T, st store.GraphStore, method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	e := echo.New()
	e.Validator = &CustomValidator{validator: validator.New()}

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()

	app := &App{Store: st, Router: query.NewRouter(st, linker.Options{})}
	return &AppContext{Context: e.NewContext(req, rec), App: app}, rec
}

func TestAskHandler(t *testing.T) {
	st := &fakeGraphStore{
		agents: []patch.Agent{{ID: "agent-reyna", Name: "Reyna", Aliases: []string{"Reyna"}}},
		hits: []store.Hit{{
			Change:       patch.Change{ID: "9.05-s1-c0", Text: "Leer duration decreased.", SectionName: "Agent Updates"},
			PatchID:      "9.05",
			SectionOrder: 1,
			AgentID:      "agent-reyna",
			Method:       patch.MatchExact,
			Confidence:   1.0,
		}},
	}

	c, rec := newTestContext(t, st, http.MethodPost, "/api/ask", `{"question":"What changed for Reyna?"}`)
	if err := AskHandler(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Strategy      string          `json:"strategy"`
		MatchedAgents []string        `json:"matched_agents"`
		Contexts      []query.Context `json:"contexts"`
		Answer        string          `json:"answer"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Strategy != string(query.StrategyEntityFirst) {
		t.Fatalf("unexpected strategy: %q", resp.Strategy)
	}
	if len(resp.MatchedAgents) != 1 || resp.MatchedAgents[0] != "Reyna" {
		t.Fatalf("unexpected matched agents: %v", resp.MatchedAgents)
	}
	if len(resp.Contexts) != 1 || resp.Contexts[0].ChangeID != "9.05-s1-c0" {
		t.Fatalf("unexpected contexts: %+v", resp.Contexts)
	}
	if !strings.Contains(resp.Answer, "Leer duration decreased.") {
		t.Fatalf("answer missing change text: %q", resp.Answer)
	}
}

func TestAskHandlerRejectsMissingQuestion(t *testing.T) {
	c, rec := newTestContext(t, &fakeGraphStore{}, http.MethodPost, "/api/ask", `{"top_k":3}`)
	if err := AskHandler(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestCurrentPatchHandlerEmptyGraph(t *testing.T) {
	c, rec := newTestContext(t, &fakeGraphStore{}, http.MethodGet, "/api/patch/current", "")
	if err := CurrentPatchHandler(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for empty graph, got %d", rec.Code)
	}
}

func TestCurrentPatchHandler(t *testing.T) {
	st := &fakeGraphStore{patch: patch.Patch{ID: "9.05", Title: "Patch 9.05", URL: "https://example.com/9-05"}}
	c, rec := newTestContext(t, st, http.MethodGet, "/api/patch/current", "")
	if err := CurrentPatchHandler(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"id":"9.05"`) {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}
