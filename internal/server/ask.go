package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"patchsage/pkg/ai"
	"patchsage/pkg/answer"
	"patchsage/pkg/logger"
	"patchsage/pkg/query"
	"patchsage/pkg/store"
)

// AskHandler answers one question against the patch graph.
func AskHandler(c echo.Context) error {
	type askParams struct {
		Question string `json:"question" validate:"required"`
		TopK     int    `json:"top_k" validate:"omitempty,gte=1,lte=50"`
		Generate bool   `json:"generate"`
	}

	type askResponse struct {
		Strategy      string          `json:"strategy"`
		MatchedAgents []string        `json:"matched_agents"`
		Contexts      []query.Context `json:"contexts"`
		Answer        string          `json:"answer"`
		Message       string          `json:"message,omitempty"`
	}

	params := new(askParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, askResponse{Message: "Invalid request params"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, askResponse{Message: "Invalid request params"})
	}
	params.Question = strings.TrimSpace(params.Question)
	if params.Question == "" {
		return c.JSON(http.StatusBadRequest, askResponse{Message: "question is required"})
	}

	ctx := c.Request().Context()
	app := c.(*AppContext).App

	result, err := app.Router.Retrieve(ctx, params.Question, params.TopK)
	if err != nil {
		logger.Error("retrieval failed", "err", err)
		return c.JSON(http.StatusInternalServerError, askResponse{Message: "Internal server error"})
	}

	resp := askResponse{
		Strategy: string(result.Strategy),
		Contexts: result.Contexts,
		Answer:   answer.Format(params.Question, result),
	}
	for _, agent := range result.MatchedAgents {
		resp.MatchedAgents = append(resp.MatchedAgents, agent.Name)
	}

	if params.Generate && app.Generator != nil && len(result.Contexts) > 0 {
		contexts := make([]string, 0, len(result.Contexts))
		for _, cc := range result.Contexts {
			contexts = append(contexts, fmt.Sprintf("[%s] %s: %s", cc.PatchID, cc.SectionName, cc.Text))
		}
		generated, err := app.Generator.Generate(ctx, ai.AnswerPrompt(params.Question, contexts))
		if err != nil {
			logger.Warn("answer generation failed", "err", err)
		} else {
			resp.Answer = strings.TrimSpace(generated)
		}
	}

	return c.JSON(http.StatusOK, resp)
}

// CurrentPatchHandler reports the most recently ingested patch.
func CurrentPatchHandler(c echo.Context) error {
	type currentPatchResponse struct {
		ID          string `json:"id,omitempty"`
		Title       string `json:"title,omitempty"`
		URL         string `json:"url,omitempty"`
		PublishedAt string `json:"published_at,omitempty"`
		Message     string `json:"message,omitempty"`
	}

	app := c.(*AppContext).App
	p, err := app.Store.CurrentPatch(c.Request().Context())
	if err != nil {
		if errors.Is(err, store.ErrNoPatches) {
			return c.JSON(http.StatusNotFound, currentPatchResponse{Message: "No patches ingested yet"})
		}
		logger.Error("current patch lookup failed", "err", err)
		return c.JSON(http.StatusInternalServerError, currentPatchResponse{Message: "Internal server error"})
	}
	return c.JSON(http.StatusOK, currentPatchResponse{
		ID:          p.ID,
		Title:       p.Title,
		URL:         p.URL,
		PublishedAt: p.PublishedAt,
	})
}

// ListAgentsHandler lists the known entity dictionary.
func ListAgentsHandler(c echo.Context) error {
	app := c.(*AppContext).App
	agents, err := app.Store.ListAgents(c.Request().Context())
	if err != nil {
		logger.Error("agent listing failed", "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Internal server error"})
	}
	return c.JSON(http.StatusOK, agents)
}
