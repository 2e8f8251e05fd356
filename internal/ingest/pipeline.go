// Package ingest wires the end-to-end pipeline: discover the current
// patch article, parse it, resolve entity mentions, write the JSON
// artifacts and project the result into the graph under a per-patch
// lease.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"patchsage/pkg/dictionary"
	"patchsage/pkg/fetch"
	"patchsage/pkg/graph"
	"patchsage/pkg/leaselock"
	"patchsage/pkg/linker"
	"patchsage/pkg/logger"
	"patchsage/pkg/parser"
	"patchsage/pkg/patch"
	"patchsage/pkg/store"
)

// Params select the pipeline's inputs. Exactly one patch source is
// used: HTMLFile, ArticleURL, or discovery from the tag page.
type Params struct {
	TagURL     string
	ArticleURL string
	HTMLFile   string

	AgentsFile string
	SkipAgents bool

	OutputDir string
	Wipe      bool

	LinkOpts linker.Options
}

// Stats summarizes one completed run.
type Stats struct {
	PatchID   string `json:"patch_id"`
	Sections  int    `json:"sections"`
	Changes   int    `json:"changes"`
	Agents    int    `json:"agents"`
	Mentions  int    `json:"mentions"`
	Degraded  bool   `json:"dictionary_degraded"`
	SourceURL string `json:"source_url"`
}

// Pipeline holds the pipeline's collaborators. Locks may be nil; the
// projection then runs unguarded, which is fine for single-process
// use and for tests.
type Pipeline struct {
	Fetcher *fetch.Fetcher
	Feed    *dictionary.Client
	Store   store.GraphStore
	Locks   *leaselock.Client

	LeaseTTL time.Duration
}

// Run executes the pipeline once.
func (p *Pipeline) Run(ctx context.Context, params Params) (*Stats, error) {
	data, sourceURL, err := p.loadArticle(ctx, params)
	if err != nil {
		return nil, err
	}

	doc, err := parser.Parse(data, sourceURL, parser.Options{ImplicitGeneralSection: true})
	if err != nil {
		return nil, fmt.Errorf("parse patch notes: %w", err)
	}
	logger.Info("parsed patch notes", "patch", doc.Patch.ID, "sections", len(doc.Sections))

	dict, agents, err := p.loadDictionary(ctx, params)
	if err != nil {
		return nil, err
	}
	if dict.IsDegraded() {
		logger.Warn("entity dictionary unavailable, ingesting without mentions", "patch", doc.Patch.ID)
	}

	mentions := linker.LinkDocument(doc, dict, params.LinkOpts)

	if params.OutputDir != "" {
		if err := p.writeArtifacts(params.OutputDir, doc, mentions, agents, dict.IsDegraded()); err != nil {
			return nil, err
		}
	}

	plan, err := graph.BuildPlan(doc, mentions, agents, graph.Options{Wipe: params.Wipe})
	if err != nil {
		return nil, fmt.Errorf("assemble projection plan: %w", err)
	}

	project := func(ctx context.Context) error {
		return p.Store.ProjectPatch(ctx, plan)
	}
	if p.Locks != nil {
		err = p.Locks.WithLease(ctx, leaselock.IngestKey(doc.Patch.ID), p.LeaseTTL, project)
	} else {
		err = project(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("project patch %s: %w", doc.Patch.ID, err)
	}

	stats := &Stats{
		PatchID:   doc.Patch.ID,
		Sections:  len(plan.Sections),
		Changes:   len(plan.Changes),
		Agents:    len(plan.Agents),
		Mentions:  len(plan.Mentions),
		Degraded:  dict.IsDegraded(),
		SourceURL: sourceURL,
	}
	logger.Info("projection complete",
		"patch", stats.PatchID,
		"sections", stats.Sections,
		"changes", stats.Changes,
		"mentions", stats.Mentions)
	return stats, nil
}

func (p *Pipeline) loadArticle(ctx context.Context, params Params) (data []byte, sourceURL string, err error) {
	switch {
	case params.HTMLFile != "":
		data, err = os.ReadFile(params.HTMLFile)
		if err != nil {
			return nil, "", fmt.Errorf("read html file: %w", err)
		}
		sourceURL = params.ArticleURL
		if sourceURL == "" {
			sourceURL = "file://" + params.HTMLFile
		}
		return data, sourceURL, nil

	case params.ArticleURL != "":
		data, err = p.Fetcher.Get(ctx, params.ArticleURL)
		if err != nil {
			return nil, "", err
		}
		return data, params.ArticleURL, nil

	default:
		article, err := p.Fetcher.CurrentPatch(ctx, params.TagURL)
		if err != nil {
			return nil, "", fmt.Errorf("discover current patch: %w", err)
		}
		logger.Info("discovered current patch", "title", article.Title, "url", article.URL)
		if params.OutputDir != "" {
			if err := writeJSON(filepath.Join(params.OutputDir, "current_patch.json"), article); err != nil {
				return nil, "", err
			}
		}
		data, err = p.Fetcher.Get(ctx, article.URL)
		if err != nil {
			return nil, "", err
		}
		return data, article.URL, nil
	}
}

// loadDictionary returns the entity dictionary and the agents that
// back it. A feed failure degrades instead of aborting the run.
func (p *Pipeline) loadDictionary(ctx context.Context, params Params) (*dictionary.Dictionary, []patch.Agent, error) {
	if params.SkipAgents {
		return dictionary.Degraded(), nil, nil
	}

	var (
		agents []patch.Agent
		err    error
	)
	if params.AgentsFile != "" {
		agents, err = dictionary.LoadFeedFile(params.AgentsFile)
	} else {
		agents, err = p.Feed.ListAgents(ctx)
	}
	if err != nil {
		if errors.Is(err, dictionary.ErrUnavailable) {
			return dictionary.Degraded(), nil, nil
		}
		return nil, nil, fmt.Errorf("load agents: %w", err)
	}
	return dictionary.Build(agents), agents, nil
}

func (p *Pipeline) writeArtifacts(dir string, doc *patch.Document, mentions []patch.Mention, agents []patch.Agent, degraded bool) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	patchDoc := struct {
		Patch    patch.Patch     `json:"patch"`
		Sections []patch.Section `json:"sections"`
		Mentions []patch.Mention `json:"mentions"`
	}{doc.Patch, doc.Sections, mentions}
	if err := writeJSON(filepath.Join(dir, "patch_"+doc.Patch.ID+".json"), patchDoc); err != nil {
		return err
	}

	if !degraded {
		if err := writeJSON(filepath.Join(dir, "agents.json"), dictionary.Feed{Agents: agents}); err != nil {
			return err
		}
	}
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}
