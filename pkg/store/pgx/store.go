// Package pgx implements the graph store on PostgreSQL. Projection is
// a single transaction with full-replace semantics per patch; the
// full-text fallback runs over a weighted tsvector column maintained
// by the schema.
package pgx

import (
	"context"
	"fmt"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"patchsage/internal/util"
	"patchsage/pkg/graph"
	"patchsage/pkg/patch"
	"patchsage/pkg/store"
)

type pgxConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgxv5.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgxv5.Row
	Begin(ctx context.Context) (pgxv5.Tx, error)
}

// Store is the PostgreSQL-backed graph store.
type Store struct {
	conn pgxConn
	pool *pgxpool.Pool
}

// New connects a pool, verifies it with a ping and returns the store.
func New(ctx context.Context, connString string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{conn: pool, pool: pool}, nil
}

// NewWithConnection wraps an existing connection, mainly for tests.
func NewWithConnection(conn pgxConn) *Store {
	return &Store{conn: conn}
}

// Pool exposes the underlying pool for components that need raw
// access, such as the ingest lease.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// Close releases the pool if this store owns one.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// ProjectPatch applies the plan in one transaction: delete the patch's
// subgraph (or every patch when the plan requests a wipe), upsert the
// agents, then insert the patch tree and its mentions.
func (s *Store) ProjectPatch(ctx context.Context, plan *graph.Plan) error {
	if plan == nil {
		return fmt.Errorf("project patch: nil plan")
	}

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin projection: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if plan.Wipe {
		if _, err := tx.Exec(ctx, `DELETE FROM patches`); err != nil {
			return fmt.Errorf("wipe patches: %w", err)
		}
	} else {
		if _, err := tx.Exec(ctx, `DELETE FROM patches WHERE id = $1`, plan.Patch.ID); err != nil {
			return fmt.Errorf("replace patch %s: %w", plan.Patch.ID, err)
		}
	}

	for _, agent := range plan.Agents {
		_, err := tx.Exec(ctx, `
			INSERT INTO agents (id, name, role, icon_url, abilities, aliases)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO UPDATE
			SET name = EXCLUDED.name,
			    role = EXCLUDED.role,
			    icon_url = EXCLUDED.icon_url,
			    abilities = EXCLUDED.abilities,
			    aliases = EXCLUDED.aliases
		`, agent.ID, agent.Name, agent.Role, agent.IconURL, agent.Abilities, agent.Aliases)
		if err != nil {
			return fmt.Errorf("upsert agent %s: %w", agent.ID, err)
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO patches (id, title, url, published_at)
		VALUES ($1, $2, $3, $4)
	`, plan.Patch.ID, plan.Patch.Title, plan.Patch.URL, plan.Patch.PublishedAt)
	if err != nil {
		return fmt.Errorf("insert patch %s: %w", plan.Patch.ID, err)
	}

	for _, section := range plan.Sections {
		_, err := tx.Exec(ctx, `
			INSERT INTO sections (id, patch_id, name, ord)
			VALUES ($1, $2, $3, $4)
		`, patch.SectionID(plan.Patch.ID, section.Order), plan.Patch.ID, section.Name, section.Order)
		if err != nil {
			return fmt.Errorf("insert section %q: %w", section.Name, err)
		}
	}

	for _, section := range plan.Sections {
		sectionID := patch.SectionID(plan.Patch.ID, section.Order)
		for _, change := range section.Changes {
			_, err := tx.Exec(ctx, `
				INSERT INTO changes (id, section_id, patch_id, section_name, ord, body, source_url)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
			`, change.ID, sectionID, plan.Patch.ID, change.SectionName, change.Order, util.SanitizePostgresText(change.Text), change.SourceURL)
			if err != nil {
				return fmt.Errorf("insert change %s: %w", change.ID, err)
			}
		}
	}

	for _, m := range plan.Mentions {
		_, err := tx.Exec(ctx, `
			INSERT INTO mentions (change_id, agent_id, method, confidence)
			VALUES ($1, $2, $3, $4)
		`, m.ChangeID, m.AgentID, string(m.Method), m.Confidence)
		if err != nil {
			return fmt.Errorf("insert mention %s -> %s: %w", m.ChangeID, m.AgentID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit projection: %w", err)
	}
	return nil
}

// ListAgents returns every agent in the graph, ordered by name.
func (s *Store) ListAgents(ctx context.Context) ([]patch.Agent, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT id, name, role, icon_url, abilities, aliases
		FROM agents
		ORDER BY lower(name)
	`)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var agents []patch.Agent
	for rows.Next() {
		var a patch.Agent
		if err := rows.Scan(&a.ID, &a.Name, &a.Role, &a.IconURL, &a.Abilities, &a.Aliases); err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

// currentPatchIDSQL selects the id of the most recent patch. Both
// retrieval queries scope on it so answers never mix changes from
// patches that coexist in the graph.
const currentPatchIDSQL = `(SELECT id FROM patches ORDER BY published_at DESC, ingested_at DESC LIMIT 1)`

// CurrentPatch returns the most recently ingested patch.
func (s *Store) CurrentPatch(ctx context.Context) (patch.Patch, error) {
	var p patch.Patch
	err := s.conn.QueryRow(ctx, `
		SELECT id, title, url, published_at
		FROM patches
		WHERE id = `+currentPatchIDSQL+`
	`).Scan(&p.ID, &p.Title, &p.URL, &p.PublishedAt)
	if err != nil {
		if err == pgxv5.ErrNoRows {
			return patch.Patch{}, store.ErrNoPatches
		}
		return patch.Patch{}, fmt.Errorf("current patch: %w", err)
	}
	return p, nil
}

// ChangesByAgents walks the graph from agents to their mentioned
// changes in the current patch. Highest mention confidence first,
// then document order.
func (s *Store) ChangesByAgents(ctx context.Context, agentIDs []string, limit int) ([]store.Hit, error) {
	if len(agentIDs) == 0 {
		return nil, nil
	}
	rows, err := s.conn.Query(ctx, `
		SELECT c.id, c.body, c.section_name, c.source_url, c.ord,
		       c.patch_id, s.ord, m.agent_id, m.method, m.confidence
		FROM mentions m
		JOIN changes c ON c.id = m.change_id
		JOIN sections s ON s.id = c.section_id
		WHERE m.agent_id = ANY($1)
		  AND c.patch_id = `+currentPatchIDSQL+`
		ORDER BY m.confidence DESC, s.ord ASC, c.ord ASC
		LIMIT $2
	`, agentIDs, limit)
	if err != nil {
		return nil, fmt.Errorf("changes by agents: %w", err)
	}
	defer rows.Close()
	return scanHits(rows, true)
}

// SearchChanges is the full-text fallback over the current patch.
// Change bodies weigh more than section names; rank order breaks ties
// by document order.
func (s *Store) SearchChanges(ctx context.Context, query string, limit int) ([]store.Hit, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT c.id, c.body, c.section_name, c.source_url, c.ord,
		       c.patch_id, s.ord,
		       ts_rank(c.search, websearch_to_tsquery('english', $1)) AS rank
		FROM changes c
		JOIN sections s ON s.id = c.section_id
		WHERE c.search @@ websearch_to_tsquery('english', $1)
		  AND c.patch_id = `+currentPatchIDSQL+`
		ORDER BY rank DESC, s.ord ASC, c.ord ASC
		LIMIT $2
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search changes: %w", err)
	}
	defer rows.Close()
	return scanHits(rows, false)
}

func scanHits(rows pgxv5.Rows, withMention bool) ([]store.Hit, error) {
	var hits []store.Hit
	for rows.Next() {
		var h store.Hit
		var err error
		if withMention {
			var method string
			err = rows.Scan(&h.Change.ID, &h.Change.Text, &h.Change.SectionName, &h.Change.SourceURL,
				&h.Change.Order, &h.PatchID, &h.SectionOrder, &h.AgentID, &method, &h.Confidence)
			h.Method = patch.MatchMethod(method)
		} else {
			err = rows.Scan(&h.Change.ID, &h.Change.Text, &h.Change.SectionName, &h.Change.SourceURL,
				&h.Change.Order, &h.PatchID, &h.SectionOrder, &h.Confidence)
		}
		if err != nil {
			return nil, fmt.Errorf("scan hit: %w", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}
