package patch

import "fmt"

// Document is one fully parsed patch-notes article: the Patch metadata
// plus its ordered Sections and their ordered Changes. It is the unit
// that the projector writes to the graph store in a single transaction.
//
// A Document forms a strict tree: every Change belongs to exactly one
// Section and every Section to exactly one Patch.
type Document struct {
	Patch    Patch     `json:"patch"`
	Sections []Section `json:"sections"`
}

// Patch identifies one versioned release of patch notes.
type Patch struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	PublishedAt string `json:"published_at,omitempty"`
}

// Section is a named, ordered grouping of Changes within a Patch,
// mapped from one document heading. Order is the zero-based position
// of the heading in the source document and is stable across re-parses.
type Section struct {
	Name    string   `json:"name"`
	Order   int      `json:"order"`
	Changes []Change `json:"changes"`
}

// Change is one atomic, citable bullet or paragraph of patch text.
// Its ID is derived from structural position only (patch id, section
// order, in-section index), never from the text itself, so re-parsing
// the same document yields the same IDs.
type Change struct {
	ID          string `json:"id"`
	Text        string `json:"text"`
	SectionName string `json:"section_name"`
	SourceURL   string `json:"source_url"`
	Order       int    `json:"order"`
}

// Agent is a known game entity used as a linking target. Agents come
// from the external dictionary feed, not from patch text, and outlive
// any particular Patch.
type Agent struct {
	ID        string   `json:"uuid"`
	Name      string   `json:"name"`
	Role      string   `json:"role,omitempty"`
	IconURL   string   `json:"icon_url,omitempty"`
	Abilities []string `json:"abilities"`
	Aliases   []string `json:"aliases"`
}

// MatchMethod tags how a surface form matched a span of text.
type MatchMethod string

const (
	MatchExact     MatchMethod = "exact"
	MatchSubstring MatchMethod = "substring"
	MatchFuzzy     MatchMethod = "fuzzy"
)

// Mention is a scored association between a Change and an Agent.
// Only matches that cleared the configured confidence threshold are
// ever materialized as Mentions.
type Mention struct {
	ChangeID   string      `json:"change_id"`
	AgentID    string      `json:"entity_id"`
	Method     MatchMethod `json:"method"`
	Confidence float64     `json:"confidence"`
}

// ChangeID builds the deterministic positional identifier for a Change.
func ChangeID(patchID string, sectionOrder, changeIndex int) string {
	return fmt.Sprintf("%s-s%d-c%d", patchID, sectionOrder, changeIndex)
}

// SectionID builds the deterministic positional identifier for a Section.
func SectionID(patchID string, sectionOrder int) string {
	return fmt.Sprintf("%s-s%d", patchID, sectionOrder)
}
