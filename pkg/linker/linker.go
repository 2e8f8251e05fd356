// Package linker resolves entity mentions in free text against a
// dictionary of known entities. Matching runs over a normalized token
// stream in three tiers of decreasing confidence: exact whole-token,
// substring, and fuzzy. The same matcher serves both ingestion (change
// texts) and retrieval (user questions).
package linker

import (
	"sort"
	"strings"

	"patchsage/internal/util"
	"patchsage/pkg/dictionary"
	"patchsage/pkg/patch"
)

const (
	// DefaultFuzzyThreshold is the minimum normalized similarity a
	// fuzzy candidate must reach to count as a match.
	DefaultFuzzyThreshold = 0.88

	// minFormLength is the minimum length, in normalized characters,
	// a surface form must have to participate in substring or fuzzy
	// matching. Short forms still match at the exact tier.
	minFormLength = 3

	substringConfidence = 0.85
)

// Options tune the matcher. The zero value selects the defaults.
type Options struct {
	// FuzzyThreshold overrides DefaultFuzzyThreshold when > 0.
	FuzzyThreshold float64

	// DisableFuzzy turns the fuzzy tier off entirely.
	DisableFuzzy bool
}

func (o Options) threshold() float64 {
	if o.FuzzyThreshold > 0 {
		return o.FuzzyThreshold
	}
	return DefaultFuzzyThreshold
}

// Match is one resolved entity occurrence in a piece of text.
type Match struct {
	Agent      patch.Agent
	Form       string
	Method     patch.MatchMethod
	Confidence float64

	// start and end are the matched token span in the normalized
	// text, used to resolve overlaps between entities.
	start, end int
}

// Link finds all entities from dict mentioned in text. Each entity
// contributes at most one match, taken from the highest tier that
// fires for any of its surface forms. When two entities match
// overlapping spans, only the longer surface form survives; equal
// lengths keep both.
func Link(text string, dict *dictionary.Dictionary, opts Options) []Match {
	tokens := strings.Fields(util.NormalizeForMatch(text))
	if len(tokens) == 0 || dict.Len() == 0 {
		return nil
	}
	joined := strings.Join(tokens, " ")

	var matches []Match
	for _, entry := range dict.Entries() {
		if m, ok := matchEntry(tokens, joined, entry, opts); ok {
			matches = append(matches, m)
		}
	}
	return resolveOverlaps(matches)
}

// LinkChange resolves mentions for a single change and stamps them
// with the change identifier.
func LinkChange(change patch.Change, dict *dictionary.Dictionary, opts Options) []patch.Mention {
	var mentions []patch.Mention
	for _, m := range Link(change.Text, dict, opts) {
		mentions = append(mentions, patch.Mention{
			ChangeID:   change.ID,
			AgentID:    m.Agent.ID,
			Method:     m.Method,
			Confidence: m.Confidence,
		})
	}
	return mentions
}

// LinkDocument resolves mentions for every change in the document, in
// section then change order.
func LinkDocument(doc *patch.Document, dict *dictionary.Dictionary, opts Options) []patch.Mention {
	var mentions []patch.Mention
	for _, section := range doc.Sections {
		for _, change := range section.Changes {
			mentions = append(mentions, LinkChange(change, dict, opts)...)
		}
	}
	return mentions
}

// matchEntry tries each tier in priority order across all of the
// entry's surface forms and returns the single best match. A hit at a
// higher tier short-circuits the lower tiers for this entity.
func matchEntry(tokens []string, joined string, entry dictionary.Entry, opts Options) (Match, bool) {
	type candidate struct {
		form       string
		normalized string
		words      []string
	}
	candidates := make([]candidate, 0, len(entry.Forms))
	for _, form := range entry.Forms {
		normalized := util.NormalizeForMatch(form)
		words := strings.Fields(normalized)
		if len(words) == 0 {
			continue
		}
		candidates = append(candidates, candidate{form: form, normalized: strings.Join(words, " "), words: words})
	}

	for _, c := range candidates {
		if start, ok := findTokenRun(tokens, c.words); ok {
			return Match{
				Agent:      entry.Agent,
				Form:       c.form,
				Method:     patch.MatchExact,
				Confidence: 1.0,
				start:      start,
				end:        start + len(c.words),
			}, true
		}
	}

	for _, c := range candidates {
		if compactLen(c.normalized) < minFormLength {
			continue
		}
		if start, end, ok := findSubstringSpan(joined, c.normalized); ok {
			return Match{
				Agent:      entry.Agent,
				Form:       c.form,
				Method:     patch.MatchSubstring,
				Confidence: substringConfidence,
				start:      start,
				end:        end,
			}, true
		}
	}

	if opts.DisableFuzzy {
		return Match{}, false
	}

	threshold := opts.threshold()
	best := Match{Confidence: -1}
	for _, c := range candidates {
		if compactLen(c.normalized) < minFormLength {
			continue
		}
		window := len(c.words)
		for start := 0; start+window <= len(tokens); start++ {
			score := similarity(strings.Join(tokens[start:start+window], " "), c.normalized)
			if score >= threshold && score > best.Confidence {
				best = Match{
					Agent:      entry.Agent,
					Form:       c.form,
					Method:     patch.MatchFuzzy,
					Confidence: score,
					start:      start,
					end:        start + window,
				}
			}
		}
	}
	if best.Confidence >= 0 {
		return best, true
	}
	return Match{}, false
}

// findTokenRun locates the first occurrence of words as a contiguous
// whole-token run within tokens.
func findTokenRun(tokens, words []string) (int, bool) {
	for start := 0; start+len(words) <= len(tokens); start++ {
		hit := true
		for i, word := range words {
			if tokens[start+i] != word {
				hit = false
				break
			}
		}
		if hit {
			return start, true
		}
	}
	return 0, false
}

// findSubstringSpan locates form as a raw substring of the space
// joined token stream and converts the byte range back to a token
// span.
func findSubstringSpan(joined, form string) (start, end int, ok bool) {
	idx := strings.Index(joined, form)
	if idx < 0 {
		return 0, 0, false
	}
	start = strings.Count(joined[:idx], " ")
	end = start + strings.Count(form, " ") + 1
	return start, end, true
}

// resolveOverlaps drops matches whose token span overlaps a strictly
// longer match. Length compares span width first, then surface form
// length; exact ties keep both matches.
func resolveOverlaps(matches []Match) []Match {
	kept := make([]Match, 0, len(matches))
	for i, m := range matches {
		dominated := false
		for j, other := range matches {
			if i == j || m.start >= other.end || other.start >= m.end {
				continue
			}
			if spanLonger(other, m) {
				dominated = true
				break
			}
		}
		if !dominated {
			kept = append(kept, m)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].start != kept[j].start {
			return kept[i].start < kept[j].start
		}
		return strings.ToLower(kept[i].Agent.Name) < strings.ToLower(kept[j].Agent.Name)
	})
	return kept
}

func spanLonger(a, b Match) bool {
	if a.end-a.start != b.end-b.start {
		return a.end-a.start > b.end-b.start
	}
	return compactLen(util.NormalizeForMatch(a.Form)) > compactLen(util.NormalizeForMatch(b.Form))
}

// compactLen counts the non-space characters of a normalized form.
func compactLen(s string) int {
	n := 0
	for _, r := range s {
		if r != ' ' {
			n++
		}
	}
	return n
}

// similarity is the normalized Levenshtein similarity between two
// strings: 1 - distance/max(len). Identical strings score 1, fully
// disjoint strings score 0.
func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	ra, rb := []rune(a), []rune(b)
	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein(ra, rb))/float64(longest)
}

func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
