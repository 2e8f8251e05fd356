// Package dictionary builds the static entity lookup used by the
// linker and the retrieval router. The dictionary is a plain value,
// built once per ingestion run and passed in explicitly, so tests and
// pipelines can supply a fixed vocabulary deterministically.
package dictionary

import (
	"errors"
	"sort"
	"strings"

	"patchsage/internal/util"
	"patchsage/pkg/patch"
)

// ErrUnavailable indicates the dictionary feed could not be reached or
// decoded. Linking degrades to producing no mentions; ingestion itself
// must not be aborted by this error.
var ErrUnavailable = errors.New("entity dictionary unavailable")

// Entry is one known entity together with its surface forms: the
// display name plus each ability display name.
type Entry struct {
	Agent patch.Agent
	Forms []string
}

// Dictionary maps known entities to their surface forms. A degraded
// dictionary is observably different from a legitimately empty one.
type Dictionary struct {
	entries  []Entry
	degraded bool
}

// Build constructs a dictionary from the agent feed. Surface forms are
// the agent's aliases (name + ability names); agents without a usable
// identifier or name are skipped.
func Build(agents []patch.Agent) *Dictionary {
	d := &Dictionary{}
	for _, agent := range agents {
		if agent.ID == "" || agent.Name == "" {
			continue
		}
		forms := agent.Aliases
		if len(forms) == 0 {
			forms = append([]string{agent.Name}, agent.Abilities...)
		}
		kept := make([]string, 0, len(forms))
		seen := make(map[string]bool, len(forms))
		for _, form := range forms {
			form = util.NormalizeSpace(form)
			key := strings.ToLower(form)
			if form == "" || seen[key] {
				continue
			}
			seen[key] = true
			kept = append(kept, form)
		}
		if len(kept) == 0 {
			continue
		}
		sort.Slice(kept, func(i, j int) bool {
			return strings.ToLower(kept[i]) < strings.ToLower(kept[j])
		})
		d.entries = append(d.entries, Entry{Agent: agent, Forms: kept})
	}
	sort.Slice(d.entries, func(i, j int) bool {
		return strings.ToLower(d.entries[i].Agent.Name) < strings.ToLower(d.entries[j].Agent.Name)
	})
	return d
}

// Degraded returns an empty dictionary that reports itself as
// degraded. Used when the feed is unavailable so that "no mentions
// because the vocabulary was missing" is distinguishable from "no
// mentions in the text".
func Degraded() *Dictionary {
	return &Dictionary{degraded: true}
}

// Entries returns the dictionary's entries in stable name order.
func (d *Dictionary) Entries() []Entry {
	if d == nil {
		return nil
	}
	return d.entries
}

// Len reports the number of known entities.
func (d *Dictionary) Len() int {
	if d == nil {
		return 0
	}
	return len(d.entries)
}

// IsDegraded reports whether the dictionary was substituted after a
// feed failure.
func (d *Dictionary) IsDegraded() bool {
	return d != nil && d.degraded
}
