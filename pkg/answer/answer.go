// Package answer renders a retrieval result into the plain-text reply
// shown by the CLI and returned by the API.
package answer

import (
	"fmt"
	"strings"

	"patchsage/pkg/query"
)

const maxSources = 3

// Format renders the result. An empty result produces a hint instead
// of an empty string.
func Format(question string, result *query.Result) string {
	if result == nil || len(result.Contexts) == 0 {
		return fmt.Sprintf(
			"No matching changes were found for: %s\n"+
				"Try using an agent name (for example: Reyna, Harbor, Jett) or a topic like UI or gameplay.",
			question)
	}

	var lines []string
	lines = append(lines, "Question: "+question)
	if len(result.MatchedAgents) > 0 {
		names := make([]string, 0, len(result.MatchedAgents))
		for _, agent := range result.MatchedAgents {
			names = append(names, agent.Name)
		}
		lines = append(lines, "Detected agent(s): "+strings.Join(names, ", "))
	}

	lines = append(lines, fmt.Sprintf("Top %d change(s):", len(result.Contexts)))
	for i, c := range result.Contexts {
		lines = append(lines, fmt.Sprintf("%d. [%s] %s: %s", i+1, c.PatchID, c.SectionName, c.Text))
	}

	var sources []string
	seen := make(map[string]bool)
	for _, c := range result.Contexts {
		if c.SourceURL == "" || seen[c.SourceURL] {
			continue
		}
		seen[c.SourceURL] = true
		sources = append(sources, c.SourceURL)
	}
	if len(sources) > 0 {
		lines = append(lines, "Sources:")
		if len(sources) > maxSources {
			sources = sources[:maxSources]
		}
		for _, url := range sources {
			lines = append(lines, "- "+url)
		}
	}

	return strings.Join(lines, "\n")
}
