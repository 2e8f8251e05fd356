// Package ai abstracts the optional answer generator. Retrieval is
// extractive and works without any model; when an adapter is
// configured, the retrieved contexts are rephrased into prose.
package ai

import (
	"context"
	"fmt"
	"strings"
)

// Generator produces a completion for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

const answerSystem = "You answer questions about game patch notes. " +
	"Use only the numbered changes provided; do not invent changes. " +
	"Cite the change numbers you used."

// AnswerPrompt assembles the grounding prompt for a generated answer.
func AnswerPrompt(question string, contexts []string) string {
	var b strings.Builder
	b.WriteString(answerSystem)
	b.WriteString("\n\nChanges:\n")
	for i, c := range contexts {
		fmt.Fprintf(&b, "%d. %s\n", i+1, c)
	}
	b.WriteString("\nQuestion: ")
	b.WriteString(question)
	b.WriteString("\nAnswer:")
	return b.String()
}
