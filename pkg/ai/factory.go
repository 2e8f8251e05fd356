package ai

import (
	"fmt"

	"patchsage/internal/util"
	"patchsage/pkg/ai/ollama"
	"patchsage/pkg/ai/openai"
)

// FromEnv builds the generator selected by AI_ADAPTER. Returns
// (nil, nil) when no adapter is configured; answers then stay
// extractive.
func FromEnv() (Generator, error) {
	switch adapter := util.GetEnvString("AI_ADAPTER", ""); adapter {
	case "":
		return nil, nil
	case "ollama":
		return ollama.New(ollama.Params{
			Model:   util.GetEnvString("OLLAMA_MODEL", "llama3.1"),
			BaseURL: util.GetEnvString("OLLAMA_URL", ""),
			ApiKey:  util.GetEnvString("OLLAMA_API_KEY", ""),
		})
	case "openai":
		return openai.New(openai.Params{
			Model:   util.GetEnvString("OPENAI_MODEL", "gpt-4o-mini"),
			BaseURL: util.GetEnvString("OPENAI_BASE_URL", ""),
			ApiKey:  util.GetEnvString("OPENAI_API_KEY", ""),
		})
	default:
		return nil, fmt.Errorf("unknown AI_ADAPTER %q", adapter)
	}
}
