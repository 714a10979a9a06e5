package llm

import (
	"fmt"
	"time"
)

// ProviderConfig selects and configures a TextGenerator backend.
type ProviderConfig struct {
	Provider          string // "ollama" (default) or "none"
	BaseURL           string
	Model             string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
}

// NewTextGenerator creates the TextGenerator for cfg. Provider "none" returns
// (nil, nil): callers then run without a narrator backend and fall back to
// deterministic extraction.
func NewTextGenerator(cfg ProviderConfig) (TextGenerator, error) {
	switch cfg.Provider {
	case "ollama", "":
		return NewOllamaClient(OllamaConfig{
			BaseURL:           cfg.BaseURL,
			Model:             cfg.Model,
			Timeout:           cfg.Timeout,
			RequestsPerSecond: cfg.RequestsPerSecond,
			Burst:             cfg.Burst,
		}), nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %q", cfg.Provider)
	}
}
