// Package llm talks to the external generative-text service. The continuity
// core never calls it directly; collaborators use it to narrate turns and,
// optionally, to extract structured facts from narration.
package llm

import "context"

// TextGenerator is the interface for LLM text completion.
// All prompts use single-string completion style (not chat).
type TextGenerator interface {
	Complete(ctx context.Context, prompt string) (string, error)
	GetModel() string
}
