package llm

import (
	"fmt"
	"strings"
)

// FactExtractionPrompt generates a strict JSON-only prompt that turns a piece
// of narration into memory annotations.
//
// Parameters:
//   - text: the narration or player action to annotate
//   - kinds: the allowed memory kinds
func FactExtractionPrompt(text string, kinds []string) string {
	return fmt.Sprintf(`Annotate a story event. Return ONLY valid JSON, no markdown, no code blocks, no explanation.

Provide:
- kind: one of %s
- emotional_weight: number from 0.0 (mundane) to 1.0 (life-changing)
- emotions: array of lower-case emotion words felt in the scene (e.g. joy, fear, grief, anger, hope, wonder)
- themes: array of 1-4 lower-case story themes (e.g. betrayal, redemption, loyalty)
- participants: array of named characters present
- location: where it happened, or ""
- summary: one sentence restating the event in past tense

Event:
%s

Return ONLY JSON object, nothing else, no markdown:
{"kind":"...","emotional_weight":0.0,"emotions":[],"themes":[],"participants":[],"location":"","summary":"..."}`,
		strings.Join(kinds, ", "), text)
}

// NarrationPrompt assembles the narrator prompt for one player turn.
//
// Parameters:
//   - memoryContext: formatted recall output for the turn
//   - beats: titles and descriptions of the narrative events chosen for this turn
//   - playerInput: what the player said or did
func NarrationPrompt(memoryContext string, beats []string, playerInput string) string {
	var b strings.Builder
	b.WriteString("You are the narrator of an ongoing solo story. Stay consistent with what has happened before.\n\n")
	if memoryContext != "" {
		b.WriteString(memoryContext)
		b.WriteString("\n\n")
	}
	if len(beats) > 0 {
		b.WriteString("## Weave in, without forcing it\n")
		for _, beat := range beats {
			b.WriteString("- ")
			b.WriteString(beat)
			b.WriteByte('\n')
		}
		b.WriteByte('\n')
	}
	b.WriteString("## Player\n")
	b.WriteString(strings.TrimSpace(playerInput))
	b.WriteString("\n\n## Narrator\n")
	return b.String()
}
