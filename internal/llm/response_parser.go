package llm

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// FactsResponse is the LLM's annotation of one story event.
type FactsResponse struct {
	Kind            string   `json:"kind"`
	EmotionalWeight float64  `json:"emotional_weight"`
	Emotions        []string `json:"emotions"`
	Themes          []string `json:"themes"`
	Participants    []string `json:"participants"`
	Location        string   `json:"location"`
	Summary         string   `json:"summary"`
}

// extractJSON extracts the first valid JSON object from a string that may contain extra text.
// This handles cases where LLMs add explanations before/after the JSON despite instructions.
func extractJSON(text string) string {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	text = strings.TrimSpace(text)

	start := strings.Index(text, "{")
	if start == -1 {
		return text
	}

	depth := 0
	inString := false
	escape := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if escape {
			escape = false
			continue
		}
		switch {
		case c == '\\':
			escape = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return text
}

// ParseFactsResponse parses a fact-extraction reply. Out-of-range weights are
// clamped and blank list entries dropped; only malformed JSON is an error.
// Kind is returned as-is for the caller to validate.
func ParseFactsResponse(reply string) (*FactsResponse, error) {
	var resp FactsResponse
	if err := json.Unmarshal([]byte(extractJSON(reply)), &resp); err != nil {
		return nil, fmt.Errorf("failed to parse facts response: %w", err)
	}
	resp.Kind = strings.ToLower(strings.TrimSpace(resp.Kind))
	if math.IsNaN(resp.EmotionalWeight) {
		resp.EmotionalWeight = 0
	}
	resp.EmotionalWeight = math.Min(math.Max(resp.EmotionalWeight, 0), 1)
	resp.Emotions = compact(resp.Emotions)
	resp.Themes = compact(resp.Themes)
	resp.Participants = compact(resp.Participants)
	resp.Location = strings.TrimSpace(resp.Location)
	resp.Summary = strings.TrimSpace(resp.Summary)
	return &resp, nil
}

func compact(items []string) []string {
	out := items[:0]
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
