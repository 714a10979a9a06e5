package engine

import (
	"fmt"
	"strings"
)

const contextHeader = "## Story so far"

// ContextBlock is the prompt-ready rendering of recalled records.
type ContextBlock struct {
	Text     string         `json:"text"`
	Included []ScoredRecord `json:"included"`
	Omitted  int            `json:"omitted"`
	Tokens   int            `json:"tokens"` // Estimated, line by line
}

// FormatForContext renders records, in the order given, into a compact text
// block. When the estimated size exceeds budgetTokens, whole records are
// dropped, least significant first (the later one on equal significance),
// and a trailing line states how many were left out. A budget <= 0 means
// unlimited. Output depends only on the input.
func FormatForContext(records []ScoredRecord, budgetTokens int) ContextBlock {
	if len(records) == 0 {
		return ContextBlock{}
	}
	lines := make([]string, len(records))
	cost := make([]int, len(records))
	total := estimateTokens(contextHeader)
	for i, sr := range records {
		lines[i] = formatLine(sr)
		cost[i] = estimateTokens(lines[i])
		total += cost[i]
	}

	kept := make([]bool, len(records))
	for i := range kept {
		kept[i] = true
	}
	omitted := 0
	if budgetTokens > 0 {
		for total > budgetTokens && omitted < len(records) {
			drop := -1
			for i := range records {
				if !kept[i] {
					continue
				}
				if drop < 0 || records[i].Significance <= records[drop].Significance {
					drop = i
				}
			}
			if omitted == 0 {
				total += estimateTokens(omittedLine(len(records)))
			}
			kept[drop] = false
			total -= cost[drop]
			omitted++
		}
	}

	var b strings.Builder
	b.WriteString(contextHeader)
	block := ContextBlock{Omitted: omitted, Tokens: total}
	for i, sr := range records {
		if !kept[i] {
			continue
		}
		b.WriteByte('\n')
		b.WriteString(lines[i])
		block.Included = append(block.Included, sr)
	}
	if omitted > 0 {
		b.WriteByte('\n')
		b.WriteString(omittedLine(omitted))
	}
	block.Text = b.String()
	return block
}

func formatLine(sr ScoredRecord) string {
	r := sr.Record
	var b strings.Builder
	fmt.Fprintf(&b, "- [%s|%s|%.2f] %s", r.Layer, r.Kind, sr.Significance, strings.Join(strings.Fields(r.Content), " "))
	if len(r.EmotionalTags) > 0 {
		fmt.Fprintf(&b, " (feelings: %s)", strings.Join(r.EmotionalTags, ", "))
	}
	if len(r.ThematicTags) > 0 {
		fmt.Fprintf(&b, " (themes: %s)", strings.Join(r.ThematicTags, ", "))
	}
	if r.OwnerID != "" {
		fmt.Fprintf(&b, " (by %s)", r.OwnerID)
	}
	return b.String()
}

func omittedLine(n int) string {
	if n == 1 {
		return "(1 lower-significance memory omitted)"
	}
	return fmt.Sprintf("(%d lower-significance memories omitted)", n)
}
