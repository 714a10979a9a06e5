package engine

import (
	"fmt"
	"slices"
	"strings"
	"unicode"
)

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {}, "but": {}, "by": {},
	"did": {}, "do": {}, "for": {}, "from": {}, "had": {}, "has": {}, "have": {}, "he": {},
	"her": {}, "him": {}, "his": {}, "how": {}, "i": {}, "in": {}, "into": {}, "is": {}, "it": {},
	"its": {}, "me": {}, "my": {}, "no": {}, "not": {}, "of": {}, "on": {}, "or": {}, "our": {},
	"she": {}, "so": {}, "some": {}, "than": {}, "that": {}, "the": {}, "their": {}, "them": {},
	"then": {}, "there": {}, "they": {}, "this": {}, "to": {}, "up": {}, "us": {}, "was": {},
	"we": {}, "were": {}, "what": {}, "when": {}, "where": {}, "which": {}, "who": {}, "why": {},
	"will": {}, "with": {}, "you": {}, "your": {},
}

// suffixes are stripped longest first; a stem must keep at least three runes.
var suffixes = []string{"ments", "ment", "ness", "ings", "ing", "als", "al", "ies", "ied", "ed", "es", "s"}

// tokenize lower-cases text, splits it on anything that is not a letter or
// digit, drops stopwords and one-rune fragments, and stems what is left.
// The result is a sorted set.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len([]rune(f)) < 2 {
			continue
		}
		if _, stop := stopwords[f]; stop {
			continue
		}
		out = append(out, stem(f))
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func stem(word string) string {
	for _, suf := range suffixes {
		base, ok := strings.CutSuffix(word, suf)
		if !ok || len([]rune(base)) < 3 {
			continue
		}
		if suf == "ies" || suf == "ied" {
			return base + "y"
		}
		return base
	}
	return word
}

// recordTokens covers everything a query may reasonably hit: the content,
// both tag sets and the scalar payload values.
func recordTokens(content string, emotional, thematic []string, payload map[string]any) []string {
	var b strings.Builder
	b.WriteString(content)
	for _, t := range emotional {
		b.WriteByte(' ')
		b.WriteString(t)
	}
	for _, t := range thematic {
		b.WriteByte(' ')
		b.WriteString(t)
	}
	for _, v := range payload {
		switch v := v.(type) {
		case string:
			b.WriteByte(' ')
			b.WriteString(v)
		case []string:
			b.WriteByte(' ')
			b.WriteString(strings.Join(v, " "))
		case []any:
			for _, item := range v {
				b.WriteByte(' ')
				b.WriteString(fmt.Sprint(item))
			}
		}
	}
	return tokenize(b.String())
}

// overlaps reports whether two sorted token sets share an element.
func overlaps(a, b []string) bool {
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch strings.Compare(a[i], b[j]) {
		case 0:
			return true
		case -1:
			i++
		default:
			j++
		}
	}
	return false
}

// estimateTokens approximates the prompt cost of s at 2.5 runes per token,
// with a floor of 8 for any non-empty line.
func estimateTokens(s string) int {
	runes := len([]rune(s))
	if runes == 0 {
		return 0
	}
	return max(runes*2/5, 8)
}
