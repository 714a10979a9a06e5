package notes

import (
	"regexp"
	"strings"
)

// wikilinkRe matches [[target]] and [[target|alias]].
var wikilinkRe = regexp.MustCompile(`\[\[([^\[\]|]+?)(?:\|([^\[\]]+?))?\]\]`)

// WikiLink is one parsed [[wiki-link]].
type WikiLink struct {
	// Target is the linked page, usually a character or place.
	Target string
	// Alias is the display text of [[target|alias]], empty otherwise.
	Alias string
}

// ExtractWikiLinks returns the links in content, deduplicated by target
// (case-insensitive) in order of first appearance.
func ExtractWikiLinks(content string) []WikiLink {
	seen := make(map[string]bool)
	var links []WikiLink
	for _, m := range wikilinkRe.FindAllStringSubmatch(content, -1) {
		target := strings.TrimSpace(m[1])
		key := strings.ToLower(target)
		if target == "" || seen[key] {
			continue
		}
		seen[key] = true
		links = append(links, WikiLink{Target: target, Alias: strings.TrimSpace(m[2])})
	}
	return links
}

// StripWikiLinks replaces links with their alias, or their target when
// there is none.
func StripWikiLinks(content string) string {
	return wikilinkRe.ReplaceAllStringFunc(content, func(match string) string {
		parts := wikilinkRe.FindStringSubmatch(match)
		if alias := strings.TrimSpace(parts[2]); alias != "" {
			return alias
		}
		return strings.TrimSpace(parts[1])
	})
}
