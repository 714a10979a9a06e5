// Package notes reads Markdown session notes, the kind a game master keeps
// in Obsidian or a plain folder, and turns them into entries that can be
// recorded as narration.
//
// A note may start with YAML frontmatter:
//
//	---
//	campaign: north
//	session: "3"
//	owner: narrator
//	date: 2026-03-14
//	location: Salt Gate
//	tags: [betrayal, winter]
//	---
//
// Every paragraph and every list item of the body becomes one entry.
// Headings, fenced code and horizontal rules are skipped. [[Wiki links]]
// name participants, inline #tags add themes.
package notes

import (
	"bufio"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Document is one parsed note.
type Document struct {
	Path string `json:"path"`
	// Campaign is the campaign the note belongs to, empty when the note does
	// not say.
	Campaign string    `json:"campaign,omitempty"`
	Session  string    `json:"session"`
	Owner    string    `json:"owner,omitempty"`
	Location string    `json:"location,omitempty"`
	Date     time.Time `json:"date,omitzero"`
	Tags     []string  `json:"tags,omitempty"`
	Entries  []Entry   `json:"entries"`
}

// Entry is one paragraph or list item.
type Entry struct {
	Text         string   `json:"text"`
	Themes       []string `json:"themes,omitempty"`
	Participants []string `json:"participants,omitempty"`
}

// frontmatter lists the keys a note may set. Unknown keys are ignored.
type frontmatter struct {
	Campaign string `yaml:"campaign"`
	Session  string `yaml:"session"`
	Owner    string `yaml:"owner"`
	Location string `yaml:"location"`
	Date     string `yaml:"date"`
	Tags     tags   `yaml:"tags"`
}

// tags accepts both a YAML list and a comma-separated string.
type tags []string

func (t *tags) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.SequenceNode:
		var list []string
		if err := n.Decode(&list); err != nil {
			return err
		}
		*t = cleanTags(list)
	case yaml.ScalarNode:
		*t = cleanTags(strings.Split(n.Value, ","))
	default:
		return fmt.Errorf("tags: expected a list or a string")
	}
	return nil
}

func cleanTags(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimPrefix(strings.TrimSpace(s), "#"); s != "" {
			out = append(out, s)
		}
	}
	return out
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"January 2, 2006",
	"Jan 2, 2006",
}

// Parse parses one note. name is used for the default session, which is the
// file name without extension.
func Parse(content []byte, name string) (*Document, error) {
	fmText, body := splitFrontmatter(string(content))

	var fm frontmatter
	if fmText != "" {
		if err := yaml.Unmarshal([]byte(fmText), &fm); err != nil {
			return nil, fmt.Errorf("%s: invalid frontmatter: %w", name, err)
		}
	}
	doc := &Document{
		Path:     name,
		Campaign: strings.TrimSpace(fm.Campaign),
		Session:  strings.TrimSpace(fm.Session),
		Owner:    strings.TrimSpace(fm.Owner),
		Location: strings.TrimSpace(fm.Location),
		Tags:     fm.Tags,
	}
	if doc.Session == "" {
		doc.Session = sessionFromPath(name)
	}
	if fm.Date != "" {
		d, err := parseDate(fm.Date)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		doc.Date = d
	}

	for _, block := range blocks(body) {
		if e, ok := entry(block, doc.Tags); ok {
			doc.Entries = append(doc.Entries, e)
		}
	}
	return doc, nil
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}

// splitFrontmatter separates the YAML between the leading --- lines from the
// body. Without a closing delimiter the whole text is body.
func splitFrontmatter(text string) (string, string) {
	text = strings.TrimPrefix(text, "\ufeff")
	lines := strings.Split(text, "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "---" {
		return "", text
	}
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			return strings.Join(lines[1:i], "\n"), strings.Join(lines[i+1:], "\n")
		}
	}
	return "", text
}

func sessionFromPath(p string) string {
	base := filepath.Base(p)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

var (
	listItemRe = regexp.MustCompile(`^\s*(?:[-*+]|\d+[.)])\s+(?:\[[ xX]\]\s+)?`)
	ruleRe     = regexp.MustCompile(`^\s*(?:-{3,}|\*{3,}|_{3,})\s*$`)
)

// blocks splits a body into paragraphs and list items, in order. Wrapped
// lines of a paragraph or list item are joined with a space.
func blocks(body string) []string {
	var (
		out     []string
		current []string
		fenced  bool
	)
	flush := func() {
		if len(current) > 0 {
			out = append(out, strings.Join(current, " "))
			current = nil
		}
	}

	sc := bufio.NewScanner(strings.NewReader(body))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~"):
			flush()
			fenced = !fenced
		case fenced:
		case trimmed == "", ruleRe.MatchString(line):
			flush()
		case strings.HasPrefix(trimmed, "#") && headingLevel(trimmed) > 0:
			flush()
		case listItemRe.MatchString(line):
			flush()
			current = append(current, strings.TrimSpace(listItemRe.ReplaceAllString(line, "")))
		default:
			current = append(current, strings.TrimSpace(strings.TrimLeft(trimmed, "> ")))
		}
	}
	flush()
	return out
}

// headingLevel returns the ATX heading level of line, or 0 when line is not
// a heading (an inline #tag at the start of a line is not).
func headingLevel(line string) int {
	n := 0
	for n < len(line) && line[n] == '#' {
		n++
	}
	if n > 6 || (n < len(line) && line[n] != ' ') {
		return 0
	}
	return n
}

// inlineTagRe finds #hashtags in body text.
var inlineTagRe = regexp.MustCompile(`(^|\s)#([A-Za-z][A-Za-z0-9_/-]*)`)

// entry turns one block into an Entry. Blocks with no text left after
// markup is removed yield false.
func entry(block string, docTags []string) (Entry, bool) {
	var e Entry
	for _, l := range ExtractWikiLinks(block) {
		e.Participants = append(e.Participants, l.Target)
	}

	themes := append([]string(nil), docTags...)
	for _, m := range inlineTagRe.FindAllStringSubmatch(block, -1) {
		themes = append(themes, m[2])
	}
	e.Themes = dedupeFold(themes)

	text := StripWikiLinks(block)
	text = inlineTagRe.ReplaceAllString(text, "$1$2")
	text = strings.NewReplacer("**", "", "__", "", "`", "").Replace(text)
	e.Text = strings.Join(strings.Fields(text), " ")
	return e, e.Text != ""
}

// dedupeFold removes case-insensitive duplicates, keeping the first spelling.
func dedupeFold(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		key := strings.ToLower(s)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	return out
}
