package notes

import (
	"cmp"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// ParseFile reads and parses one note.
func ParseFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data, path)
}

// ParseDir parses every Markdown note under dir, skipping hidden directories
// such as .obsidian or .git. Notes come back in play order: by frontmatter
// date, then path. A note that fails to parse fails the whole call, so a
// session is never recorded with a gap.
func ParseDir(dir string) ([]*Document, error) {
	var docs []*Document
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !isMarkdown(d.Name()) {
			return nil
		}
		doc, err := ParseFile(path)
		if err != nil {
			return err
		}
		docs = append(docs, doc)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read notes in %s: %w", dir, err)
	}
	slices.SortStableFunc(docs, func(a, b *Document) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		return cmp.Compare(a.Path, b.Path)
	})
	return docs, nil
}

// ParsePaths parses files and directories in the given order.
func ParsePaths(paths ...string) ([]*Document, error) {
	var docs []*Document
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if info.IsDir() {
			more, err := ParseDir(p)
			if err != nil {
				return nil, err
			}
			docs = append(docs, more...)
			continue
		}
		doc, err := ParseFile(p)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func isMarkdown(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".md", ".markdown":
		return true
	}
	return false
}
