// Package retrieval provides the reference-material lookup consumed by
// participant context assembly.
package retrieval

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"
)

// DefaultK is the number of snippets returned when the caller does not ask
// for a specific count.
const DefaultK = 5

// Snippet is one ranked piece of reference text.
type Snippet struct {
	Source string
	Text   string
	Score  float64
}

// Searcher is the retrieval capability. It is consumed only by participant
// context assembly, never by the phase controller.
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]Snippet, error)
}

// Document is one entry in a MemoryIndex corpus.
type Document struct {
	Source string
	Text   string
}

// MemoryIndex is a deterministic in-memory Searcher over a fixed corpus.
// Ranking is term overlap; ties keep corpus order.
type MemoryIndex struct {
	docs []Document
}

// NewMemoryIndex creates a MemoryIndex over the given documents.
func NewMemoryIndex(docs []Document) *MemoryIndex {
	return &MemoryIndex{docs: docs}
}

// LoadDirectory reads every regular file in dir into a Document, in name
// order. Subdirectories are skipped.
func LoadDirectory(dir string) ([]Document, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read reference directory: %w", err)
	}

	var docs []Document
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read reference file %s: %w", entry.Name(), err)
		}
		docs = append(docs, Document{
			Source: entry.Name(),
			Text:   string(data),
		})
	}
	return docs, nil
}

// Search returns the top-k documents ranked by how many distinct query terms
// they contain. Documents matching no term are excluded. k <= 0 selects
// DefaultK.
func (m *MemoryIndex) Search(ctx context.Context, query string, k int) ([]Snippet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 {
		k = DefaultK
	}

	terms := tokenize(query)
	if len(terms) == 0 {
		return nil, nil
	}

	var ranked []Snippet
	for _, doc := range m.docs {
		text := strings.ToLower(doc.Text)
		score := 0
		for _, term := range terms {
			if strings.Contains(text, term) {
				score++
			}
		}
		if score == 0 {
			continue
		}
		ranked = append(ranked, Snippet{
			Source: doc.Source,
			Text:   doc.Text,
			Score:  float64(score),
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	if len(ranked) > k {
		ranked = ranked[:k]
	}
	return ranked, nil
}

// tokenize splits a query into distinct lowercase terms.
func tokenize(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]bool, len(fields))
	var terms []string
	for _, f := range fields {
		if seen[f] {
			continue
		}
		seen[f] = true
		terms = append(terms, f)
	}
	return terms
}
