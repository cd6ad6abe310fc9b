package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"
)

// MemoryStore is an in-process Store ranking chunks by query term overlap.
// It is safe for concurrent use.
type MemoryStore struct {
	mu     sync.RWMutex
	chunks map[int64][]Passage
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{chunks: make(map[int64][]Passage)}
}

// Index replaces the chunks of documentID.
func (s *MemoryStore) Index(documentID int64, chunks ...string) {
	passages := make([]Passage, len(chunks))
	for i, c := range chunks {
		passages[i] = Passage{
			DocumentID: documentID,
			ChunkID:    fmt.Sprintf("%d-%d", documentID, i),
			Content:    c,
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks[documentID] = passages
}

// Remove drops the index of documentID.
func (s *MemoryStore) Remove(documentID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.chunks, documentID)
}

// Search implements Store. Chunks sharing no term with the query are not
// returned. Ties keep index order.
func (s *MemoryStore) Search(ctx context.Context, req SearchRequest) ([]Passage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	terms := tokenize(req.Query)
	if len(terms) == 0 {
		return nil, ErrEmptyQuery
	}

	s.mu.RLock()
	chunks, ok := s.chunks[req.DocumentID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: document %d", ErrNoIndex, req.DocumentID)
	}

	var hits []Passage
	for _, c := range chunks {
		words := tokenize(c.Content)
		if len(words) == 0 {
			continue
		}
		present := make(map[string]bool, len(words))
		for _, w := range words {
			present[w] = true
		}
		matched := 0
		for _, t := range terms {
			if present[t] {
				matched++
			}
		}
		if matched == 0 {
			continue
		}
		c.Score = float64(matched) / float64(len(terms))
		hits = append(hits, c)
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if limit := req.Limit(); len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// tokenize lowercases s and splits it into distinct letter/digit runs.
func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]bool, len(fields))
	out := fields[:0]
	for _, f := range fields {
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out
}
