// Package retrieval defines the knowledge lookup used by Retriever nodes.
//
// A Store answers a query against one indexed document and returns the best
// matching passages. MemoryStore keeps chunks in process, EinoStore adapts
// eino retrievers, and the postgres package provides a database-backed store.
package retrieval

import (
	"context"
	"errors"
	"strings"
)

// DefaultTopK is used when SearchRequest.TopK is not positive.
const DefaultTopK = 3

// Sentinel errors returned by stores.
var (
	// ErrNoIndex indicates the requested document has no index.
	ErrNoIndex = errors.New("document has no index")

	// ErrEmptyQuery indicates a blank query.
	ErrEmptyQuery = errors.New("empty query")
)

// Store searches indexed documents.
type Store interface {
	Search(ctx context.Context, req SearchRequest) ([]Passage, error)
}

// SearchRequest selects a document and a query.
type SearchRequest struct {
	DocumentID int64
	Query      string
	TopK       int
}

// Limit returns TopK, or DefaultTopK when TopK is not positive.
func (r SearchRequest) Limit() int {
	if r.TopK > 0 {
		return r.TopK
	}
	return DefaultTopK
}

// Passage is one retrieved chunk.
type Passage struct {
	DocumentID int64   `json:"document_id"`
	ChunkID    string  `json:"chunk_id"`
	Content    string  `json:"content"`
	Score      float64 `json:"score"`
}

// JoinPassages concatenates passage contents separated by blank lines.
func JoinPassages(passages []Passage) string {
	parts := make([]string, 0, len(passages))
	for _, p := range passages {
		if c := strings.TrimSpace(p.Content); c != "" {
			parts = append(parts, c)
		}
	}
	return strings.Join(parts, "\n\n")
}
