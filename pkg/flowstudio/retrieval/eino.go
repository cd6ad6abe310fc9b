package retrieval

import (
	"context"
	"fmt"
	"sync"

	"github.com/cloudwego/eino/components/retriever"
)

// EinoStore routes searches to eino retrievers registered per document.
type EinoStore struct {
	mu         sync.RWMutex
	retrievers map[int64]retriever.Retriever
}

var _ Store = (*EinoStore)(nil)

// NewEinoStore returns an EinoStore with no registered documents.
func NewEinoStore() *EinoStore {
	return &EinoStore{retrievers: make(map[int64]retriever.Retriever)}
}

// Register serves documentID from r.
func (s *EinoStore) Register(documentID int64, r retriever.Retriever) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retrievers[documentID] = r
}

// Search implements Store.
func (s *EinoStore) Search(ctx context.Context, req SearchRequest) ([]Passage, error) {
	if req.Query == "" {
		return nil, ErrEmptyQuery
	}

	s.mu.RLock()
	r, ok := s.retrievers[req.DocumentID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: document %d", ErrNoIndex, req.DocumentID)
	}

	docs, err := r.Retrieve(ctx, req.Query, retriever.WithTopK(req.Limit()))
	if err != nil {
		return nil, fmt.Errorf("retrieve document %d: %w", req.DocumentID, err)
	}

	passages := make([]Passage, 0, len(docs))
	for _, d := range docs {
		if d == nil {
			continue
		}
		passages = append(passages, Passage{
			DocumentID: req.DocumentID,
			ChunkID:    d.ID,
			Content:    d.Content,
			Score:      d.Score(),
		})
	}
	if limit := req.Limit(); len(passages) > limit {
		passages = passages[:limit]
	}
	return passages, nil
}
