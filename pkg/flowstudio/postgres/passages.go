package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/randalmurphal/flowstudio/pkg/flowstudio/retrieval"
)

// PassageStore searches document chunks with PostgreSQL full-text search.
type PassageStore struct {
	db     Querier
	tables tables
	config string
}

var _ retrieval.Store = (*PassageStore)(nil)

// NewPassageStore creates a PassageStore using the "simple" text search
// configuration.
func NewPassageStore(db Querier, opts ...Option) *PassageStore {
	return &PassageStore{db: db, tables: buildTables(opts), config: "simple"}
}

// WithTextSearchConfig sets the regconfig used for to_tsvector, such as
// "english".
func (s *PassageStore) WithTextSearchConfig(name string) *PassageStore {
	s.config = name
	return s
}

// Search implements retrieval.Store. Chunks are ranked with ts_rank and
// ties keep chunk order. A document without chunks yields
// retrieval.ErrNoIndex.
func (s *PassageStore) Search(ctx context.Context, req retrieval.SearchRequest) ([]retrieval.Passage, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, retrieval.ErrEmptyQuery
	}

	query := fmt.Sprintf(`SELECT chunk_index, content,
			ts_rank(to_tsvector($1::regconfig, content), plainto_tsquery($1::regconfig, $3)) AS score
		FROM %s
		WHERE document_id = $2
			AND to_tsvector($1::regconfig, content) @@ plainto_tsquery($1::regconfig, $3)
		ORDER BY score DESC, chunk_index ASC
		LIMIT $4`, s.tables.chunks)

	rows, err := s.db.Query(ctx, query, s.config, req.DocumentID, req.Query, req.Limit())
	if err != nil {
		return nil, fmt.Errorf("postgres: search document %d: %w", req.DocumentID, err)
	}
	defer rows.Close()

	var passages []retrieval.Passage
	for rows.Next() {
		var index int
		var score float32
		p := retrieval.Passage{DocumentID: req.DocumentID}
		if err := rows.Scan(&index, &p.Content, &score); err != nil {
			return nil, fmt.Errorf("postgres: scan passage: %w", err)
		}
		p.ChunkID = fmt.Sprintf("%d-%d", req.DocumentID, index)
		p.Score = float64(score)
		passages = append(passages, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: search document %d: %w", req.DocumentID, err)
	}

	if len(passages) == 0 {
		indexed, err := s.indexed(ctx, req.DocumentID)
		if err != nil {
			return nil, err
		}
		if !indexed {
			return nil, fmt.Errorf("%w: document %d", retrieval.ErrNoIndex, req.DocumentID)
		}
	}
	return passages, nil
}

func (s *PassageStore) indexed(ctx context.Context, documentID int64) (bool, error) {
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE document_id = $1)`, s.tables.chunks)
	var ok bool
	if err := s.db.QueryRow(ctx, query, documentID).Scan(&ok); err != nil {
		return false, fmt.Errorf("postgres: check index of document %d: %w", documentID, err)
	}
	return ok, nil
}

// IndexChunks replaces the chunks of a document.
func (s *PassageStore) IndexChunks(ctx context.Context, documentID int64, chunks ...string) error {
	if _, err := s.db.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE document_id = $1`, s.tables.chunks), documentID); err != nil {
		return fmt.Errorf("postgres: clear document %d: %w", documentID, err)
	}
	insert := fmt.Sprintf(`INSERT INTO %s (document_id, chunk_index, content) VALUES ($1, $2, $3)`, s.tables.chunks)
	for i, c := range chunks {
		if _, err := s.db.Exec(ctx, insert, documentID, i, c); err != nil {
			return fmt.Errorf("postgres: index chunk %d of document %d: %w", i, documentID, err)
		}
	}
	return nil
}
