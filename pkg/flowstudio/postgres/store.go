// Package postgres loads flow graphs and knowledge passages from PostgreSQL.
//
// GraphStore implements flowstudio.GraphLoader over the flow_nodes and
// flow_edges tables. PassageStore implements retrieval.Store with PostgreSQL
// full-text search over document_chunks. Both accept any Querier, so a
// *pgxpool.Pool, a single connection or a transaction can be used.
//
// The schema is owned by the host application; EnsureSchema creates a
// compatible one for tests and local development.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Default table names.
const (
	DefaultNodeTable  = "flow_nodes"
	DefaultEdgeTable  = "flow_edges"
	DefaultChunkTable = "document_chunks"
)

// Querier is the subset of pgx used by the stores. *pgxpool.Pool, *pgx.Conn
// and pgx.Tx satisfy it.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ Querier = (*pgxpool.Pool)(nil)

// Connect opens a connection pool and verifies it with a ping.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return pool, nil
}

type tables struct {
	nodes  string
	edges  string
	chunks string
}

func defaultTables() tables {
	return tables{nodes: DefaultNodeTable, edges: DefaultEdgeTable, chunks: DefaultChunkTable}
}

// Option configures table names. Names are quoted with pgx.Identifier since
// they are interpolated into queries.
type Option func(*tables)

// WithNodeTable overrides the node table name.
func WithNodeTable(name string) Option {
	return func(t *tables) { t.nodes = pgx.Identifier{name}.Sanitize() }
}

// WithEdgeTable overrides the edge table name.
func WithEdgeTable(name string) Option {
	return func(t *tables) { t.edges = pgx.Identifier{name}.Sanitize() }
}

// WithChunkTable overrides the passage table name.
func WithChunkTable(name string) Option {
	return func(t *tables) { t.chunks = pgx.Identifier{name}.Sanitize() }
}

func buildTables(opts []Option) tables {
	t := defaultTables()
	for _, opt := range opts {
		opt(&t)
	}
	return t
}

// EnsureSchema creates the tables used by GraphStore and PassageStore if
// they do not exist.
func EnsureSchema(ctx context.Context, db Querier, opts ...Option) error {
	t := buildTables(opts)
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id         BIGINT NOT NULL,
			flow_id    BIGINT NOT NULL,
			name       TEXT NOT NULL DEFAULT '',
			type       TEXT NOT NULL,
			position_x DOUBLE PRECISION NOT NULL DEFAULT 0,
			position_y DOUBLE PRECISION NOT NULL DEFAULT 0,
			optional   BOOLEAN NOT NULL DEFAULT FALSE,
			payload    JSONB,
			PRIMARY KEY (flow_id, id)
		)`, t.nodes),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id        BIGINT NOT NULL,
			flow_id   BIGINT NOT NULL,
			source_id BIGINT NOT NULL,
			target_id BIGINT NOT NULL,
			branch    TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (flow_id, id)
		)`, t.edges),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			document_id BIGINT NOT NULL,
			chunk_index INTEGER NOT NULL,
			content     TEXT NOT NULL,
			PRIMARY KEY (document_id, chunk_index)
		)`, t.chunks),
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: ensure schema: %w", err)
		}
	}
	return nil
}
