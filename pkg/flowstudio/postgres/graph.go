package postgres

import (
	"context"
	"fmt"

	"github.com/randalmurphal/flowstudio/pkg/flowstudio"
)

// GraphStore loads flows from PostgreSQL.
type GraphStore struct {
	db     Querier
	tables tables
}

var _ flowstudio.GraphLoader = (*GraphStore)(nil)

// NewGraphStore creates a GraphStore.
func NewGraphStore(db Querier, opts ...Option) *GraphStore {
	return &GraphStore{db: db, tables: buildTables(opts)}
}

// LoadGraph implements flowstudio.GraphLoader. A flow without nodes is
// reported as flowstudio.ErrFlowNotFound. Payloads are decoded with
// flowstudio.DecodePayload.
func (s *GraphStore) LoadGraph(ctx context.Context, flowID int64) ([]flowstudio.Node, []flowstudio.Edge, error) {
	nodes, err := s.loadNodes(ctx, flowID)
	if err != nil {
		return nil, nil, err
	}
	if len(nodes) == 0 {
		return nil, nil, fmt.Errorf("%w: %d", flowstudio.ErrFlowNotFound, flowID)
	}
	edges, err := s.loadEdges(ctx, flowID)
	if err != nil {
		return nil, nil, err
	}
	return nodes, edges, nil
}

func (s *GraphStore) loadNodes(ctx context.Context, flowID int64) ([]flowstudio.Node, error) {
	query := fmt.Sprintf(`SELECT id, name, type, position_x, position_y, optional, payload
		FROM %s WHERE flow_id = $1 ORDER BY id`, s.tables.nodes)

	rows, err := s.db.Query(ctx, query, flowID)
	if err != nil {
		return nil, fmt.Errorf("postgres: load nodes of flow %d: %w", flowID, err)
	}
	defer rows.Close()

	var nodes []flowstudio.Node
	for rows.Next() {
		n := flowstudio.Node{FlowID: flowID}
		var nodeType string
		var payload []byte
		if err := rows.Scan(&n.ID, &n.Name, &nodeType, &n.Position.X, &n.Position.Y, &n.Optional, &payload); err != nil {
			return nil, fmt.Errorf("postgres: scan node: %w", err)
		}
		n.Type = flowstudio.NodeType(nodeType)
		n.Payload, err = flowstudio.DecodePayload(n.Type, payload)
		if err != nil {
			return nil, fmt.Errorf("postgres: node %d: %w", n.ID, err)
		}
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: load nodes of flow %d: %w", flowID, err)
	}
	return nodes, nil
}

func (s *GraphStore) loadEdges(ctx context.Context, flowID int64) ([]flowstudio.Edge, error) {
	query := fmt.Sprintf(`SELECT id, source_id, target_id, branch
		FROM %s WHERE flow_id = $1 ORDER BY id`, s.tables.edges)

	rows, err := s.db.Query(ctx, query, flowID)
	if err != nil {
		return nil, fmt.Errorf("postgres: load edges of flow %d: %w", flowID, err)
	}
	defer rows.Close()

	var edges []flowstudio.Edge
	for rows.Next() {
		var e flowstudio.Edge
		if err := rows.Scan(&e.ID, &e.SourceID, &e.TargetID, &e.Branch); err != nil {
			return nil, fmt.Errorf("postgres: scan edge: %w", err)
		}
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: load edges of flow %d: %w", flowID, err)
	}
	return edges, nil
}

// SaveGraph replaces the stored nodes and edges of a flow. Payloads are
// encoded as JSON and edges without an id are numbered after the highest
// explicit one. Use a transaction as the Querier for atomic replacement.
func (s *GraphStore) SaveGraph(ctx context.Context, flowID int64, nodes []flowstudio.Node, edges []flowstudio.Edge) error {
	if _, err := s.db.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE flow_id = $1`, s.tables.edges), flowID); err != nil {
		return fmt.Errorf("postgres: clear edges of flow %d: %w", flowID, err)
	}
	if _, err := s.db.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE flow_id = $1`, s.tables.nodes), flowID); err != nil {
		return fmt.Errorf("postgres: clear nodes of flow %d: %w", flowID, err)
	}

	insertNode := fmt.Sprintf(`INSERT INTO %s (id, flow_id, name, type, position_x, position_y, optional, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`, s.tables.nodes)
	for _, n := range nodes {
		payload, err := flowstudio.EncodePayload(n.Payload)
		if err != nil {
			return fmt.Errorf("postgres: node %d: %w", n.ID, err)
		}
		if _, err := s.db.Exec(ctx, insertNode,
			n.ID, flowID, n.Name, string(n.Type), n.Position.X, n.Position.Y, n.Optional, payload,
		); err != nil {
			return fmt.Errorf("postgres: insert node %d: %w", n.ID, err)
		}
	}

	insertEdge := fmt.Sprintf(`INSERT INTO %s (id, flow_id, source_id, target_id, branch)
		VALUES ($1, $2, $3, $4, $5)`, s.tables.edges)
	var next int64
	for _, e := range edges {
		next = max(next, e.ID)
	}
	for _, e := range edges {
		id := e.ID
		if id == 0 {
			next++
			id = next
		}
		if _, err := s.db.Exec(ctx, insertEdge, id, flowID, e.SourceID, e.TargetID, e.Branch); err != nil {
			return fmt.Errorf("postgres: insert edge %d: %w", id, err)
		}
	}
	return nil
}
