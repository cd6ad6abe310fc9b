package flowstudio

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// GraphLoader fetches the nodes and edges of a stored flow.
// Implementations return an error wrapping ErrFlowNotFound for unknown ids.
type GraphLoader interface {
	LoadGraph(ctx context.Context, flowID int64) ([]Node, []Edge, error)
}

// GraphLoaderFunc adapts a function to GraphLoader.
type GraphLoaderFunc func(ctx context.Context, flowID int64) ([]Node, []Edge, error)

// LoadGraph calls f.
func (f GraphLoaderFunc) LoadGraph(ctx context.Context, flowID int64) ([]Node, []Edge, error) {
	return f(ctx, flowID)
}

// MemoryLoader serves flows held in process. It is safe for concurrent use.
type MemoryLoader struct {
	mu    sync.RWMutex
	flows map[int64]memoryFlow
}

type memoryFlow struct {
	nodes []Node
	edges []Edge
}

var _ GraphLoader = (*MemoryLoader)(nil)

// NewMemoryLoader returns an empty loader.
func NewMemoryLoader() *MemoryLoader {
	return &MemoryLoader{flows: make(map[int64]memoryFlow)}
}

// Put stores a flow, replacing any previous definition. Nodes are stamped
// with flowID.
func (l *MemoryLoader) Put(flowID int64, nodes []Node, edges []Edge) {
	nodes = slices.Clone(nodes)
	for i := range nodes {
		nodes[i].FlowID = flowID
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.flows[flowID] = memoryFlow{nodes: nodes, edges: slices.Clone(edges)}
}

// Delete removes a flow.
func (l *MemoryLoader) Delete(flowID int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.flows, flowID)
}

// LoadGraph implements GraphLoader. It returns copies.
func (l *MemoryLoader) LoadGraph(ctx context.Context, flowID int64) ([]Node, []Edge, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	f, ok := l.flows[flowID]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %d", ErrFlowNotFound, flowID)
	}
	return slices.Clone(f.nodes), slices.Clone(f.edges), nil
}
