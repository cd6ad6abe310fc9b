package flowstudio

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild_Linear(t *testing.T) {
	g := mustBuild(t,
		[]Node{answerNode(3, "${node_2}"), startNode(1), llmNode(2, "")},
		[]Edge{edge(1, 2), edge(2, 3)},
	)

	assert.Equal(t, 3, g.Len())
	assert.Equal(t, []int64{1, 2, 3}, g.NodeIDs())
	assert.Equal(t, int64(1), g.Start().ID)
	assert.Equal(t, []int64{1, 2, 3}, g.TopologicalOrder())
	assert.True(t, g.IsTerminal(3))
	assert.False(t, g.IsTerminal(1))

	edges := g.Edges()
	require.Len(t, edges, 2)
	assert.Equal(t, int64(1), edges[0].ID)
	assert.Equal(t, int64(2), edges[1].ID)

	succ := g.Successors(2)
	require.Len(t, succ, 1)
	assert.Equal(t, int64(3), succ[0].Node.ID)

	pred := g.Predecessors(2)
	require.Len(t, pred, 1)
	assert.Equal(t, int64(1), pred[0].Node.ID)

	n, ok := g.Node(2)
	require.True(t, ok)
	assert.Equal(t, NodeLLM, n.Type)
	_, ok = g.Node(42)
	assert.False(t, ok)
}

func TestBuild_EdgeNumbering(t *testing.T) {
	g := mustBuild(t,
		[]Node{startNode(1), answerNode(2, "x"), answerNode(3, "y")},
		[]Edge{edge(1, 3), {ID: 10, SourceID: 1, TargetID: 2}},
	)
	edges := g.Edges()
	assert.Equal(t, int64(11), edges[0].ID)
	assert.Equal(t, int64(10), edges[1].ID)

	succ := g.Successors(1)
	require.Len(t, succ, 2)
	assert.Equal(t, int64(2), succ[0].Node.ID, "successors are ordered by target id")
	assert.Equal(t, int64(3), succ[1].Node.ID)
}

func TestBuild_DiamondOrder(t *testing.T) {
	g := mustBuild(t,
		[]Node{startNode(1), llmNode(5, ""), llmNode(3, ""), answerNode(9, "x")},
		[]Edge{edge(1, 5), edge(1, 3), edge(5, 9), edge(3, 9)},
	)
	assert.Equal(t, []int64{1, 3, 5, 9}, g.TopologicalOrder())
}

func TestBuild_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		nodes   []Node
		edges   []Edge
		want    error
		nodeIDs []int64
	}{
		{
			name:  "no start",
			nodes: []Node{answerNode(1, "x")},
			want:  ErrNoStart,
		},
		{
			name:    "multiple start",
			nodes:   []Node{startNode(2), startNode(1), answerNode(3, "x")},
			edges:   []Edge{edge(1, 3), edge(2, 3)},
			want:    ErrMultipleStart,
			nodeIDs: []int64{1, 2},
		},
		{
			name:    "duplicate node",
			nodes:   []Node{startNode(1), answerNode(2, "x"), answerNode(2, "y")},
			edges:   []Edge{edge(1, 2)},
			want:    ErrDuplicateNode,
			nodeIDs: []int64{2},
		},
		{
			name:  "duplicate edge",
			nodes: []Node{startNode(1), answerNode(2, "x")},
			edges: []Edge{{ID: 4, SourceID: 1, TargetID: 2}, {ID: 4, SourceID: 1, TargetID: 2}},
			want:  ErrDuplicateEdge,
		},
		{
			name:  "unknown target",
			nodes: []Node{startNode(1), answerNode(2, "x")},
			edges: []Edge{edge(1, 2), edge(2, 7)},
			want:  ErrUnknownNode,
		},
		{
			name:    "self loop",
			nodes:   []Node{startNode(1), llmNode(2, ""), answerNode(3, "x")},
			edges:   []Edge{edge(1, 2), edge(2, 2), edge(2, 3)},
			want:    ErrSelfLoop,
			nodeIDs: []int64{2},
		},
		{
			name:    "cycle",
			nodes:   []Node{startNode(1), llmNode(2, ""), llmNode(3, ""), answerNode(4, "x")},
			edges:   []Edge{edge(1, 2), edge(2, 3), edge(3, 2), edge(3, 4)},
			want:    ErrCycleDetected,
			nodeIDs: []int64{2, 3},
		},
		{
			name: "cycle with upstream and downstream chains",
			nodes: []Node{
				startNode(1), llmNode(2, ""), llmNode(3, ""), llmNode(4, ""), llmNode(5, ""), answerNode(6, "x"),
			},
			edges:   []Edge{edge(1, 2), edge(2, 3), edge(3, 4), edge(4, 3), edge(4, 5), edge(5, 6)},
			want:    ErrCycleDetected,
			nodeIDs: []int64{3, 4},
		},
		{
			name:    "orphan",
			nodes:   []Node{startNode(1), answerNode(2, "x"), answerNode(3, "y")},
			edges:   []Edge{edge(1, 2)},
			want:    ErrOrphanNode,
			nodeIDs: []int64{3},
		},
		{
			name:    "conditional missing false branch",
			nodes:   []Node{startNode(1), condNode(2, "input == 'x'"), answerNode(3, "x")},
			edges:   []Edge{edge(1, 2), branch(2, 3, BranchTrue)},
			want:    ErrInvalidBranchCoverage,
			nodeIDs: []int64{2},
		},
		{
			name:  "conditional with unknown tag",
			nodes: []Node{startNode(1), condNode(2, "input == 'x'"), answerNode(3, "x"), answerNode(4, "y"), answerNode(5, "z")},
			edges: []Edge{
				edge(1, 2), branch(2, 3, BranchTrue), branch(2, 4, BranchFalse), branch(2, 5, "maybe"),
			},
			want:    ErrInvalidBranchCoverage,
			nodeIDs: []int64{2},
		},
		{
			name:    "conditional untagged edge",
			nodes:   []Node{startNode(1), condNode(2, "input == 'x'"), answerNode(3, "x"), answerNode(4, "y")},
			edges:   []Edge{edge(1, 2), branch(2, 3, BranchTrue), edge(2, 4)},
			want:    ErrInvalidBranchCoverage,
			nodeIDs: []int64{2},
		},
		{
			name:    "duplicate decision tag",
			nodes:   []Node{startNode(1), classifierNode(2, "a", "b"), answerNode(3, "x"), answerNode(4, "y")},
			edges:   []Edge{edge(1, 2), branch(2, 3, "a"), branch(2, 4, "a")},
			want:    ErrInvalidBranchCoverage,
			nodeIDs: []int64{2},
		},
		{
			name:    "tag on ordinary edge",
			nodes:   []Node{startNode(1), answerNode(2, "x")},
			edges:   []Edge{branch(1, 2, BranchTrue)},
			want:    ErrInvalidBranchCoverage,
			nodeIDs: []int64{1},
		},
		{
			name:    "classifier tag outside classes",
			nodes:   []Node{startNode(1), classifierNode(2, "billing", "tech"), answerNode(3, "x")},
			edges:   []Edge{edge(1, 2), branch(2, 3, "sales")},
			want:    ErrInvalidBranchCoverage,
			nodeIDs: []int64{2},
		},
		{
			name: "payload mismatch",
			nodes: []Node{
				startNode(1),
				{ID: 2, Type: NodeAnswer, Payload: LLMConfig{}},
			},
			edges:   []Edge{edge(1, 2)},
			want:    ErrInvalidPayload,
			nodeIDs: []int64{2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := Build(tt.nodes, tt.edges)
			require.Error(t, err)
			assert.Nil(t, g)
			assert.ErrorIs(t, err, tt.want)

			if tt.nodeIDs != nil {
				var found bool
				for _, ge := range graphErrors(err) {
					if errors.Is(ge, tt.want) {
						assert.Equal(t, tt.nodeIDs, ge.NodeIDs)
						found = true
					}
				}
				assert.True(t, found)
			}
		})
	}
}

func TestBuild_ReportsAllProblems(t *testing.T) {
	_, err := Build(
		[]Node{answerNode(2, "x"), answerNode(3, "y")},
		[]Edge{edge(2, 9)},
	)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoStart)
	assert.ErrorIs(t, err, ErrUnknownNode)
	assert.ErrorIs(t, err, ErrOrphanNode)
	assert.GreaterOrEqual(t, len(graphErrors(err)), 3)
}

func TestBuild_ClassifierPartialCoverageIsValid(t *testing.T) {
	_, err := Build(
		[]Node{startNode(1), classifierNode(2, "billing", "tech", "other"), answerNode(3, "x"), answerNode(4, "y")},
		[]Edge{edge(1, 2), branch(2, 3, "billing"), branch(2, 4, "tech")},
	)
	assert.NoError(t, err)
}

func TestGraphError_Message(t *testing.T) {
	err := &GraphError{Err: ErrOrphanNode, NodeIDs: []int64{3, 4}, Detail: "unreachable"}
	assert.Equal(t, "node has no incoming edge (nodes 3, 4): unreachable", err.Error())
	assert.Equal(t, "flow has no START node", (&GraphError{Err: ErrNoStart}).Error())
}

func TestReadyQueue(t *testing.T) {
	var q readyQueue
	for _, id := range []int64{5, 2, 9, 2, 7} {
		q.push(id)
	}
	assert.Equal(t, 4, q.len())
	assert.Equal(t, int64(2), q.peek())

	var got []int64
	for q.len() > 0 {
		got = append(got, q.pop())
	}
	assert.Equal(t, []int64{2, 5, 7, 9}, got)
}

// graphErrors flattens a Build error into its *GraphError parts.
func graphErrors(err error) []*GraphError {
	var out []*GraphError
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			out = append(out, graphErrors(e)...)
		}
		return out
	}
	var ge *GraphError
	if errors.As(err, &ge) {
		out = append(out, ge)
	}
	return out
}
