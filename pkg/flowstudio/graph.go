package flowstudio

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
)

// Edge is a directed connection between two nodes. Branch is empty for
// ordinary edges, "true"/"false" when leaving a CONDITIONAL node and a class
// label when leaving a QUESTION_CLASSIFIER node.
type Edge struct {
	ID       int64
	SourceID int64
	TargetID int64
	Branch   string
}

// Link pairs an edge with the node at its other end: the target for
// Successors, the source for Predecessors.
type Link struct {
	Edge Edge
	Node *Node
}

// Graph is a validated, immutable flow graph. It is safe for concurrent use.
type Graph struct {
	nodes map[int64]*Node
	ids   []int64
	edges []Edge
	start int64
	out   map[int64][]Link
	in    map[int64][]Link
}

// Build validates nodes and edges and returns an immutable Graph.
//
// Every problem found is reported as a *GraphError; multiple problems are
// joined with errors.Join. Edges with a zero ID are numbered after the
// highest explicit edge ID.
func Build(nodes []Node, edges []Edge) (*Graph, error) {
	var errs []error
	fail := func(err error, detail string, ids ...int64) {
		slices.Sort(ids)
		errs = append(errs, &GraphError{Err: err, NodeIDs: ids, Detail: detail})
	}

	g := &Graph{
		nodes: make(map[int64]*Node, len(nodes)),
		out:   make(map[int64][]Link),
		in:    make(map[int64][]Link),
	}

	var starts []int64
	for i := range nodes {
		n := nodes[i]
		if _, dup := g.nodes[n.ID]; dup {
			fail(ErrDuplicateNode, "", n.ID)
			continue
		}
		if n.Payload != nil && n.Payload.NodeType() != n.Type {
			fail(ErrInvalidPayload, fmt.Sprintf("%s node carries %s payload", n.Type, n.Payload.NodeType()), n.ID)
		}
		g.nodes[n.ID] = &n
		g.ids = append(g.ids, n.ID)
		if n.Type == NodeStart {
			starts = append(starts, n.ID)
		}
	}
	slices.Sort(g.ids)

	switch len(starts) {
	case 0:
		fail(ErrNoStart, "")
	case 1:
		g.start = starts[0]
	default:
		fail(ErrMultipleStart, "", starts...)
	}

	g.edges = numberEdges(edges, fail)

	for _, e := range g.edges {
		src, okSrc := g.nodes[e.SourceID]
		dst, okDst := g.nodes[e.TargetID]
		if !okSrc || !okDst {
			fail(ErrUnknownNode, fmt.Sprintf("edge %d: %d -> %d", e.ID, e.SourceID, e.TargetID))
			continue
		}
		if e.SourceID == e.TargetID {
			fail(ErrSelfLoop, fmt.Sprintf("edge %d", e.ID), e.SourceID)
			continue
		}
		g.out[e.SourceID] = append(g.out[e.SourceID], Link{Edge: e, Node: dst})
		g.in[e.TargetID] = append(g.in[e.TargetID], Link{Edge: e, Node: src})
	}
	for _, links := range g.out {
		sortLinks(links)
	}
	for _, links := range g.in {
		sortLinks(links)
	}

	for _, id := range g.ids {
		n := g.nodes[id]
		if n.Type != NodeStart && len(g.in[id]) == 0 {
			fail(ErrOrphanNode, "", id)
		}
		if detail := g.checkBranches(n); detail != "" {
			fail(ErrInvalidBranchCoverage, detail, id)
		}
	}

	if cyclic := g.cycleMembers(); len(cyclic) > 0 {
		fail(ErrCycleDetected, "", cyclic...)
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return g, nil
}

// numberEdges copies edges, assigning IDs to edges that have none.
func numberEdges(edges []Edge, fail func(error, string, ...int64)) []Edge {
	out := make([]Edge, len(edges))
	copy(out, edges)

	var maxID int64
	seen := make(map[int64]bool, len(out))
	for _, e := range out {
		if e.ID == 0 {
			continue
		}
		if seen[e.ID] {
			fail(ErrDuplicateEdge, fmt.Sprintf("edge %d", e.ID))
		}
		seen[e.ID] = true
		maxID = max(maxID, e.ID)
	}
	for i := range out {
		if out[i].ID == 0 {
			maxID++
			out[i].ID = maxID
		}
	}
	return out
}

func sortLinks(links []Link) {
	sort.Slice(links, func(i, j int) bool {
		if links[i].Node.ID != links[j].Node.ID {
			return links[i].Node.ID < links[j].Node.ID
		}
		return links[i].Edge.ID < links[j].Edge.ID
	})
}

// checkBranches returns a description of the branch tagging problem on n's
// outgoing edges, or "" when the tags are valid.
func (g *Graph) checkBranches(n *Node) string {
	links := g.out[n.ID]

	if !n.Type.IsDecision() {
		for _, l := range links {
			if l.Edge.Branch != "" {
				return fmt.Sprintf("edge %d from %s node is tagged %q", l.Edge.ID, n.Type, l.Edge.Branch)
			}
		}
		return ""
	}

	tags := make(map[string]bool, len(links))
	for _, l := range links {
		tag := l.Edge.Branch
		if tag == "" {
			return fmt.Sprintf("edge %d from %s node has no branch tag", l.Edge.ID, n.Type)
		}
		if tags[tag] {
			return fmt.Sprintf("branch %q is used by more than one edge", tag)
		}
		tags[tag] = true
	}

	switch n.Type {
	case NodeConditional:
		if len(tags) != 2 || !tags[BranchTrue] || !tags[BranchFalse] {
			return fmt.Sprintf("conditional branches must be exactly {true, false}, got {%s}", strings.Join(sortedKeys(tags), ", "))
		}
	case NodeQuestionClassifier:
		cfg := payloadAs[ClassifierConfig](n)
		for _, tag := range sortedKeys(tags) {
			if !cfg.HasClass(tag) {
				return fmt.Sprintf("branch %q is not one of the classifier classes", tag)
			}
		}
	}
	return ""
}

// cycleMembers returns the nodes that lie on a cycle. Kahn's algorithm
// peels nodes with no unordered predecessor; the same pass run backwards
// over the leftovers peels nodes that are merely downstream of a cycle.
func (g *Graph) cycleMembers() []int64 {
	left := make(map[int64]bool, len(g.ids))
	for _, id := range g.ids {
		left[id] = true
	}
	peel(left, g.ids, g.in, g.out)
	peel(left, g.ids, g.out, g.in)

	var members []int64
	for _, id := range g.ids {
		if left[id] {
			members = append(members, id)
		}
	}
	return members
}

// peel removes from left every node with no link in deps to a node still in
// left, following next to release the nodes that depended on it.
func peel(left map[int64]bool, ids []int64, deps, next map[int64][]Link) {
	count := make(map[int64]int, len(left))
	var queue []int64
	for _, id := range ids {
		if !left[id] {
			continue
		}
		for _, l := range deps[id] {
			if left[l.Node.ID] {
				count[id]++
			}
		}
		if count[id] == 0 {
			queue = append(queue, id)
		}
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		delete(left, id)
		for _, l := range next[id] {
			n := l.Node.ID
			if !left[n] {
				continue
			}
			count[n]--
			if count[n] == 0 {
				queue = append(queue, n)
			}
		}
	}
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Node returns the node with the given id.
func (g *Graph) Node(id int64) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// NodeIDs returns every node id in ascending order.
func (g *Graph) NodeIDs() []int64 {
	return slices.Clone(g.ids)
}

// Edges returns a copy of the graph's edges with assigned IDs.
func (g *Graph) Edges() []Edge {
	return slices.Clone(g.edges)
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.ids)
}

// Start returns the START node.
func (g *Graph) Start() *Node {
	return g.nodes[g.start]
}

// Successors returns the outgoing links of id ordered by target id.
func (g *Graph) Successors(id int64) []Link {
	return slices.Clone(g.out[id])
}

// HasBranch reports whether an outgoing edge of id is tagged branch.
func (g *Graph) HasBranch(id int64, branch string) bool {
	return slices.ContainsFunc(g.out[id], func(l Link) bool { return l.Edge.Branch == branch })
}

// Predecessors returns the incoming links of id ordered by source id.
func (g *Graph) Predecessors(id int64) []Link {
	return slices.Clone(g.in[id])
}

// IsTerminal reports whether id has no outgoing edges.
func (g *Graph) IsTerminal(id int64) bool {
	return len(g.out[id]) == 0
}

// TopologicalOrder returns the node ids in the order a run without decision
// nodes would execute them: repeatedly the smallest ready id.
func (g *Graph) TopologicalOrder() []int64 {
	remaining := make(map[int64]int, len(g.ids))
	for _, id := range g.ids {
		remaining[id] = len(g.in[id])
	}
	var ready readyQueue
	ready.push(g.start)

	order := make([]int64, 0, len(g.ids))
	for ready.len() > 0 {
		id := ready.pop()
		order = append(order, id)
		for _, l := range g.out[id] {
			remaining[l.Node.ID]--
			if remaining[l.Node.ID] == 0 {
				ready.push(l.Node.ID)
			}
		}
	}
	return order
}

// readyQueue is a set of node ids popped in ascending order.
type readyQueue struct {
	ids []int64
}

func (q *readyQueue) push(id int64) {
	i, found := slices.BinarySearch(q.ids, id)
	if found {
		return
	}
	q.ids = slices.Insert(q.ids, i, id)
}

func (q *readyQueue) pop() int64 {
	id := q.ids[0]
	q.ids = q.ids[1:]
	return id
}

func (q *readyQueue) peek() int64 {
	return q.ids[0]
}

func (q *readyQueue) len() int {
	return len(q.ids)
}
