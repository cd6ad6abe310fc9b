package flowstudio

// NodeType discriminates node behaviour.
type NodeType string

// Node types understood by the default executor registry.
const (
	NodeStart              NodeType = "START"
	NodeLLM                NodeType = "LLM"
	NodeRetriever          NodeType = "RETRIEVER"
	NodeQuestionClassifier NodeType = "QUESTION_CLASSIFIER"
	NodeConditional        NodeType = "CONDITIONAL"
	NodeAnswer             NodeType = "ANSWER"
)

// IsDecision reports whether nodes of this type select one outgoing branch.
func (t NodeType) IsDecision() bool {
	return t == NodeConditional || t == NodeQuestionClassifier
}

// Branch tags of CONDITIONAL nodes.
const (
	BranchTrue  = "true"
	BranchFalse = "false"
)

// Position is the canvas coordinate of a node. It is never read during
// execution.
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Node is a vertex of a flow graph.
type Node struct {
	ID       int64
	FlowID   int64
	Name     string
	Type     NodeType
	Position Position

	// Optional nodes may fail without failing the run.
	Optional bool

	// Payload holds the type-specific configuration. A nil payload means
	// the zero configuration for Type.
	Payload Payload
}

// Label returns the node's name, or its type and id when unnamed.
func (n *Node) Label() string {
	if n.Name != "" {
		return n.Name
	}
	return string(n.Type) + "#" + formatID(n.ID)
}
