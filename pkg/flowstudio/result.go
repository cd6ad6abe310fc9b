package flowstudio

import "time"

// RunStatus is the lifecycle state of a run.
type RunStatus string

// Run states. A run moves PENDING -> RUNNING -> one of the terminal states.
const (
	RunPending   RunStatus = "PENDING"
	RunRunning   RunStatus = "RUNNING"
	RunSucceeded RunStatus = "SUCCEEDED"
	RunFailed    RunStatus = "FAILED"
	// RunPartial means an answer was reached but an optional node failed.
	RunPartial RunStatus = "PARTIAL"
)

// IsTerminal reports whether s is a final state.
func (s RunStatus) IsTerminal() bool {
	return s == RunSucceeded || s == RunFailed || s == RunPartial
}

// NodeStatus is the outcome of one node.
type NodeStatus string

// Node outcomes.
const (
	NodeSucceeded NodeStatus = "SUCCEEDED"
	NodeFailed    NodeStatus = "FAILED"
	NodeSkipped   NodeStatus = "SKIPPED"
)

// NodeRecord is the trace of one executed node.
type NodeRecord struct {
	NodeID    int64          `json:"node_id"`
	Type      NodeType       `json:"type"`
	Name      string         `json:"name,omitempty"`
	Status    NodeStatus     `json:"status"`
	Output    any            `json:"output,omitempty"`
	Branch    string         `json:"branch,omitempty"`
	Err       error          `json:"-"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	StartedAt time.Time      `json:"started_at"`
	Duration  time.Duration  `json:"duration"`
}

// RunResult is the outcome of a run.
type RunResult struct {
	RunID  string    `json:"run_id"`
	FlowID int64     `json:"flow_id"`
	Status RunStatus `json:"status"`
	// Nodes lists executed nodes in execution order. Skipped nodes never
	// appear here.
	Nodes []NodeRecord `json:"nodes"`
	// Skipped lists nodes on unselected branches, ascending.
	Skipped []int64 `json:"skipped,omitempty"`
	// Answer is the output of the last ANSWER node executed.
	Answer        string `json:"answer,omitempty"`
	AnswerReached bool   `json:"answer_reached"`
	// Transcript is the chat transcript at the end of the run.
	Transcript []Turn        `json:"transcript,omitempty"`
	Err        error         `json:"-"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
}

// Node returns the record for nodeID, if it executed.
func (r *RunResult) Node(nodeID int64) (NodeRecord, bool) {
	for _, rec := range r.Nodes {
		if rec.NodeID == nodeID {
			return rec, true
		}
	}
	return NodeRecord{}, false
}

// Order returns executed node ids in execution order.
func (r *RunResult) Order() []int64 {
	ids := make([]int64, len(r.Nodes))
	for i, rec := range r.Nodes {
		ids[i] = rec.NodeID
	}
	return ids
}

// Failed returns the records of failed nodes.
func (r *RunResult) Failed() []NodeRecord {
	var failed []NodeRecord
	for _, rec := range r.Nodes {
		if rec.Status == NodeFailed {
			failed = append(failed, rec)
		}
	}
	return failed
}
