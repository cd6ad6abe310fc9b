package audit

import (
	"time"

	"github.com/bytedance/sonic"
)

// Version is the current record format version.
const Version = 1

// Kind distinguishes node records from the final run record.
type Kind string

// Record kinds.
const (
	KindNode Kind = "node"
	KindRun  Kind = "run"
)

// Record is the persisted trace of one node execution or one finished run.
type Record struct {
	Version   int       `json:"version"`
	Kind      Kind      `json:"kind"`
	RunID     string    `json:"run_id"`
	FlowID    int64     `json:"flow_id"`
	NodeID    int64     `json:"node_id,omitempty"`
	NodeType  string    `json:"node_type,omitempty"`
	Sequence  int       `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`

	Status     string         `json:"status"`
	Output     any            `json:"output,omitempty"`
	Branch     string         `json:"branch,omitempty"`
	Error      string         `json:"error,omitempty"`
	DurationMs int64          `json:"duration_ms"`
	Metadata   map[string]any `json:"metadata,omitempty"`

	// Run records only.
	Answer  string  `json:"answer,omitempty"`
	Skipped []int64 `json:"skipped,omitempty"`
}

// NewNodeRecord creates a record for a node execution.
func NewNodeRecord(runID string, flowID, nodeID int64, nodeType string, sequence int) *Record {
	return &Record{
		Version:   Version,
		Kind:      KindNode,
		RunID:     runID,
		FlowID:    flowID,
		NodeID:    nodeID,
		NodeType:  nodeType,
		Sequence:  sequence,
		Timestamp: time.Now().UTC(),
	}
}

// NewRunRecord creates the final record for a run.
func NewRunRecord(runID string, flowID int64, sequence int) *Record {
	return &Record{
		Version:   Version,
		Kind:      KindRun,
		RunID:     runID,
		FlowID:    flowID,
		NodeID:    RunKey,
		Sequence:  sequence,
		Timestamp: time.Now().UTC(),
	}
}

// Key returns the node id the record is stored under.
func (r *Record) Key() int64 {
	if r.Kind == KindRun {
		return RunKey
	}
	return r.NodeID
}

// Marshal encodes the record as JSON.
func (r *Record) Marshal() ([]byte, error) {
	return sonic.Marshal(r)
}

// Unmarshal decodes a record.
func Unmarshal(data []byte) (*Record, error) {
	var r Record
	if err := sonic.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}
