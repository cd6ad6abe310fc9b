package flowstudio

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Role identifies the author of a transcript turn.
type Role string

// Transcript roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Turn is one entry of a chat transcript.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ExecutionContext is the per-run state threaded between nodes: the user
// input, the chat transcript, node outputs, branch decisions and extra
// variables.
//
// The scheduler is its only writer. Executors receive a private Clone and
// report their changes through NodeResult, so a late executor abandoned
// after a timeout can never race with the run.
type ExecutionContext struct {
	runID      string
	flowID     int64
	input      string
	transcript []Turn
	history    int
	outputs    map[int64]any
	last       int64
	branches   map[int64]string
	vars       map[string]any
}

// NewExecutionContext creates the context for a run.
func NewExecutionContext(runID string, flowID int64, input string) *ExecutionContext {
	return &ExecutionContext{
		runID:    runID,
		flowID:   flowID,
		input:    input,
		outputs:  make(map[int64]any),
		branches: make(map[int64]string),
		vars:     make(map[string]any),
	}
}

// RunID returns the run identifier.
func (c *ExecutionContext) RunID() string { return c.runID }

// FlowID returns the flow being executed.
func (c *ExecutionContext) FlowID() int64 { return c.flowID }

// Input returns the user input of the run.
func (c *ExecutionContext) Input() string { return c.input }

// SeedHistory prepends prior chat turns. It must be called before any turn
// is appended.
func (c *ExecutionContext) SeedHistory(turns ...Turn) {
	c.transcript = append(slices.Clone(turns), c.transcript...)
	c.history += len(turns)
}

// History returns the turns that preceded this run.
func (c *ExecutionContext) History() []Turn {
	return slices.Clone(c.transcript[:c.history])
}

// RecordOutput stores the output of a node.
func (c *ExecutionContext) RecordOutput(nodeID int64, value any) {
	c.outputs[nodeID] = value
	c.last = nodeID
}

// LastOutput returns the most recently recorded output.
func (c *ExecutionContext) LastOutput() (any, bool) {
	v, ok := c.outputs[c.last]
	return v, ok
}

// Output returns the output of a node, or an error wrapping
// ErrNotYetProduced.
func (c *ExecutionContext) Output(nodeID int64) (any, error) {
	v, ok := c.outputs[nodeID]
	if !ok {
		return nil, fmt.Errorf("%w: node %d", ErrNotYetProduced, nodeID)
	}
	return v, nil
}

// HasOutput reports whether nodeID has produced an output.
func (c *ExecutionContext) HasOutput(nodeID int64) bool {
	_, ok := c.outputs[nodeID]
	return ok
}

// AppendTranscript appends a turn.
func (c *ExecutionContext) AppendTranscript(role Role, content string) {
	c.transcript = append(c.transcript, Turn{Role: role, Content: content})
}

// Transcript returns a copy of the full transcript, history included.
func (c *ExecutionContext) Transcript() []Turn {
	return slices.Clone(c.transcript)
}

// SelectBranch records the branch chosen by a decision node.
func (c *ExecutionContext) SelectBranch(nodeID int64, tag string) {
	c.branches[nodeID] = tag
}

// Branch returns the branch chosen by a decision node.
func (c *ExecutionContext) Branch(nodeID int64) (string, bool) {
	tag, ok := c.branches[nodeID]
	return tag, ok
}

// SetVar sets an extra variable visible to templates and predicates.
func (c *ExecutionContext) SetVar(name string, value any) {
	c.vars[name] = value
}

// Var returns an extra variable.
func (c *ExecutionContext) Var(name string) (any, bool) {
	v, ok := c.vars[name]
	return v, ok
}

// Vars returns the variables visible to templates and predicates: extra
// variables, then "input", "history" (prior turns rendered one per line) and
// "node_<id>" for every output produced so far, and "last_output" once any
// node has produced one. Built-in names shadow extra variables of the same
// name.
func (c *ExecutionContext) Vars() map[string]any {
	vars := make(map[string]any, len(c.vars)+len(c.outputs)+2)
	maps.Copy(vars, c.vars)
	vars["input"] = c.input
	vars["history"] = RenderTurns(c.transcript[:c.history])
	for id, v := range c.outputs {
		vars[OutputVar(id)] = v
	}
	if v, ok := c.LastOutput(); ok {
		vars["last_output"] = v
	}
	return vars
}

// OutputVar returns the variable name under which a node's output is exposed.
func OutputVar(nodeID int64) string {
	return "node_" + formatID(nodeID)
}

// RenderTurns formats turns as "role: content" lines.
func RenderTurns(turns []Turn) string {
	var b strings.Builder
	for i, t := range turns {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(string(t.Role))
		b.WriteString(": ")
		b.WriteString(t.Content)
	}
	return b.String()
}

// Clone returns an independent copy. Output values themselves are shared.
func (c *ExecutionContext) Clone() *ExecutionContext {
	return &ExecutionContext{
		runID:      c.runID,
		flowID:     c.flowID,
		input:      c.input,
		transcript: slices.Clone(c.transcript),
		history:    c.history,
		outputs:    maps.Clone(c.outputs),
		last:       c.last,
		branches:   maps.Clone(c.branches),
		vars:       maps.Clone(c.vars),
	}
}

// apply merges the result of nodeID into c.
func (c *ExecutionContext) apply(nodeID int64, res NodeResult) {
	c.RecordOutput(nodeID, res.Output)
	if res.Branch != "" {
		c.SelectBranch(nodeID, res.Branch)
	}
	c.transcript = append(c.transcript, res.Transcript...)
}
