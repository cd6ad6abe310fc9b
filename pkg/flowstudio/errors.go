package flowstudio

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for graph validation. Build reports each problem as a
// *GraphError wrapping one of these.
var (
	ErrDuplicateNode         = errors.New("duplicate node id")
	ErrDuplicateEdge         = errors.New("duplicate edge id")
	ErrNoStart               = errors.New("flow has no START node")
	ErrMultipleStart         = errors.New("flow has more than one START node")
	ErrUnknownNode           = errors.New("edge references unknown node")
	ErrSelfLoop              = errors.New("edge loops back to its source")
	ErrCycleDetected         = errors.New("cycle detected")
	ErrOrphanNode            = errors.New("node has no incoming edge")
	ErrInvalidBranchCoverage = errors.New("invalid branch coverage")
	ErrInvalidPayload        = errors.New("invalid node payload")
)

// Sentinel errors identifying the kind of a *NodeError.
var (
	ErrProvider            = errors.New("provider error")
	ErrRetrieval           = errors.New("retrieval error")
	ErrClassification      = errors.New("classification error")
	ErrPredicateEval       = errors.New("predicate evaluation error")
	ErrPromptRender        = errors.New("prompt render error")
	ErrInputTooLong        = errors.New("input too long")
	ErrExecutionTimeout    = errors.New("execution timeout")
	ErrUnsupportedNodeType = errors.New("unsupported node type")
	ErrNodePanic           = errors.New("node panicked")
)

// nodeErrorKinds is the lookup order used by NodeError.Kind.
var nodeErrorKinds = []error{
	ErrUnsupportedNodeType,
	ErrExecutionTimeout,
	ErrNodePanic,
	ErrInputTooLong,
	ErrPromptRender,
	ErrPredicateEval,
	ErrClassification,
	ErrRetrieval,
	ErrProvider,
}

// Sentinel errors for runs.
var (
	// ErrNoAnswerReached indicates the run finished without executing an
	// ANSWER node.
	ErrNoAnswerReached = errors.New("no answer reached")

	// ErrRunCancelled indicates the run was cancelled via CancelRun or its
	// context.
	ErrRunCancelled = errors.New("run cancelled")

	// ErrRunNotFound indicates CancelRun was given an unknown or finished run.
	ErrRunNotFound = errors.New("run not found")

	// ErrDuplicateRun indicates a run id is already in use.
	ErrDuplicateRun = errors.New("run id already active")

	// ErrFlowNotFound is returned by loaders for unknown flow ids.
	ErrFlowNotFound = errors.New("flow not found")

	// ErrNotYetProduced indicates a node output was read before the node ran.
	ErrNotYetProduced = errors.New("output not yet produced")
)

// GraphError describes one problem in a flow definition.
type GraphError struct {
	// Err is one of the graph sentinel errors.
	Err error
	// NodeIDs lists the nodes involved, ascending.
	NodeIDs []int64
	// Detail is a human-readable elaboration.
	Detail string
}

// Error implements the error interface.
func (e *GraphError) Error() string {
	var b strings.Builder
	b.WriteString(e.Err.Error())
	if len(e.NodeIDs) > 0 {
		ids := make([]string, len(e.NodeIDs))
		for i, id := range e.NodeIDs {
			ids[i] = formatID(id)
		}
		fmt.Fprintf(&b, " (nodes %s)", strings.Join(ids, ", "))
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	return b.String()
}

// Unwrap returns the sentinel for errors.Is support.
func (e *GraphError) Unwrap() error {
	return e.Err
}

// NodeError wraps a failure with the node that produced it.
type NodeError struct {
	NodeID int64
	Type   NodeType
	// Op is the phase that failed: "dispatch" or "execute".
	Op  string
	Err error
}

// Error implements the error interface.
func (e *NodeError) Error() string {
	return fmt.Sprintf("node %d (%s): %s: %v", e.NodeID, e.Type, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *NodeError) Unwrap() error {
	return e.Err
}

// Kind returns the node error sentinel wrapped by e, or nil if the executor
// returned an unclassified error.
func (e *NodeError) Kind() error {
	for _, kind := range nodeErrorKinds {
		if errors.Is(e.Err, kind) {
			return kind
		}
	}
	return nil
}

// PanicError captures a panic recovered from an executor.
type PanicError struct {
	NodeID int64
	Value  any
	Stack  string
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("node %d panicked: %v", e.NodeID, e.Value)
}

// Unwrap returns ErrNodePanic.
func (e *PanicError) Unwrap() error {
	return ErrNodePanic
}

// RunError is a failure attributed to the run as a whole.
type RunError struct {
	RunID string
	Err   error
}

// Error implements the error interface.
func (e *RunError) Error() string {
	return fmt.Sprintf("run %s: %v", e.RunID, e.Err)
}

// Unwrap returns the underlying error.
func (e *RunError) Unwrap() error {
	return e.Err
}

// CancellationError reports where a run was when it was cancelled.
type CancellationError struct {
	RunID string
	// NodeID is the node that was executing, or the next ready node.
	// Zero when nothing was pending.
	NodeID int64
	// Cause is context.Canceled or the context's cancellation cause.
	Cause error
	// WasExecuting is true if cancellation interrupted a node.
	WasExecuting bool
}

// Error implements the error interface.
func (e *CancellationError) Error() string {
	if e.WasExecuting {
		return fmt.Sprintf("run %s cancelled during node %d: %v", e.RunID, e.NodeID, e.Cause)
	}
	return fmt.Sprintf("run %s cancelled before node %d: %v", e.RunID, e.NodeID, e.Cause)
}

// Unwrap exposes both ErrRunCancelled and the cause.
func (e *CancellationError) Unwrap() []error {
	return []error{ErrRunCancelled, e.Cause}
}

// AuditError wraps a failure to persist an audit record. It only fails the
// run when the engine is built with WithAuditFailureFatal.
type AuditError struct {
	RunID string
	// NodeID is 0 for the run record.
	NodeID int64
	Op     string
	Err    error
}

// Error implements the error interface.
func (e *AuditError) Error() string {
	return fmt.Sprintf("audit %s for run %s node %d: %v", e.Op, e.RunID, e.NodeID, e.Err)
}

// Unwrap returns the underlying error.
func (e *AuditError) Unwrap() error {
	return e.Err
}
