package flowstudio

import (
	"context"
	"slices"
	"sync"
	"time"
)

// RunProgress is a point-in-time view of an active run.
type RunProgress struct {
	RunID     string
	FlowID    int64
	StartedAt time.Time
	// Current is the executing node, 0 between nodes.
	Current int64
	// Completed lists finished nodes, failed optional ones included, in
	// execution order.
	Completed []int64
	// Skipped lists nodes on dead branches found so far, in discovery order.
	Skipped []int64
}

// Elapsed returns the time since the run started.
func (p RunProgress) Elapsed() time.Duration {
	return time.Since(p.StartedAt)
}

// activeRun is the engine's handle on a run in progress. The run loop
// writes it; CancelRun and Progress read it from other goroutines.
type activeRun struct {
	cancel    context.CancelFunc
	flowID    int64
	startedAt time.Time

	mu        sync.Mutex
	current   int64
	completed []int64
	skipped   []int64
}

func (a *activeRun) begin(nodeID int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.current = nodeID
}

func (a *activeRun) end(nodeID int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.current = 0
	a.completed = append(a.completed, nodeID)
}

func (a *activeRun) skip(nodeID int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.skipped = append(a.skipped, nodeID)
}

func (a *activeRun) snapshot(runID string) RunProgress {
	a.mu.Lock()
	defer a.mu.Unlock()
	return RunProgress{
		RunID:     runID,
		FlowID:    a.flowID,
		StartedAt: a.startedAt,
		Current:   a.current,
		Completed: slices.Clone(a.completed),
		Skipped:   slices.Clone(a.skipped),
	}
}
