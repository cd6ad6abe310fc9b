package flowstudio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"time"

	"github.com/randalmurphal/flowstudio/pkg/flowstudio/audit"
	flowerrors "github.com/randalmurphal/flowstudio/pkg/flowstudio/errors"
	"github.com/randalmurphal/flowstudio/pkg/flowstudio/observability"
	"github.com/randalmurphal/flowstudio/pkg/flowstudio/registry"
)

// Engine loads flows and runs them.
//
// An Engine is safe for concurrent use. Runs share only the loader, the
// registry and the engine's configuration; each run owns its graph and
// ExecutionContext.
type Engine struct {
	loader   GraphLoader
	registry *Registry
	cfg      engineConfig

	runs *registry.Registry[string, *activeRun]
}

// NewEngine creates an engine. A nil registry means NewDefaultRegistry with
// no collaborators, which can only run flows without LLM, retriever or
// classifier nodes.
func NewEngine(loader GraphLoader, reg *Registry, opts ...Option) *Engine {
	if reg == nil {
		reg = NewDefaultRegistry(Dependencies{})
	}
	cfg := defaultEngineConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Engine{
		loader:   loader,
		registry: reg,
		cfg:      cfg,
		runs:     registry.New[string, *activeRun](),
	}
}

// Validate loads and builds a flow without running it.
func (e *Engine) Validate(ctx context.Context, flowID int64) error {
	_, err := e.load(ctx, flowID)
	return err
}

func (e *Engine) load(ctx context.Context, flowID int64) (*Graph, error) {
	if e.loader == nil {
		return nil, fmt.Errorf("%w: %d: no graph loader configured", ErrFlowNotFound, flowID)
	}
	nodes, edges, err := e.loader.LoadGraph(ctx, flowID)
	if err != nil {
		return nil, fmt.Errorf("load flow %d: %w", flowID, err)
	}
	g, err := Build(nodes, edges)
	if err != nil {
		return nil, fmt.Errorf("build flow %d: %w", flowID, err)
	}
	return g, nil
}

// RunFlow loads flow flowID and runs it with input.
//
// The returned RunResult is never nil. The error is non-nil exactly when the
// run ends FAILED and is the same value as RunResult.Err: a *NodeError for a
// failed node, a *CancellationError when the run was cancelled, or a
// *RunError otherwise (ErrNoAnswerReached, load and build failures).
//
// Example:
//
//	res, err := engine.RunFlow(ctx, 42, "What is your refund policy?")
//	if err != nil {
//	    var nodeErr *flowstudio.NodeError
//	    if errors.As(err, &nodeErr) {
//	        log.Printf("node %d failed: %v", nodeErr.NodeID, nodeErr.Kind())
//	    }
//	}
//	fmt.Println(res.Answer)
func (e *Engine) RunFlow(ctx context.Context, flowID int64, input string, opts ...RunOption) (*RunResult, error) {
	return e.run(ctx, flowID, input, opts, func(ctx context.Context) (*Graph, error) {
		return e.load(ctx, flowID)
	})
}

// RunGraph runs an already built graph. The flow id is taken from the START
// node.
func (e *Engine) RunGraph(ctx context.Context, g *Graph, input string, opts ...RunOption) (*RunResult, error) {
	return e.run(ctx, g.Start().FlowID, input, opts, func(context.Context) (*Graph, error) {
		return g, nil
	})
}

// CancelRun cancels an active run. The run ends FAILED with a
// *CancellationError once its current node returns or times out.
func (e *Engine) CancelRun(runID string) error {
	active, ok := e.runs.Get(runID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	active.cancel()
	return nil
}

// ActiveRuns returns the ids of runs in progress, sorted.
func (e *Engine) ActiveRuns() []string {
	return e.runs.Keys()
}

// Progress reports how far an active run has got.
func (e *Engine) Progress(runID string) (RunProgress, error) {
	active, ok := e.runs.Get(runID)
	if !ok {
		return RunProgress{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return active.snapshot(runID), nil
}

// run is the per-run state owned by one RunFlow call.
type run struct {
	engine *Engine
	active *activeRun
	graph  *Graph
	ec     *ExecutionContext
	result *RunResult
	logger *slog.Logger

	edges    map[int64]edgeState
	ready    readyQueue
	skipped  []int64
	partial  bool
	sequence int
	lastNode int64
}

type edgeState uint8

const (
	edgePending edgeState = iota
	edgeActive
	edgeDead
)

func (e *Engine) run(ctx context.Context, flowID int64, input string, opts []RunOption, load func(context.Context) (*Graph, error)) (result *RunResult, runErr error) {
	var rc runConfig
	for _, opt := range opts {
		opt(&rc)
	}
	runID := rc.runID
	if runID == "" {
		runID = e.cfg.newRunID()
	}

	result = &RunResult{
		RunID:     runID,
		FlowID:    flowID,
		Status:    RunPending,
		StartedAt: time.Now(),
	}
	logger := observability.EnrichLogger(e.cfg.logger, runID, flowID)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	active := &activeRun{cancel: cancel, flowID: flowID, startedAt: result.StartedAt}
	if !e.runs.Add(runID, active) {
		result.Status = RunFailed
		result.Err = &RunError{RunID: runID, Err: ErrDuplicateRun}
		return result, result.Err
	}
	defer e.runs.Delete(runID)

	observability.LogRunStart(logger, runID, flowID)
	runCtx, span := e.cfg.spans.StartRunSpan(runCtx, flowID, runID)

	r := &run{
		engine: e,
		active: active,
		result: result,
		logger: logger,
		edges:  make(map[int64]edgeState),
	}

	defer func() {
		result.Duration = time.Since(result.StartedAt)
		durationMs := float64(result.Duration.Milliseconds())
		e.cfg.metrics.RecordRun(runCtx, string(result.Status), result.Duration)
		e.cfg.spans.EndSpanWithError(span, result.Err)
		if result.Err != nil {
			observability.LogRunError(logger, runID, result.Err, durationMs, r.lastNode)
		} else {
			observability.LogRunComplete(logger, runID, string(result.Status), durationMs, len(result.Nodes))
		}
		runErr = result.Err
	}()

	g, err := load(runCtx)
	if err != nil {
		if runCtx.Err() != nil {
			r.fail(&CancellationError{RunID: runID, Cause: context.Cause(runCtx)})
		} else {
			r.fail(&RunError{RunID: runID, Err: err})
		}
		r.saveRunRecord(runCtx)
		return result, result.Err
	}
	r.graph = g

	r.ec = NewExecutionContext(runID, flowID, input)
	r.ec.SeedHistory(rc.history...)
	for k, v := range rc.vars {
		r.ec.SetVar(k, v)
	}

	result.Status = RunRunning
	r.execute(runCtx)
	r.finish()
	r.saveRunRecord(runCtx)
	return result, result.Err
}

// execute drives the ready queue until it drains or the run fails.
func (r *run) execute(ctx context.Context) {
	r.ready.push(r.graph.Start().ID)

	for r.ready.len() > 0 {
		next := r.ready.peek()
		if ctx.Err() != nil {
			r.fail(&CancellationError{
				RunID:  r.result.RunID,
				NodeID: next,
				Cause:  context.Cause(ctx),
			})
			return
		}
		r.ready.pop()

		node, _ := r.graph.Node(next)
		r.lastNode = node.ID
		r.active.begin(node.ID)
		rec, res, err := r.engine.runNode(ctx, r.graph, node, r.ec, r.optional(node), r.logger)
		r.active.end(node.ID)
		r.result.Nodes = append(r.result.Nodes, rec)

		if err != nil {
			if ctx.Err() != nil {
				r.saveNodeRecord(ctx, rec)
				r.fail(&CancellationError{
					RunID:        r.result.RunID,
					NodeID:       node.ID,
					Cause:        context.Cause(ctx),
					WasExecuting: true,
				})
				return
			}
			if !r.optional(node) || errors.Is(err, ErrUnsupportedNodeType) {
				r.saveNodeRecord(ctx, rec)
				r.fail(err)
				return
			}
			r.partial = true
			r.settleFailed(node)
		} else {
			r.ec.apply(node.ID, res)
			if res.Final {
				r.result.Answer = fmt.Sprint(res.Output)
				r.result.AnswerReached = true
			}
			r.settle(node, res.Branch)
		}

		if err := r.saveNodeRecord(ctx, rec); err != nil {
			r.fail(err)
			return
		}
	}
}

func (r *run) optional(node *Node) bool {
	return node.Optional || r.engine.cfg.optional[node.ID]
}

// settle resolves the out-edges of a node that succeeded. Decision nodes
// keep only the edge tagged with the selected branch.
func (r *run) settle(node *Node, branch string) {
	for _, link := range r.graph.Successors(node.ID) {
		state := edgeActive
		if node.Type.IsDecision() && link.Edge.Branch != branch {
			state = edgeDead
		}
		r.edges[link.Edge.ID] = state
	}
	r.resolveTargets(node.ID)
}

// settleFailed resolves the out-edges of a failed optional node. Ordinary
// edges stay live so the flow continues; a decision without a decision
// selects nothing.
func (r *run) settleFailed(node *Node) {
	state := edgeActive
	if node.Type.IsDecision() {
		state = edgeDead
	}
	for _, link := range r.graph.Successors(node.ID) {
		r.edges[link.Edge.ID] = state
	}
	r.resolveTargets(node.ID)
}

// resolveTargets enqueues or skips every successor of id whose incoming
// edges are all resolved.
func (r *run) resolveTargets(id int64) {
	for _, link := range r.graph.Successors(id) {
		r.resolve(link.Node)
	}
}

func (r *run) resolve(node *Node) {
	anyActive := false
	for _, link := range r.graph.Predecessors(node.ID) {
		switch r.edges[link.Edge.ID] {
		case edgePending:
			return
		case edgeActive:
			anyActive = true
		}
	}
	if anyActive {
		r.ready.push(node.ID)
		return
	}
	if slices.Contains(r.skipped, node.ID) {
		return
	}

	r.skipped = append(r.skipped, node.ID)
	r.active.skip(node.ID)
	observability.LogNodeSkipped(r.logger, node.ID, string(node.Type))
	for _, link := range r.graph.Successors(node.ID) {
		r.edges[link.Edge.ID] = edgeDead
	}
	r.resolveTargets(node.ID)
}

func (r *run) fail(err error) {
	r.result.Status = RunFailed
	r.result.Err = err
}

// finish decides the terminal status of a run that was not failed early.
func (r *run) finish() {
	slices.Sort(r.skipped)
	r.result.Skipped = r.skipped
	r.result.Transcript = r.ec.Transcript()

	if r.result.Status == RunFailed {
		return
	}
	switch {
	case !r.result.AnswerReached:
		r.fail(&RunError{RunID: r.result.RunID, Err: ErrNoAnswerReached})
	case r.partial:
		r.result.Status = RunPartial
	default:
		r.result.Status = RunSucceeded
	}
}

// runNode executes one node with logging, metrics and tracing.
func (e *Engine) runNode(ctx context.Context, g *Graph, node *Node, ec *ExecutionContext, optional bool, logger *slog.Logger) (NodeRecord, NodeResult, error) {
	rec := NodeRecord{
		NodeID:    node.ID,
		Type:      node.Type,
		Name:      node.Name,
		StartedAt: time.Now(),
	}
	nodeType := string(node.Type)

	observability.LogNodeStart(logger, node.ID, nodeType)
	nodeCtx, span := e.cfg.spans.StartNodeSpan(ctx, node.ID, nodeType)

	res, err := e.dispatch(nodeCtx, node, ec)
	if err == nil && node.Type.IsDecision() && !g.HasBranch(node.ID, res.Branch) {
		err = &NodeError{
			NodeID: node.ID,
			Type:   node.Type,
			Op:     "route",
			Err:    fmt.Errorf("%w: no edge for %q", ErrClassification, res.Branch),
		}
	}

	rec.Duration = time.Since(rec.StartedAt)
	e.cfg.metrics.RecordNodeExecution(nodeCtx, nodeType, rec.Duration, err)
	e.cfg.spans.EndSpanWithError(span, err)

	if err != nil {
		rec.Status = NodeFailed
		rec.Err = err
		observability.LogNodeError(logger, node.ID, nodeType, err, optional)
		return rec, NodeResult{}, err
	}

	rec.Status = NodeSucceeded
	rec.Output = res.Output
	if node.Type.IsDecision() {
		rec.Branch = res.Branch
	}
	rec.Metadata = res.Metadata
	observability.LogNodeComplete(logger, node.ID, nodeType, float64(rec.Duration.Milliseconds()))
	return rec, res, nil
}

type outcome struct {
	res NodeResult
	err error
}

// dispatch resolves the executor for node and runs it on a clone of ec,
// bounded by the node type's timeout. A late executor is abandoned; its
// result is discarded because it only ever saw the clone.
func (e *Engine) dispatch(ctx context.Context, node *Node, ec *ExecutionContext) (NodeResult, error) {
	exec, ok := e.registry.Lookup(node.Type)
	if !ok {
		return NodeResult{}, &NodeError{
			NodeID: node.ID,
			Type:   node.Type,
			Op:     "dispatch",
			Err:    fmt.Errorf("%w: %q", ErrUnsupportedNodeType, node.Type),
		}
	}

	timeout := e.cfg.timeout(node.Type)
	var nodeCtx context.Context
	var cancel context.CancelFunc
	if timeout > 0 {
		nodeCtx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		nodeCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	done := make(chan outcome, 1)
	clone := ec.Clone()
	go func() {
		defer func() {
			if v := recover(); v != nil {
				done <- outcome{err: &PanicError{
					NodeID: node.ID,
					Value:  v,
					Stack:  string(debug.Stack()),
				}}
			}
		}()
		res, err := exec.Execute(nodeCtx, node, clone)
		done <- outcome{res: res, err: err}
	}()

	timedOut := func() error {
		return &NodeError{
			NodeID: node.ID,
			Type:   node.Type,
			Op:     "execute",
			Err: fmt.Errorf("%w: %w", ErrExecutionTimeout,
				&flowerrors.TimeoutError{Operation: node.Label(), Duration: timeout}),
		}
	}

	select {
	case out := <-done:
		if out.err == nil {
			return out.res, nil
		}
		if ctx.Err() == nil && errors.Is(nodeCtx.Err(), context.DeadlineExceeded) {
			return NodeResult{}, timedOut()
		}
		return NodeResult{}, &NodeError{NodeID: node.ID, Type: node.Type, Op: "execute", Err: out.err}
	case <-nodeCtx.Done():
		if ctx.Err() != nil {
			return NodeResult{}, &NodeError{NodeID: node.ID, Type: node.Type, Op: "execute", Err: context.Cause(ctx)}
		}
		return NodeResult{}, timedOut()
	}
}

// saveNodeRecord writes the audit record of an executed node. The error is
// non-nil only when audit failures are fatal.
func (r *run) saveNodeRecord(ctx context.Context, rec NodeRecord) error {
	if r.engine.cfg.audit == nil {
		return nil
	}
	r.sequence++
	a := audit.NewNodeRecord(r.result.RunID, r.result.FlowID, rec.NodeID, string(rec.Type), r.sequence)
	a.Status = string(rec.Status)
	a.Output = rec.Output
	a.Branch = rec.Branch
	a.DurationMs = rec.Duration.Milliseconds()
	a.Metadata = rec.Metadata
	if rec.Err != nil {
		a.Error = rec.Err.Error()
	}
	return r.saveRecord(ctx, a)
}

// saveRunRecord writes the final record of the run. A fatal audit failure
// fails a run that had otherwise completed.
func (r *run) saveRunRecord(ctx context.Context) {
	if r.engine.cfg.audit == nil {
		return
	}
	r.sequence++
	a := audit.NewRunRecord(r.result.RunID, r.result.FlowID, r.sequence)
	a.Status = string(r.result.Status)
	a.Answer = r.result.Answer
	a.Skipped = r.result.Skipped
	a.DurationMs = time.Since(r.result.StartedAt).Milliseconds()
	if r.result.Err != nil {
		a.Error = r.result.Err.Error()
	}
	if err := r.saveRecord(ctx, a); err != nil && r.result.Status != RunFailed {
		r.fail(err)
	}
}

func (r *run) saveRecord(ctx context.Context, a *audit.Record) error {
	cfg := &r.engine.cfg
	// Records are written even after the run is cancelled.
	ctx = context.WithoutCancel(ctx)

	data, err := a.Marshal()
	if err == nil {
		err = cfg.audit.Save(ctx, a.RunID, a.Key(), data)
	}
	if err != nil {
		observability.LogAuditError(r.logger, a.RunID, a.NodeID, err)
		if cfg.auditFatal {
			return &AuditError{RunID: a.RunID, NodeID: a.NodeID, Op: "save", Err: err}
		}
		return nil
	}
	observability.LogAudit(r.logger, a.RunID, a.NodeID, len(data))
	cfg.metrics.RecordAudit(ctx, string(a.Kind), int64(len(data)))
	return nil
}
