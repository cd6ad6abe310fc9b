package flowstudio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/randalmurphal/flowstudio/pkg/flowstudio/audit"
	flowerrors "github.com/randalmurphal/flowstudio/pkg/flowstudio/errors"
	"github.com/randalmurphal/flowstudio/pkg/flowstudio/llm"
	"github.com/randalmurphal/flowstudio/pkg/flowstudio/observability"
	"github.com/randalmurphal/flowstudio/pkg/flowstudio/retrieval"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newEngineWith(reg *Registry, opts ...Option) *Engine {
	return NewEngine(NewMemoryLoader(), reg, append([]Option{WithLogger(discardLogger())}, opts...)...)
}

// blockingExecutor signals started and then waits for cancellation.
func blockingExecutor(started chan<- struct{}) Executor {
	return ExecutorFunc(func(ctx context.Context, _ *Node, _ *ExecutionContext) (NodeResult, error) {
		close(started)
		<-ctx.Done()
		return NodeResult{}, ctx.Err()
	})
}

func TestEngine_RunFlow_FromLoader(t *testing.T) {
	loader := NewMemoryLoader()
	loader.Put(42, []Node{startNode(1), llmNode(2, "Reply to: ${input}"), answerNode(3, "Bot: ${node_2}")},
		[]Edge{edge(1, 2), edge(2, 3)})

	client := llm.NewMockClient("hello")
	retry := fastRetry()
	e := NewEngine(loader, NewDefaultRegistry(Dependencies{LLM: client, Retry: &retry}), WithLogger(discardLogger()))

	res, err := e.RunFlow(context.Background(), 42, "hi", WithRunID("run-1"))
	require.NoError(t, err)
	assert.Equal(t, "run-1", res.RunID)
	assert.Equal(t, int64(42), res.FlowID)
	assert.Equal(t, RunSucceeded, res.Status)
	assert.Equal(t, "Bot: hello", res.Answer)
	assert.Equal(t, []int64{1, 2, 3}, res.Order())
	assert.Equal(t, "Reply to: hi", client.LastCall().Messages[0].Content)
	assert.Equal(t, []Turn{
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "Bot: hello"},
	}, res.Transcript)
	assert.Empty(t, e.ActiveRuns())
}

func TestEngine_RunFlow_LoadErrors(t *testing.T) {
	loader := NewMemoryLoader()
	loader.Put(7, []Node{answerNode(1, "x")}, nil)
	e := NewEngine(loader, nil, WithLogger(discardLogger()))

	res, err := e.RunFlow(context.Background(), 99, "hi")
	require.Error(t, err)
	assert.Equal(t, RunFailed, res.Status)
	assert.ErrorIs(t, err, ErrFlowNotFound)
	var runErr *RunError
	assert.ErrorAs(t, err, &runErr)
	assert.Equal(t, res.Err, err)

	_, err = e.RunFlow(context.Background(), 7, "hi")
	assert.ErrorIs(t, err, ErrNoStart)

	assert.ErrorIs(t, e.Validate(context.Background(), 7), ErrNoStart)
	assert.ErrorIs(t, e.Validate(context.Background(), 99), ErrFlowNotFound)
}

func TestEngine_Validate(t *testing.T) {
	loader := NewMemoryLoader()
	loader.Put(1, []Node{startNode(1), answerNode(2, "ok")}, []Edge{edge(1, 2)})
	e := NewEngine(loader, nil)
	assert.NoError(t, e.Validate(context.Background(), 1))

	assert.ErrorIs(t, NewEngine(nil, nil).Validate(context.Background(), 1), ErrFlowNotFound)
}

func TestEngine_NoAnswerReached(t *testing.T) {
	g := mustBuild(t, []Node{startNode(1), llmNode(2, "")}, []Edge{edge(1, 2)})
	e := newTestEngine(t, Dependencies{LLM: llm.NewMockClient("x")})

	res, err := e.RunGraph(context.Background(), g, "hi")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoAnswerReached)
	assert.Equal(t, RunFailed, res.Status)
	assert.False(t, res.AnswerReached)
	assert.Len(t, res.Nodes, 2)
}

func TestEngine_NodeFailureFailsFast(t *testing.T) {
	g := mustBuild(t,
		[]Node{startNode(1), llmNode(2, ""), answerNode(3, "x")},
		[]Edge{edge(1, 2), edge(2, 3)},
	)
	client := llm.NewMockClient("").WithError(&llm.Error{Provider: "openai", Op: "generate", StatusCode: 400, Err: errors.New("bad request")})
	e := newTestEngine(t, Dependencies{LLM: client})

	res, err := e.RunGraph(context.Background(), g, "hi")
	require.Error(t, err)
	assert.Equal(t, RunFailed, res.Status)

	var nodeErr *NodeError
	require.ErrorAs(t, err, &nodeErr)
	assert.Equal(t, int64(2), nodeErr.NodeID)
	assert.Equal(t, ErrProvider, nodeErr.Kind())

	assert.Equal(t, []int64{1, 2}, res.Order())
	rec, ok := res.Node(2)
	require.True(t, ok)
	assert.Equal(t, NodeFailed, rec.Status)
	assert.Len(t, res.Failed(), 1)
}

func TestEngine_OptionalFailureIsPartial(t *testing.T) {
	tests := []struct {
		name string
		node Node
		opts []Option
	}{
		{
			name: "node flag",
			node: Node{ID: 2, Type: NodeLLM, Optional: true, Payload: LLMConfig{}},
		},
		{
			name: "engine option",
			node: llmNode(2, ""),
			opts: []Option{WithOptionalNodes(2)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := mustBuild(t,
				[]Node{startNode(1), tt.node, answerNode(3, "fallback for ${input}")},
				[]Edge{edge(1, 2), edge(2, 3)},
			)
			client := llm.NewMockClient("").WithError(errors.New("boom"))
			e := newTestEngine(t, Dependencies{LLM: client}, tt.opts...)

			res, err := e.RunGraph(context.Background(), g, "hi")
			require.NoError(t, err)
			assert.Equal(t, RunPartial, res.Status)
			assert.Equal(t, "fallback for hi", res.Answer)
			assert.Equal(t, []int64{1, 2, 3}, res.Order())
			assert.Len(t, res.Failed(), 1)
		})
	}
}

func TestEngine_OptionalDecisionFailureKillsBranches(t *testing.T) {
	g := mustBuild(t,
		[]Node{
			startNode(1),
			{ID: 2, Type: NodeConditional, Optional: true, Payload: ConditionalConfig{Expression: "missing == 1"}},
			answerNode(3, "yes"),
			answerNode(4, "no"),
			answerNode(5, "other"),
		},
		[]Edge{edge(1, 2), branch(2, 3, BranchTrue), branch(2, 4, BranchFalse), edge(1, 5)},
	)
	e := newTestEngine(t, Dependencies{})

	res, err := e.RunGraph(context.Background(), g, "hi")
	require.NoError(t, err)
	assert.Equal(t, RunPartial, res.Status)
	assert.Equal(t, "other", res.Answer)
	assert.Equal(t, []int64{3, 4}, res.Skipped)
	assert.Equal(t, []int64{1, 2, 5}, res.Order())
}

func TestEngine_UnsupportedNodeTypeIgnoresOptional(t *testing.T) {
	g := mustBuild(t,
		[]Node{startNode(1), {ID: 2, Type: "WEBHOOK", Optional: true}, answerNode(3, "x")},
		[]Edge{edge(1, 2), edge(2, 3)},
	)
	e := newTestEngine(t, Dependencies{})

	res, err := e.RunGraph(context.Background(), g, "hi")
	require.Error(t, err)
	assert.Equal(t, RunFailed, res.Status)
	assert.ErrorIs(t, err, ErrUnsupportedNodeType)

	var nodeErr *NodeError
	require.ErrorAs(t, err, &nodeErr)
	assert.Equal(t, "dispatch", nodeErr.Op)
	assert.Equal(t, []int64{1, 2}, res.Order())
}

func TestEngine_PanicIsRecovered(t *testing.T) {
	g := mustBuild(t,
		[]Node{startNode(1), llmNode(2, ""), answerNode(3, "x")},
		[]Edge{edge(1, 2), edge(2, 3)},
	)
	reg := NewDefaultRegistry(Dependencies{})
	reg.Register(NodeLLM, ExecutorFunc(func(context.Context, *Node, *ExecutionContext) (NodeResult, error) {
		panic("kaboom")
	}))
	e := newEngineWith(reg)

	res, err := e.RunGraph(context.Background(), g, "hi")
	require.Error(t, err)
	assert.Equal(t, RunFailed, res.Status)
	assert.ErrorIs(t, err, ErrNodePanic)

	var panicErr *PanicError
	require.ErrorAs(t, err, &panicErr)
	assert.Equal(t, "kaboom", panicErr.Value)
	assert.NotEmpty(t, panicErr.Stack)
}

func TestEngine_TimeoutPerNodeType(t *testing.T) {
	g := mustBuild(t,
		[]Node{startNode(1), llmNode(2, ""), answerNode(3, "x")},
		[]Edge{edge(1, 2), edge(2, 3)},
	)
	reg := NewDefaultRegistry(Dependencies{})
	reg.Register(NodeLLM, sleepExecutor(time.Second))
	e := newEngineWith(reg, WithNodeTimeout(NodeLLM, 20*time.Millisecond))

	start := time.Now()
	res, err := e.RunGraph(context.Background(), g, "hi")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	rec, ok := res.Node(2)
	require.True(t, ok)
	assert.Equal(t, NodeFailed, rec.Status)
	_, ok = res.Node(3)
	assert.False(t, ok, "node downstream of the timeout ran")

	var nodeErr *NodeError
	require.ErrorAs(t, err, &nodeErr)
	assert.Equal(t, ErrExecutionTimeout, nodeErr.Kind())

	var timeoutErr *flowerrors.TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, 20*time.Millisecond, timeoutErr.Duration)
}

func TestEngine_DefaultTimeoutAndDisable(t *testing.T) {
	g := mustBuild(t,
		[]Node{startNode(1), llmNode(2, ""), answerNode(3, "x")},
		[]Edge{edge(1, 2), edge(2, 3)},
	)
	reg := NewDefaultRegistry(Dependencies{})
	reg.Register(NodeLLM, sleepExecutor(30*time.Millisecond))

	e := newEngineWith(reg, WithDefaultTimeout(5*time.Millisecond))
	_, err := e.RunGraph(context.Background(), g, "hi")
	assert.ErrorIs(t, err, ErrExecutionTimeout)

	e = newEngineWith(reg, WithDefaultTimeout(5*time.Millisecond), WithNodeTimeout(NodeLLM, 0))
	res, err := e.RunGraph(context.Background(), g, "hi")
	require.NoError(t, err)
	assert.Equal(t, RunSucceeded, res.Status)
}

func TestEngine_CancelRunDuringNode(t *testing.T) {
	g := mustBuild(t,
		[]Node{startNode(1), llmNode(2, ""), answerNode(3, "x")},
		[]Edge{edge(1, 2), edge(2, 3)},
	)
	started := make(chan struct{})
	reg := NewDefaultRegistry(Dependencies{})
	reg.Register(NodeLLM, blockingExecutor(started))
	e := newEngineWith(reg)

	type outcome struct {
		res *RunResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := e.RunGraph(context.Background(), g, "hi", WithRunID("run-c"))
		done <- outcome{res, err}
	}()

	<-started
	assert.Equal(t, []string{"run-c"}, e.ActiveRuns())
	require.NoError(t, e.CancelRun("run-c"))

	out := <-done
	require.Error(t, out.err)
	assert.Equal(t, RunFailed, out.res.Status)
	assert.ErrorIs(t, out.err, ErrRunCancelled)
	assert.ErrorIs(t, out.err, context.Canceled)

	var cancelErr *CancellationError
	require.ErrorAs(t, out.err, &cancelErr)
	assert.Equal(t, int64(2), cancelErr.NodeID)
	assert.True(t, cancelErr.WasExecuting)
	assert.Equal(t, []int64{1, 2}, out.res.Order())
	assert.Empty(t, e.ActiveRuns())
}

func TestEngine_CancelledBeforeStart(t *testing.T) {
	g := mustBuild(t, []Node{startNode(1), answerNode(2, "x")}, []Edge{edge(1, 2)})
	e := newTestEngine(t, Dependencies{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := e.RunGraph(ctx, g, "hi")
	var cancelErr *CancellationError
	require.ErrorAs(t, err, &cancelErr)
	assert.False(t, cancelErr.WasExecuting)
	assert.Equal(t, int64(1), cancelErr.NodeID)
	assert.Empty(t, res.Nodes)
}

func TestEngine_CancelRunUnknown(t *testing.T) {
	e := newTestEngine(t, Dependencies{})
	assert.ErrorIs(t, e.CancelRun("nope"), ErrRunNotFound)
}

func TestEngine_Progress(t *testing.T) {
	g := mustBuild(t,
		[]Node{startNode(1), condNode(2, "input == 'hi'"), llmNode(3, ""), answerNode(4, "no"), answerNode(5, "yes")},
		[]Edge{edge(1, 2), branch(2, 3, BranchTrue), branch(2, 4, BranchFalse), edge(3, 5)},
	)
	started := make(chan struct{})
	reg := NewDefaultRegistry(Dependencies{})
	reg.Register(NodeLLM, blockingExecutor(started))
	e := newEngineWith(reg)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = e.RunGraph(context.Background(), g, "hi", WithRunID("run-p"))
	}()

	<-started
	p, err := e.Progress("run-p")
	require.NoError(t, err)
	assert.Equal(t, "run-p", p.RunID)
	assert.Equal(t, testFlowID, p.FlowID)
	assert.Equal(t, int64(3), p.Current)
	assert.Equal(t, []int64{1, 2}, p.Completed)
	assert.Equal(t, []int64{4}, p.Skipped)
	assert.GreaterOrEqual(t, p.Elapsed(), time.Duration(0))

	require.NoError(t, e.CancelRun("run-p"))
	<-done

	_, err = e.Progress("run-p")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestEngine_DuplicateRunID(t *testing.T) {
	g := mustBuild(t,
		[]Node{startNode(1), llmNode(2, ""), answerNode(3, "x")},
		[]Edge{edge(1, 2), edge(2, 3)},
	)
	started := make(chan struct{})
	reg := NewDefaultRegistry(Dependencies{})
	reg.Register(NodeLLM, blockingExecutor(started))
	e := newEngineWith(reg)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = e.RunGraph(context.Background(), g, "hi", WithRunID("dup"))
	}()
	<-started

	res, err := e.RunGraph(context.Background(), g, "hi", WithRunID("dup"))
	assert.ErrorIs(t, err, ErrDuplicateRun)
	assert.Equal(t, RunFailed, res.Status)

	require.NoError(t, e.CancelRun("dup"))
	<-done
}

func TestEngine_ClassifierRouting(t *testing.T) {
	g := mustBuild(t,
		[]Node{
			startNode(1),
			classifierNode(2, "billing", "tech"),
			answerNode(3, "billing team"),
			answerNode(4, "tech team"),
		},
		[]Edge{edge(1, 2), branch(2, 3, "billing"), branch(2, 4, "tech")},
	)
	e := newTestEngine(t, Dependencies{Classifier: &stubClassifier{label: "tech"}})

	res, err := e.RunGraph(context.Background(), g, "app crashes")
	require.NoError(t, err)
	assert.Equal(t, "tech team", res.Answer)
	assert.Equal(t, []int64{3}, res.Skipped)

	rec, ok := res.Node(2)
	require.True(t, ok)
	assert.Equal(t, "tech", rec.Branch)
}

func TestEngine_ClassifierLabelWithoutEdge(t *testing.T) {
	t.Run("fails the node", func(t *testing.T) {
		g := mustBuild(t,
			[]Node{startNode(1), classifierNode(2, "billing", "shipping"), answerNode(3, "billing team")},
			[]Edge{edge(1, 2), branch(2, 3, "billing")},
		)
		e := newTestEngine(t, Dependencies{Classifier: &stubClassifier{label: "shipping"}})

		res, err := e.RunGraph(context.Background(), g, "where is my parcel")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrClassification)
		assert.NotErrorIs(t, err, ErrNoAnswerReached)
		assert.Equal(t, RunFailed, res.Status)
		assert.Equal(t, []int64{1, 2}, res.Order())

		var nodeErr *NodeError
		require.ErrorAs(t, err, &nodeErr)
		assert.Equal(t, int64(2), nodeErr.NodeID)
		assert.Equal(t, "route", nodeErr.Op)

		rec, ok := res.Node(2)
		require.True(t, ok)
		assert.Equal(t, NodeFailed, rec.Status)
		_, ok = res.Node(3)
		assert.False(t, ok)
	})

	t.Run("optional node selects nothing", func(t *testing.T) {
		g := mustBuild(t,
			[]Node{
				startNode(1),
				{ID: 2, Type: NodeQuestionClassifier, Optional: true, Payload: ClassifierConfig{Classes: []string{"billing", "shipping"}}},
				answerNode(3, "billing team"),
				answerNode(4, "general"),
			},
			[]Edge{edge(1, 2), branch(2, 3, "billing"), edge(1, 4)},
		)
		e := newTestEngine(t, Dependencies{Classifier: &stubClassifier{label: "shipping"}})

		res, err := e.RunGraph(context.Background(), g, "where is my parcel")
		require.NoError(t, err)
		assert.Equal(t, RunPartial, res.Status)
		assert.Equal(t, "general", res.Answer)
		assert.Equal(t, []int64{3}, res.Skipped)
	})
}

func TestEngine_RetrievalAugmentedFlow(t *testing.T) {
	store := retrieval.NewMemoryStore()
	store.Index(5, "Refunds are issued within 5 days.", "Shipping is free over $50.")

	client := llm.NewMockClient("").WithHandler(func(req llm.CompletionRequest) (string, error) {
		return "echo: " + req.Messages[len(req.Messages)-1].Content, nil
	})
	g := mustBuild(t,
		[]Node{
			startNode(1),
			retrieverNode(2, 5),
			{ID: 3, Type: NodeLLM, Payload: LLMConfig{Context: "${node_2}"}},
			answerNode(4, ""),
		},
		[]Edge{edge(1, 2), edge(2, 3), edge(3, 4)},
	)
	e := newTestEngine(t, Dependencies{LLM: client, Retrieval: store})

	res, err := e.RunGraph(context.Background(), g, "refunds")
	require.NoError(t, err)
	assert.Equal(t, "echo: Refunds are issued within 5 days.\n\nrefunds", res.Answer)
}

func TestEngine_HistoryAndVars(t *testing.T) {
	client := llm.NewMockClient("sure")
	g := mustBuild(t,
		[]Node{
			startNode(1),
			{ID: 2, Type: NodeLLM, Payload: LLMConfig{IncludeHistory: true}},
			answerNode(3, "[${tenant}] ${node_2}"),
		},
		[]Edge{edge(1, 2), edge(2, 3)},
	)
	e := newTestEngine(t, Dependencies{LLM: client})

	res, err := e.RunGraph(context.Background(), g, "again?",
		WithHistory(Turn{Role: RoleUser, Content: "hello"}, Turn{Role: RoleAssistant, Content: "hi"}),
		WithVars(map[string]any{"tenant": "acme"}),
	)
	require.NoError(t, err)
	assert.Equal(t, "[acme] sure", res.Answer)
	assert.Len(t, client.LastCall().Messages, 3)
	assert.Len(t, res.Transcript, 4)
}

func TestEngine_RunIDGenerator(t *testing.T) {
	g := mustBuild(t, []Node{startNode(1), answerNode(2, "x")}, []Edge{edge(1, 2)})
	n := 0
	e := newTestEngine(t, Dependencies{}, WithRunIDGenerator(func() string {
		n++
		return fmt.Sprintf("gen-%d", n)
	}))

	res, err := e.RunGraph(context.Background(), g, "hi")
	require.NoError(t, err)
	assert.Equal(t, "gen-1", res.RunID)
}

func TestEngine_ConcurrentRuns(t *testing.T) {
	loader := NewMemoryLoader()
	loader.Put(1, []Node{startNode(1), llmNode(2, "${input}"), answerNode(3, "${node_2}")},
		[]Edge{edge(1, 2), edge(2, 3)})
	client := llm.NewMockClient("").WithHandler(func(req llm.CompletionRequest) (string, error) {
		return req.Messages[0].Content + "!", nil
	})
	e := NewEngine(loader, NewDefaultRegistry(Dependencies{LLM: client}), WithLogger(discardLogger()))

	const runs = 20
	var wg sync.WaitGroup
	answers := make([]string, runs)
	errs := make([]error, runs)
	for i := 0; i < runs; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := e.RunFlow(context.Background(), 1, fmt.Sprintf("q%d", i))
			answers[i], errs[i] = res.Answer, err
		}(i)
	}
	wg.Wait()

	for i := 0; i < runs; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, fmt.Sprintf("q%d!", i), answers[i])
	}
	assert.Equal(t, runs, client.CallCount())
}

func TestEngine_AuditRecords(t *testing.T) {
	g := mustBuild(t,
		[]Node{startNode(1), condNode(2, "input == 'a'"), answerNode(3, "A"), answerNode(4, "B")},
		[]Edge{edge(1, 2), branch(2, 3, BranchTrue), branch(2, 4, BranchFalse)},
	)
	store := audit.NewMemoryStore()
	e := newTestEngine(t, Dependencies{}, WithAuditStore(store))

	res, err := e.RunGraph(context.Background(), g, "b", WithRunID("audited"))
	require.NoError(t, err)

	records, err := audit.LoadRun(context.Background(), store, "audited")
	require.NoError(t, err)
	require.Len(t, records, 4)

	assert.Equal(t, int64(1), records[0].NodeID)
	assert.Equal(t, "START", records[0].NodeType)
	assert.Equal(t, "false", records[1].Branch)
	assert.Equal(t, "B", records[2].Output)

	runRec := records[3]
	assert.Equal(t, audit.KindRun, runRec.Kind)
	assert.Equal(t, string(RunSucceeded), runRec.Status)
	assert.Equal(t, res.Answer, runRec.Answer)
	assert.Equal(t, []int64{3}, runRec.Skipped)
}

type failingAuditStore struct {
	*audit.MemoryStore
}

func (failingAuditStore) Save(context.Context, string, int64, []byte) error {
	return errors.New("disk full")
}

func TestEngine_AuditFailure(t *testing.T) {
	g := mustBuild(t, []Node{startNode(1), answerNode(2, "x")}, []Edge{edge(1, 2)})
	store := failingAuditStore{audit.NewMemoryStore()}

	e := newTestEngine(t, Dependencies{}, WithAuditStore(store))
	res, err := e.RunGraph(context.Background(), g, "hi")
	require.NoError(t, err, "audit failures are logged by default")
	assert.Equal(t, RunSucceeded, res.Status)

	e = newTestEngine(t, Dependencies{}, WithAuditStore(store), WithAuditFailureFatal(true))
	res, err = e.RunGraph(context.Background(), g, "hi")
	require.Error(t, err)
	assert.Equal(t, RunFailed, res.Status)

	var auditErr *AuditError
	require.ErrorAs(t, err, &auditErr)
	assert.Equal(t, int64(1), auditErr.NodeID)
	assert.Equal(t, []int64{1}, res.Order())
}

func TestEngine_MetricsAndSpans(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() {
		_ = mp.Shutdown(context.Background())
		_ = tp.Shutdown(context.Background())
	})

	g := mustBuild(t,
		[]Node{startNode(1), llmNode(2, ""), answerNode(3, "${node_2}")},
		[]Edge{edge(1, 2), edge(2, 3)},
	)
	e := newTestEngine(t, Dependencies{LLM: llm.NewMockClient("hello")},
		WithMetricsRecorder(observability.NewMetricsRecorderWithProvider(mp)),
		WithSpanManager(observability.NewSpanManagerWithProvider(tp)),
	)

	_, err := e.RunGraph(context.Background(), g, "hi")
	require.NoError(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	counts := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				counts[m.Name] += dp.Value
				if v, ok := dp.Attributes.Value(attribute.Key(observability.KeyStatus)); ok {
					counts[m.Name+"/"+v.AsString()] += dp.Value
				}
			}
		}
	}
	assert.Equal(t, int64(3), counts["flowstudio.node.executions"])
	assert.Equal(t, int64(1), counts["flowstudio.run.count/SUCCEEDED"])

	names := map[string]bool{}
	for _, s := range exporter.GetSpans() {
		names[s.Name] = true
	}
	assert.True(t, names["flowstudio.run"])
	assert.True(t, names["flowstudio.node.START"])
	assert.True(t, names["flowstudio.node.LLM"])
	assert.True(t, names["flowstudio.node.ANSWER"])
}
