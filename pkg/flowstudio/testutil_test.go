package flowstudio

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	flowerrors "github.com/randalmurphal/flowstudio/pkg/flowstudio/errors"
	"github.com/stretchr/testify/require"
)

const testFlowID int64 = 1

// Node constructors used across tests.

func startNode(id int64) Node {
	return Node{ID: id, FlowID: testFlowID, Name: "start", Type: NodeStart, Payload: StartConfig{}}
}

func llmNode(id int64, prompt string) Node {
	return Node{ID: id, FlowID: testFlowID, Type: NodeLLM, Payload: LLMConfig{UserPrompt: prompt}}
}

func answerNode(id int64, tmpl string) Node {
	return Node{ID: id, FlowID: testFlowID, Name: "answer", Type: NodeAnswer, Payload: AnswerConfig{Template: tmpl}}
}

func condNode(id int64, expression string) Node {
	return Node{ID: id, FlowID: testFlowID, Type: NodeConditional, Payload: ConditionalConfig{Expression: expression}}
}

func classifierNode(id int64, classes ...string) Node {
	return Node{ID: id, FlowID: testFlowID, Type: NodeQuestionClassifier, Payload: ClassifierConfig{Classes: classes}}
}

func retrieverNode(id, documentID int64) Node {
	return Node{ID: id, FlowID: testFlowID, Type: NodeRetriever, Payload: RetrieverConfig{DocumentID: documentID}}
}

func edge(src, dst int64) Edge {
	return Edge{SourceID: src, TargetID: dst}
}

func branch(src, dst int64, tag string) Edge {
	return Edge{SourceID: src, TargetID: dst, Branch: tag}
}

func mustBuild(t *testing.T, nodes []Node, edges []Edge) *Graph {
	t.Helper()
	g, err := Build(nodes, edges)
	require.NoError(t, err)
	return g
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fastRetry keeps provider retries but with millisecond backoff.
func fastRetry() flowerrors.RetryConfig {
	return flowerrors.NewRetryConfig(
		flowerrors.WithInitialBackoff(time.Millisecond),
		flowerrors.WithMaxBackoff(5*time.Millisecond),
		flowerrors.WithJitter(0),
	)
}

// newTestEngine returns an engine with quiet logging and fast retries.
func newTestEngine(t *testing.T, deps Dependencies, opts ...Option) *Engine {
	t.Helper()
	if deps.Retry == nil {
		retry := fastRetry()
		deps.Retry = &retry
	}
	opts = append([]Option{WithLogger(discardLogger())}, opts...)
	return NewEngine(NewMemoryLoader(), NewDefaultRegistry(deps), opts...)
}

// tracker records the order in which instrumented executors ran.
type tracker struct {
	mu    sync.Mutex
	order []int64
}

func (tr *tracker) record(id int64) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.order = append(tr.order, id)
}

func (tr *tracker) seen() []int64 {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]int64(nil), tr.order...)
}

// tracking wraps an executor so every call is recorded.
func tracking(tr *tracker, inner Executor) Executor {
	return ExecutorFunc(func(ctx context.Context, node *Node, ec *ExecutionContext) (NodeResult, error) {
		tr.record(node.ID)
		return inner.Execute(ctx, node, ec)
	})
}

// sleepExecutor blocks for d or until ctx is done.
func sleepExecutor(d time.Duration) Executor {
	return ExecutorFunc(func(ctx context.Context, node *Node, _ *ExecutionContext) (NodeResult, error) {
		select {
		case <-ctx.Done():
			return NodeResult{}, ctx.Err()
		case <-time.After(d):
			return NodeResult{Output: "slept"}, nil
		}
	})
}

// failExecutor always fails with err.
func failExecutor(err error) Executor {
	return ExecutorFunc(func(context.Context, *Node, *ExecutionContext) (NodeResult, error) {
		return NodeResult{}, err
	})
}
