package flowstudio

import (
	"context"

	flowerrors "github.com/randalmurphal/flowstudio/pkg/flowstudio/errors"
	"github.com/randalmurphal/flowstudio/pkg/flowstudio/expr"
	"github.com/randalmurphal/flowstudio/pkg/flowstudio/llm"
	"github.com/randalmurphal/flowstudio/pkg/flowstudio/registry"
	"github.com/randalmurphal/flowstudio/pkg/flowstudio/retrieval"
	"github.com/randalmurphal/flowstudio/pkg/flowstudio/template"
)

// Executor runs one node type.
//
// Execute receives a private copy of the run's ExecutionContext. It must not
// retain it after returning; all effects on the run are reported through the
// returned NodeResult. Executors must honour ctx cancellation on blocking
// calls.
type Executor interface {
	Execute(ctx context.Context, node *Node, ec *ExecutionContext) (NodeResult, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, node *Node, ec *ExecutionContext) (NodeResult, error)

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, node *Node, ec *ExecutionContext) (NodeResult, error) {
	return f(ctx, node, ec)
}

// NodeResult is what a node contributes to the run.
type NodeResult struct {
	// Output is recorded under the node's id.
	Output any
	// Branch is the tag selected by a decision node. Ignored for other types.
	Branch string
	// Transcript is appended to the run transcript.
	Transcript []Turn
	// Final marks Output as the run's answer.
	Final bool
	// Metadata is copied into the node record and audit trail.
	Metadata map[string]any
}

// Registry maps node types to executors. It is safe for concurrent use.
type Registry struct {
	executors *registry.Registry[NodeType, Executor]
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{executors: registry.New[NodeType, Executor]()}
}

// Register sets the executor for t, replacing any previous one.
func (r *Registry) Register(t NodeType, e Executor) {
	r.executors.Set(t, e)
}

// Lookup returns the executor for t.
func (r *Registry) Lookup(t NodeType) (Executor, bool) {
	return r.executors.Get(t)
}

// Types returns the registered node types in sorted order.
func (r *Registry) Types() []NodeType {
	return r.executors.Keys()
}

// Dependencies are the collaborators used by the built-in executors.
// Nil fields fail the nodes that need them at run time.
type Dependencies struct {
	LLM llm.Client
	// Classifier defaults to an llm.PromptClassifier over LLM.
	Classifier llm.Classifier
	Retrieval  retrieval.Store
	// Retry applies to provider calls. Nil means flowerrors.DefaultRetry.
	Retry *flowerrors.RetryConfig
	// Evaluator defaults to a strict expr.Evaluator.
	Evaluator *expr.Evaluator
	// Templates defaults to an expander that fails on missing variables.
	Templates *template.Expander
}

// NewDefaultRegistry registers the six built-in executors.
func NewDefaultRegistry(deps Dependencies) *Registry {
	retry := flowerrors.DefaultRetry
	if deps.Retry != nil {
		retry = *deps.Retry
	}
	evaluator := deps.Evaluator
	if evaluator == nil {
		evaluator = expr.New(expr.WithStrict(true))
	}
	templates := deps.Templates
	if templates == nil {
		templates = NewPromptExpander()
	}
	classifier := deps.Classifier
	if classifier == nil && deps.LLM != nil {
		classifier = llm.NewPromptClassifier(deps.LLM)
	}

	r := NewRegistry()
	r.Register(NodeStart, &StartExecutor{})
	r.Register(NodeLLM, &LLMExecutor{Client: deps.LLM, Retry: retry, Templates: templates})
	r.Register(NodeRetriever, &RetrieverExecutor{Store: deps.Retrieval, Templates: templates})
	r.Register(NodeQuestionClassifier, &ClassifierExecutor{Classifier: classifier, Retry: retry, Templates: templates})
	r.Register(NodeConditional, &ConditionalExecutor{Evaluator: evaluator})
	r.Register(NodeAnswer, &AnswerExecutor{Templates: templates})
	return r
}

// NewPromptExpander returns the template expander used for prompts. Only
// ${name} and {{name}} are placeholders, so prose such as "$USD" passes
// through; missing variables are errors.
func NewPromptExpander() *template.Expander {
	return template.NewExpander(
		template.WithStyles(template.Brace|template.Mustache),
		template.WithMissingAction(template.MissingError),
	)
}
