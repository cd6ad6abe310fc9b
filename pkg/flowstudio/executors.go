package flowstudio

import (
	"context"
	"fmt"
	"unicode/utf8"

	flowerrors "github.com/randalmurphal/flowstudio/pkg/flowstudio/errors"
	"github.com/randalmurphal/flowstudio/pkg/flowstudio/expr"
	"github.com/randalmurphal/flowstudio/pkg/flowstudio/llm"
	"github.com/randalmurphal/flowstudio/pkg/flowstudio/retrieval"
	"github.com/randalmurphal/flowstudio/pkg/flowstudio/template"
)

// Default templates used when a payload leaves a field empty.
const (
	DefaultQueryTemplate  = "${input}"
	DefaultAnswerTemplate = "${last_output}"
)

// StartExecutor validates the run input and opens the transcript.
type StartExecutor struct{}

// Execute implements Executor.
func (x *StartExecutor) Execute(_ context.Context, node *Node, ec *ExecutionContext) (NodeResult, error) {
	cfg := payloadAs[StartConfig](node)
	input := ec.Input()
	if n := utf8.RuneCountInString(input); cfg.MaxLength > 0 && n > cfg.MaxLength {
		return NodeResult{}, fmt.Errorf("%w: %d characters, limit %d", ErrInputTooLong, n, cfg.MaxLength)
	}
	return NodeResult{
		Output:     input,
		Transcript: []Turn{{Role: RoleUser, Content: input}},
	}, nil
}

// LLMExecutor renders the node's prompts and calls the model provider.
type LLMExecutor struct {
	Client    llm.Client
	Retry     flowerrors.RetryConfig
	Templates *template.Expander
}

// Execute implements Executor.
func (x *LLMExecutor) Execute(ctx context.Context, node *Node, ec *ExecutionContext) (NodeResult, error) {
	cfg := payloadAs[LLMConfig](node)
	if x.Client == nil {
		return NodeResult{}, fmt.Errorf("%w: no model provider configured", ErrProvider)
	}

	vars := ec.Vars()
	system, err := render(x.Templates, "system_prompt", cfg.SystemPrompt, vars)
	if err != nil {
		return NodeResult{}, err
	}
	user, err := render(x.Templates, "user_prompt", orDefault(cfg.UserPrompt, DefaultQueryTemplate), vars)
	if err != nil {
		return NodeResult{}, err
	}
	if cfg.Context != "" {
		extra, err := render(x.Templates, "context", cfg.Context, vars)
		if err != nil {
			return NodeResult{}, err
		}
		if extra != "" {
			user = extra + "\n\n" + user
		}
	}

	req := llm.CompletionRequest{
		SystemPrompt: system,
		Model:        cfg.Model,
		MaxTokens:    cfg.MaxTokens,
		Temperature:  cfg.Temperature,
	}
	if cfg.IncludeHistory {
		for _, t := range ec.History() {
			req.Messages = append(req.Messages, llm.Message{Role: llm.Role(t.Role), Content: t.Content})
		}
	}
	req.Messages = append(req.Messages, llm.Message{Role: llm.RoleUser, Content: user})

	res := flowerrors.WithRetryContext(ctx, x.Retry, func(ctx context.Context) (*llm.CompletionResponse, error) {
		return x.Client.Complete(ctx, req)
	})
	if res.Err != nil {
		return NodeResult{}, fmt.Errorf("%w: %w", ErrProvider, res.Err)
	}

	resp := res.Value
	return NodeResult{
		Output: resp.Content,
		Metadata: map[string]any{
			"model":         resp.Model,
			"finish_reason": resp.FinishReason,
			"input_tokens":  resp.Usage.InputTokens,
			"output_tokens": resp.Usage.OutputTokens,
			"total_tokens":  resp.Usage.TotalTokens,
			"attempts":      res.Attempts,
		},
	}, nil
}

// RetrieverExecutor looks up passages from the node's document.
type RetrieverExecutor struct {
	Store     retrieval.Store
	Templates *template.Expander
}

// Execute implements Executor.
func (x *RetrieverExecutor) Execute(ctx context.Context, node *Node, ec *ExecutionContext) (NodeResult, error) {
	cfg := payloadAs[RetrieverConfig](node)
	if x.Store == nil {
		return NodeResult{}, fmt.Errorf("%w: no retrieval store configured", ErrRetrieval)
	}
	if cfg.DocumentID == 0 {
		return NodeResult{}, fmt.Errorf("%w: no document selected", ErrRetrieval)
	}

	query, err := render(x.Templates, "query", orDefault(cfg.Query, DefaultQueryTemplate), ec.Vars())
	if err != nil {
		return NodeResult{}, err
	}

	passages, err := x.Store.Search(ctx, retrieval.SearchRequest{
		DocumentID: cfg.DocumentID,
		Query:      query,
		TopK:       cfg.TopK,
	})
	if err != nil {
		return NodeResult{}, fmt.Errorf("%w: document %d: %w", ErrRetrieval, cfg.DocumentID, err)
	}

	return NodeResult{
		Output: retrieval.JoinPassages(passages),
		Metadata: map[string]any{
			"document_id": cfg.DocumentID,
			"passages":    len(passages),
		},
	}, nil
}

// ClassifierExecutor asks the provider to pick one of the node's classes and
// selects the edge tagged with it.
type ClassifierExecutor struct {
	Classifier llm.Classifier
	Retry      flowerrors.RetryConfig
	Templates  *template.Expander
}

// Execute implements Executor.
func (x *ClassifierExecutor) Execute(ctx context.Context, node *Node, ec *ExecutionContext) (NodeResult, error) {
	cfg := payloadAs[ClassifierConfig](node)
	if len(cfg.Classes) == 0 {
		return NodeResult{}, fmt.Errorf("%w: no classes configured", ErrClassification)
	}
	if x.Classifier == nil {
		return NodeResult{}, fmt.Errorf("%w: no classifier configured", ErrProvider)
	}

	text, err := render(x.Templates, "query", orDefault(cfg.Query, DefaultQueryTemplate), ec.Vars())
	if err != nil {
		return NodeResult{}, err
	}

	req := llm.ClassifyRequest{
		Text:        text,
		Classes:     cfg.Classes,
		Instruction: cfg.Instruction,
		Model:       cfg.Model,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
	}
	res := flowerrors.WithRetryContext(ctx, x.Retry, func(ctx context.Context) (*llm.ClassifyResult, error) {
		return x.Classifier.Classify(ctx, req)
	})
	if res.Err != nil {
		return NodeResult{}, fmt.Errorf("%w: %w", ErrProvider, res.Err)
	}

	label := res.Value.Label
	if !cfg.HasClass(label) {
		return NodeResult{}, fmt.Errorf("%w: label %q is not one of %q", ErrClassification, label, cfg.Classes)
	}
	return NodeResult{
		Output: label,
		Branch: label,
		Metadata: map[string]any{
			"raw":           res.Value.Raw,
			"input_tokens":  res.Value.Usage.InputTokens,
			"output_tokens": res.Value.Usage.OutputTokens,
			"total_tokens":  res.Value.Usage.TotalTokens,
			"attempts":      res.Attempts,
		},
	}, nil
}

// ConditionalExecutor evaluates the node's predicate and selects the "true"
// or "false" edge.
type ConditionalExecutor struct {
	Evaluator *expr.Evaluator
}

// Execute implements Executor.
func (x *ConditionalExecutor) Execute(_ context.Context, node *Node, ec *ExecutionContext) (NodeResult, error) {
	cfg := payloadAs[ConditionalConfig](node)
	evaluator := x.Evaluator
	if evaluator == nil {
		evaluator = expr.New(expr.WithStrict(true))
	}
	ok, err := evaluator.Evaluate(cfg.Expression, ec.Vars())
	if err != nil {
		return NodeResult{}, fmt.Errorf("%w: %w", ErrPredicateEval, err)
	}
	branch := BranchFalse
	if ok {
		branch = BranchTrue
	}
	return NodeResult{Output: ok, Branch: branch}, nil
}

// AnswerExecutor renders the final answer. With an empty template it
// answers with the most recent node output.
type AnswerExecutor struct {
	Templates *template.Expander
}

// Execute implements Executor.
func (x *AnswerExecutor) Execute(_ context.Context, node *Node, ec *ExecutionContext) (NodeResult, error) {
	cfg := payloadAs[AnswerConfig](node)
	answer, err := render(x.Templates, "template", orDefault(cfg.Template, DefaultAnswerTemplate), ec.Vars())
	if err != nil {
		return NodeResult{}, err
	}
	return NodeResult{
		Output:     answer,
		Final:      true,
		Transcript: []Turn{{Role: RoleAssistant, Content: answer}},
	}, nil
}

func render(e *template.Expander, field, tmpl string, vars map[string]any) (string, error) {
	if tmpl == "" {
		return "", nil
	}
	if e == nil {
		e = NewPromptExpander()
	}
	out, err := e.Expand(tmpl, vars)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrPromptRender, field, err)
	}
	return out, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
