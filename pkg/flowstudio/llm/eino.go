package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// EinoClient adapts an eino chat model to Client.
type EinoClient struct {
	model    model.BaseChatModel
	provider string
	name     string
}

var _ Client = (*EinoClient)(nil)

// EinoOption configures an EinoClient.
type EinoOption func(*EinoClient)

// WithProviderName labels errors produced by the client. Default: "eino".
func WithProviderName(name string) EinoOption {
	return func(c *EinoClient) {
		c.provider = name
	}
}

// WithDefaultModel sets the model name reported when the request leaves
// Model empty.
func WithDefaultModel(name string) EinoOption {
	return func(c *EinoClient) {
		c.name = name
	}
}

// NewEinoClient wraps any eino chat model.
func NewEinoClient(m model.BaseChatModel, opts ...EinoOption) *EinoClient {
	c := &EinoClient{model: m, provider: "eino"}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OpenAIConfig configures NewOpenAIClient. BaseURL may point at any
// OpenAI-compatible endpoint.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature *float64
	Timeout     time.Duration
}

// NewOpenAIClient builds an EinoClient over eino-ext's OpenAI chat model.
func NewOpenAIClient(ctx context.Context, cfg OpenAIConfig) (*EinoClient, error) {
	mc := &openai.ChatModelConfig{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		Timeout: cfg.Timeout,
	}
	if cfg.MaxTokens > 0 {
		maxTokens := cfg.MaxTokens
		mc.MaxTokens = &maxTokens
	}
	if cfg.Temperature != nil {
		temperature := float32(*cfg.Temperature)
		mc.Temperature = &temperature
	}

	cm, err := openai.NewChatModel(ctx, mc)
	if err != nil {
		return nil, fmt.Errorf("create openai chat model: %w", err)
	}
	return NewEinoClient(cm, WithProviderName("openai"), WithDefaultModel(cfg.Model)), nil
}

// Complete implements Client.
func (c *EinoClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()

	out, err := c.model.Generate(ctx, toSchemaMessages(req), requestOptions(req)...)
	if err != nil {
		return nil, wrapProviderError(c.provider, "generate", err)
	}
	if out == nil || out.Content == "" {
		return nil, wrapProviderError(c.provider, "generate", ErrEmptyResponse)
	}

	resp := &CompletionResponse{
		Content:  out.Content,
		Model:    req.Model,
		Duration: time.Since(start),
	}
	if resp.Model == "" {
		resp.Model = c.name
	}
	if meta := out.ResponseMeta; meta != nil {
		resp.FinishReason = meta.FinishReason
		if meta.Usage != nil {
			resp.Usage = TokenUsage{
				InputTokens:  meta.Usage.PromptTokens,
				OutputTokens: meta.Usage.CompletionTokens,
				TotalTokens:  meta.Usage.TotalTokens,
			}
		}
	}
	return resp, nil
}

func toSchemaMessages(req CompletionRequest) []*schema.Message {
	msgs := make([]*schema.Message, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		msgs = append(msgs, schema.SystemMessage(req.SystemPrompt))
	}
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			msgs = append(msgs, schema.SystemMessage(m.Content))
		case RoleAssistant:
			msgs = append(msgs, schema.AssistantMessage(m.Content, nil))
		default:
			msgs = append(msgs, schema.UserMessage(m.Content))
		}
	}
	return msgs
}

func requestOptions(req CompletionRequest) []model.Option {
	var opts []model.Option
	if req.Model != "" {
		opts = append(opts, model.WithModel(req.Model))
	}
	if req.MaxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(req.MaxTokens))
	}
	if req.Temperature != nil {
		opts = append(opts, model.WithTemperature(float32(*req.Temperature)))
	}
	return opts
}
