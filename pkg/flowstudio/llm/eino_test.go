package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	flowerrors "github.com/randalmurphal/flowstudio/pkg/flowstudio/errors"
)

// fakeChatModel records inputs and returns a scripted message.
type fakeChatModel struct {
	out     *schema.Message
	err     error
	inputs  []*schema.Message
	options *model.Options
}

func (f *fakeChatModel) Generate(_ context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	f.inputs = input
	f.options = model.GetCommonOptions(nil, opts...)
	return f.out, f.err
}

func (f *fakeChatModel) Stream(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	f.inputs = input
	if f.err != nil {
		return nil, f.err
	}
	return schema.StreamReaderFromArray([]*schema.Message{f.out}), nil
}

func TestEinoClient_Complete(t *testing.T) {
	fake := &fakeChatModel{out: &schema.Message{
		Role:    schema.Assistant,
		Content: "hello",
		ResponseMeta: &schema.ResponseMeta{
			FinishReason: "stop",
			Usage:        &schema.TokenUsage{PromptTokens: 5, CompletionTokens: 2, TotalTokens: 7},
		},
	}}
	c := NewEinoClient(fake, WithProviderName("test"), WithDefaultModel("default-model"))

	resp, err := c.Complete(context.Background(), CompletionRequest{
		SystemPrompt: "be brief",
		Messages: []Message{
			{Role: RoleUser, Content: "hi"},
			{Role: RoleAssistant, Content: "hello"},
			{Role: RoleUser, Content: "again"},
		},
		MaxTokens:   64,
		Temperature: Float64(0.3),
	})
	require.NoError(t, err)

	assert.Equal(t, "hello", resp.Content)
	assert.Equal(t, "default-model", resp.Model)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Equal(t, TokenUsage{InputTokens: 5, OutputTokens: 2, TotalTokens: 7}, resp.Usage)

	require.Len(t, fake.inputs, 4)
	assert.Equal(t, schema.System, fake.inputs[0].Role)
	assert.Equal(t, schema.Assistant, fake.inputs[2].Role)
	assert.Equal(t, "again", fake.inputs[3].Content)

	require.NotNil(t, fake.options.MaxTokens)
	assert.Equal(t, 64, *fake.options.MaxTokens)
	require.NotNil(t, fake.options.Temperature)
	assert.InDelta(t, 0.3, *fake.options.Temperature, 1e-6)
	assert.Nil(t, fake.options.Model)
}

func TestEinoClient_Temperature(t *testing.T) {
	tests := []struct {
		name        string
		temperature *float64
		want        *float32
	}{
		{"unset uses provider default", nil, nil},
		{"zero is sent", Float64(0), ptr(float32(0))},
		{"positive is sent", Float64(0.5), ptr(float32(0.5))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeChatModel{out: &schema.Message{Content: "ok"}}
			_, err := NewEinoClient(fake).Complete(context.Background(), CompletionRequest{
				Messages:    []Message{{Role: RoleUser, Content: "hi"}},
				Temperature: tt.temperature,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, fake.options.Temperature)
		})
	}
}

func ptr[T any](v T) *T { return &v }

func TestEinoClient_ModelOverride(t *testing.T) {
	fake := &fakeChatModel{out: &schema.Message{Content: "ok"}}
	c := NewEinoClient(fake)

	resp, err := c.Complete(context.Background(), CompletionRequest{Model: "gpt-4o"})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", resp.Model)
	require.NotNil(t, fake.options.Model)
	assert.Equal(t, "gpt-4o", *fake.options.Model)
}

func TestEinoClient_Errors(t *testing.T) {
	t.Run("status code is recovered and retryable", func(t *testing.T) {
		fake := &fakeChatModel{err: errors.New("error, status code: 429, status: 429 Too Many Requests")}
		_, err := NewEinoClient(fake, WithProviderName("openai")).Complete(context.Background(), CompletionRequest{})
		require.Error(t, err)

		var pe *Error
		require.True(t, errors.As(err, &pe))
		assert.Equal(t, 429, pe.StatusCode)
		assert.Equal(t, "openai", pe.Provider)
		assert.True(t, flowerrors.IsRetryable(err))
	})

	t.Run("auth failure is permanent", func(t *testing.T) {
		fake := &fakeChatModel{err: errors.New("error, status code: 401, message: bad key")}
		_, err := NewEinoClient(fake).Complete(context.Background(), CompletionRequest{})
		assert.False(t, flowerrors.IsRetryable(err))
	})

	t.Run("empty content", func(t *testing.T) {
		fake := &fakeChatModel{out: &schema.Message{}}
		_, err := NewEinoClient(fake).Complete(context.Background(), CompletionRequest{})
		assert.ErrorIs(t, err, ErrEmptyResponse)
	})
}

func TestError_Retryable(t *testing.T) {
	assert.True(t, (&Error{StatusCode: 503}).Retryable())
	assert.True(t, (&Error{Err: context.DeadlineExceeded}).Retryable())
	assert.False(t, (&Error{StatusCode: 400, Err: errors.New("bad")}).Retryable())
	assert.Equal(t, "p op: status 500: x", (&Error{Provider: "p", Op: "op", StatusCode: 500, Err: errors.New("x")}).Error())
}

func TestNewOpenAIClient(t *testing.T) {
	c, err := NewOpenAIClient(context.Background(), OpenAIConfig{
		APIKey:      "test-key",
		BaseURL:     "http://127.0.0.1:1/v1",
		Model:       "gpt-4o-mini",
		MaxTokens:   32,
		Temperature: Float64(0),
	})
	require.NoError(t, err)
	assert.Equal(t, "openai", c.provider)
	assert.Equal(t, "gpt-4o-mini", c.name)
}
