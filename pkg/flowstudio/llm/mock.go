package llm

import (
	"context"
	"sync"
	"time"
)

// MockClient is a Client returning canned responses. It records every
// request and is safe for concurrent use.
type MockClient struct {
	mu        sync.Mutex
	responses []string
	next      int
	err       error
	delay     time.Duration
	handler   func(CompletionRequest) (string, error)
	calls     []CompletionRequest
}

var _ Client = (*MockClient)(nil)

// NewMockClient returns a MockClient that always answers response.
func NewMockClient(response string) *MockClient {
	return &MockClient{responses: []string{response}}
}

// WithResponses makes the mock cycle through responses in order.
func (m *MockClient) WithResponses(responses ...string) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = responses
	m.next = 0
	return m
}

// WithError makes every call fail with err.
func (m *MockClient) WithError(err error) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithDelay makes every call wait d, or until ctx is done.
func (m *MockClient) WithDelay(d time.Duration) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// WithHandler computes responses from the request. It takes precedence over
// canned responses but not over WithError.
func (m *MockClient) WithHandler(fn func(CompletionRequest) (string, error)) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = fn
	return m
}

// Complete implements Client.
func (m *MockClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()

	m.mu.Lock()
	m.calls = append(m.calls, req)
	delay, err, handler := m.delay, m.err, m.handler
	var content string
	if len(m.responses) > 0 {
		content = m.responses[m.next%len(m.responses)]
		m.next++
	}
	m.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	if err != nil {
		return nil, err
	}
	if handler != nil {
		content, err = handler(req)
		if err != nil {
			return nil, err
		}
	}

	input := len(req.SystemPrompt)
	for _, msg := range req.Messages {
		input += len(msg.Content)
	}
	usage := TokenUsage{InputTokens: input / 4, OutputTokens: len(content) / 4}
	usage.TotalTokens = usage.InputTokens + usage.OutputTokens

	return &CompletionResponse{
		Content:      content,
		Usage:        usage,
		Model:        req.Model,
		FinishReason: "stop",
		Duration:     time.Since(start),
	}, nil
}

// Calls returns a copy of every request received.
func (m *MockClient) Calls() []CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]CompletionRequest, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns the number of requests received.
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// LastCall returns the most recent request, or the zero value.
func (m *MockClient) LastCall() CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return CompletionRequest{}
	}
	return m.calls[len(m.calls)-1]
}

// Reset clears recorded calls and rewinds the response cycle.
func (m *MockClient) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.next = 0
}
