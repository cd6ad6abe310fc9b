package llm

import "time"

// CompletionRequest configures a completion call.
type CompletionRequest struct {
	SystemPrompt string    `json:"system_prompt,omitempty"`
	Messages     []Message `json:"messages"`

	// Zero values and a nil Temperature mean "provider default".
	Model       string   `json:"model,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
}

// Float64 returns a pointer to v, for optional fields such as Temperature.
func Float64(v float64) *float64 { return &v }

// Message is a conversation turn.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Role identifies the message sender.
type Role string

// Standard message roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// CompletionResponse is the output of a completion call.
type CompletionResponse struct {
	Content      string        `json:"content"`
	Usage        TokenUsage    `json:"usage"`
	Model        string        `json:"model"`
	FinishReason string        `json:"finish_reason"`
	Duration     time.Duration `json:"duration"`
}

// TokenUsage tracks token consumption.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Add accumulates other into u.
func (u *TokenUsage) Add(other TokenUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.TotalTokens += other.TotalTokens
}

// ClassifyRequest asks a Classifier to pick one of Classes for Text.
type ClassifyRequest struct {
	Text    string   `json:"text"`
	Classes []string `json:"classes"`

	// Instruction is appended to the classification prompt.
	Instruction string   `json:"instruction,omitempty"`
	Model       string   `json:"model,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
}

// ClassifyResult is a Classifier's answer. Label is not guaranteed to be one
// of the requested classes; callers must validate it.
type ClassifyResult struct {
	Label string     `json:"label"`
	Raw   string     `json:"raw"`
	Usage TokenUsage `json:"usage"`
}
