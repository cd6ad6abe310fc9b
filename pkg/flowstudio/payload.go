package flowstudio

import (
	"fmt"
	"strconv"

	"github.com/bytedance/sonic"
)

// Payload is the type-specific configuration of a node.
type Payload interface {
	NodeType() NodeType
}

// StartConfig configures a START node.
type StartConfig struct {
	// MaxLength limits the input length in characters. 0 means unlimited.
	MaxLength int `json:"max_length,omitempty" yaml:"max_length,omitempty"`
}

// LLMConfig configures an LLM node. Prompts are templates rendered against
// the run's variables.
type LLMConfig struct {
	SystemPrompt   string   `json:"system_prompt,omitempty" yaml:"system_prompt,omitempty"`
	UserPrompt     string   `json:"user_prompt,omitempty" yaml:"user_prompt,omitempty"`
	Context        string   `json:"context,omitempty" yaml:"context,omitempty"`
	Model          string   `json:"model,omitempty" yaml:"model,omitempty"`
	Temperature    *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	MaxTokens      int      `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
	IncludeHistory bool     `json:"include_history,omitempty" yaml:"include_history,omitempty"`
}

// RetrieverConfig configures a RETRIEVER node.
type RetrieverConfig struct {
	DocumentID int64  `json:"document_id,omitempty" yaml:"document_id,omitempty"`
	Query      string `json:"query,omitempty" yaml:"query,omitempty"`
	TopK       int    `json:"top_k,omitempty" yaml:"top_k,omitempty"`
}

// ClassifierConfig configures a QUESTION_CLASSIFIER node. Classes is ordered;
// outgoing edges are tagged with class labels.
type ClassifierConfig struct {
	Classes     []string `json:"classes,omitempty" yaml:"classes,omitempty"`
	Query       string   `json:"query,omitempty" yaml:"query,omitempty"`
	Instruction string   `json:"instruction,omitempty" yaml:"instruction,omitempty"`
	Model       string   `json:"model,omitempty" yaml:"model,omitempty"`
	Temperature *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
}

// HasClass reports whether label is one of the configured classes.
func (c ClassifierConfig) HasClass(label string) bool {
	for _, class := range c.Classes {
		if class == label {
			return true
		}
	}
	return false
}

// ConditionalConfig configures a CONDITIONAL node.
type ConditionalConfig struct {
	Expression string `json:"expression,omitempty" yaml:"expression,omitempty"`
}

// AnswerConfig configures an ANSWER node.
type AnswerConfig struct {
	Template string `json:"template,omitempty" yaml:"template,omitempty"`
}

// NodeType implements Payload.
func (StartConfig) NodeType() NodeType { return NodeStart }

// NodeType implements Payload.
func (LLMConfig) NodeType() NodeType { return NodeLLM }

// NodeType implements Payload.
func (RetrieverConfig) NodeType() NodeType { return NodeRetriever }

// NodeType implements Payload.
func (ClassifierConfig) NodeType() NodeType { return NodeQuestionClassifier }

// NodeType implements Payload.
func (ConditionalConfig) NodeType() NodeType { return NodeConditional }

// NodeType implements Payload.
func (AnswerConfig) NodeType() NodeType { return NodeAnswer }

// DecodePayload decodes a persisted JSON payload for a node of type t.
// Empty data yields the zero configuration. Unknown node types decode to a
// nil payload so that they surface as unsupported at run time rather than
// at load time.
func DecodePayload(t NodeType, data []byte) (Payload, error) {
	var p Payload
	var err error
	switch t {
	case NodeStart:
		p, err = decodeInto[StartConfig](data)
	case NodeLLM:
		p, err = decodeInto[LLMConfig](data)
	case NodeRetriever:
		p, err = decodeInto[RetrieverConfig](data)
	case NodeQuestionClassifier:
		p, err = decodeInto[ClassifierConfig](data)
	case NodeConditional:
		p, err = decodeInto[ConditionalConfig](data)
	case NodeAnswer:
		p, err = decodeInto[AnswerConfig](data)
	default:
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidPayload, t, err)
	}
	return p, nil
}

func decodeInto[T Payload](data []byte) (T, error) {
	var v T
	if len(data) == 0 || string(data) == "null" {
		return v, nil
	}
	err := sonic.ConfigStd.Unmarshal(data, &v)
	return v, err
}

// EncodePayload encodes p to JSON. A nil payload encodes to nil.
func EncodePayload(p Payload) ([]byte, error) {
	if p == nil {
		return nil, nil
	}
	return sonic.ConfigStd.Marshal(p)
}

// payloadAs returns n's payload as T, accepting either T or *T, or the zero
// T when the payload is nil.
func payloadAs[T Payload](n *Node) T {
	switch v := any(n.Payload).(type) {
	case T:
		return v
	case *T:
		if v != nil {
			return *v
		}
	}
	var zero T
	return zero
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
