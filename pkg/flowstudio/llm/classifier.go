package llm

import (
	"context"
	"fmt"
	"strings"
)

const classifyPrompt = `You are a question classifier. Read the user's question and reply with exactly one category from the list below, copied verbatim, and nothing else.

Categories:
%s`

// PromptClassifier implements Classifier by prompting a Client to answer with
// one of the requested classes.
type PromptClassifier struct {
	client Client
}

var _ Classifier = (*PromptClassifier)(nil)

// NewPromptClassifier returns a Classifier backed by client.
func NewPromptClassifier(client Client) *PromptClassifier {
	return &PromptClassifier{client: client}
}

// Classify implements Classifier. The model's reply is matched against the
// classes ignoring case, surrounding quotes and trailing punctuation. A reply
// that matches no class is returned as the trimmed label.
func (c *PromptClassifier) Classify(ctx context.Context, req ClassifyRequest) (*ClassifyResult, error) {
	var list strings.Builder
	for _, class := range req.Classes {
		fmt.Fprintf(&list, "- %s\n", class)
	}
	system := fmt.Sprintf(classifyPrompt, list.String())
	if req.Instruction != "" {
		system += "\n" + req.Instruction
	}

	resp, err := c.client.Complete(ctx, CompletionRequest{
		SystemPrompt: system,
		Messages:     []Message{{Role: RoleUser, Content: req.Text}},
		Model:        req.Model,
		MaxTokens:    req.MaxTokens,
		Temperature:  req.Temperature,
	})
	if err != nil {
		return nil, err
	}

	return &ClassifyResult{
		Label: MatchClass(resp.Content, req.Classes),
		Raw:   resp.Content,
		Usage: resp.Usage,
	}, nil
}

// MatchClass normalizes a model reply and returns the class it names.
// When nothing matches, the normalized reply itself is returned.
func MatchClass(reply string, classes []string) string {
	label := normalizeLabel(reply)
	for _, class := range classes {
		if strings.EqualFold(label, class) {
			return class
		}
	}
	// Models sometimes answer "Category: billing".
	if i := strings.LastIndex(label, ":"); i >= 0 {
		tail := normalizeLabel(label[i+1:])
		for _, class := range classes {
			if strings.EqualFold(tail, class) {
				return class
			}
		}
	}
	return label
}

func normalizeLabel(s string) string {
	s = strings.TrimSpace(s)
	if line, _, ok := strings.Cut(s, "\n"); ok {
		s = strings.TrimSpace(line)
	}
	s = strings.TrimLeft(s, "-* ")
	// quotes and end punctuation come in either order: "Billing". or 'Billing.'
	return strings.TrimSpace(strings.Trim(s, "\"'`.! "))
}
