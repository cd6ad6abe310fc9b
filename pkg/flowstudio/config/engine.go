package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/randalmurphal/flowstudio/pkg/flowstudio"
	"github.com/randalmurphal/flowstudio/pkg/flowstudio/audit"
	flowerrors "github.com/randalmurphal/flowstudio/pkg/flowstudio/errors"
	"github.com/randalmurphal/flowstudio/pkg/flowstudio/llm"
)

// ErrInvalidConfig is wrapped by every validation failure of Parse.
var ErrInvalidConfig = errors.New("invalid config")

// DefaultAPIKeyEnv is the environment variable holding the provider API key
// when llm.api_key_env is not set.
const DefaultAPIKeyEnv = "OPENAI_API_KEY"

var nodeTypes = []flowstudio.NodeType{
	flowstudio.NodeStart,
	flowstudio.NodeLLM,
	flowstudio.NodeRetriever,
	flowstudio.NodeQuestionClassifier,
	flowstudio.NodeConditional,
	flowstudio.NodeAnswer,
}

// Engine is the typed engine configuration.
type Engine struct {
	DefaultTimeout    time.Duration
	Timeouts          map[flowstudio.NodeType]time.Duration
	OptionalNodes     []int64
	AuditFailureFatal bool
	Retry             flowerrors.RetryConfig
	Metrics           bool
	Tracing           bool
	Audit             Audit
	LLM               LLM
}

// Audit selects the audit store.
type Audit struct {
	// Driver is one of audit.DriverMemory, audit.DriverSQLite,
	// audit.DriverRedis. Empty disables auditing.
	Driver string
	DSN    string
}

// LLM configures the OpenAI-compatible model provider.
type LLM struct {
	Model       string
	BaseURL     string
	APIKeyEnv   string
	MaxTokens   int
	Temperature *float64
	Timeout     time.Duration
}

// Parse builds an Engine from a decoded document:
//
//	default_timeout: 60s
//	timeouts:
//	  LLM: 30s
//	optional_nodes: [4, 7]
//	audit_failure_fatal: false
//	retry:
//	  max_attempts: 3
//	  initial_backoff: 500ms
//	  max_backoff: 10s
//	  backoff_factor: 2
//	  jitter: 0.1
//	observability:
//	  metrics: true
//	  tracing: true
//	audit:
//	  driver: sqlite
//	  dsn: audit.db
//	llm:
//	  model: gpt-4o-mini
//	  base_url: https://api.openai.com/v1
//	  api_key_env: OPENAI_API_KEY
//	  timeout: 30s
func Parse(c Config) (*Engine, error) {
	var errs []error
	invalid := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	e := &Engine{
		DefaultTimeout:    c.Duration("default_timeout", flowstudio.DefaultNodeTimeout),
		Timeouts:          make(map[flowstudio.NodeType]time.Duration),
		AuditFailureFatal: c.Bool("audit_failure_fatal", false),
	}

	if c.Has("default_timeout") {
		if _, ok := toDuration(c.Any("default_timeout", nil)); !ok {
			invalid("default_timeout: %v", c.Any("default_timeout", nil))
		}
	}

	timeouts := c.Section("timeouts")
	for _, key := range timeouts.Keys() {
		t := flowstudio.NodeType(strings.ToUpper(key))
		if !slices.Contains(nodeTypes, t) {
			invalid("timeouts: unknown node type %q", key)
			continue
		}
		d, ok := toDuration(timeouts.Any(key, nil))
		if !ok {
			invalid("timeouts.%s: %v", key, timeouts.Any(key, nil))
			continue
		}
		e.Timeouts[t] = d
	}

	if c.Has("optional_nodes") {
		e.OptionalNodes = c.Int64Slice("optional_nodes", nil)
		if e.OptionalNodes == nil {
			invalid("optional_nodes must be a list of node ids")
		}
	}

	retry := c.Section("retry")
	def := flowerrors.DefaultRetry
	e.Retry = flowerrors.NewRetryConfig(
		flowerrors.WithMaxAttempts(retry.Int("max_attempts", def.MaxAttempts)),
		flowerrors.WithInitialBackoff(retry.Duration("initial_backoff", def.InitialBackoff)),
		flowerrors.WithMaxBackoff(retry.Duration("max_backoff", def.MaxBackoff)),
		flowerrors.WithBackoffFactor(retry.Float("backoff_factor", def.BackoffFactor)),
		flowerrors.WithJitter(retry.Float("jitter", def.Jitter)),
	)
	if e.Retry.MaxAttempts < 1 {
		invalid("retry.max_attempts must be at least 1, got %d", e.Retry.MaxAttempts)
	}
	if e.Retry.Jitter < 0 || e.Retry.Jitter > 1 {
		invalid("retry.jitter must be within [0, 1], got %g", e.Retry.Jitter)
	}

	obs := c.Section("observability")
	e.Metrics = obs.Bool("metrics", false)
	e.Tracing = obs.Bool("tracing", false)

	a := c.Section("audit")
	e.Audit = Audit{Driver: a.String("driver", ""), DSN: a.String("dsn", "")}
	switch e.Audit.Driver {
	case "", audit.DriverMemory:
	case audit.DriverSQLite, audit.DriverRedis:
		if e.Audit.DSN == "" {
			invalid("audit.dsn is required for driver %q", e.Audit.Driver)
		}
	default:
		invalid("audit.driver: unknown driver %q", e.Audit.Driver)
	}

	l := c.Section("llm")
	e.LLM = LLM{
		Model:       l.String("model", ""),
		BaseURL:     l.String("base_url", ""),
		APIKeyEnv:   l.String("api_key_env", DefaultAPIKeyEnv),
		MaxTokens:   l.Int("max_tokens", 0),
		Temperature: optionalFloat(l, "temperature"),
		Timeout:     l.Duration("timeout", 0),
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return e, nil
}

// Options converts the configuration to engine options. The audit store is
// not included; open it with OpenAudit.
func (e *Engine) Options() []flowstudio.Option {
	opts := []flowstudio.Option{
		flowstudio.WithDefaultTimeout(e.DefaultTimeout),
		flowstudio.WithAuditFailureFatal(e.AuditFailureFatal),
	}
	for _, t := range nodeTypes {
		if d, ok := e.Timeouts[t]; ok {
			opts = append(opts, flowstudio.WithNodeTimeout(t, d))
		}
	}
	if len(e.OptionalNodes) > 0 {
		opts = append(opts, flowstudio.WithOptionalNodes(e.OptionalNodes...))
	}
	if e.Metrics {
		opts = append(opts, flowstudio.WithMetrics())
	}
	if e.Tracing {
		opts = append(opts, flowstudio.WithTracing())
	}
	return opts
}

// RetryConfig returns the provider retry policy.
func (e *Engine) RetryConfig() flowerrors.RetryConfig {
	return e.Retry
}

// OpenAudit opens the configured audit store. It returns nil when auditing
// is disabled.
func (e *Engine) OpenAudit(ctx context.Context) (audit.Store, error) {
	if e.Audit.Driver == "" {
		return nil, nil
	}
	return audit.Open(ctx, e.Audit.Driver, e.Audit.DSN)
}

// OpenAIConfig returns the provider settings with the API key resolved from
// the environment.
func (e *Engine) OpenAIConfig() llm.OpenAIConfig {
	return llm.OpenAIConfig{
		APIKey:      os.Getenv(e.LLM.APIKeyEnv),
		BaseURL:     e.LLM.BaseURL,
		Model:       e.LLM.Model,
		MaxTokens:   e.LLM.MaxTokens,
		Temperature: e.LLM.Temperature,
		Timeout:     e.LLM.Timeout,
	}
}

// optionalFloat returns nil when key is absent so that an explicit 0 stays
// distinguishable from "provider default".
func optionalFloat(c Config, key string) *float64 {
	if !c.Has(key) {
		return nil
	}
	v := c.Float(key, 0)
	return &v
}
