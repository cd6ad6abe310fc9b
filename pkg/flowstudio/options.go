package flowstudio

import (
	"log/slog"
	"maps"
	"time"

	"github.com/google/uuid"
	"github.com/randalmurphal/flowstudio/pkg/flowstudio/audit"
	"github.com/randalmurphal/flowstudio/pkg/flowstudio/observability"
)

// DefaultNodeTimeout bounds a node execution unless configured otherwise.
const DefaultNodeTimeout = 60 * time.Second

// engineConfig holds the collaborators and policies of an Engine.
type engineConfig struct {
	logger         *slog.Logger
	metrics        observability.MetricsRecorder
	spans          observability.SpanManager
	defaultTimeout time.Duration
	timeouts       map[NodeType]time.Duration
	optional       map[int64]bool
	audit          audit.Store
	auditFatal     bool
	newRunID       func() string
}

func defaultEngineConfig() engineConfig {
	return engineConfig{
		logger:         slog.Default(),
		metrics:        observability.NoopMetrics{},
		spans:          observability.NoopSpanManager{},
		defaultTimeout: DefaultNodeTimeout,
		timeouts:       make(map[NodeType]time.Duration),
		optional:       make(map[int64]bool),
		newRunID:       uuid.NewString,
	}
}

// timeout returns the execution bound for t. Zero means unbounded.
func (c *engineConfig) timeout(t NodeType) time.Duration {
	if d, ok := c.timeouts[t]; ok {
		return d
	}
	return c.defaultTimeout
}

// Option configures an Engine.
type Option func(*engineConfig)

// WithLogger sets the engine logger. A nil logger disables logging.
func WithLogger(logger *slog.Logger) Option {
	return func(c *engineConfig) {
		c.logger = logger
	}
}

// WithMetrics enables OpenTelemetry metrics through the global meter
// provider.
func WithMetrics() Option {
	return func(c *engineConfig) {
		c.metrics = observability.NewMetricsRecorder()
	}
}

// WithMetricsRecorder sets a specific recorder.
func WithMetricsRecorder(m observability.MetricsRecorder) Option {
	return func(c *engineConfig) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithTracing enables OpenTelemetry spans through the global tracer
// provider.
func WithTracing() Option {
	return func(c *engineConfig) {
		c.spans = observability.NewSpanManager()
	}
}

// WithSpanManager sets a specific span manager.
func WithSpanManager(s observability.SpanManager) Option {
	return func(c *engineConfig) {
		if s != nil {
			c.spans = s
		}
	}
}

// WithDefaultTimeout sets the timeout for node types without a specific
// one. Zero or negative disables it.
func WithDefaultTimeout(d time.Duration) Option {
	return func(c *engineConfig) {
		c.defaultTimeout = max(d, 0)
	}
}

// WithNodeTimeout sets the timeout for one node type. Zero or negative
// disables it for that type.
//
// Example:
//
//	engine := flowstudio.NewEngine(loader, registry,
//	    flowstudio.WithNodeTimeout(flowstudio.NodeLLM, 2*time.Minute),
//	)
func WithNodeTimeout(t NodeType, d time.Duration) Option {
	return func(c *engineConfig) {
		c.timeouts[t] = max(d, 0)
	}
}

// WithOptionalNodes marks nodes whose failure should not fail the run, in
// addition to nodes carrying Node.Optional.
func WithOptionalNodes(ids ...int64) Option {
	return func(c *engineConfig) {
		for _, id := range ids {
			c.optional[id] = true
		}
	}
}

// WithAuditStore records every executed node and the final run outcome.
func WithAuditStore(store audit.Store) Option {
	return func(c *engineConfig) {
		c.audit = store
	}
}

// WithAuditFailureFatal fails the run when an audit record cannot be
// saved. By default such failures are logged and ignored.
func WithAuditFailureFatal(fatal bool) Option {
	return func(c *engineConfig) {
		c.auditFatal = fatal
	}
}

// WithRunIDGenerator replaces the uuid-based run id generator.
func WithRunIDGenerator(fn func() string) Option {
	return func(c *engineConfig) {
		if fn != nil {
			c.newRunID = fn
		}
	}
}

// runConfig holds per-run settings.
type runConfig struct {
	runID   string
	history []Turn
	vars    map[string]any
}

// RunOption configures a single run.
type RunOption func(*runConfig)

// WithRunID sets the run id. It must not collide with an active run.
func WithRunID(id string) RunOption {
	return func(c *runConfig) {
		c.runID = id
	}
}

// WithHistory seeds the transcript with earlier turns of the chat session.
func WithHistory(turns ...Turn) RunOption {
	return func(c *runConfig) {
		c.history = append(c.history, turns...)
	}
}

// WithVars adds variables visible to templates and predicates.
func WithVars(vars map[string]any) RunOption {
	return func(c *runConfig) {
		if c.vars == nil {
			c.vars = make(map[string]any, len(vars))
		}
		maps.Copy(c.vars, vars)
	}
}
