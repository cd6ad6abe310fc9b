package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/randalmurphal/flowstudio/pkg/flowstudio"
	"github.com/randalmurphal/flowstudio/pkg/flowstudio/audit"
	"github.com/randalmurphal/flowstudio/pkg/flowstudio/config"
	"github.com/randalmurphal/flowstudio/pkg/flowstudio/flowfile"
	"github.com/randalmurphal/flowstudio/pkg/flowstudio/llm"
	"github.com/randalmurphal/flowstudio/pkg/flowstudio/postgres"
	"github.com/randalmurphal/flowstudio/pkg/flowstudio/retrieval"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// app holds the collaborators shared by subcommands.
type app struct {
	cfg    *config.Engine
	logger *slog.Logger

	loader flowstudio.GraphLoader
	// dir is nil when flows come from postgres.
	dir *flowfile.Dir

	passages retrieval.Store
	indexer  func(ctx context.Context, documentID int64, chunks ...string) error

	audit audit.Store

	closers []func()
}

// setup resolves settings and opens the configured backends. Callers must
// call close.
func setup(ctx context.Context, cmd *cobra.Command, v *viper.Viper) (*app, error) {
	if path := v.GetString(keyEnvFile); path != "" {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load env file: %w", err)
		}
	}

	logger, err := newLogger(cmd.ErrOrStderr(), v.GetString(keyLogFormat), v.GetString(keyLogLevel))
	if err != nil {
		return nil, err
	}

	cfg, err := loadEngineConfig(v)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger}

	if dsn := v.GetString(keyPostgres); dsn != "" {
		pool, err := postgres.Connect(ctx, dsn)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pool.Close)
		if err := postgres.EnsureSchema(ctx, pool); err != nil {
			a.close()
			return nil, err
		}
		store := postgres.NewPassageStore(pool)
		a.loader = postgres.NewGraphStore(pool)
		a.passages = store
		a.indexer = store.IndexChunks
		logger.Debug("using postgres backend")
	} else {
		a.dir = flowfile.NewDir(v.GetString(keyFlows))
		mem := retrieval.NewMemoryStore()
		a.loader = a.dir
		a.passages = mem
		a.indexer = func(_ context.Context, documentID int64, chunks ...string) error {
			mem.Index(documentID, chunks...)
			return nil
		}
	}

	store, err := cfg.OpenAudit(ctx)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("open audit store: %w", err)
	}
	if store != nil {
		a.audit = store
		a.closers = append(a.closers, func() {
			if err := store.Close(); err != nil {
				logger.Warn("close audit store", "error", err)
			}
		})
	}
	return a, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// engine builds an Engine over the app's loader and audit store.
func (a *app) engine(deps flowstudio.Dependencies) *flowstudio.Engine {
	if deps.Retrieval == nil {
		deps.Retrieval = a.passages
	}
	if deps.Retry == nil {
		retry := a.cfg.RetryConfig()
		deps.Retry = &retry
	}
	opts := append(a.cfg.Options(), flowstudio.WithLogger(a.logger))
	if a.audit != nil {
		opts = append(opts, flowstudio.WithAuditStore(a.audit))
	}
	return flowstudio.NewEngine(a.loader, flowstudio.NewDefaultRegistry(deps), opts...)
}

// llmClient returns a mock answering response when mock is set, otherwise
// the configured OpenAI-compatible client. Without an API key it returns a
// nil client; flows without model nodes still run.
func (a *app) llmClient(ctx context.Context, mock bool, response string) (llm.Client, error) {
	if mock {
		return llm.NewMockClient(response), nil
	}
	oc := a.cfg.OpenAIConfig()
	if oc.APIKey == "" {
		a.logger.Warn("no API key; LLM and classifier nodes will fail", "env", a.cfg.LLM.APIKeyEnv)
		return nil, nil
	}
	return llm.NewOpenAIClient(ctx, oc)
}

// loadEngineConfig reads the engine config through viper so that
// environment variables override file values.
func loadEngineConfig(v *viper.Viper) (*config.Engine, error) {
	if path := v.GetString(keyConfig); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return config.Parse(config.New(v.AllSettings()))
}

func newLogger(w io.Writer, format, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}

// flowRef is a --flow argument: a numeric flow id, or a flow file path.
type flowRef struct {
	id   int64
	path string
}

func parseFlowRef(s string) (flowRef, error) {
	if s == "" {
		return flowRef{}, errors.New("flow reference is empty")
	}
	if id, err := strconv.ParseInt(s, 10, 64); err == nil {
		return flowRef{id: id}, nil
	}
	if _, err := os.Stat(s); err != nil {
		return flowRef{}, fmt.Errorf("flow %q is neither an id nor a readable file: %w", s, err)
	}
	return flowRef{path: s}, nil
}

func (r flowRef) String() string {
	if r.path != "" {
		return r.path
	}
	return strconv.FormatInt(r.id, 10)
}

// graph loads the referenced graph. Files are read directly; ids go through
// the loader.
func (a *app) graph(ctx context.Context, r flowRef) (*flowstudio.Graph, error) {
	if r.path != "" {
		f, err := flowfile.LoadFile(r.path)
		if err != nil {
			return nil, err
		}
		return f.Graph()
	}
	nodes, edges, err := a.loader.LoadGraph(ctx, r.id)
	if err != nil {
		return nil, err
	}
	return flowstudio.Build(nodes, edges)
}
