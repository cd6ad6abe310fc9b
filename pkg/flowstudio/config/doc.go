/*
Package config loads engine configuration from YAML or JSON.

# Overview

Config wraps a decoded document and provides typed accessors that return a
default when a key is missing or has the wrong type. Parse turns a Config
into a typed Engine description, validating every field and reporting all
problems at once.

# Engine Configuration

	default_timeout: 60s
	timeouts:
	  LLM: 30s
	  RETRIEVER: 5s
	optional_nodes: [4]
	retry:
	  max_attempts: 3
	  initial_backoff: 500ms
	audit:
	  driver: sqlite
	  dsn: audit.db

Load the file and build an engine from it:

	ecfg, err := config.Load("engine.yaml")
	if err != nil {
	    log.Fatal(err)
	}
	store, err := ecfg.OpenAudit(ctx)
	if err != nil {
	    log.Fatal(err)
	}
	opts := ecfg.Options()
	if store != nil {
	    opts = append(opts, flowstudio.WithAuditStore(store))
	}
	retry := ecfg.RetryConfig()
	registry := flowstudio.NewDefaultRegistry(flowstudio.Dependencies{
	    LLM:   client,
	    Retry: &retry,
	})
	engine := flowstudio.NewEngine(loader, registry, opts...)

# Type Coercion

Durations accept strings ("30s", "1h30m"), numbers of seconds and
time.Duration values. Integers accept floats without a fractional part,
which is how JSON numbers arrive. Node id lists accept both.
*/
package config
