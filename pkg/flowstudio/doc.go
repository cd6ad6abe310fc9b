/*
Package flowstudio executes chat flows: directed graphs of typed nodes
(START, LLM, RETRIEVER, QUESTION_CLASSIFIER, CONDITIONAL, ANSWER) wired to a
model provider and a retrieval store.

# Overview

A flow is loaded as plain nodes and edges, validated into an immutable Graph
by Build, and run by an Engine. One run executes nodes one at a time in
ascending id order among those that are ready; independent runs share
nothing and may execute concurrently on the same Engine.

# Basic Usage

	g, err := flowstudio.Build(
	    []flowstudio.Node{
	        {ID: 1, Type: flowstudio.NodeStart},
	        {ID: 2, Type: flowstudio.NodeLLM, Payload: flowstudio.LLMConfig{UserPrompt: "${input}"}},
	        {ID: 3, Type: flowstudio.NodeAnswer, Payload: flowstudio.AnswerConfig{Template: "${node_2}"}},
	    },
	    []flowstudio.Edge{{SourceID: 1, TargetID: 2}, {SourceID: 2, TargetID: 3}},
	)
	if err != nil {
	    log.Fatal(err)
	}

	engine := flowstudio.NewEngine(nil, flowstudio.NewDefaultRegistry(flowstudio.Dependencies{LLM: client}))
	res, err := engine.RunGraph(ctx, g, "hi")

RunFlow does the same for a flow id, fetching nodes and edges through the
Engine's GraphLoader.

# Branching

CONDITIONAL and QUESTION_CLASSIFIER nodes tag each outgoing edge with a
branch: "true"/"false" for conditionals, a class label for classifiers. Only
the selected edge activates. Nodes reachable solely through the others are
skipped and listed in RunResult.Skipped. A node where several paths join
runs when none of its incoming edges is pending and at least one is active.

# Templates

Prompt and answer templates see input, history, last_output and node_<id>
plus any WithVars values, in ${name} or {{name}} form. A bare $word is left
as written. An undefined name fails the node with ErrPromptRender.

# Errors

Build returns a *GraphError. A failing node yields a *NodeError whose Kind
is one of the Err* sentinels; the run stops unless the node is optional, in
which case it ends PARTIAL. A run that never reaches an ANSWER node fails
with a *RunError wrapping ErrNoAnswerReached. CancelRun ends a run with a
*CancellationError.

# Observability

WithLogger, WithMetrics and WithTracing enable slog logging, OpenTelemetry
metrics and spans. WithAuditStore persists one record per executed node and
one per finished run.
*/
package flowstudio
