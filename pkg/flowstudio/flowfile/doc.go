/*
Package flowfile reads flow definitions from YAML, JSON and HCL files.

A flow file holds one flow: its id, an optional name, the nodes with their
type-specific configuration and the edges between them.

# YAML

	id: 42
	name: support
	nodes:
	  - id: 1
	    type: START
	  - id: 2
	    type: CONDITIONAL
	    config:
	      expression: input contains 'refund'
	  - id: 3
	    type: ANSWER
	    config:
	      template: "Refunds take five days."
	  - id: 4
	    type: ANSWER
	    config:
	      template: "You said: ${input}"
	edges:
	  - {source: 1, target: 2}
	  - {source: 2, target: 3, branch: "true"}
	  - {source: 2, target: 4, branch: "false"}

JSON files use the same field names.

# HCL

	id   = 42
	name = "support"

	node "start" {
	  id   = 1
	  type = "START"
	}

	node "reply" {
	  id   = 2
	  type = "ANSWER"
	  config = {
	    template = "You said: {{input}}"
	  }
	}

	edge {
	  source = 1
	  target = 2
	}

HCL evaluates ${...} inside quoted strings, so templates in HCL files use
the {{var}} style or escape the brace style as $${var}.

# Loading

LoadFile reads one file. Dir implements flowstudio.GraphLoader over every
flow file below a directory:

	engine := flowstudio.NewEngine(flowfile.NewDir("./flows"), registry)
	res, err := engine.RunFlow(ctx, 42, "I want a refund")
*/
package flowfile
