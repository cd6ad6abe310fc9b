/*
Package template renders prompt and answer templates for flow nodes.

# Patterns

Three placeholder styles are recognized:

  - ${var} is the brace style.
  - {{var}} is the mustache style; surrounding spaces are allowed.
  - $var is the dollar style, matched on word boundaries.

Variable names are identifiers: letters, digits and underscores, not starting
with a digit. Flow runs expose "input", "history", "last_output" and "node_<id>":

	vars := map[string]any{"input": "hi", "node_3": "hello"}
	out, err := template.NewExpander(template.WithMissingAction(template.MissingError)).
		Expand("User said {{input}}; model said ${node_3}", vars)

# Missing variables

The package-level Expand keeps unknown placeholders verbatim. Executors use
MissingError, which reports every unknown name in one *UndefinedVariableError:

	_, err := exp.Expand("Hello ${who}", nil)
	var undef *template.UndefinedVariableError
	errors.As(err, &undef) // undef.Names == []string{"who"}

WithStyles, or the per-style toggles, restrict which syntaxes are honoured.
Expander is safe for concurrent use after construction.
*/
package template
