/*
Package expr evaluates the boolean predicates attached to Conditional nodes.

# Syntax

	<expr>       := <expr> 'or' <expr>
	              | <expr> 'and' <expr>
	              | 'not' <expr>
	              | '!' <expr>
	              | <comparison>
	              | <value>
	<comparison> := <value> <op> <value>
	<op>         := '==' | '!=' | '<' | '>' | '<=' | '>='
	              | 'contains' | 'not contains' | 'startswith' | 'endswith'
	<value>      := 'string' | "string" | number | true | false | null | identifier

"and" binds tighter than "or". Keywords and operators inside quoted strings
are treated as text.

# Variables

Identifiers are looked up in the vars map passed to Evaluate. Flow runs expose
the user input as "input", the rendered chat history as "history" and every
produced node output as "node_<id>":

	ok, err := expr.Eval("node_4 contains 'refund' and input != ''", vars)

In strict mode (the default used by the flow engine) an identifier that is not
present in vars is an error wrapping ErrUndefinedOperand. In lenient mode the
identifier is treated as a bare string literal.

# Comparison semantics

== and != compare the printed form of both sides, so 5 == '5' holds. Ordering
operators require both sides to be numeric and return ErrNotNumeric otherwise.

# Truthiness

A lone value is true unless it is nil, false, "", or a numeric zero.
*/
package expr
