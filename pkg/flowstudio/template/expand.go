package template

import (
	"fmt"
	"regexp"
	"strings"
)

// Style is a set of placeholder syntaxes.
type Style uint8

const (
	// Brace is ${name}.
	Brace Style = 1 << iota
	// Mustache is {{name}}, with optional inner spaces.
	Mustache
	// Dollar is $name.
	Dollar

	AllStyles = Brace | Mustache | Dollar
)

// placeholder matches every style in one pass, so substituted values are
// never expanded again. Group i+1 holds the name for styleOrder[i]. The
// dollar group is greedy: $node_1 does not match inside $node_12.
var placeholder = regexp.MustCompile(
	`\$\{([A-Za-z_]\w*)\}|\{\{\s*([A-Za-z_]\w*)\s*\}\}|\$([A-Za-z_]\w*)`,
)

var styleOrder = [...]Style{Brace, Mustache, Dollar}

// Expander substitutes run variables into node templates. It is safe for
// concurrent use.
type Expander struct {
	styles  Style
	missing MissingAction
	format  func(any) string
}

// NewExpander enables every style and keeps unknown placeholders unless
// opts say otherwise.
func NewExpander(opts ...Option) *Expander {
	e := &Expander{styles: AllStyles, missing: MissingKeep, format: defaultFormat}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// name returns the variable named by one regexp match, or "" when the
// match's style is disabled.
func (e *Expander) name(groups []string) string {
	for i, style := range styleOrder {
		if g := groups[i+1]; g != "" {
			if e.styles&style == 0 {
				return ""
			}
			return g
		}
	}
	return ""
}

// Expand substitutes vars into s. With MissingError the error lists every
// unknown name and the returned string keeps their placeholders.
func (e *Expander) Expand(s string, vars map[string]any) (string, error) {
	if s == "" {
		return "", nil
	}
	var undefined []string
	out := placeholder.ReplaceAllStringFunc(s, func(match string) string {
		name := e.name(placeholder.FindStringSubmatch(match))
		if name == "" {
			return match
		}
		if v, ok := vars[name]; ok {
			return e.format(v)
		}
		switch e.missing {
		case MissingEmpty:
			return ""
		case MissingError:
			undefined = appendUnique(undefined, name)
		}
		return match
	})
	if undefined != nil {
		return out, &UndefinedVariableError{Names: undefined}
	}
	return out, nil
}

// Variables lists the names s refers to through enabled styles, first
// appearance first.
func (e *Expander) Variables(s string) []string {
	var names []string
	for _, groups := range placeholder.FindAllStringSubmatch(s, -1) {
		if name := e.name(groups); name != "" {
			names = appendUnique(names, name)
		}
	}
	return names
}

func appendUnique(names []string, name string) []string {
	for _, n := range names {
		if n == name {
			return names
		}
	}
	return append(names, name)
}

// UndefinedVariableError reports placeholders with no matching variable.
type UndefinedVariableError struct {
	Names []string
}

func (e *UndefinedVariableError) Error() string {
	if len(e.Names) == 1 {
		return "undefined variable: " + e.Names[0]
	}
	return "undefined variables: " + strings.Join(e.Names, ", ")
}

func defaultFormat(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case fmt.Stringer:
		return val.String()
	}
	return fmt.Sprint(v)
}

var defaultExpander = NewExpander()

// Expand uses an Expander with default settings; unknown placeholders stay.
func Expand(s string, vars map[string]any) string {
	out, _ := defaultExpander.Expand(s, vars)
	return out
}

// Variables uses an Expander with default settings.
func Variables(s string) []string {
	return defaultExpander.Variables(s)
}
