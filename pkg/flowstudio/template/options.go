package template

// MissingAction decides what happens to a placeholder with no variable.
type MissingAction int

const (
	// MissingKeep leaves the placeholder in the output unchanged.
	MissingKeep MissingAction = iota
	// MissingEmpty replaces the placeholder with "".
	MissingEmpty
	// MissingError keeps the placeholder and makes Expand return an
	// *UndefinedVariableError.
	MissingError
)

// String returns the lowercase name used in configuration.
func (a MissingAction) String() string {
	switch a {
	case MissingKeep:
		return "keep"
	case MissingEmpty:
		return "empty"
	case MissingError:
		return "error"
	}
	return "unknown"
}

// Option configures an Expander.
type Option func(*Expander)

// WithMissingAction sets the policy for placeholders with no variable.
// The default is MissingKeep.
func WithMissingAction(action MissingAction) Option {
	return func(e *Expander) { e.missing = action }
}

// WithStyles replaces the enabled placeholder styles.
func WithStyles(s Style) Option {
	return func(e *Expander) { e.styles = s }
}

// WithBraceStyle enables or disables ${name} placeholders.
func WithBraceStyle(enabled bool) Option { return toggle(Brace, enabled) }

// WithMustacheStyle enables or disables {{name}} placeholders.
func WithMustacheStyle(enabled bool) Option { return toggle(Mustache, enabled) }

// WithDollarStyle enables or disables bare $name placeholders.
func WithDollarStyle(enabled bool) Option { return toggle(Dollar, enabled) }

func toggle(s Style, on bool) Option {
	return func(e *Expander) {
		if on {
			e.styles |= s
		} else {
			e.styles &^= s
		}
	}
}

// WithFormatter sets how non-string values are rendered. nil is ignored.
func WithFormatter(fn func(any) string) Option {
	return func(e *Expander) {
		if fn != nil {
			e.format = fn
		}
	}
}
