package task

import "context"

// HandlerFunc is a type-erased task handler. Arguments and return values
// are msgpack-encoded; a task declaring N return values must return
// exactly N encoded values on success.
type HandlerFunc func(ctx context.Context, args [][]byte) ([][]byte, error)

// Definition declares a remote task: its handler, the fixed number of
// declared return values, and the resources one invocation demands.
type Definition struct {
	// Name is the unique identifier for this task type.
	Name string

	// Handler executes one invocation. Ignored when ImportErr is set.
	Handler HandlerFunc

	// NumReturns is the number of declared return values. An invocation
	// produces exactly this many pending results, which resolve or fail
	// together. Defaults to 1.
	NumReturns int

	// Resources is the per-invocation resource demand by resource name.
	// The feasibility checker compares it against advertised node
	// capacities.
	Resources map[string]float64

	// ImportErr, when non-nil, marks a definition whose code object
	// failed to materialize. Every worker that attempts to load it
	// records one registration-import error, and invocations fail
	// without running user code.
	ImportErr error
}

// NewDefinition creates a task definition with a single declared return
// value.
func NewDefinition(name string, handler HandlerFunc, opts ...DefinitionOption) *Definition {
	def := &Definition{
		Name:       name,
		Handler:    handler,
		NumReturns: 1,
	}
	for _, opt := range opts {
		opt(def)
	}

	return def
}

// DefinitionOption configures a Definition.
type DefinitionOption func(*Definition)

// WithNumReturns sets the number of declared return values.
func WithNumReturns(n int) DefinitionOption {
	return func(d *Definition) {
		if n > 0 {
			d.NumReturns = n
		}
	}
}

// WithResources sets the per-invocation resource demand.
func WithResources(r map[string]float64) DefinitionOption {
	return func(d *Definition) { d.Resources = r }
}

// WithImportError marks the definition as failed to materialize.
func WithImportError(err error) DefinitionOption {
	return func(d *Definition) { d.ImportErr = err }
}
