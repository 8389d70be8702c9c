package actor

import (
	"fmt"
	"sync"

	"github.com/xraph/vigil"
	"github.com/xraph/vigil/task"
)

// MethodSpec declares one actor method: its handler, the exact number of
// arguments it accepts, and the number of declared return values.
type MethodSpec struct {
	Name       string
	Handler    task.HandlerFunc
	NumArgs    int
	NumReturns int
}

// Definition declares an actor class: its constructor, its method table,
// and the resources one instance demands.
type Definition struct {
	// Name is the unique identifier for this actor class.
	Name string

	// Constructor runs once on the backing worker when the actor is
	// created. Nil means a trivial constructor.
	Constructor task.HandlerFunc

	// NumCtorArgs is the exact number of constructor arguments.
	NumCtorArgs int

	// Methods is the declared method table. Calls to names outside it
	// are local contract violations, never dispatched.
	Methods map[string]MethodSpec

	// Resources is the per-instance resource demand.
	Resources map[string]float64

	// ImportErr, when non-nil, marks a class whose code object failed to
	// materialize; construction records one registration-import error
	// and every method call fails without dispatch.
	ImportErr error
}

// Method looks up a declared method.
func (d *Definition) Method(name string) (MethodSpec, bool) {
	m, ok := d.Methods[name]

	return m, ok
}

// ValidateConstruction checks the constructor argument count.
func (d *Definition) ValidateConstruction(numArgs int) error {
	if numArgs != d.NumCtorArgs {
		return &InvalidInvocationError{
			Actor:  d.Name,
			Method: "constructor",
			Reason: fmt.Sprintf("takes %d arguments, got %d", d.NumCtorArgs, numArgs),
		}
	}

	return nil
}

// ValidateCall checks that the method is declared and the argument count
// matches. Violations are local and synchronous: the caller gets the
// error directly and nothing is dispatched or recorded.
func (d *Definition) ValidateCall(method string, numArgs int) error {
	m, ok := d.Methods[method]
	if !ok {
		return &InvalidInvocationError{
			Actor:  d.Name,
			Method: method,
			Reason: "no such method",
		}
	}
	if numArgs != m.NumArgs {
		return &InvalidInvocationError{
			Actor:  d.Name,
			Method: method,
			Reason: fmt.Sprintf("takes %d arguments, got %d", m.NumArgs, numArgs),
		}
	}

	return nil
}

// InvalidInvocationError is a local, synchronous contract violation:
// calling an undeclared method or passing the wrong number of arguments.
// It is returned directly to the caller, symmetric whether the call was
// direct or remote, and is never routed through the error record
// pipeline.
type InvalidInvocationError struct {
	Actor  string
	Method string
	Reason string
}

// Error implements the error interface.
func (e *InvalidInvocationError) Error() string {
	return fmt.Sprintf("actor %s: method %s: %s", e.Actor, e.Method, e.Reason)
}

// Registry maps actor class names to definitions. Safe for concurrent use.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]*Definition
}

// NewRegistry creates an empty actor registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]*Definition)}
}

// Register adds a definition. Registering the same name twice is an error.
func (r *Registry) Register(def *Definition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.defs[def.Name]; exists {
		return fmt.Errorf("%w: %q", vigil.ErrDuplicateActor, def.Name)
	}
	r.defs[def.Name] = def

	return nil
}

// Get returns the definition for the given class name.
func (r *Registry) Get(name string) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.defs[name]

	return def, ok
}
