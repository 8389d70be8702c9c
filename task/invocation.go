package task

import (
	"time"

	"github.com/xraph/vigil/id"
)

// Invocation is one remote execution of a task or actor method: the unit
// the sandbox runs and the middleware chain wraps.
type Invocation struct {
	CallID id.CallID `json:"call_id"`

	// Name is the task name, or "actor.method" for actor method calls.
	Name string `json:"name"`

	// WorkerID is the worker the invocation was placed on.
	WorkerID id.WorkerID `json:"worker_id"`

	// ActorID is set for actor constructor and method invocations.
	ActorID id.ActorID `json:"actor_id,omitempty"`

	// Args are the msgpack-encoded call arguments.
	Args [][]byte `json:"args,omitempty"`

	// NumReturns is the number of declared return values.
	NumReturns int `json:"num_returns"`

	// Timeout bounds the execution, zero meaning unbounded.
	Timeout time.Duration `json:"timeout,omitempty"`

	SubmittedAt time.Time `json:"submitted_at"`
}
