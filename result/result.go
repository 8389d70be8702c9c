// Package result implements the pending-result table: one-shot futures for
// remote invocations, released by whichever component observes the terminal
// condition first.
//
// A Result makes exactly one transition, Pending to Resolved or Pending to
// Failed. The transition is first-writer-wins: redundant writers detect
// "already terminal" and perform no write. Release of blocked callers is
// event-driven — each result carries a channel closed on the terminal
// transition — so a Get never polls.
package result

import (
	"context"
	"sync"

	"github.com/xraph/vigil/id"
)

// State is the lifecycle state of a pending result.
type State string

const (
	// StatePending means no terminal condition has been observed yet.
	StatePending State = "pending"
	// StateResolved means the invocation completed and the value is set.
	StateResolved State = "resolved"
	// StateFailed means the invocation failed and the error is set.
	StateFailed State = "failed"
)

// Result is a one-shot, single-writer future for one declared return value
// of a remote invocation. A call declaring K return values owns K results
// that resolve or fail together.
type Result struct {
	callID id.CallID
	worker id.WorkerID
	index  int

	mu    sync.Mutex
	state State
	value []byte
	err   error
	done  chan struct{}
}

// newResult creates a pending result owned by the given worker.
func newResult(callID id.CallID, worker id.WorkerID, index int) *Result {
	return &Result{
		callID: callID,
		worker: worker,
		index:  index,
		state:  StatePending,
		done:   make(chan struct{}),
	}
}

// CallID returns the invocation this result belongs to.
func (r *Result) CallID() id.CallID { return r.callID }

// Worker returns the worker that owns the execution of this result.
func (r *Result) Worker() id.WorkerID { return r.worker }

// Index returns the position of this result among the call's declared
// return values.
func (r *Result) Index() int { return r.index }

// State returns the current state. Once terminal it never changes.
func (r *Result) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.state
}

// Resolve transitions the result to Resolved with the given value.
// Returns true if this call performed the transition, false if the result
// was already terminal (later writers are idempotent no-ops).
func (r *Result) Resolve(value []byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StatePending {
		return false
	}
	r.state = StateResolved
	r.value = value
	close(r.done)

	return true
}

// Fail transitions the result to Failed with the given error.
// Returns true if this call performed the transition.
func (r *Result) Fail(err error) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StatePending {
		return false
	}
	r.state = StateFailed
	r.err = err
	close(r.done)

	return true
}

// Done returns a channel closed when the result becomes terminal.
func (r *Result) Done() <-chan struct{} { return r.done }

// Get blocks until the result is terminal or ctx is cancelled, then
// returns the value or the failure. A failed result's error embeds the
// original failure message verbatim; Get never substitutes a default
// value for a failure.
func (r *Result) Get(ctx context.Context) ([]byte, error) {
	select {
	case <-r.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == StateFailed {
		return nil, r.err
	}

	return r.value, nil
}

// Err returns the failure after the result is terminal, or nil.
func (r *Result) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.err
}
