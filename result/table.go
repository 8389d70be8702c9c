package result

import (
	"fmt"
	"sync"

	"github.com/xraph/vigil"
	"github.com/xraph/vigil/id"
)

// Table holds every pending result in the process, indexed by call and by
// owning worker. It is the shared structure that the task propagator, the
// worker supervisor, and the heartbeat monitor all race on; synchronization
// is per-result for terminal transitions, with the table lock covering only
// index maintenance.
type Table struct {
	mu sync.RWMutex

	// calls maps call id → the call's declared results, in index order.
	calls map[string][]*Result

	// byWorker maps worker id → call ids owned by that worker.
	byWorker map[string]map[string]struct{}

	// deadWorkers maps worker id → the failure delivered to any result
	// registered against the worker after its death. Late submissions to
	// a dead worker must fail immediately rather than hang.
	deadWorkers map[string]error
}

// NewTable creates an empty pending-result table.
func NewTable() *Table {
	return &Table{
		calls:       make(map[string][]*Result),
		byWorker:    make(map[string]map[string]struct{}),
		deadWorkers: make(map[string]error),
	}
}

// Register creates numReturns pending results for a call owned by the
// given worker and returns them in index order.
//
// If the worker has already been marked dead, the results are created
// pre-failed with the worker's death error, so a caller's get returns
// immediately instead of blocking forever.
func (t *Table) Register(callID id.CallID, worker id.WorkerID, numReturns int) []*Result {
	if numReturns < 1 {
		numReturns = 1
	}

	results := make([]*Result, numReturns)
	for i := range numReturns {
		results[i] = newResult(callID, worker, i)
	}

	t.mu.Lock()
	t.calls[callID.String()] = results

	wkey := worker.String()
	deathErr, workerDead := t.deadWorkers[wkey]
	if !workerDead && !worker.IsNil() {
		if t.byWorker[wkey] == nil {
			t.byWorker[wkey] = make(map[string]struct{})
		}
		t.byWorker[wkey][callID.String()] = struct{}{}
	}
	t.mu.Unlock()

	if workerDead {
		for _, r := range results {
			r.Fail(deathErr)
		}
	}

	return results
}

// Lookup returns the results registered for a call.
func (t *Table) Lookup(callID id.CallID) ([]*Result, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	results, ok := t.calls[callID.String()]
	if !ok {
		return nil, fmt.Errorf("%w: call %s", vigil.ErrResultNotFound, callID)
	}

	return results, nil
}

// ResolveCall resolves every declared result of a call together. A call
// declaring K values resolves all K or none: values must have exactly one
// entry per declared result. Returns true if this writer won the race.
func (t *Table) ResolveCall(callID id.CallID, values [][]byte) (bool, error) {
	results, err := t.Lookup(callID)
	if err != nil {
		return false, err
	}
	if len(values) != len(results) {
		return false, fmt.Errorf("result: call %s declared %d return values, got %d",
			callID, len(results), len(values))
	}

	won := false
	for i, r := range results {
		if r.Resolve(values[i]) {
			won = true
		}
	}

	return won, nil
}

// FailCall fails every declared result of a call together with the same
// error. Returns true if this writer won the race for at least one result.
func (t *Table) FailCall(callID id.CallID, failure error) (bool, error) {
	results, err := t.Lookup(callID)
	if err != nil {
		return false, err
	}

	won := false
	for _, r := range results {
		if r.Fail(failure) {
			won = true
		}
	}

	return won, nil
}

// FailAllForWorker marks the worker dead and atomically fails every
// pending result it owns with the given error. Results registered against
// the worker afterwards fail immediately with the same error. Returns the
// number of calls whose results this writer transitioned.
func (t *Table) FailAllForWorker(worker id.WorkerID, failure error) int {
	wkey := worker.String()

	t.mu.Lock()
	t.deadWorkers[wkey] = failure
	owned := t.byWorker[wkey]
	delete(t.byWorker, wkey)

	var results []*Result
	for callKey := range owned {
		results = append(results, t.calls[callKey]...)
	}
	t.mu.Unlock()

	failed := 0
	for _, r := range results {
		if r.Fail(failure) {
			failed++
		}
	}

	return failed
}

// WorkerDead reports whether the worker has been marked dead and, if so,
// the failure delivered for it.
func (t *Table) WorkerDead(worker id.WorkerID) (error, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	err, ok := t.deadWorkers[worker.String()]

	return err, ok
}

// PendingForWorker returns the number of still-pending results owned by
// the worker.
func (t *Table) PendingForWorker(worker id.WorkerID) int {
	t.mu.RLock()
	owned := t.byWorker[worker.String()]
	var results []*Result
	for callKey := range owned {
		results = append(results, t.calls[callKey]...)
	}
	t.mu.RUnlock()

	n := 0
	for _, r := range results {
		if r.State() == StatePending {
			n++
		}
	}

	return n
}
