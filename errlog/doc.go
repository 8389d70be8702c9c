// Package errlog provides the append-only error record store and the read
// path exposed to submitting processes.
//
// Every failure vigil detects — a task raising, a worker dying, a node
// missing its heartbeats, an infeasible resource demand — becomes exactly
// one immutable [Record] per occurrence. Records are never mutated or
// deleted; they are appended by whichever component observes the failure
// and read back by the driver through [Log.List], [Log.Count], and the
// blocking [Log.WaitForCount] primitive.
//
// Recurring conditions legitimately produce one record per occurrence: N
// workers each failing to import the same broken task yield N records.
// Deduplication is deliberately not performed here; throttling of warning
// floods is the emitting component's concern (see package capacity).
package errlog
