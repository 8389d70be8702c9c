// Package task defines remote task declarations and the failure propagator
// that wraps every execution outcome.
//
// Execution results cross the worker boundary as an explicit [Outcome]
// tagged union — Success carrying the declared return values, or Failure
// carrying classified failure info — never as an in-flight panic or
// exception. The [Propagator] pattern-matches on the tag: success resolves
// the call's pending results together, failure appends one error record
// per occurrence and fails the results as a unit, so a caller blocked on
// any of them observes the original message rather than hanging.
package task
