// Package actor tracks the lifecycle of stateful remote actors and gates
// their method calls.
//
// The tracker distinguishes four terminal conditions the rest of the
// runtime must not conflate: constructor failure (recorded once, then
// propagated forward to every queued method call without dispatching any
// of them), method failure (recorded per occurrence by the task
// propagator), backing-worker death (handled by the worker supervisor),
// and intentional termination (never recorded — after it, no error of any
// kind is emitted for the actor, even if its worker later exits).
//
// Calling an undeclared method or calling with the wrong number of
// arguments is a local, synchronous contract violation: it returns an
// [*InvalidInvocationError] to the caller immediately and never enters
// the distributed error pipeline.
package actor
