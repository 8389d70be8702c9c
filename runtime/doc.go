// Package runtime assembles the vigil subsystems into one coordinating
// type. Build wires the error log, pending-result table, heartbeat
// monitor, worker supervisor, actor tracker, task propagator, and
// capacity checker over a single store; Start and Stop manage the
// background loops. The Runtime is also the sink for liveness reports
// arriving over the wire protocol.
package runtime
