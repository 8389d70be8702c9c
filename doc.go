// Package vigil is the failure-detection and error-propagation core of a
// distributed task/actor execution runtime. It observes liveness of workers
// and cluster nodes, intercepts task and actor execution failures at the
// point of occurrence, turns them into durable typed error records, and
// guarantees that any caller blocked on the result of a failed unit of work
// is released with an accurate error rather than hanging.
//
// Vigil is designed as a library, not a service. The scheduler that places
// work, the object store that holds values, and the process supervision that
// spawns workers are external collaborators; vigil consumes their signals
// (execution outcomes, heartbeats, worker-exit notifications) at a narrow
// boundary and owns everything from there to the caller's blocking get.
//
// # Quick Start
//
//	s := memory.New()
//	rt, err := runtime.Build(s,
//	    runtime.WithLogger(logger),
//	)
//
// # Architecture
//
// Vigil follows a composable store pattern where each subsystem (errlog,
// cluster) defines its own store interface. A single backend implements all
// of them; memory, Redis, and Postgres backends ship in store/.
//
// All entity IDs use TypeID — type-prefixed, K-sortable, UUIDv7-based,
// compile-time safe identifiers.
package vigil
