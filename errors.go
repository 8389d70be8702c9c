package vigil

import "errors"

var (
	// Store errors.
	ErrNoStore         = errors.New("vigil: no store configured")
	ErrStoreClosed     = errors.New("vigil: store closed")
	ErrMigrationFailed = errors.New("vigil: migration failed")

	// Not found errors.
	ErrNodeNotFound   = errors.New("vigil: node not found")
	ErrWorkerNotFound = errors.New("vigil: worker not found")
	ErrResultNotFound = errors.New("vigil: pending result not found")
	ErrTaskNotFound   = errors.New("vigil: task definition not found")
	ErrActorNotFound  = errors.New("vigil: actor not found")

	// Conflict errors.
	ErrDuplicateTask  = errors.New("vigil: task already registered")
	ErrDuplicateActor = errors.New("vigil: actor definition already registered")
	ErrNodeExists     = errors.New("vigil: node already registered")

	// State errors.
	ErrNodeDead        = errors.New("vigil: node is dead")
	ErrWorkerDead      = errors.New("vigil: worker is dead")
	ErrResultTerminal  = errors.New("vigil: result already terminal")
	ErrActorTerminated = errors.New("vigil: actor terminated")

	// ErrTerminated is the silent failure carried by pending results that
	// were cancelled by an intentional worker or actor termination. It is
	// delivered to waiting callers but never recorded in the error log.
	ErrTerminated = errors.New("vigil: terminated by owner")

	// ErrWaitTimeout is returned by error-count waits that elapse before
	// observing the requested number of records. It is distinct from every
	// other failure so callers can tell a timeout apart from success.
	ErrWaitTimeout = errors.New("vigil: timed out waiting for error count")

	// ErrManagerUnavailable is returned when a blocking get is issued
	// against a node manager connection that has been closed, typically
	// because the manager process crashed.
	ErrManagerUnavailable = errors.New("vigil: manager client may be closed")
)
