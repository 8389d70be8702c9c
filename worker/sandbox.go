package worker

import (
	"context"
	"log/slog"

	"github.com/xraph/vigil/errlog"
	"github.com/xraph/vigil/middleware"
	"github.com/xraph/vigil/task"
)

// Sandbox executes a single invocation through the middleware chain and
// converts the return into an explicit outcome. Nothing ever unwinds out
// of Run: panics are recovered by the chain (when Recover middleware is
// installed) or by the sandbox's own backstop, and surface as failure
// outcomes carrying the original message.
type Sandbox struct {
	mw     middleware.Middleware
	logger *slog.Logger
}

// NewSandbox creates a Sandbox with the given middleware chain.
func NewSandbox(logger *slog.Logger, mws ...middleware.Middleware) *Sandbox {
	if logger == nil {
		logger = slog.Default()
	}
	// Recover is always the innermost backstop so a panicking handler
	// becomes an error even with an empty caller-supplied chain.
	mws = append(mws, middleware.Recover(logger))

	return &Sandbox{
		mw:     middleware.Chain(mws...),
		logger: logger,
	}
}

// Run executes the invocation and returns its outcome. User-code errors
// classify as task-execution failures; the message carries the original
// error text verbatim.
func (sb *Sandbox) Run(ctx context.Context, inv *task.Invocation, handler task.HandlerFunc) *task.Outcome {
	terminal := func(ctx context.Context) ([][]byte, error) {
		return handler(ctx, inv.Args)
	}

	values, err := sb.mw(ctx, inv, terminal)
	if err != nil {
		return task.Failed(errlog.KindTaskExecution, err.Error())
	}

	return task.Success(values...)
}
