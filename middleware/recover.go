package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/xraph/vigil/task"
)

// Recover returns middleware that recovers from panics in the handler
// chain. A panicking handler never unwinds past the sandbox boundary:
// the panic is converted to an error and logged with a stack trace, and
// the sandbox classifies it into a failure outcome.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, inv *task.Invocation, next Handler) (values [][]byte, retErr error) {
		defer func() {
			if r := recover(); r != nil {
				stack := string(debug.Stack())
				logger.Error("invocation handler panicked",
					slog.String("name", inv.Name),
					slog.String("call_id", inv.CallID.String()),
					slog.Any("panic", r),
					slog.String("stack", stack),
				)
				values = nil
				retErr = fmt.Errorf("panic in %s: %v", inv.Name, r)
			}
		}()
		return next(ctx)
	}
}
