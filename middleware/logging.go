package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/vigil/task"
)

// Logging returns middleware that logs invocation start and completion.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, inv *task.Invocation, next Handler) ([][]byte, error) {
		logger.Debug("invocation started",
			slog.String("name", inv.Name),
			slog.String("call_id", inv.CallID.String()),
			slog.String("worker_id", inv.WorkerID.String()),
		)

		start := time.Now()
		values, err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Error("invocation failed",
				slog.String("name", inv.Name),
				slog.String("call_id", inv.CallID.String()),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Debug("invocation completed",
				slog.String("name", inv.Name),
				slog.String("call_id", inv.CallID.String()),
				slog.Duration("elapsed", elapsed),
			)
		}

		return values, err
	}
}
