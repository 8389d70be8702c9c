// Package store defines the aggregate persistence interface. Each
// subsystem (errlog, cluster) defines its own store interface. The
// composite Store composes them all. Backends: Postgres, Redis, and
// Memory.
package store

import (
	"context"

	"github.com/xraph/vigil/cluster"
	"github.com/xraph/vigil/errlog"
)

// Store is the aggregate persistence interface.
// Each subsystem store is a composable interface; a single backend
// (postgres, redis, memory) implements all of them.
type Store interface {
	errlog.Store
	cluster.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
