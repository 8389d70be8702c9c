// Package postgres implements store.Store on PostgreSQL using pgx/v5
// with connection pooling. Error records are an append-only table;
// liveness entries enforce dead-is-terminal at the SQL level.
package postgres
