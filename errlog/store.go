package errlog

import "context"

// Store defines the persistence contract for error records.
//
// Implementations must be safe for many concurrent writers and readers.
// ListErrors is snapshot-consistent: an append racing with a list either
// is or is not visible, but a torn record is never returned, and
// CountErrors agrees with the length of ListErrors at the same instant.
type Store interface {
	// AppendError persists a new record. Records are never updated or
	// deleted afterwards.
	AppendError(ctx context.Context, r *Record) error

	// ListErrors returns records matching the filter, ordered by
	// OccurredAt ascending with Seq as tiebreaker. Repeated calls
	// without intervening appends return identical sequences.
	ListErrors(ctx context.Context, f Filter) ([]*Record, error)

	// CountErrors returns the number of records matching the filter.
	CountErrors(ctx context.Context, f Filter) (int, error)
}
