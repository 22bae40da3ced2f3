package audit

import "context"

// Store is the audit trail contract. Both the Postgres store and the
// in-memory fallback satisfy it.
type Store interface {
	Record(ctx context.Context, e *Event) error
	Query(ctx context.Context, f Filter) ([]*Event, error)
	Stats(ctx context.Context) (*Stats, error)
	Cleanup(ctx context.Context) error
	Close() error
}
