package detection

import "context"

// Repository is the durable store of detection events.
//
// Implementations must be safe for concurrent use: concurrent appends never
// lose events and never assign the same ID twice. Reads return a consistent
// point-in-time view that may exclude appends still in flight.
type Repository interface {
	// Append stores e and sets e.ID. It is all-or-nothing.
	Append(ctx context.Context, e *Event) error

	// All returns every stored event, in no particular order.
	All(ctx context.Context) ([]Event, error)

	// Recent returns at most limit events ordered by CompareRecent.
	Recent(ctx context.Context, limit int) ([]Event, error)

	// Ping checks that the store is reachable.
	Ping(ctx context.Context) error

	// Close releases the underlying resources.
	Close() error
}
