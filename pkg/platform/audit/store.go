package audit

import "context"

// Store is the append-only audit persistence boundary. Implementations must
// never mutate or delete appended events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListBySubject(ctx context.Context, subject string) ([]Event, error)
}
