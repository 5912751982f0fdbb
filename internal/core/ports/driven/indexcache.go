package driven

import "context"

// IndexCache remembers index names known to exist.
// Names are only ever added; an index deleted out-of-band stays cached.
type IndexCache interface {
	// Contains reports whether name was added before.
	Contains(ctx context.Context, name string) (bool, error)

	// Add records name as existing.
	Add(ctx context.Context, name string) error
}
