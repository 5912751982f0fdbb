package driven

import (
	"context"

	"github.com/custodia-labs/crashstore/internal/core/domain"
)

// ConnectionProvider hands out scoped sessions to the document store.
// Callers must Close every connection they obtain.
type ConnectionProvider interface {
	Connect(ctx context.Context) (Connection, error)
}

// Connection is a session against the document store.
// A connection is used by one logical caller at a time.
type Connection interface {
	// Index writes one document. A non-empty id overwrites any document
	// with the same id in the index; an empty id lets the store assign one.
	// It returns the id the document was stored under.
	Index(ctx context.Context, index, docType, id string, body any) (string, error)

	// Bulk writes all actions in one round-trip.
	Bulk(ctx context.Context, actions []domain.BulkAction) error

	// Scroll opens a cursor over the documents matching req.
	Scroll(ctx context.Context, req domain.SearchRequest) (Scroll, error)

	// Close releases the session.
	Close() error
}

// Scroll is an open server-side cursor.
type Scroll interface {
	// Next returns the next page. An empty page means the cursor is exhausted.
	Next(ctx context.Context) ([]domain.Hit, error)

	// Close releases the cursor. Safe to call more than once.
	Close() error
}

// IndexCreator creates store indices.
// Creating an index that already exists is not an error.
type IndexCreator interface {
	CreateIndex(ctx context.Context, name string, settings domain.IndexSettings) error
}
