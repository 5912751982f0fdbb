package driving

import (
	"context"
	"iter"
	"time"

	"github.com/custodia-labs/crashstore/internal/core/domain"
)

// CrashStorage persists crash documents.
type CrashStorage interface {
	// Save persists one crash document. Implementations may mutate doc.
	Save(ctx context.Context, doc *domain.CrashDocument) error

	// SaveRawAndProcessed builds a document from its parts and saves it.
	SaveRawAndProcessed(ctx context.Context, raw, processed map[string]any, crashID string) error

	// Close releases resources. Asynchronous implementations block here
	// until every accepted document has been submitted.
	Close() error
}

// CrashSource enumerates crashes processed on a given day.
type CrashSource interface {
	// NewCrashes yields the ids of crashes for product and any of versions
	// processed on date. The sequence is lazy and not restartable.
	NewCrashes(ctx context.Context, date time.Time, product string, versions []string) iter.Seq2[string, error]

	// NewProcessedCrashes yields the full processed crashes for the same window.
	NewProcessedCrashes(ctx context.Context, date time.Time, product string, versions []string) iter.Seq2[map[string]any, error]
}

// CorrelationsStorage records correlation summaries as aggregate documents.
type CorrelationsStorage interface {
	Store(ctx context.Context, summary map[string]any, req domain.AggregateRequest) error
}

// BulkCrashStorage is a CrashStorage that writes asynchronously in batches.
type BulkCrashStorage interface {
	CrashStorage

	// Stats reports how many documents were queued, submitted and lost.
	Stats() domain.BulkStats
}

// DeadLetterReplayer resubmits bulk batches that were dead-lettered.
type DeadLetterReplayer interface {
	// Replay submits every pending batch and returns how many succeeded.
	Replay(ctx context.Context) (int, error)
}
