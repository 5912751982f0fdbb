package driven

import (
	"context"

	"github.com/custodia-labs/crashstore/internal/core/domain"
)

// FailureSink receives bulk batches the store rejected.
// The bulk write path never retries them; a sink makes the loss observable.
type FailureSink interface {
	BatchFailed(ctx context.Context, batch domain.FailedBatch) error
}

// FailedBatchSource hands out dead-lettered batches for replay.
// A batch is removed only when replay returns nil.
type FailedBatchSource interface {
	Drain(ctx context.Context, replay func(context.Context, domain.FailedBatch) error) (int, error)
}
