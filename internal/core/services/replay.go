package services

import (
	"context"
	"fmt"

	"github.com/custodia-labs/crashstore/internal/core/domain"
	"github.com/custodia-labs/crashstore/internal/core/ports/driven"
	"github.com/custodia-labs/crashstore/internal/core/ports/driving"
	"github.com/custodia-labs/crashstore/internal/logger"
)

// Ensure Replayer implements the interface.
var _ driving.DeadLetterReplayer = (*Replayer)(nil)

// Replayer resubmits dead-lettered bulk batches through a transaction
// executor. Actions are replayed as they were queued, so crashes keep
// their ids and replaying twice does not duplicate them.
type Replayer struct {
	source   driven.FailedBatchSource
	executor driven.TransactionExecutor
}

// NewReplayer creates a replayer.
func NewReplayer(source driven.FailedBatchSource, executor driven.TransactionExecutor) *Replayer {
	return &Replayer{source: source, executor: executor}
}

// Replay drains the source. It stops at the first batch the store rejects;
// that batch stays with the source.
func (r *Replayer) Replay(ctx context.Context) (int, error) {
	n, err := r.source.Drain(ctx, func(ctx context.Context, batch domain.FailedBatch) error {
		if len(batch.Actions) == 0 {
			return nil
		}
		return r.executor.Execute(ctx, func(ctx context.Context, conn driven.Connection) error {
			return conn.Bulk(ctx, batch.Actions)
		})
	})
	if n > 0 {
		logger.Info("replayed %d dead-lettered batches", n)
	}
	if err != nil {
		return n, fmt.Errorf("replaying dead letters: %w", err)
	}
	return n, nil
}
