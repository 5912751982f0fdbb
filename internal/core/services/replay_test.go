package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/crashstore/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/crashstore/internal/core/domain"
)

// queueSource is a FailedBatchSource over a slice.
type queueSource struct {
	batches []domain.FailedBatch
}

func (q *queueSource) Drain(ctx context.Context, replay func(context.Context, domain.FailedBatch) error) (int, error) {
	n := 0
	for len(q.batches) > 0 {
		if err := replay(ctx, q.batches[0]); err != nil {
			return n, err
		}
		q.batches = q.batches[1:]
		n++
	}
	return n, nil
}

func TestReplayer_ResubmitsFailedBatches(t *testing.T) {
	store := memory.NewDocumentStore()
	store.SetBulkError(errors.New("rejected"))
	sink := &recordingSink{}
	bulk := newBulk(t, store, store, BulkOptions{ItemsPerBulkLoad: 2, MaximumQueueSize: 4, FailureSink: sink})
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		require.NoError(t, bulk.Save(ctx, crashAt(i)))
	}
	require.NoError(t, bulk.Close())
	require.Empty(t, store.Documents("socorro201501"))

	store.SetBulkError(nil)
	source := &queueSource{batches: sink.received()}
	n, err := NewReplayer(source, &directExecutor{provider: store}).Replay(ctx)

	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, store.Documents("socorro201501"), 4)

	// Replaying the same batches again upserts by id.
	source.batches = sink.received()
	_, err = NewReplayer(source, &directExecutor{provider: store}).Replay(ctx)
	require.NoError(t, err)
	assert.Len(t, store.Documents("socorro201501"), 4)
}

func TestReplayer_StopsOnStoreError(t *testing.T) {
	store := memory.NewDocumentStore()
	store.SetBulkError(domain.ErrStoreUnavailable)
	source := &queueSource{batches: []domain.FailedBatch{
		{Actions: []domain.BulkAction{{Index: "i", DocType: "t", ID: "a", Source: map[string]any{}}}},
		{Actions: []domain.BulkAction{{Index: "i", DocType: "t", ID: "b", Source: map[string]any{}}}},
	}}

	n, err := NewReplayer(source, &directExecutor{provider: store}).Replay(context.Background())

	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.Equal(t, 0, n)
	assert.Len(t, source.batches, 2)
}

func TestReplayer_SkipsEmptyBatches(t *testing.T) {
	store := memory.NewDocumentStore()
	source := &queueSource{batches: []domain.FailedBatch{{Error: "empty"}}}

	n, err := NewReplayer(source, &directExecutor{provider: store}).Replay(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, store.BulkCalls())
}
