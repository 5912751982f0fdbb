package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/custodia-labs/crashstore/internal/core/domain"
	"github.com/custodia-labs/crashstore/internal/core/ports/driven"
	"github.com/custodia-labs/crashstore/internal/core/ports/driving"
	"github.com/custodia-labs/crashstore/internal/logger"
)

// Ensure BulkCrashStorage implements the interface.
var _ driving.BulkCrashStorage = (*BulkCrashStorage)(nil)

// BulkOptions configures a BulkCrashStorage.
type BulkOptions struct {
	// ItemsPerBulkLoad is the number of crashes submitted per bulk call.
	ItemsPerBulkLoad int

	// MaximumQueueSize bounds the queue between producers and the consumer.
	MaximumQueueSize int

	// FlushInterval flushes a partial batch periodically. Zero disables it.
	FlushInterval time.Duration

	// Redaction, when set, strips forbidden keys before queueing.
	Redaction *domain.RedactionPolicy

	// FailureSink receives batches the store rejected. Optional.
	FailureSink driven.FailureSink
}

// BulkCrashStorage queues crash documents and writes them in bulk from a
// single consumer goroutine.
//
// Save blocks while the queue is full. Close queues the shutdown sentinel
// and waits until every document queued before it has been submitted.
// A failed bulk submission is logged, counted and handed to the failure
// sink; the documents in it are not retried and the producer that queued
// them is not told.
type BulkCrashStorage struct {
	indices       *IndexManager
	docType       string
	redactor      *Redactor
	sink          driven.FailureSink
	chunkSize     int
	flushInterval time.Duration

	tasks chan *domain.BulkTask
	done  chan struct{}

	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once

	enqueued      atomic.Int64
	submitted     atomic.Int64
	failed        atomic.Int64
	failedBatches atomic.Int64
}

// NewBulkCrashStorage connects to the store and starts the consumer.
// The connection is held by the consumer until Close.
func NewBulkCrashStorage(
	ctx context.Context,
	provider driven.ConnectionProvider,
	indices *IndexManager,
	docType string,
	opts BulkOptions,
) (*BulkCrashStorage, error) {
	if opts.ItemsPerBulkLoad <= 0 || opts.MaximumQueueSize <= 0 {
		return nil, fmt.Errorf("%w: bulk load size and queue size must be positive", domain.ErrInvalidInput)
	}

	conn, err := provider.Connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("connecting bulk consumer: %w", err)
	}

	s := &BulkCrashStorage{
		indices:       indices,
		docType:       docType,
		sink:          opts.FailureSink,
		chunkSize:     opts.ItemsPerBulkLoad,
		flushInterval: opts.FlushInterval,
		tasks:         make(chan *domain.BulkTask, opts.MaximumQueueSize),
		done:          make(chan struct{}),
	}
	if opts.Redaction != nil {
		logger.Warn("redacting bulk crash storage mutates the processed crash; " +
			"other storages sharing it will see the redacted version")
		s.redactor = NewRedactor(*opts.Redaction)
	}

	go s.consume(conn)
	return s, nil
}

// SaveRawAndProcessed builds a crash document and queues it.
func (s *BulkCrashStorage) SaveRawAndProcessed(
	ctx context.Context,
	raw, processed map[string]any,
	crashID string,
) error {
	return s.Save(ctx, domain.NewCrashDocument(crashID, raw, processed))
}

// Save normalises the crash, ensures its index exists and queues it.
// It blocks while the queue is full; if ctx ends first the crash is not
// queued and ctx's error is returned.
func (s *BulkCrashStorage) Save(ctx context.Context, doc *domain.CrashDocument) error {
	date, err := prepareCrash(doc, s.redactor)
	if err != nil {
		return err
	}
	index, err := s.indices.EnsureFor(ctx, date)
	if err != nil {
		return err
	}
	task := &domain.BulkTask{
		Index:   index,
		DocType: s.docType,
		ID:      doc.CrashID,
		Body:    doc,
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return domain.ErrStorageClosed
	}

	select {
	case s.tasks <- task:
		s.enqueued.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drains the queue, flushes the last partial batch and waits for the
// consumer to exit. Calling Close again only waits.
func (s *BulkCrashStorage) Close() error {
	s.closeOnce.Do(func() {
		// Taking the write lock waits for producers blocked on a full queue;
		// the consumer keeps draining so they get through.
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		s.tasks <- nil
	})
	<-s.done
	return nil
}

// Stats returns the current counters.
func (s *BulkCrashStorage) Stats() domain.BulkStats {
	return domain.BulkStats{
		Enqueued:      s.enqueued.Load(),
		Submitted:     s.submitted.Load(),
		Failed:        s.failed.Load(),
		FailedBatches: s.failedBatches.Load(),
	}
}

func (s *BulkCrashStorage) consume(conn driven.Connection) {
	defer close(s.done)
	defer conn.Close()

	var tick <-chan time.Time
	if s.flushInterval > 0 {
		ticker := time.NewTicker(s.flushInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	batch := make([]domain.BulkAction, 0, s.chunkSize)
	for {
		select {
		case task := <-s.tasks:
			if task == nil {
				s.flush(conn, batch)
				logger.Debug("bulk consumer stopped")
				return
			}
			batch = append(batch, task.Action())
			if len(batch) >= s.chunkSize {
				s.flush(conn, batch)
				batch = make([]domain.BulkAction, 0, s.chunkSize)
			}
		case <-tick:
			if len(batch) > 0 {
				s.flush(conn, batch)
				batch = make([]domain.BulkAction, 0, s.chunkSize)
			}
		}
	}
}

func (s *BulkCrashStorage) flush(conn driven.Connection, batch []domain.BulkAction) {
	if len(batch) == 0 {
		return
	}
	n := int64(len(batch))
	ctx := context.Background()

	err := submitBulk(ctx, conn, batch)
	if err == nil {
		s.submitted.Add(n)
		logger.Debug("bulk submitted %d crashes", n)
		return
	}

	s.failed.Add(n)
	s.failedBatches.Add(1)
	logger.Critical("bulk submission of %d crashes failed (%v)", n, err)

	if s.sink == nil {
		return
	}
	failed := domain.FailedBatch{Actions: batch, Error: err.Error()}
	if err := s.sink.BatchFailed(ctx, failed); err != nil {
		logger.Error("dead-lettering failed batch: %v", err)
	}
}

// submitBulk turns a panicking store call into an error so that the
// consumer keeps running.
func submitBulk(ctx context.Context, conn driven.Connection, batch []domain.BulkAction) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("bulk submit panicked: %v", r)
		}
	}()
	return conn.Bulk(ctx, batch)
}
