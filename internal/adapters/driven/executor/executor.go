// Package executor runs store operations on a fresh connection, optionally
// retrying transient failures with backoff.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/custodia-labs/crashstore/internal/core/domain"
	"github.com/custodia-labs/crashstore/internal/core/ports/driven"
	"github.com/custodia-labs/crashstore/internal/logger"
)

// Ensure executors implement the interface.
var (
	_ driven.TransactionExecutor = (*Executor)(nil)
	_ driven.TransactionExecutor = (*BackoffExecutor)(nil)
)

// Executor runs each operation exactly once.
type Executor struct {
	provider driven.ConnectionProvider
}

// New creates an executor that does not retry.
func New(provider driven.ConnectionProvider) *Executor {
	return &Executor{provider: provider}
}

// Execute connects, runs op and releases the connection.
func (e *Executor) Execute(ctx context.Context, op driven.Operation) error {
	return run(ctx, e.provider, op)
}

// BackoffExecutor retries operations failing with domain.ErrStoreUnavailable.
// Attempt n+1 waits delays[n]; once the delays are used up the last error
// is returned. Retries of all callers share one token bucket so an outage
// does not turn into a retry storm.
type BackoffExecutor struct {
	provider driven.ConnectionProvider
	delays   []time.Duration
	limiter  *rate.Limiter
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewBackoffExecutor creates a retrying executor from cfg.
// A non-positive RetriesPerSecond leaves retries unthrottled.
func NewBackoffExecutor(provider driven.ConnectionProvider, cfg domain.TransactionConfig) *BackoffExecutor {
	delays := make([]time.Duration, len(cfg.BackoffDelays))
	for i, d := range cfg.BackoffDelays {
		delays[i] = d.Std()
	}

	limit := rate.Inf
	if cfg.RetriesPerSecond > 0 {
		limit = rate.Limit(cfg.RetriesPerSecond)
	}
	burst := cfg.RetryBurst
	if burst <= 0 {
		burst = 1
	}

	return &BackoffExecutor{
		provider: provider,
		delays:   delays,
		limiter:  rate.NewLimiter(limit, burst),
		sleep:    sleepContext,
	}
}

// Execute runs op until it succeeds, fails permanently or runs out of
// retries.
func (e *BackoffExecutor) Execute(ctx context.Context, op driven.Operation) error {
	for attempt := 0; ; attempt++ {
		err := run(ctx, e.provider, op)
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrStoreUnavailable) || attempt >= len(e.delays) {
			return err
		}

		delay := e.delays[attempt]
		logger.Warn("store unavailable, retrying in %s (attempt %d/%d): %v",
			delay, attempt+1, len(e.delays), err)

		if err := e.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("waiting for retry budget: %w", err)
		}
		if err := e.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

func run(ctx context.Context, provider driven.ConnectionProvider, op driven.Operation) error {
	conn, err := provider.Connect(ctx)
	if err != nil {
		return fmt.Errorf("connecting to store: %w", err)
	}
	defer conn.Close()

	return op(ctx, conn)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
