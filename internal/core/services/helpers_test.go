package services

import (
	"context"
	"sync"
	"time"

	"github.com/custodia-labs/crashstore/internal/core/domain"
	"github.com/custodia-labs/crashstore/internal/core/ports/driven"
)

// directExecutor runs each operation once on a fresh connection.
type directExecutor struct {
	provider driven.ConnectionProvider
	mu       sync.Mutex
	calls    int
}

func (e *directExecutor) Execute(ctx context.Context, op driven.Operation) error {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()

	conn, err := e.provider.Connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	return op(ctx, conn)
}

// countingCreator counts CreateIndex calls per name.
type countingCreator struct {
	mu    sync.Mutex
	calls map[string]int
	err   error
	delay time.Duration
}

func newCountingCreator() *countingCreator {
	return &countingCreator{calls: make(map[string]int)}
}

func (c *countingCreator) CreateIndex(_ context.Context, name string, _ domain.IndexSettings) error {
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[name]++
	return c.err
}

func (c *countingCreator) count(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[name]
}

func testCrash(id, product, version, dateProcessed string) *domain.CrashDocument {
	return domain.NewCrashDocument(id,
		map[string]any{"ProductName": product, "Version": version},
		map[string]any{
			"uuid":           id,
			"product":        product,
			"version":        version,
			"date_processed": dateProcessed,
			"json_dump":      map[string]any{"threads": []any{"t0"}},
		},
	)
}
