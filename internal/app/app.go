// Package app wires the storage layer's services to their adapters from a
// configuration.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/custodia-labs/crashstore/internal/adapters/driven/cache/rediscache"
	"github.com/custodia-labs/crashstore/internal/adapters/driven/config/file"
	"github.com/custodia-labs/crashstore/internal/adapters/driven/deadletter"
	"github.com/custodia-labs/crashstore/internal/adapters/driven/executor"
	"github.com/custodia-labs/crashstore/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/crashstore/internal/core/domain"
	"github.com/custodia-labs/crashstore/internal/core/ports/driven"
	"github.com/custodia-labs/crashstore/internal/core/ports/driving"
	"github.com/custodia-labs/crashstore/internal/core/services"
	"github.com/custodia-labs/crashstore/internal/logger"
)

// App holds the services built from one configuration.
type App struct {
	Config domain.Config

	Storage            driving.CrashStorage
	Source             driving.CrashSource
	CoreCounts         driving.CorrelationsStorage
	InterestingModules driving.CorrelationsStorage

	// Replayer is nil unless a dead-letter broker is configured.
	Replayer driving.DeadLetterReplayer

	store        *sqlite.Store
	crashIndices *services.IndexManager
	sink         driven.FailureSink
	closers      []func() error
}

// New opens the store and builds the services. Close releases everything
// New opened.
func New(ctx context.Context, cfg domain.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &App{Config: cfg}
	if err := a.build(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg := a.Config

	store, err := sqlite.NewStore(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	a.store = store
	a.closers = append(a.closers, store.Close)
	logger.Debug("store at %s", store.Path())

	settings := file.NewSettingsStore(cfg.Indices)
	crashSettings, err := settings.Load(file.CrashSettings)
	if err != nil {
		return err
	}
	correlationsSettings, err := settings.Load(file.CorrelationsSettings)
	if err != nil {
		return err
	}

	// One cache for both families: their names never collide.
	var cache driven.IndexCache
	if cfg.IndexCache.RedisAddr != "" {
		c := rediscache.New(cfg.IndexCache.RedisAddr, cfg.IndexCache.RedisKey)
		a.closers = append(a.closers, c.Close)
		cache = c
		logger.Debug("sharing index cache through redis at %s", cfg.IndexCache.RedisAddr)
	}

	a.crashIndices = services.NewIndexManager(cfg.Indices.CrashTemplate, crashSettings, store, cache)
	correlationsIndices := services.NewIndexManager(cfg.Indices.CorrelationsTemplate, correlationsSettings, store, cache)

	exec := executor.NewBackoffExecutor(store, cfg.Transaction)
	if cfg.Redaction.Enabled {
		a.Storage = services.NewRedactedCrashStorage(exec, a.crashIndices, cfg.Indices.CrashDocType,
			domain.RedactionPolicy{ForbiddenKeys: cfg.Redaction.ForbiddenKeys})
	} else {
		a.Storage = services.NewCrashStorage(exec, a.crashIndices, cfg.Indices.CrashDocType)
	}

	a.Source = services.NewCrashSource(store, a.crashIndices, cfg.Indices.CrashDocType, cfg.Scan)
	a.CoreCounts = services.NewCoreCounts(store, correlationsIndices,
		cfg.Indices.CorrelationsDocType, cfg.Correlations.RecognizedPlatforms)
	a.InterestingModules = services.NewInterestingModules(store, correlationsIndices,
		cfg.Indices.CorrelationsDocType, cfg.Correlations.RecognizedPlatforms)

	if cfg.DeadLetter.AMQPURL != "" {
		sink := deadletter.NewSink(cfg.DeadLetter)
		if err := sink.Connect(ctx); err != nil {
			return fmt.Errorf("connecting dead-letter sink: %w", err)
		}
		a.closers = append(a.closers, sink.Close)
		a.sink = sink
		a.Replayer = services.NewReplayer(sink, exec)
	}

	return nil
}

// NewBulk starts a bulk crash storage on the app's store. The caller must
// Close it before closing the app.
func (a *App) NewBulk(ctx context.Context) (driving.BulkCrashStorage, error) {
	opts := services.BulkOptions{
		ItemsPerBulkLoad: a.Config.Bulk.ItemsPerBulkLoad,
		MaximumQueueSize: a.Config.Bulk.MaximumQueueSize,
		FlushInterval:    a.Config.Bulk.FlushInterval.Std(),
		FailureSink:      a.sink,
	}
	if a.Config.Redaction.Enabled {
		opts.Redaction = &domain.RedactionPolicy{ForbiddenKeys: a.Config.Redaction.ForbiddenKeys}
	}
	return services.NewBulkCrashStorage(ctx, a.store, a.crashIndices, a.Config.Indices.CrashDocType, opts)
}

// Indices lists the indices created in the store.
func (a *App) Indices(ctx context.Context) ([]string, error) {
	return a.store.Indices(ctx)
}

// Close releases the adapters in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
