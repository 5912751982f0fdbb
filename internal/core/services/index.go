package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ncruces/go-strftime"
	"golang.org/x/sync/singleflight"

	"github.com/custodia-labs/crashstore/internal/core/domain"
	"github.com/custodia-labs/crashstore/internal/core/ports/driven"
	"github.com/custodia-labs/crashstore/internal/logger"
)

// IndexManager resolves time-partitioned index names and makes sure each
// index exists before it is written to.
type IndexManager struct {
	template string
	settings domain.IndexSettings
	creator  driven.IndexCreator
	cache    driven.IndexCache
	group    singleflight.Group
}

// NewIndexManager creates an index manager for one family of indices.
// A nil cache gives the manager a private in-process cache.
func NewIndexManager(
	template string,
	settings domain.IndexSettings,
	creator driven.IndexCreator,
	cache driven.IndexCache,
) *IndexManager {
	if cache == nil {
		cache = newLocalIndexCache()
	}
	return &IndexManager{
		template: template,
		settings: settings,
		creator:  creator,
		cache:    cache,
	}
}

// NameFor applies the index template to t.
// Templates without a strftime directive are returned verbatim.
func (m *IndexManager) NameFor(t time.Time) string {
	if !strings.Contains(m.template, "%") {
		return m.template
	}
	return strftime.Format(m.template, t)
}

// Descriptor returns the index descriptor for t.
func (m *IndexManager) Descriptor(t time.Time) domain.IndexDescriptor {
	return domain.IndexDescriptor{Name: m.NameFor(t), Partition: t}
}

// Ensure creates the index unless it is already known to exist.
// Concurrent calls for the same name share a single creation call.
// Creation failures are returned as is, they are not retried here.
func (m *IndexManager) Ensure(ctx context.Context, name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty index name", domain.ErrInvalidInput)
	}

	known, err := m.cache.Contains(ctx, name)
	if err != nil {
		return fmt.Errorf("checking index cache: %w", err)
	}
	if known {
		return nil
	}

	_, err, _ = m.group.Do(name, func() (any, error) {
		// Another caller may have finished creating it meanwhile.
		if known, err := m.cache.Contains(ctx, name); err == nil && known {
			return nil, nil
		}
		if err := m.creator.CreateIndex(ctx, name, m.settings); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", domain.ErrIndexCreation, name, err)
		}
		if err := m.cache.Add(ctx, name); err != nil {
			return nil, fmt.Errorf("caching index %s: %w", name, err)
		}
		logger.Info("created index %s", name)
		return nil, nil
	})
	return err
}

// EnsureFor resolves the index for t, ensures it exists and returns its name.
func (m *IndexManager) EnsureFor(ctx context.Context, t time.Time) (string, error) {
	name := m.NameFor(t)
	if err := m.Ensure(ctx, name); err != nil {
		return "", err
	}
	return name, nil
}

// localIndexCache is the default in-process driven.IndexCache.
type localIndexCache struct {
	mu    sync.RWMutex
	names map[string]struct{}
}

var _ driven.IndexCache = (*localIndexCache)(nil)

func newLocalIndexCache() *localIndexCache {
	return &localIndexCache{names: make(map[string]struct{})}
}

func (c *localIndexCache) Contains(_ context.Context, name string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.names[name]
	return ok, nil
}

func (c *localIndexCache) Add(_ context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.names[name] = struct{}{}
	return nil
}
