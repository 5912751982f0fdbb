package services

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/custodia-labs/crashstore/internal/core/domain"
	"github.com/custodia-labs/crashstore/internal/core/ports/driven"
	"github.com/custodia-labs/crashstore/internal/core/ports/driving"
	"github.com/custodia-labs/crashstore/internal/logger"
)

// Ensure CorrelationsStore implements the interface.
var _ driving.CorrelationsStorage = (*CorrelationsStore)(nil)

// CorrelationsStore turns correlation summaries into one aggregate document
// per (platform, signature) and indexes them into monthly indices.
// Documents get store-assigned ids, so storing the same summary twice
// stores it twice.
type CorrelationsStore struct {
	provider  driven.ConnectionProvider
	indices   *IndexManager
	docType   string
	platforms map[string]struct{}

	// platformsOf selects the per-platform counters of a summary.
	platformsOf func(summary map[string]any) map[string]any
}

// NewCoreCounts stores "core counts" summaries, whose platforms sit at the
// top level of the summary next to "notes".
func NewCoreCounts(
	provider driven.ConnectionProvider,
	indices *IndexManager,
	docType string,
	recognizedPlatforms []string,
) *CorrelationsStore {
	return newCorrelationsStore(provider, indices, docType, recognizedPlatforms,
		func(summary map[string]any) map[string]any { return summary })
}

// NewInterestingModules stores "interesting modules" summaries, whose
// platforms sit under "os_counters".
func NewInterestingModules(
	provider driven.ConnectionProvider,
	indices *IndexManager,
	docType string,
	recognizedPlatforms []string,
) *CorrelationsStore {
	return newCorrelationsStore(provider, indices, docType, recognizedPlatforms,
		func(summary map[string]any) map[string]any {
			counters, _ := summary["os_counters"].(map[string]any)
			return counters
		})
}

func newCorrelationsStore(
	provider driven.ConnectionProvider,
	indices *IndexManager,
	docType string,
	recognizedPlatforms []string,
	platformsOf func(map[string]any) map[string]any,
) *CorrelationsStore {
	platforms := make(map[string]struct{}, len(recognizedPlatforms))
	for _, p := range recognizedPlatforms {
		platforms[p] = struct{}{}
	}
	return &CorrelationsStore{
		provider:    provider,
		indices:     indices,
		docType:     docType,
		platforms:   platforms,
		platformsOf: platformsOf,
	}
}

// Store writes the aggregate documents of summary.
// Unrecognised platforms and malformed entries are skipped.
func (c *CorrelationsStore) Store(ctx context.Context, summary map[string]any, req domain.AggregateRequest) error {
	docs, err := c.Documents(summary, req)
	if err != nil {
		return err
	}

	index, err := c.indices.EnsureFor(ctx, req.Date)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return nil
	}

	conn, err := c.provider.Connect(ctx)
	if err != nil {
		return fmt.Errorf("connecting to store: %w", err)
	}
	defer conn.Close()

	for i := range docs {
		if _, err := conn.Index(ctx, index, c.docType, "", &docs[i]); err != nil {
			return fmt.Errorf("indexing correlation %s/%s: %w", docs[i].Platform, docs[i].Signature, err)
		}
	}
	logger.Debug("stored %d correlations for %s into %s", len(docs), req.Key, index)
	return nil
}

// Documents builds the aggregate documents of summary without storing them.
// Platforms and signatures are visited in sorted order.
func (c *CorrelationsStore) Documents(summary map[string]any, req domain.AggregateRequest) ([]domain.AggregateDocument, error) {
	product, version, err := req.ProductVersion()
	if err != nil {
		return nil, err
	}
	notes := summary["notes"]

	platforms := c.platformsOf(summary)
	names := make([]string, 0, len(platforms))
	for name := range platforms {
		names = append(names, name)
	}
	slices.Sort(names)

	var docs []domain.AggregateDocument
	for _, platform := range names {
		if platform == "" {
			continue
		}
		if _, ok := c.platforms[platform]; !ok {
			continue
		}
		counters, ok := platforms[platform].(map[string]any)
		if !ok {
			logger.Warn("skipping malformed counters for platform %q", platform)
			continue
		}
		count, ok := toInt64(counters["count"])
		if !ok {
			logger.Warn("skipping platform %q without a count", platform)
			continue
		}
		signatures, _ := counters["signatures"].(map[string]any)
		if len(signatures) == 0 {
			continue
		}

		sigs := make([]string, 0, len(signatures))
		for sig := range signatures {
			sigs = append(sigs, sig)
		}
		slices.Sort(sigs)

		for _, sig := range sigs {
			payload, ok := toPayload(signatures[sig])
			if !ok {
				logger.Warn("skipping malformed payload for %q on %q", sig, platform)
				continue
			}
			docs = append(docs, domain.AggregateDocument{
				Platform:  platform,
				Product:   product,
				Version:   version,
				Count:     count,
				Signature: sig,
				Payload:   payload,
				Date:      req.Date,
				Key:       req.Name,
				Notes:     notes,
			})
		}
	}
	return docs, nil
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	default:
		return 0, false
	}
}

func toPayload(v any) (map[string]any, bool) {
	switch p := v.(type) {
	case nil:
		return map[string]any{}, true
	case map[string]any:
		return p, true
	default:
		return nil, false
	}
}
