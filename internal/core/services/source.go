package services

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/custodia-labs/crashstore/internal/core/domain"
	"github.com/custodia-labs/crashstore/internal/core/ports/driven"
	"github.com/custodia-labs/crashstore/internal/core/ports/driving"
	"github.com/custodia-labs/crashstore/internal/logger"
)

// Ensure CrashSource implements the interface.
var _ driving.CrashSource = (*CrashSource)(nil)

const (
	fieldCrashID        = "crash_id"
	fieldProcessedCrash = "processed_crash"
)

// CrashSource streams crashes processed on a given day from the same
// time-partitioned indices the write paths fill.
type CrashSource struct {
	provider  driven.ConnectionProvider
	indices   *IndexManager
	docType   string
	pageSize  int
	keepAlive time.Duration
}

// NewCrashSource creates a crash source. indices must use the same
// template as the crash storage so reads and writes for a day agree.
func NewCrashSource(
	provider driven.ConnectionProvider,
	indices *IndexManager,
	docType string,
	scan domain.ScanConfig,
) *CrashSource {
	pageSize := scan.PageSize
	if pageSize <= 0 {
		pageSize = domain.DefaultConfig().Scan.PageSize
	}
	return &CrashSource{
		provider:  provider,
		indices:   indices,
		docType:   docType,
		pageSize:  pageSize,
		keepAlive: scan.KeepAlive.Std(),
	}
}

// NewCrashes yields the ids of the matching crashes. Only crash_id is
// fetched from the store. The scroll is opened on the first iteration and
// released when the sequence ends or the caller stops early.
func (s *CrashSource) NewCrashes(
	ctx context.Context,
	date time.Time,
	product string,
	versions []string,
) iter.Seq2[string, error] {
	req := s.request(date, product, versions, []string{fieldCrashID})
	return func(yield func(string, error) bool) {
		for hit, err := range s.scan(ctx, req) {
			if err != nil {
				yield("", err)
				return
			}
			id, _ := hit.Source[fieldCrashID].(string)
			if id == "" {
				id = hit.ID
			}
			if !yield(id, nil) {
				return
			}
		}
	}
}

// NewProcessedCrashes yields the processed crash of each matching document.
func (s *CrashSource) NewProcessedCrashes(
	ctx context.Context,
	date time.Time,
	product string,
	versions []string,
) iter.Seq2[map[string]any, error] {
	req := s.request(date, product, versions, []string{fieldProcessedCrash})
	return func(yield func(map[string]any, error) bool) {
		for hit, err := range s.scan(ctx, req) {
			if err != nil {
				yield(nil, err)
				return
			}
			processed, ok := hit.Source[fieldProcessedCrash].(map[string]any)
			if !ok {
				logger.Warn("document %s in %s has no processed crash", hit.ID, hit.Index)
				continue
			}
			if !yield(processed, nil) {
				return
			}
		}
	}
}

// request builds the search for crashes processed within [day, day+24h].
func (s *CrashSource) request(date time.Time, product string, versions []string, fields []string) domain.SearchRequest {
	y, m, d := date.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	return domain.SearchRequest{
		Index:   s.indices.NameFor(day),
		DocType: s.docType,
		Query: domain.Query{
			Ranges: []domain.RangeFilter{{
				Field: fieldProcessedCrash + "." + domain.FieldDateProcessed,
				GTE:   day,
				LTE:   day.AddDate(0, 0, 1),
			}},
			Terms: []domain.TermsFilter{
				{Field: fieldProcessedCrash + "." + domain.FieldProduct, Values: []string{product}},
				{Field: fieldProcessedCrash + "." + domain.FieldVersion, Values: versions},
			},
		},
		Fields:    fields,
		PageSize:  s.pageSize,
		KeepAlive: s.keepAlive,
	}
}

// scan pages through a scroll, holding the connection and the scroll only
// while the sequence is being iterated.
func (s *CrashSource) scan(ctx context.Context, req domain.SearchRequest) iter.Seq2[domain.Hit, error] {
	return func(yield func(domain.Hit, error) bool) {
		conn, err := s.provider.Connect(ctx)
		if err != nil {
			yield(domain.Hit{}, fmt.Errorf("connecting to store: %w", err))
			return
		}
		defer conn.Close()

		scroll, err := conn.Scroll(ctx, req)
		if err != nil {
			yield(domain.Hit{}, fmt.Errorf("opening scroll on %s: %w", req.Index, err))
			return
		}
		defer scroll.Close()

		logger.Debug("scrolling %s (page size %d)", req.Index, req.PageSize)
		for {
			page, err := scroll.Next(ctx)
			if err != nil {
				yield(domain.Hit{}, fmt.Errorf("reading scroll on %s: %w", req.Index, err))
				return
			}
			if len(page) == 0 {
				return
			}
			for _, hit := range page {
				if !yield(hit, nil) {
					return
				}
			}
		}
	}
}
