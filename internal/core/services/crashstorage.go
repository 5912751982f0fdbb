package services

import (
	"context"
	"fmt"
	"time"

	"github.com/custodia-labs/crashstore/internal/core/domain"
	"github.com/custodia-labs/crashstore/internal/core/ports/driven"
	"github.com/custodia-labs/crashstore/internal/core/ports/driving"
	"github.com/custodia-labs/crashstore/internal/logger"
)

// Ensure CrashStorage implements the interface.
var _ driving.CrashStorage = (*CrashStorage)(nil)

// CrashStorage writes crash documents one at a time through the
// transaction executor. The crash id is the document id, so saving the
// same crash again overwrites it.
type CrashStorage struct {
	executor driven.TransactionExecutor
	indices  *IndexManager
	docType  string
	redactor *Redactor
}

// NewCrashStorage creates a synchronous crash storage.
func NewCrashStorage(
	executor driven.TransactionExecutor,
	indices *IndexManager,
	docType string,
) *CrashStorage {
	return &CrashStorage{
		executor: executor,
		indices:  indices,
		docType:  docType,
	}
}

// NewRedactedCrashStorage creates a crash storage that strips the policy's
// forbidden keys before saving.
//
// Redaction mutates the processed crash passed to Save. A caller sharing
// that mapping with other storages must save here last, or those storages
// lose the forbidden fields too.
func NewRedactedCrashStorage(
	executor driven.TransactionExecutor,
	indices *IndexManager,
	docType string,
	policy domain.RedactionPolicy,
) *CrashStorage {
	logger.Warn("redacting crash storage mutates the processed crash; " +
		"other storages sharing it will see the redacted version")
	s := NewCrashStorage(executor, indices, docType)
	s.redactor = NewRedactor(policy)
	return s
}

// SaveRawAndProcessed builds a crash document and saves it.
func (s *CrashStorage) SaveRawAndProcessed(
	ctx context.Context,
	raw, processed map[string]any,
	crashID string,
) error {
	return s.Save(ctx, domain.NewCrashDocument(crashID, raw, processed))
}

// Save normalises the crash, ensures its index exists and writes it.
// Failures the executor gave up on are logged and returned.
func (s *CrashStorage) Save(ctx context.Context, doc *domain.CrashDocument) error {
	date, err := prepareCrash(doc, s.redactor)
	if err != nil {
		return err
	}
	return s.executor.Execute(ctx, func(ctx context.Context, conn driven.Connection) error {
		return s.submit(ctx, conn, doc, date)
	})
}

// Close implements driving.CrashStorage. Nothing is buffered.
func (s *CrashStorage) Close() error {
	return nil
}

func (s *CrashStorage) submit(
	ctx context.Context,
	conn driven.Connection,
	doc *domain.CrashDocument,
	date time.Time,
) error {
	index, err := s.indices.EnsureFor(ctx, date)
	if err != nil {
		return err
	}

	if _, err := conn.Index(ctx, index, s.docType, doc.CrashID, doc); err != nil {
		logger.Critical("submission to store failed for %s (%v)", doc.CrashID, err)
		return fmt.Errorf("indexing crash %s: %w", doc.CrashID, err)
	}
	logger.Debug("indexed crash %s into %s", doc.CrashID, index)
	return nil
}

// prepareCrash validates and transforms doc in place and returns the
// processing date its index is derived from.
func prepareCrash(doc *domain.CrashDocument, redactor *Redactor) (time.Time, error) {
	if doc == nil || doc.CrashID == "" {
		return time.Time{}, fmt.Errorf("%w: crash document without crash_id", domain.ErrInvalidInput)
	}
	if doc.ProcessedCrash == nil {
		return time.Time{}, fmt.Errorf("%w: crash %s has no processed crash", domain.ErrInvalidInput, doc.CrashID)
	}

	Normalize(doc)
	if redactor != nil {
		redactor.RedactCrash(doc)
	}

	date, ok := doc.DateProcessed()
	if !ok {
		return time.Time{}, fmt.Errorf("%w: crash %s has no usable %s",
			domain.ErrInvalidInput, doc.CrashID, domain.FieldDateProcessed)
	}
	return date, nil
}
