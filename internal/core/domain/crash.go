package domain

import "time"

// Field names inside a processed crash that the storage layer relies on.
const (
	FieldDateProcessed = "date_processed"
	FieldProduct       = "product"
	FieldVersion       = "version"
)

// DatetimeFields lists the processed-crash fields holding timestamps.
// They arrive as text and are stored as structured dates.
var DatetimeFields = []string{
	"submitted_timestamp",
	FieldDateProcessed,
	"client_crash_date",
	"started_datetime",
	"startedDateTime",
	"completed_datetime",
	"completeddatetime",
}

// CrashDocument is the unit persisted for every crash.
// Ownership passes to the storage layer once handed to a write path.
type CrashDocument struct {
	// CrashID is the stable unique identifier, used as the document id.
	CrashID string `json:"crash_id"`

	// RawCrash is the submission as received by the collector.
	RawCrash map[string]any `json:"raw_crash"`

	// ProcessedCrash holds the fields derived by the processor.
	ProcessedCrash map[string]any `json:"processed_crash"`
}

// NewCrashDocument assembles a document from its parts.
// Nil mappings are replaced with empty ones.
func NewCrashDocument(crashID string, raw, processed map[string]any) *CrashDocument {
	if raw == nil {
		raw = make(map[string]any)
	}
	if processed == nil {
		processed = make(map[string]any)
	}
	return &CrashDocument{
		CrashID:        crashID,
		RawCrash:       raw,
		ProcessedCrash: processed,
	}
}

// DateProcessed returns the processing timestamp if it has been normalised.
func (d *CrashDocument) DateProcessed() (time.Time, bool) {
	if d == nil || d.ProcessedCrash == nil {
		return time.Time{}, false
	}
	t, ok := d.ProcessedCrash[FieldDateProcessed].(time.Time)
	return t, ok
}
