package services

import (
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/custodia-labs/crashstore/internal/core/domain"
)

// timestampLayouts are tried in order when parsing textual timestamps.
// Fractional seconds are accepted after the seconds field by time.Parse.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Normalize rewrites the datetime fields of the processed crash from text
// (or epoch seconds) to UTC time.Time values, in place.
// Absent and unparseable fields are left untouched, so Normalize is idempotent.
func Normalize(doc *domain.CrashDocument) *domain.CrashDocument {
	if doc == nil || doc.ProcessedCrash == nil {
		return doc
	}
	for _, field := range domain.DatetimeFields {
		v, ok := doc.ProcessedCrash[field]
		if !ok {
			continue
		}
		if t, ok := ParseTimestamp(v); ok {
			doc.ProcessedCrash[field] = t
		}
	}
	return doc
}

// ParseTimestamp converts a stored timestamp representation to a UTC time.
func ParseTimestamp(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), true
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range timestampLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed.UTC(), true
			}
		}
		return time.Time{}, false
	case float64:
		return epoch(t), true
	case int:
		return time.Unix(int64(t), 0).UTC(), true
	case int64:
		return time.Unix(t, 0).UTC(), true
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return time.Time{}, false
		}
		return epoch(f), true
	default:
		return time.Time{}, false
	}
}

func epoch(seconds float64) time.Time {
	whole, frac := math.Modf(seconds)
	return time.Unix(int64(whole), int64(frac*1e9)).UTC()
}

// Redactor strips forbidden keys from processed crashes.
// Removed values cannot be recovered from the document afterwards.
type Redactor struct {
	paths [][]string
}

// NewRedactor creates a redactor for the policy's dotted key paths.
func NewRedactor(policy domain.RedactionPolicy) *Redactor {
	r := &Redactor{}
	for _, key := range policy.ForbiddenKeys {
		if key = strings.TrimSpace(key); key != "" {
			r.paths = append(r.paths, strings.Split(key, "."))
		}
	}
	return r
}

// Redact removes every forbidden key path present in m, in place.
func (r *Redactor) Redact(m map[string]any) map[string]any {
	for _, path := range r.paths {
		deletePath(m, path)
	}
	return m
}

// RedactCrash redacts the processed crash of doc.
func (r *Redactor) RedactCrash(doc *domain.CrashDocument) *domain.CrashDocument {
	if doc != nil && doc.ProcessedCrash != nil {
		r.Redact(doc.ProcessedCrash)
	}
	return doc
}

func deletePath(m map[string]any, path []string) {
	for _, part := range path[:len(path)-1] {
		next, ok := m[part].(map[string]any)
		if !ok {
			return
		}
		m = next
	}
	delete(m, path[len(path)-1])
}
