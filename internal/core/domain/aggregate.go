package domain

import (
	"fmt"
	"strings"
	"time"
)

// AggregateDocument is one correlations counter for a (platform, signature)
// pair. Documents are never deduplicated; the store accumulates them.
type AggregateDocument struct {
	Platform  string         `json:"platform"`
	Product   string         `json:"product"`
	Version   string         `json:"version"`
	Count     int64          `json:"count"`
	Signature string         `json:"signature"`
	Payload   map[string]any `json:"payload"`
	Date      time.Time      `json:"date"`
	Key       string         `json:"key"`
	Notes     any            `json:"notes"`
}

// AggregateRequest identifies what a summary structure was computed for.
type AggregateRequest struct {
	// Key is "<product>_<version>", e.g. "Firefox_43.0.1".
	Key string

	// Date is the day the summary covers.
	Date time.Time

	// Name is the name of the correlation rule that produced the summary.
	Name string
}

// ProductVersion splits Key into product and version.
func (r AggregateRequest) ProductVersion() (string, string, error) {
	product, version, ok := strings.Cut(r.Key, "_")
	if !ok || product == "" || version == "" {
		return "", "", fmt.Errorf("%w: product/version key %q", ErrInvalidInput, r.Key)
	}
	return product, version, nil
}

// ParseDatePrefix parses a "YYYYMMDD" prefix such as the ones correlation
// rules are keyed by.
func ParseDatePrefix(prefix string) (time.Time, error) {
	if len(prefix) < 8 {
		return time.Time{}, fmt.Errorf("%w: date prefix %q", ErrInvalidInput, prefix)
	}
	t, err := time.Parse("20060102", prefix[:8])
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date prefix %q: %v", ErrInvalidInput, prefix, err)
	}
	return t, nil
}
