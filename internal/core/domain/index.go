package domain

import "time"

// IndexDescriptor names a time-partitioned index.
type IndexDescriptor struct {
	// Name is the template applied to Partition.
	Name string

	// Partition is the time the name was derived from.
	Partition time.Time
}

// IndexSettings is the settings/mappings document handed to the
// index-creation service. Its shape belongs to the store.
type IndexSettings map[string]any
