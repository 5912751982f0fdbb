// Package domain defines the core entities for crashstore.
//
// This package is the innermost layer of the hexagon. It has NO external
// dependencies and defines the fundamental types:
//
//   - CrashDocument: a crash submission plus its processed form
//   - BulkTask / BulkAction: a unit of work for the bulk write path
//   - SearchRequest / Hit: the narrow query contract against the store
//   - AggregateDocument: a per-signature/platform correlations counter
//   - Config: every tunable of the storage layer
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
