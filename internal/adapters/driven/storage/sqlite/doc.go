// Package sqlite provides a SQLite-backed document store.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO, enabling easy cross-compilation. It implements the driven store ports:
//
//   - ConnectionProvider: sessions that index, bulk-load and scroll documents
//   - IndexCreator: idempotent index creation
//
// # Schema
//
// Indices are rows of the indices table. Documents live in a single documents
// table keyed by (index_name, id) and carry their source as JSON, which the
// scroll filters query with SQLite's JSON functions. The schema is managed
// through versioned migrations stored in the migrations/ directory.
//
// # Data Location
//
// By default, the database is stored at ~/.crashstore/data/crashstore.db
//
// # Thread Safety
//
// All operations are thread-safe. The store uses database-level locking provided
// by SQLite in WAL mode. Lock contention surfaces as domain.ErrStoreUnavailable.
package sqlite
