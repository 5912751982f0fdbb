// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
//   - ConnectionProvider / Connection / Scroll: the document store
//   - IndexCreator: index creation with a settings document
//   - TransactionExecutor: runs store operations, owns retries
//   - IndexCache: names of indices known to exist
//
// # Optional Interfaces
//
// These can be nil - the storage layer degrades gracefully:
//
//   - FailureSink: dead letter for failed bulk batches. Without it failed
//     batches are only logged and counted.
//   - FailedBatchSource: the other end of the dead letter, used for replay.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter package
package driven
