package driven

import "context"

// Operation is a unit of work run against a store connection.
type Operation func(ctx context.Context, conn Connection) error

// TransactionExecutor runs operations with a connection it acquires and
// releases itself. It owns the retry policy for transient store errors and
// only returns errors it gave up on.
type TransactionExecutor interface {
	Execute(ctx context.Context, op Operation) error
}
