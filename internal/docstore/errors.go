package docstore

import "errors"

// Sentinel errors returned by store implementations. Callers should use
// [errors.Is] to match against these values.
var (
	// ErrWriteConflict is returned by RunTransaction when a document read
	// inside the transaction was modified by a concurrent writer before
	// commit. The transaction wrote nothing; re-executing it against fresh
	// state may succeed.
	ErrWriteConflict = errors.New("document write conflict")

	// ErrBatchTooLarge is returned by BatchWrite when the operation set
	// exceeds MaxBatchOps.
	ErrBatchTooLarge = errors.New("batch exceeds operation cap")

	// ErrRuleViolation is returned when a write rule rejects a buffered
	// write at commit time. The transaction wrote nothing. Rule violations
	// are not retried: the same input produces the same rejection.
	ErrRuleViolation = errors.New("write rule violation")

	// ErrStoreClosed is returned by operations on a closed store.
	ErrStoreClosed = errors.New("document store is closed")
)
