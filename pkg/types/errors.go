package types

// ============================================================================
// Engine Error Kinds
// Purpose: Cross-cutting error categories surfaced to submitters
// ============================================================================

import (
	"errors"
	"fmt"
)

// Predefined error kinds
var (
	// ErrDuplicate indicates the idempotency filter already contains the
	// command's transaction ID. The command was not applied again.
	ErrDuplicate = errors.New("ledger: duplicate transaction")

	// ErrWrongNode indicates the routing key belongs to a different node in
	// the cluster; the external router misdelivered the command.
	ErrWrongNode = errors.New("ledger: key routes to a different node")

	// ErrPartitionFailed indicates the owning partition hit a fatal WAL
	// error and no longer accepts commands.
	ErrPartitionFailed = errors.New("ledger: partition failed")

	// ErrEngineClosed indicates the engine is shutting down or stopped.
	ErrEngineClosed = errors.New("ledger: engine closed")

	// ErrRecovery indicates a partition could not rebuild its state from
	// snapshot and WAL; the partition must not serve traffic.
	ErrRecovery = errors.New("ledger: recovery failed")
)

// UnknownTypeError is returned when a WAL record carries a type-key with no
// registered decoder.
type UnknownTypeError struct {
	TypeKey string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("ledger: no decoder registered for type key %q", e.TypeKey)
}
