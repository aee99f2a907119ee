package trade

import "errors"

var (
	ErrPositionNotFound = errors.New("position not found")
	// ErrPositionNotOpen is returned for sells against CLOSED or FAILED positions.
	ErrPositionNotOpen = errors.New("position is not open")
	// ErrNothingHeld means the wallet no longer holds the token; reconciliation closes the position.
	ErrNothingHeld = errors.New("wallet holds none of the token")
	// ErrExecutionPending means an earlier swap for the same target is still unknown on chain.
	ErrExecutionPending = errors.New("previous execution still unresolved")
)
