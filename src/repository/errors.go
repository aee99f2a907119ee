package repository

import "errors"

var (
	// ErrConcurrentUpdate is returned when a conditional position update matched no row,
	// either because the version moved or the position is no longer OPEN.
	ErrConcurrentUpdate = errors.New("position was modified concurrently")
	// ErrOpenPositionExists is returned when a second OPEN position for a token is inserted.
	ErrOpenPositionExists = errors.New("an open position already exists for token")
)
