// Package board defines the discussion board's domain model: posts, comments,
// categories, the typed error taxonomy, and the Store contract that both
// backing store variants implement.
//
// # Errors
//
// Every store-facing failure is a *Error whose Kind is one of ErrValidation,
// ErrNotFound, ErrWrite or ErrLoad:
//
//	if errors.Is(err, board.ErrNotFound) { ... }
//
// The concrete cause (a transport failure, an HTTP status, a file error)
// stays reachable through errors.As.
package board
