package store

import "errors"

// Error Handling Guidelines:
// - Services/Stores: Use fmt.Errorf("context: %w", err) for wrapping errors
// - Handlers: Use apperrors.* functions for HTTP-appropriate errors

// Predefined errors for the store layer.
var (
	// ErrNotFound indicates that a requested document was not found.
	ErrNotFound = errors.New("document not found")

	// ErrConflict indicates a conflict, e.g., a duplicate document id.
	ErrConflict = errors.New("conflict")
)
