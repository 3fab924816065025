package store

import "errors"

var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateID indicates an append with an id that is already present.
	// Appends tolerate duplicates, so callers rarely see this directly.
	ErrDuplicateID = errors.New("duplicate id")

	// ErrSessionComplete indicates a winddown session has no questions left.
	ErrSessionComplete = errors.New("winddown session complete")
)
