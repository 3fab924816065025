package engine

import "errors"

var (
	// ErrUnknownCard indicates the referenced message is missing or not a
	// card that supports the requested action.
	ErrUnknownCard = errors.New("unknown card")

	// ErrEmptyAnswer indicates a save was attempted with no text.
	ErrEmptyAnswer = errors.New("answer text is required")

	// ErrSaveRejected indicates the answer sink refused the save.
	ErrSaveRejected = errors.New("save rejected")

	// ErrEmptyInput indicates a send was attempted with no text.
	ErrEmptyInput = errors.New("message text is required")
)
