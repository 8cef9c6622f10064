package types

import "errors"

// Domain errors for type validation
var (
	// Fragment errors
	ErrEmptyFragmentID   = errors.New("fragment id cannot be empty")
	ErrEmptyVector       = errors.New("fragment vector cannot be empty")
	ErrDimensionMismatch = errors.New("vector dimension does not match store dimension")

	// Search result errors
	ErrInvalidRank  = errors.New("rank must be >= 1")
	ErrInvalidScore = errors.New("score must be a finite number")
)
