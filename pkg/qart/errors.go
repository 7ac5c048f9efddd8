package qart

import "errors"

// Common errors
var (
	ErrNotFound     = errors.New("artifact not found")
	ErrOutsideStore = errors.New("path is outside of the store")
)
