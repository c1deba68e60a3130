// Copyright 2025 Certen Protocol
package storage

import "errors"

var (
	// ErrNotFound is returned when no value exists for a requested key.
	ErrNotFound = errors.New("storage: not found")
)
