// Package storage holds what the overlay storage backends share.
package storage

import "errors"

// ErrNotFound is returned when the requested object does not exist.
var ErrNotFound = errors.New("object not found")
