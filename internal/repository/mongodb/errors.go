// Package mongodb holds the MongoDB-backed repositories for listings, offers, messages,
// notifications and wishlists.
package mongodb

import (
	"errors"
)

var (
	// ErrDuplicate is returned when a unique index other than _id rejects a write.
	ErrDuplicate = errors.New("duplicate document")
	// ErrVersionConflict is returned when an optimistic update finds the document changed underneath it.
	ErrVersionConflict = errors.New("version conflict")
)
