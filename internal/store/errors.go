package store

import "errors"

var (
	// ErrNotFound is returned when a fact or relationship does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateID is returned when a fact id is already taken.
	ErrDuplicateID = errors.New("fact id already exists")
	// ErrDanglingEndpoint is returned when a relationship references a
	// missing fact.
	ErrDanglingEndpoint = errors.New("relationship endpoint does not exist")
	// ErrManualEdge is returned when a detected write targets a pair that
	// has been manually asserted. Callers treat this as a skip.
	ErrManualEdge = errors.New("pair is manually asserted")
	// ErrClosed is returned on any call after Close.
	ErrClosed = errors.New("store is closed")
)
