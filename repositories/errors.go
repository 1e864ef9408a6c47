package repositories

import "errors"

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateIdentity is returned when an insert hits the unique
	// constraint on subject_id or email. The synchronizer resolves this by
	// re-selecting the winning row.
	ErrDuplicateIdentity = errors.New("duplicate identity")

	// ErrSubjectConflict is returned when linking a subject onto a row that
	// already carries a different one. Re-linking is an explicit separate
	// flow, not part of sync.
	ErrSubjectConflict = errors.New("subject already linked")
)
