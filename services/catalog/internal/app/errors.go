package app

import "errors"

var (
	// ErrPermissionDenied is returned on role or ownership violations.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrNotFound is returned when a book does not exist or is not visible
	// to the caller.
	ErrNotFound = errors.New("book not found")

	// ErrCategoryNotFound is returned when an update names a category that
	// does not exist. Create has get-or-create semantics instead.
	ErrCategoryNotFound = errors.New("category not found")

	ErrRejectNoteRequired = errors.New("reject note required")
)
