package app

import "errors"

var (
	// ErrInvalidCredentials covers unknown emails and wrong passwords alike
	// so sign-in failures are indistinguishable to callers.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrEmailTaken signals a signup or profile update with an email that
	// already belongs to another account.
	ErrEmailTaken = errors.New("email already in use")

	// ErrUnauthenticated signals a missing or expired session token.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrPermissionDenied signals a caller acting outside their role.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrNotFound signals a user that does not exist.
	ErrNotFound = errors.New("user not found")
)
