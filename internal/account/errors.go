package account

import "errors"

// Domain errors for the account package.
var (
	// ErrAccountNotFound is returned when an account ID or link code does not exist.
	ErrAccountNotFound = errors.New("account: not found")

	// ErrAccountExists is returned when creating an account whose ID already exists.
	ErrAccountExists = errors.New("account: already exists")

	// ErrIdentityNotFound is returned when no linked identity matches the lookup.
	ErrIdentityNotFound = errors.New("account: linked identity not found")

	// ErrIdentityExists is returned when creating an identity for an
	// external user id that is already linked.
	ErrIdentityExists = errors.New("account: linked identity already exists")

	// ErrTokenInvalid is returned when a bearer token is empty or cannot
	// be resolved to a linked identity.
	ErrTokenInvalid = errors.New("account: token invalid")
)
