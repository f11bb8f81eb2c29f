package session

import "errors"

var (
	// ErrDisabled is returned by Login when no secret is configured.
	ErrDisabled = errors.New("session: installer secret not configured")

	// ErrInvalidSecret is returned by Login on a mismatch.
	ErrInvalidSecret = errors.New("session: invalid secret")

	// ErrInvalidHash is returned when a secret hash cannot be parsed.
	ErrInvalidHash = errors.New("session: invalid secret hash")
)
