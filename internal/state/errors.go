package state

import "errors"

// ErrNoValue is returned by a store read when the external point exists
// but has never carried a value.
var ErrNoValue = errors.New("state: no value")
