package tsdb

import "errors"

// Sentinel errors for time-series database operations.
var (
	// ErrNotConnected indicates the client is not connected to the TSDB.
	ErrNotConnected = errors.New("tsdb: not connected")

	// ErrConnectionFailed indicates the initial connection attempt failed.
	ErrConnectionFailed = errors.New("tsdb: connection failed")

	// ErrWriteFailed indicates a batched write was rejected or could not be sent.
	ErrWriteFailed = errors.New("tsdb: write failed")

	// ErrQueryFailed indicates a range query failed or returned an unusable body.
	ErrQueryFailed = errors.New("tsdb: query failed")

	// ErrDisabled indicates TSDB integration is disabled in config.
	ErrDisabled = errors.New("tsdb: disabled in configuration")
)
