package consts

import "time"

const (
	DBCtxTimeout     = 5 * time.Second
	DefaultListLimit = 10

	// MaxBorrowRetries bounds optimistic-version retries in stores without row locks.
	MaxBorrowRetries = 5
	RetryBaseDelay   = 10 * time.Millisecond
)
