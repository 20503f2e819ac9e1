package store

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
	ErrTxRetryExhausted = errors.New("transaction retries exhausted")
)
