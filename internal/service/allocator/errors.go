package allocator

import "errors"

var (
	ErrBadRequest      = errors.New("reservation request missing gift or slot id")
	ErrRequestConflict = errors.New("reservation id already used for a different request")
	ErrRateLimited     = errors.New("rate limited")
)
