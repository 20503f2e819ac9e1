package lifecycle

import "errors"

var (
	ErrMissingGiftID   = errors.New("gift id is required")
	ErrGiftExists      = errors.New("gift already exists")
	ErrGiftNotFound    = errors.New("gift not found")
	ErrInvalidStatus   = errors.New("invalid gift status")
	ErrInvalidAppState = errors.New("invalid app state")
)
