package admin

import "errors"

var (
	ErrInvalidSlot    = errors.New("invalid slot")
	ErrSlotExists     = errors.New("slot already exists")
	ErrSlotNotFound   = errors.New("slot not found")
	ErrInvalidArtist  = errors.New("invalid artist")
	ErrArtistNotFound = errors.New("artist not found")
)
