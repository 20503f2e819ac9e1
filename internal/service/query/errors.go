package query

import "errors"

var (
	ErrSlotNotFound        = errors.New("slot not found")
	ErrGiftNotFound        = errors.New("gift not found")
	ErrReservationNotFound = errors.New("reservation not found")
)
