package billing

import "errors"

var (
	ErrValidation         = errors.New("validation failed")
	ErrSessionNotFound    = errors.New("no active session for this code")
	ErrSessionExpired     = errors.New("session has expired")
	ErrAllocationConflict = errors.New("table bill allocation conflict")
	ErrEmptyBill          = errors.New("no orders for this table bill")
	ErrInvalidTransition  = errors.New("invalid status transition")
)
