package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidOrder      = errors.New("invalid order parameters")
	ErrDecode            = errors.New("malformed relay payload")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrAlreadyResolved   = errors.New("market already resolved")
	ErrInvalidOutcome    = errors.New("invalid outcome value")
	ErrOracleUnavailable = errors.New("oracle unavailable")
	ErrAmbiguousOutcome  = errors.New("ambiguous outcome")
	ErrRateLimited       = errors.New("rate limited")
	ErrLockHeld          = errors.New("lock already held")
)
