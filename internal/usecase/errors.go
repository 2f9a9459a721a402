package usecase

import "errors"

var (
	ErrInvalidInput    = errors.New("invalid parameters")
	ErrForbidden       = errors.New("access denied")
	ErrUpstreamFetch   = errors.New("error providing tile")
	ErrTileUnavailable = errors.New("tile unavailable")
)
