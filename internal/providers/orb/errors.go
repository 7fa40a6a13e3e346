package orb

import "errors"

var (
	ErrUnauthorized  = errors.New("orb_unauthorized")
	ErrUnavailable   = errors.New("orb_unavailable")
	ErrNotFound      = errors.New("orb_not_found")
	ErrInvalidConfig = errors.New("orb_invalid_config")
)
