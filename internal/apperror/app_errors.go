package apperror

import "errors"

var (
	ErrInvalidPosition  = errors.New("invalid card position")
	ErrMissingSession   = errors.New("session is missing")
	ErrManagerClosed    = errors.New("game manager is closed")
	ErrUnknownAction    = errors.New("unknown action")
	ErrMalformedRequest = errors.New("malformed request")
)
