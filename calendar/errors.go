package calendar

import "errors"

// Provider error sentinels. Implementations wrap these with %w so callers
// can branch with errors.Is while keeping the transport detail in the
// message.
var (
	ErrUnauthorized = errors.New("calendar: unauthorized")
	ErrRateLimited  = errors.New("calendar: rate limited")
	ErrNotFound     = errors.New("calendar: not found")
	ErrTransient    = errors.New("calendar: transient failure")
	ErrConflict     = errors.New("calendar: slot already taken")
)
