package health

import "errors"

var (
	// ErrNilCheck is returned when registering a nil check function.
	ErrNilCheck = errors.New("check cannot be nil")

	// ErrCheckAlreadyRegistered is returned when registering a check name twice.
	ErrCheckAlreadyRegistered = errors.New("check already registered")

	// ErrUnhealthy wraps individual check failures reported by CheckAll.
	ErrUnhealthy = errors.New("health check failed")
)
