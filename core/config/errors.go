package config

import "errors"

var (
	// ErrNilConfig is returned when Load receives a nil config pointer.
	ErrNilConfig = errors.New("config pointer cannot be nil")

	// ErrParsingFailed is returned when environment variables cannot be
	// parsed into the config struct.
	ErrParsingFailed = errors.New("failed to parse environment variables")
)
