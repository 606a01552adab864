package config

import "errors"

// Configuration validation errors returned by Config.Validate.
var (
	// ErrInvalidBackendURL is returned when the backend URL is not an absolute http(s) URL.
	ErrInvalidBackendURL = errors.New("invalid backend URL: must be an absolute http(s) URL")

	// ErrInvalidTimeout is returned when the backend timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidRequestTTL is returned when the message TTL is not positive.
	ErrInvalidRequestTTL = errors.New("invalid request TTL: must be positive")

	// ErrInvalidDebounce is returned for a negative debounce.
	ErrInvalidDebounce = errors.New("invalid debounce: must be non-negative")

	// ErrInvalidScanLimit is returned when the batch concurrency is not positive.
	ErrInvalidScanLimit = errors.New("invalid scan limit: must be positive")

	// ErrInvalidMaxBodySize is returned for a negative size limit.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")

	// ErrInvalidSelector is returned when the result selector does not compile.
	ErrInvalidSelector = errors.New("invalid result selector")

	// ErrUnknownStore is returned for an unsupported store driver.
	ErrUnknownStore = errors.New("unknown store driver: use sqlite or memory")

	// ErrUnknownFormat is returned for an unsupported output format.
	ErrUnknownFormat = errors.New("unknown format")
)
