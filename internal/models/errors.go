package models

import "errors"

var (
	// ErrPermissionDenied means the device refused location access.
	ErrPermissionDenied = errors.New("location permission denied")

	// ErrNetwork covers transport failures, timeouts and non-2xx responses.
	ErrNetwork = errors.New("network error")

	// ErrMalformedResponse means a response had an unexpected shape or lacked key fields.
	ErrMalformedResponse = errors.New("malformed response")

	// ErrStaleResponse is informational: a newer request for the same slot superseded this one.
	ErrStaleResponse = errors.New("stale response discarded")

	// ErrInterestDisabled is returned by interest operations without a signed-in user.
	ErrInterestDisabled = errors.New("interest features disabled: no signed-in user")

	// ErrCityNotFound means a city id is not part of the city directory.
	ErrCityNotFound = errors.New("city not found")

	// ErrInvalidFilter means a filter value is not part of the filter catalog.
	ErrInvalidFilter = errors.New("invalid filter")
)
