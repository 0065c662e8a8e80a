// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across client layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates the backend rejected the credentials (HTTP 401).
	ErrUnauthorized = errors.New("unauthorized")

	// ErrSessionExpired indicates the token refresh failed and the session was cleared.
	ErrSessionExpired = errors.New("session expired (login required)")

	// ErrForbidden indicates the session lacks a permission required for the operation.
	ErrForbidden = errors.New("forbidden")

	// ErrMFARequired indicates login succeeded partially and a second factor is pending.
	ErrMFARequired = errors.New("mfa required")

	// ErrValidation indicates client-side validation rejected the input.
	ErrValidation = errors.New("validation failed")

	// ErrBusy indicates a conflicting operation is already in flight.
	ErrBusy = errors.New("operation in progress")

	// ErrNotOnReview indicates submission was attempted before reaching the review step.
	ErrNotOnReview = errors.New("submit is only available from the review step")

	// ErrStorage indicates a storage backend failure.
	ErrStorage = errors.New("storage failure")

	// ErrRateLimited indicates too many failed logins from the same origin.
	ErrRateLimited = errors.New("rate limited")
)
