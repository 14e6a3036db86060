// Package handlers defines HTTP-layer error codes used across the API.
//
// Codes are lowercase snake_case and stable: LNURL wallets and monitoring
// both branch on them, so renaming one is a breaking change. Handlers select
// the most specific matching code and pass it to fail() together with the
// HTTP status and a human-readable message.
package handlers

const (
	ErrCodeBadRequest  = "bad_request"
	ErrCodeNotFound    = "not_found"
	ErrCodeRateLimited = "too_many_requests"
	ErrCodeInternal    = "internal_error"

	// Domain-specific:
	ErrCodeAmountTooLow = "amount_too_low"
	ErrCodeUpstream     = "upstream_error"
	ErrCodeBusy         = "busy"
)
