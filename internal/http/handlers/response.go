// Package handlers provides HTTP handler implementations for the public API.
//
// This file defines the standard response utilities shared by all endpoints.
// LNURL-pay has its own wire-level error convention (a JSON body with
// status "ERROR" and a reason), so LNURL endpoints use lnurlFail() while
// everything else uses the structured ErrorResponse envelope via fail().
//
// Example error response (non-LNURL endpoints):
//
//	HTTP/1.1 404 Not Found
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "not_found",
//	  "message": "unknown user"
//	}
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/benthecarman/hermes/internal/http/middleware"
)

// ErrorResponse is the standard error envelope returned by non-LNURL
// endpoints.
type ErrorResponse struct {
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty"`
	// Stable, machine-readable code (see errors.go constants)
	Code string `json:"code"`
	// Human-readable message (safe to show to users)
	Message string `json:"message"`
}

// LnurlError is the wallet-facing error shape defined by the LNURL
// specification. Wallets read Reason, not the HTTP status.
type LnurlError struct {
	Status string `json:"status"` // always "ERROR"
	Reason string `json:"reason"`
}

// fail aborts the request with a structured error and logs server-side errors.
func fail(c *gin.Context, status int, code, msg string) {
	reqID := c.Writer.Header().Get("X-Request-ID")

	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}

	c.AbortWithStatusJSON(status, ErrorResponse{
		RequestID: reqID,
		Code:      code,
		Message:   msg,
	})
}

// Fail is the exported variant of fail(); the router uses it for the
// fallback NoRoute handler.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// lnurlFail writes the wallet-facing LNURL error body. Server-side causes are logged
// the same way fail() logs them so both surfaces show up in observability.
func lnurlFail(c *gin.Context, status int, reason string) {
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("reason", reason).
			Msg("lnurl error")
	}
	c.AbortWithStatusJSON(status, LnurlError{Status: "ERROR", Reason: reason})
}

// ok writes a success JSON response.
func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}
