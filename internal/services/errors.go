// Package services implements the settlement pipeline behind the LNURL-pay
// callback: invoice issuance and persistence, per-invoice settlement
// watchers, and minted-note delivery. This file centralizes common
// service-level error values so that they can be consistently returned by
// service methods and checked by callers.
//
// These errors are intended for internal use by the service layer and
// translation into user-facing messages or HTTP status codes should be
// performed at the handler layer.
package services

import "errors"

var (
	// ErrAmountTooLow is returned when a callback requests less than the
	// configured minimum payable amount.
	ErrAmountTooLow = errors.New("amount below minimum")

	// ErrUnknownUser indicates that no recipient is registered under the
	// requested username.
	ErrUnknownUser = errors.New("unknown user")

	// ErrInvoiceNotFound indicates that the requested operation id has no
	// ledger row.
	ErrInvoiceNotFound = errors.New("invoice not found")

	// ErrTooManyWatchers is returned when the watcher registry is at
	// capacity and cannot track another invoice.
	ErrTooManyWatchers = errors.New("too many live invoice watchers")

	// ErrAlreadyWatched is returned when a watcher already owns the
	// invoice's event stream. Exactly one consumer per invoice.
	ErrAlreadyWatched = errors.New("invoice already has a live watcher")

	// ErrDeliveryFailed is returned when every configured transport
	// rejected a notes payload. The mint checkpoint keeps the notes
	// redeliverable.
	ErrDeliveryFailed = errors.New("note delivery failed on all transports")
)
