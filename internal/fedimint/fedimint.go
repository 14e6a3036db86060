// Package fedimint talks to the federation client daemon that holds the
// ecash wallet: it creates Lightning invoices, streams settlement updates
// for a receive operation, and spends (mints) notes out of the settled
// balance. The daemon is a black box behind a small HTTP/JSON surface; this
// package defines the contracts the rest of the pipeline consumes and a
// concrete client for them.
package fedimint

import (
	"context"
	"errors"
	"time"
)

// ErrUpstream wraps any network or protocol failure talking to the daemon.
// Callers branch on it to map failures to 5xx responses.
var ErrUpstream = errors.New("fedimint upstream error")

// Receive operation states reported by the settlement stream. Only claimed
// and canceled are terminal; everything else is ignored by consumers.
const (
	ReceiveCreated           = "created"
	ReceiveWaitingForPayment = "waiting-for-payment"
	ReceiveFunded            = "funded"
	ReceiveClaimed           = "claimed"
	ReceiveCanceled          = "canceled"
)

// ReceiveUpdate is one event from an invoice's payment-status stream.
// Reason is only populated for canceled updates.
type ReceiveUpdate struct {
	State  string `json:"state"`
	Reason string `json:"reason,omitempty"`
}

// Terminal reports whether no further updates can follow this one.
func (u ReceiveUpdate) Terminal() bool {
	return u.State == ReceiveClaimed || u.State == ReceiveCanceled
}

// Invoicer creates invoices and exposes their settlement streams.
//
// SubscribeReceive returns a single-consumer channel owned by exactly one
// watcher: the implementation closes it after a terminal update or when ctx
// is done.
type Invoicer interface {
	// CreateInvoice requests a new invoice for amountMsat and returns the
	// operation id correlating it to its status stream plus the encoded
	// invoice string.
	CreateInvoice(ctx context.Context, amountMsat int64, description string) (opID, bolt11 string, err error)

	// SubscribeReceive opens the payment-status stream for an operation.
	SubscribeReceive(ctx context.Context, opID string) (<-chan ReceiveUpdate, error)
}

// Minter converts settled balance into a portable bearer-token bundle.
type Minter interface {
	// SpendNotes mints notes worth amountMsat, valid for the given window,
	// and returns the mint operation id plus the serialized bundle.
	SpendNotes(ctx context.Context, amountMsat int64, validity time.Duration) (opID, notes string, err error)
}
