// Package services – Notifier
//
// This file implements the note minter and delivery dispatcher. Minting is a
// two-phase side effect: phase one (spending notes out of the settled
// balance) commits real value and cannot be rolled back, phase two (sending
// the notes) can fail independently. The NoteDelivery row is the durable
// checkpoint between the phases: it is written after a successful mint and
// before the first send, so a crashed or failed send is retried by resending
// the recorded notes instead of minting twice.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/benthecarman/hermes/internal/domain"
	"github.com/benthecarman/hermes/internal/fedimint"
)

// DeliveryRepo defines the persistence contract for the mint/send
// checkpoint rows.
type DeliveryRepo interface {
	// CreateDelivery records a successful mint before any send attempt.
	CreateDelivery(ctx context.Context, db *gorm.DB, invoiceID, mintOpID, recipient, notes string, amountMsat int64) (*domain.NoteDelivery, error)

	// GetDeliveryByInvoice fetches the checkpoint for an invoice.
	GetDeliveryByInvoice(ctx context.Context, db *gorm.DB, invoiceID string) (*domain.NoteDelivery, error)

	// MarkDelivered closes a checkpoint after a transport accepted it.
	MarkDelivered(ctx context.Context, db *gorm.DB, id string) error

	// MarkDeliveryFailed records a failed attempt, keeping the row open.
	MarkDeliveryFailed(ctx context.Context, db *gorm.DB, id, reason string) error

	// ListUndelivered returns open checkpoints, oldest first.
	ListUndelivered(ctx context.Context, db *gorm.DB) ([]domain.NoteDelivery, error)
}

// Messenger is one delivery transport. Implementations must be safe for
// concurrent use by many watchers.
type Messenger interface {
	// Name identifies the transport in logs and metrics.
	Name() string
	// Send delivers an opaque payload to the contact.
	Send(ctx context.Context, contact *domain.Contact, payload []byte) error
}

// DeliveryPayload is the JSON object sent over the messaging transport.
type DeliveryPayload struct {
	OperationID string `json:"operationId"`
	Amount      int64  `json:"amount"`
	Notes       string `json:"notes"`
}

// Notifier mints notes for settled invoices and dispatches them through a
// ranked list of transports.
type Notifier struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Deliveries is the checkpoint repository.
	Deliveries DeliveryRepo
	// Invoices resolves invoices during the redelivery sweep.
	Invoices InvoiceRepo
	// Contacts resolves recipients during the redelivery sweep.
	Contacts ContactRepo
	// Minter spends notes out of the settled balance.
	Minter fedimint.Minter
	// Transports are tried in order until one accepts the payload.
	Transports []Messenger
	// NoteValidity is the validity window passed to the mint.
	NoteValidity time.Duration
}

// NewNotifier constructs a Notifier with the standard 7-day note validity.
func NewNotifier(db *gorm.DB, deliveries DeliveryRepo, invoices InvoiceRepo, contacts ContactRepo, minter fedimint.Minter, transports []Messenger) *Notifier {
	return &Notifier{
		DB:           db,
		Deliveries:   deliveries,
		Invoices:     invoices,
		Contacts:     contacts,
		Minter:       minter,
		Transports:   transports,
		NoteValidity: 7 * 24 * time.Hour,
	}
}

// Notify mints notes worth the invoice amount and delivers them to the
// contact. Safe to call again for the same invoice: an existing checkpoint
// short-circuits the mint and either resends or returns immediately, so the
// recipient sees at most one minted bundle.
func (n *Notifier) Notify(ctx context.Context, inv *domain.Invoice, contact *domain.Contact) error {
	d, err := n.Deliveries.GetDeliveryByInvoice(ctx, n.DB, inv.ID)
	switch {
	case err == nil:
		if d.Status == domain.DeliveryDelivered {
			return nil
		}
		// Minted but never accepted by a transport: resend, don't re-mint.
		return n.send(ctx, d, contact)
	case errors.Is(err, gorm.ErrRecordNotFound):
		// First delivery attempt for this invoice.
	default:
		return fmt.Errorf("load delivery checkpoint for %s: %w", inv.ID, err)
	}

	mintOpID, notes, err := n.Minter.SpendNotes(ctx, inv.AmountMsat, n.NoteValidity)
	if err != nil {
		return fmt.Errorf("mint notes for %s: %w", inv.ID, err)
	}

	d, err = n.Deliveries.CreateDelivery(ctx, n.DB, inv.ID, mintOpID, contact.Pubkey, notes, inv.AmountMsat)
	if err != nil {
		// The mint succeeded but is now untracked. Log loudly with
		// everything needed to recover the notes by hand.
		log.Error().Err(err).
			Str("invoice_id", inv.ID).
			Str("mint_operation_id", mintOpID).
			Int64("amount_msat", inv.AmountMsat).
			Msg("minted notes could not be checkpointed")
		return fmt.Errorf("checkpoint mint %s: %w", mintOpID, err)
	}

	return n.send(ctx, d, contact)
}

// RedeliverPending resends every checkpoint stuck at minted. Run once at
// startup (after watcher resume) so notes minted before a crash still reach
// their recipient. Returns the number of rows successfully delivered.
func (n *Notifier) RedeliverPending(ctx context.Context) (int, error) {
	open, err := n.Deliveries.ListUndelivered(ctx, n.DB)
	if err != nil {
		return 0, err
	}

	delivered := 0
	for i := range open {
		d := &open[i]
		inv, err := n.Invoices.GetInvoice(ctx, n.DB, d.InvoiceID)
		if err != nil {
			log.Error().Err(err).Str("delivery_id", d.ID).Msg("cannot resolve invoice for redelivery")
			continue
		}
		contact, err := n.Contacts.GetContactByName(ctx, n.DB, inv.Username)
		if err != nil {
			log.Error().Err(err).Str("delivery_id", d.ID).Str("username", inv.Username).Msg("cannot resolve recipient for redelivery")
			continue
		}
		if err := n.send(ctx, d, contact); err != nil {
			log.Warn().Err(err).Str("delivery_id", d.ID).Msg("redelivery attempt failed")
			continue
		}
		delivered++
	}
	return delivered, nil
}

// send serializes the payload and walks the transport ranking. The first
// transport that accepts the payload marks the checkpoint delivered; if all
// refuse, the checkpoint stays open for the sweep.
func (n *Notifier) send(ctx context.Context, d *domain.NoteDelivery, contact *domain.Contact) error {
	payload, err := json.Marshal(DeliveryPayload{
		OperationID: d.MintOperationID,
		Amount:      d.AmountMsat,
		Notes:       d.Notes,
	})
	if err != nil {
		return fmt.Errorf("encode delivery payload: %w", err)
	}

	var lastErr error
	for _, t := range n.Transports {
		if err := t.Send(ctx, contact, payload); err != nil {
			deliveries.WithLabelValues(t.Name(), "error").Inc()
			log.Warn().Err(err).Str("transport", t.Name()).Str("recipient", contact.Name).Msg("transport send failed")
			lastErr = err
			continue
		}
		deliveries.WithLabelValues(t.Name(), "ok").Inc()
		if err := n.Deliveries.MarkDelivered(ctx, n.DB, d.ID); err != nil {
			// The recipient has the notes; only our bookkeeping lagged.
			// The sweep may resend, which the user can ignore.
			log.Error().Err(err).Str("delivery_id", d.ID).Msg("delivered but could not close checkpoint")
		}
		log.Info().
			Str("transport", t.Name()).
			Str("recipient", contact.Name).
			Int64("amount_msat", d.AmountMsat).
			Msg("notes delivered")
		return nil
	}

	reason := ErrDeliveryFailed.Error()
	if lastErr != nil {
		reason = lastErr.Error()
	}
	if err := n.Deliveries.MarkDeliveryFailed(ctx, n.DB, d.ID, reason); err != nil {
		log.Error().Err(err).Str("delivery_id", d.ID).Msg("could not record failed attempt")
	}
	return fmt.Errorf("%w: %s", ErrDeliveryFailed, reason)
}
