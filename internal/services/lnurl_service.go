// Package services – LnurlService
//
// This file implements the request-facing half of the pipeline: validating a
// callback, resolving the recipient, issuing an invoice through the
// federation client, persisting the ledger row, and handing the invoice to
// the watcher registry before the HTTP response is produced. Settlement and
// delivery happen later, in the detached watcher.
//
// Service-level errors (e.g. ErrUnknownUser) are returned for predictable
// cases so handlers can map them to HTTP results consistently.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/benthecarman/hermes/internal/domain"
	"github.com/benthecarman/hermes/internal/fedimint"
)

// InvoiceRepo defines the ledger contract required by the pipeline.
// Implementations are responsible for persistence of invoice rows; the
// settle transition must be exactly-once per row.
type InvoiceRepo interface {
	// CreateInvoice inserts a new pending row for an issued invoice.
	CreateInvoice(ctx context.Context, db *gorm.DB, opID, username, bolt11 string, amountMsat int64) (*domain.Invoice, error)

	// GetInvoice fetches a row by its primary key.
	GetInvoice(ctx context.Context, db *gorm.DB, id string) (*domain.Invoice, error)

	// GetInvoiceByOperationID fetches a row by its federation operation id.
	GetInvoiceByOperationID(ctx context.Context, db *gorm.DB, opID string) (*domain.Invoice, error)

	// SettleInvoice transitions pending→settled exactly once per row.
	SettleInvoice(ctx context.Context, db *gorm.DB, id string) (*domain.Invoice, error)

	// ExpireInvoice transitions pending→expired; no-op when not pending.
	ExpireInvoice(ctx context.Context, db *gorm.DB, id string) error

	// ListPendingInvoices returns rows awaiting settlement, oldest first.
	ListPendingInvoices(ctx context.Context, db *gorm.DB) ([]domain.Invoice, error)
}

// ContactRepo defines the recipient directory contract: a read-only lookup
// from username to messaging identity.
type ContactRepo interface {
	// GetContactByName resolves a registered username.
	GetContactByName(ctx context.Context, db *gorm.DB, name string) (*domain.Contact, error)
}

// CallbackParams carries the optional LNURL-pay callback query parameters.
// Empty strings mean absent.
type CallbackParams struct {
	AmountMsat   int64
	Nonce        string
	Comment      string
	ProofOfPayer string
}

// CallbackResult is what the handler needs to build the LNURL success
// envelope.
type CallbackResult struct {
	OperationID string
	Bolt11      string
	VerifyURL   string
}

// VerifyResult reports ledger state for a previously issued invoice.
type VerifyResult struct {
	Settled bool
	Bolt11  string
}

// LnurlService orchestrates the synchronous portion of a callback request.
type LnurlService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Invoices is the invoice ledger repository.
	Invoices InvoiceRepo
	// Contacts is the recipient directory repository.
	Contacts ContactRepo
	// Issuer creates invoices against the federation client.
	Issuer fedimint.Invoicer
	// Watchers tracks settlement for issued invoices.
	Watchers *Watchers

	// MinAmountMsat rejects dust requests below the LNURL minimum.
	MinAmountMsat int64
	// VerifyBase is the externally visible base URL for verify links,
	// e.g. "http://pay.example.com:8080".
	VerifyBase string
}

// NewLnurlService constructs an LnurlService with the standard 1000 msat
// minimum.
func NewLnurlService(db *gorm.DB, invoices InvoiceRepo, contacts ContactRepo, issuer fedimint.Invoicer, watchers *Watchers, verifyBase string) *LnurlService {
	return &LnurlService{
		DB:            db,
		Invoices:      invoices,
		Contacts:      contacts,
		Issuer:        issuer,
		Watchers:      watchers,
		MinAmountMsat: 1000,
		VerifyBase:    strings.TrimRight(verifyBase, "/"),
	}
}

// Callback validates the request, issues an invoice, persists it, and spawns
// the settlement watcher. It returns as soon as the invoice is trackable;
// the watcher outlives this call.
//
// Ordering matters for the no-side-effect guarantees: the amount check and
// username resolution happen before any upstream invoice is created, and the
// ledger row is written before the watcher is spawned.
func (s *LnurlService) Callback(ctx context.Context, username string, p CallbackParams) (*CallbackResult, error) {
	if p.AmountMsat < s.MinAmountMsat {
		return nil, fmt.Errorf("%w: %d msat < %d msat", ErrAmountTooLow, p.AmountMsat, s.MinAmountMsat)
	}
	if s.Watchers != nil && !s.Watchers.Available() {
		return nil, ErrTooManyWatchers
	}

	contact, err := s.Contacts.GetContactByName(ctx, s.DB, username)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownUser, username)
		}
		return nil, fmt.Errorf("resolve %s: %w", username, err)
	}

	opID, bolt11, err := s.Issuer.CreateInvoice(ctx, p.AmountMsat, fmt.Sprintf("lnurlp payment to %s", contact.Name))
	if err != nil {
		return nil, fmt.Errorf("create invoice: %w", err)
	}

	// The row must exist before the response: verification and restart
	// recovery both depend on it. An insert failure leaves an orphaned
	// invoice at the network level, which is why it is fatal here.
	inv, err := s.Invoices.CreateInvoice(ctx, s.DB, opID, contact.Name, bolt11, p.AmountMsat)
	if err != nil {
		return nil, fmt.Errorf("persist invoice %s: %w", opID, err)
	}
	invoicesIssued.Inc()

	if s.Watchers != nil {
		if err := s.Watchers.Spawn(inv, contact); err != nil {
			return nil, fmt.Errorf("watch invoice %s: %w", opID, err)
		}
	}

	log.Info().
		Str("username", contact.Name).
		Str("operation_id", opID).
		Int64("amount_msat", p.AmountMsat).
		Bool("has_comment", p.Comment != "").
		Msg("invoice issued")

	return &CallbackResult{
		OperationID: opID,
		Bolt11:      bolt11,
		VerifyURL:   fmt.Sprintf("%s/lnurlp/%s/verify/%s", s.VerifyBase, contact.Name, opID),
	}, nil
}

// Verify reports whether the invoice behind an operation id has settled.
func (s *LnurlService) Verify(ctx context.Context, username, opID string) (*VerifyResult, error) {
	inv, err := s.Invoices.GetInvoiceByOperationID(ctx, s.DB, opID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: operation %s", ErrInvoiceNotFound, opID)
		}
		return nil, fmt.Errorf("load invoice %s: %w", opID, err)
	}
	if !strings.EqualFold(inv.Username, username) {
		return nil, fmt.Errorf("%w: operation %s", ErrInvoiceNotFound, opID)
	}
	return &VerifyResult{Settled: inv.Settled(), Bolt11: inv.Bolt11}, nil
}
