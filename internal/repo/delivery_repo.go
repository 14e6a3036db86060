// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for NoteDelivery,
// the durable checkpoint between minting notes and sending them.
//
// The rows behave like an outbox: CreateDelivery records a successful mint
// before any send attempt, MarkDeliveryFailed accumulates attempt state on
// send errors, MarkDelivered closes the row, and ListUndelivered feeds the
// redelivery sweep that resends stuck rows without re-minting.
package repo

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/benthecarman/hermes/internal/domain"
)

// CreateDelivery inserts a minted-not-yet-delivered checkpoint for an
// invoice. The unique index on invoice_id enforces at most one delivery
// sequence per invoice; a duplicate insert surfaces the constraint error.
func CreateDelivery(ctx context.Context, db *gorm.DB, invoiceID, mintOpID, recipient, notes string, amountMsat int64) (*domain.NoteDelivery, error) {
	d := &domain.NoteDelivery{
		ID:              uuid.NewString(),
		InvoiceID:       invoiceID,
		MintOperationID: mintOpID,
		AmountMsat:      amountMsat,
		Notes:           notes,
		Recipient:       recipient,
		Status:          domain.DeliveryMinted,
	}
	if err := db.WithContext(ctx).Create(d).Error; err != nil {
		return nil, err
	}
	return d, nil
}

// MarkDelivered flips a delivery row to delivered and bumps the attempt
// counter. Returns ErrNotFound if the row does not exist.
func MarkDelivered(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).
		Model(&domain.NoteDelivery{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     domain.DeliveryDelivered,
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": "",
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkDeliveryFailed records a failed send attempt, keeping the row at
// minted so the sweep retries it later.
func MarkDeliveryFailed(ctx context.Context, db *gorm.DB, id, reason string) error {
	res := db.WithContext(ctx).
		Model(&domain.NoteDelivery{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": reason,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetDeliveryByInvoice fetches the delivery row for an invoice, or
// ErrNotFound when no mint has been checkpointed yet.
func GetDeliveryByInvoice(ctx context.Context, db *gorm.DB, invoiceID string) (*domain.NoteDelivery, error) {
	var d domain.NoteDelivery
	if err := db.WithContext(ctx).Where("invoice_id = ?", invoiceID).First(&d).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

// ListUndelivered returns rows still at minted, oldest first. These carry
// already-committed value and must eventually reach the recipient.
func ListUndelivered(ctx context.Context, db *gorm.DB) ([]domain.NoteDelivery, error) {
	var out []domain.NoteDelivery
	err := db.WithContext(ctx).
		Where("status = ?", domain.DeliveryMinted).
		Order("created_at asc").
		Find(&out).Error
	return out, err
}
