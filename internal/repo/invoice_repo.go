// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Invoice
// ledger, the single source of truth for "has this invoice been paid and
// settled yet."
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When an invoice is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - SettleInvoice returns ErrAlreadySettled when the row exists but is no
//     longer pending; the pending→settled transition happens at most once
//     per row regardless of how many watchers or duplicate events race it.
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/benthecarman/hermes/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrAlreadySettled is returned by SettleInvoice when the row exists but its
// status is not pending. Callers treat it as "another claim won the race".
var ErrAlreadySettled = errors.New("invoice already settled or expired")

// CreateInvoice inserts a new pending Invoice row for the given operation.
// The invoice ID is a randomly generated UUID (string), and CreatedAt is set
// by GORM. On success, it returns the persisted Invoice.
func CreateInvoice(ctx context.Context, db *gorm.DB, opID, username, bolt11 string, amountMsat int64) (*domain.Invoice, error) {
	inv := &domain.Invoice{
		ID:          uuid.NewString(),
		OperationID: opID,
		Username:    username,
		AmountMsat:  amountMsat,
		Bolt11:      bolt11,
		Status:      domain.InvoicePending,
	}
	if err := db.WithContext(ctx).Create(inv).Error; err != nil {
		return nil, err
	}
	return inv, nil
}

// GetInvoice fetches a single invoice by its primary key. Returns ErrNotFound
// if no such row exists.
func GetInvoice(ctx context.Context, db *gorm.DB, id string) (*domain.Invoice, error) {
	var inv domain.Invoice
	if err := db.WithContext(ctx).Where("id = ?", id).First(&inv).Error; err != nil {
		return nil, err
	}
	return &inv, nil
}

// GetInvoiceByOperationID fetches a single invoice by its federation
// operation id. Returns ErrNotFound if no such row exists.
func GetInvoiceByOperationID(ctx context.Context, db *gorm.DB, opID string) (*domain.Invoice, error) {
	var inv domain.Invoice
	if err := db.WithContext(ctx).Where("operation_id = ?", opID).First(&inv).Error; err != nil {
		return nil, err
	}
	return &inv, nil
}

// SettleInvoice transitions an invoice from pending to settled. The guard on
// the current status makes the transition exactly-once per row: a duplicate
// claim event affects zero rows and gets ErrAlreadySettled, while a missing
// row gets ErrNotFound. On success the updated row is returned.
func SettleInvoice(ctx context.Context, db *gorm.DB, id string) (*domain.Invoice, error) {
	now := time.Now().UTC()
	res := db.WithContext(ctx).
		Model(&domain.Invoice{}).
		Where("id = ? AND status = ?", id, domain.InvoicePending).
		Updates(map[string]any{"status": domain.InvoiceSettled, "settled_at": now})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		// Row missing vs. already transitioned.
		if _, err := GetInvoice(ctx, db, id); err != nil {
			return nil, err
		}
		return nil, ErrAlreadySettled
	}
	return GetInvoice(ctx, db, id)
}

// ExpireInvoice transitions a pending invoice to expired. Used when the
// payment is canceled upstream or the watcher deadline passes. Expiring a
// row that is no longer pending is a no-op, not an error.
func ExpireInvoice(ctx context.Context, db *gorm.DB, id string) error {
	return db.WithContext(ctx).
		Model(&domain.Invoice{}).
		Where("id = ? AND status = ?", id, domain.InvoicePending).
		Update("status", domain.InvoiceExpired).Error
}

// ListPendingInvoices returns all invoices still awaiting settlement,
// oldest first. Used at startup to re-subscribe orphaned watchers.
func ListPendingInvoices(ctx context.Context, db *gorm.DB) ([]domain.Invoice, error) {
	var out []domain.Invoice
	err := db.WithContext(ctx).
		Where("status = ?", domain.InvoicePending).
		Order("created_at asc").
		Find(&out).Error
	return out, err
}

// CountInvoices returns the total number of invoice rows. Exposed for
// operational introspection and tests.
func CountInvoices(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.Invoice{}).Count(&total).Error
	return total, err
}
