package repo

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"gorm.io/gorm"

	"github.com/benthecarman/hermes/internal/domain"
)

// newTestDB opens a throwaway SQLite ledger with the full schema applied.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func TestCreateInvoice_AndGetByOperationID(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	inv, err := CreateInvoice(ctx, db, "op-1", "alice", "lnbc50n1...", 5000)
	if err != nil {
		t.Fatalf("CreateInvoice: %v", err)
	}
	if inv.ID == "" || inv.Status != domain.InvoicePending {
		t.Fatalf("unexpected invoice: %+v", inv)
	}

	got, err := GetInvoiceByOperationID(ctx, db, "op-1")
	if err != nil {
		t.Fatalf("GetInvoiceByOperationID: %v", err)
	}
	if got.ID != inv.ID || got.AmountMsat != 5000 || got.Bolt11 != "lnbc50n1..." {
		t.Fatalf("round-trip mismatch: %+v", got)
	}

	if _, err := GetInvoiceByOperationID(ctx, db, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestCreateInvoice_DuplicateOperationID(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if _, err := CreateInvoice(ctx, db, "op-dup", "alice", "lnbc1...", 1000); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := CreateInvoice(ctx, db, "op-dup", "alice", "lnbc2...", 1000); err == nil {
		t.Fatal("expected unique constraint violation on operation_id")
	}
}

func TestSettleInvoice_ExactlyOnce(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	inv, err := CreateInvoice(ctx, db, "op-2", "alice", "lnbc...", 5000)
	if err != nil {
		t.Fatalf("CreateInvoice: %v", err)
	}

	settled, err := SettleInvoice(ctx, db, inv.ID)
	if err != nil {
		t.Fatalf("SettleInvoice: %v", err)
	}
	if settled.Status != domain.InvoiceSettled || settled.SettledAt == nil {
		t.Fatalf("settle did not stick: %+v", settled)
	}

	// Second transition must lose.
	if _, err := SettleInvoice(ctx, db, inv.ID); !errors.Is(err, ErrAlreadySettled) {
		t.Fatalf("want ErrAlreadySettled, got %v", err)
	}

	// Missing rows are distinguished from settled ones.
	if _, err := SettleInvoice(ctx, db, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestExpireInvoice(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	inv, _ := CreateInvoice(ctx, db, "op-3", "alice", "lnbc...", 2000)
	if err := ExpireInvoice(ctx, db, inv.ID); err != nil {
		t.Fatalf("ExpireInvoice: %v", err)
	}
	got, _ := GetInvoice(ctx, db, inv.ID)
	if got.Status != domain.InvoiceExpired {
		t.Fatalf("status = %q; want expired", got.Status)
	}

	// Expiring a settled invoice is a no-op.
	inv2, _ := CreateInvoice(ctx, db, "op-4", "alice", "lnbc...", 2000)
	if _, err := SettleInvoice(ctx, db, inv2.ID); err != nil {
		t.Fatalf("SettleInvoice: %v", err)
	}
	if err := ExpireInvoice(ctx, db, inv2.ID); err != nil {
		t.Fatalf("ExpireInvoice on settled: %v", err)
	}
	got2, _ := GetInvoice(ctx, db, inv2.ID)
	if got2.Status != domain.InvoiceSettled {
		t.Fatalf("settled row was clobbered: %q", got2.Status)
	}
}

func TestListPendingInvoices(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	a, _ := CreateInvoice(ctx, db, "op-a", "alice", "lnbc...", 1000)
	b, _ := CreateInvoice(ctx, db, "op-b", "bob", "lnbc...", 1000)
	if _, err := SettleInvoice(ctx, db, b.ID); err != nil {
		t.Fatalf("SettleInvoice: %v", err)
	}

	pending, err := ListPendingInvoices(ctx, db)
	if err != nil {
		t.Fatalf("ListPendingInvoices: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != a.ID {
		t.Fatalf("pending = %+v; want only %s", pending, a.ID)
	}

	total, err := CountInvoices(ctx, db)
	if err != nil || total != 2 {
		t.Fatalf("CountInvoices = %d, %v", total, err)
	}
}
