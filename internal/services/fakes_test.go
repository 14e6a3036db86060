package services

// Shared in-memory fakes for service tests. The ledger fake reproduces the
// repo's exactly-once settle semantics so watcher idempotence can be
// exercised without a database.

import (
	"context"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/benthecarman/hermes/internal/domain"
	"github.com/benthecarman/hermes/internal/fedimint"
	"github.com/benthecarman/hermes/internal/repo"
)

// ----- Invoice ledger fake -----

type fakeLedger struct {
	mu          sync.Mutex
	rows        map[string]*domain.Invoice // by id
	createErr   error
	settleErr   error
	settleCalls int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{rows: make(map[string]*domain.Invoice)}
}

func (f *fakeLedger) CreateInvoice(ctx context.Context, db *gorm.DB, opID, username, bolt11 string, amountMsat int64) (*domain.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	inv := &domain.Invoice{
		ID:          "inv-" + opID,
		OperationID: opID,
		Username:    username,
		AmountMsat:  amountMsat,
		Bolt11:      bolt11,
		Status:      domain.InvoicePending,
	}
	f.rows[inv.ID] = inv
	return copyInvoice(inv), nil
}

func (f *fakeLedger) GetInvoice(ctx context.Context, db *gorm.DB, id string) (*domain.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if inv, ok := f.rows[id]; ok {
		return copyInvoice(inv), nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeLedger) GetInvoiceByOperationID(ctx context.Context, db *gorm.DB, opID string) (*domain.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, inv := range f.rows {
		if inv.OperationID == opID {
			return copyInvoice(inv), nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeLedger) SettleInvoice(ctx context.Context, db *gorm.DB, id string) (*domain.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settleCalls++
	if f.settleErr != nil {
		return nil, f.settleErr
	}
	inv, ok := f.rows[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	if inv.Status != domain.InvoicePending {
		return nil, repo.ErrAlreadySettled
	}
	now := time.Now().UTC()
	inv.Status = domain.InvoiceSettled
	inv.SettledAt = &now
	return copyInvoice(inv), nil
}

func (f *fakeLedger) ExpireInvoice(ctx context.Context, db *gorm.DB, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if inv, ok := f.rows[id]; ok && inv.Status == domain.InvoicePending {
		inv.Status = domain.InvoiceExpired
	}
	return nil
}

func (f *fakeLedger) ListPendingInvoices(ctx context.Context, db *gorm.DB) ([]domain.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Invoice
	for _, inv := range f.rows {
		if inv.Status == domain.InvoicePending {
			out = append(out, *copyInvoice(inv))
		}
	}
	return out, nil
}

func (f *fakeLedger) status(id string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if inv, ok := f.rows[id]; ok {
		return inv.Status
	}
	return ""
}

func copyInvoice(inv *domain.Invoice) *domain.Invoice {
	c := *inv
	return &c
}

// ----- Contact directory fake -----

type fakeDirectory struct {
	contacts map[string]*domain.Contact
}

func newFakeDirectory(contacts ...*domain.Contact) *fakeDirectory {
	m := make(map[string]*domain.Contact, len(contacts))
	for _, c := range contacts {
		m[c.Name] = c
	}
	return &fakeDirectory{contacts: m}
}

func (f *fakeDirectory) GetContactByName(ctx context.Context, db *gorm.DB, name string) (*domain.Contact, error) {
	if c, ok := f.contacts[strings.ToLower(strings.TrimSpace(name))]; ok {
		return c, nil
	}
	return nil, gorm.ErrRecordNotFound
}

// ----- Invoicer fake -----

type fakeIssuer struct {
	mu      sync.Mutex
	opID    string
	bolt11  string
	err     error
	creates int

	subErr  error
	streams map[string]chan fedimint.ReceiveUpdate
}

func newFakeIssuer(opID, bolt11 string) *fakeIssuer {
	return &fakeIssuer{
		opID:    opID,
		bolt11:  bolt11,
		streams: make(map[string]chan fedimint.ReceiveUpdate),
	}
}

func (f *fakeIssuer) CreateInvoice(ctx context.Context, amountMsat int64, description string) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.err != nil {
		return "", "", f.err
	}
	return f.opID, f.bolt11, nil
}

func (f *fakeIssuer) SubscribeReceive(ctx context.Context, opID string) (<-chan fedimint.ReceiveUpdate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subErr != nil {
		return nil, f.subErr
	}
	ch := make(chan fedimint.ReceiveUpdate, 8)
	f.streams[opID] = ch
	return ch, nil
}

func (f *fakeIssuer) stream(opID string) chan fedimint.ReceiveUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.streams[opID]
}

// ----- Dispatcher fake -----

type fakeDispatcher struct {
	mu      sync.Mutex
	err     error
	calls   []*domain.Invoice
	settled chan struct{}
}

func newFakeDispatcher() *fakeDispatcher {
	return &fakeDispatcher{settled: make(chan struct{}, 16)}
}

func (f *fakeDispatcher) Notify(ctx context.Context, inv *domain.Invoice, contact *domain.Contact) error {
	f.mu.Lock()
	f.calls = append(f.calls, inv)
	f.mu.Unlock()
	f.settled <- struct{}{}
	return f.err
}

func (f *fakeDispatcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}
