// Package services – Watchers
//
// This file implements the settlement watcher registry. Each accepted
// callback gets one detached goroutine that consumes the invoice's
// payment-status stream and drives the ledger to a terminal state:
//
//	Watching → Claimed (settle + deliver) | Canceled | deadline Expired
//
// The registry is the supervisory layer the fire-and-forget reference design
// lacked: it caps fan-out, carries a per-invoice deadline, drains cleanly on
// shutdown, and re-subscribes pending ledger rows after a restart.
package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/benthecarman/hermes/internal/domain"
	"github.com/benthecarman/hermes/internal/fedimint"
	"github.com/benthecarman/hermes/internal/repo"
)

// NoteDispatcher converts a settled invoice into notes and delivers them.
// Implemented by Notifier; faked in tests.
type NoteDispatcher interface {
	Notify(ctx context.Context, inv *domain.Invoice, contact *domain.Contact) error
}

// Watchers owns every live settlement watcher. Safe for concurrent use.
type Watchers struct {
	db         *gorm.DB
	invoices   InvoiceRepo
	contacts   ContactRepo
	subscriber fedimint.Invoicer
	dispatcher NoteDispatcher

	// limit caps concurrently live watchers; expiry bounds how long an
	// unpaid invoice is watched before being marked expired.
	limit  int
	expiry time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu   sync.Mutex
	live map[string]struct{} // invoice id → watching
}

// NewWatchers constructs the registry. The registry owns the lifetime of
// every watcher it spawns; Close tears them down.
func NewWatchers(db *gorm.DB, invoices InvoiceRepo, contacts ContactRepo, subscriber fedimint.Invoicer, dispatcher NoteDispatcher, limit int, expiry time.Duration) *Watchers {
	ctx, cancel := context.WithCancel(context.Background())
	return &Watchers{
		db:         db,
		invoices:   invoices,
		contacts:   contacts,
		subscriber: subscriber,
		dispatcher: dispatcher,
		limit:      limit,
		expiry:     expiry,
		ctx:        ctx,
		cancel:     cancel,
		live:       make(map[string]struct{}),
	}
}

// Count returns the number of currently live watchers.
func (w *Watchers) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.live)
}

// Available reports whether the registry can take another watcher.
func (w *Watchers) Available() bool {
	return w.Count() < w.limit
}

// Spawn subscribes to the invoice's settlement stream and starts its
// watcher. The subscription is established synchronously so a broken
// operation id fails the caller; the watcher itself is detached and outlives
// the request. Returns ErrTooManyWatchers at capacity.
func (w *Watchers) Spawn(inv *domain.Invoice, contact *domain.Contact) error {
	if err := w.reserve(inv.ID); err != nil {
		return err
	}

	// The watcher context carries the expiry deadline; it also drives the
	// subscription's poll loop, so cancellation tears both down together.
	wctx, cancel := context.WithTimeout(w.ctx, w.expiry)

	stream, err := w.subscriber.SubscribeReceive(wctx, inv.OperationID)
	if err != nil {
		cancel()
		w.release(inv.ID)
		return err
	}

	w.wg.Add(1)
	watchersLive.Inc()
	go w.run(wctx, cancel, inv, contact, stream)
	return nil
}

// Resume re-subscribes every pending ledger row. Called once at startup so
// invoices orphaned by a restart are watched again instead of stranded.
// Rows that cannot be resumed are logged and stay pending. Returns the
// number of watchers started.
func (w *Watchers) Resume(ctx context.Context) (int, error) {
	pending, err := w.invoices.ListPendingInvoices(ctx, w.db)
	if err != nil {
		return 0, err
	}

	resumed := 0
	for i := range pending {
		inv := &pending[i]
		contact, err := w.contacts.GetContactByName(ctx, w.db, inv.Username)
		if err != nil {
			log.Error().Err(err).Str("invoice_id", inv.ID).Str("username", inv.Username).Msg("cannot resume watcher, contact missing")
			continue
		}
		if err := w.Spawn(inv, contact); err != nil {
			log.Error().Err(err).Str("invoice_id", inv.ID).Str("operation_id", inv.OperationID).Msg("cannot resume watcher")
			continue
		}
		resumed++
	}
	if resumed > 0 {
		log.Info().Int("resumed", resumed).Int("pending", len(pending)).Msg("resumed settlement watchers")
	}
	return resumed, nil
}

// Close stops all watchers and waits for them to drain, or gives up when
// ctx expires. Pending invoices stay pending and are resumed on next start.
func (w *Watchers) Close(ctx context.Context) error {
	w.cancel()
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Watchers) reserve(invoiceID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.live[invoiceID]; ok {
		return ErrAlreadyWatched
	}
	if len(w.live) >= w.limit {
		return ErrTooManyWatchers
	}
	w.live[invoiceID] = struct{}{}
	return nil
}

func (w *Watchers) release(invoiceID string) {
	w.mu.Lock()
	delete(w.live, invoiceID)
	w.mu.Unlock()
}

// run consumes one invoice's event stream to a terminal state. It is the
// only consumer of the stream, so per-invoice event ordering is total.
// Failures are fatal to this watcher only, never the process.
func (w *Watchers) run(ctx context.Context, cancel context.CancelFunc, inv *domain.Invoice, contact *domain.Contact, stream <-chan fedimint.ReceiveUpdate) {
	defer func() {
		cancel()
		w.release(inv.ID)
		watchersLive.Dec()
		w.wg.Done()
	}()

	lg := log.With().
		Str("invoice_id", inv.ID).
		Str("operation_id", inv.OperationID).
		Str("username", inv.Username).
		Logger()

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				w.expire(lg, inv, "watch deadline passed")
				invoicesResolved.WithLabelValues("expired").Inc()
			}
			// Plain cancellation is shutdown: leave the row pending for
			// the next Resume.
			return

		case upd, ok := <-stream:
			if !ok {
				lg.Warn().Msg("settlement stream ended without terminal event")
				return
			}
			switch upd.State {
			case fedimint.ReceiveCanceled:
				lg.Error().Str("reason", upd.Reason).Msg("payment canceled")
				w.expire(lg, inv, upd.Reason)
				invoicesResolved.WithLabelValues("canceled").Inc()
				return

			case fedimint.ReceiveClaimed:
				w.settle(lg, inv, contact)
				return

			default:
				// Non-terminal progress; keep consuming.
			}
		}
	}
}

// settle performs the exactly-once ledger transition and hands the settled
// invoice to the dispatcher. A lost settle race means another claim event
// already processed this invoice and minting is skipped.
func (w *Watchers) settle(lg zerolog.Logger, inv *domain.Invoice, contact *domain.Contact) {
	// A claim is already committed on the payment network; finish the local
	// transition even if the watcher deadline or shutdown races it.
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	settled, err := w.invoices.SettleInvoice(ctx, w.db, inv.ID)
	if err != nil {
		if errors.Is(err, repo.ErrAlreadySettled) {
			lg.Debug().Msg("duplicate claim, invoice already settled")
			return
		}
		lg.Error().Err(err).Msg("settle write failed, invoice stuck pending")
		invoicesResolved.WithLabelValues("failed").Inc()
		return
	}
	lg.Info().Int64("amount_msat", settled.AmountMsat).Msg("payment claimed")
	invoicesResolved.WithLabelValues("settled").Inc()

	if err := w.dispatcher.Notify(ctx, settled, contact); err != nil {
		// The mint checkpoint (if reached) keeps the notes redeliverable;
		// nothing more to do in this watcher.
		lg.Error().Err(err).Msg("note delivery failed")
	}
}

// expire marks the row expired using a fresh context: the watcher's own
// context is typically already done when this runs.
func (w *Watchers) expire(lg zerolog.Logger, inv *domain.Invoice, reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := w.invoices.ExpireInvoice(ctx, w.db, inv.ID); err != nil {
		lg.Error().Err(err).Str("reason", reason).Msg("expire write failed")
		return
	}
	lg.Info().Str("reason", reason).Msg("invoice expired")
}
