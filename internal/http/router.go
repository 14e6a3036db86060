// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging, panic recovery, metrics, CORS,
// compression, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/benthecarman/hermes/internal/config"
	"github.com/benthecarman/hermes/internal/domain"
	"github.com/benthecarman/hermes/internal/fedimint"
	"github.com/benthecarman/hermes/internal/http/handlers"
	"github.com/benthecarman/hermes/internal/http/middleware"
	"github.com/benthecarman/hermes/internal/repo"
	"github.com/benthecarman/hermes/internal/services"
)

// invoiceRepoShim adapts the repository free functions to the
// services.InvoiceRepo interface. This keeps services decoupled from the
// concrete repo package while reusing existing functions.
type invoiceRepoShim struct{}

func (invoiceRepoShim) CreateInvoice(ctx context.Context, db *gorm.DB, opID, username, bolt11 string, amountMsat int64) (*domain.Invoice, error) {
	return repo.CreateInvoice(ctx, db, opID, username, bolt11, amountMsat)
}

func (invoiceRepoShim) GetInvoice(ctx context.Context, db *gorm.DB, id string) (*domain.Invoice, error) {
	return repo.GetInvoice(ctx, db, id)
}

func (invoiceRepoShim) GetInvoiceByOperationID(ctx context.Context, db *gorm.DB, opID string) (*domain.Invoice, error) {
	return repo.GetInvoiceByOperationID(ctx, db, opID)
}

func (invoiceRepoShim) SettleInvoice(ctx context.Context, db *gorm.DB, id string) (*domain.Invoice, error) {
	return repo.SettleInvoice(ctx, db, id)
}

func (invoiceRepoShim) ExpireInvoice(ctx context.Context, db *gorm.DB, id string) error {
	return repo.ExpireInvoice(ctx, db, id)
}

func (invoiceRepoShim) ListPendingInvoices(ctx context.Context, db *gorm.DB) ([]domain.Invoice, error) {
	return repo.ListPendingInvoices(ctx, db)
}

// contactRepoShim adapts contact lookups to services.ContactRepo.
type contactRepoShim struct{}

func (contactRepoShim) GetContactByName(ctx context.Context, db *gorm.DB, name string) (*domain.Contact, error) {
	return repo.GetContactByName(ctx, db, name)
}

// deliveryRepoShim adapts the note-delivery checkpoint functions to
// services.DeliveryRepo.
type deliveryRepoShim struct{}

func (deliveryRepoShim) CreateDelivery(ctx context.Context, db *gorm.DB, invoiceID, mintOpID, recipient, notes string, amountMsat int64) (*domain.NoteDelivery, error) {
	return repo.CreateDelivery(ctx, db, invoiceID, mintOpID, recipient, notes, amountMsat)
}

func (deliveryRepoShim) GetDeliveryByInvoice(ctx context.Context, db *gorm.DB, invoiceID string) (*domain.NoteDelivery, error) {
	return repo.GetDeliveryByInvoice(ctx, db, invoiceID)
}

func (deliveryRepoShim) MarkDelivered(ctx context.Context, db *gorm.DB, id string) error {
	return repo.MarkDelivered(ctx, db, id)
}

func (deliveryRepoShim) MarkDeliveryFailed(ctx context.Context, db *gorm.DB, id, reason string) error {
	return repo.MarkDeliveryFailed(ctx, db, id, reason)
}

func (deliveryRepoShim) ListUndelivered(ctx context.Context, db *gorm.DB) ([]domain.NoteDelivery, error) {
	return repo.ListUndelivered(ctx, db)
}

// Deps carries the external collaborators the HTTP layer needs. Issuer and
// Minter are usually the same fedimint client; Transports are tried in order
// for note delivery.
type Deps struct {
	DB         *gorm.DB
	Issuer     fedimint.Invoicer
	Minter     fedimint.Minter
	Transports []services.Messenger
}

// App exposes the long-lived background components built during route
// registration so main can start recovery sweeps and drain on shutdown.
type App struct {
	Watchers *services.Watchers
	Notifier *services.Notifier
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine and wires the application services behind them.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Logger: structured logs with query scrubbing
//  4. Recovery: capture panics after logger
//  5. Metrics
//  6. Rate limiter (per client IP)
//  7. CORS and gzip
func RegisterRoutes(r *gin.Engine, deps Deps, cfg config.Config) *App {
	// 1) Trace all HTTP requests
	if cfg.OTEL.Enabled {
		r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	}

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured access logging
	r.Use(middleware.Logger())

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 6) Token-bucket rate limiter per client IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst)
	r.Use(rl.Handler())

	// 7) CORS posture. Wallets fetch the callback cross-origin, so the
	// default is allow-all for GET.
	if len(cfg.CORS.AllowedOrigins) == 0 {
		r.Use(cors.New(cors.Config{
			AllowAllOrigins: true,
			AllowMethods:    []string{"GET", "OPTIONS"},
			AllowHeaders:    []string{"Origin", "Content-Type", "Accept"},
			ExposeHeaders:   []string{"X-Request-ID", "Content-Length"},
			MaxAge:          12 * time.Hour,
		}))
	} else {
		r.Use(cors.New(cors.Config{
			AllowOrigins:  cfg.CORS.AllowedOrigins,
			AllowMethods:  []string{"GET", "OPTIONS"},
			AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
			ExposeHeaders: []string{"X-Request-ID", "Content-Length"},
			MaxAge:        12 * time.Hour,
		}))
	}
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	// Fallback
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})

	// Liveness/health
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Dependency injection: services ← repo/db/external clients
	invoices := invoiceRepoShim{}
	contacts := contactRepoShim{}
	deliveries := deliveryRepoShim{}

	notifier := services.NewNotifier(deps.DB, deliveries, invoices, contacts, deps.Minter, deps.Transports)
	if cfg.NoteValidity > 0 {
		notifier.NoteValidity = cfg.NoteValidity
	}

	watchers := services.NewWatchers(deps.DB, invoices, contacts, deps.Issuer, notifier, cfg.WatcherLimit, cfg.InvoiceExpiry)

	paySvc := services.NewLnurlService(deps.DB, invoices, contacts, deps.Issuer, watchers, cfg.VerifyBaseURL())
	if cfg.MinAmountMsat > 0 {
		paySvc.MinAmountMsat = cfg.MinAmountMsat
	}

	h := handlers.New(paySvc)

	// Wallet-facing API
	r.GET("/lnurlp/:username/callback", h.Callback)
	r.GET("/lnurlp/:username/verify/:operationId", h.Verify)

	return &App{Watchers: watchers, Notifier: notifier}
}
