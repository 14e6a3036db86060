// LNURL-pay HTTP handlers.
//
// This file exposes the wallet-facing endpoints:
//   - GET /lnurlp/{username}/callback              (issue an invoice)
//   - GET /lnurlp/{username}/verify/{operationId}  (poll settlement state)
//
// Handlers are transport-thin: they validate input, call the application
// service, and translate results into the LNURL wire shapes. Per the LNURL
// convention, wallet-visible failures carry a body of
// {"status":"ERROR","reason":"..."} alongside the HTTP status.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/benthecarman/hermes/internal/fedimint"
	"github.com/benthecarman/hermes/internal/services"
)

//
// Service contracts (context-aware)
//

// PayService defines the LNURL-pay operations consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type PayService interface {
	// Callback issues an invoice for username and registers settlement tracking.
	Callback(ctx context.Context, username string, p services.CallbackParams) (*services.CallbackResult, error)
	// Verify reports whether a previously issued invoice has settled.
	Verify(ctx context.Context, username, operationID string) (*services.VerifyResult, error)
}

//
// Handler wiring
//

// Handlers groups the LNURL-pay HTTP endpoints. It depends on an abstract
// service interface to keep transport concerns separate from business logic.
type Handlers struct {
	pay PayService
}

// New constructs a Handlers instance bound to the given service.
func New(pay PayService) *Handlers {
	return &Handlers{pay: pay}
}

//
// DTOs
//

// LnurlCallbackResponse is the LUD-06 success envelope. Reason,
// SuccessAction, and Routes are always absent here but kept as fields so the
// serialized shape matches what wallets parse.
type LnurlCallbackResponse struct {
	Status        string   `json:"status"`
	Pr            string   `json:"pr"`
	Verify        string   `json:"verify,omitempty"`
	Reason        string   `json:"reason,omitempty"`
	SuccessAction *string  `json:"successAction,omitempty"`
	Routes        []string `json:"routes,omitempty"`
}

// LnurlVerifyResponse is the LUD-21 verify envelope. Preimage is always null
// because the mint does not expose payment preimages.
type LnurlVerifyResponse struct {
	Status   string  `json:"status"`
	Settled  bool    `json:"settled"`
	Preimage *string `json:"preimage"`
	Pr       string  `json:"pr"`
}

//
// Endpoints
//

// Callback handles GET /lnurlp/:username/callback.
//
// Query parameters: amount (msat, required), nonce, comment, proofofpayer
// (all optional, recorded only).
func (h *Handlers) Callback(c *gin.Context) {
	username := c.Param("username")

	raw := c.Query("amount")
	if raw == "" {
		lnurlFail(c, http.StatusBadRequest, "missing amount parameter")
		return
	}
	amount, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || amount <= 0 {
		lnurlFail(c, http.StatusBadRequest, "invalid amount parameter")
		return
	}

	res, err := h.pay.Callback(c.Request.Context(), username, services.CallbackParams{
		AmountMsat:   amount,
		Nonce:        c.Query("nonce"),
		Comment:      c.Query("comment"),
		ProofOfPayer: c.Query("proofofpayer"),
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrAmountTooLow):
			lnurlFail(c, http.StatusBadRequest, "amount too low")
		case errors.Is(err, services.ErrUnknownUser):
			lnurlFail(c, http.StatusNotFound, "user not found")
		case errors.Is(err, services.ErrTooManyWatchers):
			lnurlFail(c, http.StatusServiceUnavailable, "temporarily unable to accept payments")
		case errors.Is(err, fedimint.ErrUpstream):
			lnurlFail(c, http.StatusBadGateway, "invoice service unavailable")
		default:
			lnurlFail(c, http.StatusInternalServerError, "internal error")
		}
		return
	}

	ok(c, http.StatusOK, LnurlCallbackResponse{
		Status: "OK",
		Pr:     res.Bolt11,
		Verify: res.VerifyURL,
	})
}

// Verify handles GET /lnurlp/:username/verify/:operationId.
func (h *Handlers) Verify(c *gin.Context) {
	username := c.Param("username")
	opID := c.Param("operationId")

	res, err := h.pay.Verify(c.Request.Context(), username, opID)
	if err != nil {
		if errors.Is(err, services.ErrInvoiceNotFound) {
			lnurlFail(c, http.StatusNotFound, "invoice not found")
			return
		}
		lnurlFail(c, http.StatusInternalServerError, "internal error")
		return
	}

	ok(c, http.StatusOK, LnurlVerifyResponse{
		Status:  "OK",
		Settled: res.Settled,
		Pr:      res.Bolt11,
	})
}
