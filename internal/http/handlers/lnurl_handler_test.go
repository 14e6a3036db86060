package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/benthecarman/hermes/internal/fedimint"
	"github.com/benthecarman/hermes/internal/services"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// ---------- stub service ----------

type stubPayService struct {
	callbackRes *services.CallbackResult
	callbackErr error
	verifyRes   *services.VerifyResult
	verifyErr   error

	gotUsername string
	gotParams   services.CallbackParams
	gotOpID     string
}

func (s *stubPayService) Callback(_ context.Context, username string, p services.CallbackParams) (*services.CallbackResult, error) {
	s.gotUsername = username
	s.gotParams = p
	return s.callbackRes, s.callbackErr
}

func (s *stubPayService) Verify(_ context.Context, username, opID string) (*services.VerifyResult, error) {
	s.gotUsername = username
	s.gotOpID = opID
	return s.verifyRes, s.verifyErr
}

func newTestRouter(svc PayService) *gin.Engine {
	r := gin.New()
	h := New(svc)
	r.GET("/lnurlp/:username/callback", h.Callback)
	r.GET("/lnurlp/:username/verify/:operationId", h.Verify)
	return r
}

func doGet(t *testing.T, r *gin.Engine, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

// ---------- callback ----------

func TestCallbackSuccess(t *testing.T) {
	svc := &stubPayService{
		callbackRes: &services.CallbackResult{
			OperationID: "op-42",
			Bolt11:      "lnbc50n1pexample",
			VerifyURL:   "http://localhost:8080/lnurlp/alice/verify/op-42",
		},
	}
	r := newTestRouter(svc)

	w := doGet(t, r, "/lnurlp/alice/callback?amount=5000&comment=thanks")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", w.Code, w.Body.String())
	}

	var resp LnurlCallbackResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Status != "OK" {
		t.Errorf("status = %q, want OK", resp.Status)
	}
	if resp.Pr != "lnbc50n1pexample" {
		t.Errorf("pr = %q", resp.Pr)
	}
	if resp.Verify != "http://localhost:8080/lnurlp/alice/verify/op-42" {
		t.Errorf("verify = %q", resp.Verify)
	}

	// Optional fields must be absent, wallets reject unexpected nulls.
	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(w.Body.Bytes(), &raw); err != nil {
		t.Fatalf("unmarshal raw: %v", err)
	}
	for _, k := range []string{"reason", "successAction", "routes"} {
		if _, present := raw[k]; present {
			t.Errorf("field %q should be omitted", k)
		}
	}

	if svc.gotUsername != "alice" {
		t.Errorf("username passed = %q", svc.gotUsername)
	}
	if svc.gotParams.AmountMsat != 5000 || svc.gotParams.Comment != "thanks" {
		t.Errorf("params passed = %+v", svc.gotParams)
	}
}

func TestCallbackMissingAmount(t *testing.T) {
	r := newTestRouter(&stubPayService{})
	w := doGet(t, r, "/lnurlp/alice/callback")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	assertLnurlError(t, w)
}

func TestCallbackMalformedAmount(t *testing.T) {
	for _, amt := range []string{"abc", "-5", "0", "1.5"} {
		r := newTestRouter(&stubPayService{})
		w := doGet(t, r, "/lnurlp/alice/callback?amount="+amt)
		if w.Code != http.StatusBadRequest {
			t.Errorf("amount=%s: status = %d, want 400", amt, w.Code)
		}
	}
}

func TestCallbackErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"amount too low", services.ErrAmountTooLow, http.StatusBadRequest},
		{"unknown user", services.ErrUnknownUser, http.StatusNotFound},
		{"at capacity", services.ErrTooManyWatchers, http.StatusServiceUnavailable},
		{"upstream down", fedimint.ErrUpstream, http.StatusBadGateway},
		{"persistence fault", errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newTestRouter(&stubPayService{callbackErr: tc.err})
			w := doGet(t, r, "/lnurlp/alice/callback?amount=5000")
			if w.Code != tc.want {
				t.Fatalf("status = %d, want %d", w.Code, tc.want)
			}
			assertLnurlError(t, w)
		})
	}
}

// ---------- verify ----------

func TestVerifyPending(t *testing.T) {
	svc := &stubPayService{verifyRes: &services.VerifyResult{Settled: false, Bolt11: "lnbc50n1p"}}
	r := newTestRouter(svc)

	w := doGet(t, r, "/lnurlp/alice/verify/op-42")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp LnurlVerifyResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Status != "OK" || resp.Settled || resp.Pr != "lnbc50n1p" {
		t.Errorf("resp = %+v", resp)
	}
	if resp.Preimage != nil {
		t.Errorf("preimage should be null")
	}
	if svc.gotOpID != "op-42" {
		t.Errorf("operation id passed = %q", svc.gotOpID)
	}
}

func TestVerifySettled(t *testing.T) {
	svc := &stubPayService{verifyRes: &services.VerifyResult{Settled: true, Bolt11: "lnbc50n1p"}}
	r := newTestRouter(svc)

	w := doGet(t, r, "/lnurlp/alice/verify/op-42")
	var resp LnurlVerifyResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !resp.Settled {
		t.Error("settled = false, want true")
	}
}

func TestVerifyUnknown(t *testing.T) {
	r := newTestRouter(&stubPayService{verifyErr: services.ErrInvoiceNotFound})
	w := doGet(t, r, "/lnurlp/alice/verify/nope")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	assertLnurlError(t, w)
}

// ---------- helpers ----------

func assertLnurlError(t *testing.T, w *httptest.ResponseRecorder) {
	t.Helper()
	var e LnurlError
	if err := json.Unmarshal(w.Body.Bytes(), &e); err != nil {
		t.Fatalf("unmarshal error body: %v", err)
	}
	if e.Status != "ERROR" {
		t.Errorf("error status = %q, want ERROR", e.Status)
	}
	if e.Reason == "" {
		t.Error("error reason empty")
	}
}
