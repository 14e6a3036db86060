package fedimint

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// Client implements Invoicer and Minter against the daemon's HTTP API.
// It is safe for concurrent use by many watchers: the underlying
// http.Client is shared and stateless.
type Client struct {
	baseURL  string
	password string
	httpc    *http.Client

	// pollInterval paces the long-poll loop behind SubscribeReceive.
	pollInterval time.Duration
}

// NewClient constructs a Client for the daemon at baseURL. The password is
// sent as a bearer credential when non-empty.
func NewClient(baseURL, password string) *Client {
	return &Client{
		baseURL:  baseURL,
		password: password,
		httpc: &http.Client{
			// Await calls block server-side until the operation advances, so
			// the per-request timeout must exceed the daemon's hold time.
			Timeout: 2 * time.Minute,
		},
		pollInterval: 2 * time.Second,
	}
}

type createInvoiceRequest struct {
	AmountMsat  int64  `json:"amountMsat"`
	Description string `json:"description"`
}

type createInvoiceResponse struct {
	OperationID string `json:"operationId"`
	Invoice     string `json:"invoice"`
}

// CreateInvoice implements Invoicer.
func (c *Client) CreateInvoice(ctx context.Context, amountMsat int64, description string) (string, string, error) {
	var resp createInvoiceResponse
	err := c.post(ctx, "/v2/ln/invoice", createInvoiceRequest{
		AmountMsat:  amountMsat,
		Description: description,
	}, &resp)
	if err != nil {
		return "", "", err
	}
	if resp.OperationID == "" || resp.Invoice == "" {
		return "", "", fmt.Errorf("%w: invoice response missing fields", ErrUpstream)
	}
	return resp.OperationID, resp.Invoice, nil
}

type awaitInvoiceRequest struct {
	OperationID string `json:"operationId"`
}

// SubscribeReceive implements Invoicer. The daemon exposes settlement as a
// blocking await endpoint rather than a push stream, so the subscription is
// a long-poll loop that forwards each observed state exactly once and closes
// the channel after a terminal update.
func (c *Client) SubscribeReceive(ctx context.Context, opID string) (<-chan ReceiveUpdate, error) {
	// Probe once synchronously so a bad operation id fails the caller
	// instead of a detached goroutine.
	first, err := c.awaitReceive(ctx, opID)
	if err != nil {
		return nil, err
	}

	ch := make(chan ReceiveUpdate, 1)
	ch <- first

	go func() {
		defer close(ch)
		last := first
		for !last.Terminal() {
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.pollInterval):
			}
			upd, err := c.awaitReceive(ctx, opID)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Warn().Err(err).Str("operation_id", opID).Msg("receive poll failed, retrying")
				continue
			}
			if upd.State != last.State {
				last = upd
				select {
				case ch <- upd:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return ch, nil
}

func (c *Client) awaitReceive(ctx context.Context, opID string) (ReceiveUpdate, error) {
	var resp ReceiveUpdate
	if err := c.post(ctx, "/v2/ln/await-invoice", awaitInvoiceRequest{OperationID: opID}, &resp); err != nil {
		return ReceiveUpdate{}, err
	}
	if resp.State == "" {
		return ReceiveUpdate{}, fmt.Errorf("%w: await response missing state", ErrUpstream)
	}
	return resp, nil
}

type spendNotesRequest struct {
	AmountMsat  int64 `json:"amountMsat"`
	TimeoutSecs int64 `json:"timeoutSecs"`
}

type spendNotesResponse struct {
	OperationID string `json:"operationId"`
	Notes       string `json:"notes"`
}

// SpendNotes implements Minter.
func (c *Client) SpendNotes(ctx context.Context, amountMsat int64, validity time.Duration) (string, string, error) {
	var resp spendNotesResponse
	err := c.post(ctx, "/v2/mint/spend", spendNotesRequest{
		AmountMsat:  amountMsat,
		TimeoutSecs: int64(validity.Seconds()),
	}, &resp)
	if err != nil {
		return "", "", err
	}
	if resp.OperationID == "" || resp.Notes == "" {
		return "", "", fmt.Errorf("%w: spend response missing fields", ErrUpstream)
	}
	return resp.OperationID, resp.Notes, nil
}

// post sends a JSON request and decodes the JSON response into out.
// Non-2xx statuses and transport failures are wrapped in ErrUpstream.
func (c *Client) post(ctx context.Context, path string, body, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", ErrUpstream, path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("%w: build %s: %v", ErrUpstream, path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.password != "" {
		req.Header.Set("Authorization", "Bearer "+c.password)
	}

	res, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUpstream, path, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return fmt.Errorf("%w: %s returned %d: %s", ErrUpstream, path, res.StatusCode, bytes.TrimSpace(msg))
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrUpstream, path, err)
	}
	return nil
}
