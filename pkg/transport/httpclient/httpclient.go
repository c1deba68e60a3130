// Copyright 2025 Certen Protocol
//
// Client is the stdlib net/http implementation of pkg/transport.Transport.
// Grounded on pkg/server's handler style in the teacher repository: plain
// net/http, encoding/json request/response bodies, no router or client
// library -- the pack carries no HTTP client/router dependency anywhere,
// so the stdlib client is the idiom, not a gap (see DESIGN.md). Each
// outbound request carries an X-Request-Id header, the same request-ID
// pattern pkg/server/proof_handlers.go uses via uuid.New() in the teacher.

package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/certen/independant-validator/pkg/codec"
	"github.com/certen/independant-validator/pkg/event"
	"github.com/certen/independant-validator/pkg/transport"
)

// Client talks to a single peer's agent endpoint over HTTP.
type Client struct {
	baseURL string
	hc      *http.Client
}

// New returns a Client targeting baseURL (e.g. "https://witness1.example/agent").
func New(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{baseURL: baseURL, hc: hc}
}

var _ transport.Transport = (*Client)(nil)

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reqBody *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("httpclient: marshal request: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("httpclient: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", uuid.New().String())

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("httpclient: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr apiError
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return classifyError(resp.StatusCode, apiErr)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("httpclient: decode response: %w", err)
	}
	return nil
}

func classifyError(status int, apiErr apiError) error {
	switch apiErr.Code {
	case "UNKNOWN_IDENTIFIER":
		return fmt.Errorf("%w: %s", transport.ErrUnknownIdentifier, apiErr.Message)
	case "MALFORMED_EVENT":
		return fmt.Errorf("%w: %s", transport.ErrMalformedEvent, apiErr.Message)
	case "SIGNATURE_VERIFICATION_FAILED":
		return fmt.Errorf("%w: %s", transport.ErrSignatureVerificationFailed, apiErr.Message)
	case "THRESHOLD_NOT_MET":
		return fmt.Errorf("%w: %s", transport.ErrThresholdNotMet, apiErr.Message)
	case "MISSING_DELEGATOR":
		return fmt.Errorf("%w: %s", transport.ErrMissingDelegator, apiErr.Message)
	case "DUPLICITOUS":
		return fmt.Errorf("%w: %s", transport.ErrDuplicitous, apiErr.Message)
	case "STALE_REPLY":
		return fmt.Errorf("%w: %s", transport.ErrStaleReply, apiErr.Message)
	case "NO_LOCATION_SCHEME":
		return fmt.Errorf("%w: %s", transport.ErrNoLocationScheme, apiErr.Message)
	default:
		return fmt.Errorf("httpclient: peer returned status %d: %s", status, apiErr.Message)
	}
}

// FetchKEL retrieves events for id with sn in [fromSn, toSn].
func (c *Client) FetchKEL(ctx context.Context, id codec.Prefix, fromSn, toSn uint64) ([]*event.KeyEvent, error) {
	idText, err := id.Text()
	if err != nil {
		return nil, err
	}
	path := fmt.Sprintf("/kel/%s?from=%s&to=%s", idText, strconv.FormatUint(fromSn, 10), strconv.FormatUint(toSn, 10))
	var events []*event.KeyEvent
	if err := c.do(ctx, http.MethodGet, path, nil, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// SubmitEvent delivers a locally-produced event with its attached signatures.
func (c *Client) SubmitEvent(ctx context.Context, ev *event.KeyEvent, sigs []codec.IndexedSignature) error {
	payload := struct {
		Event *event.KeyEvent            `json:"event"`
		Sigs  []codec.IndexedSignature `json:"sigs"`
	}{Event: ev, Sigs: sigs}
	return c.do(ctx, http.MethodPost, "/kel/events", payload, nil)
}

// SubmitReceipt delivers a witness or transferable receipt.
func (c *Client) SubmitReceipt(ctx context.Context, r *event.Receipt) error {
	return c.do(ctx, http.MethodPost, "/kel/receipts", r, nil)
}

// FetchKSN retrieves the latest key state notice reply a peer holds for subject.
func (c *Client) FetchKSN(ctx context.Context, subject codec.Prefix) (*event.Reply, error) {
	subjText, err := subject.Text()
	if err != nil {
		return nil, err
	}
	var reply event.Reply
	if err := c.do(ctx, http.MethodGet, "/ksn/"+subjText, nil, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

// PollMailbox retrieves queued messages for id from topic, after cursor.
func (c *Client) PollMailbox(ctx context.Context, id codec.Prefix, topic string, cursor int) ([]event.Exchange, error) {
	idText, err := id.Text()
	if err != nil {
		return nil, err
	}
	path := fmt.Sprintf("/mbx/%s/%s?cursor=%d", idText, topic, cursor)
	var msgs []event.Exchange
	if err := c.do(ctx, http.MethodGet, path, nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}
