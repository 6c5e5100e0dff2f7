package bid

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"fuelflow/auth"
)

// FailureKind classifies an outbound submission failure so the caller can
// distinguish "counterpart unavailable" from "counterpart rejected".
type FailureKind string

const (
	FailureTimeout     FailureKind = "timeout"
	FailureUnavailable FailureKind = "unavailable"
	FailureRejected    FailureKind = "rejected"
)

// SubmitError is the typed failure result of a submission. The client never
// retries; the UI layer decides what to do with the classified failure.
type SubmitError struct {
	Kind    FailureKind
	Message string
	Status  int
	err     error
}

func (e *SubmitError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("bid: submit %s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("bid: submit %s", e.Kind)
}

func (e *SubmitError) Unwrap() error { return e.err }

// SubmitReceipt is the counterpart's acknowledgement of a submission.
type SubmitReceipt struct {
	BuyerBidID string `json:"bidId"`
	Status     string `json:"status,omitempty"`
}

// Client submits bids to the buyer dashboard. Every call carries both a
// freshly issued token and the static key so counterparts on either side of
// a rolling deployment can authenticate us.
type Client struct {
	baseURL    string
	apiKey     string
	codec      *auth.Codec
	httpClient *http.Client
	timeout    time.Duration
}

// NewClient builds a Client against the counterpart base URL.
func NewClient(baseURL string, codec *auth.Codec, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		codec:      codec,
		httpClient: &http.Client{Timeout: timeout},
		timeout:    timeout,
	}
}

type submitPayload struct {
	ExternalBidID string `json:"externalBidId"`
	LotID         string `json:"lotId"`
	Volume        struct {
		Amount float64 `json:"amount"`
		Unit   string  `json:"unit"`
	} `json:"volume"`
	Pricing struct {
		Price        float64 `json:"price"`
		Currency     string  `json:"currency"`
		PricePerUnit float64 `json:"pricePerUnit"`
	} `json:"pricing"`
}

// Submit sends the bid to the counterpart. On failure the returned error is
// always a *SubmitError.
func (c *Client) Submit(ctx context.Context, b ProducerBid) (SubmitReceipt, error) {
	payload := submitPayload{
		ExternalBidID: b.ExternalBidID,
		LotID:         b.LotID,
	}
	payload.Volume.Amount = b.VolumeAmount
	payload.Volume.Unit = b.VolumeUnit
	payload.Pricing.Price = b.Price
	payload.Pricing.Currency = b.Currency
	payload.Pricing.PricePerUnit = b.PricePerUnit

	body, err := json.Marshal(payload)
	if err != nil {
		return SubmitReceipt{}, &SubmitError{Kind: FailureRejected, Message: "encode payload", err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/bids", bytes.NewReader(body))
	if err != nil {
		return SubmitReceipt{}, &SubmitError{Kind: FailureUnavailable, Message: "build request", err: err}
	}

	token, err := c.codec.Issue(auth.IssueParams{Action: "submit_bid"})
	if err != nil {
		return SubmitReceipt{}, &SubmitError{Kind: FailureRejected, Message: "issue token", err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("X-Source", "producer-dashboard")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return SubmitReceipt{}, classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return SubmitReceipt{}, &SubmitError{
			Kind:    FailureRejected,
			Message: errorMessage(resp),
			Status:  resp.StatusCode,
		}
	}

	var receipt SubmitReceipt
	if err := json.NewDecoder(resp.Body).Decode(&receipt); err != nil {
		// A 2xx with an unreadable body still means the bid landed.
		return SubmitReceipt{}, nil
	}
	return receipt, nil
}

func classifyTransportError(err error) *SubmitError {
	if errors.Is(err, context.DeadlineExceeded) {
		return &SubmitError{Kind: FailureTimeout, Message: "counterpart did not respond in time", err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &SubmitError{Kind: FailureTimeout, Message: "counterpart did not respond in time", err: err}
	}
	return &SubmitError{Kind: FailureUnavailable, Message: "could not reach counterpart", err: err}
}

// errorMessage pulls a human-readable message out of a JSON error body,
// falling back to the HTTP status line.
func errorMessage(resp *http.Response) string {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err == nil && len(raw) > 0 {
		var body struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if json.Unmarshal(raw, &body) == nil {
			if body.Error != "" {
				return body.Error
			}
			if body.Message != "" {
				return body.Message
			}
		}
	}
	return resp.Status
}
