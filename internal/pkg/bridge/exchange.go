package bridge

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
)

// maxResponseBody bounds how much of an exchange response is kept.
const maxResponseBody = 1 << 20

// SubmitRequest is one attempt's payload.
type SubmitRequest struct {
	TransactionUUID string
	FacilityID      uint
	Payload         []byte
	Signature       string
}

// ExchangeResponse is the raw answer of the exchange.
type ExchangeResponse struct {
	StatusCode int
	Body       []byte
}

// Exchange sends a signed claim to the external claims exchange. A returned
// error means no HTTP response was obtained.
type Exchange interface {
	Submit(ctx context.Context, req SubmitRequest) (*ExchangeResponse, error)
}

// HTTPExchange posts FHIR bundles to the NPHIES endpoint.
type HTTPExchange struct {
	url    string
	token  string
	client *http.Client
}

func NewHTTPExchange(url, token string, client *http.Client) *HTTPExchange {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPExchange{url: url, token: token, client: client}
}

func (e *HTTPExchange) Submit(ctx context.Context, req SubmitRequest) (*ExchangeResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(req.Payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/fhir+json")
	httpReq.Header.Set("Accept", "application/fhir+json")
	httpReq.Header.Set("X-Transaction-ID", req.TransactionUUID)
	httpReq.Header.Set("X-Facility-ID", strconv.FormatUint(uint64(req.FacilityID), 10))
	httpReq.Header.Set("X-Signature", req.Signature)
	if e.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+e.token)
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return &ExchangeResponse{StatusCode: resp.StatusCode, Body: body}, nil
}
