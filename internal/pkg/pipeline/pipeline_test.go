package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sbsbridge/claimbridge/app/models"
	"github.com/sbsbridge/claimbridge/app/repository"
	"github.com/sbsbridge/claimbridge/internal/pkg/bridge"
	"github.com/sbsbridge/claimbridge/internal/pkg/claimerr"
	"github.com/sbsbridge/claimbridge/internal/pkg/normalizer"
	"github.com/sbsbridge/claimbridge/internal/pkg/pricing"
	"github.com/sbsbridge/claimbridge/internal/pkg/signer"
)

type mapNormalizer map[string]string

func (m mapNormalizer) Normalize(_ context.Context, _ uint, code, _ string) (*normalizer.Result, error) {
	canonical, ok := m[code]
	if !ok {
		return nil, claimerr.New(claimerr.KindMappingNotFound, "%s", code)
	}
	return &normalizer.Result{CanonicalCode: canonical, Confidence: 1, Source: models.MappingSourceManual}, nil
}

type flatPricer struct {
	calls int
	err   error
}

func (p *flatPricer) Price(_ context.Context, c pricing.Claim) (*pricing.PricedClaim, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	out := &pricing.PricedClaim{FacilityID: c.FacilityID, FacilityTier: 1, Currency: "SAR", Total: decimal.Zero}
	for _, l := range c.Lines {
		price := decimal.NewFromInt(100)
		out.Lines = append(out.Lines, pricing.PricedLine{
			Sequence: l.Sequence, CanonicalCode: l.CanonicalCode, Quantity: l.Quantity,
			UnitPrice: price, BasePrice: price, NetPrice: price,
		})
		out.Total = out.Total.Add(price)
	}
	return out, nil
}

type recordingSigner struct {
	payload []byte
	err     error
}

func (s *recordingSigner) Sign(_ context.Context, _ uint, payload []byte) (*signer.Signature, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.payload = payload
	return &signer.Signature{Signature: "c2ln", Algorithm: signer.Algorithm, CertificateSerial: "S-1"}, nil
}

type okExchange struct {
	mu   sync.Mutex
	reqs []bridge.SubmitRequest
}

func (e *okExchange) Submit(_ context.Context, req bridge.SubmitRequest) (*bridge.ExchangeResponse, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reqs = append(e.reqs, req)
	return &bridge.ExchangeResponse{StatusCode: 201, Body: []byte(`{"id":"NPH-1","outcome":"complete"}`)}, nil
}

type fixture struct {
	pipeline *Pipeline
	pricer   *flatPricer
	signer   *recordingSigner
	exchange *okExchange
	ledger   *repository.MemoryTransactionRepository
}

func newFixture() *fixture {
	f := &fixture{
		pricer:   &flatPricer{},
		signer:   &recordingSigner{},
		exchange: &okExchange{},
		ledger:   repository.NewMemoryTransactionRepository(),
	}
	b := bridge.New(f.ledger, f.exchange, bridge.DefaultConfig())
	norm := mapNormalizer{"LAB-CBC-01": "SBS-LAB-001", "RAD-CXR": "SBS-RAD-001"}
	f.pipeline = New(norm, f.pricer, f.signer, b, "http://facility-1")
	return f
}

func request() Request {
	return Request{FacilityID: 1, Items: []Item{
		{InternalCode: "LAB-CBC-01", Description: "Complete Blood Count", Quantity: 1},
		{Sequence: 5, InternalCode: " RAD-CXR ", Description: "Chest X-ray"},
	}}
}

func TestProcess_EndToEnd(t *testing.T) {
	f := newFixture()

	res, err := f.pipeline.Process(context.Background(), request())
	require.NoError(t, err)

	require.Len(t, res.Normalized, 2)
	assert.Equal(t, 1, res.Normalized[0].Sequence)
	assert.Equal(t, "SBS-LAB-001", res.Normalized[0].CanonicalCode)
	assert.Equal(t, 5, res.Normalized[1].Sequence)
	assert.Equal(t, "RAD-CXR", res.Normalized[1].InternalCode)

	assert.Equal(t, "200", res.Priced.Total.String())
	require.NotNil(t, res.Transaction)
	assert.Equal(t, models.TransactionStatusSubmittedAccepted, res.Transaction.Status)
	assert.Equal(t, res.Transaction.TransactionUUID, res.Claim.ID)

	require.Len(t, f.exchange.reqs, 1)
	sent := f.exchange.reqs[0]
	assert.Equal(t, f.signer.payload, sent.Payload, "the exchange receives exactly the signed bytes")
	assert.Equal(t, "c2ln", sent.Signature)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(sent.Payload, &doc))
	assert.Equal(t, "Bundle", doc["resourceType"])
	assert.Equal(t, res.Transaction.TransactionUUID, doc["id"])
}

func TestProcess_StageFailureLeavesLedgerUntouched(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*fixture, *Request)
		wantErr error
	}{
		{
			name:    "unmapped code",
			mutate:  func(_ *fixture, r *Request) { r.Items[1].InternalCode = "UNKNOWN" },
			wantErr: claimerr.ErrMappingNotFound,
		},
		{
			name:    "pricing failure",
			mutate:  func(f *fixture, _ *Request) { f.pricer.err = claimerr.New(claimerr.KindInvalidFacility, "facility 1") },
			wantErr: claimerr.ErrInvalidFacility,
		},
		{
			name:    "expired certificate",
			mutate:  func(f *fixture, _ *Request) { f.signer.err = claimerr.New(claimerr.KindExpiredCertificate, "expired") },
			wantErr: claimerr.ErrExpiredCertificate,
		},
		{
			name:    "invalid request",
			mutate:  func(_ *fixture, r *Request) { r.Items = nil },
			wantErr: claimerr.ErrInvalidPayload,
		},
		{
			name:    "bad transaction uuid",
			mutate:  func(_ *fixture, r *Request) { r.TransactionUUID = "nope" },
			wantErr: claimerr.ErrInvalidPayload,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			req := request()
			tt.mutate(f, &req)

			res, err := f.pipeline.Process(context.Background(), req)
			assert.Nil(t, res)
			assert.ErrorIs(t, err, tt.wantErr)

			rows, err := f.ledger.ListByFacility(context.Background(), 1, 0)
			require.NoError(t, err)
			assert.Empty(t, rows)
			assert.Empty(t, f.exchange.reqs)
		})
	}
}

func TestProcess_UnmappedCodeSkipsPricing(t *testing.T) {
	f := newFixture()
	req := request()
	req.Items[0].InternalCode = "UNKNOWN"

	_, err := f.pipeline.Process(context.Background(), req)
	require.Error(t, err)
	assert.Zero(t, f.pricer.calls)
}

type stillRunning struct{}

func (stillRunning) Submit(_ context.Context, c bridge.SignedClaim) (*models.Transaction, error) {
	return &models.Transaction{TransactionUUID: c.TransactionUUID, Status: models.TransactionStatusRetrying},
		errors.Join(bridge.ErrStillRunning, context.DeadlineExceeded)
}

func TestProcess_StillRunningKeepsResult(t *testing.T) {
	p := New(mapNormalizer{"LAB-CBC-01": "SBS-LAB-001", "RAD-CXR": "SBS-RAD-001"}, &flatPricer{}, &recordingSigner{}, stillRunning{}, "")

	res, err := p.Process(context.Background(), request())
	assert.ErrorIs(t, err, bridge.ErrStillRunning)
	require.NotNil(t, res)
	assert.Equal(t, models.TransactionStatusRetrying, res.Transaction.Status)
}
