// Package pipeline runs a facility claim through normalization, pricing,
// signing and submission in one call.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/sbsbridge/claimbridge/app/models"
	"github.com/sbsbridge/claimbridge/internal/pkg/bridge"
	"github.com/sbsbridge/claimbridge/internal/pkg/claimerr"
	"github.com/sbsbridge/claimbridge/internal/pkg/fhir"
	"github.com/sbsbridge/claimbridge/internal/pkg/normalizer"
	"github.com/sbsbridge/claimbridge/internal/pkg/pricing"
	"github.com/sbsbridge/claimbridge/internal/pkg/signer"
)

// normalizeParallelism bounds concurrent normalizations per claim.
const normalizeParallelism = 4

type Normalizer interface {
	Normalize(ctx context.Context, facilityID uint, internalCode, description string) (*normalizer.Result, error)
}

type Pricer interface {
	Price(ctx context.Context, claim pricing.Claim) (*pricing.PricedClaim, error)
}

type Signer interface {
	Sign(ctx context.Context, facilityID uint, payload []byte) (*signer.Signature, error)
}

type Submitter interface {
	Submit(ctx context.Context, claim bridge.SignedClaim) (*models.Transaction, error)
}

// Item is one facility-local claim line.
type Item struct {
	Sequence     int    `json:"sequence" validate:"gte=0"`
	InternalCode string `json:"internal_code" validate:"required"`
	Description  string `json:"description"`
	Quantity     int    `json:"quantity" validate:"gte=0"`
}

type Request struct {
	FacilityID      uint   `json:"facility_id" validate:"required"`
	TransactionUUID string `json:"transaction_uuid,omitempty" validate:"omitempty,uuid"`
	Items           []Item `json:"items" validate:"required,min=1,dive"`
}

type NormalizedItem struct {
	Sequence     int    `json:"sequence"`
	InternalCode string `json:"internal_code"`
	normalizer.Result
}

// Result reports every stage. Transaction is set once the claim reached
// the ledger.
type Result struct {
	Normalized  []NormalizedItem     `json:"normalized"`
	Priced      *pricing.PricedClaim `json:"priced"`
	Claim       *fhir.Claim          `json:"claim"`
	Signature   *signer.Signature    `json:"signature"`
	Transaction *models.Transaction  `json:"transaction"`
}

type Pipeline struct {
	normalizer Normalizer
	pricer     Pricer
	signer     Signer
	submitter  Submitter
	source     string
	now        func() time.Time
	validate   *validator.Validate
}

// New wires the stages. source is the MessageHeader source endpoint.
func New(n Normalizer, p Pricer, s Signer, sub Submitter, source string) *Pipeline {
	return &Pipeline{
		normalizer: n,
		pricer:     p,
		signer:     s,
		submitter:  sub,
		source:     source,
		now:        time.Now,
		validate:   validator.New(),
	}
}

// Process runs every stage in order. A failure before submission returns
// without writing to the ledger. When the bridge reports
// bridge.ErrStillRunning the result carries the in-flight transaction.
func (p *Pipeline) Process(ctx context.Context, req Request) (*Result, error) {
	if err := p.validate.Struct(req); err != nil {
		return nil, claimerr.Wrap(claimerr.KindInvalidPayload, err, "claim request")
	}
	if req.TransactionUUID == "" {
		req.TransactionUUID = uuid.NewString()
	}

	normalized, err := p.normalize(ctx, req)
	if err != nil {
		return nil, err
	}
	res := &Result{Normalized: normalized}

	lines := make([]pricing.Line, len(normalized))
	for i, n := range normalized {
		lines[i] = pricing.Line{Sequence: n.Sequence, CanonicalCode: n.CanonicalCode, Quantity: req.Items[i].Quantity}
	}
	res.Priced, err = p.pricer.Price(ctx, pricing.Claim{FacilityID: req.FacilityID, Lines: lines})
	if err != nil {
		return nil, err
	}

	res.Claim = fhir.FromPriced(req.TransactionUUID, res.Priced)
	message := fhir.NewClaimMessage(req.TransactionUUID, p.source, res.Claim, p.now())
	raw, err := json.Marshal(message)
	if err != nil {
		return nil, claimerr.Wrap(claimerr.KindInternal, err, "encode claim message")
	}
	payload, err := signer.Canonicalize(raw)
	if err != nil {
		return nil, claimerr.Wrap(claimerr.KindInternal, err, "canonicalize claim message")
	}

	res.Signature, err = p.signer.Sign(ctx, req.FacilityID, payload)
	if err != nil {
		return nil, err
	}

	res.Transaction, err = p.submitter.Submit(ctx, bridge.SignedClaim{
		TransactionUUID: req.TransactionUUID,
		FacilityID:      req.FacilityID,
		Payload:         payload,
		Signature:       res.Signature.Signature,
	})
	if err != nil {
		if errors.Is(err, bridge.ErrStillRunning) && res.Transaction != nil {
			return res, err
		}
		return nil, err
	}
	log.Infof("[Pipeline] facility %d claim %s -> %s", req.FacilityID, req.TransactionUUID, res.Transaction.Status)
	return res, nil
}

func (p *Pipeline) normalize(ctx context.Context, req Request) ([]NormalizedItem, error) {
	out := make([]NormalizedItem, len(req.Items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(normalizeParallelism)
	for i, item := range req.Items {
		seq := item.Sequence
		if seq == 0 {
			seq = i + 1
		}
		code := strings.TrimSpace(item.InternalCode)
		g.Go(func() error {
			r, err := p.normalizer.Normalize(gctx, req.FacilityID, code, item.Description)
			if err != nil {
				return err
			}
			out[i] = NormalizedItem{Sequence: seq, InternalCode: code, Result: *r}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
