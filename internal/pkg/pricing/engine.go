// Package pricing is the financial rule engine: it prices normalized claim
// lines from the catalog, applies facility tier markup and substitutes the
// best matching bundle.
package pricing

import (
	"context"
	"errors"
	"sort"

	"github.com/gofiber/fiber/v2/log"
	"github.com/shopspring/decimal"

	"github.com/sbsbridge/claimbridge/app/models"
	"github.com/sbsbridge/claimbridge/app/repository"
	"github.com/sbsbridge/claimbridge/internal/pkg/claimerr"
)

// Line is one normalized claim line.
type Line struct {
	Sequence      int
	CanonicalCode string
	Quantity      int
}

// Claim is a normalized claim ready to be priced.
type Claim struct {
	FacilityID uint
	Lines      []Line
}

// PricedLine carries the prices of one line. BasePrice is unit price times
// quantity; NetPrice is what the facility bills for the line.
type PricedLine struct {
	Sequence      int             `json:"sequence"`
	CanonicalCode string          `json:"canonical_code"`
	Quantity      int             `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	BasePrice     decimal.Decimal `json:"base_price"`
	NetPrice      decimal.Decimal `json:"net_price"`
	MarkupApplied decimal.Decimal `json:"markup_applied"`
	BundleApplied bool            `json:"bundle_applied"`
	BundleCode    string          `json:"bundle_code,omitempty"`
}

// AppliedBundle describes the bundle substituted into the claim.
type AppliedBundle struct {
	BundleCode string          `json:"bundle_code"`
	Price      decimal.Decimal `json:"price"`
	Codes      []string        `json:"codes"`
}

// PricedClaim is the engine output.
type PricedClaim struct {
	FacilityID       uint            `json:"facility_id"`
	FacilityTier     int             `json:"facility_tier"`
	MarkupPercentage decimal.Decimal `json:"markup_percentage"`
	Currency         string          `json:"currency"`
	Lines            []PricedLine    `json:"lines"`
	Bundle           *AppliedBundle  `json:"bundle,omitempty"`
	Total            decimal.Decimal `json:"total"`
}

// Engine prices claims against the catalog and facility profiles.
type Engine struct {
	catalog    repository.CatalogRepository
	facilities repository.FacilityRepository
}

func NewEngine(catalog repository.CatalogRepository, facilities repository.FacilityRepository) *Engine {
	return &Engine{catalog: catalog, facilities: facilities}
}

func (e *Engine) Price(ctx context.Context, claim Claim) (*PricedClaim, error) {
	if len(claim.Lines) == 0 {
		return nil, claimerr.New(claimerr.KindInvalidPayload, "claim has no lines")
	}

	codes := make([]string, 0, len(claim.Lines))
	seen := make(map[string]bool, len(claim.Lines))
	for _, l := range claim.Lines {
		if l.CanonicalCode == "" {
			return nil, claimerr.New(claimerr.KindInvalidPayload, "line %d has no code", l.Sequence)
		}
		if l.Quantity < 0 {
			return nil, claimerr.New(claimerr.KindInvalidPayload, "line %d has negative quantity", l.Sequence)
		}
		if !seen[l.CanonicalCode] {
			seen[l.CanonicalCode] = true
			codes = append(codes, l.CanonicalCode)
		}
	}

	entries, err := e.catalog.GetByCodes(ctx, codes)
	if err != nil {
		return nil, err
	}
	for _, code := range codes {
		if _, ok := entries[code]; !ok {
			return nil, claimerr.New(claimerr.KindUnknownServiceCode, "service code %s is not in the catalog", code)
		}
	}

	profile, err := e.facilities.GetProfile(ctx, claim.FacilityID)
	if err != nil {
		if errors.Is(err, claimerr.ErrNotFound) {
			return nil, claimerr.Wrap(claimerr.KindInvalidFacility, err, "facility %d", claim.FacilityID)
		}
		return nil, err
	}

	currency := entries[codes[0]].Currency
	for _, code := range codes[1:] {
		if entries[code].Currency != currency {
			return nil, claimerr.New(claimerr.KindInvalidPayload, "claim mixes currencies %s and %s", currency, entries[code].Currency)
		}
	}

	lines := make([]PricedLine, len(claim.Lines))
	for i, l := range claim.Lines {
		qty := l.Quantity
		if qty == 0 {
			qty = 1
		}
		unit := entries[l.CanonicalCode].BasePrice
		lines[i] = PricedLine{
			Sequence:      l.Sequence,
			CanonicalCode: l.CanonicalCode,
			Quantity:      qty,
			UnitPrice:     unit,
			BasePrice:     unit.Mul(decimal.NewFromInt(int64(qty))),
		}
	}

	rules, err := e.catalog.ListBundleRules(ctx)
	if err != nil {
		return nil, err
	}

	best := selectBundle(rules, lines, seen, profile.MarkupPercentage, currency)
	priced := &PricedClaim{
		FacilityID:       claim.FacilityID,
		FacilityTier:     profile.Tier,
		MarkupPercentage: profile.MarkupPercentage,
		Currency:         currency,
		Lines:            lines,
	}
	var covered map[int]decimal.Decimal
	if best != nil {
		covered = best.shares
		priced.Bundle = &AppliedBundle{
			BundleCode: best.rule.Bundle.BundleCode,
			Price:      best.price,
			Codes:      best.rule.Codes,
		}
		log.Debugf("[Pricing] facility %d: bundle %s applied", claim.FacilityID, best.rule.Bundle.BundleCode)
	}

	total := decimal.Zero
	for i := range lines {
		if share, ok := covered[i]; ok {
			lines[i].NetPrice = share
			lines[i].MarkupApplied = decimal.Zero
			lines[i].BundleApplied = true
			lines[i].BundleCode = best.rule.Bundle.BundleCode
		} else {
			lines[i].NetPrice = ApplyMarkup(lines[i].BasePrice, profile.MarkupPercentage, currency)
			lines[i].MarkupApplied = profile.MarkupPercentage
		}
		total = total.Add(lines[i].NetPrice)
	}
	priced.Total = RoundHalfUp(total, currency)
	return priced, nil
}

type bundleCandidate struct {
	rule   models.BundleRule
	price  decimal.Decimal
	total  decimal.Decimal
	shares map[int]decimal.Decimal
}

// selectBundle evaluates every bundle whose code set is contained in the
// claim and picks the largest set, then the lowest resulting total, then the
// lowest bundle code.
func selectBundle(rules []models.BundleRule, lines []PricedLine, claimCodes map[string]bool, markup decimal.Decimal, currency string) *bundleCandidate {
	var candidates []bundleCandidate
	for _, rule := range rules {
		if len(rule.Codes) == 0 || rule.Bundle.Currency != currency || !subset(rule.Codes, claimCodes) {
			continue
		}
		candidates = append(candidates, evaluate(rule, lines, markup, currency))
	}
	if len(candidates) == 0 {
		return nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if len(a.rule.Codes) != len(b.rule.Codes) {
			return len(a.rule.Codes) > len(b.rule.Codes)
		}
		if !a.total.Equal(b.total) {
			return a.total.LessThan(b.total)
		}
		if a.rule.Bundle.BundleCode != b.rule.Bundle.BundleCode {
			return a.rule.Bundle.BundleCode < b.rule.Bundle.BundleCode
		}
		return a.rule.Bundle.ID < b.rule.Bundle.ID
	})
	return &candidates[0]
}

// evaluate prices the claim as if rule were applied. Only the first line of
// each bundle code is covered; repeats are billed normally.
func evaluate(rule models.BundleRule, lines []PricedLine, markup decimal.Decimal, currency string) bundleCandidate {
	inBundle := make(map[string]bool, len(rule.Codes))
	for _, c := range rule.Codes {
		inBundle[c] = true
	}

	var idx []int
	var weights []decimal.Decimal
	uncovered := decimal.Zero
	for i, l := range lines {
		if inBundle[l.CanonicalCode] {
			inBundle[l.CanonicalCode] = false
			idx = append(idx, i)
			weights = append(weights, l.BasePrice)
			continue
		}
		uncovered = uncovered.Add(ApplyMarkup(l.BasePrice, markup, currency))
	}

	price := RoundHalfUp(rule.Bundle.BundlePrice, currency)
	shares := make(map[int]decimal.Decimal, len(idx))
	for k, share := range allocate(price, weights, currency) {
		shares[idx[k]] = share
	}
	return bundleCandidate{
		rule:   rule,
		price:  price,
		total:  price.Add(uncovered),
		shares: shares,
	}
}

func subset(codes []string, set map[string]bool) bool {
	for _, c := range codes {
		if !set[c] {
			return false
		}
	}
	return true
}
