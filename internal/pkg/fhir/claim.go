// Package fhir holds the FHIR-shaped claim documents exchanged on the HTTP
// surface and sent to the exchange.
package fhir

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/sbsbridge/claimbridge/internal/pkg/claimerr"
	"github.com/sbsbridge/claimbridge/internal/pkg/pricing"
)

// ExtensionBase prefixes every extension URL this service emits.
const ExtensionBase = "http://sbs.sa/fhir/StructureDefinition/"

const (
	ExtBasePrice     = ExtensionBase + "base_price"
	ExtMarkupApplied = ExtensionBase + "markup_applied"
	ExtFacilityTier  = ExtensionBase + "facility_tier"
	ExtBundleApplied = ExtensionBase + "bundle_applied"
	ExtBundleCode    = ExtensionBase + "bundle_code"

	// CodeSystemSBS identifies canonical catalog codes.
	CodeSystemSBS = "http://sbs.sa/CodeSystem/sbs"
)

type Coding struct {
	System  string `json:"system,omitempty"`
	Code    string `json:"code"`
	Display string `json:"display,omitempty"`
}

type CodeableConcept struct {
	Coding []Coding `json:"coding"`
	Text   string   `json:"text,omitempty"`
}

type Quantity struct {
	Value int `json:"value"`
}

// Money renders amounts with the currency's fixed number of decimals.
type Money struct {
	Value    json.Number `json:"value"`
	Currency string      `json:"currency"`
}

type Extension struct {
	URL          string      `json:"url"`
	ValueMoney   *Money      `json:"valueMoney,omitempty"`
	ValueDecimal json.Number `json:"valueDecimal,omitempty"`
	ValueInteger *int        `json:"valueInteger,omitempty"`
	ValueBoolean *bool       `json:"valueBoolean,omitempty"`
	ValueString  string      `json:"valueString,omitempty"`
}

type Item struct {
	Sequence         int             `json:"sequence"`
	ProductOrService CodeableConcept `json:"productOrService"`
	Quantity         *Quantity       `json:"quantity,omitempty"`
	UnitPrice        *Money          `json:"unitPrice,omitempty"`
	Net              *Money          `json:"net,omitempty"`
	Extension        []Extension     `json:"extension,omitempty"`
}

// Claim is the subset of the FHIR Claim resource the service reads and
// writes.
type Claim struct {
	ResourceType string      `json:"resourceType,omitempty"`
	ID           string      `json:"id,omitempty"`
	FacilityID   uint        `json:"facility_id"`
	Item         []Item      `json:"item"`
	Total        *Money      `json:"total,omitempty"`
	Extension    []Extension `json:"extension,omitempty"`
}

// NewMoney formats d with the minor unit of currency.
func NewMoney(d decimal.Decimal, currency string) *Money {
	return &Money{Value: json.Number(d.StringFixed(pricing.MinorUnits(currency))), Currency: currency}
}

// Code returns the first coding's code, trimmed.
func (i Item) Code() string {
	for _, c := range i.ProductOrService.Coding {
		if code := strings.TrimSpace(c.Code); code != "" {
			return code
		}
	}
	return ""
}

// PricingClaim converts the claim items into engine input. A missing
// quantity is left at zero, which the engine prices as one.
func (c *Claim) PricingClaim() (pricing.Claim, error) {
	if c.FacilityID == 0 {
		return pricing.Claim{}, claimerr.New(claimerr.KindInvalidPayload, "facility_id is required")
	}
	if len(c.Item) == 0 {
		return pricing.Claim{}, claimerr.New(claimerr.KindInvalidPayload, "claim has no items")
	}

	out := pricing.Claim{FacilityID: c.FacilityID, Lines: make([]pricing.Line, 0, len(c.Item))}
	for idx, item := range c.Item {
		code := item.Code()
		if code == "" {
			return pricing.Claim{}, claimerr.New(claimerr.KindInvalidPayload, "item %d has no productOrService code", idx+1)
		}
		qty := 0
		if item.Quantity != nil {
			qty = item.Quantity.Value
		}
		if qty < 0 {
			return pricing.Claim{}, claimerr.New(claimerr.KindInvalidPayload, "item %d has a negative quantity", idx+1)
		}
		seq := item.Sequence
		if seq == 0 {
			seq = idx + 1
		}
		out.Lines = append(out.Lines, pricing.Line{Sequence: seq, CanonicalCode: code, Quantity: qty})
	}
	return out, nil
}

// FromPriced renders a priced claim as a FHIR Claim with per-item prices,
// the total and the pricing extensions.
func FromPriced(id string, priced *pricing.PricedClaim) *Claim {
	cur := priced.Currency
	tier := priced.FacilityTier

	claim := &Claim{
		ResourceType: "Claim",
		ID:           id,
		FacilityID:   priced.FacilityID,
		Item:         make([]Item, 0, len(priced.Lines)),
		Total:        NewMoney(priced.Total, cur),
		Extension: []Extension{
			{URL: ExtFacilityTier, ValueInteger: &tier},
			{URL: ExtMarkupApplied, ValueDecimal: json.Number(priced.MarkupPercentage.String())},
		},
	}
	if priced.Bundle != nil {
		claim.Extension = append(claim.Extension, Extension{URL: ExtBundleCode, ValueString: priced.Bundle.BundleCode})
	}

	for _, line := range priced.Lines {
		bundled := line.BundleApplied
		item := Item{
			Sequence: line.Sequence,
			ProductOrService: CodeableConcept{
				Coding: []Coding{{System: CodeSystemSBS, Code: line.CanonicalCode}},
			},
			Quantity:  &Quantity{Value: line.Quantity},
			UnitPrice: NewMoney(line.UnitPrice, cur),
			Net:       NewMoney(line.NetPrice, cur),
			Extension: []Extension{
				{URL: ExtBasePrice, ValueMoney: NewMoney(line.BasePrice, cur)},
				{URL: ExtMarkupApplied, ValueDecimal: json.Number(line.MarkupApplied.String())},
				{URL: ExtFacilityTier, ValueInteger: &tier},
				{URL: ExtBundleApplied, ValueBoolean: &bundled},
			},
		}
		if line.BundleCode != "" {
			item.Extension = append(item.Extension, Extension{URL: ExtBundleCode, ValueString: line.BundleCode})
		}
		claim.Item = append(claim.Item, item)
	}
	return claim
}
