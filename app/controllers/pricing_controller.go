package controllers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/sbsbridge/claimbridge/internal/pkg/fhir"
	"github.com/sbsbridge/claimbridge/internal/pkg/pricing"
)

type ClaimPricer interface {
	Price(ctx context.Context, claim pricing.Claim) (*pricing.PricedClaim, error)
}

// PricingController prices FHIR-shaped claims.
type PricingController struct {
	pricer ClaimPricer
}

func NewPricingController(p ClaimPricer) *PricingController {
	return &PricingController{pricer: p}
}

// HandleValidate prices the claim items and returns the claim with
// unitPrice, net, total and the pricing extensions.
func (pc *PricingController) HandleValidate(c *fiber.Ctx) error {
	var claim fhir.Claim
	if err := parseBody(c, &claim); err != nil {
		return respondError(c, err)
	}
	in, err := claim.PricingClaim()
	if err != nil {
		return respondError(c, err)
	}

	priced, err := pc.pricer.Price(c.UserContext(), in)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fhir.FromPriced(claim.ID, priced))
}
