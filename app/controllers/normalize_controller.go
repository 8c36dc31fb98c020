package controllers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/sbsbridge/claimbridge/internal/pkg/normalizer"
)

type CodeNormalizer interface {
	Normalize(ctx context.Context, facilityID uint, internalCode, description string) (*normalizer.Result, error)
}

// NormalizeController translates facility-local codes.
type NormalizeController struct {
	normalizer CodeNormalizer
}

func NewNormalizeController(n CodeNormalizer) *NormalizeController {
	return &NormalizeController{normalizer: n}
}

type normalizeRequest struct {
	FacilityID   uint   `json:"facility_id" validate:"required"`
	InternalCode string `json:"internal_code" validate:"required"`
	Description  string `json:"description"`
}

// HandleNormalize returns {sbs_mapped_code, confidence, mapping_source}.
func (nc *NormalizeController) HandleNormalize(c *fiber.Ctx) error {
	var req normalizeRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}

	res, err := nc.normalizer.Normalize(c.UserContext(), req.FacilityID, req.InternalCode, req.Description)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(res)
}
