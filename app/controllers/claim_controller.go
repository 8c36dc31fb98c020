package controllers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/sbsbridge/claimbridge/internal/pkg/bridge"
	"github.com/sbsbridge/claimbridge/internal/pkg/pipeline"
)

type ClaimProcessor interface {
	Process(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

// ClaimController runs whole claims through the pipeline.
type ClaimController struct {
	processor   ClaimProcessor
	waitTimeout time.Duration
}

func NewClaimController(p ClaimProcessor, waitTimeout time.Duration) *ClaimController {
	return &ClaimController{processor: p, waitTimeout: waitTimeout}
}

// HandleProcessClaim returns {normalized, priced, claim, signature,
// transaction}.
func (cc *ClaimController) HandleProcessClaim(c *fiber.Ctx) error {
	var req pipeline.Request
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}

	ctx := c.UserContext()
	if cc.waitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cc.waitTimeout)
		defer cancel()
	}

	res, err := cc.processor.Process(ctx, req)
	if err != nil {
		if errors.Is(err, bridge.ErrStillRunning) && res != nil {
			return c.Status(fiber.StatusAccepted).JSON(claimResponse(res))
		}
		return respondError(c, err)
	}
	return c.JSON(claimResponse(res))
}

func claimResponse(res *pipeline.Result) fiber.Map {
	out := fiber.Map{
		"normalized": res.Normalized,
		"priced":     res.Priced,
		"claim":      res.Claim,
		"signature":  res.Signature,
	}
	if res.Transaction != nil {
		out["transaction"] = transactionResponse(res.Transaction)
	}
	return out
}
