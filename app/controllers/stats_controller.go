package controllers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/sbsbridge/claimbridge/internal/pkg/claimerr"
)

type CounterSnapshotter interface {
	Snapshot(ctx context.Context) (map[string]int64, error)
}

// StatsController reports submission counters.
type StatsController struct {
	counters CounterSnapshotter
}

func NewStatsController(c CounterSnapshotter) *StatsController {
	return &StatsController{counters: c}
}

func (sc *StatsController) HandleSubmissionStats(c *fiber.Ctx) error {
	snap, err := sc.counters.Snapshot(c.UserContext())
	if err != nil {
		return respondError(c, claimerr.Wrap(claimerr.KindServiceUnavailable, err, "counters"))
	}
	return c.JSON(fiber.Map{"submissions": snap})
}
