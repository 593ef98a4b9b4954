package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/jjenkins/billtracker/internal/service"
)

// MetricsCalculator computes per-congress bill metrics
type MetricsCalculator interface {
	Calculate(ctx context.Context, congress int) (*service.CongressMetrics, error)
}

// StatsHandler returns stage counts for a congress, the latest one by default
func StatsHandler(metrics MetricsCalculator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		congress := c.QueryInt("congress", 0)
		if congress < 0 {
			return jsonError(c, fiber.StatusBadRequest, "Invalid congress")
		}

		m, err := metrics.Calculate(c.UserContext(), congress)
		if err != nil {
			return jsonError(c, fiber.StatusInternalServerError, "Error calculating metrics")
		}
		if m.Congress == 0 {
			return jsonError(c, fiber.StatusNotFound, "No bills stored yet")
		}
		if m.ByStage == nil {
			m.ByStage = []service.StageTotal{}
		}
		return c.JSON(m)
	}
}
