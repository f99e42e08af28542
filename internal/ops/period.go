package ops

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/veloxpay/velox_ledger/internal/period"
)

type createPeriodRequest struct {
	Tenant string `json:"tenant"`
	Type   string `json:"type"`
	Start  string `json:"start"`
	End    string `json:"end"`
	Actor  string `json:"actor"`
}

type closePeriodRequest struct {
	Target string `json:"target"`
	Actor  string `json:"actor"`
	Notes  string `json:"notes"`
}

func registerPeriodRoutes(api fiber.Router, svc *period.Service) {
	api.Post("/periods", func(c *fiber.Ctx) error {
		var req createPeriodRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		start, err := parseDate(req.Start)
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, "invalid start")
		}
		end, err := parseDate(req.End)
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, "invalid end")
		}
		p, err := svc.Create(c.UserContext(), period.CreateInput{
			Tenant: req.Tenant,
			Type:   period.Type(req.Type),
			Start:  start,
			End:    end,
			Actor:  req.Actor,
		})
		if err != nil {
			return fail(err)
		}
		return c.Status(http.StatusCreated).JSON(renderPeriod(p))
	})

	api.Post("/periods/:id/close", func(c *fiber.Ctx) error {
		var req closePeriodRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		p, err := svc.Close(c.UserContext(), period.CloseInput{
			PeriodID: c.Params("id"),
			Target:   period.Status(req.Target),
			Actor:    req.Actor,
			Notes:    req.Notes,
		})
		if err != nil {
			return fail(err)
		}
		return c.JSON(renderPeriod(p))
	})

	// Dry-run posting admissibility for a date, used by back-office tooling
	// before submitting a batch. Registered before /periods/:id so the
	// literal path wins.
	api.Get("/periods/decision", func(c *fiber.Ctx) error {
		tenant := c.Query("tenant")
		if tenant == "" {
			return fiber.NewError(http.StatusBadRequest, "tenant is required")
		}
		date, err := parseDate(c.Query("date"))
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, "invalid date")
		}
		decision, err := svc.CheckPosting(c.UserContext(), tenant, date, period.Type(c.Query("type")))
		if err != nil {
			return fail(err)
		}
		return c.JSON(fiber.Map{"tenant": tenant, "date": date, "decision": decision})
	})

	api.Get("/periods/:id", func(c *fiber.Ctx) error {
		p, err := svc.Get(c.UserContext(), c.Params("id"))
		if err != nil {
			return fail(err)
		}
		return c.JSON(renderPeriod(p))
	})
}

func renderPeriod(p period.Period) fiber.Map {
	out := fiber.Map{
		"id":         p.ID,
		"tenant":     p.Tenant,
		"type":       p.Type,
		"start":      p.Start,
		"end":        p.End,
		"status":     p.Status,
		"created_at": p.CreatedAt,
	}
	if p.ClosedBy != "" {
		out["closed_by"] = p.ClosedBy
		out["closed_at"] = p.ClosedAt
		out["notes"] = p.Notes
	}
	return out
}
