package ops

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/veloxpay/velox_ledger/internal/lock"
)

type applyLockRequest struct {
	Type   string `json:"type"`
	Tenant string `json:"tenant"`
	Start  string `json:"start"`
	End    string `json:"end"`
	Reason string `json:"reason"`
	Actor  string `json:"actor"`
}

type releaseLockRequest struct {
	Actor string `json:"actor"`
	Notes string `json:"notes"`
}

func registerLockRoutes(api fiber.Router, svc *lock.Service) {
	api.Post("/locks", func(c *fiber.Ctx) error {
		var req applyLockRequest
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
		l, err := svc.Apply(c.UserContext(), lock.ApplyInput{
			Type:   lock.Type(req.Type),
			Tenant: req.Tenant,
			Start:  start,
			End:    end,
			Reason: req.Reason,
			Actor:  req.Actor,
		})
		if err != nil {
			return fail(err)
		}
		return c.Status(http.StatusCreated).JSON(renderLock(l))
	})

	api.Post("/locks/:id/release", func(c *fiber.Ctx) error {
		var req releaseLockRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		l, err := svc.Release(c.UserContext(), c.Params("id"), req.Actor, req.Notes)
		if err != nil {
			return fail(err)
		}
		return c.JSON(renderLock(l))
	})

	// Registered before /locks/:id so the literal path wins.
	api.Get("/locks/check", func(c *fiber.Ctx) error {
		tenant := c.Query("tenant")
		if tenant == "" {
			return fiber.NewError(http.StatusBadRequest, "tenant is required")
		}
		date, err := parseDate(c.Query("date"))
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, "invalid date")
		}
		res, err := svc.Check(c.UserContext(), tenant, date)
		if err != nil {
			return fail(err)
		}
		locks := make([]fiber.Map, 0, len(res.Locks))
		for _, l := range res.Locks {
			locks = append(locks, renderLock(l))
		}
		return c.JSON(fiber.Map{"locked": res.Locked, "locks": locks})
	})

	api.Get("/locks/:id", func(c *fiber.Ctx) error {
		l, err := svc.Get(c.UserContext(), c.Params("id"))
		if err != nil {
			return fail(err)
		}
		return c.JSON(renderLock(l))
	})
}

func renderLock(l lock.Lock) fiber.Map {
	out := fiber.Map{
		"id":        l.ID,
		"type":      l.Type,
		"tenant":    l.Tenant,
		"start":     l.Start,
		"end":       l.End,
		"status":    l.Status,
		"reason":    l.Reason,
		"locked_by": l.LockedBy,
		"locked_at": l.LockedAt,
	}
	if l.ReleasedBy != "" {
		out["released_by"] = l.ReleasedBy
		out["released_at"] = l.ReleasedAt
		out["notes"] = l.Notes
	}
	return out
}
