package ops

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/veloxpay/velox_ledger/internal/override"
)

// The override log is append-only and written by the posting path; the
// operator surface only reads it.
func registerOverrideRoutes(api fiber.Router, svc *override.Service) {
	api.Get("/overrides", func(c *fiber.Ctx) error {
		entityRef := c.Query("entity_ref")
		if entityRef == "" {
			return fiber.NewError(http.StatusBadRequest, "entity_ref is required")
		}
		records, err := svc.ListByEntity(c.UserContext(), entityRef)
		if err != nil {
			return fail(err)
		}
		out := make([]fiber.Map, 0, len(records))
		for _, rec := range records {
			m := fiber.Map{
				"id":            rec.ID,
				"type":          rec.Type,
				"justification": rec.Justification,
				"entity_ref":    rec.EntityRef,
				"actor":         rec.Actor,
				"role":          rec.Role,
				"outcome":       rec.Outcome,
				"created_at":    rec.CreatedAt,
			}
			if rec.DenialReason != "" {
				m["denial_reason"] = rec.DenialReason
			}
			out = append(out, m)
		}
		return c.JSON(fiber.Map{"entity_ref": entityRef, "overrides": out})
	})
}
