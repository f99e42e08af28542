package ops

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/veloxpay/velox_ledger/internal/reconciliation"
)

type createBatchRequest struct {
	Tenant      string `json:"tenant"`
	Type        string `json:"type"`
	PeriodLabel string `json:"period_label"`
	Source      string `json:"source"`
	Start       string `json:"start"`
	End         string `json:"end"`
	Actor       string `json:"actor"`
}

type externalRecordRequest struct {
	Reference string `json:"reference"`
	Amount    string `json:"amount"`
	Currency  string `json:"currency"`
	Date      string `json:"date"`
}

type reconcileRequest struct {
	Records []externalRecordRequest `json:"records"`
}

type resolveItemRequest struct {
	Status string `json:"status"`
	Notes  string `json:"notes"`
	Actor  string `json:"actor"`
}

func registerReconciliationRoutes(api fiber.Router, svc *reconciliation.Service) {
	api.Post("/recon/batches", func(c *fiber.Ctx) error {
		var req createBatchRequest
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
		batch, err := svc.CreateBatch(c.UserContext(), reconciliation.CreateBatchInput{
			Tenant:      req.Tenant,
			Type:        reconciliation.BatchType(req.Type),
			PeriodLabel: req.PeriodLabel,
			Source:      req.Source,
			Start:       start,
			End:         end,
			Actor:       req.Actor,
		})
		if err != nil {
			return fail(err)
		}
		return c.Status(http.StatusCreated).JSON(renderBatch(batch))
	})

	api.Post("/recon/batches/:id/reconcile", func(c *fiber.Ctx) error {
		var req reconcileRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		records := make([]reconciliation.ExternalRecord, 0, len(req.Records))
		for _, r := range req.Records {
			amount, err := decimal.NewFromString(r.Amount)
			if err != nil {
				return fiber.NewError(http.StatusBadRequest, "invalid record amount")
			}
			rec := reconciliation.ExternalRecord{
				Reference: r.Reference,
				Amount:    amount,
				Currency:  r.Currency,
			}
			if r.Date != "" {
				if rec.Date, err = parseDate(r.Date); err != nil {
					return fiber.NewError(http.StatusBadRequest, "invalid record date")
				}
			}
			records = append(records, rec)
		}
		summary, items, err := svc.Reconcile(c.UserContext(), c.Params("id"), records)
		if err != nil {
			return fail(err)
		}
		out := make([]fiber.Map, 0, len(items))
		for _, it := range items {
			out = append(out, renderItem(it))
		}
		return c.JSON(fiber.Map{
			"summary": fiber.Map{
				"matched":          summary.Matched,
				"missing_internal": summary.MissingInternal,
				"missing_external": summary.MissingExternal,
				"amount_mismatch":  summary.AmountMismatch,
				"duplicate":        summary.Duplicate,
			},
			"items": out,
		})
	})

	api.Get("/recon/batches/:id", func(c *fiber.Ctx) error {
		batch, err := svc.GetBatch(c.UserContext(), c.Params("id"))
		if err != nil {
			return fail(err)
		}
		return c.JSON(renderBatch(batch))
	})

	api.Get("/recon/batches/:id/items", func(c *fiber.Ctx) error {
		items, err := svc.ListItems(c.UserContext(), c.Params("id"))
		if err != nil {
			return fail(err)
		}
		out := make([]fiber.Map, 0, len(items))
		for _, it := range items {
			out = append(out, renderItem(it))
		}
		return c.JSON(fiber.Map{"items": out})
	})

	api.Post("/recon/items/:id/resolve", func(c *fiber.Ctx) error {
		var req resolveItemRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		it, err := svc.ResolveItem(c.UserContext(), c.Params("id"),
			reconciliation.ResolutionStatus(req.Status), req.Notes, req.Actor)
		if err != nil {
			return fail(err)
		}
		return c.JSON(renderItem(it))
	})
}

func renderBatch(b reconciliation.Batch) fiber.Map {
	out := fiber.Map{
		"id":           b.ID,
		"tenant":       b.Tenant,
		"type":         b.Type,
		"period_label": b.PeriodLabel,
		"source":       b.Source,
		"start":        b.Start,
		"end":          b.End,
		"status":       b.Status,
		"created_by":   b.CreatedBy,
		"created_at":   b.CreatedAt,
	}
	if !b.CompletedAt.IsZero() {
		out["completed_at"] = b.CompletedAt
	}
	return out
}

func renderItem(it reconciliation.Item) fiber.Map {
	return fiber.Map{
		"id":                it.ID,
		"batch_id":          it.BatchID,
		"external_ref":      it.ExternalRef,
		"external_amount":   it.ExternalAmount.String(),
		"internal_ref":      it.InternalRef,
		"internal_amount":   it.InternalAmount.String(),
		"currency":          it.Currency,
		"match_status":      it.MatchStatus,
		"resolution_status": it.ResolutionStatus,
		"notes":             it.Notes,
		"resolved_by":       it.ResolvedBy,
	}
}
