package ops

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/veloxpay/velox_ledger/internal/settlement"
)

type createSettlementRequest struct {
	Tenant          string `json:"tenant"`
	MerchantAccount string `json:"merchant_account"`
	Amount          string `json:"amount"`
	Currency        string `json:"currency"`
}

type confirmSettlementRequest struct {
	BankReference string `json:"bank_reference"`
}

type failSettlementRequest struct {
	Reason string `json:"reason"`
}

func registerSettlementRoutes(api fiber.Router, svc *settlement.Service) {
	api.Post("/settlements", func(c *fiber.Ctx) error {
		var req createSettlementRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		amount, err := decimal.NewFromString(req.Amount)
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, "invalid amount")
		}
		stl, err := svc.Create(c.UserContext(), settlement.CreateInput{
			Tenant:          req.Tenant,
			MerchantAccount: req.MerchantAccount,
			Amount:          amount,
			Currency:        req.Currency,
		})
		if err != nil {
			return fail(err)
		}
		return c.Status(http.StatusCreated).JSON(renderSettlement(stl))
	})

	api.Post("/settlements/:id/reserve", func(c *fiber.Ctx) error {
		stl, err := svc.ReserveFunds(c.UserContext(), c.Params("id"))
		if err != nil {
			return fail(err)
		}
		return c.JSON(renderSettlement(stl))
	})

	api.Post("/settlements/:id/send", func(c *fiber.Ctx) error {
		stl, err := svc.SendToBank(c.UserContext(), c.Params("id"))
		if err != nil {
			return fail(err)
		}
		return c.JSON(renderSettlement(stl))
	})

	api.Post("/settlements/:id/confirm", func(c *fiber.Ctx) error {
		var req confirmSettlementRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		stl, err := svc.ConfirmByBank(c.UserContext(), c.Params("id"), req.BankReference)
		if err != nil {
			return fail(err)
		}
		return c.JSON(renderSettlement(stl))
	})

	api.Post("/settlements/:id/settle", func(c *fiber.Ctx) error {
		stl, err := svc.MarkSettled(c.UserContext(), c.Params("id"))
		if err != nil {
			return fail(err)
		}
		return c.JSON(renderSettlement(stl))
	})

	api.Post("/settlements/:id/fail", func(c *fiber.Ctx) error {
		var req failSettlementRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		stl, err := svc.Fail(c.UserContext(), c.Params("id"), req.Reason)
		if err != nil {
			return fail(err)
		}
		return c.JSON(renderSettlement(stl))
	})

	api.Post("/settlements/:id/retry", func(c *fiber.Ctx) error {
		stl, err := svc.Retry(c.UserContext(), c.Params("id"))
		if err != nil {
			return fail(err)
		}
		return c.JSON(renderSettlement(stl))
	})

	api.Get("/settlements/:id", func(c *fiber.Ctx) error {
		stl, err := svc.Get(c.UserContext(), c.Params("id"))
		if err != nil {
			return fail(err)
		}
		return c.JSON(renderSettlement(stl))
	})
}

func renderSettlement(s settlement.Settlement) fiber.Map {
	history := make([]fiber.Map, 0, len(s.History))
	for _, tr := range s.History {
		history = append(history, fiber.Map{
			"from": tr.From,
			"to":   tr.To,
			"note": tr.Note,
			"at":   tr.At,
		})
	}
	out := fiber.Map{
		"id":               s.ID,
		"tenant":           s.Tenant,
		"merchant_account": s.MerchantAccount,
		"amount":           s.Amount.String(),
		"currency":         s.Currency,
		"state":            s.State,
		"retry_count":      s.RetryCount,
		"history":          history,
		"created_at":       s.CreatedAt,
		"updated_at":       s.UpdatedAt,
	}
	if s.BankReference != "" {
		out["bank_reference"] = s.BankReference
	}
	if s.FailureReason != "" {
		out["failure_reason"] = s.FailureReason
	}
	if !s.NextRetryAt.IsZero() {
		out["next_retry_at"] = s.NextRetryAt
	}
	return out
}
