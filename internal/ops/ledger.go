package ops

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/veloxpay/velox_ledger/internal/ledger"
)

type entryRequest struct {
	AccountCode string `json:"account_code"`
	Direction   string `json:"direction"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
}

type overrideRequest struct {
	Justification string `json:"justification"`
	Actor         string `json:"actor"`
	Role          string `json:"role"`
}

type postTransactionRequest struct {
	Tenant         string           `json:"tenant"`
	Reference      string           `json:"reference"`
	EventType      string           `json:"event_type"`
	IdempotencyKey string           `json:"idempotency_key"`
	EffectiveDate  string           `json:"effective_date"`
	Entries        []entryRequest   `json:"entries"`
	Override       *overrideRequest `json:"override"`
}

type reverseRequest struct {
	Reason   string           `json:"reason"`
	Actor    string           `json:"actor"`
	Override *overrideRequest `json:"override"`
}

type createAccountRequest struct {
	Code          string `json:"code"`
	Type          string `json:"type"`
	NormalBalance string `json:"normal_balance"`
	Category      string `json:"category"`
}

func registerLedgerRoutes(api fiber.Router, svc *ledger.Service) {
	api.Post("/accounts", func(c *fiber.Ctx) error {
		var req createAccountRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		acc, err := svc.CreateAccount(c.UserContext(), ledger.Account{
			Code:          req.Code,
			Type:          ledger.AccountType(req.Type),
			NormalBalance: ledger.Direction(req.NormalBalance),
			Category:      ledger.Category(req.Category),
		})
		if err != nil {
			return fail(err)
		}
		return c.Status(http.StatusCreated).JSON(renderAccount(acc))
	})

	api.Get("/accounts/:code/balance", func(c *fiber.Ctx) error {
		balance, err := svc.Balance(c.UserContext(), c.Params("code"))
		if err != nil {
			return fail(err)
		}
		return c.JSON(fiber.Map{
			"account_code": balance.AccountCode,
			"balance":      balance.Amount.String(),
			"as_of":        balance.AsOf,
		})
	})

	api.Get("/reports/trial-balance", func(c *fiber.Ctx) error {
		tenant := c.Query("tenant")
		if tenant == "" {
			return fiber.NewError(http.StatusBadRequest, "tenant is required")
		}
		rows, err := svc.TrialBalance(c.UserContext(), tenant)
		if err != nil {
			return fail(err)
		}
		out := make([]fiber.Map, 0, len(rows))
		for _, row := range rows {
			out = append(out, fiber.Map{
				"account_code":   row.AccountCode,
				"normal_balance": row.NormalBalance,
				"balance":        row.Amount.String(),
			})
		}
		return c.JSON(fiber.Map{"tenant": tenant, "accounts": out})
	})

	api.Post("/transactions", func(c *fiber.Ctx) error {
		var req postTransactionRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		input := ledger.PostInput{
			Tenant:         req.Tenant,
			Reference:      req.Reference,
			EventType:      req.EventType,
			IdempotencyKey: req.IdempotencyKey,
			Override:       toOverride(req.Override),
		}
		if req.EffectiveDate != "" {
			date, err := parseDate(req.EffectiveDate)
			if err != nil {
				return fiber.NewError(http.StatusBadRequest, "invalid effective_date")
			}
			input.EffectiveDate = date
		}
		for _, e := range req.Entries {
			amount, err := decimal.NewFromString(e.Amount)
			if err != nil {
				return fiber.NewError(http.StatusBadRequest, "invalid entry amount")
			}
			input.Entries = append(input.Entries, ledger.EntryInput{
				AccountCode: e.AccountCode,
				Direction:   ledger.Direction(e.Direction),
				Amount:      amount,
				Currency:    e.Currency,
			})
		}
		txn, err := svc.Post(c.UserContext(), input)
		if err != nil {
			return fail(err)
		}
		return c.Status(http.StatusCreated).JSON(renderTransaction(txn))
	})

	api.Get("/transactions/:id", func(c *fiber.Ctx) error {
		txn, err := svc.GetTransaction(c.UserContext(), c.Params("id"))
		if err != nil {
			return fail(err)
		}
		return c.JSON(renderTransaction(txn))
	})

	api.Post("/transactions/:id/reverse", func(c *fiber.Ctx) error {
		var req reverseRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		reversal, err := svc.Reverse(c.UserContext(), ledger.ReverseInput{
			TransactionID: c.Params("id"),
			Reason:        req.Reason,
			Actor:         req.Actor,
			Override:      toOverride(req.Override),
		})
		if err != nil {
			return fail(err)
		}
		return c.Status(http.StatusCreated).JSON(renderTransaction(reversal))
	})
}

func toOverride(req *overrideRequest) *ledger.Override {
	if req == nil {
		return nil
	}
	return &ledger.Override{Justification: req.Justification, Actor: req.Actor, Role: req.Role}
}

func renderAccount(a ledger.Account) fiber.Map {
	return fiber.Map{
		"code":           a.Code,
		"type":           a.Type,
		"normal_balance": a.NormalBalance,
		"category":       a.Category,
		"status":         a.Status,
		"created_at":     a.CreatedAt,
	}
}

func renderTransaction(t ledger.Transaction) fiber.Map {
	entries := make([]fiber.Map, 0, len(t.Entries))
	for _, e := range t.Entries {
		entries = append(entries, fiber.Map{
			"id":           e.ID,
			"account_code": e.AccountCode,
			"direction":    e.Direction,
			"amount":       e.Amount.String(),
			"currency":     e.Currency,
		})
	}
	out := fiber.Map{
		"id":             t.ID,
		"reference":      t.Reference,
		"tenant":         t.Tenant,
		"event_type":     t.EventType,
		"status":         t.Status,
		"effective_date": t.EffectiveDate,
		"entries":        entries,
		"created_at":     t.CreatedAt,
	}
	if t.ReversesID != "" {
		out["reverses_id"] = t.ReversesID
		out["reversal_reason"] = t.ReversalReason
	}
	if t.ReversedByID != "" {
		out["reversed_by_id"] = t.ReversedByID
	}
	return out
}
