package ops

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/veloxpay/velox_ledger/internal/events"
	"github.com/veloxpay/velox_ledger/internal/ledger"
)

type eventRequest struct {
	Type            string           `json:"type"`
	Tenant          string           `json:"tenant"`
	Reference       string           `json:"reference"`
	MerchantAccount string           `json:"merchant_account"`
	Amount          string           `json:"amount"`
	Fee             string           `json:"fee"`
	Currency        string           `json:"currency"`
	OccurredAt      string           `json:"occurred_at"`
	Entries         []entryRequest   `json:"entries"`
	Override        *overrideRequest `json:"override"`
}

func registerEventRoutes(api fiber.Router, handler *events.Handler) {
	api.Post("/events", func(c *fiber.Ctx) error {
		var req eventRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}

		ev := events.Event{
			Type:            events.Type(req.Type),
			Tenant:          req.Tenant,
			Reference:       req.Reference,
			MerchantAccount: req.MerchantAccount,
			Currency:        req.Currency,
			Override:        toOverride(req.Override),
		}

		var err error
		if req.Amount != "" {
			if ev.Amount, err = decimal.NewFromString(req.Amount); err != nil {
				return fiber.NewError(http.StatusBadRequest, "invalid amount")
			}
		}
		if req.Fee != "" {
			if ev.Fee, err = decimal.NewFromString(req.Fee); err != nil {
				return fiber.NewError(http.StatusBadRequest, "invalid fee")
			}
		}
		if req.OccurredAt != "" {
			if ev.OccurredAt, err = parseDate(req.OccurredAt); err != nil {
				return fiber.NewError(http.StatusBadRequest, "invalid occurred_at")
			}
		}
		for _, e := range req.Entries {
			amount, err := decimal.NewFromString(e.Amount)
			if err != nil {
				return fiber.NewError(http.StatusBadRequest, "invalid entry amount")
			}
			ev.Entries = append(ev.Entries, ledger.EntryInput{
				AccountCode: e.AccountCode,
				Direction:   ledger.Direction(e.Direction),
				Amount:      amount,
				Currency:    e.Currency,
			})
		}

		txn, err := handler.Handle(c.UserContext(), ev)
		if err != nil {
			return fail(err)
		}
		return c.Status(http.StatusCreated).JSON(renderTransaction(txn))
	})
}
