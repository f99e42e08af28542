package ops

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/veloxpay/velox_ledger/internal/audit"
	"github.com/veloxpay/velox_ledger/internal/config"
	"github.com/veloxpay/velox_ledger/internal/events"
	"github.com/veloxpay/velox_ledger/internal/ledger"
	"github.com/veloxpay/velox_ledger/internal/lock"
	"github.com/veloxpay/velox_ledger/internal/middleware"
	"github.com/veloxpay/velox_ledger/internal/override"
	"github.com/veloxpay/velox_ledger/internal/period"
	"github.com/veloxpay/velox_ledger/internal/reconciliation"
	"github.com/veloxpay/velox_ledger/internal/settlement"
)

// Deps aggregates shared dependencies required to wire the operator API.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
}

// Runtime holds the wired services. The retry scheduler and workers run
// outside the HTTP server, so main needs a handle on them.
type Runtime struct {
	Ledger      *ledger.Service
	Periods     *period.Service
	Locks       *lock.Service
	Overrides   *override.Service
	Settlements *settlement.Service
	Recon       *reconciliation.Service
	Events      *events.Handler
	Queue       settlement.Queue
}

// Setup wires repositories, services and all operator routes. Postgres backs
// every store; the retry queue falls back to an in-process queue when Redis
// is not configured.
func Setup(app *fiber.App, d Deps) (*Runtime, error) {
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(middleware.Audit(d.Logger))

	registerHealth(app, d)

	recorder := audit.NewLogRecorder(d.Logger)

	lockRepo := lock.NewPostgresRepository(d.DB)
	periodRepo := period.NewPostgresRepository(d.DB)
	ledgerRepo := ledger.NewPostgresRepository(d.DB, periodRepo, lockRepo)
	overrideRepo := override.NewPostgresRepository(d.DB)
	settlementRepo := settlement.NewPostgresRepository(d.DB)
	reconRepo := reconciliation.NewPostgresRepository(d.DB)

	overrideSvc := override.NewService(overrideRepo, recorder, d.Cfg.FinanceAuthorityRole, d.Cfg.MinJustification)
	ledgerSvc := ledger.NewService(ledgerRepo, overrideSvc, recorder, d.Cfg.BalanceTolerance, d.Logger)
	lockSvc := lock.NewService(lockRepo, recorder)
	periodSvc := period.NewService(periodRepo, lockSvc, recorder)

	var queue settlement.Queue
	if d.Cache != nil {
		queue = settlement.NewRedisQueue(d.Cache)
	} else {
		queue = settlement.NewMemoryQueue()
	}
	settlementSvc := settlement.NewService(settlementRepo, ledgerSvc, recorder, settlement.RetryPolicy{
		MaxRetries: d.Cfg.MaxRetries,
		BaseDelay:  d.Cfg.RetryBaseDelay,
		MaxDelay:   d.Cfg.RetryMaxDelay,
		Multiplier: d.Cfg.RetryMultiplier,
	}, d.Logger)

	reconSvc := reconciliation.NewService(reconRepo, ledgerSvc, recorder, d.Logger)
	eventHandler := events.NewHandler(ledgerSvc, d.Logger)

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.RequestIDFrom(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	registerLedgerRoutes(api, ledgerSvc)
	registerPeriodRoutes(api, periodSvc)
	registerLockRoutes(api, lockSvc)
	registerOverrideRoutes(api, overrideSvc)
	registerSettlementRoutes(api, settlementSvc)
	registerReconciliationRoutes(api, reconSvc)
	registerEventRoutes(api, eventHandler)

	return &Runtime{
		Ledger:      ledgerSvc,
		Periods:     periodSvc,
		Locks:       lockSvc,
		Overrides:   overrideSvc,
		Settlements: settlementSvc,
		Recon:       reconSvc,
		Events:      eventHandler,
		Queue:       queue,
	}, nil
}
