package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/veloxpay/velox_ledger/internal/config"
	"github.com/veloxpay/velox_ledger/internal/ops"
)

// Server wraps the Fiber application and the wired ledger services.
type Server struct {
	app     *fiber.App
	cfg     config.Config
	runtime *ops.Runtime
}

// New instantiates the HTTP server and delegates wiring to ops.Setup.
func New(cfg config.Config, db *pgxpool.Pool, cache *redis.Client, logger *slog.Logger) (*Server, error) {
	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	})

	runtime, err := ops.Setup(app, ops.Deps{Cfg: cfg, DB: db, Cache: cache, Logger: logger})
	if err != nil {
		return nil, err
	}

	return &Server{app: app, cfg: cfg, runtime: runtime}, nil
}

// Runtime exposes the wired services so main can run the retry scheduler
// and workers alongside the HTTP listener.
func (s *Server) Runtime() *ops.Runtime {
	return s.runtime
}

// Listen starts the HTTP server.
func (s *Server) Listen() error {
	return s.app.Listen(s.cfg.Address())
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
