package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/angeloszaimis/api-gateway/config"
	"github.com/angeloszaimis/api-gateway/internal/handler"
	"github.com/angeloszaimis/api-gateway/internal/httpserver"
	"github.com/angeloszaimis/api-gateway/internal/orders"
	"github.com/angeloszaimis/api-gateway/pkg/logger"
)

func main() {
	cfg, err := config.Load("orders")
	if err != nil {
		slog.Error("failed to load config", slog.Any("err", err))
		os.Exit(1)
	}

	log := logger.New(logger.Options{
		Level:       cfg.Logging.Level,
		Environment: cfg.Server.Environment,
		Service:     "orders",
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(handler.RequestLogger(log))
	r.Mount("/", orders.NewHandler(log).Routes())

	srv, err := httpserver.New(cfg.Server.Address, r, cfg.Server.Timeouts())
	if err != nil {
		log.Error("Failed to create server", slog.Any("err", err))
		os.Exit(1)
	}

	log.Info("Orders service listening", slog.String("addr", srv.Addr()))

	if err := srv.Run(ctx); err != nil {
		log.Error("Orders service stopped", slog.Any("err", err))
		os.Exit(1)
	}
}
