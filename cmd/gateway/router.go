package main

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/angeloszaimis/api-gateway/internal/auth"
	"github.com/angeloszaimis/api-gateway/internal/handler"
	"github.com/angeloszaimis/api-gateway/internal/metrics"
)

func setupRouter(log *slog.Logger, gate *auth.Gate, gateway *handler.Gateway, health *handler.Health, collector *metrics.Collector, recorder *metrics.Recorder) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(handler.RequestID)
	r.Use(handler.RequestLogger(log))
	r.Use(gate.Middleware)

	r.Get("/health", health.Health)
	r.Get("/status", health.Status)
	r.Get("/metrics", collector.Handler())
	r.Method(http.MethodGet, "/prometheus", recorder.Handler())

	gateway.Register(r)

	return r
}
