package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/angeloszaimis/api-gateway/config"
	"github.com/angeloszaimis/api-gateway/internal/aggregate"
	"github.com/angeloszaimis/api-gateway/internal/auth"
	"github.com/angeloszaimis/api-gateway/internal/backend"
	"github.com/angeloszaimis/api-gateway/internal/circuitbreaker"
	"github.com/angeloszaimis/api-gateway/internal/handler"
	"github.com/angeloszaimis/api-gateway/internal/healthcheck"
	"github.com/angeloszaimis/api-gateway/internal/httpserver"
	"github.com/angeloszaimis/api-gateway/internal/loadbalancer"
	"github.com/angeloszaimis/api-gateway/internal/metrics"
	"github.com/angeloszaimis/api-gateway/internal/proxy"
	"github.com/angeloszaimis/api-gateway/internal/strategy"
	"github.com/angeloszaimis/api-gateway/pkg/logger"
)

const (
	usersService  = "users"
	ordersService = "orders"
)

func main() {
	cfg, err := config.Load("gateway")
	if err != nil {
		slog.Error("failed to load config", slog.Any("err", err))
		os.Exit(1)
	}

	if err := cfg.RequireServices(usersService, ordersService); err != nil {
		slog.Error("invalid configuration", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.RequireSecret(); err != nil {
		slog.Error("invalid configuration", slog.Any("err", err))
		os.Exit(1)
	}

	log := logger.New(logger.Options{
		Level:       cfg.Logging.Level,
		AddSource:   true,
		Environment: cfg.Server.Environment,
		Service:     "gateway",
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	recorder := metrics.NewRecorder()
	collector := metrics.NewCollector(1000, recorder, log)
	collector.Start(ctx)

	breakers := newBreakerRegistry(cfg, log, collector)

	services, err := initializeServices(ctx, cfg, breakers, log, collector)
	if err != nil {
		log.Error("Failed to initialize services", slog.Any("err", err))
		os.Exit(1)
	}

	gate := auth.NewGate(cfg.Auth.Header, cfg.Auth.Scheme, auth.NewVerifier(cfg.Auth.Secret), log)
	gateway := handler.NewGateway(log, services[usersService], services[ordersService], aggregate.NewCoordinator(log))
	health := handler.NewHealth(services[usersService], services[ordersService])

	srv, err := httpserver.New(cfg.Server.Address, setupRouter(log, gate, gateway, health, collector, recorder), cfg.Server.Timeouts())
	if err != nil {
		log.Error("Failed to create server", slog.Any("err", err))
		os.Exit(1)
	}

	log.Info("API Gateway listening", slog.String("addr", srv.Addr()))

	if err := srv.Run(ctx); err != nil {
		log.Error("Gateway stopped", slog.Any("err", err))
		os.Exit(1)
	}

	stats := breakers.Stats()
	for _, name := range breakers.Names() {
		s := stats[name]
		log.Info("Circuit breaker summary",
			slog.String("dependency", name),
			slog.String("state", s.State.String()),
			slog.Uint64("fires", s.Fires),
			slog.Uint64("failures", s.Failures),
			slog.Uint64("fallbacks", s.Fallbacks))
	}

	log.Info("Shut down gracefully")
}

// newBreakerRegistry creates breakers from the per-service settings. Every
// transition is logged and reported to the collector.
func newBreakerRegistry(cfg *config.Config, log *slog.Logger, collector *metrics.Collector) *circuitbreaker.Registry[proxy.Response] {
	onStateChange := func(name string, from, to circuitbreaker.State) {
		attrs := []any{
			slog.String("dependency", name),
			slog.String("from", from.String()),
		}

		switch to {
		case circuitbreaker.StateOpen:
			log.Warn("circuit breaker opened", attrs...)
		case circuitbreaker.StateHalfOpen:
			log.Info("circuit breaker half-open", attrs...)
		case circuitbreaker.StateClosed:
			log.Info("circuit breaker closed", attrs...)
		}

		collector.Emit(metrics.MetricEvent{
			Type:       metrics.EventBreakerStateChange,
			Dependency: name,
			State:      to.String(),
		})
	}

	return circuitbreaker.NewRegistry(func(name string) circuitbreaker.Settings[proxy.Response] {
		bc := cfg.Services[name].Breaker

		return proxy.Settings(circuitbreaker.Settings[proxy.Response]{
			Name:            name,
			Timeout:         config.Duration(bc.Timeout),
			ErrorThreshold:  bc.ErrorThreshold,
			VolumeThreshold: bc.VolumeThreshold,
			Window:          bc.Window,
			ResetTimeout:    config.Duration(bc.ResetTimeout),
			OnStateChange:   onStateChange,
		})
	})
}

// initializeServices builds a proxy per configured dependency and starts the
// health probes of its replicas.
func initializeServices(ctx context.Context, cfg *config.Config, breakers *circuitbreaker.Registry[proxy.Response], log *slog.Logger, collector *metrics.Collector) (map[string]*proxy.Service, error) {
	interval := config.Duration(cfg.HealthCheck.Interval)
	if interval <= 0 {
		return nil, fmt.Errorf("invalid health check interval %q", cfg.HealthCheck.Interval)
	}

	names := make([]string, 0, len(cfg.Services))
	for name := range cfg.Services {
		names = append(names, name)
	}
	sort.Strings(names)

	client := &http.Client{}
	services := make(map[string]*proxy.Service, len(names))

	for _, name := range names {
		svcCfg := cfg.Services[name]

		replicas := make([]*backend.Replica, 0, len(svcCfg.URLs))
		for _, rawURL := range svcCfg.URLs {
			u, err := url.Parse(rawURL)
			if err != nil {
				log.Error("Failed to parse URL",
					slog.String("dependency", name),
					slog.String("url", rawURL),
					slog.String("error", err.Error()))
				continue
			}
			replicas = append(replicas, backend.New(u))
		}

		if len(replicas) == 0 {
			return nil, fmt.Errorf("service %s has no usable replica", name)
		}

		strat, ok := strategy.New(cfg.Strategy.Type)
		if !ok {
			log.Warn("Unknown strategy, defaulting to round-robin", slog.String("requested", cfg.Strategy.Type))
			strat = strategy.NewRoundRobinStrategy()
		}

		prober := healthcheck.NewProber(name, svcCfg.HealthPath, log, func(dependency string, replica *backend.Replica, healthy bool) {
			collector.Emit(metrics.MetricEvent{
				Type:       metrics.EventHealthChanged,
				Dependency: dependency,
				Replica:    replica.URL().String(),
				Healthy:    healthy,
			})
		})
		for _, replica := range replicas {
			go prober.Run(ctx, replica, interval)
		}

		lb := loadbalancer.NewLoadBalancer(strat, replicas)
		services[name] = proxy.NewService(lb, breakers.GetBreaker(name), client, log, collector)
	}

	return services, nil
}
