package healthcheck

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/angeloszaimis/api-gateway/internal/backend"
)

// ChangeFunc is called when a replica's reachability flips.
type ChangeFunc func(dependency string, replica *backend.Replica, healthy bool)

// Prober checks the replicas of one dependency.
type Prober struct {
	dependency string
	healthPath string
	client     *http.Client
	logger     *slog.Logger
	onChange   ChangeFunc
}

func NewProber(dependency, healthPath string, logger *slog.Logger, onChange ChangeFunc) *Prober {
	return &Prober{
		dependency: dependency,
		healthPath: healthPath,
		client: &http.Client{
			Timeout: 5 * time.Second,
		},
		logger:   logger,
		onChange: onChange,
	}
}

// Run probes replica every interval until ctx is cancelled.
func (p *Prober) Run(ctx context.Context, replica *backend.Replica, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Health check stopped",
				slog.String("dependency", p.dependency),
				slog.String("replica", replica.URL().String()))
			return

		case <-ticker.C:
			p.Check(ctx, replica)
		}
	}
}

// Check probes replica once and records the result. A replica is healthy
// when its health path answers 200.
func (p *Prober) Check(ctx context.Context, replica *backend.Replica) bool {
	healthy := p.probe(ctx, replica)
	if !replica.SetHealthy(healthy) {
		return healthy
	}

	if healthy {
		p.logger.Info("Replica is back up",
			slog.String("dependency", p.dependency),
			slog.String("replica", replica.URL().String()))
	} else {
		p.logger.Warn("Replica is down",
			slog.String("dependency", p.dependency),
			slog.String("replica", replica.URL().String()))
	}

	if p.onChange != nil {
		p.onChange(p.dependency, replica, healthy)
	}

	return healthy
}

func (p *Prober) probe(ctx context.Context, replica *backend.Replica) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, replica.Resolve(p.healthPath, "").String(), nil)
	if err != nil {
		return false
	}

	res, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, res.Body)

	return res.StatusCode == http.StatusOK
}
