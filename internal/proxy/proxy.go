package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/angeloszaimis/api-gateway/internal/circuitbreaker"
	"github.com/angeloszaimis/api-gateway/internal/loadbalancer"
	"github.com/angeloszaimis/api-gateway/internal/metrics"
)

const maxBodySize = 10 << 20

// RequestIDHeader carries the gateway request id to dependencies.
const RequestIDHeader = "X-Request-ID"

var (
	// ErrMalformedResponse is returned when a dependency answers with a body
	// that is not JSON.
	ErrMalformedResponse = errors.New("malformed dependency response")
	// ErrBuildRequest is returned when the outbound request cannot be created.
	ErrBuildRequest = errors.New("cannot build dependency request")
)

// Request is what the gateway forwards to a dependency.
type Request struct {
	Method   string
	Path     string
	RawQuery string
	Body     []byte
	Header   http.Header
}

// Service forwards requests to one dependency.
type Service struct {
	name      string
	balancer  *loadbalancer.LoadBalancer
	breaker   *circuitbreaker.Breaker[Response]
	client    *http.Client
	logger    *slog.Logger
	collector *metrics.Collector
}

// Settings completes breaker settings for a proxied dependency: the fallback
// is the unavailable response and 5xx responses count as failures.
func Settings(settings circuitbreaker.Settings[Response]) circuitbreaker.Settings[Response] {
	name := settings.Name
	settings.Fallback = func(error) Response {
		return UnavailableResponse(name)
	}
	settings.IsFailure = func(resp Response, err error) bool {
		return err != nil || resp.Status >= http.StatusInternalServerError
	}
	return settings
}

// NewService creates a proxy for the dependency guarded by breaker. collector
// may be nil.
func NewService(balancer *loadbalancer.LoadBalancer, breaker *circuitbreaker.Breaker[Response], client *http.Client, logger *slog.Logger, collector *metrics.Collector) *Service {
	if client == nil {
		client = &http.Client{}
	}

	return &Service{
		name:      breaker.Name(),
		balancer:  balancer,
		breaker:   breaker,
		client:    client,
		logger:    logger.With("dependency", breaker.Name()),
		collector: collector,
	}
}

func (s *Service) Name() string {
	return s.name
}

func (s *Service) Breaker() *circuitbreaker.Breaker[Response] {
	return s.breaker
}

func (s *Service) Balancer() *loadbalancer.LoadBalancer {
	return s.balancer
}

// Forward sends req through the breaker. It never fails: every outcome is
// mapped to a status and body.
func (s *Service) Forward(ctx context.Context, req Request) Response {
	start := time.Now()
	s.collector.Emit(metrics.MetricEvent{
		Type:       metrics.EventRequestForwarded,
		Dependency: s.name,
	})

	resp, err := s.breaker.Execute(ctx, func(callCtx context.Context) (Response, error) {
		return s.roundTrip(callCtx, req)
	})

	switch {
	case err == nil:
	case errors.Is(err, ErrMalformedResponse), errors.Is(err, ErrBuildRequest):
		s.logger.Error("Proxy fault",
			"method", req.Method,
			"path", req.Path,
			"error", err,
		)
		resp = FaultResponse()
	case ctx.Err() != nil:
		s.logger.Debug("Caller went away", "path", req.Path, "error", err)
	default:
		s.logger.Warn("Dependency unavailable",
			"method", req.Method,
			"path", req.Path,
			"error", err,
		)
	}

	s.collector.Emit(metrics.MetricEvent{
		Type:       metrics.EventResponseCompleted,
		Dependency: s.name,
		Duration:   time.Since(start),
		StatusCode: resp.Status,
		Outcome:    resp.Outcome.String(),
	})

	return resp
}

func (s *Service) roundTrip(ctx context.Context, req Request) (Response, error) {
	replica, err := s.balancer.Reserve()
	if err != nil {
		return Response{}, err
	}
	defer replica.Release()

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	target := replica.Resolve(req.Path, req.RawQuery)
	outbound, err := http.NewRequestWithContext(ctx, req.Method, target.String(), body)
	if err != nil {
		return Response{}, fmt.Errorf("%w: %w", ErrBuildRequest, err)
	}

	for key, values := range req.Header {
		for _, v := range values {
			outbound.Header.Add(key, v)
		}
	}
	if body != nil && outbound.Header.Get("Content-Type") == "" {
		outbound.Header.Set("Content-Type", "application/json")
	}
	outbound.Header.Set("Accept", "application/json")

	res, err := s.client.Do(outbound)
	if err != nil {
		return Response{}, fmt.Errorf("%s %s: %w", req.Method, target.Redacted(), err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, maxBodySize))
	if err != nil {
		return Response{}, fmt.Errorf("read %s response: %w", s.name, err)
	}

	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && !json.Valid(raw) {
		return Response{}, fmt.Errorf("%w: %s answered %d with non-JSON body", ErrMalformedResponse, s.name, res.StatusCode)
	}

	return Response{
		Status:  res.StatusCode,
		Body:    raw,
		Outcome: Dependency,
	}, nil
}
