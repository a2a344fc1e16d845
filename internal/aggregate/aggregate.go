// Package aggregate joins concurrent calls to several dependencies into one
// response.
package aggregate

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/angeloszaimis/api-gateway/internal/proxy"
)

// Call is one named sub-call of an aggregate. Its body is placed under Name
// in the composite.
type Call struct {
	Name  string
	Fetch func(ctx context.Context) proxy.Response
}

type Coordinator struct {
	logger *slog.Logger
}

func NewCoordinator(logger *slog.Logger) *Coordinator {
	return &Coordinator{logger: logger}
}

// Join runs primary and secondary concurrently and waits for all of them.
//
// A primary answering 404 is returned alone. Otherwise the first sub-call,
// in argument order, that did not succeed decides the response: a proxy fault
// becomes a 500 and a dependency status is passed through. A breaker fallback
// is not folded into the 500: the aggregate answers 503 with the fallback body
// of that dependency, so callers can tell an open circuit from an internal
// error. When every sub-call succeeds the bodies are composed under their
// names.
func (c *Coordinator) Join(ctx context.Context, primary Call, secondary ...Call) proxy.Response {
	calls := append([]Call{primary}, secondary...)
	results := make([]proxy.Response, len(calls))

	var g errgroup.Group
	for i, call := range calls {
		g.Go(func() error {
			results[i] = call.Fetch(ctx)
			return nil
		})
	}
	_ = g.Wait()

	if results[0].Outcome == proxy.Dependency && results[0].Status == http.StatusNotFound {
		return results[0]
	}

	for i, result := range results {
		if result.OK() {
			continue
		}

		switch result.Outcome {
		case proxy.Fault:
			c.logger.Error("Aggregate sub-call failed", "call", calls[i].Name)
			return proxy.FaultResponse()
		case proxy.Unavailable:
			c.logger.Warn("Aggregate sub-call unavailable", "call", calls[i].Name)
		}
		return result
	}

	composite := make(map[string]json.RawMessage, len(calls))
	for i, call := range calls {
		body := results[i].Body
		if len(body) == 0 {
			body = json.RawMessage("null")
		}
		composite[call.Name] = body
	}

	body, err := json.Marshal(composite)
	if err != nil {
		c.logger.Error("Encode aggregate", "error", err)
		return proxy.FaultResponse()
	}

	return proxy.Response{
		Status:  http.StatusOK,
		Body:    body,
		Outcome: proxy.Dependency,
	}
}
