package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/angeloszaimis/api-gateway/internal/aggregate"
	"github.com/angeloszaimis/api-gateway/internal/auth"
	"github.com/angeloszaimis/api-gateway/internal/httpserver"
	"github.com/angeloszaimis/api-gateway/internal/proxy"
)

const maxForwardBody = 1 << 20

// Forwarder sends a request to one dependency. proxy.Service implements it.
type Forwarder interface {
	Name() string
	Forward(ctx context.Context, req proxy.Request) proxy.Response
}

type Gateway struct {
	logger      *slog.Logger
	users       Forwarder
	orders      Forwarder
	coordinator *aggregate.Coordinator
}

func NewGateway(logger *slog.Logger, users, orders Forwarder, coordinator *aggregate.Coordinator) *Gateway {
	return &Gateway{
		logger:      logger,
		users:       users,
		orders:      orders,
		coordinator: coordinator,
	}
}

// Register mounts the dependency routes on r. r is expected to run the auth
// gate middleware so identities are available.
func (g *Gateway) Register(r chi.Router) {
	r.Get("/users/health", g.pass(g.users))
	r.Get("/users", g.pass(g.users))
	r.Post("/users", g.pass(g.users))
	r.Post("/users/login", g.pass(g.users))
	r.Get("/users/{userId}", g.pass(g.users))
	r.Put("/users/{userId}", auth.Require(g.ownUser))
	r.Delete("/users/{userId}", auth.Require(g.ownUser))
	r.Get("/users/{userId}/details", g.userDetails)

	r.Get("/orders/health", g.pass(g.orders))
	r.Get("/orders", g.pass(g.orders))
	r.Get("/orders/{orderId}", g.pass(g.orders))
	r.Post("/orders", auth.Require(g.createOrder))
	r.Put("/orders/{orderId}", auth.Require(g.ownOrder))
	r.Delete("/orders/{orderId}", auth.Require(g.ownOrder))
}

// pass forwards the request unchanged.
func (g *Gateway) pass(dep Forwarder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := forwardRequest(r, r.URL.Path)
		if err != nil {
			httpserver.WriteError(w, http.StatusBadRequest, err.Error())
			return
		}

		proxy.Write(w, dep.Forward(r.Context(), req))
	}
}

// ownUser lets a user change or delete only their own account.
func (g *Gateway) ownUser(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFrom(r.Context())

	userID, err := strconv.Atoi(chi.URLParam(r, "userId"))
	if err != nil || userID != identity {
		g.logger.Info("Permission denied",
			slog.Int("identity", identity),
			slog.String("path", r.URL.Path))
		httpserver.WriteError(w, http.StatusForbidden, "permission denied")
		return
	}

	g.pass(g.users)(w, r)
}

// createOrder stamps the order with the caller's identity.
func (g *Gateway) createOrder(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFrom(r.Context())

	draft := map[string]json.RawMessage{}
	if err := httpserver.DecodeJSON(r, &draft); err != nil {
		httpserver.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	draft["userId"] = json.RawMessage(strconv.Itoa(identity))

	body, err := json.Marshal(draft)
	if err != nil {
		httpserver.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	req := proxy.Request{
		Method: r.Method,
		Path:   "/orders",
		Body:   body,
		Header: forwardHeader(r),
	}

	proxy.Write(w, g.orders.Forward(r.Context(), req))
}

// ownOrder rewrites the path to the identity-scoped order route so the
// orders service refuses orders of other users.
func (g *Gateway) ownOrder(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFrom(r.Context())

	path := fmt.Sprintf("/orders/%d/%s", identity, url.PathEscape(chi.URLParam(r, "orderId")))
	req, err := forwardRequest(r, path)
	if err != nil {
		httpserver.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	proxy.Write(w, g.orders.Forward(r.Context(), req))
}

func (g *Gateway) userDetails(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.Atoi(chi.URLParam(r, "userId"))
	if err != nil {
		httpserver.WriteError(w, http.StatusBadRequest, "failed to parse userId into int")
		return
	}

	header := forwardHeader(r)
	resp := g.coordinator.Join(r.Context(),
		aggregate.Call{Name: "user", Fetch: func(ctx context.Context) proxy.Response {
			return g.users.Forward(ctx, proxy.Request{
				Method: http.MethodGet,
				Path:   fmt.Sprintf("/users/%d", userID),
				Header: header,
			})
		}},
		aggregate.Call{Name: "orders", Fetch: func(ctx context.Context) proxy.Response {
			return g.orders.Forward(ctx, proxy.Request{
				Method:   http.MethodGet,
				Path:     "/orders",
				RawQuery: url.Values{"userId": {strconv.Itoa(userID)}}.Encode(),
				Header:   header,
			})
		}},
	)

	proxy.Write(w, resp)
}

func forwardRequest(r *http.Request, path string) (proxy.Request, error) {
	req := proxy.Request{
		Method:   r.Method,
		Path:     path,
		RawQuery: r.URL.RawQuery,
		Header:   forwardHeader(r),
	}

	if r.Body != nil && r.Body != http.NoBody {
		body, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, maxForwardBody))
		if err != nil {
			return proxy.Request{}, fmt.Errorf("read request body: %w", err)
		}
		req.Body = body
	}

	return req, nil
}

func forwardHeader(r *http.Request) http.Header {
	header := http.Header{}
	if id := RequestIDFrom(r.Context()); id != "" {
		header.Set(proxy.RequestIDHeader, id)
	}
	if ct := r.Header.Get("Content-Type"); ct != "" {
		header.Set("Content-Type", ct)
	}
	return header
}
