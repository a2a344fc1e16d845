package orders

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angeloszaimis/api-gateway/internal/httpserver"
	"github.com/angeloszaimis/api-gateway/internal/store"
)

type Handler struct {
	logger *slog.Logger
	orders *store.Table[Order]
}

func NewHandler(logger *slog.Logger) *Handler {
	return &Handler{
		logger: logger,
		orders: newTable(),
	}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/orders/health", h.health)
	r.Get("/orders", h.list)
	r.Post("/orders", h.create)

	r.Get("/orders/{orderId}", h.get)
	r.Put("/orders/{orderId}", h.update)
	r.Delete("/orders/{orderId}", h.remove)

	// scoped to an owner; an order of another user is not found
	r.Get("/orders/{userId}/{orderId}", h.get)
	r.Put("/orders/{userId}/{orderId}", h.update)
	r.Delete("/orders/{userId}/{orderId}", h.remove)

	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	httpserver.WriteJSON(w, http.StatusOK, map[string]string{
		"status":    "OK",
		"service":   "orders",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	all := h.orders.GetAll()

	raw := r.URL.Query().Get("userId")
	if raw == "" {
		httpserver.WriteJSON(w, http.StatusOK, all)
		return
	}

	userID, err := strconv.Atoi(raw)
	if err != nil {
		httpserver.WriteError(w, http.StatusBadRequest, "failed to parse userId into int")
		return
	}

	owned := make([]Order, 0, len(all))
	for _, o := range all {
		if o.UserID == userID {
			owned = append(owned, o)
		}
	}

	httpserver.WriteJSON(w, http.StatusOK, owned)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var draft Draft
	if err := httpserver.DecodeJSON(r, &draft); err != nil {
		httpserver.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := draft.Validate(); err != nil {
		httpserver.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	order := Order{UserID: draft.UserID, Entries: draft.Entries}
	if order.Entries == nil {
		order.Entries = []int{}
	}

	id, _ := h.orders.Add(order, nil)
	order.ID = id

	h.logger.Info("Order created", "order_id", id, "user_id", order.UserID)
	httpserver.WriteJSON(w, http.StatusCreated, order)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	order, ok := h.lookup(w, r)
	if !ok {
		return
	}

	httpserver.WriteJSON(w, http.StatusOK, order)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	order, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var changes Changes
	if err := httpserver.DecodeJSON(r, &changes); err != nil {
		httpserver.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if !h.orders.Update(order.ID, Order{Entries: changes.Entries}, mergeOrder) {
		orderNotFound(w)
		return
	}

	updated, found := h.orders.Get(order.ID)
	if !found {
		orderNotFound(w)
		return
	}

	httpserver.WriteJSON(w, http.StatusOK, updated)
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	order, ok := h.lookup(w, r)
	if !ok {
		return
	}

	if !h.orders.Remove(order.ID) {
		orderNotFound(w)
		return
	}

	h.logger.Info("Order deleted", "order_id", order.ID)
	httpserver.WriteJSON(w, http.StatusOK, deleted{Message: "Order deleted", DeletedOrder: order})
}

// lookup resolves the order named by the path, honouring the owner segment
// when present. It writes the error response itself.
func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (Order, bool) {
	orderID, err := strconv.Atoi(chi.URLParam(r, "orderId"))
	if err != nil {
		httpserver.WriteError(w, http.StatusBadRequest, "failed to parse orderId into int")
		return Order{}, false
	}

	order, found := h.orders.Get(orderID)
	if !found {
		orderNotFound(w)
		return Order{}, false
	}

	if raw := chi.URLParam(r, "userId"); raw != "" {
		userID, err := strconv.Atoi(raw)
		if err != nil {
			httpserver.WriteError(w, http.StatusBadRequest, "failed to parse userId into int")
			return Order{}, false
		}
		if order.UserID != userID {
			orderNotFound(w)
			return Order{}, false
		}
	}

	return order, true
}

func orderNotFound(w http.ResponseWriter) {
	httpserver.WriteError(w, http.StatusNotFound, "Order not found")
}
