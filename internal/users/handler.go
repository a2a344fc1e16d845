package users

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/angeloszaimis/api-gateway/internal/auth"
	"github.com/angeloszaimis/api-gateway/internal/httpserver"
	"github.com/angeloszaimis/api-gateway/internal/store"
)

type Handler struct {
	logger   *slog.Logger
	users    *store.Table[User]
	signer   *auth.Signer
	hashCost int
}

// NewHandler creates the users service handler. signer may be nil, in which
// case registration returns only the id.
func NewHandler(logger *slog.Logger, signer *auth.Signer) *Handler {
	return &Handler{
		logger:   logger,
		users:    newTable(),
		signer:   signer,
		hashCost: bcrypt.DefaultCost,
	}
}

// WithHashCost overrides the bcrypt cost, mostly to keep tests fast.
func (h *Handler) WithHashCost(cost int) *Handler {
	h.hashCost = cost
	return h
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/users/health", h.health)
	r.Get("/users", h.list)
	r.Post("/users", h.register)
	r.Post("/users/login", h.login)
	r.Get("/users/{userId}", h.get)
	r.Put("/users/{userId}", h.update)
	r.Delete("/users/{userId}", h.remove)

	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	httpserver.WriteJSON(w, http.StatusOK, map[string]string{
		"status":    "Users service is running",
		"service":   "users",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	httpserver.WriteJSON(w, http.StatusOK, h.users.GetAll())
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var reg Registration
	if err := httpserver.DecodeJSON(r, &reg); err != nil {
		httpserver.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := reg.Validate(); err != nil {
		httpserver.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	candidate := User{Login: reg.Login, Name: reg.Name}
	if h.users.Exists(candidate, sameLogin) {
		httpserver.WriteError(w, http.StatusConflict, "login already taken")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(reg.Password), h.hashCost)
	if err != nil {
		h.logger.Error("Hash password", "error", err)
		httpserver.WriteError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	candidate.PasswordHash = hash

	// the uniqueness check is repeated under the table lock
	id, ok := h.users.Add(candidate, uniqueLogin)
	if !ok {
		httpserver.WriteError(w, http.StatusConflict, "login already taken")
		return
	}

	resp := registered{ID: id}
	if h.signer != nil {
		resp.Token, err = h.signer.Sign(id)
		if err != nil {
			h.logger.Error("Sign token", "user_id", id, "error", err)
			httpserver.WriteError(w, http.StatusInternalServerError, "internal server error")
			return
		}
	}

	h.logger.Info("User registered", "user_id", id)
	httpserver.WriteJSON(w, http.StatusCreated, resp)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}

	user, found := h.users.Get(id)
	if !found {
		notFound(w, id)
		return
	}

	httpserver.WriteJSON(w, http.StatusOK, user)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}

	var changes Changes
	if err := httpserver.DecodeJSON(r, &changes); err != nil {
		httpserver.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := changes.Validate(); err != nil {
		httpserver.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	incoming := User{Name: changes.Name}
	if changes.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(changes.Password), h.hashCost)
		if err != nil {
			h.logger.Error("Hash password", "error", err)
			httpserver.WriteError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		incoming.PasswordHash = hash
	}

	if !h.users.Update(id, incoming, mergeUser) {
		notFound(w, id)
		return
	}

	user, found := h.users.Get(id)
	if !found {
		notFound(w, id)
		return
	}

	httpserver.WriteJSON(w, http.StatusOK, user)
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(w, r)
	if !ok {
		return
	}

	if !h.users.Remove(id) {
		notFound(w, id)
		return
	}

	h.logger.Info("User deleted", "user_id", id)
	httpserver.WriteJSON(w, http.StatusOK, map[string]any{"message": "User deleted", "id": id})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var creds Registration
	if err := httpserver.DecodeJSON(r, &creds); err != nil {
		httpserver.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, ok := h.authenticate(creds.Login, creds.Password)
	if !ok {
		httpserver.WriteError(w, http.StatusUnauthorized, "invalid login or password")
		return
	}

	resp := registered{ID: user.ID}
	if h.signer != nil {
		token, err := h.signer.Sign(user.ID)
		if err != nil {
			h.logger.Error("Sign token", "user_id", user.ID, "error", err)
			httpserver.WriteError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		resp.Token = token
	}

	httpserver.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) authenticate(login, password string) (User, bool) {
	for _, u := range h.users.GetAll() {
		if u.Login != login {
			continue
		}
		if bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)) != nil {
			return User{}, false
		}
		return u, true
	}
	return User{}, false
}

func userID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "userId"))
	if err != nil {
		httpserver.WriteError(w, http.StatusBadRequest, "failed to parse userId into int")
		return 0, false
	}
	return id, true
}

func notFound(w http.ResponseWriter, id int) {
	httpserver.WriteError(w, http.StatusNotFound, fmt.Sprintf("failed to find user with userId: %d", id))
}
