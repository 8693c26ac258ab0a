// Package httpapi exposes the REST API, the Telegram webhook and the alert
// stream over HTTP.
package httpapi

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	app "github.com/posterwatch/posterwatch/internal/app"
	"github.com/posterwatch/posterwatch/internal/app/metrics"
	"github.com/posterwatch/posterwatch/internal/app/system"
	"github.com/posterwatch/posterwatch/internal/telegram"
	"github.com/posterwatch/posterwatch/pkg/logger"
)

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app   *app.Application
	token string
	log   *logger.Logger
}

// NewHandler returns a router exposing the REST API. The bot token guards
// the webhook route; when empty, the webhook is disabled.
func NewHandler(application *app.Application, botToken string, log *logger.Logger) http.Handler {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	h := &handler{app: application, token: botToken, log: log}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.healthz).Methods(http.MethodGet)
	r.HandleFunc("/webhook/{token}", h.webhook).Methods(http.MethodPost)

	r.HandleFunc("/watches", h.listWatches).Methods(http.MethodGet)
	r.HandleFunc("/watches", h.createWatch).Methods(http.MethodPost)
	r.HandleFunc("/watches/{handle}", h.getWatch).Methods(http.MethodGet)
	r.HandleFunc("/watches/{handle}", h.patchWatch).Methods(http.MethodPatch)
	r.HandleFunc("/watches/{handle}", h.deleteWatch).Methods(http.MethodDelete)
	r.HandleFunc("/watches/{handle}/sightings", h.listSightings).Methods(http.MethodGet)

	r.HandleFunc("/subscribers", h.listSubscribers).Methods(http.MethodGet)
	r.HandleFunc("/subscribers", h.createSubscriber).Methods(http.MethodPost)
	r.HandleFunc("/subscribers/{chatID}", h.deleteSubscriber).Methods(http.MethodDelete)
	r.HandleFunc("/subscribers/{chatID}", h.patchSubscriber).Methods(http.MethodPatch)

	r.HandleFunc("/status", h.status).Methods(http.MethodGet)
	r.HandleFunc("/system", h.systemInfo).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/ws", h.app.Hub.ServeWS)

	return r
}

func (h *handler) healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (h *handler) webhook(w http.ResponseWriter, r *http.Request) {
	token := mux.Vars(r)["token"]
	if h.token == "" || h.app.Bot == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(h.token)) != 1 {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	if ct := r.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		w.WriteHeader(http.StatusForbidden)
		return
	}

	// Telegram sends fields beyond the ones acted on; unknown fields are
	// expected here.
	var update telegram.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode update: %w", err))
		return
	}
	defer r.Body.Close()

	if err := h.app.Bot.HandleUpdate(r.Context(), update); err != nil {
		h.log.WithError(err).Warn("update handling failed")
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (h *handler) listWatches(w http.ResponseWriter, r *http.Request) {
	watches, err := h.app.Watches.ListWatches(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, watches)
}

func (h *handler) createWatch(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Handle   string `json:"handle"`
		Schedule string `json:"schedule"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	created, err := h.app.Watches.AddWatch(r.Context(), payload.Handle, payload.Schedule)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *handler) getWatch(w http.ResponseWriter, r *http.Request) {
	watch, err := h.app.Watches.GetWatch(r.Context(), mux.Vars(r)["handle"])
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, watch)
}

func (h *handler) patchWatch(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Active *bool `json:"active"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if payload.Active == nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("active is required"))
		return
	}

	updated, err := h.app.Watches.SetActive(r.Context(), mux.Vars(r)["handle"], *payload.Active)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *handler) deleteWatch(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Watches.RemoveWatch(r.Context(), mux.Vars(r)["handle"]); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) listSightings(w http.ResponseWriter, r *http.Request) {
	sightings, err := h.app.Watches.Sightings(r.Context(), mux.Vars(r)["handle"])
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, sightings)
}

func (h *handler) listSubscribers(w http.ResponseWriter, r *http.Request) {
	subs, err := h.app.Subscriptions.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, subs)
}

func (h *handler) createSubscriber(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		ChatID int64 `json:"chat_id"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if payload.ChatID == 0 {
		writeError(w, http.StatusBadRequest, fmt.Errorf("chat_id is required"))
		return
	}

	sub, err := h.app.Subscriptions.Subscribe(r.Context(), payload.ChatID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

func (h *handler) patchSubscriber(w http.ResponseWriter, r *http.Request) {
	chatID, err := strconv.ParseInt(mux.Vars(r)["chatID"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid chat id"))
		return
	}

	var payload struct {
		Muted *bool `json:"muted"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if payload.Muted == nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("muted is required"))
		return
	}

	sub, err := h.app.Subscriptions.SetMuted(r.Context(), chatID, *payload.Muted)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (h *handler) deleteSubscriber(w http.ResponseWriter, r *http.Request) {
	chatID, err := strconv.ParseInt(mux.Vars(r)["chatID"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid chat id"))
		return
	}
	if err := h.app.Subscriptions.Unsubscribe(r.Context(), chatID); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) status(w http.ResponseWriter, r *http.Request) {
	status, err := h.app.Watches.Status(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *handler) systemInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, system.Info())
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
