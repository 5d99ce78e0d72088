// Package server exposes the host control surface over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/alejandrodnm/tradeassist/internal/domain"
)

// Host es el control surface que expone el supervisor.
type Host interface {
	Profiles() []string
	Start(ctx context.Context, profileID string) error
	Stop(profileID string) error
	IsRunning(profileID string) bool
	GetTrackerStates(ctx context.Context, profileID string) (map[string]domain.TrackerState, error)
	GetPortfolioMetrics(ctx context.Context, profileID string) (domain.PortfolioMetrics, error)
	CreateTrackerState(ctx context.Context, profileID, symbol string, initial domain.TrackerPatch) (domain.TrackerState, error)
	UpdateTrackerState(ctx context.Context, profileID, symbol string, patch domain.TrackerPatch) (domain.TrackerState, error)
	DeleteTracker(ctx context.Context, profileID, symbol string) error
	GetLedger(ctx context.Context, profileID string) ([]domain.LedgerEntry, error)
	AppendLedgerEntry(ctx context.Context, profileID string, entry domain.LedgerEntry) error
	RecentCycles(ctx context.Context, profileID string, limit int) ([]domain.CycleSummary, error)
}

// Handler contiene los handlers HTTP del control API.
type Handler struct {
	host Host
}

// NewHandler crea un Handler sobre host.
func NewHandler(host Host) *Handler {
	return &Handler{host: host}
}

type profileStatus struct {
	ProfileID string `json:"profileId"`
	Running   bool   `json:"running"`
}

// ListProfiles devuelve los perfiles configurados y si están corriendo.
func (h *Handler) ListProfiles(w http.ResponseWriter, r *http.Request) {
	ids := h.host.Profiles()
	out := make([]profileStatus, 0, len(ids))
	for _, id := range ids {
		out = append(out, profileStatus{ProfileID: id, Running: h.host.IsRunning(id)})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.host.Start(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profileStatus{ProfileID: id, Running: h.host.IsRunning(id)})
}

func (h *Handler) Stop(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.host.Stop(id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profileStatus{ProfileID: id, Running: h.host.IsRunning(id)})
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.known(id) {
		writeError(w, domain.ErrProfileNotFound)
		return
	}
	writeJSON(w, http.StatusOK, profileStatus{ProfileID: id, Running: h.host.IsRunning(id)})
}

func (h *Handler) Trackers(w http.ResponseWriter, r *http.Request) {
	trackers, err := h.host.GetTrackerStates(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trackers)
}

// CreateTracker body: {"symbol": "BTC-USD", ...campos opcionales de TrackerPatch}.
func (h *Handler) CreateTracker(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Symbol string `json:"symbol"`
		domain.TrackerPatch
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	if symbol == "" {
		writeMessage(w, http.StatusBadRequest, "symbol required")
		return
	}

	t, err := h.host.CreateTrackerState(r.Context(), chi.URLParam(r, "id"), symbol, req.TrackerPatch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (h *Handler) UpdateTracker(w http.ResponseWriter, r *http.Request) {
	var patch domain.TrackerPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if patch.ManualPurchaseAmount != nil && *patch.ManualPurchaseAmount <= 0 {
		writeMessage(w, http.StatusBadRequest, "manualPurchaseAmount must be positive")
		return
	}

	t, err := h.host.UpdateTrackerState(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "symbol"), patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handler) DeleteTracker(w http.ResponseWriter, r *http.Request) {
	if err := h.host.DeleteTracker(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "symbol")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Metrics(w http.ResponseWriter, r *http.Request) {
	m, err := h.host.GetPortfolioMetrics(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *Handler) Ledger(w http.ResponseWriter, r *http.Request) {
	entries, err := h.host.GetLedger(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if entries == nil {
		entries = []domain.LedgerEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// AppendLedger body: {"amount": -25, "symbol": "N/A", "description": "..."}.
// El saldo lo calcula el banco.
func (h *Handler) AppendLedger(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount      float64 `json:"amount"`
		Symbol      string  `json:"symbol"`
		Description string  `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Symbol == "" {
		req.Symbol = domain.NoSymbol
	}

	id := chi.URLParam(r, "id")
	entry := domain.LedgerEntry{Amount: req.Amount, Symbol: req.Symbol, Description: req.Description}
	if err := h.host.AppendLedgerEntry(r.Context(), id, entry); err != nil {
		writeError(w, err)
		return
	}
	entries, err := h.host.GetLedger(r.Context(), id)
	if err != nil || len(entries) == 0 {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entries[len(entries)-1])
}

func (h *Handler) Cycles(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeMessage(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	cycles, err := h.host.RecentCycles(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if cycles == nil {
		cycles = []domain.CycleSummary{}
	}
	writeJSON(w, http.StatusOK, cycles)
}

func (h *Handler) known(id string) bool {
	for _, p := range h.host.Profiles() {
		if p == id {
			return true
		}
	}
	return false
}

// statusFor traduce los errores de dominio a códigos HTTP.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrProfileNotFound),
		errors.Is(err, domain.ErrTrackerNotFound),
		errors.Is(err, domain.ErrProductNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrTrackerExists), errors.Is(err, domain.ErrLockHeld):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidAmount), errors.Is(err, domain.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	if err == nil {
		writeMessage(w, http.StatusInternalServerError, "internal error")
		return
	}
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error("server: request failed", "err", err)
	}
	writeMessage(w, status, err.Error())
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("server: encoding response", "err", err)
	}
}
