package httpapi

import (
	"errors"
	"net/http"
	"slices"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-logr/logr"

	"csms/internal/models"
	"csms/internal/store"
)

type connectedCharger struct {
	Identity  string `json:"identity"`
	Connected bool   `json:"connected"`
}

// ListChargers returns the identities with a live connection.
func (s *Server) ListChargers(w http.ResponseWriter, r *http.Request) {
	ids := s.Connected()
	items := make([]connectedCharger, 0, len(ids))
	for _, id := range ids {
		items = append(items, connectedCharger{Identity: id, Connected: true})
	}
	logr.FromContextOrDiscard(r.Context()).V(1).Info("listed connected chargers", "count", len(items))
	writeData(w, map[string]any{"chargers": items})
}

type chargerView struct {
	*models.ChargePoint
	Connected bool `json:"connected"`
}

func (s *Server) GetCharger(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "identity")
	cp, err := s.ChargePoints.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "charger not found", nil)
		return
	}
	if err != nil {
		logr.FromContextOrDiscard(r.Context()).Error(err, "get charger", "chargePointId", id)
		writeError(w, http.StatusInternalServerError, "db error", nil)
		return
	}
	writeData(w, chargerView{ChargePoint: cp, Connected: slices.Contains(s.Connected(), id)})
}

func (s *Server) ListTransactions(w http.ResponseWriter, r *http.Request) {
	cp := chi.URLParam(r, "identity")
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	items, err := s.Ledger.ListByChargePoint(r.Context(), cp, store.ClampLimit(limit))
	if err != nil {
		logr.FromContextOrDiscard(r.Context()).Error(err, "list transactions", "chargePointId", cp)
		writeError(w, http.StatusInternalServerError, "db error", nil)
		return
	}
	if items == nil {
		items = []models.Transaction{}
	}
	writeData(w, map[string]any{"transactions": items})
}

func (s *Server) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "transactionId"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid transaction id", nil)
		return
	}
	tx, err := s.Ledger.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "transaction not found", nil)
		return
	}
	if err != nil {
		logr.FromContextOrDiscard(r.Context()).Error(err, "get transaction", "transactionId", id)
		writeError(w, http.StatusInternalServerError, "db error", nil)
		return
	}
	writeData(w, tx)
}
