package httpapi

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-logr/logr"

	"csms/internal/centralsystem"
)

type remoteStartReq struct {
	IdTag       string `json:"idTag"`
	ConnectorId *int   `json:"connectorId,omitempty"`
}

type remoteStopReq struct {
	TransactionId *int `json:"transactionId"`
}

func (s *Server) RemoteStart(w http.ResponseWriter, r *http.Request) {
	identity := chi.URLParam(r, "identity")
	var req remoteStartReq
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json", nil)
		return
	}
	conf, err := s.Commands.RemoteStartTransaction(r.Context(), identity, req.ConnectorId, req.IdTag)
	if err != nil {
		s.commandError(w, r, err)
		return
	}
	writeData(w, map[string]any{"ocppResponse": conf})
}

func (s *Server) RemoteStop(w http.ResponseWriter, r *http.Request) {
	identity := chi.URLParam(r, "identity")
	var req remoteStopReq
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json", nil)
		return
	}
	conf, err := s.Commands.RemoteStopTransaction(r.Context(), identity, req.TransactionId)
	if err != nil {
		s.commandError(w, r, err)
		return
	}
	writeData(w, map[string]any{"ocppResponse": conf})
}

// commandError maps gateway outcomes so callers can tell an unreachable
// charger from a bad request from a failed command.
func (s *Server) commandError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr *centralsystem.ValidationError
		cerr *centralsystem.CommandError
	)
	switch {
	case errors.Is(err, centralsystem.ErrNotConnected):
		writeError(w, http.StatusNotFound, "Charger not connected or found.", nil)
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Error(), nil)
	case errors.As(err, &cerr):
		writeError(w, http.StatusBadGateway, "Failed to send command to charger", cerr.Err.Error())
	default:
		logr.FromContextOrDiscard(r.Context()).Error(err, "remote command", "identity", chi.URLParam(r, "identity"))
		writeError(w, http.StatusInternalServerError, "internal error", nil)
	}
}
