package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"binance-portfolio-api/internal/models"
	"binance-portfolio-api/internal/report"
	"go.uber.org/zap"
)

const (
	// MissingSymbolMessage is the 400 error for /orders without a symbol.
	MissingSymbolMessage = "Missing 'symbol' query parameter. Example: /orders?symbol=RUNEUSDT"
	// MissingSnapshotSymbolMessage is the 400 error for /snapshots without a symbol.
	MissingSnapshotSymbolMessage = "Missing 'symbol' query parameter. Example: /snapshots?symbol=RUNEUSDT"
)

// ErrorResponse is the error body for every endpoint.
type ErrorResponse struct {
	Error string `json:"error"`
}

// SnapshotList is the response body of GET /snapshots.
type SnapshotList struct {
	Pair  string            `json:"pair"`
	Total int               `json:"total"`
	Data  []models.Snapshot `json:"data"`
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("Failed to encode response", zap.Int("status", statusCode), zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	s.writeJSON(w, statusCode, ErrorResponse{Error: message})
}

// requireGet writes a 405 and returns false for anything but GET.
func (s *Server) requireGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method == http.MethodGet {
		return true
	}
	w.Header().Set("Allow", http.MethodGet)
	s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	return false
}

// ordersHandler returns the order history, trade history and portfolio
// metrics for one trading pair.
func (s *Server) ordersHandler(w http.ResponseWriter, r *http.Request) {
	if !s.requireGet(w, r) {
		return
	}

	symbol := strings.TrimSpace(r.URL.Query().Get("symbol"))
	rep, err := s.service.Build(r.Context(), symbol, requestID(r))
	if err != nil {
		if errors.Is(err, report.ErrMissingSymbol) {
			s.writeError(w, http.StatusBadRequest, MissingSymbolMessage)
			return
		}
		s.logger.Error("Failed to build portfolio report",
			zap.String("request_id", requestID(r)),
			zap.String("symbol", symbol),
			zap.Error(err),
		)
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("Error retrieving data for symbol %s", symbol))
		return
	}

	s.writeJSON(w, http.StatusOK, rep)
}

// snapshotsHandler returns previously recorded metrics for a pair, most recent first.
func (s *Server) snapshotsHandler(w http.ResponseWriter, r *http.Request) {
	if !s.requireGet(w, r) {
		return
	}

	query := r.URL.Query()
	symbol := strings.TrimSpace(query.Get("symbol"))

	limit := 0
	if raw := query.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "Query parameter 'limit' must be a positive integer")
			return
		}
		limit = n
	}

	snapshots, err := s.service.Snapshots(r.Context(), symbol, limit)
	switch {
	case errors.Is(err, report.ErrMissingSymbol):
		s.writeError(w, http.StatusBadRequest, MissingSnapshotSymbolMessage)
		return
	case errors.Is(err, report.ErrSnapshotsDisabled):
		s.writeError(w, http.StatusServiceUnavailable, "Snapshot recording is disabled")
		return
	case err != nil:
		s.logger.Error("Failed to list snapshots", zap.String("symbol", symbol), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("Error retrieving snapshots for symbol %s", symbol))
		return
	}

	s.writeJSON(w, http.StatusOK, SnapshotList{Pair: symbol, Total: len(snapshots), Data: snapshots})
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}
