package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/aristath/stocktrader/internal/database"
)

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]string{}
	status := http.StatusOK
	for name, db := range map[string]*database.DB{
		"ledger":      s.container.LedgerDB,
		"client_data": s.container.ClientDataDB,
	} {
		if db == nil {
			checks[name] = "not initialized"
			status = http.StatusServiceUnavailable
			continue
		}
		if err := db.QuickCheck(ctx); err != nil {
			s.log.Warn().Err(err).Str("database", name).Msg("Health check failed")
			checks[name] = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	response := map[string]interface{}{
		"status":    "healthy",
		"service":   "stocktrader",
		"databases": checks,
	}
	if status != http.StatusOK {
		response["status"] = "degraded"
	}

	s.writeJSON(w, status, response)
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
