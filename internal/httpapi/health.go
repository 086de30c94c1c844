package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Sternrassler/loteria-results-proxy/pkg/logging"
)

const readyTimeout = 2 * time.Second

type readyResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.opts.Ready == nil {
		writeJSON(w, http.StatusOK, readyResponse{Status: "ready"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	if err := s.opts.Ready(ctx); err != nil {
		logger := logging.FromContext(r.Context(), s.logger)
		logger.Warn().Err(err).Msg("Readiness check failed")
		writeJSON(w, http.StatusServiceUnavailable, readyResponse{Status: "not_ready", Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, readyResponse{Status: "ready"})
}
