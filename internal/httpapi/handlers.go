package httpapi

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/Sternrassler/loteria-results-proxy/pkg/apperr"
	"github.com/Sternrassler/loteria-results-proxy/pkg/logging"
)

// Validation messages.
const (
	MessageDrawIDLength = "Draw ID must be exactly 10 characters long"
	MessageDrawIDDigits = "Draw ID must contain only numbers"
	MessageTicketLength = "Ticket number must be exactly 5 digits long"
	MessageTicketDigits = "Ticket number must contain only digits"
)

const (
	drawIDLength = 10
	ticketLength = 5
)

// MessageCacheCleared is returned by the clear cache route.
const MessageCacheCleared = "Cache cleared successfully"

type clearCacheResponse struct {
	Message string `json:"message"`
	Cleared bool   `json:"cleared"`
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	raw, err := s.opts.Service.GetCelebrationState(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeRaw(w, raw)
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	raw, err := s.opts.Service.GetLNACConfig(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeRaw(w, raw)
}

func (s *Server) handleTicketInfo(w http.ResponseWriter, r *http.Request) {
	drawID, err := validateDrawID(mux.Vars(r)["drawId"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	raw, err := s.opts.Service.GetTicketInfo(r.Context(), drawID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeRaw(w, raw)
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	drawID, err := validateDrawID(mux.Vars(r)["drawId"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.opts.Service.GetDrawResults(r.Context(), drawID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeCached(w, res.RemainingTTL, res.Data)
}

// handleCurrentResults serves live results during a draw and the final
// results of the requested, or default, draw otherwise.
func (s *Server) handleCurrentResults(w http.ResponseWriter, r *http.Request) {
	drawID := s.opts.DefaultDrawID
	if q := r.URL.Query().Get("drawId"); q != "" {
		var err error
		if drawID, err = validateDrawID(q); err != nil {
			s.writeError(w, r, err)
			return
		}
	}

	res, err := s.opts.Service.GetCurrentResults(r.Context(), drawID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeCached(w, res.RemainingTTL, res.Data)
}

func (s *Server) handleRealtime(w http.ResponseWriter, r *http.Request) {
	res, err := s.opts.Service.GetRealtimeResults(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeCached(w, res.RemainingTTL, res.Data)
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	drawID, err := validateDrawID(vars["drawId"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ticket, err := validateTicketNumber(vars["ticketNumber"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	result, err := s.opts.Service.CheckTicketNumber(r.Context(), drawID, ticket)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	cleared := s.opts.Service.ClearCache(r.Context())
	logger := logging.FromContext(r.Context(), s.logger)
	logger.Info().Bool("cleared", cleared).Msg("Cache clear requested")
	writeJSON(w, http.StatusOK, clearCacheResponse{Message: MessageCacheCleared, Cleared: cleared})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.writeError(w, r, apperr.NotFound("Route "+r.URL.Path+" not found"))
}

func (s *Server) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	s.writeError(w, r, apperr.NotFound("Method "+r.Method+" not supported for "+r.URL.Path))
}

func validateDrawID(raw string) (string, error) {
	id := strings.TrimSpace(raw)
	if len(id) != drawIDLength {
		return "", apperr.Validation("drawId", MessageDrawIDLength)
	}
	if !allDigits(id) {
		return "", apperr.Validation("drawId", MessageDrawIDDigits)
	}
	return id, nil
}

func validateTicketNumber(raw string) (string, error) {
	ticket := strings.TrimSpace(raw)
	if len(ticket) != ticketLength {
		return "", apperr.Validation("ticketNumber", MessageTicketLength)
	}
	if !allDigits(ticket) {
		return "", apperr.Validation("ticketNumber", MessageTicketDigits)
	}
	return ticket, nil
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
