package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/Sternrassler/loteria-results-proxy/pkg/apperr"
	"github.com/Sternrassler/loteria-results-proxy/pkg/logging"
)

// HeaderCacheTTL carries the remaining cache lifetime of a response in seconds.
const HeaderCacheTTL = "X-Cache-TTL"

const statusError = "error"

// errorBody is the error envelope returned for every failed request.
type errorBody struct {
	Status    string          `json:"status"`
	Code      string          `json:"code"`
	Message   string          `json:"message"`
	Timestamp string          `json:"timestamp,omitempty"`
	RequestID string          `json:"requestId,omitempty"`
	Details   *apperr.Context `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeRaw(w http.ResponseWriter, raw json.RawMessage) {
	if len(raw) == 0 {
		raw = json.RawMessage("null")
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

func writeCached(w http.ResponseWriter, remainingTTL int, v any) {
	w.Header().Set(HeaderCacheTTL, strconv.Itoa(remainingTTL))
	writeJSON(w, http.StatusOK, v)
}

// writeError logs err and sends the error envelope.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	requestID := logging.RequestID(ctx)

	body := errorBody{
		Status:    statusError,
		Code:      apperr.CodeInternal,
		Message:   "Internal server error",
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		RequestID: requestID,
	}
	status := http.StatusInternalServerError

	var details apperr.Context
	if appErr, ok := apperr.As(err); ok {
		status = appErr.HTTPStatus()
		body.Code = appErr.Code()
		body.Message = appErr.Message
		details = appErr.Context
	}
	details.RequestID = requestID

	if s.opts.Development {
		body.Details = &details
	}

	logger := logging.FromContext(ctx, s.logger)
	event := logger.Info()
	msg := "Client error occurred"
	switch {
	case status >= http.StatusInternalServerError:
		event = logger.Error()
		msg = "Server error occurred"
	case status == http.StatusTooManyRequests:
		event = logger.Warn()
		msg = "Rate limit exceeded"
	}
	event.Err(err).
		Int("status", status).
		Str("code", body.Code).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Msg(msg)

	writeJSON(w, status, body)
}
