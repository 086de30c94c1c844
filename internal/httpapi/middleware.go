package httpapi

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/Sternrassler/loteria-results-proxy/pkg/apperr"
	"github.com/Sternrassler/loteria-results-proxy/pkg/logging"
	"github.com/Sternrassler/loteria-results-proxy/pkg/metrics"
)

// Header names.
const (
	HeaderRequestID          = "X-Request-ID"
	HeaderRealIP             = "X-Real-IP"
	HeaderRateLimitLimit     = "RateLimit-Limit"
	HeaderRateLimitRemaining = "RateLimit-Remaining"
	HeaderRateLimitReset     = "RateLimit-Reset"
)

// MessageTooManyRequests is the body message of a rejected request.
const MessageTooManyRequests = "Too many requests from this IP, please try again later."

// requestID assigns every request an identifier, reusing a well-formed
// incoming X-Request-ID.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderRequestID)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, id)
		next.ServeHTTP(w, r.WithContext(logging.WithRequestID(r.Context(), id)))
	})
}

// deadline cancels the request context after RequestTimeout so upstream
// calls end in time to write an error response.
func (s *Server) deadline(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.opts.RequestTimeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) recoverPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger := logging.FromContext(r.Context(), s.logger)
				logger.Error().
					Interface("panic", rec).
					Str("path", r.URL.Path).
					Msg("Recovered from handler panic")
				s.writeError(w, r, apperr.Internal("unexpected handler failure", apperr.Context{}, nil))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// observe records HTTP metrics and writes the access log line.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		metrics.HTTPInFlight.Inc()
		defer metrics.HTTPInFlight.Dec()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		route := routeTemplate(r)
		metrics.ObserveHTTP(r.Method, route, wrapped.statusCode, duration)

		logger := logging.FromContext(r.Context(), s.logger)
		event := logger.Info()
		if route == "/health" || route == "/metrics" {
			event = logger.Debug()
		}
		event.
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("route", route).
			Int("status", wrapped.statusCode).
			Dur("duration", duration).
			Str("client_ip", clientIP(r)).
			Msg("HTTP request")
	})
}

// rateLimit admits requests per client address. Backend failures let the
// request through.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		key := clientIP(r)

		decision, err := s.opts.Limiter.Allow(ctx, key)
		if err != nil {
			logger := logging.FromContext(ctx, s.logger)
			logger.Warn().
				Err(err).
				Str("client_ip", key).
				Msg("Rate limiter unavailable, admitting request")
			next.ServeHTTP(w, r)
			return
		}

		reset := decision.ResetSeconds(time.Now())
		w.Header().Set(HeaderRateLimitLimit, strconv.Itoa(decision.Limit))
		w.Header().Set(HeaderRateLimitRemaining, strconv.Itoa(decision.Remaining))
		w.Header().Set(HeaderRateLimitReset, strconv.Itoa(reset))

		if !decision.Allowed {
			w.Header().Set("Retry-After", strconv.Itoa(reset))
			logger := logging.FromContext(ctx, s.logger)
			logger.Warn().
				Str("client_ip", key).
				Str("path", r.URL.Path).
				Msg("Rate limit exceeded")
			writeJSON(w, http.StatusTooManyRequests, errorBody{
				Status:    statusError,
				Code:      apperr.CodeRateLimit,
				Message:   MessageTooManyRequests,
				RequestID: logging.RequestID(ctx),
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// clientIP prefers X-Real-IP set by the fronting proxy.
func clientIP(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get(HeaderRealIP)); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}
