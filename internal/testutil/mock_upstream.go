// Package testutil provides testing utilities for the lottery results proxy.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"time"
)

// Upstream paths served by the lottery results website.
const (
	PathCelebrationState = "/f/loterias/estaticos/json/estadoCelebracionLNAC.json"
	PathLNACConfig       = "/f/loterias/estaticos/json/configuracionLNAC.json"
	PathRealtimeResults  = "/servicios/resultados1"
	PathCheckTicket      = "/servicios/premioDecimoWeb"
	PathDrawResults      = "/servicios/resultados2"
)

// MockResponse defines the behavior for a mock upstream endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockUpstream is a configurable mock of the lottery results website.
type MockUpstream struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]http.HandlerFunc

	requestCount  int
	pathCounts    map[string]int
	lastQuery     map[string]url.Values
	lastUserAgent string
}

// NewMockUpstream creates a new mock upstream server.
func NewMockUpstream() *MockUpstream {
	mock := &MockUpstream{
		handlers:   make(map[string]http.HandlerFunc),
		pathCounts: make(map[string]int),
		lastQuery:  make(map[string]url.Values),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.requestCount++
		mock.pathCounts[r.URL.Path]++
		mock.lastQuery[r.URL.Path] = r.URL.Query()
		mock.lastUserAgent = r.Header.Get("User-Agent")
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}

		http.NotFound(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockUpstream) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockUpstream) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockUpstream) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount = 0
	m.pathCounts = make(map[string]int)
	m.lastQuery = make(map[string]url.Values)
	m.lastUserAgent = ""
}

// SetHandler sets a custom handler for a specific path.
func (m *MockUpstream) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a simple response for a path.
func (m *MockUpstream) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			select {
			case <-time.After(resp.Delay):
			case <-r.Context().Done():
				return
			}
		}

		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}

		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			_, _ = w.Write([]byte(resp.Body))
		}
	})
}

// SetJSON configures a 200 OK JSON response for a path.
func (m *MockUpstream) SetJSON(path, body string) {
	m.SetResponse(path, NewJSONResponse(body))
}

// RequestCount returns the number of requests made to the server.
func (m *MockUpstream) RequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requestCount
}

// PathCount returns the number of requests made to path.
func (m *MockUpstream) PathCount(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pathCounts[path]
}

// LastQuery returns the query of the most recent request to path.
func (m *MockUpstream) LastQuery(path string) url.Values {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastQuery[path]
}

// LastUserAgent returns the User-Agent of the most recent request.
func (m *MockUpstream) LastUserAgent() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastUserAgent
}

// NewJSONResponse creates a standard 200 OK JSON response.
func NewJSONResponse(data string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       data,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewForbiddenResponse mimics the upstream's bot protection page.
func NewForbiddenResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusForbidden,
		Body:       "<html><body>Access Denied</body></html>",
		Headers: map[string]string{
			"Content-Type": "text/html",
		},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "Internal server error"}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewHTMLResponse creates a 200 OK response whose body is not JSON.
func NewHTMLResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       "<html>maintenance</html>",
		Headers: map[string]string{
			"Content-Type": "text/html",
		},
	}
}

// Sample payloads.
const (
	CelebrationIdle = `{"estadoCelebracionLNAC":false,"statusLNACcelebration":false}`
	CelebrationLive = `{"estadoCelebracionLNAC":true,"statusLNACcelebration":true}`

	DrawResultsFinal = `{
		"drawIdSorteo": "1259409102",
		"primerPremio": {"decimo":"72480","prize":40000000},
		"segundoPremio": {"decimo":"06766","prize":12500000},
		"tercerosPremios": [{"decimo":"11840","prize":5000000}],
		"reintegros": [{"decimo":"0","prize":2000,"prizeType":"R"}]
	}`

	RealtimeResults = `{
		"estadoCelebracionLNAC": true,
		"primerPremio": {"decimo":"72480","prize":40000000}
	}`

	TicketInfoGordo = `{"compruebe":[
		{"decimo":"072480","prize":40000000,"prizeType":"G"},
		{"decimo":"006766","prize":12500000,"prizeType":"Z "}
	]}`
)
