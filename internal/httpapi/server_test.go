package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sternrassler/loteria-results-proxy/pkg/apperr"
	"github.com/Sternrassler/loteria-results-proxy/pkg/lottery"
	"github.com/Sternrassler/loteria-results-proxy/pkg/prize"
)

const testDrawID = "1259409102"

// fakeService records the draw ids it was asked for.
type fakeService struct {
	mu      sync.Mutex
	drawIDs []string
	cleared bool
	err     error
	panics  bool
	results *prize.DrawResult
	ticket  lottery.TicketResult
}

func newFakeService(t *testing.T) *fakeService {
	t.Helper()
	res, err := prize.NormalizeResults(context.Background(),
		[]byte(`{"primerPremio":{"decimo":"72480","prize":40000000},"fechaSorteo":"2025-12-22"}`))
	require.NoError(t, err)
	return &fakeService{results: res}
}

func (f *fakeService) seen(drawID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drawIDs = append(f.drawIDs, drawID)
}

func (f *fakeService) lastDrawID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.drawIDs) == 0 {
		return ""
	}
	return f.drawIDs[len(f.drawIDs)-1]
}

func (f *fakeService) GetCelebrationState(ctx context.Context) (json.RawMessage, error) {
	if f.panics {
		panic("boom")
	}
	if f.err != nil {
		return nil, f.err
	}
	return json.RawMessage(`{"estadoCelebracionLNAC":false}`), nil
}

func (f *fakeService) GetLNACConfig(ctx context.Context) (json.RawMessage, error) {
	return json.RawMessage(`{"fechaSorteo":"2025-12-22"}`), f.err
}

func (f *fakeService) GetTicketInfo(ctx context.Context, drawID string) (json.RawMessage, error) {
	f.seen(drawID)
	return json.RawMessage(`{"compruebe":[]}`), f.err
}

func (f *fakeService) GetDrawResults(ctx context.Context, drawID string) (lottery.Cached[*prize.DrawResult], error) {
	f.seen(drawID)
	if f.err != nil {
		return lottery.Cached[*prize.DrawResult]{}, f.err
	}
	return lottery.Cached[*prize.DrawResult]{Data: f.results, RemainingTTL: 1799}, nil
}

func (f *fakeService) GetRealtimeResults(ctx context.Context) (lottery.Cached[*prize.DrawResult], error) {
	return lottery.Cached[*prize.DrawResult]{Data: f.results, RemainingTTL: 30}, f.err
}

func (f *fakeService) GetCurrentResults(ctx context.Context, drawID string) (lottery.Cached[*prize.DrawResult], error) {
	f.seen(drawID)
	return lottery.Cached[*prize.DrawResult]{Data: f.results, RemainingTTL: 12}, f.err
}

func (f *fakeService) CheckTicketNumber(ctx context.Context, drawID, ticketNumber string) (lottery.TicketResult, error) {
	f.seen(drawID)
	res := f.ticket
	res.Decimo = ticketNumber
	return res, f.err
}

func (f *fakeService) ClearCache(ctx context.Context) bool {
	return f.cleared
}

func newTestServer(t *testing.T, svc LotteryService, mutate ...func(*Options)) http.Handler {
	t.Helper()
	opts := Options{Service: svc, DefaultDrawID: testDrawID, Development: true}
	for _, m := range mutate {
		m(&opts)
	}
	s, err := New(opts)
	require.NoError(t, err)
	return s.Handler()
}

func do(h http.Handler, method, target string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), "body: %s", w.Body.String())
	return body
}

func TestNew_RequiresService(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	h := newTestServer(t, newFakeService(t))

	w := do(h, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())

	_, err := uuid.Parse(w.Header().Get(HeaderRequestID))
	assert.NoError(t, err, "X-Request-ID must be a uuid")
}

func TestRequestID_Propagated(t *testing.T) {
	h := newTestServer(t, newFakeService(t))
	id := uuid.NewString()

	w := do(h, http.MethodGet, "/health", HeaderRequestID, id)
	assert.Equal(t, id, w.Header().Get(HeaderRequestID))

	w = do(h, http.MethodGet, "/health", HeaderRequestID, "not-a-uuid")
	assert.NotEqual(t, "not-a-uuid", w.Header().Get(HeaderRequestID))
}

func TestReady(t *testing.T) {
	t.Run("no dependency", func(t *testing.T) {
		h := newTestServer(t, newFakeService(t))
		w := do(h, http.MethodGet, "/ready")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"status":"ready"}`, w.Body.String())
	})

	t.Run("dependency down", func(t *testing.T) {
		h := newTestServer(t, newFakeService(t), func(o *Options) {
			o.Ready = func(ctx context.Context) error { return errors.New("connection refused") }
		})
		w := do(h, http.MethodGet, "/ready")
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Contains(t, w.Body.String(), "connection refused")
	})
}

func TestMetricsRoute(t *testing.T) {
	h := newTestServer(t, newFakeService(t))
	do(h, http.MethodGet, "/api/lottery/state")

	w := do(h, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `lottery_http_requests_total{method="GET",route="/api/lottery/state",status="200"}`)
}

func TestPassThroughRoutes(t *testing.T) {
	svc := newFakeService(t)
	h := newTestServer(t, svc)

	tests := []struct {
		path string
		want string
	}{
		{"/api/lottery/state", `{"estadoCelebracionLNAC":false}`},
		{"/api/lottery/config", `{"fechaSorteo":"2025-12-22"}`},
		{"/api/lottery/ticket/" + testDrawID, `{"compruebe":[]}`},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := do(h, http.MethodGet, tt.path)
			assert.Equal(t, http.StatusOK, w.Code)
			assert.JSONEq(t, tt.want, w.Body.String())
			assert.Empty(t, w.Header().Get(HeaderCacheTTL))
			assert.Contains(t, w.Header().Get("Content-Type"), "application/json")
		})
	}
}

func TestResults_CachedResponse(t *testing.T) {
	svc := newFakeService(t)
	h := newTestServer(t, svc)

	w := do(h, http.MethodGet, "/api/lottery/results/"+testDrawID)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1799", w.Header().Get(HeaderCacheTTL))
	assert.Equal(t, testDrawID, svc.lastDrawID())

	var body struct {
		FechaSorteo     string `json:"fechaSorteo"`
		NormalizedItems []struct {
			Decimo       string `json:"decimo"`
			PrizeType    string `json:"prizeType"`
			DisplayPrize int64  `json:"displayPrize"`
		} `json:"normalizedItems"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "2025-12-22", body.FechaSorteo)
	require.Len(t, body.NormalizedItems, 1)
	assert.Equal(t, "72480", body.NormalizedItems[0].Decimo)
	assert.Equal(t, "G", body.NormalizedItems[0].PrizeType)
	assert.Equal(t, int64(400000), body.NormalizedItems[0].DisplayPrize)
}

func TestRealtime(t *testing.T) {
	h := newTestServer(t, newFakeService(t))

	w := do(h, http.MethodGet, "/api/lottery/realtime")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "30", w.Header().Get(HeaderCacheTTL))
}

func TestCurrentResults_DrawID(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		wantStatus int
		wantDrawID string
	}{
		{"default draw", "/api/lottery/results", http.StatusOK, testDrawID},
		{"explicit draw", "/api/lottery/results?drawId=1234567890", http.StatusOK, "1234567890"},
		{"invalid draw", "/api/lottery/results?drawId=12", http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newFakeService(t)
			h := newTestServer(t, svc)

			w := do(h, http.MethodGet, tt.target)
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantDrawID, svc.lastDrawID())
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, "12", w.Header().Get(HeaderCacheTTL))
			}
		})
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name        string
		path        string
		wantMessage string
	}{
		{"draw id too short", "/api/lottery/results/12345", MessageDrawIDLength},
		{"draw id too long", "/api/lottery/ticket/12345678901", MessageDrawIDLength},
		{"draw id letters", "/api/lottery/results/12345abcde", MessageDrawIDDigits},
		{"ticket too short", "/api/lottery/check/" + testDrawID + "/1234", MessageTicketLength},
		{"ticket letters", "/api/lottery/check/" + testDrawID + "/12a45", MessageTicketDigits},
		{"check with bad draw", "/api/lottery/check/abc/12345", MessageDrawIDLength},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newFakeService(t)
			h := newTestServer(t, svc)

			w := do(h, http.MethodGet, tt.path)
			require.Equal(t, http.StatusBadRequest, w.Code)

			body := decodeError(t, w)
			assert.Equal(t, "error", body.Status)
			assert.Equal(t, apperr.CodeValidation, body.Code)
			assert.Equal(t, tt.wantMessage, body.Message)
			assert.NotEmpty(t, body.Timestamp)
			assert.Equal(t, w.Header().Get(HeaderRequestID), body.RequestID)
			assert.Empty(t, svc.lastDrawID(), "service must not be called")
		})
	}
}

func TestCheckTicket(t *testing.T) {
	svc := newFakeService(t)
	prizeType := "G"
	svc.ticket = lottery.TicketResult{IsPremiado: true, PrizeEuros: 400000, PrizeType: &prizeType, Message: "El Gordo!"}
	h := newTestServer(t, svc)

	w := do(h, http.MethodGet, "/api/lottery/check/"+testDrawID+"/72480")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t,
		`{"decimo":"72480","isPremiado":true,"prizeEuros":400000,"prizeType":"G","message":"El Gordo!"}`,
		w.Body.String())
}

func TestCheckTicket_NoPrizeHasNullType(t *testing.T) {
	svc := newFakeService(t)
	svc.ticket = lottery.TicketResult{Message: "No prize"}
	h := newTestServer(t, svc)

	w := do(h, http.MethodGet, "/api/lottery/check/"+testDrawID+"/11111")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t,
		`{"decimo":"11111","isPremiado":false,"prizeEuros":0,"prizeType":null,"message":"No prize"}`,
		w.Body.String())
}

func TestClearCache(t *testing.T) {
	for _, cleared := range []bool{true, false} {
		svc := newFakeService(t)
		svc.cleared = cleared
		h := newTestServer(t, svc)

		w := do(h, http.MethodGet, "/api/lottery/clearcache")
		require.Equal(t, http.StatusOK, w.Code)

		var body clearCacheResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, MessageCacheCleared, body.Message)
		assert.Equal(t, cleared, body.Cleared)
	}
}

func TestErrorEnvelope(t *testing.T) {
	upstream := apperr.External(apperr.ReasonBadStatus, "Access denied by external API",
		apperr.Context{Operation: "celebration-state", UpstreamStatus: 403}, nil)
	timeout := apperr.External(apperr.ReasonTimeout, "external API request failed",
		apperr.Context{Operation: "celebration-state"}, context.DeadlineExceeded)

	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantCode    string
		wantMessage string
	}{
		{"upstream status", upstream, http.StatusBadGateway, apperr.CodeExternal, "Access denied by external API"},
		{"upstream timeout", timeout, http.StatusGatewayTimeout, apperr.CodeTimeout, "external API request failed"},
		{"untagged", errors.New("disk on fire"), http.StatusInternalServerError, apperr.CodeInternal, "Internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newFakeService(t)
			svc.err = tt.err
			h := newTestServer(t, svc)

			w := do(h, http.MethodGet, "/api/lottery/state")
			require.Equal(t, tt.wantStatus, w.Code)

			body := decodeError(t, w)
			assert.Equal(t, tt.wantCode, body.Code)
			assert.Equal(t, tt.wantMessage, body.Message)
			require.NotNil(t, body.Details, "development responses carry details")
			assert.Equal(t, body.RequestID, body.Details.RequestID)
		})
	}
}

func TestErrorEnvelope_ProductionOmitsDetails(t *testing.T) {
	svc := newFakeService(t)
	svc.err = apperr.External(apperr.ReasonBadStatus, "External API error: status 500",
		apperr.Context{UpstreamStatus: 500, Body: "secret"}, nil)
	h := newTestServer(t, svc, func(o *Options) { o.Development = false })

	w := do(h, http.MethodGet, "/api/lottery/state")
	require.Equal(t, http.StatusBadGateway, w.Code)
	assert.NotContains(t, w.Body.String(), "details")
	assert.NotContains(t, w.Body.String(), "secret")
}

func TestPanicRecovered(t *testing.T) {
	svc := newFakeService(t)
	svc.panics = true
	h := newTestServer(t, svc)

	w := do(h, http.MethodGet, "/api/lottery/state")
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, apperr.CodeInternal, decodeError(t, w).Code)
}

func TestNotFound(t *testing.T) {
	h := newTestServer(t, newFakeService(t))

	w := do(h, http.MethodGet, "/api/lottery/unknown")
	require.Equal(t, http.StatusNotFound, w.Code)
	body := decodeError(t, w)
	assert.Equal(t, apperr.CodeNotFound, body.Code)
	assert.NotEmpty(t, body.RequestID)
}

// deadlineService records the deadline of the request context.
type deadlineService struct {
	*fakeService
	deadline time.Time
	ok       bool
}

func (d *deadlineService) GetLNACConfig(ctx context.Context) (json.RawMessage, error) {
	d.deadline, d.ok = ctx.Deadline()
	return d.fakeService.GetLNACConfig(ctx)
}

func TestRequestTimeout(t *testing.T) {
	tests := []struct {
		name         string
		timeout      time.Duration
		wantDeadline bool
	}{
		{"bounded", 2 * time.Second, true},
		{"disabled", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &deadlineService{fakeService: newFakeService(t)}
			h := newTestServer(t, svc, func(o *Options) { o.RequestTimeout = tt.timeout })

			start := time.Now()
			w := do(h, http.MethodGet, "/api/lottery/config")
			require.Equal(t, http.StatusOK, w.Code)

			assert.Equal(t, tt.wantDeadline, svc.ok)
			if tt.wantDeadline {
				assert.WithinDuration(t, start.Add(tt.timeout), svc.deadline, time.Second)
			}
		})
	}
}
