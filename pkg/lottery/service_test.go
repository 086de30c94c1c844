package lottery

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/Sternrassler/loteria-results-proxy/pkg/apperr"
	"github.com/Sternrassler/loteria-results-proxy/pkg/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeUpstream returns canned payloads and counts calls per operation.
type fakeUpstream struct {
	mu    sync.Mutex
	calls map[string]int

	state    string
	config   string
	realtime string
	ticket   string
	results  string
	err      error
}

func newFakeUpstream() *fakeUpstream {
	return &fakeUpstream{
		calls:    make(map[string]int),
		state:    `{"statusLNACcelebration":false,"estadoCelebracionLNAC":false}`,
		config:   `{"fechaSorteo":"2025-12-22"}`,
		realtime: `{"estadoCelebracionLNAC":true,"primerPremio":{"decimo":"72480","prize":40000000}}`,
		ticket:   `{"compruebe":[{"decimo":"072480","prize":40000000,"prizeType":"G"}]}`,
		results:  `{"primerPremio":{"decimo":"72480","prize":40000000},"reintegros":[{"decimo":"0","prize":2000,"prizeType":"R"}]}`,
	}
}

func (f *fakeUpstream) record(op string, body string) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	if f.err != nil {
		return nil, f.err
	}
	return json.RawMessage(body), nil
}

func (f *fakeUpstream) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeUpstream) CelebrationState(ctx context.Context) (json.RawMessage, error) {
	return f.record("state", f.state)
}

func (f *fakeUpstream) LNACConfig(ctx context.Context) (json.RawMessage, error) {
	return f.record("config", f.config)
}

func (f *fakeUpstream) RealtimeResults(ctx context.Context) (json.RawMessage, error) {
	return f.record("realtime", f.realtime)
}

func (f *fakeUpstream) TicketInfo(ctx context.Context, drawID string) (json.RawMessage, error) {
	return f.record("ticket", f.ticket)
}

func (f *fakeUpstream) DrawResults(ctx context.Context, drawID string) (json.RawMessage, error) {
	return f.record("results", f.results)
}

func newTestService(t *testing.T, up *fakeUpstream) *Service {
	t.Helper()
	svc, err := NewService(up, cache.NewManager(cache.DefaultTTLPolicy()))
	require.NoError(t, err)
	return svc
}

func TestNewService_RequiresCollaborators(t *testing.T) {
	_, err := NewService(nil, cache.NewManager(cache.DefaultTTLPolicy()))
	assert.Error(t, err)

	_, err = NewService(newFakeUpstream(), nil)
	assert.Error(t, err)
}

func TestService_PassThroughIsUncached(t *testing.T) {
	up := newFakeUpstream()
	svc := newTestService(t, up)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := svc.GetCelebrationState(ctx)
		require.NoError(t, err)
		_, err = svc.GetTicketInfo(ctx, "1259409102")
		require.NoError(t, err)
		_, err = svc.GetLNACConfig(ctx)
		require.NoError(t, err)
	}

	assert.Equal(t, 2, up.count("state"))
	assert.Equal(t, 2, up.count("ticket"))
	assert.Equal(t, 2, up.count("config"))
}

func TestService_GetDrawResults_CachedAndNormalized(t *testing.T) {
	up := newFakeUpstream()
	svc := newTestService(t, up)
	ctx := context.Background()

	first, err := svc.GetDrawResults(ctx, "1259409102")
	require.NoError(t, err)
	assert.Equal(t, 1800, first.RemainingTTL)

	items := first.Data.Items()
	require.Len(t, items, 2)
	assert.Equal(t, "G", items[0].PrizeType)
	assert.True(t, items[1].IsReintegro)

	second, err := svc.GetDrawResults(ctx, "1259409102")
	require.NoError(t, err)
	assert.Same(t, first.Data, second.Data)
	assert.Equal(t, 1, up.count("results"))
}

func TestService_GetRealtimeResults_LiveTTL(t *testing.T) {
	up := newFakeUpstream()
	svc := newTestService(t, up)

	res, err := svc.GetRealtimeResults(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 30, res.RemainingTTL)
	assert.True(t, res.Data.CelebrationInProgress())
}

func TestService_GetCurrentResults_Fallback(t *testing.T) {
	tests := []struct {
		name         string
		state        string
		wantRealtime int
		wantResults  int
		wantTTL      int
	}{
		{
			name:         "draw in progress uses realtime feed",
			state:        `{"statusLNACcelebration":true}`,
			wantRealtime: 1,
			wantTTL:      30,
		},
		{
			name:        "no draw in progress uses final results",
			state:       `{"statusLNACcelebration":false}`,
			wantResults: 1,
			wantTTL:     1800,
		},
		{
			name:         "estado flag also selects realtime",
			state:        `{"estadoCelebracionLNAC":true}`,
			wantRealtime: 1,
			wantTTL:      30,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			up := newFakeUpstream()
			up.state = tt.state
			// Realtime payload without its own flag: the fallback marks it live.
			up.realtime = `{"primerPremio":{"decimo":"72480","prize":40000000}}`
			svc := newTestService(t, up)

			res, err := svc.GetCurrentResults(context.Background(), "1259409102")
			require.NoError(t, err)

			assert.Equal(t, tt.wantRealtime, up.count("realtime"))
			assert.Equal(t, tt.wantResults, up.count("results"))
			assert.Equal(t, tt.wantTTL, res.RemainingTTL)
			assert.Equal(t, 1, up.count("state"))
		})
	}
}

func TestService_GetCurrentResults_DecisionNotCachedSeparately(t *testing.T) {
	up := newFakeUpstream()
	svc := newTestService(t, up)
	ctx := context.Background()

	_, err := svc.GetCurrentResults(ctx, "1259409102")
	require.NoError(t, err)
	_, err = svc.GetCurrentResults(ctx, "1259409102")
	require.NoError(t, err)
	assert.Equal(t, 1, up.count("state"), "hit must not re-query state")

	require.True(t, svc.ClearCache(ctx))
	up.state = `{"statusLNACcelebration":true}`

	_, err = svc.GetCurrentResults(ctx, "1259409102")
	require.NoError(t, err)
	assert.Equal(t, 2, up.count("state"))
	assert.Equal(t, 1, up.count("realtime"))
}

func TestService_FetchErrorPropagates(t *testing.T) {
	up := newFakeUpstream()
	upstreamErr := apperr.External(apperr.ReasonBadStatus, "upstream returned 500", apperr.Context{UpstreamStatus: 500}, nil)
	up.err = upstreamErr
	svc := newTestService(t, up)
	ctx := context.Background()

	_, err := svc.GetDrawResults(ctx, "1259409102")
	require.Error(t, err)
	assert.True(t, errors.Is(err, upstreamErr))

	up.err = nil
	_, err = svc.GetDrawResults(ctx, "1259409102")
	require.NoError(t, err)
	assert.Equal(t, 2, up.count("results"), "failed fetch must not be cached")
}

func TestService_ClearCache(t *testing.T) {
	up := newFakeUpstream()
	svc := newTestService(t, up)
	ctx := context.Background()

	assert.False(t, svc.ClearCache(ctx))

	_, err := svc.GetDrawResults(ctx, "1259409102")
	require.NoError(t, err)

	assert.True(t, svc.ClearCache(ctx))

	_, err = svc.GetDrawResults(ctx, "1259409102")
	require.NoError(t, err)
	assert.Equal(t, 2, up.count("results"))
}
