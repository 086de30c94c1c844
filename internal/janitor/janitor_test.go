package janitor

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Sternrassler/loteria-results-proxy/pkg/cache"
	"github.com/Sternrassler/loteria-results-proxy/pkg/ratelimit"
)

func TestNew_Schedule(t *testing.T) {
	tests := []struct {
		name     string
		schedule string
		wantErr  bool
	}{
		{"default", "", false},
		{"descriptor", "@every 1m", false},
		{"standard", "*/5 * * * *", false},
		{"invalid", "whenever", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.schedule)
			if (err != nil) != tt.wantErr {
				t.Errorf("New(%q) error = %v, wantErr %v", tt.schedule, err, tt.wantErr)
			}
		})
	}
}

func TestJanitor_AddRequiresFunc(t *testing.T) {
	j, err := New("")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := j.Add("nil", nil); err == nil {
		t.Error("Add(nil) returned nil error")
	}
}

func TestJanitor_RunNowSweepsCacheAndLimiter(t *testing.T) {
	now := time.Date(2025, 12, 22, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	resultCache := cache.NewManager(cache.TTLPolicy{Default: time.Minute, Ticket: time.Minute, Live: time.Second}, cache.WithClock(clock))
	ctx := context.Background()
	for _, key := range []string{"results-1259409102", "results-1234567890"} {
		if _, err := resultCache.GetData(ctx, key, func(context.Context) (any, error) { return "payload", nil }); err != nil {
			t.Fatalf("GetData() error = %v", err)
		}
	}

	limiter := ratelimit.NewMemoryLimiter(ratelimit.Config{Window: time.Hour, MaxRequests: 10})
	limiter.Allow(ctx, "10.0.0.1")

	j, err := New("")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := j.Add("result-cache", resultCache.Sweep); err != nil {
		t.Fatal(err)
	}
	if err := j.Add("rate-limit", limiter.Cleanup); err != nil {
		t.Fatal(err)
	}

	got := j.RunNow()
	if got["result-cache"] != 0 {
		t.Errorf("result-cache removed %d before expiry, want 0", got["result-cache"])
	}

	now = now.Add(2 * time.Minute)
	got = j.RunNow()
	if got["result-cache"] != 2 {
		t.Errorf("result-cache removed %d, want 2", got["result-cache"])
	}
	if got["rate-limit"] != 0 {
		t.Errorf("rate-limit removed %d, want 0 (window still open)", got["rate-limit"])
	}
	if resultCache.Len() != 0 {
		t.Errorf("cache Len() = %d, want 0", resultCache.Len())
	}
}

func TestJanitor_StartRunsScheduledJobs(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping scheduled run in short mode")
	}

	j, err := New("@every 1s")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	var runs atomic.Int32
	if err := j.Add("counter", func() int { runs.Add(1); return 0 }); err != nil {
		t.Fatal(err)
	}

	j.Start()
	deadline := time.Now().Add(3 * time.Second)
	for runs.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := j.Stop(ctx); err != nil {
		t.Errorf("Stop() error = %v", err)
	}

	if runs.Load() == 0 {
		t.Error("scheduled job never ran")
	}
}
