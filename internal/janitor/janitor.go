// Package janitor runs periodic housekeeping: expired result cache entries
// and finished rate limit windows are removed on a cron schedule.
package janitor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultSchedule sweeps every five minutes.
const DefaultSchedule = "@every 5m"

var (
	janitorRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lottery_janitor_runs_total",
		Help: "Total number of janitor job runs",
	}, []string{"job"})

	janitorRemovedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lottery_janitor_removed_total",
		Help: "Total number of items removed by janitor jobs",
	}, []string{"job"})
)

// SweepFunc removes stale items and returns how many were removed.
type SweepFunc func() int

type job struct {
	name  string
	sweep SweepFunc
}

// Janitor schedules sweep jobs.
type Janitor struct {
	mu       sync.Mutex
	cron     *cron.Cron
	schedule cron.Schedule
	jobs     []job
	logger   zerolog.Logger
}

// New creates a janitor running its jobs on schedule, a standard cron
// expression or descriptor such as "@every 5m". An empty schedule uses
// DefaultSchedule.
func New(schedule string) (*Janitor, error) {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	parsed, err := cron.ParseStandard(schedule)
	if err != nil {
		return nil, fmt.Errorf("parse janitor schedule %q: %w", schedule, err)
	}

	logger := log.With().Str("component", "janitor").Logger()
	return &Janitor{
		cron: cron.New(
			cron.WithLogger(cronLogger{logger: logger}),
			cron.WithChain(cron.Recover(cronLogger{logger: logger})),
		),
		schedule: parsed,
		logger:   logger,
	}, nil
}

// Add registers a sweep job under name.
func (j *Janitor) Add(name string, sweep SweepFunc) error {
	if sweep == nil {
		return errors.New("sweep function is required")
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	jb := job{name: name, sweep: sweep}
	j.jobs = append(j.jobs, jb)
	j.cron.Schedule(j.schedule, cron.FuncJob(func() { j.run(jb) }))
	return nil
}

// Start begins running scheduled jobs in the background.
func (j *Janitor) Start() {
	j.logger.Info().Int("jobs", len(j.jobs)).Msg("Janitor started")
	j.cron.Start()
}

// Stop halts scheduling and waits for running jobs until ctx is done.
func (j *Janitor) Stop(ctx context.Context) error {
	done := j.cron.Stop()
	select {
	case <-done.Done():
		j.logger.Info().Msg("Janitor stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("janitor stop: %w", ctx.Err())
	}
}

// RunNow runs every registered job once, synchronously, and returns the
// number of items each removed.
func (j *Janitor) RunNow() map[string]int {
	j.mu.Lock()
	jobs := append([]job(nil), j.jobs...)
	j.mu.Unlock()

	out := make(map[string]int, len(jobs))
	for _, jb := range jobs {
		out[jb.name] += j.run(jb)
	}
	return out
}

func (j *Janitor) run(jb job) int {
	removed := jb.sweep()
	janitorRunsTotal.WithLabelValues(jb.name).Inc()
	janitorRemovedTotal.WithLabelValues(jb.name).Add(float64(removed))

	if removed > 0 {
		j.logger.Debug().Str("job", jb.name).Int("removed", removed).Msg("Janitor sweep completed")
	}
	return removed
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
