/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/airwave/internal/clock"
	"github.com/friendsincode/airwave/internal/scheduler/state"
	"github.com/friendsincode/airwave/internal/telemetry"
)

var (
	ErrUnknownJob = errors.New("unknown job")
	ErrJobExists  = errors.New("job key already registered")
	ErrNoFirings  = errors.New("trigger set has no future firings")
)

// JobData is the payload handed to a job on each firing.
type JobData map[string]string

// Clone returns an independent copy.
func (d JobData) Clone() JobData {
	out := make(JobData, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Job is work the runner executes when a trigger fires. Errors are logged by the runner
// and never stop the clock.
type Job interface {
	Execute(ctx context.Context, data JobData) error
}

// JobFunc adapts a function to Job.
type JobFunc func(ctx context.Context, data JobData) error

func (f JobFunc) Execute(ctx context.Context, data JobData) error { return f(ctx, data) }

// Dispatch is one firing handed to the worker pool.
type Dispatch struct {
	Key     string
	JobName string
	Data    JobData
	FiredAt time.Time
}

// Registration binds a key to a job and the triggers that fire it.
type Registration struct {
	Key   string
	Owner string
	Job   string
	Sets  []TriggerSet
	Data  JobData
}

type registration struct {
	Registration
	next time.Time
}

// RunnerConfig sizes a Runner.
type RunnerConfig struct {
	Workers    int
	QueueSize  int
	Resolution time.Duration
	JobTimeout time.Duration

	// HistorySize bounds the recent-firings log.
	HistorySize int
}

// Runner keeps keyed trigger registrations and fires them from one clock loop into a fixed
// pool of workers.
type Runner struct {
	cfg    RunnerConfig
	clock  clock.Clock
	logger zerolog.Logger
	queue  chan Dispatch
	log    *state.Store

	jobsMu sync.RWMutex
	jobs   map[string]Job

	mu   sync.Mutex
	regs map[string]*registration
}

// NewRunner creates a runner. Jobs must be added with Handle before registrations use them.
func NewRunner(cfg RunnerConfig, clk clock.Clock, logger zerolog.Logger) *Runner {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.Resolution <= 0 {
		cfg.Resolution = time.Second
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 30 * time.Second
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &Runner{
		cfg:    cfg,
		clock:  clk,
		logger: logger.With().Str("component", "job_runner").Logger(),
		queue:  make(chan Dispatch, cfg.QueueSize),
		log:    state.NewStore(cfg.HistorySize),
		jobs:   make(map[string]Job),
		regs:   make(map[string]*registration),
	}
}

// Handle registers job under name.
func (r *Runner) Handle(name string, job Job) {
	r.jobsMu.Lock()
	r.jobs[name] = job
	r.jobsMu.Unlock()
}

func (r *Runner) job(name string) (Job, bool) {
	r.jobsMu.RLock()
	defer r.jobsMu.RUnlock()
	j, ok := r.jobs[name]
	return j, ok
}

// Register adds reg. Its key must not already be registered.
func (r *Runner) Register(reg Registration) (time.Time, error) {
	if _, ok := r.job(reg.Job); !ok {
		return time.Time{}, fmt.Errorf("%w: %s", ErrUnknownJob, reg.Job)
	}
	next, ok := NextOf(reg.Sets, r.clock.Now())
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %s", ErrNoFirings, reg.Key)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.regs[reg.Key]; exists {
		return time.Time{}, fmt.Errorf("%w: %s", ErrJobExists, reg.Key)
	}
	reg.Data = reg.Data.Clone()
	r.regs[reg.Key] = &registration{Registration: reg, next: next}
	telemetry.SchedulerTriggersActive.Add(float64(countTriggers(reg.Sets)))

	r.logger.Debug().Str("key", reg.Key).Str("job", reg.Job).Time("next", next).Msg("job registered")
	return next, nil
}

// Delete removes key. It reports whether anything was registered.
func (r *Runner) Delete(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.regs[key]
	if !ok {
		return false
	}
	delete(r.regs, key)
	telemetry.SchedulerTriggersActive.Sub(float64(countTriggers(reg.Sets)))
	return true
}

// DeleteOwner removes every registration of owner and returns the removed keys.
func (r *Runner) DeleteOwner(owner string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed []string
	for key, reg := range r.regs {
		if reg.Owner == owner {
			delete(r.regs, key)
			telemetry.SchedulerTriggersActive.Sub(float64(countTriggers(reg.Sets)))
			removed = append(removed, key)
		}
	}
	sort.Strings(removed)
	return removed
}

// Keys returns registered keys in order.
func (r *Runner) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, 0, len(r.regs))
	for k := range r.regs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// NextFire returns when key fires next.
func (r *Runner) NextFire(key string) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.regs[key]
	if !ok {
		return time.Time{}, false
	}
	return reg.next, true
}

// Upcoming lists the firings of key in [from, to), in time order.
func (r *Runner) Upcoming(key string, from, to time.Time) []time.Time {
	r.mu.Lock()
	reg, ok := r.regs[key]
	var sets []TriggerSet
	if ok {
		sets = append(sets, reg.Sets...)
	}
	r.mu.Unlock()

	var out []time.Time
	for _, set := range sets {
		out = append(out, set.Between(from, to)...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// TriggerCount returns the firing times registered under key.
func (r *Runner) TriggerCount(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if reg, ok := r.regs[key]; ok {
		return countTriggers(reg.Sets)
	}
	return 0
}

// Due collects firings at or before now and advances each registration past now.
// A registration that fell behind fires once, not once per missed instant.
func (r *Runner) Due(now time.Time) []Dispatch {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Dispatch
	for key, reg := range r.regs {
		if reg.next.After(now) {
			continue
		}
		out = append(out, Dispatch{Key: key, JobName: reg.Job, Data: reg.Data.Clone(), FiredAt: reg.next})
		next, ok := NextOf(reg.Sets, now)
		if !ok {
			delete(r.regs, key)
			telemetry.SchedulerTriggersActive.Sub(float64(countTriggers(reg.Sets)))
			continue
		}
		reg.next = next
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FiredAt.Equal(out[j].FiredAt) {
			return out[i].Key < out[j].Key
		}
		return out[i].FiredAt.Before(out[j].FiredAt)
	})
	return out
}

// FireNow queues key for immediate execution without changing its next firing.
func (r *Runner) FireNow(key string) bool {
	r.mu.Lock()
	reg, ok := r.regs[key]
	var d Dispatch
	if ok {
		d = Dispatch{Key: key, JobName: reg.Job, Data: reg.Data.Clone(), FiredAt: r.clock.Now()}
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	return r.enqueue(d)
}

func (r *Runner) enqueue(d Dispatch) bool {
	select {
	case r.queue <- d:
		return true
	default:
		r.logger.Warn().Str("key", d.Key).Msg("worker queue full, firing dropped")
		telemetry.SchedulerErrorsTotal.WithLabelValues("queue_full").Inc()
		return false
	}
}

// Run drives the clock loop and the worker pool until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < r.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.worker(ctx)
		}()
	}

	ticker := time.NewTicker(r.cfg.Resolution)
	defer ticker.Stop()

	r.logger.Info().Int("workers", r.cfg.Workers).Msg("job runner started")
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			r.logger.Info().Msg("job runner stopped")
			return ctx.Err()
		case <-ticker.C:
			telemetry.SchedulerTicksTotal.Inc()
			for _, d := range r.Due(r.clock.Now()) {
				r.enqueue(d)
			}
		}
	}
}

func (r *Runner) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case d := <-r.queue:
			r.Execute(ctx, d)
		}
	}
}

// Execute runs one dispatch with a timeout and a tracing span. It never panics or returns
// the job's error to the caller.
func (r *Runner) Execute(ctx context.Context, d Dispatch) {
	job, ok := r.job(d.JobName)
	if !ok {
		r.logger.Error().Str("key", d.Key).Str("job", d.JobName).Msg("no handler for job")
		telemetry.SchedulerJobsFired.WithLabelValues(d.JobName, "unknown").Inc()
		return
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.JobTimeout)
	defer cancel()
	ctx, span := telemetry.StartSpan(ctx, "scheduler", "job."+d.JobName)
	defer span.End()
	telemetry.AddSpanAttributes(span, map[string]any{
		"job.key":    d.Key,
		"job.name":   d.JobName,
		"station_id": d.Data[DataStation],
		"job.action": d.Data[DataAction],
	})

	firing := state.Firing{
		Key:       d.Key,
		Job:       d.JobName,
		StationID: d.Data[DataStation],
		Action:    d.Data[DataAction],
		FiredAt:   d.FiredAt,
		Result:    "ok",
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error().Interface("panic", rec).Str("key", d.Key).Msg("job panicked")
			telemetry.SchedulerJobsFired.WithLabelValues(d.JobName, "panic").Inc()
			firing.Result = "panic"
			firing.Error = fmt.Sprint(rec)
		}
		r.log.Add(firing)
	}()

	start := time.Now()
	if err := job.Execute(ctx, d.Data); err != nil {
		telemetry.RecordError(span, err)
		telemetry.SchedulerJobsFired.WithLabelValues(d.JobName, "error").Inc()
		r.logger.Warn().Err(err).Str("key", d.Key).Str("job", d.JobName).Msg("job failed")
		firing.Result = "error"
		firing.Error = err.Error()
		return
	}
	telemetry.SchedulerJobsFired.WithLabelValues(d.JobName, "ok").Inc()
	r.logger.Debug().Str("key", d.Key).Str("job", d.JobName).Dur("took", time.Since(start)).Msg("job finished")
}

// Recent returns the latest executed firings, oldest first.
func (r *Runner) Recent() []state.Firing {
	return r.log.Recent()
}
