package scheduler

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

// Leadership is the part of an election the scheduler follows.
type Leadership interface {
	Start(ctx context.Context) error
	Stop() error
	IsLeader() bool
	LeaderCh() <-chan bool
}

// LeaderAwareScheduler runs the job runner only while this instance holds leadership, so a
// replicated deployment fires each trigger once.
type LeaderAwareScheduler struct {
	runner   *Runner
	election Leadership
	logger   zerolog.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// NewLeaderAware creates a leader-aware wrapper around runner.
func NewLeaderAware(runner *Runner, election Leadership, logger zerolog.Logger) *LeaderAwareScheduler {
	return &LeaderAwareScheduler{
		runner:   runner,
		election: election,
		logger:   logger.With().Str("component", "leader_aware_scheduler").Logger(),
	}
}

// Start begins the election and follows leadership changes until ctx ends.
func (las *LeaderAwareScheduler) Start(ctx context.Context) error {
	las.mu.Lock()
	las.ctx = ctx
	las.mu.Unlock()

	las.logger.Info().Msg("starting leader-aware scheduler")
	if err := las.election.Start(ctx); err != nil {
		return err
	}
	go las.monitorLeadership(ctx)
	return nil
}

// Stop halts the runner and releases leadership.
func (las *LeaderAwareScheduler) Stop() error {
	las.logger.Info().Msg("stopping leader-aware scheduler")
	las.stopRunner()
	return las.election.Stop()
}

func (las *LeaderAwareScheduler) monitorLeadership(ctx context.Context) {
	if las.election.IsLeader() {
		las.startRunner()
	}

	leaderCh := las.election.LeaderCh()
	for {
		select {
		case <-ctx.Done():
			las.stopRunner()
			return
		case isLeader := <-leaderCh:
			if isLeader {
				las.logger.Info().Msg("became leader, starting scheduler")
				las.startRunner()
			} else {
				las.logger.Warn().Msg("lost leadership, stopping scheduler")
				las.stopRunner()
			}
		}
	}
}

func (las *LeaderAwareScheduler) startRunner() {
	las.mu.Lock()
	defer las.mu.Unlock()
	if las.running {
		return
	}

	ctx, cancel := context.WithCancel(las.ctx)
	done := make(chan struct{})
	las.cancel = cancel
	las.done = done
	las.running = true

	go func() {
		defer close(done)
		las.logger.Info().Msg("scheduler started")
		if err := las.runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			las.logger.Error().Err(err).Msg("scheduler error")
		}
		las.logger.Info().Msg("scheduler stopped")
	}()
}

// stopRunner cancels the runner and waits for its loop to return.
func (las *LeaderAwareScheduler) stopRunner() {
	las.mu.Lock()
	if !las.running {
		las.mu.Unlock()
		return
	}
	cancel, done := las.cancel, las.done
	las.running = false
	las.cancel = nil
	las.done = nil
	las.mu.Unlock()

	cancel()
	<-done
}

// Running reports whether the runner loop is active on this instance.
func (las *LeaderAwareScheduler) Running() bool {
	las.mu.Lock()
	defer las.mu.Unlock()
	return las.running
}

// IsLeader returns whether this instance is the leader
func (las *LeaderAwareScheduler) IsLeader() bool {
	return las.election.IsLeader()
}
