/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package leadership

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

// Job is long-running work that only the leader performs.
type Job interface {
	Run(ctx context.Context) error
}

// Source reports leadership and its transitions.
type Source interface {
	IsLeader() bool
	LeaderCh() <-chan bool
}

// Runner starts a job when this instance becomes leader and cancels it when
// leadership is lost.
type Runner struct {
	job    Job
	source Source
	name   string
	logger zerolog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	running sync.WaitGroup
}

// NewRunner wraps job.
func NewRunner(name string, job Job, source Source, logger zerolog.Logger) *Runner {
	return &Runner{
		job:    job,
		source: source,
		name:   name,
		logger: logger.With().Str("component", "leader_runner").Str("job", name).Logger(),
	}
}

// Run follows leadership until ctx is cancelled, then waits for the job.
func (r *Runner) Run(ctx context.Context) {
	if r.source.IsLeader() {
		r.start(ctx)
	}
	leaderCh := r.source.LeaderCh()
	for {
		select {
		case <-ctx.Done():
			r.stop()
			return
		case leader := <-leaderCh:
			if leader {
				r.logger.Info().Msg("became leader, starting job")
				r.start(ctx)
			} else {
				r.logger.Warn().Msg("lost leadership, stopping job")
				r.stop()
			}
		}
	}
}

// Active reports whether the job is currently running.
func (r *Runner) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancel != nil
}

func (r *Runner) start(parent context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	r.cancel = cancel
	r.running.Add(1)
	go func() {
		defer r.running.Done()
		if err := r.job.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.logger.Error().Err(err).Msg("leader job failed")
		}
	}()
}

func (r *Runner) stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	r.running.Wait()
}
