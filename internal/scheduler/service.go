/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package scheduler runs the planning pipeline for a team: it collects
// tasks, work hours and calendar events from the database, hands them to
// the planning core, and persists the resulting schedule.
package scheduler

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/friendsincode/teamslot/internal/cache"
	"github.com/friendsincode/teamslot/internal/events"
	"github.com/friendsincode/teamslot/internal/models"
	"github.com/friendsincode/teamslot/internal/planning"
	"github.com/friendsincode/teamslot/internal/scheduler/state"
	"github.com/friendsincode/teamslot/internal/slotlock"
	"github.com/friendsincode/teamslot/internal/telemetry"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

// Errors returned by the service.
var (
	ErrTeamBusy         = errors.New("schedule generation already running for team")
	ErrTeamNotFound     = errors.New("team not found")
	ErrScheduleNotFound = errors.New("schedule not found")
	ErrInvalidRange     = errors.New("range end is before range start")
)

// Default work hours used when a team has configured none.
const (
	defaultWorkStartMin = 9 * 60
	defaultWorkEndMin   = 18 * 60
)

// Config tunes the service.
type Config struct {
	Location  *time.Location
	Optimizer planning.OptimizerConfig
	LockTTL   time.Duration
}

// GenerateRequest asks for a schedule covering the dates RangeStart through
// RangeEnd inclusive.
type GenerateRequest struct {
	TeamID     int64
	RangeStart time.Time
	RangeEnd   time.Time
	CreatedBy  *int64
	Seed       int64 // zero picks a time-based seed
	Replace    bool  // drop the team's schedules that intersect the range
}

// Result is the outcome of a successful run.
type Result struct {
	RunID        string
	Schedule     models.Schedule
	Assignments  []models.Assignment
	Unassigned   []planning.Unassigned
	Tasks        []planning.Task
	Events       []planning.CalendarEvent
	InitialScore int
	FinalScore   int
}

// Service orchestrates planning runs.
type Service struct {
	db        *gorm.DB
	bus       events.Broker
	runs      *state.Store
	cache     *cache.Cache
	locks     *slotlock.Service
	generator *planning.Generator
	scorer    *planning.Scorer
	optimizer *planning.Optimizer
	lockTTL   time.Duration
	lockOwner int64
	now       func() time.Time
	logger    zerolog.Logger

	mu   sync.Mutex
	busy map[int64]struct{}
	wg   sync.WaitGroup
}

// New constructs the scheduler service.
func New(db *gorm.DB, bus events.Broker, runs *state.Store, cfg Config, logger zerolog.Logger) *Service {
	logger = logger.With().Str("component", "scheduler").Logger()
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 5 * time.Minute
	}
	if runs == nil {
		runs = state.NewStore()
	}
	scorer := planning.NewScorer(logger)
	return &Service{
		db:        db,
		bus:       bus,
		runs:      runs,
		generator: planning.NewGenerator(logger, planning.WithLocation(cfg.Location)),
		scorer:    scorer,
		optimizer: planning.NewOptimizer(scorer, cfg.Optimizer, logger),
		lockTTL:   cfg.LockTTL,
		lockOwner: instanceOwner(),
		now:       time.Now,
		logger:    logger,
		busy:      make(map[int64]struct{}),
	}
}

// instanceOwner derives a negative lock owner id unique to this process so
// instances never mistake each other's team locks for their own.
func instanceOwner() int64 {
	id := uuid.New()
	return -int64(binary.BigEndian.Uint64(id[:8])>>1) - 1
}

// SetCache sets the cache instance for roster and work-hour lookups.
func (s *Service) SetCache(c *cache.Cache) {
	s.cache = c
}

// SetLocks enables the cross-instance team lock.
func (s *Service) SetLocks(l *slotlock.Service) {
	s.locks = l
}

// SetClock overrides the time source.
func (s *Service) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Runs exposes the progress registry.
func (s *Service) Runs() *state.Store {
	return s.runs
}

// Generate runs the pipeline synchronously.
func (s *Service) Generate(ctx context.Context, req GenerateRequest) (*Result, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	release, err := s.reserve(ctx, req.TeamID)
	if err != nil {
		return nil, err
	}
	defer release()

	return s.run(ctx, req, uuid.NewString())
}

// Start reserves the team and runs the pipeline in the background. The
// returned run id tags the progress events of this run.
func (s *Service) Start(ctx context.Context, req GenerateRequest) (string, error) {
	if err := validateRequest(req); err != nil {
		return "", err
	}
	release, err := s.reserve(ctx, req.TeamID)
	if err != nil {
		return "", err
	}

	runID := uuid.NewString()
	runCtx := context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer release()
		if _, err := s.run(runCtx, req, runID); err != nil {
			s.logger.Error().Err(err).Int64("team_id", req.TeamID).Str("run_id", runID).Msg("background schedule generation failed")
		}
	}()
	return runID, nil
}

// Wait blocks until every background run has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

func validateRequest(req GenerateRequest) error {
	if req.TeamID <= 0 {
		return fmt.Errorf("%w: %d", ErrTeamNotFound, req.TeamID)
	}
	if req.RangeStart.IsZero() || req.RangeEnd.IsZero() {
		return fmt.Errorf("%w: range bounds are required", ErrInvalidRange)
	}
	if req.RangeEnd.Before(req.RangeStart) {
		return ErrInvalidRange
	}
	return nil
}

// reserve serialises runs per team, in-process and across instances.
func (s *Service) reserve(ctx context.Context, teamID int64) (func(), error) {
	s.mu.Lock()
	if _, ok := s.busy[teamID]; ok {
		s.mu.Unlock()
		return nil, ErrTeamBusy
	}
	s.busy[teamID] = struct{}{}
	s.mu.Unlock()

	local := func() {
		s.mu.Lock()
		delete(s.busy, teamID)
		s.mu.Unlock()
	}
	if s.locks == nil {
		return local, nil
	}

	key := slotlock.TeamScheduleKey(teamID)
	ok, err := s.locks.TryLock(ctx, key, s.lockOwner, s.lockTTL)
	if err != nil {
		local()
		return nil, fmt.Errorf("lock team schedule: %w", err)
	}
	if !ok {
		local()
		return nil, ErrTeamBusy
	}
	return func() {
		if _, err := s.locks.Release(context.Background(), key, s.lockOwner); err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("release team schedule lock")
		}
		local()
	}, nil
}

// run executes every phase and reports progress along the way.
func (s *Service) run(ctx context.Context, req GenerateRequest, runID string) (*Result, error) {
	ctx, span := telemetry.StartSpan(ctx, "scheduler", "scheduler.generate")
	defer span.End()
	telemetry.AddSpanAttributes(span, map[string]any{"team_id": req.TeamID, "run_id": runID})

	started := s.now()
	p := &progress{svc: s, run: state.Run{RunID: runID, TeamID: req.TeamID, StartedAt: started}}
	log := s.logger.With().Int64("team_id", req.TeamID).Str("run_id", runID).Logger()

	p.step(10, "collecting input data")
	firstDay, lastDay := s.dayRange(req)

	phase := s.now()
	in, err := s.collect(ctx, req.TeamID, firstDay, lastDay)
	if err != nil {
		return nil, s.fail(p, span, err)
	}
	observePhase("collect", s.now().Sub(phase))
	p.step(20, fmt.Sprintf("collected %d tasks, %d events, %d members", len(in.tasks), len(in.events), len(in.members)))

	phase = s.now()
	slots := s.generator.Generate(in.rules, in.events, firstDay, lastDay, in.members)
	observePhase("slots", s.now().Sub(phase))
	p.step(40, fmt.Sprintf("generated slots for %d members", len(slots)))

	plan := planning.Schedule{
		TeamID:     req.TeamID,
		RangeStart: firstDay,
		RangeEnd:   lastDay,
		CreatedBy:  req.CreatedBy,
		CreatedAt:  started,
	}
	phase = s.now()
	packed := planning.NewPacker(s.logger, planning.WithClock(s.now)).Pack(in.tasks, slots, plan)
	observePhase("pack", s.now().Sub(phase))
	telemetry.ScheduleUnassignedTasks.Add(float64(len(packed.Unassigned)))
	p.step(70, fmt.Sprintf("placed %d assignments, %d tasks unassigned", len(packed.Assignments), len(packed.Unassigned)))

	initial := s.scorer.Score(packed.Assignments, in.tasks, slots)
	p.step(85, fmt.Sprintf("initial score: %d", initial))

	seed := req.Seed
	if seed == 0 {
		seed = s.now().UnixNano()
	}
	phase = s.now()
	opt := s.optimizer.Optimize(planning.OptimizeRequest{
		Schedule:    plan,
		Assignments: packed.Assignments,
		Tasks:       in.tasks,
		Slots:       slots,
		Seed:        seed,
	})
	observePhase("optimize", s.now().Sub(phase))
	if opt.Improved {
		telemetry.OptimizerImprovementsTotal.Inc()
		telemetry.OptimizerScoreGain.Observe(float64(opt.FinalScore - opt.InitialScore))
	}
	p.step(95, fmt.Sprintf("optimized: %d (%+d)", opt.FinalScore, opt.FinalScore-initial))

	phase = s.now()
	schedule, rows, err := s.persist(ctx, req, plan, opt.Assignments, opt.FinalScore)
	if err != nil {
		return nil, s.fail(p, span, err)
	}
	observePhase("persist", s.now().Sub(phase))

	p.finish(schedule.ID)
	telemetry.ScheduleRunsTotal.WithLabelValues(state.StatusCompleted).Inc()
	observePhase("total", s.now().Sub(started))
	log.Info().
		Int64("schedule_id", schedule.ID).
		Int("assignments", len(rows)).
		Int("unassigned", len(packed.Unassigned)).
		Int("initial_score", initial).
		Int("final_score", opt.FinalScore).
		Msg("schedule generated")

	schedule.Assignments = rows
	return &Result{
		RunID:        runID,
		Schedule:     schedule,
		Assignments:  rows,
		Unassigned:   packed.Unassigned,
		Tasks:        in.tasks,
		Events:       in.events,
		InitialScore: initial,
		FinalScore:   opt.FinalScore,
	}, nil
}

func (s *Service) fail(p *progress, span trace.Span, err error) error {
	telemetry.RecordError(span, err)
	p.fail(err)
	telemetry.ScheduleRunsTotal.WithLabelValues(state.StatusFailed).Inc()
	return err
}

// dayRange returns the first and last calendar day of the request in the
// service location.
func (s *Service) dayRange(req GenerateRequest) (time.Time, time.Time) {
	loc := s.generator.Location()
	day := func(t time.Time) time.Time {
		t = t.In(loc)
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	}
	return day(req.RangeStart), day(req.RangeEnd)
}

func observePhase(name string, d time.Duration) {
	telemetry.ScheduleRunDuration.WithLabelValues(name).Observe(d.Seconds())
}
