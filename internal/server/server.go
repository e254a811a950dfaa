/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/teamslot/internal/api"
	"github.com/friendsincode/teamslot/internal/cache"
	"github.com/friendsincode/teamslot/internal/config"
	"github.com/friendsincode/teamslot/internal/db"
	"github.com/friendsincode/teamslot/internal/eventbus"
	"github.com/friendsincode/teamslot/internal/events"
	"github.com/friendsincode/teamslot/internal/export"
	"github.com/friendsincode/teamslot/internal/leadership"
	"github.com/friendsincode/teamslot/internal/meeting"
	"github.com/friendsincode/teamslot/internal/planning"
	"github.com/friendsincode/teamslot/internal/scheduler"
	schedulerstate "github.com/friendsincode/teamslot/internal/scheduler/state"
	"github.com/friendsincode/teamslot/internal/slotlock"
	"github.com/friendsincode/teamslot/internal/storage"
	"github.com/friendsincode/teamslot/internal/telemetry"
	"github.com/friendsincode/teamslot/internal/version"
)

// Finished runs are kept in memory this long for late progress subscribers.
const runRetention = time.Hour

// Server bundles HTTP and supporting services.
type Server struct {
	cfg        *config.Config
	logger     zerolog.Logger
	router     chi.Router
	httpServer *http.Server
	closers    []func() error

	db          *gorm.DB
	bus         events.Broker
	cache       *cache.Cache
	runs        *schedulerstate.Store
	scheduler   *scheduler.Service
	locks       *slotlock.Service
	maintenance *slotlock.MaintenanceJob
	election    *leadership.Election
	archiver    *export.Archiver
	api         *api.API

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// New constructs the server and wires dependencies.
func New(cfg *config.Config, logger zerolog.Logger) (*Server, error) {
	for _, warn := range cfg.LegacyEnvWarnings {
		logger.Warn().Msg(warn)
	}

	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(telemetry.TracingMiddleware("teamslot-api"))
	router.Use(telemetry.MetricsMiddleware)
	// Progress streams are long-lived; everything else gets a deadline.
	router.Use(func(next http.Handler) http.Handler {
		timeout := middleware.Timeout(60 * time.Second)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
				next.ServeHTTP(w, r)
				return
			}
			timeout(next).ServeHTTP(w, r)
		})
	})

	srv := &Server{
		cfg:    cfg,
		logger: logger,
		router: router,
	}

	if err := srv.initDependencies(); err != nil {
		_ = srv.Close()
		return nil, err
	}

	srv.configureRoutes()
	srv.startBackgroundWorkers()

	addr := fmt.Sprintf("%s:%d", cfg.HTTPBind, cfg.HTTPPort)
	srv.httpServer = &http.Server{
		Addr:              addr,
		Handler:           srv.router,
		ReadHeaderTimeout: 15 * time.Second,
		// Zero so progress websockets are not cut off; the middleware
		// timeout covers ordinary routes.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	return srv, nil
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'; base-uri 'none'")

		// Only advertise HSTS for requests served over HTTPS.
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

// newEventBus picks the configured broker. Distributed buses also deliver
// locally, so a single instance behaves the same on any backend.
func newEventBus(cfg *config.Config, logger zerolog.Logger) (events.Broker, func() error) {
	switch cfg.EventBus {
	case config.EventBusRedis:
		redisCfg := eventbus.DefaultRedisConfig()
		redisCfg.Addr = cfg.RedisAddr
		redisCfg.Password = cfg.RedisPassword
		redisCfg.DB = cfg.RedisDB
		bus := eventbus.NewRedisBus(redisCfg, cfg.InstanceID, logger)
		return bus, bus.Close
	case config.EventBusNATS:
		natsCfg := eventbus.DefaultNATSConfig()
		natsCfg.URL = cfg.NATSURL
		// An unreachable server leaves the bus delivering locally.
		bus, err := eventbus.NewNATSBus(natsCfg, cfg.InstanceID, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("continuing with local event delivery")
		}
		return bus, bus.Close
	default:
		return events.NewBus(), nil
	}
}

func (s *Server) initDependencies() error {
	database, err := db.Connect(s.cfg)
	if err != nil {
		return err
	}
	s.DeferClose(func() error { return db.Close(database) })
	if err := db.Migrate(database); err != nil {
		return err
	}
	if err := db.RegisterCallbacks(database); err != nil {
		return fmt.Errorf("register db callbacks: %w", err)
	}
	s.db = database

	bus, closeBus := newEventBus(s.cfg, s.logger)
	s.bus = bus
	if closeBus != nil {
		s.DeferClose(closeBus)
	}

	// Redis cache for team rosters and work hours
	cacheCfg := cache.DefaultConfig()
	cacheCfg.RedisAddr = s.cfg.RedisAddr
	cacheCfg.RedisPassword = s.cfg.RedisPassword
	cacheCfg.RedisDB = s.cfg.RedisDB
	s.cache = cache.New(cacheCfg, s.logger)
	s.DeferClose(func() error { return s.cache.Close() })

	loc := s.cfg.Location()
	s.locks = slotlock.NewService(database, s.logger, slotlock.WithEvents(s.bus))

	s.runs = schedulerstate.NewStore()
	s.scheduler = scheduler.New(database, s.bus, s.runs, scheduler.Config{
		Location: loc,
		Optimizer: planning.OptimizerConfig{
			MaxIterations:      s.cfg.OptimizerMaxIter,
			MaxNoImprovement:   s.cfg.OptimizerMaxStale,
			InitialTemperature: s.cfg.OptimizerInitTemp,
			CoolingRate:        s.cfg.OptimizerCooling,
		},
		LockTTL: s.cfg.ScheduleLockTTL,
	}, s.logger)
	s.scheduler.SetCache(s.cache)
	s.scheduler.SetLocks(s.locks)
	s.DeferClose(func() error {
		s.scheduler.Wait()
		return nil
	})

	meetings := meeting.NewService(s.scheduler, loc, s.logger)

	var gate leadership.Gate = leadership.AlwaysLeader{}
	if s.cfg.LeaderElectionEnabled {
		electionCfg := leadership.DefaultConfig()
		electionCfg.RedisAddr = s.cfg.RedisAddr
		electionCfg.RedisPassword = s.cfg.RedisPassword
		electionCfg.RedisDB = s.cfg.RedisDB
		if s.cfg.InstanceID != "" {
			electionCfg.InstanceID = s.cfg.InstanceID
		}
		election, err := leadership.NewElection(electionCfg, s.logger)
		if err != nil {
			return fmt.Errorf("create leader election: %w", err)
		}
		s.election = election
		gate = election
		s.DeferClose(election.Stop)

		s.logger.Info().
			Str("redis_addr", s.cfg.RedisAddr).
			Str("instance_id", electionCfg.InstanceID).
			Msg("leader election enabled for maintenance jobs")
	}
	s.maintenance = slotlock.NewMaintenanceJob(s.locks, gate, s.cfg.LockCleanupEvery, s.logger)

	store, err := storage.New(context.Background(), s.cfg, s.logger)
	if err != nil {
		return fmt.Errorf("initialize schedule archive: %w", err)
	}
	s.archiver = export.NewArchiver(s.scheduler, store, s.bus, s.logger)

	s.api = api.New([]byte(s.cfg.JWTSigningKey), s.scheduler, meetings, s.locks, s.bus, s.logger)
	s.api.SetLocation(loc)
	s.api.SetDefaultLockTTL(s.cfg.DefaultLockTTL)
	s.api.SetReplaceOnGenerate(s.cfg.ReplaceOnGenerate)

	return nil
}

// HTTPServer exposes the underlying net/http server.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// Close releases owned resources in reverse order.
func (s *Server) Close() error {
	s.stopBackgroundWorkers()
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.closers = nil
	return firstErr
}

// DeferClose registers a cleanup hook.
func (s *Server) DeferClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

func (s *Server) goBackground(ctx context.Context, fn func(ctx context.Context)) {
	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		fn(ctx)
	}()
}

func (s *Server) startBackgroundWorkers() {
	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	// Lock cleanup follows leadership when election is enabled.
	if s.election != nil {
		s.election.Start(ctx)
		runner := leadership.NewRunner("slot-lock-cleanup", s.maintenance, s.election, s.logger)
		s.goBackground(ctx, runner.Run)
	} else {
		s.goBackground(ctx, func(ctx context.Context) { _ = s.maintenance.Run(ctx) })
	}

	s.goBackground(ctx, s.archiver.Run)
	s.goBackground(ctx, func(ctx context.Context) { s.cache.WatchInvalidations(ctx, s.bus) })

	s.goBackground(ctx, func(ctx context.Context) {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				db.UpdateConnectionMetrics(s.db)
				if n := s.runs.Prune(time.Now().Add(-runRetention)); n > 0 {
					s.logger.Debug().Int("runs", n).Msg("pruned finished runs")
				}
			}
		}
	})
}

func (s *Server) stopBackgroundWorkers() {
	if s.bgCancel == nil {
		return
	}
	s.bgCancel()
	s.bgWG.Wait()
	s.bgCancel = nil
}

func (s *Server) configureRoutes() {
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)

		response := `{"status":"ok","version":"` + version.Version + `"`
		if s.election != nil {
			if s.election.IsLeader() {
				response += `,"leader":true`
			} else {
				response += `,"leader":false`
			}
		}
		response += `}`
		_, _ = w.Write([]byte(response))
	})

	s.router.Handle("/metrics", telemetry.Handler())

	s.api.Routes(s.router)
}
