/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/airwave/internal/audit"
	"github.com/friendsincode/airwave/internal/cache"
	"github.com/friendsincode/airwave/internal/clock"
	"github.com/friendsincode/airwave/internal/config"
	"github.com/friendsincode/airwave/internal/db"
	"github.com/friendsincode/airwave/internal/eventbus"
	"github.com/friendsincode/airwave/internal/events"
	"github.com/friendsincode/airwave/internal/hls"
	"github.com/friendsincode/airwave/internal/ingest"
	"github.com/friendsincode/airwave/internal/leadership"
	"github.com/friendsincode/airwave/internal/logbuffer"
	"github.com/friendsincode/airwave/internal/playlist"
	"github.com/friendsincode/airwave/internal/playout"
	"github.com/friendsincode/airwave/internal/schedule"
	"github.com/friendsincode/airwave/internal/scheduler"
	"github.com/friendsincode/airwave/internal/station"
	"github.com/friendsincode/airwave/internal/storage"
	"github.com/friendsincode/airwave/internal/telemetry"
)

// Server bundles HTTP and supporting services.
type Server struct {
	cfg           *config.Config
	logger        zerolog.Logger
	router        chi.Router
	httpServer    *http.Server
	metricsServer *http.Server
	closers       []func() error
	logBuffer     *logbuffer.Buffer

	db          *gorm.DB
	bus         *events.Bus
	clock       clock.Clock
	registry    *station.Registry
	cache       *cache.Cache
	runner      *scheduler.Runner
	scheduler   *scheduler.Service
	leaderAware *scheduler.LeaderAwareScheduler
	director    *playout.Director
	auditSvc    *audit.Service
	memory      *audit.MemoryStore
	objects     storage.ObjectStore
	archiver    *storage.Archiver
	nats        *nats.Conn
	ingestor    *ingest.Ingestor
	mirror      *eventbus.Mirror

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// New constructs the server and wires dependencies. logBuf may be nil.
func New(cfg *config.Config, logBuf *logbuffer.Buffer, logger zerolog.Logger) (*Server, error) {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(telemetry.TracingMiddleware("airwave-http"))
	router.Use(telemetry.MetricsMiddleware)
	router.Use(middleware.Timeout(30 * time.Second))

	srv := &Server{
		cfg:       cfg,
		logger:    logger,
		router:    router,
		logBuffer: logBuf,
		bus:       events.NewBus(),
		clock:     clock.Real{},
	}

	if err := srv.initDependencies(context.Background()); err != nil {
		_ = srv.Close()
		return nil, err
	}

	srv.configureRoutes()
	srv.startBackgroundWorkers()

	srv.httpServer = &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           srv.router,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	metrics := chi.NewRouter()
	metrics.Handle("/metrics", telemetry.Handler())
	srv.metricsServer = &http.Server{
		Addr:              cfg.MetricsBind,
		Handler:           metrics,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return srv, nil
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; media-src *; frame-ancestors 'none'")

		// Only advertise HSTS for requests served over HTTPS.
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) initDependencies(ctx context.Context) error {
	database, err := db.Connect(s.cfg)
	if err != nil {
		return err
	}
	if err := db.Migrate(database); err != nil {
		return err
	}
	s.db = database
	s.DeferClose(func() error { return db.Close(database) })

	instanceID := s.cfg.InstanceID
	if instanceID == "" {
		instanceID = eventbus.NodeID()
	}

	s.auditSvc = audit.NewService(database, s.bus, instanceID, s.logger)
	s.memory = audit.NewMemoryStore(database, s.bus)

	s.registry = station.NewRegistry(station.Defaults{
		Store: hls.StoreConfig{
			MaxSegments:    s.cfg.HLSMaxSegments,
			TargetDuration: s.cfg.HLSTargetDuration,
		},
		Playlist: playlist.Config{
			HistorySize:                s.cfg.PlayedHistory,
			FillerBufferMax:            s.cfg.FillerBufferMax,
			KeepCurrentOnHardInterrupt: s.cfg.KeepCurrentOnHard,
		},
	}, s.bus, s.logger)

	if s.cfg.CacheEnabled {
		cacheCfg := cache.DefaultConfig()
		cacheCfg.RedisAddr = s.cfg.RedisAddr
		cacheCfg.RedisPassword = s.cfg.RedisPassword
		cacheCfg.RedisDB = s.cfg.RedisDB
		stationCache, err := cache.New(cacheCfg, s.logger)
		if err != nil {
			s.logger.Warn().Err(err).Msg("cache initialization failed, continuing without cache")
		} else {
			s.cache = stationCache
			s.DeferClose(func() error { return s.cache.Close() })
		}
	}

	if err := s.initStorage(ctx); err != nil {
		return err
	}

	s.runner = scheduler.NewRunner(scheduler.RunnerConfig{
		Workers:    s.cfg.SchedulerWorkers,
		QueueSize:  s.cfg.SchedulerQueueSize,
		Resolution: s.cfg.SchedulerResolution,
	}, s.clock, s.logger)
	s.runner.Handle(scheduler.JobAIControl, scheduler.NewAIControlJob(s.registry, s.memory, s.clock, s.logger))
	s.runner.Handle(scheduler.JobEventTrigger, scheduler.NewEventTriggerJob(s.memory, s.bus, s.logger))
	s.runner.Handle(scheduler.JobContentInjection, scheduler.NewContentInjectionJob(scheduler.BusContentRequester{Bus: s.bus}, s.logger))
	s.scheduler = scheduler.NewService(s.runner, s.registry, s.clock, s.bus, s.logger)

	if s.cfg.LeaderElectionEnabled {
		electionConfig := leadership.DefaultConfig()
		electionConfig.RedisAddr = s.cfg.RedisAddr
		electionConfig.RedisPassword = s.cfg.RedisPassword
		electionConfig.RedisDB = s.cfg.RedisDB
		electionConfig.InstanceID = instanceID

		election, err := leadership.NewElection(electionConfig, s.logger)
		if err != nil {
			return fmt.Errorf("create leader election: %w", err)
		}

		s.leaderAware = scheduler.NewLeaderAware(s.runner, election, s.logger)
		s.DeferClose(func() error { return s.leaderAware.Stop() })

		s.logger.Info().
			Str("redis_addr", s.cfg.RedisAddr).
			Str("instance_id", instanceID).
			Msg("leader election enabled for scheduler")
	}

	if err := s.initMessaging(ctx, instanceID); err != nil {
		return err
	}

	s.director = playout.NewDirector(playout.Config{
		SlideInterval:       s.cfg.SlideInterval,
		SaturationThreshold: s.cfg.SaturationThreshold,
	}, s.registry, s.bus, s.clock, s.logger)

	for _, id := range s.cfg.Stations {
		if _, err := s.registry.GetOrCreate(id); err != nil {
			return fmt.Errorf("create station %q: %w", id, err)
		}
	}

	if s.cfg.ScheduleFile != "" {
		res, err := schedule.NewLoader(s.registry, s.scheduler, s.logger).LoadAndApply(ctx, s.cfg.ScheduleFile)
		if err != nil {
			return fmt.Errorf("load schedule: %w", err)
		}
		for id, taskErr := range res.Failed {
			s.logger.Warn().Err(taskErr).Str("task", id).Msg("scheduled task rejected")
		}
	}

	return nil
}

// initStorage picks S3 when a bucket is configured, otherwise the local chunk directory.
// The archiver hook must be attached before any station is created.
func (s *Server) initStorage(ctx context.Context) error {
	if s.cfg.S3Bucket != "" {
		store, err := storage.NewS3Store(ctx, storage.S3Config{
			Bucket:    s.cfg.S3Bucket,
			Region:    s.cfg.S3Region,
			Endpoint:  s.cfg.S3Endpoint,
			AccessKey: s.cfg.S3AccessKeyID,
			SecretKey: s.cfg.S3SecretAccessKey,
			Prefix:    s.cfg.S3Prefix,
			PathStyle: s.cfg.S3UsePathStyle,
		})
		if err != nil {
			return fmt.Errorf("init s3 storage: %w", err)
		}
		s.objects = store
		s.logger.Info().Str("bucket", s.cfg.S3Bucket).Msg("object storage: s3")
	} else {
		store, err := storage.NewLocalStore(s.cfg.ChunkStoreDir)
		if err != nil {
			return fmt.Errorf("init local storage: %w", err)
		}
		s.objects = store
		s.logger.Info().Str("dir", s.cfg.ChunkStoreDir).Msg("object storage: local")
	}

	if s.cfg.ArchiveEvicted {
		s.archiver = storage.NewArchiver(s.objects, 256, s.logger)
		hook := s.archiver.Hook()
		s.registry.OnCreate(func(st *station.State) {
			st.Store().OnEvict(hook)
		})
	}
	return nil
}

func (s *Server) initMessaging(ctx context.Context, nodeID string) error {
	if s.cfg.NATSURL != "" {
		natsCfg := eventbus.DefaultNATSConfig()
		natsCfg.URL = s.cfg.NATSURL
		natsCfg.Token = s.cfg.NATSToken
		natsCfg.Name = "airwave-" + nodeID
		conn, err := eventbus.ConnectNATS(natsCfg, s.logger)
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		s.nats = conn
		s.DeferClose(func() error {
			conn.Close()
			return nil
		})

		if s.cfg.IngestEnabled {
			s.ingestor = ingest.NewIngestor(s.registry, s.objects, s.bus, s.logger)
		}
	}

	if !s.cfg.EventMirrorEnabled {
		return nil
	}

	var transport eventbus.Transport
	switch s.cfg.EventTransport {
	case "redis":
		redisCfg := eventbus.DefaultRedisConfig()
		redisCfg.Addr = s.cfg.RedisAddr
		redisCfg.Password = s.cfg.RedisPassword
		redisCfg.DB = s.cfg.RedisDB
		rt, err := eventbus.NewRedisTransport(ctx, redisCfg)
		if err != nil {
			return fmt.Errorf("connect redis event transport: %w", err)
		}
		transport = rt
	default:
		if s.nats == nil {
			return errors.New("event mirror over nats needs AIRWAVE_NATS_URL")
		}
		transport = eventbus.NewNATSTransport(s.nats)
	}

	mirrorCfg := eventbus.MirrorConfig{NodeID: nodeID}
	s.mirror = eventbus.NewMirror(s.bus, transport, mirrorCfg, s.logger)
	s.DeferClose(func() error { return s.mirror.Close() })
	return nil
}

func (s *Server) configureRoutes() {
	var leader Leader
	if s.leaderAware != nil {
		leader = s.leaderAware
	}
	var history StatusHistory
	if s.auditSvc != nil {
		history = s.auditSvc
	}
	NewHandler(s.registry, s.cache, history, s.runner, leader, s.logBuffer, s.logger).Routes(s.router)
}

func (s *Server) startBackgroundWorkers() {
	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	run := func(name string, fn func(context.Context) error) {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error().Err(err).Str("worker", name).Msg("background worker exited")
			}
		}()
	}

	// Scheduler runs only on the leader when election is enabled.
	if s.leaderAware != nil {
		if err := s.leaderAware.Start(ctx); err != nil {
			s.logger.Error().Err(err).Msg("leader-aware scheduler failed to start")
		}
	} else {
		run("scheduler", s.runner.Run)
	}

	run("director", s.director.Run)

	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		s.auditSvc.Start(ctx)
	}()

	if s.cache.IsAvailable() {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			s.cache.Watch(ctx, s.bus)
		}()
	}

	if s.archiver != nil {
		run("archiver", s.archiver.Run)
	}
	if s.ingestor != nil {
		run("ingest", func(ctx context.Context) error { return s.ingestor.Listen(ctx, s.nats) })
	}
	if s.mirror != nil {
		run("event_mirror", s.mirror.Run)
	}

	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				db.UpdateConnectionMetrics(s.db)
			}
		}
	}()
}

func (s *Server) stopBackgroundWorkers() {
	if s.bgCancel == nil {
		return
	}
	s.bgCancel()
	s.bgWG.Wait()
	s.bgCancel = nil
}

// HTTPServer exposes the public net/http server.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// MetricsServer exposes the Prometheus listener.
func (s *Server) MetricsServer() *http.Server {
	return s.metricsServer
}

// Registry returns the station registry.
func (s *Server) Registry() *station.Registry {
	return s.registry
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
