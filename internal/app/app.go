package app

import (
	"context"
	"fmt"
	stdhttp "net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirenote/internal/accesswindow"
	"github.com/vovakirdan/wirenote/internal/auth"
	"github.com/vovakirdan/wirenote/internal/cache"
	"github.com/vovakirdan/wirenote/internal/config"
	"github.com/vovakirdan/wirenote/internal/core"
	"github.com/vovakirdan/wirenote/internal/delivery"
	"github.com/vovakirdan/wirenote/internal/log"
	"github.com/vovakirdan/wirenote/internal/metrics"
	"github.com/vovakirdan/wirenote/internal/ratelimit"
	"github.com/vovakirdan/wirenote/internal/service/messages"
	"github.com/vovakirdan/wirenote/internal/service/notifications"
	"github.com/vovakirdan/wirenote/internal/service/users"
	"github.com/vovakirdan/wirenote/internal/store"
	"github.com/vovakirdan/wirenote/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/wirenote/internal/transport/http"
)

// App wires together store, core, delivery and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	dispatcher      *delivery.Dispatcher
	sink            delivery.Sink
	limiter         *ratelimit.Limiter
	reads           *cache.Reads
	sweepCron       string
	store           store.Store
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("db_path", cfg.Database.Path).Msg("database initialized")

	guard, err := accesswindow.New(accesswindow.Config{
		Enabled:  cfg.AccessWindow.Enabled,
		Start:    cfg.AccessWindow.Start,
		End:      cfg.AccessWindow.End,
		Timezone: cfg.AccessWindow.Timezone,
	})
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("init access window: %w", err)
	}

	sink, err := newSink(cfg.Delivery, logger)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("init delivery sink: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	engine := core.NewEngine(log.Component(logger, "engine"),
		core.WithMaxThreadDepth(cfg.MaxThreadDepth),
		core.WithMetrics(m),
	)
	hub := core.NewHub(log.Component(logger, "hub"))
	dispatcher := delivery.NewDispatcher(sink, delivery.Config{
		QueueSize:     cfg.Delivery.QueueSize,
		Workers:       cfg.Delivery.Workers,
		RatePerSecond: cfg.Delivery.RatePerSecond,
		Burst:         cfg.Delivery.Burst,
		MaxRetries:    cfg.Delivery.MaxRetries,
		RetryDelay:    cfg.Delivery.RetryDelay,
	}, m, log.Component(logger, "delivery"))

	var limiter *ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		limiter = ratelimit.New(ratelimit.Config{
			Max:     cfg.RateLimit.MaxRequests,
			Window:  cfg.RateLimit.Window,
			MaxKeys: cfg.RateLimit.MaxKeys,
		}, m)
	}

	var reads *cache.Reads
	if cfg.ReadCache.Enabled {
		reads, err = cache.New(cache.Config{
			TTL:        cfg.ReadCache.TTL,
			MaxEntries: cfg.ReadCache.MaxEntries,
		}, m)
		if err != nil {
			_ = sink.Close()
			_ = st.Close()
			return nil, fmt.Errorf("init read cache: %w", err)
		}
	}

	authService := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte(cfg.Auth.JWTSecret),
		Issuer:   cfg.Auth.JWTIssuer,
		Audience: cfg.Auth.JWTAudience,
		TTL:      cfg.Auth.TokenTTL,
	})

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	server := transporthttp.NewServer(transporthttp.Deps{
		Auth: authService,
		Messages: messages.New(st, engine, log.Component(logger, "messages"),
			messages.WithNotifiers(hub, dispatcher),
			messages.WithMetrics(m),
			messages.WithReadCache(reads),
		),
		Notifications: notifications.New(st),
		Users: users.New(st, engine, m, log.Component(logger, "users"),
			users.WithDisconnector(hub),
			users.WithReadCache(reads),
		),
		Hub:            hub,
		Limiter:        limiter,
		Guard:          guard,
		Roles:          rolePolicy(cfg.Roles),
		Metrics:        m,
		TrustedProxies: cfg.Server.TrustedProxies,
	}, cfg, log.Component(logger, "http"))

	logger.Info().
		Str("sink", cfg.Delivery.Sink).
		Bool("rate_limit", cfg.RateLimit.Enabled).
		Bool("roles", cfg.Roles.Enabled).
		Bool("read_cache", cfg.ReadCache.Enabled).
		Str("access_window", guard.AllowedHours()).
		Msg("application wired")

	return &App{
		server:          server,
		shutdownTimeout: cfg.Server.ShutdownTimeout,
		hub:             hub,
		dispatcher:      dispatcher,
		sink:            sink,
		limiter:         limiter,
		reads:           reads,
		sweepCron:       cfg.RateLimit.SweepCron,
		store:           st,
		log:             logger,
	}, nil
}

func newSink(cfg config.DeliveryConfig, logger *zerolog.Logger) (delivery.Sink, error) {
	switch cfg.Sink {
	case config.SinkAMQP:
		sink, err := delivery.NewAMQPSink(cfg.AMQPURL, cfg.Queue)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("queue", cfg.Queue).Msg("amqp delivery sink connected")
		return sink, nil
	default:
		return delivery.NewLogSink(logger), nil
	}
}

// rolePolicy returns nil when the role gate is off. Role names were checked
// by config.Validate.
func rolePolicy(cfg config.RolesConfig) *transporthttp.RolePolicy {
	if !cfg.Enabled {
		return nil
	}
	policy := &transporthttp.RolePolicy{Prefixes: cfg.ProtectedPrefixes}
	for _, name := range cfg.Allowed {
		if role, ok := store.ParseRole(name); ok {
			policy.Allowed = append(policy.Allowed, role)
		}
	}
	return policy
}

// Handler exposes the HTTP handler, mainly for tests.
func (a *App) Handler() stdhttp.Handler {
	return a.server.Handler
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	bgCtx, stopBackground := context.WithCancel(ctx)
	var background sync.WaitGroup
	a.startBackground(bgCtx, &background)
	defer func() {
		stopBackground()
		background.Wait()
		a.cleanup()
	}()

	go func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-serverErr
	}
}

func (a *App) startBackground(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(2)
	go func() {
		defer wg.Done()
		a.hub.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		a.dispatcher.Run(ctx)
	}()

	if a.limiter != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.limiter.Run(ctx, a.sweepCron, a.log); err != nil {
				a.log.Error().Err(err).Msg("rate limiter sweeper stopped")
			}
		}()
	}
}

// cleanup closes the sink, database and other resources.
func (a *App) cleanup() {
	a.reads.Close()
	if a.sink != nil {
		if err := a.sink.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close delivery sink")
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
