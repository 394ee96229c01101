// Package reliefboard is the dashboard gateway of the disaster-relief platform.
//
// An Instance owns the gin engine, the per-client session stores and the page table.
// Every browser is identified by a signed cookie; its session is kept in durable storage
// under that identity and every page navigation passes through the route guard.
package reliefboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/sevenitynet/reliefboard/auth"
	"github.com/sevenitynet/reliefboard/backend"
	"github.com/sevenitynet/reliefboard/chat"
	"github.com/sevenitynet/reliefboard/config"
	"github.com/sevenitynet/reliefboard/guard"
	"github.com/sevenitynet/reliefboard/hook"
	"github.com/sevenitynet/reliefboard/metrics"
	"github.com/sevenitynet/reliefboard/middleware"
	"github.com/sevenitynet/reliefboard/pages"
	"github.com/sevenitynet/reliefboard/router"
	"github.com/sevenitynet/reliefboard/session"
	"github.com/sevenitynet/reliefboard/storage"
)

// ShutdownTimeout bounds the graceful shutdown of the HTTP server.
const ShutdownTimeout = 15 * time.Second

// Instance is a configured gateway. It does not listen until Run is called.
type Instance struct {
	*router.SubRouter
	// Gin is the underlying engine.
	Gin *gin.Engine
	// Config is the configuration the instance was built from.
	Config   config.Config
	Sessions *session.Manager
	Pages    *pages.Pages
	Metrics  *metrics.Metrics
	// Chat is nil when no broker is configured.
	Chat   *chat.Room
	Logger *slog.Logger

	hooks         hook.Registry[*Instance]
	errorHandlers []func(error)
	closers       []func() error
}

type options struct {
	logger   *slog.Logger
	storage  storage.Storage
	broker   chat.Broker
	backend  *backend.Client
	registry *prometheus.Registry
	hooks    []func(*Instance)
}

// Option customizes New.
type Option func(*options)

// WithLogger sets the application logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithStorage replaces the session storage selected by the configuration.
func WithStorage(s storage.Storage) Option {
	return func(o *options) { o.storage = s }
}

// WithBroker enables chat over b instead of the configured NATS server.
func WithBroker(b chat.Broker) Option {
	return func(o *options) { o.broker = b }
}

// WithBackend replaces the backend client built from the configuration.
func WithBackend(c *backend.Client) Option {
	return func(o *options) { o.backend = c }
}

// WithRegistry sets the Prometheus registry served at /metrics.
func WithRegistry(r *prometheus.Registry) Option {
	return func(o *options) { o.registry = r }
}

// WithInitHook registers f to run at hook.Init, before any route exists.
func WithInitHook(f func(*Instance)) Option {
	return func(o *options) { o.hooks = append(o.hooks, f) }
}

// New builds an instance from cfg. Connections to Redis and NATS are opened here and
// released by Close or at the end of Run.
func New(ctx context.Context, cfg config.Config, opts ...Option) (*Instance, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.registry == nil {
		o.registry = prometheus.NewRegistry()
		o.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	if o.backend == nil {
		o.backend = backend.New(cfg.BackendURL)
	}

	i := &Instance{
		Config:  cfg,
		Metrics: metrics.New(o.registry),
		Logger:  o.logger,
	}

	if err := i.openStorage(ctx, &o); err != nil {
		return nil, err
	}

	sessions, err := session.NewManager(o.storage, o.backend, cfg.SessionCache,
		session.WithLogger(o.logger),
		session.WithObserver(i.Metrics.ObserveSession),
		session.WithRefreshTimeout(cfg.ProfileTimeout),
		session.WithPersistUserID(cfg.PersistUserID),
	)
	if err != nil {
		return nil, errors.Join(err, i.Close())
	}
	i.Sessions = sessions
	i.Metrics.TrackStores(sessions.Len)

	table := pages.Default()
	if cfg.RoutesFile != "" {
		if table, err = pages.LoadFile(cfg.RoutesFile); err != nil {
			return nil, errors.Join(err, i.Close())
		}
	}

	if err := i.openChat(&o); err != nil {
		return nil, errors.Join(err, i.Close())
	}

	codec, err := auth.NewCodec(cfg.CookieSecret)
	if err != nil {
		return nil, errors.Join(err, i.Close())
	}
	codec.SetLifetime(cfg.CookieLifetime)
	cookie := auth.Cookie{
		Codec:  codec,
		Name:   cfg.CookieName,
		Domain: cfg.CookieDomain,
		Secure: cfg.CookieSecure,
	}

	csp := middleware.DefaultCSP()
	csp.ReportOnly = cfg.CSPReportOnly

	i.Gin = gin.New()
	i.Gin.Use(middleware.CORS(cfg.CORSAllowedOrigins))
	i.Gin.Use(middleware.SecurityHeaders(csp, cfg.CSPPolicy))
	i.Gin.Use(middleware.Logger("/healthz", "/metrics"))
	i.Gin.Use(middleware.Recovery(i.emitError))
	i.Gin.Use(middleware.ErrorCollector(i.emitError))
	i.Gin.Use(middleware.Metrics(i.Metrics))

	i.Gin.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	i.Gin.GET("/metrics", gin.WrapH(promhttp.HandlerFor(o.registry, promhttp.HandlerOpts{})))

	app := i.Gin.Group("/", middleware.ClientSession(cookie, sessions))
	i.SubRouter = router.NewSubRouter(app, router.Config{
		Guard:        guard.Default(),
		AwaitProfile: cfg.AwaitProfile,
		OnDecision:   i.Metrics.ObserveDecision,
	})

	for _, f := range o.hooks {
		i.Hook(hook.Init, f)
	}
	i.hooks.Emit(hook.Init, i)

	// A nil *chat.Room must not become a non-nil interface.
	var room pages.Chat
	if i.Chat != nil {
		room = i.Chat
	}
	i.Pages = pages.New(table, o.backend, room)
	i.Pages.RegisterSession(i.SubRouter)
	i.Pages.Register(i.SubRouter)

	return i, nil
}

func (i *Instance) openStorage(ctx context.Context, o *options) error {
	switch {
	case o.storage != nil:
	case i.Config.RedisURL != "":
		rdb, err := storage.DialRedis(ctx, i.Config.RedisURL, i.Config.RedisPrefix, i.Config.SessionTTL)
		if err != nil {
			return err
		}
		i.closers = append(i.closers, rdb.Close)
		o.storage = rdb
	default:
		i.Logger.Warn("reliefboard: REL__REDIS_URL not set, sessions are kept in memory")
		o.storage = storage.NewMemory()
	}
	return nil
}

func (i *Instance) openChat(o *options) error {
	if o.broker == nil && i.Config.NATSURL != "" {
		nc, err := chat.DialNATS(i.Config.NATSURL)
		if err != nil {
			return err
		}
		i.closers = append(i.closers, nc.Close)
		o.broker = nc
	}
	if o.broker == nil {
		return nil
	}

	room := chat.NewRoom(o.broker, i.Config.ChatSubject, chat.DefaultCapacity)
	room.OnMessage = i.Metrics.ObserveChat
	if err := room.Start(); err != nil {
		return fmt.Errorf("chat: subscribe %s: %w", i.Config.ChatSubject, err)
	}
	i.closers = append(i.closers, room.Stop)
	i.Chat = room
	return nil
}

// Hook registers f to run at h.
func (i *Instance) Hook(h hook.Hook, f func(*Instance)) {
	i.hooks.Add(h, f)
}

// ErrorHandler registers f to receive every unexpected error raised while serving.
func (i *Instance) ErrorHandler(f func(error)) {
	i.errorHandlers = append(i.errorHandlers, f)
}

func (i *Instance) emitError(err error) {
	i.Logger.Error("reliefboard: request failed", "error", err)
	for _, f := range i.errorHandlers {
		f(err)
	}
}

// Run serves HTTP on Config.Addr until ctx is done, then shuts down gracefully and closes
// the instance.
func (i *Instance) Run(ctx context.Context) error {
	i.hooks.Emit(hook.BeforeStart, i)

	srv := &http.Server{
		Addr:              i.Config.Addr,
		Handler:           i.Gin,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		i.hooks.Emit(hook.Start, i)
		i.Logger.Info("reliefboard: listening", "addr", srv.Addr)

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		i.Logger.Info("reliefboard: shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)
		i.hooks.Emit(hook.Shutdown, i)
		return err
	})

	return errors.Join(g.Wait(), i.Close())
}

// Close releases the chat subscription and the storage and broker connections, in
// reverse order of opening.
func (i *Instance) Close() error {
	closers := i.closers
	i.closers = nil

	var errs []error
	for j := len(closers) - 1; j >= 0; j-- {
		if err := closers[j](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
