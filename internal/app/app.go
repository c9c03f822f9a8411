package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/mx-space/drafts/internal/config"
	"github.com/mx-space/drafts/internal/database"
	"github.com/mx-space/drafts/internal/middleware"
	"github.com/mx-space/drafts/internal/modules/auth"
	"github.com/mx-space/drafts/internal/modules/document"
	"github.com/mx-space/drafts/internal/modules/draft"
	"github.com/mx-space/drafts/internal/modules/preference"
	pkgcron "github.com/mx-space/drafts/internal/pkg/cron"
	"github.com/mx-space/drafts/internal/pkg/metrics"
	pkgredis "github.com/mx-space/drafts/internal/pkg/redis"
	"github.com/mx-space/drafts/internal/pkg/session"
)

// App holds all application dependencies.
type App struct {
	cfg        *config.AppConfig
	router     *gin.Engine
	db         *gorm.DB
	rc         *pkgredis.Client
	logger     *zap.Logger
	metrics    *metrics.Metrics
	sched      *pkgcron.Scheduler
	closeStore func()
	cancel     context.CancelFunc

	*Services
}

// Services are the domain services behind the HTTP API and the admin CLI.
type Services struct {
	Auth     *auth.Service
	Prefs    *preference.Service
	Docs     *document.Service
	Drafts   *draft.Service
	Sessions *session.Store
}

// New initializes the application: config → DB → Redis → draft store → routes.
func New(logger *zap.Logger, cfg *config.AppConfig) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if err := applyRuntimeSettings(cfg, logger); err != nil {
		return nil, err
	}

	db, err := database.Connect(cfg, false)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	a := &App{cfg: cfg, db: db, logger: logger, cancel: cancel}

	if cfg.RedisURL != "" {
		rc, err := pkgredis.Connect(ctx, cfg.RedisURL)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("redis: %w", err)
		}
		a.rc = rc
	} else {
		logger.Info("redis not configured, rate limiting and idempotence are off")
	}

	m, err := metrics.New()
	if err != nil {
		a.Shutdown()
		return nil, fmt.Errorf("metrics: %w", err)
	}
	a.metrics = m

	store, closeStore, err := OpenStore(ctx, cfg, db)
	if err != nil {
		a.Shutdown()
		return nil, fmt.Errorf("draft store: %w", err)
	}
	a.closeStore = closeStore

	a.Services = NewServices(cfg, db, a.rc, store, m, logger)
	a.router = a.buildRouter()

	a.sched = pkgcron.New(logger)
	registerCronJobs(a.sched, a.Drafts, a.Sessions, logger)
	a.sched.Start(ctx)

	if a.rc != nil {
		sub := draft.NewSubscriber(a.rc, cfg.Drafts.EventsChannel, a.Drafts, logger)
		go func() {
			if err := sub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("document event subscription ended", zap.Error(err))
			}
		}()
	}

	logger.Info("drafts ready",
		zap.String("storage", cfg.Drafts.Storage),
		zap.Bool("redis", a.rc != nil),
	)
	return a, nil
}

// NewServices builds the services. With Redis, document events fan out through
// pub/sub so every instance updates its drafts; otherwise they go straight to the
// draft service. rc and m may be nil.
func NewServices(cfg *config.AppConfig, db *gorm.DB, rc *pkgredis.Client, store draft.Store, m *metrics.Metrics, logger *zap.Logger) *Services {
	s := &Services{Sessions: session.NewStore(db)}
	s.Auth = auth.NewService(auth.NewGormUsers(db), s.Sessions, auth.WithLogger(logger))
	s.Prefs = preference.NewService(preference.NewGormOptions(db))
	s.Docs = document.NewService(db, document.WithLogger(logger))

	s.Drafts = draft.NewService(store,
		draft.WithLogger(logger),
		draft.WithTokenVerifier(s.Auth),
		draft.WithPreferences(s.Prefs),
		draft.WithDocuments(s.Docs),
		draft.WithPublisher(s.Docs),
		draft.WithMetrics(m),
		draft.WithAutosave(draft.AutosaveSettings{
			AutoSaveWait:         cfg.Drafts.AutoSaveWait,
			AutoSaveTimeout:      cfg.Drafts.AutoSaveTimeout,
			AutoSaveBasedOnInput: cfg.Drafts.AutoSaveInputBased,
		}),
		draft.WithLifeSpan(cfg.LifeSpan()),
	)

	if rc != nil {
		s.Docs.AddListener(draft.NewNotifier(rc, cfg.Drafts.EventsChannel))
	} else {
		s.Docs.AddListener(s.Drafts)
	}
	return s
}

func (a *App) buildRouter() *gin.Engine {
	if a.cfg.IsDev() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(a.logger))
	router.Use(middleware.Metrics(a.metrics))
	router.Use(cors.New(corsConfig(a.cfg)))

	a.registerRoutes(router)
	return router
}

// Addr returns the listen address.
func (a *App) Addr() string { return fmt.Sprintf(":%d", a.cfg.Port) }

// Router returns the HTTP handler.
func (a *App) Router() http.Handler { return a.router }

// Shutdown stops background jobs and releases connections.
func (a *App) Shutdown() {
	a.cancel()
	if a.closeStore != nil {
		a.closeStore()
	}
	if a.rc != nil {
		if err := a.rc.Close(); err != nil {
			a.logger.Warn("redis close failed", zap.Error(err))
		}
	}
	if a.db != nil {
		if err := database.Close(a.db); err != nil {
			a.logger.Warn("database close failed", zap.Error(err))
		}
	}
}
