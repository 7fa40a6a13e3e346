package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/crmsync/internal/config"
	"github.com/smallbiznis/crmsync/internal/observability"
	obsmiddleware "github.com/smallbiznis/crmsync/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/crmsync/internal/observability/metrics"
	obstracing "github.com/smallbiznis/crmsync/internal/observability/tracing"
	"github.com/smallbiznis/crmsync/internal/providers/walletfeed"
	"github.com/smallbiznis/crmsync/internal/reconciliation/domain"
	"github.com/smallbiznis/crmsync/internal/scheduler"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Provide(func(s *scheduler.Scheduler) JobRunner { return s }),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

// JobRunner runs a registered scheduler job on demand.
type JobRunner interface {
	RunJob(ctx context.Context, name string) (domain.SyncRunResult, error)
}

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics, gatherer prometheus.Gatherer) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	if httpMetrics != nil {
		r.Use(httpMetrics.GinMiddleware())
	}
	r.Use(ErrorHandlingMiddleware())

	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics, gatherer prometheus.Gatherer) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics, gatherer)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server failed", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine *gin.Engine
	db     *gorm.DB
	log    *zap.Logger
	jobs   JobRunner
	sync   domain.Engine
	feeds  *walletfeed.Factory
}

type ServerParams struct {
	fx.In

	Gin    *gin.Engine
	DB     *gorm.DB
	Log    *zap.Logger
	Jobs   JobRunner
	Engine domain.Engine
	Feeds  *walletfeed.Factory
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine: p.Gin,
		db:     p.DB,
		log:    p.Log.Named("server"),
		jobs:   p.Jobs,
		sync:   p.Engine,
		feeds:  p.Feeds,
	}

	svc.registerHealthRoutes()
	svc.registerSyncRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerHealthRoutes() {
	s.engine.GET("/health", s.Health)
}

func (s *Server) registerSyncRoutes() {
	v1 := s.engine.Group("/v1")

	v1.POST("/sync/full", s.RunFullSync)
	v1.POST("/sync/usage", s.RunUsageSync)
	v1.POST("/sync/customers/:id", s.SyncCustomer)
	v1.POST("/import/wallets", s.ImportWallets)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}

// Health reports whether the store answers a ping.
func (s *Server) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	sqlDB, err := s.db.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "database": "down"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "database": "up"})
}
