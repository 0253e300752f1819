// Package ingest is the HTTP surface: the webhook endpoint that feeds the
// evaluation engine, and the admin API for rules, exemptions, incidents,
// and the audit log.
package ingest

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	slogecho "github.com/samber/slog-echo"

	"github.com/skimmerhq/skimmer/cachestore"
	"github.com/skimmerhq/skimmer/countstore"
	"github.com/skimmerhq/skimmer/engine"
	"github.com/skimmerhq/skimmer/store"
)

const maxPayloadSize = "100K"

type Server struct {
	logger   *slog.Logger
	echo     *echo.Echo
	engine   *engine.Engine
	store    *store.Store
	source   *store.CachedSource
	enforcer engine.Enforcer
	counters countstore.CountStore
	cache    cachestore.CacheStore
	limiters *limiterTable

	webhookSecret string
}

type Config struct {
	Logger        *slog.Logger
	WebhookSecret string
	// webhook requests allowed per client per minute
	RateLimitPerMin int
}

func NewServer(eng *engine.Engine, st *store.Store, source *store.CachedSource, enf engine.Enforcer, counters countstore.CountStore, cache cachestore.CacheStore, config Config) *Server {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if enf == nil {
		enf = engine.NoopEnforcer{}
	}
	perMin := config.RateLimitPerMin
	if perMin <= 0 {
		perMin = 100
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(slogecho.New(logger))
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit(maxPayloadSize))

	srv := &Server{
		logger:        logger,
		echo:          e,
		engine:        eng,
		store:         st,
		source:        source,
		enforcer:      enf,
		counters:      counters,
		cache:         cache,
		limiters:      newLimiterTable(perMin),
		webhookSecret: config.WebhookSecret,
	}

	e.GET("/_health", srv.handleHealthCheck)
	e.POST("/webhook", srv.handleWebhook)

	e.GET("/rules", srv.handleListRules)
	e.POST("/rules", srv.handleCreateRule)
	e.GET("/rules/:id", srv.handleGetRule)
	e.PUT("/rules/:id", srv.handleUpdateRule)
	e.DELETE("/rules/:id", srv.handleDeleteRule)
	e.POST("/rules/:id/test", srv.handleTestRule)

	e.GET("/exemptions", srv.handleListExemptions)
	e.POST("/exemptions", srv.handleCreateExemption)
	e.DELETE("/exemptions/:id", srv.handleDeleteExemption)

	e.GET("/incidents", srv.handleListIncidents)
	e.GET("/incidents/:id", srv.handleGetIncident)
	e.PATCH("/incidents/:id", srv.handleReviewIncident)

	e.GET("/audit", srv.handleListAudit)

	return srv
}

func (srv *Server) handleHealthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// RunAPI serves the webhook and admin API until the context is canceled.
func (srv *Server) RunAPI(ctx context.Context, bind string) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.echo.Start(bind)
	}()
	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.echo.Shutdown(shutCtx)
	}
}

// RunMetrics serves prometheus metrics on a dedicated listener.
func (srv *Server) RunMetrics(listen string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(listen, mux)
}
