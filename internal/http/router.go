// Package httpapi wires the ops HTTP surface (Gin) of the ingester: liveness,
// Prometheus metrics, live run progress and per-table counts. It centralizes
// tracing, correlation IDs, access logging, panic recovery, metrics and rate
// limiting for those routes.
//
// Middleware order matters:
//  1. OpenTelemetry
//  2. RequestID
//  3. Logger
//  4. Recovery (after the logger so panics carry the request id)
//  5. Body size limiter
//  6. Metrics
//  7. Rate limiter
//  8. Cache-Control: no-store
package httpapi

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/jeraldrich/sql-transformer/internal/config"
	"github.com/jeraldrich/sql-transformer/internal/domain"
	"github.com/jeraldrich/sql-transformer/internal/http/handlers"
	"github.com/jeraldrich/sql-transformer/internal/http/middleware"
	"github.com/jeraldrich/sql-transformer/internal/repo"
)

// APIBasePath prefixes the JSON ops routes.
const APIBasePath = "/api/v1"

// maxBodyBytes caps request bodies; no ops route reads one.
const maxBodyBytes = 4 << 10

// storeShim adapts the repo free functions to handlers.Store.
type storeShim struct {
	db *gorm.DB
}

// Stats proxies repo.Stats.
func (s storeShim) Stats(ctx context.Context) (repo.TableCounts, error) {
	return repo.Stats(ctx, s.db)
}

// CountMessages proxies repo.CountMessages.
func (s storeShim) CountMessages(ctx context.Context) (int64, error) {
	return repo.CountMessages(ctx, s.db)
}

// ListMessagesPage proxies repo.ListMessagesPage.
func (s storeShim) ListMessagesPage(ctx context.Context, offset, limit int) ([]domain.Message, error) {
	return repo.ListMessagesPage(ctx, s.db, offset, limit)
}

// GetMessage proxies repo.GetMessageWithBody.
func (s storeShim) GetMessage(ctx context.Context, id string) (*domain.Message, error) {
	return repo.GetMessageWithBody(ctx, s.db, id)
}

// Ping checks the underlying connection pool.
func (s storeShim) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// RegisterRoutes attaches middleware and the ops endpoints to r. progress may
// be nil, in which case /api/v1/progress answers 404. Pass a nil interface,
// not a typed nil pointer.
func RegisterRoutes(r *gin.Engine, db *gorm.DB, progress handlers.ProgressReporter, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(limitBody(maxBodyBytes))

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if cfg.OpsRateRPS > 0 {
		rl := middleware.NewRateLimiter(cfg.OpsRateRPS, cfg.OpsRateBurst)
		r.Use(rl.Handler())
	}
	r.Use(middleware.NoStore())

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	h := handlers.New(progress, storeShim{db: db})

	r.GET("/health", h.Health)

	api := groupWithPrefix(r, APIBasePath)
	{
		api.GET("/progress", h.GetProgress)
		api.GET("/stats", h.GetStats)
		api.GET("/messages", h.ListMessages)
		api.GET("/messages/:id", h.GetMessage)
	}
}

// limitBody caps the request body size to maxBytes using http.MaxBytesReader.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
