package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jeraldrich/sql-transformer/internal/domain"
	"github.com/jeraldrich/sql-transformer/internal/http/middleware"
	"github.com/jeraldrich/sql-transformer/internal/ingest"
	"github.com/jeraldrich/sql-transformer/internal/repo"
)

// ProgressReporter exposes the live state of an ingestion run.
type ProgressReporter interface {
	Progress() ingest.Progress
}

// Store is the read side of the relational store the ops routes inspect.
type Store interface {
	Stats(ctx context.Context) (repo.TableCounts, error)
	Ping(ctx context.Context) error

	CountMessages(ctx context.Context) (int64, error)
	ListMessagesPage(ctx context.Context, offset, limit int) ([]domain.Message, error)
	// GetMessage returns the message with its body loaded, or repo.ErrNotFound.
	GetMessage(ctx context.Context, id string) (*domain.Message, error)
}

// Handler serves the ops routes.
type Handler struct {
	progress ProgressReporter
	store    Store
}

// New returns a Handler. progress may be nil before a run is created.
func New(progress ProgressReporter, store Store) *Handler {
	return &Handler{progress: progress, store: store}
}

// Health reports liveness and whether the store answers.
//
// GET /health
func (h *Handler) Health(c *gin.Context) {
	if err := h.store.Ping(c.Request.Context()); err != nil {
		middleware.LoggerFrom(c).Warn().Err(err).Msg("store ping failed")
		fail(c, http.StatusServiceUnavailable, ErrCodeUnavailable, "store unreachable")
		return
	}
	ok(c, http.StatusOK, gin.H{"status": "ok"})
}

// GetProgress returns the run's counters and queue state.
//
// GET /api/v1/progress
func (h *Handler) GetProgress(c *gin.Context) {
	if h.progress == nil {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "no ingestion run")
		return
	}
	ok(c, http.StatusOK, h.progress.Progress())
}

// GetStats returns per-table row counts.
//
// GET /api/v1/stats
func (h *Handler) GetStats(c *gin.Context) {
	tc, err := h.store.Stats(c.Request.Context())
	if err != nil {
		middleware.LoggerFrom(c).Error().Err(err).Msg("stats query failed")
		fail(c, http.StatusInternalServerError, ErrCodeStatsFailed, "could not read table counts")
		return
	}
	ok(c, http.StatusOK, tc)
}
