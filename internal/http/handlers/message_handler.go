package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jeraldrich/sql-transformer/internal/domain"
	"github.com/jeraldrich/sql-transformer/internal/http/middleware"
	"github.com/jeraldrich/sql-transformer/internal/repo"
	"github.com/jeraldrich/sql-transformer/internal/utils"
)

// Pagination describes the page returned alongside list results.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListMessagesResponse contains a page of persisted messages.
type ListMessagesResponse struct {
	Messages   []domain.Message `json:"messages"`
	Pagination Pagination       `json:"pagination"`
}

// MessageResponse is one persisted message and its body text, if linked.
type MessageResponse struct {
	Message *domain.Message `json:"message"`
	Body    *string         `json:"body"`
}

// clampPagination parses page/page_size from the query, applying defaults
// and caps.
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

// ListMessages pages through persisted messages in creation order.
//
// GET /api/v1/messages?page=1&page_size=20
func (h *Handler) ListMessages(c *gin.Context) {
	ctx := c.Request.Context()
	page, pageSize := clampPagination(c)

	total, err := h.store.CountMessages(ctx)
	if err != nil {
		middleware.LoggerFrom(c).Error().Err(err).Msg("count messages")
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, "could not list messages")
		return
	}
	items, err := h.store.ListMessagesPage(ctx, (page-1)*pageSize, pageSize)
	if err != nil {
		middleware.LoggerFrom(c).Error().Err(err).Msg("list messages")
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, "could not list messages")
		return
	}
	if items == nil {
		items = []domain.Message{}
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, ListMessagesResponse{
		Messages: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// GetMessage returns one message and its body.
//
// GET /api/v1/messages/:id
func (h *Handler) GetMessage(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message id must be a UUID")
		return
	}

	m, err := h.store.GetMessage(c.Request.Context(), id.String())
	switch {
	case errors.Is(err, repo.ErrNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "message not found")
		return
	case err != nil:
		middleware.LoggerFrom(c).Error().Err(err).Msg("get message")
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not read message")
		return
	}

	resp := MessageResponse{Message: m}
	if m.Body != nil {
		resp.Body = &m.Body.Body
	}
	ok(c, http.StatusOK, resp)
}
