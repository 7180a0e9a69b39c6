package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/jeraldrich/sql-transformer/internal/domain"
	"github.com/jeraldrich/sql-transformer/internal/ingest"
	"github.com/jeraldrich/sql-transformer/internal/repo"
)

type fakeProgress struct{ p ingest.Progress }

func (f fakeProgress) Progress() ingest.Progress { return f.p }

type fakeStats struct {
	tc      repo.TableCounts
	err     error
	pingErr error

	msgs    []domain.Message
	listErr error
}

func (f fakeStats) Stats(context.Context) (repo.TableCounts, error) { return f.tc, f.err }
func (f fakeStats) Ping(context.Context) error                      { return f.pingErr }

func (f fakeStats) CountMessages(context.Context) (int64, error) {
	return int64(len(f.msgs)), f.listErr
}

func (f fakeStats) ListMessagesPage(_ context.Context, offset, limit int) ([]domain.Message, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	if offset >= len(f.msgs) {
		return nil, nil
	}
	end := offset + limit
	if end > len(f.msgs) {
		end = len(f.msgs)
	}
	return f.msgs[offset:end], nil
}

func (f fakeStats) GetMessage(_ context.Context, id string) (*domain.Message, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	for i := range f.msgs {
		if f.msgs[i].ID == id {
			return &f.msgs[i], nil
		}
	}
	return nil, repo.ErrNotFound
}

func serve(h *Handler, method, path string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/health", h.Health)
	r.GET("/api/v1/progress", h.GetProgress)
	r.GET("/api/v1/stats", h.GetStats)
	r.GET("/api/v1/messages", h.ListMessages)
	r.GET("/api/v1/messages/:id", h.GetMessage)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func TestHealth(t *testing.T) {
	if w := serve(New(nil, fakeStats{}), http.MethodGet, "/health"); w.Code != http.StatusOK {
		t.Fatalf("healthy store: %d", w.Code)
	}
	w := serve(New(nil, fakeStats{pingErr: errors.New("down")}), http.MethodGet, "/health")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("unreachable store: %d", w.Code)
	}
}

func TestGetProgress(t *testing.T) {
	p := ingest.Progress{Running: true, QueueDepth: 3, QueueCapacity: 10, Outstanding: 4}
	p.Persisted = 7
	w := serve(New(fakeProgress{p}, fakeStats{}), http.MethodGet, "/api/v1/progress")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var got map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("json: %v", err)
	}
	if got["running"] != true || got["queue_depth"] != float64(3) || got["persisted"] != float64(7) {
		t.Fatalf("unexpected body: %v", got)
	}

	if w := serve(New(nil, fakeStats{}), http.MethodGet, "/api/v1/progress"); w.Code != http.StatusNotFound {
		t.Fatalf("no run: %d", w.Code)
	}
}

func TestGetStats(t *testing.T) {
	tc := repo.TableCounts{Users: 2, Messages: 1, Bodies: 1}
	w := serve(New(nil, fakeStats{tc: tc}), http.MethodGet, "/api/v1/stats")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var got repo.TableCounts
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("json: %v", err)
	}
	if got != tc {
		t.Fatalf("got %+v want %+v", got, tc)
	}

	w = serve(New(nil, fakeStats{err: errors.New("no such table")}), http.MethodGet, "/api/v1/stats")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", w.Code)
	}
	var resp ErrorResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Code != ErrCodeStatsFailed {
		t.Fatalf("code=%q", resp.Code)
	}
}
