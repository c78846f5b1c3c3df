package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goodtune/activityd/internal/storage/memory"
	"github.com/goodtune/activityd/internal/usage"
	"github.com/rs/zerolog"
)

type fakeIdle struct{ idle bool }

func (f fakeIdle) Idle() bool           { return f.idle }
func (f fakeIdle) HooksInstalled() bool { return f.idle }

type fakeIdentity struct{}

func (fakeIdentity) UserID() int64     { return 7 }
func (fakeIdentity) SessionID() string { return "login-1" }

func setupRouter(t *testing.T) (http.Handler, *usage.Journal) {
	t.Helper()

	store, err := memory.Open(100)
	if err != nil {
		t.Fatalf("open memory store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	base := time.Now().Add(-time.Hour)
	for i, category := range []usage.Category{usage.CategoryFocus, usage.CategoryIdle, usage.CategoryFocus} {
		end := base.Add(time.Duration(i+1) * time.Minute)
		record := &usage.Record{
			ID:       []string{"a", "b", "c"}[i],
			UserID:   7,
			Category: category,
			Start:    base.Add(time.Duration(i) * time.Minute),
			End:      &end,
		}
		if err := store.Usage().SaveNew(ctx, record); err != nil {
			t.Fatalf("seed %s: %v", record.ID, err)
		}
	}

	journal := usage.NewJournal(store.Usage(), fakeIdentity{})
	router := NewRouter(
		NewUsageHandler(store.Usage(), zerolog.Nop()),
		NewStatusHandler(journal, fakeIdle{idle: true}),
		zerolog.Nop(),
	)
	return router, journal
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestListUsage(t *testing.T) {
	router, _ := setupRouter(t)

	rec := get(t, router, "/api/usage?category=focus")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var body struct {
		Records []usage.Record `json:"records"`
		Count   int            `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Count != 2 || body.Records[0].ID != "c" {
		t.Errorf("Expected focus records [c a], got %+v", body.Records)
	}
}

func TestListUsageBadQuery(t *testing.T) {
	router, _ := setupRouter(t)

	for _, target := range []string{
		"/api/usage?category=sleeping",
		"/api/usage?user_id=abc",
		"/api/usage?since=-1h",
		"/api/usage?limit=x",
		"/api/usage?offset=-2",
	} {
		if rec := get(t, router, target); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", target, rec.Code)
		}
	}
}

func TestGetUsage(t *testing.T) {
	router, _ := setupRouter(t)

	rec := get(t, router, "/api/usage/b")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var record usage.Record
	if err := json.Unmarshal(rec.Body.Bytes(), &record); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if record.Category != usage.CategoryIdle {
		t.Errorf("Expected idle record, got %s", record.Category)
	}

	if rec := get(t, router, "/api/usage/missing"); rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rec.Code)
	}
}

func TestStatus(t *testing.T) {
	router, journal := setupRouter(t)

	if _, err := journal.LoginUser(context.Background(), 7); err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := journal.NewUsage(usage.CategoryIdle); err != nil {
		t.Fatalf("open idle: %v", err)
	}

	rec := get(t, router, "/api/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var status StatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !status.Idle || status.Login == nil || len(status.Open) != 1 || status.Open[0].Category != usage.CategoryIdle {
		t.Errorf("Unexpected status: %+v", status)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	router, _ := setupRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/usage/a", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", rec.Code)
	}
}

func TestErrorResponseBody(t *testing.T) {
	router, _ := setupRouter(t)

	rec := get(t, router, "/api/usage/missing")
	if got := rec.Header().Get("Content-Type"); got != "application/json" {
		t.Errorf("Expected JSON content type, got %q", got)
	}
	if got := rec.Header().Get("Cache-Control"); got != "no-store" {
		t.Errorf("Expected no-store, got %q", got)
	}

	var body ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Code != http.StatusNotFound || body.Error != "Not Found" {
		t.Errorf("Unexpected error body: %+v", body)
	}
}
