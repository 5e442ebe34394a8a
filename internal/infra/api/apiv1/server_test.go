//go:build !integration

package apiv1_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"telegram-media-relay/internal/domain"
	"telegram-media-relay/internal/domain/model"
	apiv1 "telegram-media-relay/internal/infra/api/apiv1"
	"telegram-media-relay/internal/infra/logging"
)

// ---------------- in-memory relay ----------------

type fakeRelay struct {
	mu        sync.Mutex
	pending   map[int64]int
	busy      map[int64]bool
	enqueued  []model.Job
	enqErr    error
	history   []*model.JobRecord
	cancelled []int64
}

func newFakeRelay() *fakeRelay {
	return &fakeRelay{pending: map[int64]int{}, busy: map[int64]bool{}}
}

func (f *fakeRelay) EnqueueJob(ctx context.Context, job model.Job) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.enqErr != nil {
		return 0, f.enqErr
	}
	f.enqueued = append(f.enqueued, job)
	f.pending[job.RequesterID]++
	return f.pending[job.RequesterID], nil
}

func (f *fakeRelay) EnqueueURL(ctx context.Context, tgID, chatID int64, rawURL string) (model.Job, int, error) {
	job := model.NewJob(tgID, chatID, model.RemoteURL(rawURL))
	pos, err := f.EnqueueJob(ctx, job)
	return job, pos, err
}

func (f *fakeRelay) EnqueueAttachment(ctx context.Context, tgID, chatID int64, ref model.AttachmentRef) (model.Job, int, error) {
	job := model.NewJob(tgID, chatID, model.Attachment(ref))
	pos, err := f.EnqueueJob(ctx, job)
	return job, pos, err
}

func (f *fakeRelay) Cancel(ctx context.Context, tgID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.pending[tgID]
	f.pending[tgID] = 0
	f.cancelled = append(f.cancelled, tgID)
	return n
}

func (f *fakeRelay) IsBusy(ctx context.Context, tgID int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.busy[tgID]
}

func (f *fakeRelay) Pending(ctx context.Context, tgID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pending[tgID]
}

func (f *fakeRelay) History(ctx context.Context, tgID int64, limit int) ([]*model.JobRecord, error) {
	var out []*model.JobRecord
	for _, r := range f.history {
		if r.RequesterID == tgID && len(out) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

const testKey = "admin-key-for-tests"

func newRouter(relay *fakeRelay) *chi.Mux {
	auth := apiv1.NewAuthManager(testKey, "jwt-secret-for-tests", time.Minute)
	r := chi.NewRouter()
	var srv *apiv1.Server
	if relay == nil {
		srv = apiv1.NewServer(nil, auth, logging.Nop())
	} else {
		srv = apiv1.NewServer(relay, auth, logging.Nop())
	}
	apiv1.RegisterAPIV1(r, srv)
	return r
}

func login(t *testing.T, r http.Handler) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth", nil)
	req.Header.Set("X-API-Key", testKey)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("auth: want 200, got %d, body=%s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil || resp.Token == "" {
		t.Fatalf("auth: invalid response %s (%v)", rec.Body.String(), err)
	}
	return resp.Token
}

func do(r http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestAuth(t *testing.T) {
	r := newRouter(newFakeRelay())

	t.Run("key in json body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth", bytes.NewBufferString(`{"api_key":"`+testKey+`"}`))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("want 200, got %d", rec.Code)
		}
	})

	t.Run("wrong key -> 401", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth", nil)
		req.Header.Set("X-API-Key", "nope")
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("want 401, got %d", rec.Code)
		}
	})

	t.Run("guarded route without token -> 401", func(t *testing.T) {
		if rec := do(r, http.MethodGet, "/api/v1/queues/42", "", ""); rec.Code != http.StatusUnauthorized {
			t.Fatalf("want 401, got %d", rec.Code)
		}
	})

	t.Run("raw api key is not a token -> 401", func(t *testing.T) {
		if rec := do(r, http.MethodGet, "/api/v1/queues/42", testKey, ""); rec.Code != http.StatusUnauthorized {
			t.Fatalf("want 401, got %d", rec.Code)
		}
	})

	t.Run("token signed with another secret -> 401", func(t *testing.T) {
		other := apiv1.NewAuthManager(testKey, "different-secret", time.Minute)
		tok, _, err := other.Mint()
		if err != nil {
			t.Fatal(err)
		}
		if rec := do(r, http.MethodGet, "/api/v1/queues/42", tok, ""); rec.Code != http.StatusUnauthorized {
			t.Fatalf("want 401, got %d", rec.Code)
		}
	})

	t.Run("unconfigured api key -> 403", func(t *testing.T) {
		router := chi.NewRouter()
		apiv1.RegisterAPIV1(router, apiv1.NewServer(newFakeRelay(), apiv1.NewAuthManager("", "", 0), logging.Nop()))
		if rec := do(router, http.MethodGet, "/api/v1/queues/42", "whatever", ""); rec.Code != http.StatusForbidden {
			t.Fatalf("want 403, got %d", rec.Code)
		}
		if rec := do(router, http.MethodPost, "/api/v1/auth", "", ""); rec.Code != http.StatusForbidden {
			t.Fatalf("auth: want 403, got %d", rec.Code)
		}
	})
}

func TestQueues(t *testing.T) {
	relay := newFakeRelay()
	relay.pending[42] = 2
	relay.busy[42] = true
	r := newRouter(relay)
	tok := login(t, r)

	t.Run("get", func(t *testing.T) {
		rec := do(r, http.MethodGet, "/api/v1/queues/42", tok, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("got %d, body=%s", rec.Code, rec.Body.String())
		}
		var resp struct {
			TgID    int64 `json:"tg_id"`
			Pending int   `json:"pending"`
			Busy    bool  `json:"busy"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatal(err)
		}
		if resp.TgID != 42 || resp.Pending != 2 || !resp.Busy {
			t.Fatalf("unexpected body: %+v", resp)
		}
	})

	t.Run("bad id -> 400", func(t *testing.T) {
		if rec := do(r, http.MethodGet, "/api/v1/queues/abc", tok, ""); rec.Code != http.StatusBadRequest {
			t.Fatalf("want 400, got %d", rec.Code)
		}
	})

	t.Run("enqueue 202", func(t *testing.T) {
		rec := do(r, http.MethodPost, "/api/v1/queues/42/jobs", tok, `{"url":"https://example.com/a.mp4"}`)
		if rec.Code != http.StatusAccepted {
			t.Fatalf("want 202, got %d, body=%s", rec.Code, rec.Body.String())
		}
		var resp struct {
			JobID    string `json:"job_id"`
			Position int    `json:"position"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatal(err)
		}
		if resp.JobID == "" || resp.Position != 3 {
			t.Fatalf("unexpected body: %+v", resp)
		}
		last := relay.enqueued[len(relay.enqueued)-1]
		if last.ChatID != 42 || last.Input.URL != "https://example.com/a.mp4" {
			t.Fatalf("unexpected job: %+v", last)
		}
	})

	t.Run("enqueue rejects non-http url -> 422", func(t *testing.T) {
		if rec := do(r, http.MethodPost, "/api/v1/queues/42/jobs", tok, `{"url":"ftp://x/a"}`); rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("want 422, got %d", rec.Code)
		}
	})

	t.Run("enqueue missing body -> 400", func(t *testing.T) {
		if rec := do(r, http.MethodPost, "/api/v1/queues/42/jobs", tok, ""); rec.Code != http.StatusBadRequest {
			t.Fatalf("want 400, got %d", rec.Code)
		}
	})

	t.Run("enqueue while shutting down -> 503", func(t *testing.T) {
		relay.enqErr = fmt.Errorf("relay stopping: %w", domain.ErrNotAllowed)
		defer func() { relay.enqErr = nil }()
		if rec := do(r, http.MethodPost, "/api/v1/queues/42/jobs", tok, `{"url":"https://example.com/a.mp4"}`); rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("want 503, got %d", rec.Code)
		}
	})

	t.Run("cancel", func(t *testing.T) {
		rec := do(r, http.MethodDelete, "/api/v1/queues/42", tok, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("got %d", rec.Code)
		}
		var resp map[string]int
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatal(err)
		}
		if resp["cancelled"] != 3 || relay.Pending(context.Background(), 42) != 0 {
			t.Fatalf("unexpected cancel result %v", resp)
		}
	})

	t.Run("history", func(t *testing.T) {
		relay.history = []*model.JobRecord{
			{JobID: "j2", RequesterID: 42, Kind: model.InputRemoteURL, Status: model.JobStatusCompleted, Result: "tok"},
			{JobID: "x", RequesterID: 7, Kind: model.InputAttachment, Status: model.JobStatusFailed},
		}
		rec := do(r, http.MethodGet, "/api/v1/queues/42/history?limit=5", tok, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("got %d", rec.Code)
		}
		var items []map[string]any
		if err := json.Unmarshal(rec.Body.Bytes(), &items); err != nil {
			t.Fatal(err)
		}
		if len(items) != 1 || items[0]["job_id"] != "j2" || items[0]["result"] != "tok" {
			t.Fatalf("unexpected history %v", items)
		}
	})
}

func TestRelayNotWired(t *testing.T) {
	r := newRouter(nil)
	tok := login(t, r)
	if rec := do(r, http.MethodGet, "/api/v1/queues/42", tok, ""); rec.Code != http.StatusNotImplemented {
		t.Fatalf("want 501, got %d", rec.Code)
	}
}

func TestExpiredToken(t *testing.T) {
	auth := apiv1.NewAuthManager(testKey, "s", time.Nanosecond)
	tok, _, err := auth.Mint()
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	if _, err := auth.ParseFromRequest(req); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}
