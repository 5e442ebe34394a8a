//go:build !integration

package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"telegram-media-relay/internal/domain"
	"telegram-media-relay/internal/domain/model"
	"telegram-media-relay/internal/domain/ports/repository"
	"telegram-media-relay/internal/infra/logging"
	"telegram-media-relay/internal/infra/storage"
)

// ---- fakes ----

type fetchBehavior struct {
	err   error
	panic bool
	gate  chan struct{} // blocks the fetch until closed
}

type fakeFetcher struct {
	mu       sync.Mutex
	behavior map[string]fetchBehavior
	order    []string
	started  chan string
	paths    []string
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{behavior: map[string]fetchBehavior{}, started: make(chan string, 64)}
}

func (f *fakeFetcher) Fetch(ctx context.Context, in model.Input, dest string, progress *model.ProgressStream) (model.FetchedFile, error) {
	src := in.Source()
	f.mu.Lock()
	b := f.behavior[src]
	f.order = append(f.order, src)
	f.paths = append(f.paths, dest)
	f.mu.Unlock()
	f.started <- src

	if b.gate != nil {
		<-b.gate
	}
	if b.panic {
		panic("fetcher exploded")
	}
	if err := os.WriteFile(dest, []byte("payload"), 0o644); err != nil {
		return model.FetchedFile{}, err
	}
	if b.err != nil {
		return model.FetchedFile{}, domain.NewFetchError(src, b.err)
	}
	progress.Send(model.Progress{Done: 7, Total: 7})
	return model.FetchedFile{Path: dest, Name: "clip.mp4", ContentType: "video/mp4", Size: 7}, nil
}

func (f *fakeFetcher) sources() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.order...)
}

func (f *fakeFetcher) destinations() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.paths...)
}

type fakeUploader struct {
	mu       sync.Mutex
	tokens   []string // consumed in order; "" means an empty result
	requests []model.UploadRequest
	sawFile  []bool
}

func (u *fakeUploader) Name() string { return "fake" }

func (u *fakeUploader) Upload(ctx context.Context, req model.UploadRequest, progress *model.ProgressStream) (model.UploadResult, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	_, err := os.Stat(req.LocalPath)
	u.sawFile = append(u.sawFile, err == nil)
	u.requests = append(u.requests, req)
	token := fmt.Sprintf("tok-%d", len(u.requests))
	if len(u.tokens) > 0 {
		token, u.tokens = u.tokens[0], u.tokens[1:]
	}
	progress.Send(model.Progress{Done: 0, Total: 7})
	progress.Send(model.Progress{Done: 7, Total: 7})
	return model.UploadResult{Token: token}, nil
}

func (u *fakeUploader) calls() []model.UploadRequest {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]model.UploadRequest(nil), u.requests...)
}

type sinkEvent struct {
	chatID int64
	text   string
	edit   bool
}

type fakeSink struct {
	mu     sync.Mutex
	nextID int
	events []sinkEvent
}

func (s *fakeSink) Send(ctx context.Context, chatID int64, text string) (model.MessageHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.events = append(s.events, sinkEvent{chatID: chatID, text: text})
	return model.MessageHandle{ChatID: chatID, MessageID: s.nextID}, nil
}

func (s *fakeSink) Edit(ctx context.Context, h model.MessageHandle, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, sinkEvent{chatID: h.ChatID, text: text, edit: true})
	return nil
}

// count returns how many events for chatID start with prefix.
func (s *fakeSink) count(chatID int64, prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e.chatID == chatID && strings.HasPrefix(e.text, prefix) {
			n++
		}
	}
	return n
}

type keyLocalizer struct{}

func (keyLocalizer) T(ctx context.Context, requesterID int64, key string, args ...interface{}) string {
	if len(args) == 0 {
		return key
	}
	return key + fmt.Sprintf(strings.Repeat(" %v", len(args)), args...)
}

type staticTargets struct {
	target string
}

func (s staticTargets) UploadTarget(ctx context.Context, tgID int64) (string, error) {
	if s.target == "" {
		return "", &domain.ConfigError{Key: "upload target"}
	}
	return s.target, nil
}

type memHistory struct {
	mu   sync.Mutex
	recs []*model.JobRecord
}

func (h *memHistory) Save(ctx context.Context, tx repository.Tx, rec *model.JobRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.recs = append(h.recs, rec)
	return nil
}

func (h *memHistory) ListRecent(ctx context.Context, tx repository.Tx, tgID int64, limit int) ([]*model.JobRecord, error) {
	return nil, nil
}

type harness struct {
	proc     *RelayProcessor
	fetcher  *fakeFetcher
	uploader *fakeUploader
	sink     *fakeSink
	history  *memHistory
	dir      *storage.Dir
}

func newHarness(t *testing.T, target string) *harness {
	t.Helper()
	dir, err := storage.Open(t.TempDir())
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	h := &harness{
		fetcher:  newFakeFetcher(),
		uploader: &fakeUploader{},
		sink:     &fakeSink{},
		history:  &memHistory{},
		dir:      dir,
	}
	h.proc = NewRelayProcessor(RelayProcessorDeps{
		Fetcher:  h.fetcher,
		Uploader: h.uploader,
		Targets:  staticTargets{target: target},
		Sink:     h.sink,
		Texts:    keyLocalizer{},
		Storage:  dir,
		History:  h.history,
	}, RelayProcessorOptions{}, logging.Nop())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = h.proc.Shutdown(ctx)
	})
	return h
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func (h *harness) idle(t *testing.T, id int64) {
	t.Helper()
	waitFor(t, "worker to go idle", func() bool { return !h.proc.IsBusy(id) && h.proc.Pending(id) == 0 })
}

func (h *harness) assertNoTransientFiles(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(h.dir.Root())
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "job-") {
			t.Fatalf("transient file left behind: %s", e.Name())
		}
	}
}

func urlJob(id int64, u string) model.Job {
	return model.NewJob(id, id, model.RemoteURL(u))
}

// ---- queue ----

func TestQueueFIFOAndActivation(t *testing.T) {
	q := NewQueue()

	pos, h := q.Enqueue(urlJob(1, "https://a.example/1"))
	if pos != 1 || h == nil {
		t.Fatalf("first enqueue should activate: pos=%d h=%v", pos, h)
	}
	pos, h2 := q.Enqueue(urlJob(1, "https://a.example/2"))
	if pos != 2 || h2 != nil {
		t.Fatalf("second enqueue must not activate another worker: pos=%d h=%v", pos, h2)
	}
	if _, other := q.Enqueue(urlJob(2, "https://b.example/1")); other == nil {
		t.Fatal("a different requester gets its own worker")
	}

	for _, want := range []string{"https://a.example/1", "https://a.example/2"} {
		job, ok := q.next(h)
		if !ok || job.Input.URL != want {
			t.Fatalf("next = %q, %v; want %q", job.Input.URL, ok, want)
		}
		if !q.Active(1) {
			t.Fatal("handle must stay active while jobs are popped")
		}
	}

	if _, ok := q.next(h); ok {
		t.Fatal("expected empty queue")
	}
	select {
	case <-h.Done():
	default:
		t.Fatal("handle should be released once the queue is empty")
	}
	if q.Active(1) {
		t.Fatal("requester should be idle")
	}

	if _, h3 := q.Enqueue(urlJob(1, "https://a.example/3")); h3 == nil || h3 == h {
		t.Fatal("enqueue after idle must start a fresh worker")
	}
}

func TestQueueClear(t *testing.T) {
	q := NewQueue()
	_, h := q.Enqueue(urlJob(7, "https://x/1"))
	q.Enqueue(urlJob(7, "https://x/2"))
	q.Enqueue(urlJob(7, "https://x/3"))

	inFlight, _ := q.next(h)
	if n := q.Clear(7); n != 2 {
		t.Fatalf("Clear dropped %d, want 2", n)
	}
	if inFlight.Input.URL != "https://x/1" {
		t.Fatalf("popped job changed: %+v", inFlight)
	}
	if q.HasPending(7) {
		t.Fatal("queue should be empty after Clear")
	}
	if !q.Active(7) {
		t.Fatal("Clear must not deactivate the running worker")
	}

	// clear then enqueue: new job stays queued for the existing worker
	if _, again := q.Enqueue(urlJob(7, "https://x/4")); again != nil {
		t.Fatal("worker still active; no new handle expected")
	}
	if job, ok := q.next(h); !ok || job.Input.URL != "https://x/4" {
		t.Fatalf("expected job enqueued after clear, got %+v %v", job, ok)
	}
	if n := q.Clear(99); n != 0 {
		t.Fatalf("clearing an unknown requester = %d", n)
	}
}

func TestQueueConcurrentEnqueueNeverDoubleActivates(t *testing.T) {
	q := NewQueue()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		handles int
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, h := q.Enqueue(urlJob(5, fmt.Sprintf("https://x/%d", i))); h != nil {
				mu.Lock()
				handles++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	if handles != 1 {
		t.Fatalf("expected exactly one activation, got %d", handles)
	}
	if q.Len(5) != 100 {
		t.Fatalf("Len = %d, want 100", q.Len(5))
	}
	if job, ok := q.DrainNext(5); !ok || job.RequesterID != 5 {
		t.Fatal("DrainNext should pop the head job")
	}
}

// ---- processor ----

func TestRelayURLThenAttachment(t *testing.T) {
	h := newHarness(t, "api-42")

	if _, err := h.proc.Submit(urlJob(42, "https://cdn.example/a.mp4")); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	att := model.NewJob(42, 42, model.Attachment(model.AttachmentRef{FileID: "F1", SuggestedName: "b.mp4"}))
	if _, err := h.proc.Submit(att); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	h.idle(t, 42)

	got := h.fetcher.sources()
	if len(got) != 2 || got[0] != "https://cdn.example/a.mp4" || got[1] != "b.mp4" {
		t.Fatalf("unexpected processing order: %v", got)
	}
	calls := h.uploader.calls()
	if len(calls) != 2 || calls[0].Target != "api-42" {
		t.Fatalf("unexpected uploads: %+v", calls)
	}
	if h.sink.count(42, "video_starting") != 2 || h.sink.count(42, "video_done tok-") != 2 {
		t.Fatalf("expected two starts and two completions, events: %+v", h.sink.events)
	}
	for i, ok := range h.uploader.sawFile {
		if !ok {
			t.Fatalf("upload %d ran without its local file", i)
		}
	}
	h.assertNoTransientFiles(t)
	if len(h.history.recs) != 2 || h.history.recs[0].Status != model.JobStatusCompleted {
		t.Fatalf("unexpected history: %+v", h.history.recs)
	}
}

func TestRelayCancelKeepsInFlightJob(t *testing.T) {
	h := newHarness(t, "api")
	gate := make(chan struct{})
	h.fetcher.behavior["https://x/1"] = fetchBehavior{gate: gate}

	for i := 1; i <= 3; i++ {
		if _, err := h.proc.Submit(urlJob(7, fmt.Sprintf("https://x/%d", i))); err != nil {
			t.Fatal(err)
		}
	}
	<-h.fetcher.started // job 1 is mid-download

	if n := h.proc.Cancel(7); n != 2 {
		t.Fatalf("Cancel dropped %d, want 2", n)
	}
	if !h.proc.IsBusy(7) {
		t.Fatal("in-flight job must keep the worker busy")
	}
	close(gate)
	h.idle(t, 7)

	if got := h.fetcher.sources(); len(got) != 1 {
		t.Fatalf("only the in-flight job should run, got %v", got)
	}
	if len(h.uploader.calls()) != 1 || h.sink.count(7, "video_done") != 1 {
		t.Fatal("in-flight job should complete normally")
	}
	h.assertNoTransientFiles(t)

	// a later enqueue starts a fresh worker
	if _, err := h.proc.Submit(urlJob(7, "https://x/4")); err != nil {
		t.Fatal(err)
	}
	h.idle(t, 7)
	if got := h.fetcher.sources(); len(got) != 2 || got[1] != "https://x/4" {
		t.Fatalf("expected job 4 after restart, got %v", got)
	}
}

func TestRelayEmptyUploadResult(t *testing.T) {
	h := newHarness(t, "api")
	h.uploader.tokens = []string{"", "second"}

	h.proc.Submit(urlJob(3, "https://x/1"))
	h.proc.Submit(urlJob(3, "https://x/2"))
	h.idle(t, 3)

	if n := h.sink.count(3, "video_error"); n != 1 {
		t.Fatalf("expected a single video_error, got %d", n)
	}
	if h.sink.count(3, "video_done second") != 1 {
		t.Fatal("worker should continue with the next job")
	}
	h.assertNoTransientFiles(t)
	if h.history.recs[0].Status != model.JobStatusFailed {
		t.Fatalf("first job should be recorded as failed: %+v", h.history.recs[0])
	}
}

func TestRelayFetchFailureDoesNotBlockQueue(t *testing.T) {
	h := newHarness(t, "api")
	h.fetcher.behavior["https://x/bad"] = fetchBehavior{err: errors.New("connection reset")}

	h.proc.Submit(urlJob(9, "https://x/bad"))
	h.proc.Submit(urlJob(9, "https://x/good"))
	h.idle(t, 9)

	if h.sink.count(9, "video_error") != 1 || h.sink.count(9, "video_done") != 1 {
		t.Fatalf("unexpected events: %+v", h.sink.events)
	}
	if calls := h.uploader.calls(); len(calls) != 1 {
		t.Fatalf("failed fetch must not upload, got %d uploads", len(calls))
	}
	h.assertNoTransientFiles(t)
}

func TestRelayRecoversFromPanic(t *testing.T) {
	h := newHarness(t, "api")
	h.fetcher.behavior["https://x/boom"] = fetchBehavior{panic: true}

	h.proc.Submit(urlJob(11, "https://x/boom"))
	h.proc.Submit(urlJob(11, "https://x/after"))
	h.idle(t, 11)

	if h.sink.count(11, "video_error") != 1 || h.sink.count(11, "video_done") != 1 {
		t.Fatalf("unexpected events: %+v", h.sink.events)
	}
	h.assertNoTransientFiles(t)
}

func TestRelayMissingTarget(t *testing.T) {
	h := newHarness(t, "")
	h.proc.Submit(urlJob(12, "https://x/1"))
	h.idle(t, 12)

	if h.sink.count(12, "target_missing") != 1 {
		t.Fatalf("expected target_missing, events: %+v", h.sink.events)
	}
	if len(h.uploader.calls()) != 0 {
		t.Fatal("no upload without a target")
	}
	h.assertNoTransientFiles(t)
}

func TestRelayTransientPathsAreUnique(t *testing.T) {
	h := newHarness(t, "api")
	for i := 0; i < 3; i++ {
		h.proc.Submit(urlJob(13, fmt.Sprintf("https://x/%d", i)))
	}
	h.idle(t, 13)
	seen := map[string]bool{}
	for _, p := range h.fetcher.destinations() {
		if seen[p] {
			t.Fatalf("transient path reused: %s", p)
		}
		seen[p] = true
	}
}

func TestRelaySubmitRejectsInvalidInput(t *testing.T) {
	h := newHarness(t, "api")
	if _, err := h.proc.Submit(urlJob(1, "ftp://x/file")); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
	if h.proc.IsBusy(1) {
		t.Fatal("invalid job must not start a worker")
	}
}

func TestRelayShutdownRefusesNewJobs(t *testing.T) {
	h := newHarness(t, "api")
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := h.proc.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if _, err := h.proc.Submit(urlJob(1, "https://x/1")); !errors.Is(err, domain.ErrNotAllowed) {
		t.Fatalf("expected ErrNotAllowed after shutdown, got %v", err)
	}
}
