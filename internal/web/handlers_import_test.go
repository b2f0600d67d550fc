package web

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/docmine/server/internal/auth"
	"github.com/docmine/server/internal/config"
	"github.com/docmine/server/internal/importer"
	"github.com/docmine/server/internal/queue"
	"github.com/docmine/server/internal/store"
	"github.com/docmine/server/internal/webhook"
)

type fakeQueue struct {
	mu        sync.Mutex
	handle    *queue.Handle
	statuses  []*queue.Status // returned in order; last one repeats
	statusErr error
	polls     int
	submits   []string
}

func (f *fakeQueue) Submit(_ context.Context, sourcePath string, _ uuid.UUID) (*queue.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits = append(f.submits, sourcePath)
	return f.handle, nil
}

func (f *fakeQueue) GetStatus(_ context.Context, _ string) (*queue.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	i := f.polls
	if i >= len(f.statuses) {
		i = len(f.statuses) - 1
	}
	f.polls++
	return f.statuses[i], nil
}

func (f *fakeQueue) Mode() queue.Mode { return queue.ModeConnected }

// fakeUsers recognizes every user id, so issued tokens always resolve.
type fakeUsers struct{}

func (fakeUsers) Create(_ context.Context, name, email, _ string) (*store.User, error) {
	return &store.User{ID: uuid.New(), Name: name, Email: email}, nil
}

func (fakeUsers) GetByEmail(_ context.Context, email string) (*store.User, error) {
	return nil, store.ErrNotFound
}

func (fakeUsers) GetByID(_ context.Context, id uuid.UUID) (*store.User, error) {
	return &store.User{ID: id}, nil
}

type noopEvents struct{}

func (noopEvents) Dispatch(context.Context, uuid.UUID, string, interface{}) []webhook.Outcome {
	return nil
}

func (noopEvents) Test(context.Context, uuid.UUID, uuid.UUID) (*webhook.Outcome, error) {
	return nil, store.ErrNotFound
}

func newTestServer(t *testing.T, q ImportQueue) (*Server, string) {
	t.Helper()
	cfg := &config.Config{}
	cfg.Auth.JWTSecret = "test-secret"
	cfg.Auth.TokenTTL = time.Hour
	cfg.Upload.Dir = t.TempDir()
	cfg.Upload.MaxCSVBytes = 1 << 20
	cfg.Upload.MaxDocumentBytes = 1 << 20
	cfg.Upload.MaxConcurrent = 2
	cfg.Upload.MaxWaitTime = time.Second

	s := &Server{
		cfg:     cfg,
		log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		router:  chi.NewRouter(),
		tokens:  auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL),
		users:   fakeUsers{},
		queue:   q,
		events:  noopEvents{},
		limiter: newUploadLimiter(cfg.Upload.MaxConcurrent, cfg.Upload.MaxWaitTime),
	}
	s.setupMiddleware()
	s.setupRoutes()

	token, err := s.tokens.Issue(uuid.New())
	if err != nil {
		t.Fatal(err)
	}
	return s, token
}

func csvUpload(t *testing.T, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	fw.Write([]byte(content))
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func TestImportCSVQueued(t *testing.T) {
	q := &fakeQueue{handle: &queue.Handle{ID: "job-1"}}
	s, token := newTestServer(t, q)

	body, contentType := csvUpload(t, "items.csv", "sku,name\nA1,Widget\n")
	req := httptest.NewRequest(http.MethodPost, "/api/products/upload", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body)
	}
	var resp map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["jobId"] != "job-1" || resp["status"] != "queued" {
		t.Errorf("response = %v", resp)
	}
	if len(q.submits) != 1 || !strings.HasSuffix(q.submits[0], ".csv") {
		t.Errorf("submitted paths = %v", q.submits)
	}
}

func TestImportCSVSynchronous(t *testing.T) {
	q := &fakeQueue{handle: &queue.Handle{
		ID:     "sync-abc",
		Result: &importer.Result{Total: 1, Imported: 1, ErrorDetails: []importer.RowError{}},
	}}
	s, token := newTestServer(t, q)

	body, contentType := csvUpload(t, "items.csv", "sku,name\nA1,Widget\n")
	req := httptest.NewRequest(http.MethodPost, "/api/products/upload", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
	var resp struct {
		Status string           `json:"status"`
		Result *importer.Result `json:"result"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Status != "completed" || resp.Result == nil || resp.Result.Imported != 1 {
		t.Errorf("response = %+v", resp)
	}
}

func TestImportCSVRejectsWrongExtension(t *testing.T) {
	s, token := newTestServer(t, &fakeQueue{handle: &queue.Handle{ID: "job-1"}})

	body, contentType := csvUpload(t, "items.exe", "sku,name\n")
	req := httptest.NewRequest(http.MethodPost, "/api/products/upload", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestImportRequiresAuth(t *testing.T) {
	s, _ := newTestServer(t, &fakeQueue{})
	req := httptest.NewRequest(http.MethodPost, "/api/products/upload", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestImportStatus(t *testing.T) {
	q := &fakeQueue{statuses: []*queue.Status{{ID: "job-1", State: store.JobActive, Progress: 100}}}
	s, token := newTestServer(t, q)

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/job-1", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	var st queue.Status
	json.Unmarshal(rec.Body.Bytes(), &st)
	if st.State != store.JobActive || st.Progress != 100 {
		t.Errorf("status = %+v", st)
	}
}

func TestImportStatusUnknownJob(t *testing.T) {
	q := &fakeQueue{statusErr: store.ErrNotFound}
	s, token := newTestServer(t, q)

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/nope", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

// readSSEFrames collects the data payload of every SSE frame until the
// stream closes.
func readSSEFrames(t *testing.T, r io.Reader) []string {
	t.Helper()
	var frames []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "data: ") {
			frames = append(frames, strings.TrimPrefix(line, "data: "))
		}
	}
	return frames
}

func TestImportProgressStreamsUntilTerminal(t *testing.T) {
	old := relayInterval
	relayInterval = 10 * time.Millisecond
	defer func() { relayInterval = old }()

	q := &fakeQueue{statuses: []*queue.Status{
		{ID: "job-1", State: store.JobActive, Progress: 100},
		{ID: "job-1", State: store.JobActive, Progress: 200},
		{ID: "job-1", State: store.JobCompleted, Progress: 300},
	}}
	s, token := newTestServer(t, q)
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/jobs/job-1/progress?token=" + token)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if got := resp.Header.Get("Content-Type"); got != "text/event-stream" {
		t.Errorf("Content-Type = %q", got)
	}

	frames := readSSEFrames(t, resp.Body)
	if len(frames) != 3 {
		t.Fatalf("frames = %d (%v), want 3", len(frames), frames)
	}
	var last queue.Status
	if err := json.Unmarshal([]byte(frames[2]), &last); err != nil {
		t.Fatalf("last frame not JSON: %v", err)
	}
	if last.State != store.JobCompleted {
		t.Errorf("last frame state = %q, want completed (exactly one terminal event)", last.State)
	}
}

func TestImportProgressUnknownJob(t *testing.T) {
	q := &fakeQueue{statusErr: store.ErrNotFound}
	s, token := newTestServer(t, q)
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/jobs/nope/progress?token=" + token)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	frames := readSSEFrames(t, resp.Body)
	if len(frames) != 1 {
		t.Fatalf("frames = %v, want exactly one error event", frames)
	}
	var ev map[string]string
	json.Unmarshal([]byte(frames[0]), &ev)
	if ev["error"] != "Job not found" {
		t.Errorf("event = %v", ev)
	}
}

func TestImportProgressPollError(t *testing.T) {
	q := &fakeQueue{statusErr: errors.New("status backend down")}
	s, token := newTestServer(t, q)
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/jobs/job-1/progress?token=" + token)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	frames := readSSEFrames(t, resp.Body)
	if len(frames) != 1 {
		t.Fatalf("frames = %v, want exactly one error event", frames)
	}
	var ev map[string]string
	json.Unmarshal([]byte(frames[0]), &ev)
	if ev["error"] != "status backend down" {
		t.Errorf("event = %v", ev)
	}
}

func TestImportProgressClientDisconnect(t *testing.T) {
	old := relayInterval
	relayInterval = 10 * time.Millisecond
	defer func() { relayInterval = old }()

	// Status never reaches a terminal state; only the client going away
	// can end the stream.
	q := &fakeQueue{statuses: []*queue.Status{{ID: "job-1", State: store.JobActive}}}
	s, token := newTestServer(t, q)
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet,
		srv.URL+"/api/jobs/job-1/progress?token="+token, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}

	buf := make([]byte, 256)
	if _, err := resp.Body.Read(buf); err != nil {
		t.Fatalf("first frame read: %v", err)
	}
	cancel()
	resp.Body.Close()

	// The handler must notice the disconnect and stop polling.
	deadline := time.Now().Add(2 * time.Second)
	var polls int
	for time.Now().Before(deadline) {
		q.mu.Lock()
		polls = q.polls
		q.mu.Unlock()
		time.Sleep(50 * time.Millisecond)
		q.mu.Lock()
		after := q.polls
		q.mu.Unlock()
		if after == polls {
			return
		}
	}
	t.Error("handler kept polling after client disconnect")
}
