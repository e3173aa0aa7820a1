package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cozy-crashes/crashlens/internal/parsers"
	"github.com/cozy-crashes/crashlens/internal/pipeline"
	"github.com/cozy-crashes/crashlens/internal/processors"
	"github.com/cozy-crashes/crashlens/internal/remoteconfig"
	"github.com/cozy-crashes/crashlens/internal/report"
	"github.com/cozy-crashes/crashlens/internal/store"
	"github.com/cozy-crashes/crashlens/internal/telemetry"
	"github.com/cozy-crashes/crashlens/internal/upload"
)

const fabricLog = `[12:00:00] [main/INFO]: Loading Minecraft 1.20.1 with Fabric Loader 0.15.7
[12:00:01] [main/ERROR]: Could not execute entrypoint stage 'main' due to errors, provided by 'examplemod' at 'net.example.Init'!`

// staticRetriever serves fixed bodies for known URLs.
type staticRetriever map[string]string

func (staticRetriever) Identifier() string     { return "static" }
func (staticRetriever) Order() pipeline.Order { return pipeline.Default }
func (r staticRetriever) Applies(u *url.URL, _ pipeline.Event, _ *remoteconfig.Snapshot) bool {
	_, ok := r[u.String()]
	return ok
}
func (r staticRetriever) Fetch(_ context.Context, u *url.URL, _ *remoteconfig.Snapshot) ([]string, error) {
	return []string{r[u.String()]}, nil
}

type memStore struct {
	mu      sync.Mutex
	reports map[uuid.UUID]report.Report
	uploads map[string]upload.Result
}

func newMemStore() *memStore {
	return &memStore{reports: map[uuid.UUID]report.Report{}, uploads: map[string]upload.Result{}}
}

func (m *memStore) SaveReport(_ context.Context, r report.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports[r.ID] = r
	return nil
}

func (m *memStore) GetReport(_ context.Context, id uuid.UUID) (report.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reports[id]
	if !ok {
		return report.Report{}, store.ErrNotFound
	}
	return r, nil
}

func (m *memStore) ListReports(context.Context, int) ([]store.Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.Summary
	for _, r := range m.reports {
		out = append(out, store.Summary{ID: r.ID, Logs: len(r.Logs), CreatedAt: r.CreatedAt})
	}
	return out, nil
}

func uploadKey(id uuid.UUID, i int) string { return fmt.Sprintf("%s/%d", id, i) }

func (m *memStore) SaveUpload(_ context.Context, id uuid.UUID, i int, res upload.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.uploads[uploadKey(id, i)]; !ok {
		m.uploads[uploadKey(id, i)] = res
	}
	return nil
}

func (m *memStore) GetUpload(_ context.Context, id uuid.UUID, i int) (upload.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res, ok := m.uploads[uploadKey(id, i)]
	if !ok {
		return upload.Result{}, store.ErrNotFound
	}
	return res, nil
}

type fakeUploader struct {
	mu      sync.Mutex
	calls   int
	content string
	err     error
}

// Upload hands out "abc" first and a fresh id on every later call.
func (f *fakeUploader) Upload(_ context.Context, content string) (upload.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.content = content
	if f.err != nil {
		return upload.Result{}, f.err
	}
	id := "abc"
	if f.calls > 1 {
		id = fmt.Sprintf("abc%d", f.calls)
	}
	return upload.Result{ID: id, URL: "https://mclo.gs/" + id}, nil
}

// racingStore records a competing upload just before each SaveUpload,
// as a second server instance would.
type racingStore struct {
	*memStore
	winner upload.Result
}

func (r *racingStore) SaveUpload(ctx context.Context, id uuid.UUID, i int, res upload.Result) error {
	if err := r.memStore.SaveUpload(ctx, id, i, r.winner); err != nil {
		return err
	}
	return r.memStore.SaveUpload(ctx, id, i, res)
}

type fixture struct {
	srv      *Server
	store    *memStore
	uploader *fakeUploader
	reg      *prometheus.Registry
}

func newFixture(t *testing.T, mutate func(*Deps)) *fixture {
	t.Helper()
	reg := prometheus.NewRegistry()
	metrics, err := telemetry.NewMetrics(reg)
	require.NoError(t, err)

	p := pipeline.New(nil, pipeline.WithMetrics(metrics))
	require.NoError(t, p.Retrievers().Register(staticRetriever{
		"https://logs.example.test/crash": fabricLog,
		"https://logs.example.test/plain": "nothing to see",
	}))
	require.NoError(t, parsers.RegisterDefaults(p))
	require.NoError(t, processors.RegisterDefaults(p))

	f := &fixture{store: newMemStore(), uploader: &fakeUploader{}, reg: reg}
	deps := Deps{
		Pipeline: p,
		Store:    f.store,
		Uploader: f.uploader,
		Metrics:  metrics,
		Gatherer: reg,
		Now:      func() time.Time { return time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC) },
	}
	if mutate != nil {
		mutate(&deps)
	}
	f.srv = New(deps)
	return f
}

func (f *fixture) do(t *testing.T, method, target, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealthzAndMetrics(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = f.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `crashlens_http_requests_total{code="200",route="/healthz"} 1`)
}

func TestAnalyze(t *testing.T) {
	f := newFixture(t, nil)
	body := `{"content":"see https://logs.example.test/crash and https://logs.example.test/plain","source":"discord","channel":"help"}`
	rec := f.do(t, http.MethodPost, "/api/analyze", body, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	r := decode[report.Report](t, rec)
	assert.Equal(t, "discord", r.Source)
	assert.Equal(t, 1, r.Skipped)
	require.Len(t, r.Logs, 1)
	got := r.Logs[0]
	assert.Equal(t, "https://logs.example.test/crash", got.URL)
	assert.Equal(t, report.StatusProblems, got.Status)
	assert.Equal(t, "1.20.1", got.MinecraftVersion)
	require.NotEmpty(t, got.Messages)
	assert.Contains(t, got.Messages[0], "examplemod")
	assert.Empty(t, got.Content)

	stored, err := f.store.GetReport(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, fabricLog, stored.Logs[0].Content)
}

func TestAnalyzeIncludeContent(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodPost, "/api/analyze", `{"content":"https://logs.example.test/crash","include_content":true}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	r := decode[report.Report](t, rec)
	require.Len(t, r.Logs, 1)
	assert.Equal(t, fabricLog, r.Logs[0].Content)
}

func TestAnalyzeRejectsEmptyRequest(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodPost, "/api/analyze", `{"content":"   "}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[HTTPError](t, rec).Error, "content or attachments")
}

func TestAnalyzeWithoutStore(t *testing.T) {
	f := newFixture(t, func(d *Deps) { d.Store = nil })
	rec := f.do(t, http.MethodPost, "/api/analyze", `{"content":"https://logs.example.test/crash"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[report.Report](t, rec).Logs, 1)

	rec = f.do(t, http.MethodGet, "/api/reports/"+uuid.NewString(), "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGetReport(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodPost, "/api/analyze", `{"content":"https://logs.example.test/crash"}`, nil)
	id := decode[report.Report](t, rec).ID

	rec = f.do(t, http.MethodGet, "/api/reports/"+id.String(), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	r := decode[report.Report](t, rec)
	assert.Equal(t, id, r.ID)
	assert.Empty(t, r.Logs[0].Content)

	rec = f.do(t, http.MethodGet, "/api/reports/"+id.String()+"?include_content=true", "", nil)
	assert.Equal(t, fabricLog, decode[report.Report](t, rec).Logs[0].Content)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/reports/"+uuid.NewString(), "", nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/reports/not-a-uuid", "", nil).Code)

	rec = f.do(t, http.MethodGet, "/api/reports?limit=10", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]store.Summary](t, rec), 1)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/api/reports?limit=0", "", nil).Code)
}

func TestUploadLog(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodPost, "/api/analyze", `{"content":"https://logs.example.test/crash"}`, nil)
	id := decode[report.Report](t, rec).ID
	target := "/api/reports/" + id.String() + "/logs/0/upload"

	rec = f.do(t, http.MethodPost, target, "", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "https://mclo.gs/abc", decode[upload.Result](t, rec).URL)
	assert.Equal(t, fabricLog, f.uploader.content)

	rec = f.do(t, http.MethodPost, target, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, f.uploader.calls)

	rec = f.do(t, http.MethodPost, "/api/reports/"+id.String()+"/logs/3/upload", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUploadLogConcurrent(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodPost, "/api/analyze", `{"content":"https://logs.example.test/crash"}`, nil)
	id := decode[report.Report](t, rec).ID
	target := "/api/reports/" + id.String() + "/logs/0/upload"

	const n = 8
	urls := make([]string, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodPost, target, nil)
			rec := httptest.NewRecorder()
			f.srv.Handler().ServeHTTP(rec, req)
			var res upload.Result
			if err := json.Unmarshal(rec.Body.Bytes(), &res); err == nil {
				urls[i] = res.URL
			}
		}()
	}
	wg.Wait()

	stored, err := f.store.GetUpload(context.Background(), id, 0)
	require.NoError(t, err)
	for i, u := range urls {
		assert.Equal(t, stored.URL, u, "response %d", i)
	}
}

func TestUploadLogLosesRace(t *testing.T) {
	winner := upload.Result{ID: "first", URL: "https://mclo.gs/first"}
	rs := &racingStore{memStore: newMemStore(), winner: winner}
	f := newFixture(t, func(d *Deps) { d.Store = rs })
	rec := f.do(t, http.MethodPost, "/api/analyze", `{"content":"https://logs.example.test/crash"}`, nil)
	id := decode[report.Report](t, rec).ID

	rec = f.do(t, http.MethodPost, "/api/reports/"+id.String()+"/logs/0/upload", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, winner, decode[upload.Result](t, rec))
	assert.Equal(t, 1, f.uploader.calls)
}

func TestUploadLogFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.uploader.err = errors.New("mclo.gs down")
	rec := f.do(t, http.MethodPost, "/api/analyze", `{"content":"https://logs.example.test/crash"}`, nil)
	id := decode[report.Report](t, rec).ID

	rec = f.do(t, http.MethodPost, "/api/reports/"+id.String()+"/logs/0/upload", "", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, decode[HTTPError](t, rec).Error, "mclo.gs down")
}

func TestStages(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/api/stages", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stages := decode[[]StageInfo](t, rec)
	require.NotEmpty(t, stages)
	assert.Equal(t, StageInfo{Kind: "retriever", Identifier: "static", Order: pipeline.Default.String()}, stages[0])
	assert.Equal(t, "processor", stages[len(stages)-1].Kind)
}

func TestAuth(t *testing.T) {
	secret := []byte("test-secret")
	f := newFixture(t, func(d *Deps) { d.Secret = secret })

	rec := f.do(t, http.MethodGet, "/api/stages", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "missing token", decode[HTTPError](t, rec).Error)

	bad, err := SignJWT("bot", []byte("other"), time.Minute)
	require.NoError(t, err)
	rec = f.do(t, http.MethodGet, "/api/stages", "", http.Header{"Authorization": {"Bearer " + bad}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	expired, err := SignJWT("bot", secret, -time.Minute)
	require.NoError(t, err)
	rec = f.do(t, http.MethodGet, "/api/stages", "", http.Header{"Authorization": {"Bearer " + expired}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	good, err := SignJWT("bot", secret, time.Minute)
	require.NoError(t, err)
	rec = f.do(t, http.MethodGet, "/api/stages", "", http.Header{"Authorization": {"Bearer " + good}})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/stages", "", http.Header{"Cookie": {"auth=" + good}})
	assert.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/healthz", "", nil).Code)
}

// authorRetriever records the event author it was asked about.
type authorRetriever struct {
	mu     sync.Mutex
	author string
}

func (*authorRetriever) Identifier() string     { return "author" }
func (*authorRetriever) Order() pipeline.Order { return pipeline.Default }
func (a *authorRetriever) Applies(_ *url.URL, ev pipeline.Event, _ *remoteconfig.Snapshot) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.author = ev.Author
	return false
}
func (*authorRetriever) Fetch(context.Context, *url.URL, *remoteconfig.Snapshot) ([]string, error) {
	return nil, nil
}

func TestAnalyzeAuthorDefaultsToTokenSubject(t *testing.T) {
	secret := []byte("test-secret")
	rec := &authorRetriever{}
	f := newFixture(t, func(d *Deps) {
		d.Secret = secret
		p := pipeline.New(nil)
		require.NoError(t, p.Retrievers().Register(rec))
		d.Pipeline = p
	})
	tok, err := SignJWT("support-bot", secret, time.Minute)
	require.NoError(t, err)
	auth := http.Header{"Authorization": {"Bearer " + tok}}

	resp := f.do(t, http.MethodPost, "/api/analyze", `{"content":"https://logs.example.test/crash"}`, auth)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, "support-bot", rec.author)

	resp = f.do(t, http.MethodPost, "/api/analyze", `{"content":"https://logs.example.test/crash","author":"someone"}`, auth)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, "someone", rec.author)
}
