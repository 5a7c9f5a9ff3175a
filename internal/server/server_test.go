package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jonathan/applier/internal/application"
	"github.com/jonathan/applier/internal/dedup"
	"github.com/jonathan/applier/internal/embedding"
	"github.com/jonathan/applier/internal/ingestion"
	"github.com/jonathan/applier/internal/matching"
	"github.com/jonathan/applier/internal/server/ratelimit"
	"github.com/jonathan/applier/internal/store"
	"github.com/jonathan/applier/internal/types"
	"github.com/jonathan/applier/internal/vectorindex"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vec(components ...float32) []float32 {
	v := make([]float32, types.EmbeddingDimension)
	copy(v, components)
	return v
}

// titleVectors embeds job text by the title it starts with
var titleVectors = map[string][]float32{
	"Go Engineer":     vec(1, 0.1),
	"Rust Engineer":   vec(0.6, 0.8),
	"Sales Associate": vec(0, 1),
}

type testServer struct {
	*Server
	store store.Store
}

func newTestServer(t *testing.T, rl *ratelimit.Config) *testServer {
	t.Helper()
	s := store.NewMemory()
	provider := embedding.ProviderFunc(func(_ context.Context, text string) ([]float32, error) {
		for title, v := range titleVectors {
			if strings.HasPrefix(text, title+" at ") {
				return v, nil
			}
		}
		return nil, errors.New("provider offline")
	})
	index := vectorindex.New(vectorindex.Options{Dimension: types.EmbeddingDimension, Partitions: 2, Probes: 2, Iterations: 3, Seed: 1})
	engine := matching.New(s, index, provider, matching.DefaultOptions(), nil)
	feed, err := ingestion.NewFeedReader()
	require.NoError(t, err)

	resume, err := matching.NewResume(vec(1, 0))
	require.NoError(t, err)

	srv, err := New(Config{Port: 0, RateLimit: rl}, Deps{
		Store:        s,
		Gate:         dedup.New(s, nil),
		Feed:         feed,
		Engine:       engine,
		Applications: application.NewService(s, application.Options{}, nil),
		Resume:       func(context.Context) (matching.Resume, error) { return resume, nil },
	})
	require.NoError(t, err)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, store: s}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func record(title, url string) types.RawJobRecord {
	return types.RawJobRecord{
		Source:      "linkedin",
		JobURL:      url,
		CompanyName: "Acme",
		JobTitle:    title,
		Description: "<p>Build <b>things</b></p>",
	}
}

// ingestAndMatch ingests the three title jobs and runs a matching pass
func (ts *testServer) ingestAndMatch(t *testing.T) map[string]uuid.UUID {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/jobs/ingest", IngestRequest{Records: []types.RawJobRecord{
		record("Go Engineer", "https://jobs.example.com/go"),
		record("Rust Engineer", "https://jobs.example.com/rust"),
		record("Sales Associate", "https://jobs.example.com/sales"),
	}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[IngestResponse](t, rec)

	ids := map[string]uuid.UUID{}
	for i, title := range []string{"Go Engineer", "Rust Engineer", "Sales Associate"} {
		require.NotNil(t, resp.Results[i].JobID)
		ids[title] = *resp.Results[i].JobID
	}

	rec = ts.do(t, http.MethodPost, "/matching/run", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	run := decode[RunMatchingResponse](t, rec)
	require.Equal(t, 3, run.Counts[matching.OutcomeProcessed])
	return ids
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.do(t, http.MethodGet, "/health", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[HealthResponse](t, rec)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 0, resp.Index.Size)
}

func TestIngest_JSONBatch(t *testing.T) {
	ts := newTestServer(t, nil)

	invalid := record("Go Engineer", "https://jobs.example.com/other")
	invalid.CompanyName = ""
	rec := ts.do(t, http.MethodPost, "/jobs/ingest", IngestRequest{Records: []types.RawJobRecord{
		record("Go Engineer", "https://jobs.example.com/go?utm_source=feed"),
		record("Go Engineer", "https://JOBS.example.com/go#apply"),
		invalid,
	}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[IngestResponse](t, rec)
	require.Len(t, resp.Results, 3)
	assert.Equal(t, dedup.OutcomeCreated, resp.Results[0].Outcome)
	assert.Equal(t, dedup.OutcomeDuplicate, resp.Results[1].Outcome)
	assert.Equal(t, *resp.Results[0].JobID, *resp.Results[1].JobID)
	assert.Equal(t, dedup.OutcomeRejected, resp.Results[2].Outcome)
	assert.Equal(t, 3, resp.Results[2].Line)
	assert.NotEmpty(t, resp.Results[2].Error)
	assert.Equal(t, 1, resp.Counts[dedup.OutcomeCreated])

	jobs, err := ts.store.ListJobs(context.Background(), types.JobFilter{})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.NotContains(t, jobs[0].Description, "<p>")
	assert.Contains(t, jobs[0].Description, "things")
	assert.Equal(t, types.JobStatusNew, jobs[0].Status)
}

func TestIngest_FeedBody(t *testing.T) {
	ts := newTestServer(t, nil)
	feed := strings.Join([]string{
		`{"source":"indeed","job_url":"https://jobs.example.com/1","company_name":"Acme","job_title":"Go Engineer"}`,
		``,
		`{"source":"indeed","job_url":"https://jobs.example.com/2","company_name":"Acme"}`,
		`{"source":"indeed","job_url":"https://jobs.example.com/3","company_name":"Beta","job_title":"Rust Engineer","external_job_id":"r-3"}`,
	}, "\n")

	req := httptest.NewRequest(http.MethodPost, "/jobs/ingest", strings.NewReader(feed))
	req.Header.Set("Content-Type", "application/x-ndjson")
	rec := httptest.NewRecorder()
	ts.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[IngestResponse](t, rec)
	assert.Equal(t, 2, resp.Counts[dedup.OutcomeCreated])
	assert.Equal(t, 1, resp.Counts[dedup.OutcomeRejected])

	lines := map[int]dedup.Outcome{}
	for _, item := range resp.Results {
		lines[item.Line] = item.Outcome
	}
	assert.Equal(t, map[int]dedup.Outcome{1: dedup.OutcomeCreated, 3: dedup.OutcomeRejected, 4: dedup.OutcomeCreated}, lines)
}

func TestIngest_BadRequests(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, "/jobs/ingest", IngestRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/jobs/ingest", strings.NewReader("{not json"))
	rec = httptest.NewRecorder()
	ts.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/jobs/ingest", strings.NewReader(`{"records":[],"extra":1}`))
	rec = httptest.NewRecorder()
	ts.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestJobs_ListGetRejectDelete(t *testing.T) {
	ts := newTestServer(t, nil)
	ids := ts.ingestAndMatch(t)

	rec := ts.do(t, http.MethodGet, "/jobs?status=processed&limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[ListJobsResponse](t, rec)
	assert.Equal(t, 2, list.Count)
	assert.Equal(t, 2, list.Limit)

	rec = ts.do(t, http.MethodGet, "/jobs?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/jobs/"+ids["Go Engineer"].String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	job := decode[types.Job](t, rec)
	assert.Equal(t, types.JobStatusProcessed, job.Status)
	require.NotNil(t, job.MatchScore)

	rec = ts.do(t, http.MethodPost, "/jobs/"+ids["Sales Associate"].String()+"/reject", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, types.JobStatusRejected, decode[types.Job](t, rec).Status)

	// rejecting twice is a state error
	rec = ts.do(t, http.MethodPost, "/jobs/"+ids["Sales Associate"].String()+"/reject", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = ts.do(t, http.MethodDelete, "/jobs/"+ids["Rust Engineer"].String(), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = ts.do(t, http.MethodGet, "/jobs/"+ids["Rust Engineer"].String(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = ts.do(t, http.MethodDelete, "/jobs/"+ids["Rust Engineer"].String(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodGet, "/jobs/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMatching_Top(t *testing.T) {
	ts := newTestServer(t, nil)
	ids := ts.ingestAndMatch(t)

	rec := ts.do(t, http.MethodGet, "/matching/top?k=2", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[TopMatchesResponse](t, rec)
	require.Len(t, resp.Matches, 2)
	assert.Equal(t, ids["Go Engineer"], resp.Matches[0].Job.ID)
	assert.Equal(t, ids["Rust Engineer"], resp.Matches[1].Job.ID)
	assert.GreaterOrEqual(t, resp.Matches[0].Score, resp.Matches[1].Score)

	rec = ts.do(t, http.MethodGet, "/matching/top?min_score=85", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decode[TopMatchesResponse](t, rec)
	require.Len(t, resp.Matches, 1)
	assert.Equal(t, ids["Go Engineer"], resp.Matches[0].Job.ID)

	for _, bad := range []string{"k=-1", "k=abc", "k=101", "min_score=101", "min_score=x"} {
		rec = ts.do(t, http.MethodGet, "/matching/top?"+bad, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, bad)
	}
}

func TestMatching_RunReportsFailures(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.do(t, http.MethodPost, "/jobs/ingest", IngestRequest{Records: []types.RawJobRecord{
		record("Unknown Role", "https://jobs.example.com/unknown"),
	}})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodPost, "/matching/run", RunMatchingRequest{Limit: 10})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[RunMatchingResponse](t, rec)
	assert.Equal(t, 1, resp.Counts[matching.OutcomeFailed])
	require.Len(t, resp.Results, 1)
	assert.Contains(t, resp.Results[0].Error, "provider offline")
}

func TestApplications_Lifecycle(t *testing.T) {
	ts := newTestServer(t, nil)
	ids := ts.ingestAndMatch(t)
	jobPath := "/jobs/" + ids["Go Engineer"].String()

	rec := ts.do(t, http.MethodPost, jobPath+"/applications", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	app := decode[types.Application](t, rec)
	assert.Equal(t, types.ApplicationStatusDraft, app.Status)
	assert.Equal(t, "Go Engineer", app.JobTitle)
	appPath := "/applications/" + app.ID.String()

	// a second draft conflicts and names the active one
	rec = ts.do(t, http.MethodPost, jobPath+"/applications", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	conflict := decode[ErrorResponse](t, rec)
	require.NotNil(t, conflict.ApplicationID)
	assert.Equal(t, app.ID, *conflict.ApplicationID)

	rec = ts.do(t, http.MethodPost, appPath+"/submit", nil)
	require.Equal(t, http.StatusPreconditionFailed, rec.Code)
	assert.Equal(t, []string{"resume", "cover_letter"}, decode[ErrorResponse](t, rec).Missing)

	rec = ts.do(t, http.MethodPut, appPath+"/resume", DocumentRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPut, appPath+"/resume", DocumentRequest{Path: "/tmp/r.md", Text: "# Resume"})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = ts.do(t, http.MethodPut, appPath+"/cover-letter", DocumentRequest{Text: "Dear Acme"})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = ts.do(t, http.MethodPut, appPath+"/screenshot", ScreenshotRequest{Path: "/tmp/s.png"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/tmp/s.png", *decode[types.Application](t, rec).ScreenshotPath)

	rec = ts.do(t, http.MethodPost, appPath+"/submit", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	submitted := decode[types.Application](t, rec)
	assert.Equal(t, types.ApplicationStatusSubmitted, submitted.Status)
	assert.NotNil(t, submitted.SubmittedAt)

	rec = ts.do(t, http.MethodGet, jobPath, nil)
	assert.Equal(t, types.JobStatusApplied, decode[types.Job](t, rec).Status)

	// terminal applications refuse further transitions but accept notes
	rec = ts.do(t, http.MethodPost, appPath+"/fail", FailRequest{Message: "too late"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	rec = ts.do(t, http.MethodPut, appPath+"/resume", DocumentRequest{Text: "v2"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	rec = ts.do(t, http.MethodPut, appPath+"/notes", NotesRequest{Notes: "recruiter replied"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "recruiter replied", *decode[types.Application](t, rec).Notes)

	rec = ts.do(t, http.MethodGet, jobPath+"/applications", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[ListApplicationsResponse](t, rec).Count)

	rec = ts.do(t, http.MethodGet, appPath, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestApplications_FailThenRetry(t *testing.T) {
	ts := newTestServer(t, nil)
	ids := ts.ingestAndMatch(t)
	jobPath := "/jobs/" + ids["Rust Engineer"].String()

	rec := ts.do(t, http.MethodPost, jobPath+"/applications", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	first := decode[types.Application](t, rec)

	rec = ts.do(t, http.MethodPost, "/applications/"+first.ID.String()+"/fail", FailRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/applications/"+first.ID.String()+"/fail", FailRequest{Message: "captcha"})
	require.Equal(t, http.StatusOK, rec.Code)
	failed := decode[types.Application](t, rec)
	assert.Equal(t, types.ApplicationStatusFailed, failed.Status)
	assert.Equal(t, "captcha", *failed.ErrorMessage)

	rec = ts.do(t, http.MethodPost, jobPath+"/applications", nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = ts.do(t, http.MethodGet, jobPath+"/applications", nil)
	list := decode[ListApplicationsResponse](t, rec)
	require.Equal(t, 2, list.Count)
	assert.Equal(t, first.ID, list.Applications[0].ID, "oldest first")
}

func TestApplications_Errors(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, "/jobs/"+uuid.NewString()+"/applications", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = ts.do(t, http.MethodGet, "/applications/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = ts.do(t, http.MethodGet, "/jobs/"+uuid.NewString()+"/applications", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = ts.do(t, http.MethodPut, "/applications/x/notes", NotesRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// a job still in status new cannot be applied to
	rec = ts.do(t, http.MethodPost, "/jobs/ingest", IngestRequest{Records: []types.RawJobRecord{
		record("Go Engineer", "https://jobs.example.com/new"),
	}})
	id := *decode[IngestResponse](t, rec).Results[0].JobID
	rec = ts.do(t, http.MethodPost, "/jobs/"+id.String()+"/applications", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestRateLimit(t *testing.T) {
	ts := newTestServer(t, &ratelimit.Config{Enabled: true, RequestsPerSecond: 0.01, Burst: 2})

	for i := 0; i < 2; i++ {
		rec := ts.do(t, http.MethodGet, "/jobs", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	}
	rec := ts.do(t, http.MethodGet, "/jobs", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// health checks bypass the limiter
	rec = ts.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.do(t, http.MethodOptions, "/jobs", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestNew_RequiresDeps(t *testing.T) {
	_, err := New(Config{}, Deps{})
	assert.Error(t, err)
}
