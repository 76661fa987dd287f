package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/pdfworker/internal/auth"
	"github.com/JakeFAU/pdfworker/internal/governor"
	"github.com/JakeFAU/pdfworker/internal/report"
)

type fakeClock struct{ now time.Time }

func (c fakeClock) Now() time.Time { return c.now }

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fakeSource struct {
	err error
}

func (f fakeSource) Request(_ context.Context, taskID, userID, templateName string) (report.GenerationRequest, error) {
	if f.err != nil {
		return report.GenerationRequest{}, f.err
	}
	return report.GenerationRequest{
		TaskID:       taskID,
		UserID:       userID,
		TemplateName: templateName,
		Task:         report.Task{Name: "Q3 Review / final"},
	}, nil
}

type fakeGenerator struct {
	err   error
	gate  chan struct{}
	mu    sync.Mutex
	calls []report.GenerationRequest
}

func (f *fakeGenerator) Generate(ctx context.Context, req report.GenerationRequest) (report.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return report.Result{}, ctx.Err()
		}
	}
	if f.err != nil {
		return report.Result{}, f.err
	}
	return report.Result{
		RunID:   "run-9",
		PDF:     []byte("%PDF-fake"),
		Metrics: report.ExtractedMetrics{"score": "9", "bad key": "x"},
	}, nil
}

func newTestServer(t *testing.T, source RequestSource, gen Generator, gov *governor.Governor) *Server {
	t.Helper()
	clock := fakeClock{now: testNow}
	verifier, err := auth.NewVerifier("shh", 15*time.Second, clock)
	require.NoError(t, err)
	return NewServer(source, gen, gov, verifier, clock, Options{
		RequestTimeout: time.Minute,
		StartedAt:      testNow.Add(-90 * time.Second),
	}, zap.NewNop())
}

func authedRequest(t *testing.T, target string, at time.Time) *http.Request {
	t.Helper()
	token, err := auth.Issue("shh", "42", "u-1", at)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestGeneratePDFSucceeds(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{}
	gov := governor.New(10)
	server := newTestServer(t, fakeSource{}, gen, gov)

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, authedRequest(t, "/generate-pdf/42/u-1?template_name=monthly", testNow))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "%PDF-fake", rec.Body.String())
	require.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	require.Equal(t, `attachment; filename="Q3_Review___final.pdf"`, rec.Header().Get("Content-Disposition"))
	require.Equal(t, "9", rec.Header().Get("Content-Length"))
	require.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	require.Equal(t, "9", rec.Header().Get("X-Metric-Score"))
	require.Equal(t, "x", rec.Header().Get("X-Metric-Bad_key"))
	require.Equal(t, "run-9", rec.Header().Get("X-Run-ID"))
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	require.Len(t, gen.calls, 1)
	require.Equal(t, "monthly", gen.calls[0].TemplateName)
	require.Zero(t, gov.Current())
}

func TestGeneratePDFAuthFailures(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		req  func(t *testing.T) *http.Request
		body string
	}{
		{
			name: "missing token",
			req: func(*testing.T) *http.Request {
				return httptest.NewRequest(http.MethodGet, "/generate-pdf/42/u-1", nil)
			},
			body: "No token provided",
		},
		{
			name: "other user",
			req: func(t *testing.T) *http.Request {
				return authedRequest(t, "/generate-pdf/42/u-2", testNow)
			},
			body: "Invalid token payload",
		},
		{
			name: "stale",
			req: func(t *testing.T) *http.Request {
				return authedRequest(t, "/generate-pdf/42/u-1", testNow.Add(-time.Minute))
			},
			body: "Token expired",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			gen := &fakeGenerator{}
			gov := governor.New(10)
			server := newTestServer(t, fakeSource{}, gen, gov)
			rec := httptest.NewRecorder()
			server.Handler().ServeHTTP(rec, tc.req(t))

			require.Equal(t, http.StatusUnauthorized, rec.Code)
			require.Equal(t, tc.body, rec.Body.String())
			require.Empty(t, gen.calls)
			require.Zero(t, gov.Current())
		})
	}
}

func TestGeneratePDFFailuresHideDetail(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		source RequestSource
		gen    *fakeGenerator
	}{
		"upstream": {source: fakeSource{err: report.ErrUpstream}, gen: &fakeGenerator{}},
		"pipeline": {source: fakeSource{}, gen: &fakeGenerator{err: errors.New("chrome crashed at /tmp/x")}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			gov := governor.New(10)
			server := newTestServer(t, tc.source, tc.gen, gov)
			rec := httptest.NewRecorder()
			server.Handler().ServeHTTP(rec, authedRequest(t, "/generate-pdf/42/u-1", testNow))

			require.Equal(t, http.StatusInternalServerError, rec.Code)
			require.Equal(t, "Internal server error", rec.Body.String())
			require.Zero(t, gov.Current())
		})
	}
}

func TestGeneratePDFWithoutVerifier(t *testing.T) {
	t.Parallel()

	gov := governor.New(1)
	server := NewServer(fakeSource{}, &fakeGenerator{}, gov, nil, fakeClock{now: testNow}, Options{}, nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/generate-pdf/42/u-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func decodeHealth(t *testing.T, rec *httptest.ResponseRecorder) healthResponse {
	t.Helper()
	var body healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealthReportsState(t *testing.T) {
	t.Parallel()

	gov := governor.New(1)
	server := newTestServer(t, fakeSource{}, &fakeGenerator{}, gov)

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeHealth(t, rec)
	require.Equal(t, governor.StateHealthy, body.Status)
	require.Equal(t, int64(1), body.MaxWorkers)
	require.Zero(t, body.ActiveWorkerCount)
	require.InDelta(t, 90, body.Uptime, 0.001)
	require.Equal(t, "2024-05-01T12:00:00Z", body.Timestamp)

	r1 := gov.Enter()
	r2 := gov.Enter()
	defer r1()
	defer r2()
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body = decodeHealth(t, rec)
	require.Equal(t, governor.StateOverloaded, body.Status)
	require.Equal(t, int64(2), body.ActiveWorkerCount)
}

func TestConcurrentRequestsReturnCounterToBaseline(t *testing.T) {
	t.Parallel()

	const n = 12
	gen := &fakeGenerator{gate: make(chan struct{})}
	gov := governor.New(n - 1)
	server := newTestServer(t, fakeSource{}, gen, gov)

	reqs := make([]*http.Request, n)
	for i := range reqs {
		reqs[i] = authedRequest(t, "/generate-pdf/42/u-1", testNow)
	}
	var wg sync.WaitGroup
	codes := make(chan int, n)
	for _, req := range reqs {
		wg.Add(1)
		go func(req *http.Request) {
			defer wg.Done()
			rec := httptest.NewRecorder()
			server.Handler().ServeHTTP(rec, req)
			codes <- rec.Code
		}(req)
	}

	require.Eventually(t, func() bool { return gov.Current() == n }, 5*time.Second, 5*time.Millisecond)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	close(gen.gate)
	wg.Wait()
	close(codes)
	for code := range codes {
		require.Equal(t, http.StatusOK, code)
	}
	require.Zero(t, gov.Current())
}

func TestHealthzAndMetrics(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, fakeSource{}, &fakeGenerator{}, governor.New(1))
	for _, path := range []string{"/healthz", "/metrics"} {
		rec := httptest.NewRecorder()
		server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestFileName(t *testing.T) {
	t.Parallel()

	require.Equal(t, "output.pdf", FileName(""))
	require.Equal(t, "Plan-A_v2.pdf", FileName("Plan-A_v2"))
	require.Equal(t, "_____.pdf", FileName("季度报告 "))
}
