package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/pdfworker/internal/auth"
	"github.com/JakeFAU/pdfworker/internal/governor"
	"github.com/JakeFAU/pdfworker/internal/metrics"
	"github.com/JakeFAU/pdfworker/internal/report"
)

// RequestSource resolves a task into a GenerationRequest.
type RequestSource interface {
	Request(ctx context.Context, taskID, userID, templateName string) (report.GenerationRequest, error)
}

// Generator runs the report pipeline.
type Generator interface {
	Generate(ctx context.Context, req report.GenerationRequest) (report.Result, error)
}

// TokenVerifier checks the Authorization header of a generate request.
type TokenVerifier interface {
	Verify(authorization, taskID, userID string) (auth.Claims, error)
}

// Options tunes the server.
type Options struct {
	// RequestTimeout bounds every request. Zero disables the limit.
	RequestTimeout time.Duration
	// StartedAt is the process start used for the uptime figure.
	StartedAt time.Time
}

const internalError = "Internal server error"

var unsafeName = regexp.MustCompile(`[^a-zA-Z0-9-_]`)

// Server wires HTTP handlers to the pipeline and the governor.
type Server struct {
	router    chi.Router
	source    RequestSource
	generator Generator
	governor  *governor.Governor
	verifier  TokenVerifier
	clock     report.Clock
	opts      Options
	logger    *zap.Logger
}

// NewServer constructs a Server with middleware and routes. A nil verifier
// disables token checks.
func NewServer(
	source RequestSource,
	generator Generator,
	gov *governor.Governor,
	verifier TokenVerifier,
	clock report.Clock,
	opts Options,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.StartedAt.IsZero() {
		opts.StartedAt = clock.Now()
	}
	s := &Server{
		source:    source,
		generator: generator,
		governor:  gov,
		verifier:  verifier,
		clock:     clock,
		opts:      opts,
		logger:    logger.Named("api"),
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(recoverMiddleware(s.logger))
	r.Use(metrics.Middleware)
	if opts.RequestTimeout > 0 {
		r.Use(timeoutMiddleware(opts.RequestTimeout))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/health", s.health)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Get("/generate-pdf/{task_id}/{user_id}", s.generatePDF)

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type healthResponse struct {
	Status            governor.State `json:"status"`
	Timestamp         string         `json:"timestamp"`
	Uptime            float64        `json:"uptime"`
	ActiveWorkerCount int64          `json:"activeWorkerCount"`
	MaxWorkers        int64          `json:"maxWorkers"`
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	now := s.clock.Now()
	st := s.governor.Status()
	code := http.StatusOK
	if st.State == governor.StateOverloaded {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, healthResponse{
		Status:            st.State,
		Timestamp:         now.UTC().Format(time.RFC3339Nano),
		Uptime:            now.Sub(s.opts.StartedAt).Seconds(),
		ActiveWorkerCount: st.Active,
		MaxWorkers:        st.Max,
	})
}

func (s *Server) generatePDF(w http.ResponseWriter, r *http.Request) {
	release := s.governor.Enter()
	defer release()

	taskID := chi.URLParam(r, "task_id")
	userID := chi.URLParam(r, "user_id")
	templateName := r.URL.Query().Get("template_name")
	logger := s.logger.With(
		zap.String("task_id", taskID),
		zap.String("user_id", userID),
		zap.String("request_id", requestID(r.Context())),
	)
	logger.Info("report requested", zap.String("template_name", templateName))

	if s.verifier != nil {
		if _, err := s.verifier.Verify(r.Header.Get("Authorization"), taskID, userID); err != nil {
			var authErr *auth.Error
			msg := "Unauthorized"
			if errors.As(err, &authErr) {
				msg = authErr.Message
			}
			logger.Warn("token rejected", zap.Error(err))
			writeText(w, http.StatusUnauthorized, msg)
			return
		}
	}

	req, err := s.source.Request(r.Context(), taskID, userID, templateName)
	if err != nil {
		logger.Error("upstream lookup failed", zap.Error(err))
		writeText(w, http.StatusInternalServerError, internalError)
		return
	}
	res, err := s.generator.Generate(r.Context(), req)
	if err != nil {
		logger.Error("report generation failed", zap.Error(err))
		writeText(w, http.StatusInternalServerError, internalError)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "application/pdf")
	h.Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, FileName(req.Task.Name)))
	h.Set("Content-Length", strconv.Itoa(len(res.PDF)))
	h.Set("Cache-Control", "no-cache")
	h.Set("X-Run-ID", res.RunID)
	for key, value := range res.Metrics {
		h.Set("x-metric-"+unsafeName.ReplaceAllString(key, "_"), value)
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(res.PDF); err != nil {
		logger.Warn("response write failed", zap.Error(err))
	}
}

// FileName derives the attachment name from a task name.
func FileName(taskName string) string {
	if taskName == "" {
		return "output.pdf"
	}
	return unsafeName.ReplaceAllString(taskName, "_") + ".pdf"
}

type requestIDKey struct{}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
				zap.String("request_id", requestID(r.Context())),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec), zap.String("path", r.URL.Path))
					writeText(w, http.StatusInternalServerError, internalError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeText(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write([]byte(msg)); err != nil {
		zap.L().Error("write response failed", zap.Error(err))
	}
}
