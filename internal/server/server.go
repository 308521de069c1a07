// Package server exposes Switchyard's tool-routing API over HTTP.
//
// The server offers a small JSON API for one-shot tool selection and
// execution, a websocket endpoint for interactive selection sessions, and
// the operational endpoints (/healthz, /readyz, /metrics) expected of a
// long-running service.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/metric"

	"github.com/switchyard-ai/switchyard/internal/extension"
	"github.com/switchyard-ai/switchyard/internal/health"
	"github.com/switchyard-ai/switchyard/internal/observe"
	"github.com/switchyard-ai/switchyard/internal/router"
)

// Config collects the dependencies of a [Server].
type Config struct {
	// Addr is the TCP address to listen on (e.g., ":8080").
	Addr string

	// Selector answers tool-selection queries.
	Selector router.Selector

	// Host executes tools on registered extensions. May be nil; tool
	// execution then returns 503.
	Host *extension.Host

	// Health serves the liveness and readiness probes. May be nil; a handler
	// with no checkers is used.
	Health *health.Handler

	// Metrics records request metrics. May be nil.
	Metrics *observe.Metrics

	// Version is reported by the /info endpoint.
	Version string
}

// Server is the Switchyard HTTP front end.
type Server struct {
	cfg  Config
	http *http.Server
}

// New builds a Server with all routes registered. Call [Server.Start] to
// begin serving.
func New(cfg Config) *Server {
	if cfg.Health == nil {
		cfg.Health = health.New()
	}

	s := &Server{cfg: cfg}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /info", s.handleInfo)
	mux.HandleFunc("POST /v1/tools/select", s.handleSelect)
	mux.HandleFunc("GET /v1/tools/recent", s.handleRecent)
	mux.HandleFunc("POST /v1/tools/call", s.handleCall)
	mux.HandleFunc("GET /v1/session", s.handleSession)
	mux.Handle("GET /metrics", promhttp.Handler())
	cfg.Health.Register(mux)

	s.http = &http.Server{
		Addr:    cfg.Addr,
		Handler: s.instrument(mux),

		// Timeouts protect against slow clients holding connections open.
		// The websocket endpoint hijacks the connection before the write
		// timeout applies, so long-lived sessions are unaffected.
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler returns the server's root handler. Exposed for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Start begins serving and blocks until the listener fails or
// [Server.Shutdown] is called. A closed-server error is reported as nil.
func (s *Server) Start() error {
	slog.Info("http server listening", "addr", s.cfg.Addr)
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return fmt.Errorf("server: listen on %s: %w", s.cfg.Addr, err)
}

// StartTLS is like [Server.Start] but serves HTTPS with the given
// certificate and key files.
func (s *Server) StartTLS(certFile, keyFile string) error {
	slog.Info("https server listening", "addr", s.cfg.Addr)
	err := s.http.ListenAndServeTLS(certFile, keyFile)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return fmt.Errorf("server: listen on %s: %w", s.cfg.Addr, err)
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.http.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

// instrument wraps h to record per-route request durations.
func (s *Server) instrument(h http.Handler) http.Handler {
	if s.cfg.Metrics == nil {
		return h
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		h.ServeHTTP(w, r)
		s.cfg.Metrics.HTTPRequestDuration.Record(r.Context(), time.Since(start).Seconds(),
			metric.WithAttributes(
				observe.Attr("method", r.Method),
				observe.Attr("path", r.URL.Path),
			),
		)
	})
}

// infoResponse is the body of GET /info.
type infoResponse struct {
	Version     string   `json:"version"`
	Strategy    string   `json:"strategy"`
	Extensions  []string `json:"extensions"`
	Tools       []string `json:"tools"`
	RecentCalls []string `json:"recent_calls"`
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	res := infoResponse{
		Version:     s.cfg.Version,
		Strategy:    string(s.cfg.Selector.Type()),
		Extensions:  []string{},
		Tools:       []string{},
		RecentCalls: s.cfg.Selector.RecentToolCalls(10),
	}
	if s.cfg.Host != nil {
		if exts := s.cfg.Host.Extensions(); exts != nil {
			res.Extensions = exts
		}
		if tools := s.cfg.Host.Tools(); tools != nil {
			res.Tools = tools
		}
	}
	writeJSON(w, http.StatusOK, res)
}

// selectRequest is the body of POST /v1/tools/select and of websocket
// session messages.
type selectRequest struct {
	Query     string `json:"query"`
	K         int    `json:"k,omitempty"`
	Extension string `json:"extension,omitempty"`
}

// selectResponse carries the selected tool blocks, most relevant first.
type selectResponse struct {
	Tools []string `json:"tools"`
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_params", "request body must be a JSON object")
		return
	}

	tools, err := s.cfg.Selector.SelectTools(r.Context(), router.Query{
		Text:      req.Query,
		K:         req.K,
		Extension: req.Extension,
	})
	if err != nil {
		writeRouterError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, selectResponse{Tools: tools})
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	// The history holds at most 100 entries, so absent a limit return it all.
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid_params", "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	calls := s.cfg.Selector.RecentToolCalls(limit)
	if calls == nil {
		calls = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"calls": calls})
}

// callRequest is the body of POST /v1/tools/call. Name must be fully
// qualified ("extension__tool"); Arguments is a JSON object.
type callRequest struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

type callResponse struct {
	Content    string `json:"content"`
	IsError    bool   `json:"is_error"`
	DurationMs int64  `json:"duration_ms"`
}

func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Host == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "no extensions are configured")
		return
	}

	var req callRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_params", "request body must be a JSON object")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "invalid_params", "name is required")
		return
	}

	result, err := s.cfg.Host.ExecuteTool(r.Context(), req.Name, string(req.Arguments))
	if err != nil {
		writeError(w, http.StatusBadGateway, "execution_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, callResponse{
		Content:    result.Content,
		IsError:    result.IsError,
		DurationMs: result.DurationMs,
	})
}

// errorBody is the JSON error envelope used by all endpoints.
type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// writeRouterError maps a selector error to an HTTP response, preserving the
// router's error code where one is available.
func writeRouterError(w http.ResponseWriter, err error) {
	var rerr *router.Error
	if errors.As(err, &rerr) {
		status := http.StatusInternalServerError
		if rerr.Code == router.CodeInvalidParams {
			status = http.StatusBadRequest
		}
		writeError(w, status, string(rerr.Code), rerr.Message)
		return
	}
	writeError(w, http.StatusInternalServerError, "internal", err.Error())
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	var body errorBody
	body.Error.Code = code
	body.Error.Message = message
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
