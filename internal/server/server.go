// Package server exposes a project's retrieval engine over HTTP: search,
// chunk and document lookup, source listing, stats, health, and prometheus
// metrics. One server serves one immutable engine snapshot.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/embed"
	ferrors "github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/errors"
	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/retrieve"
	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/telemetry"
	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/internal/workspace"
	"github.com/Mnehmos/mnehmos.index-foundry.mcp-sub001/pkg/version"
)

// DefaultPort is used when neither Options.Addr nor PORT is set.
const DefaultPort = 8080

// Options configure one server instance.
type Options struct {
	// Addr overrides the listen address. Empty consults PORT, then
	// DefaultPort.
	Addr string

	// Engine options forwarded to the retrieval snapshot load.
	Embedder       embed.Embedder
	Approximate    bool
	KeywordBackend string

	// Telemetry persists drained query counters when non-nil.
	Telemetry *telemetry.Store

	Logger *slog.Logger
}

// Server serves one project snapshot.
type Server struct {
	projectID string
	store     *workspace.Store
	engine    *retrieve.Engine
	recorder  *telemetry.Recorder
	tstore    *telemetry.Store
	logger    *slog.Logger
	metrics   *promMetrics
	startedAt time.Time

	httpServer *http.Server
}

// New loads the project's engine snapshot and prepares the server.
func New(store *workspace.Store, projectID string, opts Options) (*Server, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	engine, err := retrieve.NewEngine(store, projectID, retrieve.EngineOptions{
		Embedder:       opts.Embedder,
		Approximate:    opts.Approximate,
		KeywordBackend: opts.KeywordBackend,
		Logger:         opts.Logger,
	})
	if err != nil {
		return nil, ferrors.Wrap(ferrors.CodeServeFailed, err)
	}

	s := &Server{
		projectID: projectID,
		store:     store,
		engine:    engine,
		recorder:  telemetry.NewRecorder(),
		tstore:    opts.Telemetry,
		logger:    opts.Logger,
		startedAt: time.Now(),
	}
	s.metrics = newPromMetrics(s)
	s.httpServer = &http.Server{
		Addr:         resolveAddr(opts.Addr),
		Handler:      s.handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s, nil
}

// resolveAddr prefers the explicit address, then PORT, then the default.
func resolveAddr(addr string) string {
	if addr != "" {
		return addr
	}
	if port := os.Getenv("PORT"); port != "" {
		if _, err := strconv.Atoi(port); err == nil {
			return ":" + port
		}
	}
	return ":" + strconv.Itoa(DefaultPort)
}

// Addr returns the configured listen address.
func (s *Server) Addr() string { return s.httpServer.Addr }

// ProjectID returns the served project.
func (s *Server) ProjectID() string { return s.projectID }

// ListenAndServe blocks until Shutdown or a listener error.
func (s *Server) ListenAndServe() error {
	s.logger.Info("search server listening",
		"project_id", s.projectID,
		"addr", s.httpServer.Addr,
		"chunks", s.engine.Len(),
		"vectors", s.engine.VectorCount())
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return ferrors.Wrap(ferrors.CodeServeFailed, err)
}

// Serve serves on a pre-bound listener, for tests and the registry.
func (s *Server) Serve(ln net.Listener) error {
	err := s.httpServer.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return ferrors.Wrap(ferrors.CodeServeFailed, err)
}

// Shutdown drains in-flight requests, flushes telemetry, and closes.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if s.tstore != nil {
		if flushErr := s.tstore.Flush("", s.recorder.Drain()); flushErr != nil {
			s.logger.Warn("telemetry flush failed", "error", flushErr.Error())
		}
	}
	s.logger.Info("search server stopped", "project_id", s.projectID)
	if err != nil {
		return ferrors.Wrap(ferrors.CodeServeFailed, err)
	}
	return nil
}

func (s *Server) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.instrument("health", s.handleHealth))
	mux.HandleFunc("GET /stats", s.instrument("stats", s.handleStats))
	mux.HandleFunc("POST /search", s.instrument("search", s.handleSearch))
	mux.HandleFunc("GET /chunks/{id}", s.instrument("get_chunk", s.handleChunk))
	mux.HandleFunc("GET /documents/{id}", s.instrument("get_document", s.handleDocument))
	mux.HandleFunc("GET /sources", s.instrument("list_sources", s.handleSources))
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{}))
	return mux
}

// instrument counts requests per operation and status class.
func (s *Server) instrument(op string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		s.metrics.requestsTotal.WithLabelValues(op, statusClass(rec.status)).Inc()
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func statusClass(status int) string {
	switch {
	case status < 300:
		return "2xx"
	case status < 400:
		return "3xx"
	case status < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"project_id": s.projectID,
		"version":    version.Version,
		"uptime_ms":  time.Since(s.startedAt).Milliseconds(),
	})
}

// statsResponse is the stats payload.
type statsResponse struct {
	ProjectID string             `json:"project_id"`
	UptimeMS  int64              `json:"uptime_ms"`
	Chunks    int                `json:"chunks"`
	Vectors   int                `json:"vectors"`
	Sources   int                `json:"sources"`
	Queries   telemetry.Snapshot `json:"queries"`
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	sources, err := s.store.ListSources(s.projectID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{
		ProjectID: s.projectID,
		UptimeMS:  time.Since(s.startedAt).Milliseconds(),
		Chunks:    s.engine.Len(),
		Vectors:   s.engine.VectorCount(),
		Sources:   len(sources),
		Queries:   s.recorder.Snapshot(10),
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var q retrieve.Query
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		writeError(w, ferrors.Wrap(ferrors.CodeInvalidInput, err))
		return
	}

	start := time.Now()
	result, err := s.engine.Search(r.Context(), q)
	if err != nil {
		writeError(w, err)
		return
	}
	latency := time.Since(start)

	s.metrics.searchesTotal.WithLabelValues(string(result.Mode)).Inc()
	s.metrics.searchDuration.Observe(latency.Seconds())
	s.recorder.Record(telemetry.QueryEvent{
		ProjectID: s.projectID,
		Mode:      string(result.Mode),
		Query:     q.Text,
		Results:   len(result.Hits),
		Latency:   latency,
		At:        start.UTC(),
	})
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleChunk(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	c, ok := s.engine.Chunk(id)
	if !ok {
		writeNotFound(w, "chunk", id)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	chunks := s.engine.Document(id)
	if len(chunks) == 0 {
		writeNotFound(w, "document", id)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"doc_id": id,
		"chunks": chunks,
	})
}

func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.store.ListSources(s.projectID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"project_id": s.projectID,
		"sources":    sources,
	})
}

// errorBody is the wire form of a failed request.
type errorBody struct {
	Code        string `json:"code"`
	Message     string `json:"message"`
	Recoverable bool   `json:"recoverable"`
	Suggestion  string `json:"suggestion,omitempty"`
}

func writeError(w http.ResponseWriter, err error) {
	body := errorBody{
		Code:        ferrors.GetCode(err),
		Message:     err.Error(),
		Recoverable: ferrors.IsRecoverable(err),
	}
	var fe *ferrors.FoundryError
	if errors.As(err, &fe) {
		body.Suggestion = fe.Suggestion
	}

	status := http.StatusInternalServerError
	switch body.Code {
	case ferrors.CodeInvalidInput, ferrors.CodeInvalidFilter, ferrors.CodeNotConfirmed:
		status = http.StatusBadRequest
	case ferrors.CodeProjectNotFound, ferrors.CodeNoSource, ferrors.CodeRunNotFound:
		status = http.StatusNotFound
	case ferrors.CodeAlreadyRunning:
		status = http.StatusConflict
	}
	writeJSON(w, status, map[string]any{"error": body})
}

func writeNotFound(w http.ResponseWriter, kind, id string) {
	writeJSON(w, http.StatusNotFound, map[string]any{"error": errorBody{
		Code:    ferrors.CodeInvalidInput,
		Message: kind + " " + strconv.Quote(id) + " not found",
	}})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
