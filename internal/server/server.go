package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/inelson/kubesql/internal/config"
	"github.com/inelson/kubesql/internal/metrics"
	"github.com/inelson/kubesql/internal/snapshot"
	"github.com/inelson/kubesql/internal/stream"
	"github.com/inelson/kubesql/pkg/api"
	"github.com/inelson/kubesql/pkg/event"
)

type QueryExecutor interface {
	Execute(ctx context.Context, q string) (*api.QueryResult, error)
}

type SnapshotSource interface {
	Current() *snapshot.Snapshot
}

type StatsSource interface {
	Stats() api.RefreshStats
}

type Server struct {
	cfg       *config.Config
	router    chi.Router
	query     QueryExecutor
	snapshots SnapshotSource
	refresh   StatsSource
	hub       *stream.Hub
	logger    *slog.Logger
	http      *http.Server
}

// New builds the HTTP front-end. refresh and hub may be nil.
func New(cfg *config.Config, q QueryExecutor, snapshots SnapshotSource, refresh StatsSource, hub *stream.Hub, logger *slog.Logger) *Server {
	s := &Server{
		cfg:       cfg,
		query:     q,
		snapshots: snapshots,
		refresh:   refresh,
		hub:       hub,
		logger:    logger,
	}
	s.router = s.routes()
	s.http = &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) Router() chi.Router {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Handle("/metrics", metrics.Handler())

	r.Get("/api", s.handleQuery)
	r.Get("/api/snapshot", s.handleSnapshot)
	if s.hub != nil {
		r.Get("/api/stream", s.handleStream)
	}

	r.Get("/*", s.handleStatic)

	return r
}

func (s *Server) Start() error {
	s.logger.Info("starting server", "addr", s.cfg.HTTPAddr)
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, api.HealthResponse{Status: "ok", Version: s.cfg.Version})
}

// handleReadyz reports ready once a refresh cycle has committed a snapshot.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.refresh != nil && s.refresh.Stats().LastSuccess.IsZero() {
		writeJSON(w, http.StatusServiceUnavailable, api.HealthResponse{Status: "not ready", Version: s.cfg.Version})
		return
	}
	writeJSON(w, http.StatusOK, api.HealthResponse{Status: "ready", Version: s.cfg.Version})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("query")
	if q == "" {
		writeText(w, http.StatusBadRequest, "missing query")
		return
	}

	res, err := s.query.Execute(r.Context(), q)
	if err != nil {
		writeText(w, http.StatusInternalServerError, "error: "+err.Error())
		return
	}
	if res.Empty() {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap := s.snapshots.Current()
	info := api.SnapshotInfo{
		ID:        snap.ID,
		CreatedAt: snap.CreatedAt,
		Counts:    snap.Counts(),
	}
	if s.refresh != nil {
		info.Refresh = s.refresh.Stats()
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Error("websocket accept failed", "error", err)
		return
	}

	client := s.hub.Register(r.Context(), conn)
	defer s.hub.Unregister(client)

	welcome, _ := event.New("connected", event.TopicSystem, "kubesql", map[string]string{
		"snapshot": s.snapshots.Current().ID,
	})
	if data, err := json.Marshal(welcome); err == nil {
		client.Write(data)
	}

	s.hub.Serve(client)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		slog.Error("failed to write json response", "error", err)
	}
}

func writeText(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(msg))
}
