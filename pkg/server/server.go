// Package server exposes the core operations over HTTP with JSON bodies.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/docfoundry/docfoundry/pkg/agent"
	"github.com/docfoundry/docfoundry/pkg/config"
	"github.com/docfoundry/docfoundry/pkg/core"
	"github.com/docfoundry/docfoundry/pkg/rag"
)

// maxBodyBytes bounds request bodies; larger payloads get 413.
const maxBodyBytes = 1 << 20

// Server is the HTTP transport over a Core.
type Server struct {
	core *core.Core
	http *http.Server
}

// New builds the router and binds it to cfg.Server.
func New(c *core.Core, cfg config.ServerConfig) *Server {
	s := &Server{core: c}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(limitBody)

	r.Get("/healthz", s.handleHealth)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/search", s.handleSearch)
		r.Post("/answer", s.handleAnswer)
		r.Post("/suggest", s.handleSuggest)
		r.Post("/apply", s.handleApply)
		r.Post("/compare", s.handleCompare)
		r.Post("/dependencies", s.handleDependencies)
		r.Post("/refresh", s.handleRefresh)
		r.Get("/metrics", s.handleMetrics)
	})

	s.http = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the router, for tests.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// Start serves until the context is cancelled, then drains in-flight
// requests.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	slog.Info("Shutting down HTTP server")
	return s.http.Shutdown(shutdownCtx)
}

func limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		next.ServeHTTP(w, r)
	})
}

type searchRequest struct {
	Query      string   `json:"query"`
	Release    string   `json:"release,omitempty"`
	Service    string   `json:"service,omitempty"`
	DocTypes   []string `json:"docTypes,omitempty"`
	MaxResults int      `json:"maxResults,omitempty"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "query is required")
		return
	}

	result, err := s.core.Search(r.Context(), core.SearchRequest{
		Query:      req.Query,
		Release:    req.Release,
		Service:    req.Service,
		DocTypes:   req.DocTypes,
		MaxResults: req.MaxResults,
	})
	if err != nil {
		writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var req rag.Request
	if !decode(w, r, &req) {
		return
	}

	result, err := s.core.Answer(r.Context(), req)
	if err != nil {
		if errors.Is(err, rag.ErrEmptyQuery) {
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
			return
		}
		writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleSuggest(w http.ResponseWriter, r *http.Request) {
	var req agent.Intent
	if !decode(w, r, &req) {
		return
	}
	if req.Intent == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "intent is required")
		return
	}

	suggestion, err := s.core.SuggestUpdate(r.Context(), req)
	if err != nil {
		writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, suggestion)
}

type applyRequest struct {
	// targetPath and targetFile are accepted interchangeably; suggestions
	// report the latter.
	TargetPath string `json:"targetPath"`
	TargetFile string `json:"targetFile"`
	Diff       string `json:"diff"`
	Force      bool   `json:"force,omitempty"`
}

func (s *Server) handleApply(w http.ResponseWriter, r *http.Request) {
	var req applyRequest
	if !decode(w, r, &req) {
		return
	}
	target := req.TargetPath
	if target == "" {
		target = req.TargetFile
	}
	if target == "" || req.Diff == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "targetPath and diff are required")
		return
	}

	result, err := s.core.ApplyUpdate(r.Context(), target, req.Diff, req.Force)
	if err != nil {
		var conflict *agent.ConflictError
		if errors.As(err, &conflict) {
			writeJSON(w, http.StatusConflict, map[string]any{
				"status":    "error",
				"path":      target,
				"reindexed": false,
				"code":      "FACT_CONFLICT",
				"error":     conflict.Error(),
				"conflicts": conflict.Conflicts,
			})
			return
		}
		writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type compareRequest struct {
	Feature  string   `json:"feature"`
	Releases []string `json:"releases,omitempty"`
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	var req compareRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Feature == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "feature is required")
		return
	}

	result, err := s.core.CompareReleases(r.Context(), req.Feature, req.Releases)
	if err != nil {
		writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type dependenciesRequest struct {
	Service         string `json:"service"`
	Release         string `json:"release,omitempty"`
	IncludeDataFlow bool   `json:"includeDataFlow,omitempty"`
}

func (s *Server) handleDependencies(w http.ResponseWriter, r *http.Request) {
	var req dependenciesRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Service == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "service is required")
		return
	}

	result, err := s.core.ServiceDependencies(r.Context(), req.Service, req.Release, req.IncludeDataFlow)
	if err != nil {
		writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	result, err := s.core.Refresh(r.Context())
	if err != nil {
		writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.core.Health())
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.core.Metrics())
}
