// Copyright (C) 2026 Fieldtrack Labs, Inc.
// See LICENSE for copying information.

// Package web implements the HTTP surface of the tracker backend.
package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fieldtrack/tracklog/export"
	"github.com/fieldtrack/tracklog/ingest"
)

// Error is the error class for server failures.
var Error = errs.Class("web")

// Config holds the HTTP server parameters.
type Config struct {
	Address string
	// Token is the shared credential expected in X-API-Token.
	Token string
}

// Server routes ingestion and export requests.
type Server struct {
	log    *zap.Logger
	config Config

	ingest *ingest.Service
	export *export.Service

	Handler http.Handler
	server  http.Server
}

// NewServer creates the HTTP server around the given services.
func NewServer(log *zap.Logger, ingestService *ingest.Service, exportService *export.Service, config Config) *Server {
	s := &Server{
		log:    log,
		config: config,
		ingest: ingestService,
		export: exportService,
	}

	router := mux.NewRouter()
	router.HandleFunc("/gps/batch", s.handleBatch).Methods(http.MethodPost)
	router.HandleFunc("/gps/geojson", s.handleGeoJSON).Methods(http.MethodGet)
	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.Handler = router
	s.server = http.Server{Handler: router}

	return s
}

// Run serves requests on the given listener until the context is canceled.
func (s *Server) Run(ctx context.Context, listener net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	var group errgroup.Group
	group.Go(func() error {
		<-ctx.Done()
		return Error.Wrap(s.server.Shutdown(context.Background()))
	})
	group.Go(func() error {
		defer cancel()
		err := s.server.Serve(listener)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return Error.Wrap(err)
	})
	return group.Wait()
}

// authorized checks the shared token before any state is touched.
func (s *Server) authorized(r *http.Request) bool {
	token := r.Header.Get("X-API-Token")
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.config.Token)) == 1
}

// device resolves the device identifier from the query or header; the
// ingestion and export sides sanitize it further.
func device(r *http.Request) string {
	if d := r.URL.Query().Get("device"); d != "" {
		return d
	}
	return r.Header.Get("X-Device-Id")
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	w.Header().Set("Content-Type", "application/json; charset=utf-8")

	if !s.authorized(r) {
		s.errorResponse(w, ErrUnauthorized)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.errorResponse(w, &ErrorResponse{StatusCode: http.StatusBadRequest, Message: "unreadable body"})
		return
	}

	res, err := s.ingest.Process(ctx, device(r), body)
	if err != nil {
		s.errorResponse(w, mapIngestError(err))
		return
	}
	s.jsonResponse(w, http.StatusOK, res)
}

func (s *Server) handleGeoJSON(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")

	if !s.authorized(r) {
		s.errorResponse(w, ErrUnauthorized)
		return
	}

	q := r.URL.Query()
	req := export.Request{
		Device:        device(r),
		BeginTs:       digitParam(q.Get("begin_ts")),
		EndTs:         digitParam(q.Get("end_ts")),
		IncludePoints: q.Get("points") == "1",
	}
	if hours, err := strconv.Atoi(q.Get("hours")); err == nil {
		req.Hours = hours
	}

	fc, err := s.export.GeoJSON(ctx, req)
	if err != nil {
		s.errorResponse(w, mapExportError(err))
		return
	}
	s.jsonResponse(w, http.StatusOK, fc)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Error("failed to encode response", zap.Error(err))
	}
}

// digitParam parses a non-negative decimal parameter; anything else is
// treated as absent.
func digitParam(s string) *int64 {
	if s == "" {
		return nil
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return nil
		}
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil
	}
	return &v
}
