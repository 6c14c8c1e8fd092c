// Package httpapi is the wire boundary: one multipart upload endpoint plus
// health probes. Routing, CORS and rate limiting live here; all pipeline
// semantics stay in the pipeline package.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/talkback-labs/talkback/internal/config"
	"github.com/talkback-labs/talkback/internal/journal"
	"github.com/talkback-labs/talkback/internal/pipeline"
)

// RunLister exposes recent pipeline runs for the admin listing endpoint.
type RunLister interface {
	ListRecent(ctx context.Context, limit int) ([]journal.Run, error)
}

type Server struct {
	cfg    config.HTTPConfig
	orch   *pipeline.Orchestrator
	logger *slog.Logger
	ready  func() bool
	runs   RunLister
}

func NewServer(cfg config.HTTPConfig, orch *pipeline.Orchestrator, logger *slog.Logger, ready func() bool) *Server {
	if ready == nil {
		ready = func() bool { return true }
	}
	return &Server{
		cfg:    cfg,
		orch:   orch,
		logger: logger.With(slog.String("component", "httpapi")),
		ready:  ready,
	}
}

// SetRunLister enables GET /api/runs backed by the given journal.
func (s *Server) SetRunLister(runs RunLister) {
	s.runs = runs
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{headerDetectedLang, headerCorrectedText},
		AllowCredentials: true,
	}))

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)

	r.Group(func(r chi.Router) {
		if s.cfg.UploadRatePerMin > 0 {
			r.Use(httprate.LimitByIP(s.cfg.UploadRatePerMin, time.Minute))
		}
		r.Post("/api/upload", s.handleUpload)
	})

	if s.runs != nil {
		r.Get("/api/runs", s.handleRuns)
	}
	return r
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}
	runs, err := s.runs.ListRecent(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list runs", slog.String("error", err.Error()))
		http.Error(w, `{"error":"journal unavailable"}`, http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []journal.Run{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(runs)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		writeOutcome(w, validationFailure(fmt.Errorf("%w: malformed multipart form", pipeline.ErrValidation)))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	email := r.FormValue("email")
	file, header, err := r.FormFile("audio")
	if err != nil {
		writeOutcome(w, validationFailure(fmt.Errorf("%w: missing audio field", pipeline.ErrValidation)))
		return
	}
	defer file.Close()

	payload, err := io.ReadAll(file)
	if err != nil {
		writeOutcome(w, validationFailure(fmt.Errorf("%w: unreadable audio field", pipeline.ErrValidation)))
		return
	}

	s.logger.Info("upload received",
		slog.String("email", email),
		slog.String("filename", header.Filename),
		slog.String("content_type", header.Header.Get("Content-Type")),
		slog.Int("bytes", len(payload)))

	out := s.orch.Run(r.Context(), pipeline.Request{
		Email:    email,
		Audio:    payload,
		MimeType: header.Header.Get("Content-Type"),
	})
	writeOutcome(w, out)
}

func validationFailure(err error) pipeline.Outcome {
	return pipeline.Outcome{Kind: pipeline.KindFailed, Stage: pipeline.StageValidate, Err: err}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if s.ready() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
