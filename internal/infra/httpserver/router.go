package httpserver

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	appanalysis "github.com/respiralab/breathe-easy/internal/application/analysis"
	domain "github.com/respiralab/breathe-easy/internal/domain/analysis"
	"github.com/respiralab/breathe-easy/internal/infra/stream"
	"github.com/respiralab/breathe-easy/internal/middleware"
)

// Options carries the static facts the router reports and enforces.
type Options struct {
	APIKeys      map[string]string
	ModelVersion string
	Labels       []string
	RateCapacity int // uploads per principal burst; <=0 disables limiting
	RateRefill   int // tokens per second

	// Checks feeds the deep health endpoint; nil keeps only the shallow one.
	Checks map[string]middleware.HealthChecker
}

type Router struct {
	svc     *appanalysis.Service
	streams *stream.Manager
	opts    Options
}

func NewRouter(svc *appanalysis.Service, streams *stream.Manager, opts Options) http.Handler {
	r := &Router{svc: svc, streams: streams, opts: opts}
	mux := chi.NewRouter()

	// mobile clients call from app origins; the original deployment is open
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))
	mux.Use(middleware.LoggingMiddleware)
	mux.Use(middleware.MetricsMiddleware)
	mux.Use(middleware.PrincipalAuth(opts.APIKeys))
	if opts.RateCapacity > 0 {
		mux.Use(middleware.RateLimitMiddleware(opts.RateCapacity, opts.RateRefill))
	}

	mux.Get("/", r.handleRoot)
	mux.Get("/health", r.handleHealth)
	mux.Get("/livez", middleware.LivenessHandler)
	if len(opts.Checks) > 0 {
		mux.Get("/health/deep", middleware.HealthHandler(opts.Checks))
	}
	mux.Get("/metrics", middleware.MetricsHandler)
	mux.Post("/predict", r.wrap(r.handlePredict))

	mux.Route("/api/v1", func(rt chi.Router) {
		rt.Get("/health", r.handleHealth)
		rt.Post("/unified", r.wrap(r.handleUnified))
		rt.Post("/stream/start", r.wrap(r.handleStreamStart))
		rt.Post("/stream/chunk", r.wrap(r.handleStreamChunk))
		rt.Post("/stream/finalize", r.wrap(r.handleStreamFinalize))
		rt.Get("/stream/live", r.handleLive)
		rt.Get("/history", r.wrap(r.handleHistory))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

// badRequestError marks caller mistakes so wrap can map them to 400.
type badRequestError struct{ msg string }

func (e *badRequestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &badRequestError{msg: fmt.Sprintf(format, args...)}
}

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := h(w, req); err != nil {
			var br *badRequestError
			switch {
			case errors.As(err, &br):
				http.Error(w, br.msg, http.StatusBadRequest)
			case errors.Is(err, domain.ErrAudioFileMissing):
				http.Error(w, err.Error(), http.StatusBadRequest)
			case errors.Is(err, stream.ErrSessionNotFound), errors.Is(err, sql.ErrNoRows):
				http.Error(w, err.Error(), http.StatusNotFound)
			case errors.Is(err, stream.ErrSessionClosed):
				http.Error(w, err.Error(), http.StatusConflict)
			default:
				http.Error(w, err.Error(), http.StatusInternalServerError)
			}
		}
	}
}

// GET /
func (r *Router) handleRoot(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, map[string]any{
		"status":  "ok",
		"message": "Breathe Easy analysis gateway. See /health for details.",
	})
}

// GET /health and GET /api/v1/health
func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), 5*time.Second)
	defer cancel()

	payload := map[string]any{
		"status":                "healthy",
		"model_version":         r.opts.ModelVersion,
		"labels":                r.opts.Labels,
		"local_model_available": r.svc.Healthy(ctx) == nil,
		"timestamp":             time.Now(),
	}
	writeJSON(w, payload)
}

// POST /predict — legacy path, returns the bare result object.
func (r *Router) handlePredict(w http.ResponseWriter, req *http.Request) error {
	res, err := r.analyzeUpload(req)
	if err != nil {
		return err
	}
	writeJSON(w, res)
	return nil
}

// POST /api/v1/unified — newer path, wraps the result in a {status, data}
// envelope.
func (r *Router) handleUnified(w http.ResponseWriter, req *http.Request) error {
	res, err := r.analyzeUpload(req)
	if err != nil {
		return err
	}
	writeJSON(w, envelope(res))
	return nil
}

// analyzeUpload receives the multipart upload, spills it to a temp file and
// runs it through the analysis service.
func (r *Router) analyzeUpload(req *http.Request) (domain.AnalysisResult, error) {
	if err := req.ParseMultipartForm(middleware.MaxUploadBytes); err != nil {
		return domain.AnalysisResult{}, badRequest("failed to parse multipart form: %v", err)
	}

	task := req.FormValue("task_type")
	if task == "" {
		task = string(domain.TaskBreath)
	}
	if err := middleware.ValidateTaskType(task); err != nil {
		return domain.AnalysisResult{}, badRequest("%v", err)
	}

	file, header, err := req.FormFile("file")
	if err != nil {
		return domain.AnalysisResult{}, badRequest("no audio provided in 'file' field")
	}
	defer file.Close()

	if err := middleware.ValidateAudioFilename(header.Filename); err != nil {
		return domain.AnalysisResult{}, badRequest("%v", err)
	}

	tmpPath, err := spillToTemp(file, filepath.Ext(header.Filename))
	if err != nil {
		return domain.AnalysisResult{}, err
	}
	defer os.Remove(tmpPath)

	res, err := r.svc.Analyze(req.Context(), appanalysis.AnalyzeCommand{
		Principal: middleware.GetPrincipalFromContext(req.Context()),
		AudioPath: tmpPath,
		Filename:  header.Filename,
		Task:      domain.TaskType(task),
	})
	if err != nil {
		middleware.IncrementAnalysesFailed()
		return domain.AnalysisResult{}, err
	}
	middleware.IncrementAnalyses()
	return res, nil
}

// POST /api/v1/stream/start
func (r *Router) handleStreamStart(w http.ResponseWriter, req *http.Request) error {
	s := r.streams.Start()
	middleware.IncrementSessions()
	writeJSON(w, envelope(map[string]any{"session_id": s.ID}))
	return nil
}

// POST /api/v1/stream/chunk — fields: session_id, chunk (binary)
func (r *Router) handleStreamChunk(w http.ResponseWriter, req *http.Request) error {
	if err := req.ParseMultipartForm(middleware.MaxUploadBytes); err != nil {
		return badRequest("failed to parse multipart form: %v", err)
	}

	sessionID := req.FormValue("session_id")
	if err := middleware.ValidateSessionID(sessionID); err != nil {
		return badRequest("%v", err)
	}

	file, _, err := req.FormFile("chunk")
	if err != nil {
		return badRequest("no chunk provided in 'chunk' field")
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return fmt.Errorf("read chunk: %w", err)
	}

	count, err := r.streams.AppendChunk(sessionID, data)
	if err != nil {
		return err
	}
	middleware.IncrementChunks()

	writeJSON(w, envelope(map[string]any{
		"session_id": sessionID,
		"chunks":     count,
	}))
	return nil
}

// POST /api/v1/stream/finalize — fields: session_id
func (r *Router) handleStreamFinalize(w http.ResponseWriter, req *http.Request) error {
	if err := req.ParseMultipartForm(middleware.MaxUploadBytes); err != nil {
		return badRequest("failed to parse multipart form: %v", err)
	}

	sessionID := req.FormValue("session_id")
	if err := middleware.ValidateSessionID(sessionID); err != nil {
		return badRequest("%v", err)
	}

	stitched, err := r.streams.Finalize(sessionID)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp("", "session-*.wav")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(stitched); err != nil {
		tmp.Close()
		return fmt.Errorf("write stitched audio: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close stitched audio: %w", err)
	}

	res, err := r.svc.Analyze(req.Context(), appanalysis.AnalyzeCommand{
		Principal: middleware.GetPrincipalFromContext(req.Context()),
		AudioPath: tmpPath,
		Filename:  sessionID + ".wav",
		Task:      domain.TaskMonitoring,
	})
	if err != nil {
		middleware.IncrementAnalysesFailed()
		return err
	}
	middleware.IncrementAnalyses()

	writeJSON(w, envelope(res))
	return nil
}

// GET /api/v1/history?limit=50
func (r *Router) handleHistory(w http.ResponseWriter, req *http.Request) error {
	limit := 50
	if v := req.URL.Query().Get("limit"); v != "" {
		fmt.Sscanf(v, "%d", &limit)
	}

	principal := middleware.GetPrincipalFromContext(req.Context())
	rows, err := r.svc.Latest(req.Context(), principal, limit)
	if err != nil {
		return err
	}
	if rows == nil {
		rows = []*domain.HistoryEntry{}
	}

	total, err := r.svc.Count(req.Context(), principal)
	if err != nil {
		return err
	}

	writeJSON(w, envelope(map[string]any{
		"entries": rows,
		"total":   total,
	}))
	return nil
}

func spillToTemp(src io.Reader, ext string) (string, error) {
	if ext == "" {
		ext = ".wav"
	}
	tmp, err := os.CreateTemp("", "upload-*"+ext)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("save upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close upload: %w", err)
	}
	return tmp.Name(), nil
}

func envelope(data any) map[string]any {
	return map[string]any{"status": "success", "data": data}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
