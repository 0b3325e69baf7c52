package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/jupark12/portfolio-grader/docstore"
	"github.com/jupark12/portfolio-grader/models"
	"github.com/jupark12/portfolio-grader/queue"
	"github.com/jupark12/portfolio-grader/reports"
	"github.com/jupark12/portfolio-grader/storage"
	"github.com/jupark12/portfolio-grader/worker"
)

// maxUploadMemory bounds the multipart form held in memory.
const maxUploadMemory = 10 << 20

// Options configures a Server.
type Options struct {
	Addr  string
	Board *queue.Board
	Store storage.Client
	// Docs may be nil when no document store is configured.
	Docs        docstore.Store
	ParseResume worker.ResumeParser
	UploadDir   string
	// FilesDir, when set, is served under /files/ for the local storage
	// backend.
	FilesDir string
	// Metrics, when set, is served at /metrics.
	Metrics http.Handler
}

// Server handles HTTP requests for job submission, status polling and
// report retrieval, and pushes job updates over WebSocket.
type Server struct {
	opts      Options
	reports   *reports.Reader
	wsManager *models.WebSocketManager
	upgrader  websocket.Upgrader
	router    *mux.Router
}

// NewServer creates a new server instance
func NewServer(opts Options) (*Server, error) {
	if opts.Board == nil || opts.Store == nil {
		return nil, errors.New("server: board and storage client are required")
	}
	if opts.Docs == nil {
		opts.Docs = docstore.Noop{}
	}
	if opts.UploadDir == "" {
		opts.UploadDir = ".uploads"
	}
	if err := os.MkdirAll(opts.UploadDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}

	s := &Server{
		opts:      opts,
		reports:   reports.NewReader(opts.Store),
		wsManager: models.NewWebSocketManager(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
	s.router = s.routes()
	s.wsManager.Start()
	return s, nil
}

// Close disconnects every WebSocket client.
func (s *Server) Close() {
	s.wsManager.Stop()
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(corsMiddleware)

	r.HandleFunc("/analyze", s.handleAnalyze).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/api/status/{id}", s.handleStatus).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/api/extract-resume", s.handleExtractResume).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/api/user-profile", s.handleGetProfile).Methods(http.MethodGet)
	r.HandleFunc("/api/user-profile", s.handleSaveProfile).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/reports", s.handleReports).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/reports/{id}/screenshots/{file}", s.handleScreenshot).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/jobs", s.handleJobs).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/jobs/{id}", s.handleJobDetails).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/ws", s.handleWebSocket)
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "pending": s.opts.Board.PendingCount()})
	}).Methods(http.MethodGet)

	if s.opts.Metrics != nil {
		r.Handle("/metrics", s.opts.Metrics).Methods(http.MethodGet)
	}
	if s.opts.FilesDir != "" {
		r.PathPrefix("/files/").Handler(http.StripPrefix("/files/", http.FileServer(http.Dir(s.opts.FilesDir))))
	}
	return r
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Run serves HTTP and forwards job updates to WebSocket clients until ctx
// is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	go s.forwardUpdates(ctx)

	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", s.opts.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("HTTP server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server shutdown: %w", err)
	}
	return nil
}

// forwardUpdates broadcasts every record the board writes.
func (s *Server) forwardUpdates(ctx context.Context) {
	updates := s.opts.Board.Updates()
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-updates:
			s.wsManager.BroadcastJobUpdate(job)
		}
	}
}

// handleAnalyze stages the resume, queues a job and returns without waiting
// for the pipeline.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		http.Error(w, "Invalid multipart form", http.StatusBadRequest)
		return
	}
	portfolioURL := strings.TrimSpace(r.FormValue("portfolioUrl"))
	if portfolioURL == "" {
		http.Error(w, "Portfolio URL missing", http.StatusBadRequest)
		return
	}
	if !validURL(portfolioURL) {
		http.Error(w, "Portfolio URL must be an absolute http(s) URL", http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("resume")
	if err != nil {
		http.Error(w, "Resume file missing", http.StatusBadRequest)
		return
	}
	defer file.Close()

	jobID := uuid.New().String()
	resumeName := strings.ReplaceAll(filepath.Base(header.Filename), " ", "_")
	resumePath, err := s.stage(file, jobID+"_"+resumeName)
	if err != nil {
		slog.Error("failed to stage resume", "job_id", jobID, "err", err)
		http.Error(w, "Failed to save file", http.StatusInternalServerError)
		return
	}

	var resumeData models.ResumeData
	if s.opts.ParseResume != nil {
		resumeData, err = s.opts.ParseResume(r.Context(), resumePath)
		if err != nil {
			slog.Warn("failed to parse resume", "job_id", jobID, "err", err)
		}
	}

	job, err := s.opts.Board.Enqueue(r.Context(), &models.Job{
		ID:           jobID,
		PortfolioURL: portfolioURL,
		UserID:       strings.TrimSpace(r.FormValue("userId")),
		ResumeFile:   resumePath,
		ResumeName:   resumeName,
		Message:      "Analysis queued",
	})
	if err != nil {
		slog.Error("failed to enqueue job", "job_id", jobID, "err", err)
		os.Remove(resumePath)
		http.Error(w, "Failed to enqueue job", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"message":     "analysis_started",
		"report_id":   job.ID,
		"status":      job.Status,
		"resume_data": resumeData,
	})
}

// stage copies an upload into the upload directory.
func (s *Server) stage(src io.Reader, name string) (string, error) {
	path := filepath.Join(s.opts.UploadDir, name)
	dst, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(path)
		return "", err
	}
	return path, dst.Close()
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	job, err := s.opts.Board.GetStatus(r.Context(), id)
	if errors.Is(err, queue.ErrJobNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "Job not found"})
		return
	}
	if err != nil {
		slog.Error("failed to get status", "job_id", id, "err", err)
		http.Error(w, "Failed to get status", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"reportId":   id,
		"status":     job.Status,
		"progress":   job.Progress,
		"message":    job.Message,
		"resultData": job.Result,
		"updatedAt":  job.UpdatedAt,
	})
}

// handleExtractResume parses an uploaded resume without starting a job.
func (s *Server) handleExtractResume(w http.ResponseWriter, r *http.Request) {
	if s.opts.ParseResume == nil {
		http.Error(w, "Resume parsing is not configured", http.StatusNotImplemented)
		return
	}
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		http.Error(w, "Invalid multipart form", http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("resume")
	if err != nil {
		http.Error(w, "Resume file missing", http.StatusBadRequest)
		return
	}
	defer file.Close()

	name := "extract_" + uuid.New().String() + "_" + strings.ReplaceAll(filepath.Base(header.Filename), " ", "_")
	path, err := s.stage(file, name)
	if err != nil {
		http.Error(w, "Failed to save file", http.StatusInternalServerError)
		return
	}
	defer os.Remove(path)

	data, err := s.opts.ParseResume(r.Context(), path)
	if err != nil {
		slog.Warn("resume extraction failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": data})
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		http.Error(w, "userId parameter missing", http.StatusBadRequest)
		return
	}
	profile, err := docstore.GetUserProfile(r.Context(), s.opts.Docs, userID)
	switch {
	case errors.Is(err, docstore.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "message": "No profile found"})
	case errors.Is(err, docstore.ErrUnavailable):
		http.Error(w, "Profiles are not available", http.StatusServiceUnavailable)
	case err != nil:
		slog.Error("failed to get user profile", "user_id", userID, "err", err)
		http.Error(w, "Failed to get user profile", http.StatusInternalServerError)
	default:
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "profile": profile})
	}
}

// handleSaveProfile merges the submitted non-empty fields into the profile.
func (s *Server) handleSaveProfile(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}
	userID := strings.TrimSpace(r.FormValue("userId"))
	if userID == "" {
		http.Error(w, "userId missing", http.StatusBadRequest)
		return
	}
	profile := &models.UserProfile{
		UserID:       userID,
		PortfolioURL: strings.TrimSpace(r.FormValue("portfolioUrl")),
		Name:         strings.TrimSpace(r.FormValue("name")),
		Email:        strings.TrimSpace(r.FormValue("email")),
		Phone:        strings.TrimSpace(r.FormValue("phone")),
		LinkedInURL:  strings.TrimSpace(r.FormValue("linkedinUrl")),
	}
	err := docstore.SaveUserProfile(r.Context(), s.opts.Docs, profile)
	switch {
	case errors.Is(err, docstore.ErrUnavailable):
		http.Error(w, "Profiles are not available", http.StatusServiceUnavailable)
	case err != nil:
		slog.Error("failed to save user profile", "user_id", userID, "err", err)
		http.Error(w, "Failed to save user profile", http.StatusInternalServerError)
	default:
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Profile saved"})
	}
}

func (s *Server) handleReports(w http.ResponseWriter, r *http.Request) {
	var (
		list []reports.Report
		err  error
	)
	if id := r.URL.Query().Get("report_id"); id != "" {
		list, err = s.reports.Job(r.Context(), id)
	} else {
		list, err = s.reports.All(r.Context())
	}
	if err != nil {
		slog.Error("failed to list reports", "err", err)
		http.Error(w, "Failed to list reports", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []reports.Report{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleScreenshot(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	data, name, err := s.reports.Screenshot(r.Context(), vars["id"], vars["file"])
	switch {
	case errors.Is(err, reports.ErrInvalidName):
		http.Error(w, "Invalid file name", http.StatusBadRequest)
		return
	case errors.Is(err, storage.ErrNotExist):
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "Screenshot not found"})
		return
	case err != nil:
		slog.Error("failed to serve screenshot", "job_id", vars["id"], "file", vars["file"], "err", err)
		http.Error(w, "Failed to load screenshot", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", storage.ContentType(name))
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Write(data)
}

// handleJobs lists jobs, optionally filtered by ?status=.
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	status := models.JobStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		http.Error(w, "Invalid status parameter", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, s.opts.Board.ListJobs(status))
}

func (s *Server) handleJobDetails(w http.ResponseWriter, r *http.Request) {
	job, err := s.opts.Board.GetStatus(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// handleWebSocket handles WebSocket connections
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("failed to upgrade to WebSocket", "err", err)
		return
	}

	// The initial list goes out before registration so it never races a
	// broadcast on the same connection.
	initialData, err := json.Marshal(map[string]any{
		"type": "initial_jobs",
		"jobs": s.opts.Board.ListJobs(""),
	})
	if err == nil {
		conn.WriteMessage(websocket.TextMessage, initialData)
	}
	s.wsManager.RegisterClient(conn)

	go func() {
		for {
			// Client messages are ignored; a read error means it went away.
			if _, _, err := conn.ReadMessage(); err != nil {
				s.wsManager.UnregisterClient(conn)
				return
			}
		}
	}()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write response", "err", err)
	}
}

func validURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
