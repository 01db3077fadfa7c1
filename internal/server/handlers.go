package server

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime/multipart"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/raphaelgruber/homework-marker/internal/metrics"
	"github.com/raphaelgruber/homework-marker/internal/models"
	"github.com/raphaelgruber/homework-marker/internal/service"
)

// multipartMemory is how much of an upload is buffered in memory before spilling to disk.
const multipartMemory = 8 << 20

const (
	statusProcessing = "processing"
	statusFailed     = "failed"
	statusNotFound   = "not_found"

	msgUploaded   = "Files uploaded successfully. Processing started."
	msgProcessing = "Processing is still ongoing. Please check back later."
	msgFailed     = "Processing failed."
	msgNotFound   = "No job with this id."
)

type errorResponse struct {
	Detail string `json:"detail"`
}

type healthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

type uploadResponse struct {
	JobID          string `json:"job_id"`
	Status         string `json:"status"`
	Message        string `json:"message"`
	ResultEndpoint string `json:"result_endpoint"`
}

type resultResponse struct {
	JobID    string `json:"job_id"`
	Status   string `json:"status"`
	Message  string `json:"message,omitempty"`
	Error    string `json:"error,omitempty"`
	Stage    string `json:"stage,omitempty"`
	Progress int    `json:"progress,omitempty"`
	Total    int    `json:"total,omitempty"`
}

// jobView is the public shape of a job; server-side paths are not exposed.
type jobView struct {
	JobID           string     `json:"job_id"`
	Status          string     `json:"status"`
	Stage           string     `json:"stage"`
	Progress        int        `json:"progress"`
	Total           int        `json:"total"`
	StudentName     string     `json:"student_name,omitempty"`
	AssignmentTitle string     `json:"assignment_title,omitempty"`
	Mark            string     `json:"mark,omitempty"`
	Error           string     `json:"error,omitempty"`
	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	ResultEndpoint  string     `json:"result_endpoint"`
}

type statsResponse struct {
	Workers int               `json:"workers"`
	Queued  int               `json:"queued"`
	Metrics *metrics.Snapshot `json:"metrics,omitempty"`
}

func resultEndpoint(id string) string {
	return "/api/results/" + id
}

func toView(rec models.JobRecord) jobView {
	return jobView{
		JobID:           rec.ID,
		Status:          rec.Status,
		Stage:           rec.Stage,
		Progress:        rec.Progress,
		Total:           rec.Total,
		StudentName:     rec.StudentName,
		AssignmentTitle: rec.AssignmentTitle,
		Mark:            rec.Mark,
		Error:           rec.Error,
		StartedAt:       rec.StartedAt,
		CompletedAt:     rec.CompletedAt,
		ResultEndpoint:  resultEndpoint(rec.ID),
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, detail string) {
	render.Status(r, status)
	render.JSON(w, r, errorResponse{Detail: detail})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, healthResponse{Status: "healthy", Service: ServiceName})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, r, http.StatusRequestEntityTooLarge, fmt.Sprintf("Upload exceeds %d bytes", s.maxUpload))
			return
		}
		s.writeError(w, r, http.StatusBadRequest, "Expected a multipart form upload")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	criteria := formFile(r, "marking_criteria")
	homework := formFile(r, "homework")
	form := uploadForm{
		CriteriaFile:    fileName(criteria),
		HomeworkFile:    fileName(homework),
		StudentName:     strings.TrimSpace(r.FormValue("student_name")),
		AssignmentTitle: strings.TrimSpace(r.FormValue("assignment_title")),
	}
	if err := s.validate.Struct(form); err != nil {
		s.writeError(w, r, http.StatusBadRequest, validationDetail(err))
		return
	}

	id := uuid.NewString()
	criteriaPath := service.CriteriaPath(s.uploadDir, id)
	homeworkPath := service.HomeworkPath(s.uploadDir, id)
	cleanup := func() {
		_ = os.Remove(criteriaPath)
		_ = os.Remove(homeworkPath)
	}

	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		s.logger.Error("failed to create upload folder", "dir", s.uploadDir, "error", err)
		s.writeError(w, r, http.StatusInternalServerError, "Failed to store upload")
		return
	}
	if err := saveUpload(criteria, criteriaPath); err != nil {
		cleanup()
		s.logger.Error("failed to save upload", "job_id", id, "file", "marking_criteria", "error", err)
		s.writeError(w, r, http.StatusInternalServerError, "Failed to store upload")
		return
	}
	if err := saveUpload(homework, homeworkPath); err != nil {
		cleanup()
		s.logger.Error("failed to save upload", "job_id", id, "file", "homework", "error", err)
		s.writeError(w, r, http.StatusInternalServerError, "Failed to store upload")
		return
	}

	_, err := s.jobs.Submit(r.Context(), service.JobRequest{
		ID:              id,
		StudentName:     form.StudentName,
		AssignmentTitle: form.AssignmentTitle,
		CriteriaPath:    criteriaPath,
		HomeworkPath:    homeworkPath,
	})
	if err != nil {
		cleanup()
		if errors.Is(err, service.ErrQueueFull) || errors.Is(err, service.ErrShuttingDown) {
			w.Header().Set("Retry-After", "30")
			s.writeError(w, r, http.StatusServiceUnavailable, "Server is busy, please retry later.")
			return
		}
		s.logger.Error("failed to submit job", "job_id", id, "error", err)
		s.writeError(w, r, http.StatusInternalServerError, "Failed to start processing")
		return
	}

	render.JSON(w, r, uploadResponse{
		JobID:          id,
		Status:         statusProcessing,
		Message:        msgUploaded,
		ResultEndpoint: resultEndpoint(id),
	})
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")
	if err := s.validate.Var(id, "required,uuid"); err != nil {
		s.writeError(w, r, http.StatusBadRequest, "Invalid job id")
		return
	}

	rec, err := s.jobs.Get(r.Context(), id)
	switch {
	case errors.Is(err, service.ErrJobNotFound):
		// Reports can outlive the in-memory job table across restarts.
		path := service.ResultPath(s.uploadDir, id)
		if _, statErr := os.Stat(path); statErr == nil {
			s.serveReport(w, r, id, path)
			return
		}
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, resultResponse{JobID: id, Status: statusNotFound, Message: msgNotFound})
		return
	case err != nil:
		s.logger.Error("failed to load job", "job_id", id, "error", err)
		s.writeError(w, r, http.StatusInternalServerError, "Failed to load job")
		return
	}

	switch service.JobStatus(rec.Status) {
	case service.JobStatusCompleted:
		s.serveReport(w, r, id, rec.ResultPath)
	case service.JobStatusFailed:
		render.JSON(w, r, resultResponse{JobID: id, Status: statusFailed, Message: msgFailed, Error: rec.Error})
	default:
		render.JSON(w, r, resultResponse{
			JobID:    id,
			Status:   statusProcessing,
			Message:  msgProcessing,
			Stage:    rec.Stage,
			Progress: rec.Progress,
			Total:    rec.Total,
		})
	}
}

func (s *Server) serveReport(w http.ResponseWriter, r *http.Request, id, path string) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("report file missing", "job_id", id, "path", path)
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, resultResponse{JobID: id, Status: statusNotFound, Message: "Report file is missing."})
			return
		}
		s.logger.Error("failed to open report", "job_id", id, "error", err)
		s.writeError(w, r, http.StatusInternalServerError, "Failed to read report")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, "Failed to read report")
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="feedback.pdf"`)
	http.ServeContent(w, r, "feedback.pdf", info.ModTime(), f)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	records, err := s.jobs.List(r.Context())
	if err != nil {
		s.logger.Error("failed to list jobs", "error", err)
		s.writeError(w, r, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	views := make([]jobView, len(records))
	for i, rec := range records {
		views[i] = toView(rec)
	}
	render.JSON(w, r, views)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")

	rec, err := s.jobs.Get(r.Context(), id)
	switch {
	case errors.Is(err, service.ErrJobNotFound):
		s.writeError(w, r, http.StatusNotFound, msgNotFound)
		return
	case err != nil:
		s.logger.Error("failed to load job", "job_id", id, "error", err)
		s.writeError(w, r, http.StatusInternalServerError, "Failed to load job")
		return
	}
	render.JSON(w, r, toView(rec))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	resp := statsResponse{Workers: s.jobs.Workers(), Queued: s.jobs.Queued()}
	if s.metrics != nil {
		snap := s.metrics.Snapshot()
		resp.Metrics = &snap
	}
	render.JSON(w, r, resp)
}

func formFile(r *http.Request, field string) *multipart.FileHeader {
	if r.MultipartForm == nil {
		return nil
	}
	if files := r.MultipartForm.File[field]; len(files) > 0 {
		return files[0]
	}
	return nil
}

func fileName(fh *multipart.FileHeader) string {
	if fh == nil {
		return ""
	}
	return fh.Filename
}

func saveUpload(fh *multipart.FileHeader, path string) error {
	src, err := fh.Open()
	if err != nil {
		return fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	dst, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return dst.Close()
}
