package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/bnema/orator/internal/adapter/export"
	"github.com/bnema/orator/internal/adapter/http/templates"
	"github.com/bnema/orator/internal/adapter/http/validation"
	"github.com/bnema/orator/internal/domain"
	"github.com/bnema/orator/internal/infrastructure/logger"
	"github.com/bnema/orator/internal/service"
)

type JobService interface {
	Upload(ctx context.Context, filename, tmpPath, model string) (*domain.Job, error)
	Get(ctx context.Context, id int64) (*domain.Job, error)
	List(ctx context.Context) ([]*domain.Job, error)
	Progress(ctx context.Context, id int64) (domain.Progress, error)
	Delete(ctx context.Context, id int64) error
	AudioPath(ctx context.Context, id int64) (*domain.Job, string, error)
	Ask(ctx context.Context, id int64, question string) (string, error)
	Status(ctx context.Context) service.StatusReport
	Models(ctx context.Context) service.ModelsReport
}

type Handlers struct {
	jobs      JobService
	tmpDir    string
	maxSizeMB int
	logger    *logger.Logger
}

func NewHandlers(jobs JobService, tmpDir string, maxSizeMB int, log *logger.Logger) *Handlers {
	return &Handlers{
		jobs:      jobs,
		tmpDir:    tmpDir,
		maxSizeMB: maxSizeMB,
		logger:    log.Component("http"),
	}
}

type errorBody struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorBody{Detail: detail})
}

// jobError maps service errors onto status codes; anything unexpected is a 500.
func (h *Handlers) jobError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "File not found")
	case errors.Is(err, service.ErrNoTranscript):
		writeError(w, http.StatusConflict, "No transcript available for this file")
	case errors.Is(err, service.ErrEmptyQuestion):
		writeError(w, http.StatusBadRequest, "Question is required")
	default:
		h.logger.WithRequest(r).WithError(err).Error("request failed")
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id < 1 {
		writeError(w, http.StatusBadRequest, "Invalid file id")
		return 0, false
	}
	return id, true
}

func (h *Handlers) Upload() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		maxBytes := int64(h.maxSizeMB) * 1024 * 1024
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

		if err := r.ParseMultipartForm(32 << 20); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
				writeError(w, http.StatusRequestEntityTooLarge, "File too large")
				return
			}
			writeError(w, http.StatusBadRequest, "Invalid multipart form")
			return
		}
		defer func() { _ = r.MultipartForm.RemoveAll() }()

		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "Missing file")
			return
		}
		defer file.Close() //nolint:errcheck

		tmpPath, err := h.spool(file)
		if err != nil {
			h.logger.WithRequest(r).WithError(err).Error("spooling upload")
			writeError(w, http.StatusInternalServerError, "Failed to save file")
			return
		}
		// a no-op once the service has moved the file
		defer os.Remove(tmpPath) //nolint:errcheck

		name := validation.SanitizeFilename(header.Filename)
		job, err := h.jobs.Upload(r.Context(), name, tmpPath, r.FormValue("selected_model"))
		if err != nil {
			h.logger.WithRequest(r).WithError(err).WithField("file", logger.SanitizeForLog(name)).Error("upload failed")
			msg := "Upload failed"
			if strings.Contains(err.Error(), "no space left") {
				msg = "Upload failed: disk full"
			}
			writeError(w, http.StatusInternalServerError, msg)
			return
		}

		writeJSON(w, http.StatusOK, job)
	}
}

func (h *Handlers) spool(src io.Reader) (string, error) {
	if err := os.MkdirAll(h.tmpDir, 0755); err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(h.tmpDir, "upload-*.tmp")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(tmp, src); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}

func (h *Handlers) ListFiles() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobs, err := h.jobs.List(r.Context())
		if err != nil {
			h.jobError(w, r, err)
			return
		}
		if jobs == nil {
			jobs = []*domain.Job{}
		}
		writeJSON(w, http.StatusOK, jobs)
	}
}

func (h *Handlers) GetFile() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		job, err := h.jobs.Get(r.Context(), id)
		if err != nil {
			h.jobError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, job)
	}
}

func (h *Handlers) Progress() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		p, err := h.jobs.Progress(r.Context(), id)
		if err != nil {
			h.jobError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func (h *Handlers) DeleteFile() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		if err := h.jobs.Delete(r.Context(), id); err != nil {
			h.jobError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "File deleted successfully"})
	}
}

func (h *Handlers) Audio() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		job, path, err := h.jobs.AudioPath(r.Context(), id)
		if err != nil {
			h.jobError(w, r, err)
			return
		}
		if _, err := os.Stat(path); err != nil {
			writeError(w, http.StatusNotFound, "Audio not available")
			return
		}

		w.Header().Set("Content-Type", validation.AudioContentType(job.Filename))
		w.Header().Set("Content-Disposition", validation.ContentDisposition(job.Filename, true))
		http.ServeFile(w, r, path)
	}
}

type askRequest struct {
	Question string `json:"question"`
}

type askResponse struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

func (h *Handlers) Ask() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}

		var req askRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid JSON body")
			return
		}

		answer, err := h.jobs.Ask(r.Context(), id, req.Question)
		if err != nil {
			h.jobError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, askResponse{Question: strings.TrimSpace(req.Question), Answer: answer})
	}
}

func (h *Handlers) Status() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, h.jobs.Status(r.Context()))
	}
}

func (h *Handlers) Models() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, h.jobs.Models(r.Context()))
	}
}

func (h *Handlers) Export() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobs, err := h.jobs.List(r.Context())
		if err != nil {
			h.jobError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", validation.ContentDisposition("files.xlsx", false))
		if err := export.WriteXLSX(w, jobs); err != nil {
			h.logger.WithRequest(r).WithError(err).Error("xlsx export failed")
		}
	}
}

func (h *Handlers) Dashboard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobs, err := h.jobs.List(r.Context())
		if err != nil {
			h.logger.WithRequest(r).WithError(err).Error("dashboard list failed")
			jobs = []*domain.Job{}
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_ = templates.Dashboard(jobs, h.jobs.Status(r.Context())).Render(r.Context(), w)
	}
}
