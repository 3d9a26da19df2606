package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/divyansh2401/email-intel/internal/scan"
	"github.com/divyansh2401/email-intel/internal/store"
)

// JobsHandler handles job submission, query and control endpoints.
type JobsHandler struct {
	Jobs    *store.Jobs
	Manager *scan.Manager
}

// jobItem is the JSON shape of a full job snapshot.
type jobItem struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Status         string  `json:"status"`
	Paused         bool    `json:"paused"`
	Cancelled      bool    `json:"cancelled"`
	RootPath       string  `json:"root_path"`
	ProcessedBytes int64   `json:"processed_bytes"`
	TotalBytes     int64   `json:"total_bytes"`
	ThroughputBps  float64 `json:"throughput_bps"`
	ETASeconds     *int64  `json:"eta_seconds"`
	EmailsFound    int64   `json:"emails_found"`
	IncludeDomains string  `json:"include_domains"`
	DenyDomains    string  `json:"deny_domains"`
	BusinessOnly   bool    `json:"business_only"`
	Workers        int     `json:"workers"`
	ChunkMB        int     `json:"chunk_mb"`
	CreatedAt      string  `json:"created_at"`
	StartedAt      *string `json:"started_at"`
	FinishedAt     *string `json:"finished_at"`
}

func toJobItem(j store.Job) jobItem {
	it := jobItem{
		ID:             j.ID,
		Name:           j.Name,
		Status:         string(j.Status),
		Paused:         j.Paused,
		Cancelled:      j.Cancelled,
		RootPath:       j.RootPath,
		ProcessedBytes: j.ProcessedBytes,
		TotalBytes:     j.TotalBytes,
		ThroughputBps:  j.ThroughputBps,
		ETASeconds:     j.ETASeconds,
		EmailsFound:    j.EmailsFound,
		IncludeDomains: j.IncludeDomains,
		DenyDomains:    j.DenyDomains,
		BusinessOnly:   j.BusinessOnly,
		Workers:        j.Workers,
		ChunkMB:        j.ChunkMB,
		CreatedAt:      j.CreatedAt.UTC().Format(time.RFC3339),
	}
	if j.StartedAt != nil {
		s := j.StartedAt.UTC().Format(time.RFC3339)
		it.StartedAt = &s
	}
	if j.FinishedAt != nil {
		s := j.FinishedAt.UTC().Format(time.RFC3339)
		it.FinishedAt = &s
	}
	return it
}

// Create handles POST /api/jobs — submits a new scan job from form fields.
func (h *JobsHandler) Create(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_FORM", "Could not parse form body")
		return
	}

	workers, _ := strconv.Atoi(r.FormValue("workers"))
	if workers == 0 {
		workers = 8
	}
	chunkMB, _ := strconv.Atoi(r.FormValue("chunk_mb"))

	job, err := h.Manager.Submit(r.Context(), scan.Submission{
		Name:           r.FormValue("name"),
		Path:           r.FormValue("server_path"),
		IncludeDomains: r.FormValue("include_domains"),
		DenyDomains:    r.FormValue("deny_domains"),
		BusinessOnly:   parseBool(r.FormValue("business_only")),
		Workers:        workers,
		ChunkMB:        chunkMB,
	})
	if err != nil {
		switch {
		case errors.Is(err, scan.ErrPathMissing):
			writeError(w, http.StatusBadRequest, "PATH_MISSING", err.Error())
		case errors.Is(err, scan.ErrPathNotAbsolute):
			writeError(w, http.StatusBadRequest, "PATH_NOT_ABSOLUTE", err.Error())
		case errors.Is(err, scan.ErrPathNotFound):
			writeError(w, http.StatusBadRequest, "PATH_NOT_FOUND", err.Error())
		case errors.Is(err, scan.ErrNoFiles):
			writeError(w, http.StatusBadRequest, "NO_FILES", err.Error())
		default:
			slog.Error("jobs: submit", "error", err)
			writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to submit job")
		}
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"id":          job.ID,
		"name":        job.Name,
		"status":      string(job.Status),
		"total_bytes": job.TotalBytes,
	})
}

// List handles GET /api/jobs — returns jobs newest first.
func (h *JobsHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)

	jobs, total, err := h.Jobs.List(r.Context(), limit, offset)
	if err != nil {
		slog.Error("jobs list", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}

	items := make([]jobItem, 0, len(jobs))
	for _, j := range jobs {
		items = append(items, toJobItem(j))
	}
	writeJSON(w, http.StatusOK, ListResponse[jobItem]{
		Items:  items,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

// Get handles GET /api/jobs/:id.
func (h *JobsHandler) Get(w http.ResponseWriter, r *http.Request) {
	job, err := h.Jobs.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrJobNotFound) {
		writeError(w, http.StatusNotFound, "JOB_NOT_FOUND", "Job not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toJobItem(job))
}

// Pause handles POST /api/jobs/:id/pause.
func (h *JobsHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, h.Jobs.Pause)
}

// Resume handles POST /api/jobs/:id/resume.
func (h *JobsHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, h.Jobs.Resume)
}

// Cancel handles POST /api/jobs/:id/cancel.
func (h *JobsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, h.Jobs.Cancel)
}

// Delete handles DELETE /api/jobs/:id. The running engine, if any, observes
// the missing record at its next safe point and stops.
func (h *JobsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, h.Jobs.Delete)
}

// control runs one fire-and-forget state transition against the job record.
func (h *JobsHandler) control(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id string) error) {
	id := chi.URLParam(r, "id")
	err := fn(r.Context(), id)
	if errors.Is(err, store.ErrJobNotFound) {
		writeError(w, http.StatusNotFound, "JOB_NOT_FOUND", "Job not found")
		return
	}
	if err != nil {
		slog.Error("jobs: control", "job", id, "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func parseBool(v string) bool {
	b, _ := strconv.ParseBool(v)
	return b || v == "on" // HTML checkboxes post "on"
}
