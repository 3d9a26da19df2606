package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/divyansh2401/email-intel/internal/scan"
	"github.com/divyansh2401/email-intel/internal/scheduler"
	"github.com/divyansh2401/email-intel/internal/store"
)

// StatusHandler handles GET /api/status.
type StatusHandler struct {
	Jobs     *store.Jobs
	Registry *store.Registry
	Manager  *scan.Manager
	Sched    *scheduler.Scheduler
	Version  string
}

type statusResponse struct {
	Version        string       `json:"version"`
	ActiveJobs     int          `json:"active_jobs"`
	RunningJobs    int64        `json:"running_jobs"`
	DistinctEmails int64        `json:"distinct_emails"`
	Schedule       scheduleInfo `json:"schedule"`
}

type scheduleInfo struct {
	Cron      string     `json:"cron"`
	NextRunAt *time.Time `json:"next_run_at"`
}

// ServeHTTP returns the system status as JSON.
func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Version:    h.Version,
		ActiveJobs: h.Manager.ActiveCount(),
	}

	running, err := h.Jobs.CountByStatus(r.Context(), store.StatusRunning)
	if err != nil {
		slog.Error("status: count running jobs", "error", err)
	}
	resp.RunningJobs = running

	total, err := h.Registry.Count(r.Context())
	if err != nil {
		slog.Error("status: registry count", "error", err)
	}
	resp.DistinctEmails = total

	if h.Sched != nil {
		resp.Schedule = scheduleInfo{
			Cron:      h.Sched.CronExpr(),
			NextRunAt: h.Sched.NextRunAt(),
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
