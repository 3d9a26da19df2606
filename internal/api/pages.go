package api

import (
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/dustin/go-humanize"

	"github.com/divyansh2401/email-intel/internal/scan"
	"github.com/divyansh2401/email-intel/internal/scheduler"
	"github.com/divyansh2401/email-intel/internal/store"
)

// ── Template helpers ──────────────────────────────────────────────────────────

var templateFuncs = template.FuncMap{
	"humanBytes": func(n int64) string { return humanize.Bytes(uint64(n)) },
	"comma":      humanize.Comma,
	"add":        func(a, b int) int { return a + b },
	"sub":        func(a, b int) int { return a - b },
}

// formatThroughput renders bytes/sec as a human rate.
func formatThroughput(bps float64) string {
	if bps <= 0 {
		return "—"
	}
	return humanize.Bytes(uint64(bps)) + "/s"
}

// formatETA renders a nullable ETA in seconds.
func formatETA(eta *int64) string {
	if eta == nil {
		return "—"
	}
	secs := *eta
	if secs < 60 {
		return fmt.Sprintf("%ds", secs)
	}
	if secs < 3600 {
		return fmt.Sprintf("%dm %ds", secs/60, secs%60)
	}
	return fmt.Sprintf("%dh %dm", secs/3600, (secs%3600)/60)
}

// progressPct renders processed/total as a percentage string.
func progressPct(processed, total int64) string {
	if total <= 0 {
		return "0.0%"
	}
	return fmt.Sprintf("%.1f%%", float64(processed)/float64(total)*100)
}

// ── Page data types ───────────────────────────────────────────────────────────

type baseData struct {
	FlashType    string
	FlashMessage string
}

type jobRow struct {
	ID          string
	Name        string
	Status      string
	Paused      bool
	Progress    string
	Processed   string
	Total       string
	Throughput  string
	ETA         string
	EmailsFound int64
	CreatedAt   string
}

type dashboardData struct {
	baseData
	Jobs           []jobRow
	RunningJobs    int64
	DistinctEmails int64
	CronExpr       string
	NextRunAt      string
}

type emailRow struct {
	Email     string
	FirstSeen string
	LastSeen  string
	SeenCount int64
}

type emailsPageData struct {
	baseData
	Query      string
	Emails     []emailRow
	Total      int
	Limit      int
	Offset     int
	NextOffset int
	PrevOffset int
	HasNext    bool
	HasPrev    bool
}

// pageServer renders the HTML pages and HTMX fragments.
type pageServer struct {
	jobs        *store.Jobs
	registry    *store.Registry
	mgr         *scan.Manager
	sched       *scheduler.Scheduler
	templatesFS fs.FS
}

func (ps *pageServer) renderTemplate(w http.ResponseWriter, pageName string, data any) {
	tmpl, err := template.New("").Funcs(templateFuncs).ParseFS(ps.templatesFS, "base.html", pageName)
	if err != nil {
		http.Error(w, "template error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, "base", data); err != nil {
		slog.Error("template execute", "name", pageName, "error", err)
	}
}

func (ps *pageServer) renderFragment(w http.ResponseWriter, fileName, tmplName string, data any) {
	tmpl, err := template.New("").Funcs(templateFuncs).ParseFS(ps.templatesFS, fileName)
	if err != nil {
		http.Error(w, "template error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, tmplName, data); err != nil {
		slog.Error("fragment execute", "name", tmplName, "error", err)
	}
}

// flashFromQuery picks the flash message out of redirect query params.
func flashFromQuery(r *http.Request) baseData {
	return baseData{
		FlashType:    r.URL.Query().Get("flash_type"),
		FlashMessage: r.URL.Query().Get("flash"),
	}
}

func (ps *pageServer) jobRows(r *http.Request) []jobRow {
	jobs, _, err := ps.jobs.List(r.Context(), 200, 0)
	if err != nil {
		slog.Error("pages: list jobs", "error", err)
		return nil
	}
	rows := make([]jobRow, 0, len(jobs))
	for _, j := range jobs {
		rows = append(rows, jobRow{
			ID:          j.ID,
			Name:        j.Name,
			Status:      string(j.Status),
			Paused:      j.Paused,
			Progress:    progressPct(j.ProcessedBytes, j.TotalBytes),
			Processed:   humanize.Bytes(uint64(j.ProcessedBytes)),
			Total:       humanize.Bytes(uint64(j.TotalBytes)),
			Throughput:  formatThroughput(j.ThroughputBps),
			ETA:         formatETA(j.ETASeconds),
			EmailsFound: j.EmailsFound,
			CreatedAt:   j.CreatedAt.Format("Jan 2, 2006 15:04"),
		})
	}
	return rows
}

// dashboardPage renders GET / — submission form plus the live jobs table.
func (ps *pageServer) dashboardPage(w http.ResponseWriter, r *http.Request) {
	data := dashboardData{
		baseData: flashFromQuery(r),
		Jobs:     ps.jobRows(r),
	}
	if n, err := ps.jobs.CountByStatus(r.Context(), store.StatusRunning); err == nil {
		data.RunningJobs = n
	}
	if n, err := ps.registry.Count(r.Context()); err == nil {
		data.DistinctEmails = n
	}
	if ps.sched != nil {
		data.CronExpr = ps.sched.CronExpr()
		if t := ps.sched.NextRunAt(); t != nil {
			data.NextRunAt = t.Format("Jan 2, 2006 15:04")
		}
	}
	ps.renderTemplate(w, "index.html", data)
}

// emailsPage renders GET /emails-ui — registry substring search.
func (ps *pageServer) emailsPage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	limit := 50
	offset := 0
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v >= 0 {
		offset = v
	}

	entries, total, err := ps.registry.Search(r.Context(), q, limit, offset)
	if err != nil {
		slog.Error("pages: search emails", "error", err)
	}

	data := emailsPageData{
		baseData:   flashFromQuery(r),
		Query:      q,
		Total:      total,
		Limit:      limit,
		Offset:     offset,
		NextOffset: offset + limit,
		PrevOffset: offset - limit,
		HasNext:    offset+limit < total,
		HasPrev:    offset > 0,
	}
	for _, e := range entries {
		data.Emails = append(data.Emails, emailRow{
			Email:     e.Email,
			FirstSeen: e.FirstSeenAt.Format("Jan 2, 2006 15:04"),
			LastSeen:  e.LastSeenAt.Format("Jan 2, 2006 15:04"),
			SeenCount: e.SeenCount,
		})
	}
	ps.renderTemplate(w, "emails.html", data)
}

// jobsTableFragment renders GET /ui/jobs-table — the HTMX-polled rows.
func (ps *pageServer) jobsTableFragment(w http.ResponseWriter, r *http.Request) {
	ps.renderFragment(w, "jobs_table.html", "jobs_table", struct{ Jobs []jobRow }{ps.jobRows(r)})
}

// uiJobSubmit handles the dashboard form POST and redirects with a flash.
func (ps *pageServer) uiJobSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		ps.redirectFlash(w, r, "error", "could not parse form")
		return
	}
	workers, _ := strconv.Atoi(r.FormValue("workers"))
	if workers == 0 {
		workers = 8
	}
	chunkMB, _ := strconv.Atoi(r.FormValue("chunk_mb"))

	job, err := ps.mgr.Submit(r.Context(), scan.Submission{
		Name:           r.FormValue("name"),
		Path:           r.FormValue("server_path"),
		IncludeDomains: r.FormValue("include_domains"),
		DenyDomains:    r.FormValue("deny_domains"),
		BusinessOnly:   r.FormValue("business_only") == "on",
		Workers:        workers,
		ChunkMB:        chunkMB,
	})
	if err != nil {
		ps.redirectFlash(w, r, "error", err.Error())
		return
	}
	ps.redirectFlash(w, r, "success", "scan started: "+job.Name)
}

func (ps *pageServer) redirectFlash(w http.ResponseWriter, r *http.Request, kind, msg string) {
	q := url.Values{"flash_type": {kind}, "flash": {msg}}
	http.Redirect(w, r, "/?"+q.Encode(), http.StatusSeeOther)
}
