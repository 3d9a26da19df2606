package api

import (
	"context"
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/divyansh2401/email-intel/internal/api/handlers"
	"github.com/divyansh2401/email-intel/internal/scan"
	"github.com/divyansh2401/email-intel/internal/scheduler"
	"github.com/divyansh2401/email-intel/internal/store"
)

// Server holds the HTTP server and all handler dependencies.
type Server struct {
	addr string
	srv  *http.Server
}

// New wires all routes and returns a Server ready to Run.
func New(
	addr string,
	jobs *store.Jobs,
	registry *store.Registry,
	mgr *scan.Manager,
	sched *scheduler.Scheduler,
	version string,
	templatesFS fs.FS,
	staticFS fs.FS,
) *Server {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	statusH := &handlers.StatusHandler{Jobs: jobs, Registry: registry, Manager: mgr, Sched: sched, Version: version}
	jobsH := &handlers.JobsHandler{Jobs: jobs, Manager: mgr}
	emailsH := &handlers.EmailsHandler{Registry: registry}

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", statusH.ServeHTTP)

		r.Post("/jobs", jobsH.Create)
		r.Get("/jobs", jobsH.List)
		r.Get("/jobs/{id}", jobsH.Get)
		r.Post("/jobs/{id}/pause", jobsH.Pause)
		r.Post("/jobs/{id}/resume", jobsH.Resume)
		r.Post("/jobs/{id}/cancel", jobsH.Cancel)
		r.Delete("/jobs/{id}", jobsH.Delete)

		r.Get("/emails", emailsH.List)
	})

	if staticFS != nil {
		r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(staticFS))))
	}
	if templatesFS != nil {
		ps := &pageServer{
			jobs:        jobs,
			registry:    registry,
			mgr:         mgr,
			sched:       sched,
			templatesFS: templatesFS,
		}
		r.Get("/", ps.dashboardPage)
		r.Get("/emails-ui", ps.emailsPage)

		// Fragment endpoints (HTMX polling)
		r.Get("/ui/jobs-table", ps.jobsTableFragment)

		// UI action endpoints (form POST → redirect)
		r.Post("/ui/jobs", ps.uiJobSubmit)
	}

	return &Server{
		addr: addr,
		srv:  &http.Server{Addr: addr, Handler: r},
	}
}

// Run starts the HTTP server and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", s.addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down HTTP server")
		return s.srv.Shutdown(context.Background())
	case err := <-errCh:
		return err
	}
}
