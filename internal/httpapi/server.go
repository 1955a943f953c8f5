// Package httpapi exposes the approval engine's public operations over
// a chi-routed REST surface for the submitter, team-leader, and admin
// panels. The actor is taken from the X-Approval-Actor header; the
// caller is trusted to have authenticated it upstream.
package httpapi

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"silexa/approvals/internal/apperr"
	"silexa/approvals/internal/engine"
)

// Server wires the chi router to an Engine.
type Server struct {
	eng *engine.Engine
	log *log.Logger
}

func New(eng *engine.Engine, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{eng: eng, log: logger}
}

// Router builds the full route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/healthz", s.handleHealthz)

	r.Route("/api", func(r chi.Router) {
		r.Route("/submissions", func(r chi.Router) {
			r.Post("/", s.handleSubmit)
			r.Get("/", s.handleList)
			r.Post("/{id}/withdraw", s.handleWithdraw)
			r.Post("/{id}/tl-approve", s.handleTLApprove)
			r.Post("/{id}/tl-reject", s.handleTLReject)
			r.Post("/{id}/admin-approve", s.handleAdminApprove)
			r.Post("/{id}/admin-reject", s.handleAdminReject)
			r.Post("/{id}/comments", s.handleAddComment)
			r.Get("/{id}/comments", s.handleListComments)
		})
		r.Route("/inbox", func(r chi.Router) {
			r.Get("/", s.handleInbox)
			r.Post("/{id}/read", s.handleMarkRead)
		})
	})

	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch apperr.CodeOf(err) {
	case apperr.UnknownUser, apperr.NotFound:
		status = http.StatusNotFound
	case apperr.Forbidden:
		status = http.StatusForbidden
	case apperr.IllegalTransition, apperr.BadInput:
		status = http.StatusBadRequest
	case apperr.StoreUnavailable:
		status = http.StatusServiceUnavailable
	case apperr.Deadline:
		status = http.StatusGatewayTimeout
	case apperr.Corrupt:
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func actorOf(r *http.Request) string {
	return r.Header.Get("X-Approval-Actor")
}
