package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"silexa/approvals/internal/apperr"
	"silexa/approvals/internal/approval"
	"silexa/approvals/internal/engine"
)

type submitRequest struct {
	UploadPath       string   `json:"upload_path"`
	OriginalFilename string   `json:"original_filename"`
	ContentType      string   `json:"content_type"`
	SizeBytes        int64    `json:"size_bytes"`
	Description      string   `json:"description"`
	Tags             []string `json:"tags"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.New(apperr.BadInput, "invalid request body: %v", err))
		return
	}
	sub, err := s.eng.Submit(actorOf(r), req.UploadPath, req.OriginalFilename, req.ContentType, req.SizeBytes, req.Description, req.Tags)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := engine.Filter{
		State:      approval.State(q.Get("state")),
		Team:       q.Get("team"),
		Submitter:  q.Get("submitter"),
		FreeText:   q.Get("q"),
		SortBy:     engine.SortKey(q.Get("sort")),
		Descending: q.Get("order") == "desc",
	}
	result, err := s.eng.List(actorOf(r), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	sub, err := s.eng.Withdraw(actorOf(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (s *Server) handleTLApprove(w http.ResponseWriter, r *http.Request) {
	sub, err := s.eng.TLApprove(actorOf(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleTLReject(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	sub, err := s.eng.TLReject(actorOf(r), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (s *Server) handleAdminApprove(w http.ResponseWriter, r *http.Request) {
	sub, err := s.eng.AdminApprove(actorOf(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (s *Server) handleAdminReject(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	sub, err := s.eng.AdminReject(actorOf(r), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

type commentRequest struct {
	Body string `json:"body"`
}

func (s *Server) handleAddComment(w http.ResponseWriter, r *http.Request) {
	var req commentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.New(apperr.BadInput, "invalid request body: %v", err))
		return
	}
	c, err := s.eng.AddComment(actorOf(r), chi.URLParam(r, "id"), req.Body)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleListComments(w http.ResponseWriter, r *http.Request) {
	cs, err := s.eng.ListComments(actorOf(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cs)
}

func (s *Server) handleInbox(w http.ResponseWriter, r *http.Request) {
	unreadOnly := r.URL.Query().Get("unread_only") == "true"
	notifications, err := s.eng.GetInbox(actorOf(r), unreadOnly)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, notifications)
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	if err := s.eng.MarkRead(actorOf(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"read": true})
}
