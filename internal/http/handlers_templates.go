package http

import (
	"net/http"
	"sync/atomic"

	"github.com/google/uuid"

	"scadenze/internal/core"
)

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerIDParam(r)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}

	templates, err := s.templates.List(r.Context(), owner)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}

	out := templateListResponse{Templates: make([]templateResponse, 0, len(templates))}
	for _, at := range templates {
		out.Templates = append(out.Templates, toTemplateResponse(at))
	}
	out.Count = len(out.Templates)

	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	payload, err := decodeTemplatePayload(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "malformed json body")
		return
	}

	t, err := payload.toTemplate(uuid.Nil)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}

	created, err := s.templates.Create(r.Context(), t)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}

	today := core.Today()
	s.invalidateSummary(created.OwnerID, today.Year(), today.Month())

	writeJSON(w, http.StatusCreated, toTemplateResponse(created))
}

func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := templateIDVar(r)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}

	at, err := s.templates.Get(r.Context(), id)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}

	writeJSON(w, http.StatusOK, toTemplateResponse(at))
}

func (s *Server) handleUpdateTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := templateIDVar(r)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}

	payload, err := decodeTemplatePayload(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "malformed json body")
		return
	}

	t, err := payload.toTemplate(id)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}

	updated, err := s.templates.Update(r.Context(), t)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}

	today := core.Today()
	s.invalidateSummary(updated.OwnerID, today.Year(), today.Month())

	writeJSON(w, http.StatusOK, toTemplateResponse(updated))
}

func (s *Server) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := templateIDVar(r)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}

	// Fetch first so the owner's cached summaries can be dropped.
	at, err := s.templates.Get(r.Context(), id)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}

	if err := s.templates.Delete(r.Context(), id); err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}

	today := core.Today()
	s.invalidateSummary(at.OwnerID, today.Year(), today.Month())

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMaterialize(w http.ResponseWriter, r *http.Request) {
	id, err := templateIDVar(r)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}

	expense, err := s.materializer.MaterializeNext(r.Context(), id)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}

	atomic.AddInt64(&s.appMetrics.expensesMaterialized, 1)
	s.invalidateSummary(expense.OwnerID, expense.Date.Year(), expense.Date.Month())
	today := core.Today()
	s.invalidateSummary(expense.OwnerID, today.Year(), today.Month())

	writeJSON(w, http.StatusCreated, toExpenseResponse(expense))
}
