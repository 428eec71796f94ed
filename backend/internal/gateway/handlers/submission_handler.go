package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"lms_core/backend/internal/gateway/util"
	"lms_core/backend/internal/submission"
)

// SubmissionHandler exposes the submission lifecycle
type SubmissionHandler struct {
	Submissions *submission.SubmissionService
}

// CreateSubmission handles POST /submissions
func (h *SubmissionHandler) CreateSubmission(w http.ResponseWriter, r *http.Request) {
	var in submission.CreateInput
	if err := util.DecodeJSON(w, r, &in); err != nil {
		util.HandleGRPCError(w, err)
		return
	}
	if in.Student == "" {
		in.Student = principal(r).ID
	}

	sub, err := h.Submissions.CreateSubmission(r.Context(), principal(r), in)
	if err != nil {
		util.HandleGRPCError(w, err)
		return
	}
	util.WriteJSONMessage(w, http.StatusCreated, sub, "Submission created")
}

// ListSubmissions handles GET /submissions?exam=&student=
func (h *SubmissionHandler) ListSubmissions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	subs, err := h.Submissions.ListSubmissions(r.Context(), principal(r), q.Get("exam"), q.Get("student"))
	if err != nil {
		util.HandleGRPCError(w, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, subs)
}

// GetSubmission handles GET /submissions/{id}
func (h *SubmissionHandler) GetSubmission(w http.ResponseWriter, r *http.Request) {
	sub, err := h.Submissions.GetSubmission(r.Context(), principal(r), chi.URLParam(r, "id"))
	if err != nil {
		util.HandleGRPCError(w, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, sub)
}

// UpdateSubmission handles PUT /submissions/{id}
func (h *SubmissionHandler) UpdateSubmission(w http.ResponseWriter, r *http.Request) {
	var in submission.UpdateInput
	if err := util.DecodeJSON(w, r, &in); err != nil {
		util.HandleGRPCError(w, err)
		return
	}

	sub, err := h.Submissions.UpdateSubmission(r.Context(), principal(r), chi.URLParam(r, "id"), in)
	if err != nil {
		util.HandleGRPCError(w, err)
		return
	}
	util.WriteJSONMessage(w, http.StatusOK, sub, "Submission updated")
}

// GradeSubmission handles POST /submissions/{id}/grade
func (h *SubmissionHandler) GradeSubmission(w http.ResponseWriter, r *http.Request) {
	var in submission.GradeInput
	if err := util.DecodeJSON(w, r, &in); err != nil {
		util.HandleGRPCError(w, err)
		return
	}

	sub, err := h.Submissions.GradeSubmission(r.Context(), principal(r), chi.URLParam(r, "id"), in)
	if err != nil {
		util.HandleGRPCError(w, err)
		return
	}
	util.WriteJSONMessage(w, http.StatusOK, sub, "Submission graded")
}

// AutoGrade handles POST /submissions/{id}/autograde?persist=
func (h *SubmissionHandler) AutoGrade(w http.ResponseWriter, r *http.Request) {
	persist := false
	if raw := r.URL.Query().Get("persist"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			util.WriteJSONError(w, http.StatusBadRequest, util.ErrValidation, "persist must be true or false")
			return
		}
		persist = v
	}

	res, err := h.Submissions.AutoGrade(r.Context(), principal(r), chi.URLParam(r, "id"), persist)
	if err != nil {
		util.HandleGRPCError(w, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, res)
}
