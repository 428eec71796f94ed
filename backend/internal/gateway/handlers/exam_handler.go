package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"lms_core/backend/internal/exam"
	"lms_core/backend/internal/gateway/util"
)

// ExamHandler exposes exam authoring and retrieval
type ExamHandler struct {
	Exams *exam.ExamService
}

// CreateExam handles POST /exams
func (h *ExamHandler) CreateExam(w http.ResponseWriter, r *http.Request) {
	var in exam.CreateExamInput
	if err := util.DecodeJSON(w, r, &in); err != nil {
		util.HandleGRPCError(w, err)
		return
	}
	if in.CreatedBy == "" {
		in.CreatedBy = principal(r).ID
	}

	e, err := h.Exams.CreateExam(r.Context(), principal(r), in)
	if err != nil {
		util.HandleGRPCError(w, err)
		return
	}
	util.WriteJSONMessage(w, http.StatusCreated, e, "Exam created")
}

// ListExams handles GET /exams?published=true and GET /exams?created_by=
func (h *ExamHandler) ListExams(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p := principal(r)

	var (
		exams interface{}
		err   error
	)
	if q.Get("published") == "true" || p.IsStudent() {
		exams, err = h.Exams.ListPublishedExams(r.Context(), p)
	} else {
		exams, err = h.Exams.ListExams(r.Context(), p, q.Get("created_by"))
	}
	if err != nil {
		util.HandleGRPCError(w, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, exams)
}

// GetExam handles GET /exams/{id}
func (h *ExamHandler) GetExam(w http.ResponseWriter, r *http.Request) {
	view, err := h.Exams.GetExamByID(r.Context(), principal(r), chi.URLParam(r, "id"))
	if err != nil {
		util.HandleGRPCError(w, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, view)
}

// UpdateExamStatus handles PUT /exams/{id}/status
func (h *ExamHandler) UpdateExamStatus(w http.ResponseWriter, r *http.Request) {
	var in exam.UpdateStatusInput
	if err := util.DecodeJSON(w, r, &in); err != nil {
		util.HandleGRPCError(w, err)
		return
	}

	e, err := h.Exams.UpdateExamStatus(r.Context(), principal(r), chi.URLParam(r, "id"), in)
	if err != nil {
		util.HandleGRPCError(w, err)
		return
	}
	util.WriteJSONMessage(w, http.StatusOK, e, "Exam status updated")
}

// CreateSection handles POST /exams/{id}/sections
func (h *ExamHandler) CreateSection(w http.ResponseWriter, r *http.Request) {
	var in exam.CreateSectionInput
	if err := util.DecodeJSON(w, r, &in); err != nil {
		util.HandleGRPCError(w, err)
		return
	}

	sec, err := h.Exams.CreateSection(r.Context(), principal(r), chi.URLParam(r, "id"), in)
	if err != nil {
		util.HandleGRPCError(w, err)
		return
	}
	util.WriteJSONMessage(w, http.StatusCreated, sec, "Section created")
}

// CreateQuestion handles POST /sections/{id}/questions
func (h *ExamHandler) CreateQuestion(w http.ResponseWriter, r *http.Request) {
	var in exam.CreateQuestionInput
	if err := util.DecodeJSON(w, r, &in); err != nil {
		util.HandleGRPCError(w, err)
		return
	}

	q, err := h.Exams.CreateQuestion(r.Context(), principal(r), chi.URLParam(r, "id"), in)
	if err != nil {
		util.HandleGRPCError(w, err)
		return
	}
	util.WriteJSONMessage(w, http.StatusCreated, q, "Question created")
}
