package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"lms_core/backend/internal/gateway/util"
	"lms_core/backend/internal/marks"
)

// MarksHandler exposes score records and ledgers
type MarksHandler struct {
	Marks *marks.MarksService
}

// CreateRecord handles POST /score-records/{kind}
func (h *MarksHandler) CreateRecord(w http.ResponseWriter, r *http.Request) {
	var in marks.CreateInput
	if err := util.DecodeJSON(w, r, &in); err != nil {
		util.HandleGRPCError(w, err)
		return
	}

	rec, err := h.Marks.Create(r.Context(), principal(r), chi.URLParam(r, "kind"), in)
	if err != nil {
		util.HandleGRPCError(w, err)
		return
	}
	util.WriteJSONMessage(w, http.StatusCreated, rec, "Score record created")
}

// ListRecords handles GET /score-records/{kind}?student=
func (h *MarksHandler) ListRecords(w http.ResponseWriter, r *http.Request) {
	records, err := h.Marks.List(r.Context(), principal(r), chi.URLParam(r, "kind"), r.URL.Query().Get("student"))
	if err != nil {
		util.HandleGRPCError(w, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, records)
}

// GetRecord handles GET /score-records/{kind}/{id}
func (h *MarksHandler) GetRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Marks.Get(r.Context(), principal(r), chi.URLParam(r, "kind"), chi.URLParam(r, "id"))
	if err != nil {
		util.HandleGRPCError(w, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, rec)
}

// UpdateRecord handles PUT /score-records/{kind}/{id}
func (h *MarksHandler) UpdateRecord(w http.ResponseWriter, r *http.Request) {
	var in marks.UpdateInput
	if err := util.DecodeJSON(w, r, &in); err != nil {
		util.HandleGRPCError(w, err)
		return
	}

	rec, err := h.Marks.Update(r.Context(), principal(r), chi.URLParam(r, "kind"), chi.URLParam(r, "id"), in)
	if err != nil {
		util.HandleGRPCError(w, err)
		return
	}
	util.WriteJSONMessage(w, http.StatusOK, rec, "Score record updated")
}

// DeleteRecord handles DELETE /score-records/{kind}/{id}
func (h *MarksHandler) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	if err := h.Marks.Delete(r.Context(), principal(r), chi.URLParam(r, "kind"), chi.URLParam(r, "id")); err != nil {
		util.HandleGRPCError(w, err)
		return
	}
	util.WriteJSONMessage(w, http.StatusOK, nil, "Score record deleted")
}

// GetLedger handles GET /ledger?student=
func (h *MarksHandler) GetLedger(w http.ResponseWriter, r *http.Request) {
	student := r.URL.Query().Get("student")
	if student == "" {
		student = principal(r).ID
	}

	l, err := h.Marks.GetLedger(r.Context(), principal(r), student)
	if err != nil {
		util.HandleGRPCError(w, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, l)
}

// RebuildLedger handles POST /ledger/{student}/rebuild
func (h *MarksHandler) RebuildLedger(w http.ResponseWriter, r *http.Request) {
	l, err := h.Marks.RebuildLedger(r.Context(), principal(r), chi.URLParam(r, "student"))
	if err != nil {
		util.HandleGRPCError(w, err)
		return
	}
	util.WriteJSONMessage(w, http.StatusOK, l, "Ledger rebuilt")
}
