package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/themastersacademy/tm-admin-sub000/internal/exam"
	"github.com/themastersacademy/tm-admin-sub000/internal/i18n"
	"github.com/themastersacademy/tm-admin-sub000/internal/model"
)

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	exams *exam.Service
}

// New creates a new Handler.
func New(svc *exam.Service) (*Handler, error) {
	return &Handler{exams: svc}, nil
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/exam-groups", h.handleCreateGroup)
	r.Post("/exams", h.handleCreateExam)
	r.Route("/exams/{examID}", func(r chi.Router) {
		r.Get("/", h.handleGetExam)
		r.Patch("/info", h.handleBasicInfo)
		r.Patch("/settings", h.handleSettings)
		r.Put("/batches", h.handleBatchList)
		r.Post("/sections", h.handleSection)
		r.Delete("/sections/{index}", h.handleDeleteSection)
		r.Post("/sections/{index}/questions", h.handleAddQuestions)
		r.Post("/sections/{index}/questions/remove", h.handleRemoveQuestions)
		r.Get("/live", h.handleLivePointer)
		r.Post("/live", h.handlePublish)
		r.Delete("/live", h.handleUnpublish)
	})
}

var kindStatus = map[string]int{
	"validation": http.StatusBadRequest,
	"not_found":  http.StatusNotFound,
	"conflict":   http.StatusConflict,
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("write response", "error", err)
	}
}

// respond writes a service envelope with the status its kind maps to.
func respond(w http.ResponseWriter, r *http.Request, res model.Result, err error) {
	if err != nil {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, model.Result{Message: i18n.T(r.Context(), "InternalError")})
		return
	}
	status := http.StatusOK
	if !res.Success {
		status = kindStatus[res.Kind]
		if status == 0 {
			status = http.StatusBadRequest
		}
	}
	writeJSON(w, status, res)
}

func badRequest(w http.ResponseWriter, r *http.Request, msgID string) {
	writeJSON(w, http.StatusBadRequest, model.Result{Message: i18n.T(r.Context(), msgID)})
}

// decode reads a JSON body into v, answering 400 itself on failure.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		slog.Debug("bad request body", "path", r.URL.Path, "error", err)
		badRequest(w, r, "BadRequestBody")
		return false
	}
	return true
}

func sectionIndex(w http.ResponseWriter, r *http.Request) (int, bool) {
	i, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		badRequest(w, r, "InvalidSectionIndex")
		return 0, false
	}
	return i, true
}

func (h *Handler) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var in exam.CreateExamGroupInput
	if !decode(w, r, &in) {
		return
	}
	res, err := h.exams.CreateExamGroup(r.Context(), in)
	respond(w, r, res, err)
}

func (h *Handler) handleCreateExam(w http.ResponseWriter, r *http.Request) {
	var in exam.CreateExamInput
	if !decode(w, r, &in) {
		return
	}
	res, err := h.exams.CreateExam(r.Context(), in)
	respond(w, r, res, err)
}

func (h *Handler) handleGetExam(w http.ResponseWriter, r *http.Request) {
	res, err := h.exams.GetExam(r.Context(), chi.URLParam(r, "examID"))
	respond(w, r, res, err)
}

func (h *Handler) handleBasicInfo(w http.ResponseWriter, r *http.Request) {
	var in exam.BasicInfoInput
	if !decode(w, r, &in) {
		return
	}
	in.ExamID = chi.URLParam(r, "examID")
	res, err := h.exams.UpdateExamBasicInfo(r.Context(), in)
	respond(w, r, res, err)
}

func (h *Handler) handleSettings(w http.ResponseWriter, r *http.Request) {
	var patch exam.SettingsPatch
	if !decode(w, r, &patch) {
		return
	}
	in := exam.SettingsInput{ExamID: chi.URLParam(r, "examID"), Settings: patch}
	res, err := h.exams.UpdateExamSettings(r.Context(), in)
	respond(w, r, res, err)
}

func (h *Handler) handleBatchList(w http.ResponseWriter, r *http.Request) {
	var in exam.BatchListInput
	if !decode(w, r, &in) {
		return
	}
	in.ExamID = chi.URLParam(r, "examID")
	res, err := h.exams.UpdateBatchListExamBasicInfo(r.Context(), in)
	respond(w, r, res, err)
}

// handleSection creates a section, or edits one when the body names sectionIndex.
func (h *Handler) handleSection(w http.ResponseWriter, r *http.Request) {
	var in exam.SectionInput
	if !decode(w, r, &in) {
		return
	}
	in.ExamID = chi.URLParam(r, "examID")
	res, err := h.exams.CreateAndUpdateExamSection(r.Context(), in)
	respond(w, r, res, err)
}

func (h *Handler) handleDeleteSection(w http.ResponseWriter, r *http.Request) {
	idx, ok := sectionIndex(w, r)
	if !ok {
		return
	}
	res, err := h.exams.DeleteSection(r.Context(), chi.URLParam(r, "examID"), idx)
	respond(w, r, res, err)
}

func (h *Handler) handleAddQuestions(w http.ResponseWriter, r *http.Request) {
	idx, ok := sectionIndex(w, r)
	if !ok {
		return
	}
	var in exam.QuestionsInput
	if !decode(w, r, &in) {
		return
	}
	in.ExamID = chi.URLParam(r, "examID")
	in.SectionIndex = idx
	res, err := h.exams.AddQuestionToExamSection(r.Context(), in)
	respond(w, r, res, err)
}

func (h *Handler) handleRemoveQuestions(w http.ResponseWriter, r *http.Request) {
	idx, ok := sectionIndex(w, r)
	if !ok {
		return
	}
	var in exam.RemoveQuestionsInput
	if !decode(w, r, &in) {
		return
	}
	in.ExamID = chi.URLParam(r, "examID")
	in.SectionIndex = idx
	res, err := h.exams.RemoveQuestionsFromSection(r.Context(), in)
	respond(w, r, res, err)
}

func (h *Handler) handlePublish(w http.ResponseWriter, r *http.Request) {
	res, err := h.exams.MarkExamAsLive(r.Context(), chi.URLParam(r, "examID"))
	respond(w, r, res, err)
}

func (h *Handler) handleUnpublish(w http.ResponseWriter, r *http.Request) {
	res, err := h.exams.MakeExamUnlive(r.Context(), chi.URLParam(r, "examID"))
	respond(w, r, res, err)
}

func (h *Handler) handleLivePointer(w http.ResponseWriter, r *http.Request) {
	res, err := h.exams.LivePointer(r.Context(), chi.URLParam(r, "examID"))
	respond(w, r, res, err)
}
