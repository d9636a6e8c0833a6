package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/learnmate-backend/internal/http/response"
	"github.com/yungbote/learnmate-backend/internal/services"
)

type CurriculumHandler struct {
	curricula services.CurriculumService
}

func NewCurriculumHandler(curricula services.CurriculumService) *CurriculumHandler {
	return &CurriculumHandler{curricula: curricula}
}

// POST /api/curriculum[?async=true]
func (h *CurriculumHandler) Generate(c *gin.Context) {
	var req services.GenerateRequest
	if err := bindJSON(c, &req); err != nil {
		response.RespondErr(c, err)
		return
	}
	userID, err := callerID(c, req.UserID)
	if err != nil {
		response.RespondErr(c, err)
		return
	}

	if async, _ := strconv.ParseBool(c.Query("async")); async {
		run, err := h.curricula.GenerateAsync(c.Request.Context(), userID, req)
		if err != nil {
			response.RespondErr(c, err)
			return
		}
		response.RespondAccepted(c, gin.H{
			"run_id":     run.ID,
			"session_id": run.SessionID,
			"status":     run.Status,
		})
		return
	}

	res, err := h.curricula.Generate(c.Request.Context(), userID, req)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"curriculum_id": res.CurriculumID, "curriculum": res.Curriculum})
}

// GET /api/curriculum/:id
func (h *CurriculumHandler) Get(c *gin.Context) {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	row, err := h.curricula.Get(c.Request.Context(), id)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", row.Document)
}

// GET /api/users/:user_id/curricula
func (h *CurriculumHandler) ListByUser(c *gin.Context) {
	userID, err := parseUUIDParam(c, "user_id")
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	rows, err := h.curricula.ListByUser(c.Request.Context(), userID, limit)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	type summary struct {
		ID                  string `json:"id"`
		SessionID           string `json:"session_id"`
		Topic               string `json:"topic"`
		Title               string `json:"title"`
		Level               string `json:"level"`
		DurationWeeks       int    `json:"duration_weeks"`
		TotalEstimatedHours int    `json:"total_estimated_hours"`
		Fallback            bool   `json:"fallback"`
		CreatedAt           string `json:"created_at"`
	}
	out := make([]summary, 0, len(rows))
	for _, r := range rows {
		out = append(out, summary{
			ID:                  r.ID.String(),
			SessionID:           r.SessionID,
			Topic:               r.Topic,
			Title:               r.Title,
			Level:               r.Level,
			DurationWeeks:       r.DurationWeeks,
			TotalEstimatedHours: r.TotalEstimatedHours,
			Fallback:            r.Fallback,
			CreatedAt:           r.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		})
	}
	response.RespondOK(c, gin.H{"curricula": out})
}

// GET /api/runs/:id
func (h *CurriculumHandler) GetRun(c *gin.Context) {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	run, err := h.curricula.GetRun(c.Request.Context(), id)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"run": run})
}

// GET /api/progress/:session_id
func (h *CurriculumHandler) Progress(c *gin.Context) {
	snap, err := h.curricula.Progress(c.Request.Context(), c.Param("session_id"))
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, snap)
}

type searchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

// POST /api/resources/search
func (h *CurriculumHandler) SearchResources(c *gin.Context) {
	var req searchRequest
	if err := bindJSON(c, &req); err != nil {
		response.RespondErr(c, err)
		return
	}
	out, err := h.curricula.SearchResources(c.Request.Context(), req.Query, req.TopK)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"query": req.Query, "count": len(out), "results": out})
}
