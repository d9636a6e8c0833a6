package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/learnmate-backend/internal/http/response"
	"github.com/yungbote/learnmate-backend/internal/modules/assessment"
	"github.com/yungbote/learnmate-backend/internal/services"
)

type AssessmentHandler struct {
	sessions  *assessment.Service
	curricula services.CurriculumService
}

func NewAssessmentHandler(sessions *assessment.Service, curricula services.CurriculumService) *AssessmentHandler {
	return &AssessmentHandler{sessions: sessions, curricula: curricula}
}

type startRequest struct {
	UserID  string `json:"user_id"`
	Message string `json:"message"`
}

type answerRequest struct {
	Message string `json:"message"`
}

// POST /api/assessment/sessions
func (h *AssessmentHandler) Start(c *gin.Context) {
	var req startRequest
	if c.Request.ContentLength != 0 {
		if err := bindJSON(c, &req); err != nil {
			response.RespondErr(c, err)
			return
		}
	}
	userID, err := callerID(c, req.UserID)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	uid := ""
	if userID != uuid.Nil {
		uid = userID.String()
	}
	res, err := h.sessions.Start(c.Request.Context(), uid, req.Message)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, res)
}

// POST /api/assessment/sessions/:id/answers
func (h *AssessmentHandler) Answer(c *gin.Context) {
	var req answerRequest
	if err := bindJSON(c, &req); err != nil {
		response.RespondErr(c, err)
		return
	}
	res, err := h.sessions.Answer(c.Request.Context(), c.Param("id"), req.Message)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, res)
}

// GET /api/assessment/sessions/:id
func (h *AssessmentHandler) Get(c *gin.Context) {
	sess, err := h.sessions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"session": sess, "progress": sess.Progress()})
}

// GET /api/assessment/sessions
func (h *AssessmentHandler) List(c *gin.Context) {
	topics, err := h.curricula.ListSessionTopics(c.Request.Context())
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"sessions": topics})
}

// POST /api/assessment/sessions/:id/curriculum
func (h *AssessmentHandler) GenerateCurriculum(c *gin.Context) {
	res, err := h.curricula.GenerateFromSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"curriculum_id": res.CurriculumID, "curriculum": res.Curriculum})
}
