package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/learnmate-backend/internal/http/handlers"
	httpMW "github.com/yungbote/learnmate-backend/internal/http/middleware"
	"github.com/yungbote/learnmate-backend/internal/observability"
	"github.com/yungbote/learnmate-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log         *logger.Logger
	Metrics     *observability.Metrics
	ServiceName string
	CORSOrigins []string

	CurriculumHandler *httpH.CurriculumHandler
	AssessmentHandler *httpH.AssessmentHandler
	HealthHandler     *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachRequestMeta())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthz", cfg.HealthHandler.HealthCheck)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	api := r.Group("/api")
	{
		// Curriculum
		if cfg.CurriculumHandler != nil {
			api.POST("/curriculum", cfg.CurriculumHandler.Generate)
			api.GET("/curriculum/:id", cfg.CurriculumHandler.Get)
			api.GET("/users/:user_id/curricula", cfg.CurriculumHandler.ListByUser)
			api.GET("/runs/:id", cfg.CurriculumHandler.GetRun)
			api.GET("/progress/:session_id", cfg.CurriculumHandler.Progress)
			api.POST("/resources/search", cfg.CurriculumHandler.SearchResources)
		}

		// Assessment interview
		if cfg.AssessmentHandler != nil {
			api.GET("/assessment/sessions", cfg.AssessmentHandler.List)
			api.POST("/assessment/sessions", cfg.AssessmentHandler.Start)
			api.GET("/assessment/sessions/:id", cfg.AssessmentHandler.Get)
			api.POST("/assessment/sessions/:id/answers", cfg.AssessmentHandler.Answer)
			api.POST("/assessment/sessions/:id/curriculum", cfg.AssessmentHandler.GenerateCurriculum)
		}
	}

	return r
}
