package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	types "github.com/yungbote/learnmate-backend/internal/domain"
	httpH "github.com/yungbote/learnmate-backend/internal/http/handlers"
	"github.com/yungbote/learnmate-backend/internal/jobs/progress"
	"github.com/yungbote/learnmate-backend/internal/modules/assessment"
	"github.com/yungbote/learnmate-backend/internal/modules/curriculum/state"
	"github.com/yungbote/learnmate-backend/internal/observability"
	pkgerrors "github.com/yungbote/learnmate-backend/internal/pkg/errors"
	"github.com/yungbote/learnmate-backend/internal/platform/logger"
	"github.com/yungbote/learnmate-backend/internal/services"
)

type fakeCurricula struct {
	services.CurriculumService
	lastUser uuid.UUID
	lastReq  services.GenerateRequest
	stored   map[uuid.UUID]*types.Curriculum
}

func (f *fakeCurricula) Generate(_ context.Context, userID uuid.UUID, req services.GenerateRequest) (*services.GenerateResult, error) {
	if strings.TrimSpace(req.Topic) == "" {
		return nil, fmt.Errorf("topic is required: %w", pkgerrors.ErrInvalidInput)
	}
	f.lastUser, f.lastReq = userID, req
	id := uuid.New()
	return &services.GenerateResult{CurriculumID: &id, Curriculum: state.Curriculum{Title: req.Topic + " 과정", DurationWeeks: 4}}, nil
}

func (f *fakeCurricula) GenerateAsync(_ context.Context, userID uuid.UUID, req services.GenerateRequest) (*types.GenerationRun, error) {
	return &types.GenerationRun{ID: uuid.New(), UserID: userID, SessionID: "async-1", Status: types.RunStatusQueued}, nil
}

func (f *fakeCurricula) Get(_ context.Context, id uuid.UUID) (*types.Curriculum, error) {
	if row, ok := f.stored[id]; ok {
		return row, nil
	}
	return nil, pkgerrors.ErrNotFound
}

func (f *fakeCurricula) Progress(_ context.Context, sessionID string) (*progress.Snapshot, error) {
	if sessionID != "known" {
		return nil, pkgerrors.ErrNotFound
	}
	snap := progress.ForPhase(sessionID, state.PhaseValidation, "검증", time.Now())
	return &snap, nil
}

func (f *fakeCurricula) SearchResources(_ context.Context, query string, topK int) ([]state.Resource, error) {
	return nil, fmt.Errorf("vector search %w", pkgerrors.ErrUnavailable)
}

func (f *fakeCurricula) ListSessionTopics(context.Context) ([]services.SessionTopic, error) {
	return []services.SessionTopic{{SessionID: "s-1", Topic: "React"}}, nil
}

func newTestRouter(t *testing.T) (*gin.Engine, *fakeCurricula) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	fake := &fakeCurricula{stored: map[uuid.UUID]*types.Curriculum{}}
	log := logger.Nop()
	sessions := assessment.NewService(log, assessment.NewFileStore(t.TempDir()), assessment.NewClassifier(log, nil, nil), nil)
	r := NewRouter(RouterConfig{
		Log:               log,
		Metrics:           observability.NewMetrics(),
		CurriculumHandler: httpH.NewCurriculumHandler(fake),
		AssessmentHandler: httpH.NewAssessmentHandler(sessions, fake),
		HealthHandler:     httpH.NewHealthHandler(nil),
	})
	return r, fake
}

func do(r *gin.Engine, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env.Error.Code
}

func TestHealthAndMetrics(t *testing.T) {
	r, _ := newTestRouter(t)
	assert.Equal(t, nethttp.StatusOK, do(r, nethttp.MethodGet, "/healthz", nil).Code)

	rec := do(r, nethttp.MethodGet, "/metrics", nil)
	assert.Equal(t, nethttp.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "learnmate_api_requests_total")
}

func TestGenerateCurriculum(t *testing.T) {
	r, fake := newTestRouter(t)
	user := uuid.New()

	rec := do(r, nethttp.MethodPost, "/api/curriculum", map[string]string{"topic": "React", "constraints": "주 10시간"}, "X-User-Id", user.String())
	require.Equal(t, nethttp.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, user, fake.lastUser)
	var out struct {
		CurriculumID string           `json:"curriculum_id"`
		Curriculum   state.Curriculum `json:"curriculum"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "React 과정", out.Curriculum.Title)
	assert.NotEmpty(t, out.CurriculumID)

	rec = do(r, nethttp.MethodPost, "/api/curriculum", map[string]string{"topic": ""})
	assert.Equal(t, nethttp.StatusBadRequest, rec.Code)

	rec = do(r, nethttp.MethodPost, "/api/curriculum", map[string]string{"topic": "Go", "user_id": "not-a-uuid"})
	assert.Equal(t, nethttp.StatusBadRequest, rec.Code)
}

func TestGenerateCurriculumAsync(t *testing.T) {
	r, _ := newTestRouter(t)
	rec := do(r, nethttp.MethodPost, "/api/curriculum?async=true", map[string]string{"topic": "Go"})
	require.Equal(t, nethttp.StatusAccepted, rec.Code)
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "async-1", out["session_id"])
	assert.Equal(t, types.RunStatusQueued, out["status"])
}

func TestGetCurriculum(t *testing.T) {
	r, fake := newTestRouter(t)
	id := uuid.New()
	fake.stored[id] = &types.Curriculum{ID: id, Document: datatypes.JSON(`{"title":"저장된 과정"}`)}

	rec := do(r, nethttp.MethodGet, "/api/curriculum/"+id.String(), nil)
	require.Equal(t, nethttp.StatusOK, rec.Code)
	assert.JSONEq(t, `{"title":"저장된 과정"}`, rec.Body.String())

	assert.Equal(t, nethttp.StatusNotFound, do(r, nethttp.MethodGet, "/api/curriculum/"+uuid.NewString(), nil).Code)
	assert.Equal(t, nethttp.StatusBadRequest, do(r, nethttp.MethodGet, "/api/curriculum/abc", nil).Code)
}

func TestProgressAndSearch(t *testing.T) {
	r, _ := newTestRouter(t)
	rec := do(r, nethttp.MethodGet, "/api/progress/known", nil)
	require.Equal(t, nethttp.StatusOK, rec.Code)
	var snap progress.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, 75, snap.ProgressPercent)

	assert.Equal(t, nethttp.StatusNotFound, do(r, nethttp.MethodGet, "/api/progress/other", nil).Code)

	rec = do(r, nethttp.MethodPost, "/api/resources/search", map[string]any{"query": "파이썬", "top_k": 3})
	assert.Equal(t, nethttp.StatusServiceUnavailable, rec.Code)
}

func TestAssessmentRoutes(t *testing.T) {
	r, _ := newTestRouter(t)

	rec := do(r, nethttp.MethodPost, "/api/assessment/sessions", nil)
	require.Equal(t, nethttp.StatusOK, rec.Code, rec.Body.String())
	var started assessment.AnswerResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))
	id := started.Session.SessionID
	require.NotEmpty(t, id)

	rec = do(r, nethttp.MethodPost, "/api/assessment/sessions/"+id+"/answers", map[string]string{"message": "React"})
	require.Equal(t, nethttp.StatusOK, rec.Code)
	var answered assessment.AnswerResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &answered))
	assert.Equal(t, assessment.StageGoal, answered.Session.CurrentStage)

	rec = do(r, nethttp.MethodGet, "/api/assessment/sessions/"+id, nil)
	assert.Equal(t, nethttp.StatusOK, rec.Code)

	rec = do(r, nethttp.MethodGet, "/api/assessment/sessions/missing", nil)
	assert.Equal(t, nethttp.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", errorCode(t, rec))

	rec = do(r, nethttp.MethodGet, "/api/assessment/sessions", nil)
	assert.Equal(t, nethttp.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "React")
}
