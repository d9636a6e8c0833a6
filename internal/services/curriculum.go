package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/learnmate-backend/internal/data/repos"
	types "github.com/yungbote/learnmate-backend/internal/domain"
	"github.com/yungbote/learnmate-backend/internal/jobs/progress"
	"github.com/yungbote/learnmate-backend/internal/modules/assessment"
	"github.com/yungbote/learnmate-backend/internal/modules/curriculum/state"
	"github.com/yungbote/learnmate-backend/internal/modules/curriculum/steps"
	"github.com/yungbote/learnmate-backend/internal/pkg/dbctx"
	pkgerrors "github.com/yungbote/learnmate-backend/internal/pkg/errors"
	"github.com/yungbote/learnmate-backend/internal/platform/logger"
	"github.com/yungbote/learnmate-backend/internal/platform/vectorsearch"
)

const JobTypeCurriculumGenerate = "curriculum_generate"

// CurriculumGenerator runs the whole generation workflow for one request.
type CurriculumGenerator interface {
	Run(ctx context.Context, req state.Request) state.State
}

// WorkflowStarter hands an async run to a durable executor.
type WorkflowStarter interface {
	StartCurriculumRun(ctx context.Context, in RunInput) (workflowID string, err error)
}

type GenerateRequest struct {
	SessionID   string `json:"session_id,omitempty"`
	UserID      string `json:"user_id,omitempty"`
	Topic       string `json:"topic"`
	Constraints string `json:"constraints"`
	Goal        string `json:"goal"`
	UserMessage string `json:"user_message,omitempty"`
}

func (r GenerateRequest) toState() state.Request {
	return state.Request{
		SessionID:   strings.TrimSpace(r.SessionID),
		Topic:       strings.TrimSpace(r.Topic),
		Constraints: r.Constraints,
		Goal:        r.Goal,
		UserMessage: r.UserMessage,
	}
}

// RunInput is the payload of one async generation.
type RunInput struct {
	RunID   uuid.UUID       `json:"run_id"`
	UserID  uuid.UUID       `json:"user_id"`
	Request GenerateRequest `json:"request"`
}

type GenerateResult struct {
	CurriculumID *uuid.UUID       `json:"curriculum_id,omitempty"`
	Curriculum   state.Curriculum `json:"curriculum"`
}

type SessionOutcome struct {
	SessionID    string     `json:"session_id"`
	Topic        string     `json:"topic"`
	CurriculumID *uuid.UUID `json:"curriculum_id,omitempty"`
	Fallback     bool       `json:"fallback"`
	Error        string     `json:"error,omitempty"`
}

type SessionTopic struct {
	SessionID     string           `json:"session_id"`
	Topic         string           `json:"topic"`
	Goal          string           `json:"goal"`
	CurrentStage  assessment.Stage `json:"current_stage"`
	Completed     bool             `json:"completed"`
	CurriculumIDs []string         `json:"curriculum_ids"`
	CreatedAt     time.Time        `json:"created_at"`
}

type CurriculumService interface {
	Generate(ctx context.Context, userID uuid.UUID, req GenerateRequest) (*GenerateResult, error)
	GenerateAsync(ctx context.Context, userID uuid.UUID, req GenerateRequest) (*types.GenerationRun, error)
	ExecuteRun(ctx context.Context, in RunInput) (*GenerateResult, error)
	GenerateFromSession(ctx context.Context, sessionID string) (*GenerateResult, error)
	GenerateAll(ctx context.Context) ([]SessionOutcome, error)
	Get(ctx context.Context, id uuid.UUID) (*types.Curriculum, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*types.Curriculum, error)
	GetRun(ctx context.Context, runID uuid.UUID) (*types.GenerationRun, error)
	SearchResources(ctx context.Context, query string, topK int) ([]state.Resource, error)
	Progress(ctx context.Context, sessionID string) (*progress.Snapshot, error)
	ListSessionTopics(ctx context.Context) ([]SessionTopic, error)
}

type CurriculumServiceDeps struct {
	DB             *gorm.DB
	Log            *logger.Logger
	Generator      CurriculumGenerator
	Curricula      repos.CurriculumRepo
	Runs           repos.GenerationRunRepo
	Assessment     *assessment.Service
	Progress       progress.Store
	Vector         vectorsearch.Searcher
	Starter        WorkflowStarter
	KMOOCNamespace string
	CallTimeout    time.Duration
	RunTimeout     time.Duration
}

type curriculumService struct {
	db         *gorm.DB
	log        *logger.Logger
	gen        CurriculumGenerator
	curricula  repos.CurriculumRepo
	runs       repos.GenerationRunRepo
	assessment *assessment.Service
	progress   progress.Store
	vector     vectorsearch.Searcher
	starter    WorkflowStarter
	kmooc      string
	callTO     time.Duration
	runTO      time.Duration
}

func NewCurriculumService(deps CurriculumServiceDeps) CurriculumService {
	runTO := deps.RunTimeout
	if runTO <= 0 {
		runTO = 30 * time.Minute
	}
	callTO := deps.CallTimeout
	if callTO <= 0 {
		callTO = 10 * time.Second
	}
	return &curriculumService{
		db:         deps.DB,
		log:        deps.Log.With("service", "CurriculumService"),
		gen:        deps.Generator,
		curricula:  deps.Curricula,
		runs:       deps.Runs,
		assessment: deps.Assessment,
		progress:   deps.Progress,
		vector:     deps.Vector,
		starter:    deps.Starter,
		kmooc:      deps.KMOOCNamespace,
		callTO:     callTO,
		runTO:      runTO,
	}
}

func (s *curriculumService) dbc(ctx context.Context) dbctx.Context {
	return dbctx.Context{Ctx: ctx, Tx: s.db}
}

func validateRequest(req GenerateRequest) error {
	if strings.TrimSpace(req.Topic) == "" {
		return fmt.Errorf("topic is required: %w", pkgerrors.ErrInvalidInput)
	}
	return nil
}

// Generate runs the workflow, persists the document and links it to the
// interview session when one exists. A persistence failure is logged and the
// document is still returned, without an id.
func (s *curriculumService) Generate(ctx context.Context, userID uuid.UUID, req GenerateRequest) (*GenerateResult, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if s.gen == nil {
		return nil, fmt.Errorf("curriculum generator %w", pkgerrors.ErrUnavailable)
	}
	sreq := req.toState()
	if sreq.SessionID == "" {
		sreq.SessionID = uuid.NewString()
	}

	final := s.gen.Run(ctx, sreq)
	doc := final.FinalCurriculum
	if doc == nil {
		fb := steps.FallbackCurriculum(final, "no document produced", time.Now())
		doc = &fb
	}
	res := &GenerateResult{Curriculum: *doc}

	// The document outlives a cancelled request.
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	id, err := s.persist(pctx, userID, sreq, *doc)
	if err != nil {
		s.log.Error("curriculum persist failed", "session_id", sreq.SessionID, "error", err)
		return res, nil
	}
	res.CurriculumID = &id
	s.attach(pctx, sreq.SessionID, id)
	return res, nil
}

func (s *curriculumService) persist(ctx context.Context, userID uuid.UUID, req state.Request, doc state.Curriculum) (uuid.UUID, error) {
	if s.curricula == nil {
		return uuid.Nil, fmt.Errorf("curriculum repo %w", pkgerrors.ErrUnavailable)
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return uuid.Nil, fmt.Errorf("encode curriculum: %w", err)
	}
	now := time.Now().UTC()
	row := &types.Curriculum{
		ID:                  uuid.New(),
		UserID:              userID,
		SessionID:           req.SessionID,
		Topic:               req.Topic,
		Title:               doc.Title,
		Level:               string(doc.Level),
		DurationWeeks:       doc.DurationWeeks,
		TotalEstimatedHours: doc.TotalEstimatedHours,
		Fallback:            doc.Fallback,
		Document:            datatypes.JSON(raw),
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if _, err := s.curricula.Create(s.dbc(ctx), []*types.Curriculum{row}); err != nil {
		return uuid.Nil, err
	}
	return row.ID, nil
}

func (s *curriculumService) attach(ctx context.Context, sessionID string, id uuid.UUID) {
	if s.assessment == nil {
		return
	}
	if _, err := s.assessment.AttachCurriculum(ctx, sessionID, id.String()); err != nil && !errors.Is(err, pkgerrors.ErrNotFound) {
		s.log.Warn("attach curriculum to session failed", "session_id", sessionID, "error", err)
	}
}

// GenerateAsync records a queued run and hands it to the workflow starter, or
// to a background goroutine when no starter is configured.
func (s *curriculumService) GenerateAsync(ctx context.Context, userID uuid.UUID, req GenerateRequest) (*types.GenerationRun, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if s.runs == nil {
		return nil, fmt.Errorf("run repo %w", pkgerrors.ErrUnavailable)
	}
	if strings.TrimSpace(req.SessionID) == "" {
		req.SessionID = uuid.NewString()
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	now := time.Now().UTC()
	run := &types.GenerationRun{
		ID:        uuid.New(),
		UserID:    userID,
		SessionID: req.SessionID,
		JobType:   JobTypeCurriculumGenerate,
		Status:    types.RunStatusQueued,
		Stage:     "queued",
		Payload:   datatypes.JSON(payload),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := s.runs.Create(s.dbc(ctx), []*types.GenerationRun{run}); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	in := RunInput{RunID: run.ID, UserID: userID, Request: req}

	if s.starter != nil {
		wfID, err := s.starter.StartCurriculumRun(ctx, in)
		if err != nil {
			_ = s.runs.UpdateFields(s.dbc(context.WithoutCancel(ctx)), run.ID, map[string]interface{}{
				"status": types.RunStatusFailed,
				"stage":  "dispatch",
				"error":  err.Error(),
			})
			return nil, fmt.Errorf("start workflow: %w", err)
		}
		run.WorkflowID = wfID
		_ = s.runs.UpdateFields(s.dbc(ctx), run.ID, map[string]interface{}{"workflow_id": wfID})
		s.log.Info("curriculum run dispatched", "run_id", run.ID, "workflow_id", wfID, "session_id", run.SessionID)
		return run, nil
	}

	bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.runTO)
	go func() {
		defer cancel()
		if _, err := s.ExecuteRun(bg, in); err != nil {
			s.log.Warn("background curriculum run failed", "run_id", in.RunID, "error", err)
		}
	}()
	return run, nil
}

// ExecuteRun is the body of an async run. Terminal runs are not touched again.
func (s *curriculumService) ExecuteRun(ctx context.Context, in RunInput) (*GenerateResult, error) {
	terminal := []string{types.RunStatusSucceeded, types.RunStatusFailed}
	if s.runs != nil && in.RunID != uuid.Nil {
		ok, err := s.runs.UpdateFieldsUnlessStatus(s.dbc(ctx), in.RunID, terminal, map[string]interface{}{
			"status": types.RunStatusRunning,
			"stage":  "running",
		})
		if err != nil {
			return nil, fmt.Errorf("mark run running: %w", err)
		}
		if !ok {
			s.log.Info("run already finished", "run_id", in.RunID)
			return nil, nil
		}
	}

	res, err := s.Generate(ctx, in.UserID, in.Request)

	if s.runs != nil && in.RunID != uuid.Nil {
		updates := map[string]interface{}{"progress": 100}
		if err != nil {
			updates["status"] = types.RunStatusFailed
			updates["stage"] = "failed"
			updates["error"] = err.Error()
		} else {
			updates["status"] = types.RunStatusSucceeded
			updates["stage"] = string(state.PhaseCompleted)
			if res.CurriculumID != nil {
				updates["curriculum_id"] = *res.CurriculumID
			}
		}
		if uerr := s.runs.UpdateFields(s.dbc(context.WithoutCancel(ctx)), in.RunID, updates); uerr != nil {
			s.log.Warn("run status update failed", "run_id", in.RunID, "error", uerr)
		}
	}
	return res, err
}

func (s *curriculumService) GenerateFromSession(ctx context.Context, sessionID string) (*GenerateResult, error) {
	if s.assessment == nil {
		return nil, fmt.Errorf("assessment %w", pkgerrors.ErrUnavailable)
	}
	sess, err := s.assessment.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.Completed() {
		return nil, fmt.Errorf("session %s is at stage %s: %w", sessionID, sess.CurrentStage, pkgerrors.ErrInvalidInput)
	}
	userID, _ := uuid.Parse(sess.UserID)
	return s.Generate(ctx, userID, GenerateRequest{
		SessionID:   sess.SessionID,
		Topic:       sess.Topic,
		Constraints: sess.Constraints(),
		Goal:        sess.Goal,
	})
}

// GenerateAll runs GenerateFromSession for every completed session that has
// no stored curriculum yet, one at a time.
func (s *curriculumService) GenerateAll(ctx context.Context) ([]SessionOutcome, error) {
	if s.assessment == nil {
		return nil, fmt.Errorf("assessment %w", pkgerrors.ErrUnavailable)
	}
	list, err := s.assessment.List(ctx)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, sess := range list {
		if sess.Completed() && len(sess.CurriculumIDs) == 0 {
			ids = append(ids, sess.SessionID)
		}
	}
	have := map[string]bool{}
	if s.curricula != nil && len(ids) > 0 {
		if have, err = s.curricula.SessionsWithCurriculum(s.dbc(ctx), ids); err != nil {
			return nil, err
		}
	}

	out := []SessionOutcome{}
	for _, sess := range list {
		if !sess.Completed() || len(sess.CurriculumIDs) > 0 || have[sess.SessionID] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return out, err
		}
		oc := SessionOutcome{SessionID: sess.SessionID, Topic: sess.Topic}
		res, err := s.GenerateFromSession(ctx, sess.SessionID)
		if err != nil {
			oc.Error = err.Error()
		} else {
			oc.CurriculumID = res.CurriculumID
			oc.Fallback = res.Curriculum.Fallback
		}
		s.log.Info("bulk generation", "session_id", sess.SessionID, "ok", err == nil, "fallback", oc.Fallback)
		out = append(out, oc)
	}
	return out, nil
}

func (s *curriculumService) Get(ctx context.Context, id uuid.UUID) (*types.Curriculum, error) {
	if s.curricula == nil {
		return nil, fmt.Errorf("curriculum repo %w", pkgerrors.ErrUnavailable)
	}
	row, err := s.curricula.GetByID(s.dbc(ctx), id)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, fmt.Errorf("curriculum %s: %w", id, pkgerrors.ErrNotFound)
	}
	return row, nil
}

func (s *curriculumService) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*types.Curriculum, error) {
	if s.curricula == nil {
		return nil, fmt.Errorf("curriculum repo %w", pkgerrors.ErrUnavailable)
	}
	if userID == uuid.Nil {
		return nil, fmt.Errorf("user id: %w", pkgerrors.ErrInvalidInput)
	}
	return s.curricula.ListByUser(s.dbc(ctx), userID, limit)
}

func (s *curriculumService) GetRun(ctx context.Context, runID uuid.UUID) (*types.GenerationRun, error) {
	if s.runs == nil {
		return nil, fmt.Errorf("run repo %w", pkgerrors.ErrUnavailable)
	}
	run, err := s.runs.GetByID(s.dbc(ctx), runID)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, fmt.Errorf("run %s: %w", runID, pkgerrors.ErrNotFound)
	}
	return run, nil
}

// SearchResources queries the K-MOOC namespace directly. topK defaults to 5
// and is capped at 20.
func (s *curriculumService) SearchResources(ctx context.Context, query string, topK int) ([]state.Resource, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("query is required: %w", pkgerrors.ErrInvalidInput)
	}
	if s.vector == nil {
		return nil, fmt.Errorf("vector search %w", pkgerrors.ErrUnavailable)
	}
	switch {
	case topK <= 0:
		topK = 5
	case topK > 20:
		topK = 20
	}
	out, err := steps.SearchCourses(ctx, steps.ResourceCollectDeps{
		Log:            s.log,
		Vector:         s.vector,
		CallTimeout:    s.callTO,
		KMOOCNamespace: s.kmooc,
	}, query, topK)
	if err != nil {
		return nil, fmt.Errorf("kmooc search: %w", err)
	}
	if out == nil {
		out = []state.Resource{}
	}
	return out, nil
}

func (s *curriculumService) Progress(ctx context.Context, sessionID string) (*progress.Snapshot, error) {
	if s.progress == nil {
		return nil, fmt.Errorf("progress store %w", pkgerrors.ErrUnavailable)
	}
	return s.progress.Load(ctx, sessionID)
}

func (s *curriculumService) ListSessionTopics(ctx context.Context) ([]SessionTopic, error) {
	if s.assessment == nil {
		return nil, fmt.Errorf("assessment %w", pkgerrors.ErrUnavailable)
	}
	list, err := s.assessment.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]SessionTopic, 0, len(list))
	for _, sess := range list {
		ids := sess.CurriculumIDs
		if ids == nil {
			ids = []string{}
		}
		out = append(out, SessionTopic{
			SessionID:     sess.SessionID,
			Topic:         sess.Topic,
			Goal:          sess.Goal,
			CurrentStage:  sess.CurrentStage,
			Completed:     sess.Completed(),
			CurriculumIDs: ids,
			CreatedAt:     sess.CreatedAt,
		})
	}
	return out, nil
}
