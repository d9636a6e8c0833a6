package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/learnmate-backend/internal/data/repos"
	"github.com/yungbote/learnmate-backend/internal/data/repos/testutil"
	types "github.com/yungbote/learnmate-backend/internal/domain"
	"github.com/yungbote/learnmate-backend/internal/modules/assessment"
	"github.com/yungbote/learnmate-backend/internal/modules/curriculum/state"
	pkgerrors "github.com/yungbote/learnmate-backend/internal/pkg/errors"
	"github.com/yungbote/learnmate-backend/internal/platform/logger"
	"github.com/yungbote/learnmate-backend/internal/platform/vectorsearch"
)

type fakeGenerator struct {
	calls []state.Request
}

func (f *fakeGenerator) Run(_ context.Context, req state.Request) state.State {
	f.calls = append(f.calls, req)
	doc := state.Curriculum{
		Title:               req.Topic + " 6주 과정",
		Level:               state.LevelBeginner,
		DurationWeeks:       6,
		WeeklyHours:         10,
		SessionID:           req.SessionID,
		TotalEstimatedHours: 54,
	}
	return state.State{SessionID: req.SessionID, Topic: req.Topic, FinalCurriculum: &doc}
}

type fakeStarter struct {
	err   error
	input RunInput
}

func (f *fakeStarter) StartCurriculumRun(_ context.Context, in RunInput) (string, error) {
	f.input = in
	if f.err != nil {
		return "", f.err
	}
	return "curriculum_run:" + in.RunID.String(), nil
}

type fixedSearcher struct {
	lastTopK int
}

func (f *fixedSearcher) Search(_ context.Context, req vectorsearch.Request) (*vectorsearch.Response, error) {
	f.lastTopK = req.TopK
	return &vectorsearch.Response{Results: []vectorsearch.Hit{
		{ID: "k-1", Score: 0.9, Metadata: map[string]any{"title": "파이썬 기초", "url": "https://kmooc.kr/1"}},
	}}, nil
}

type fixture struct {
	svc        CurriculumService
	gen        *fakeGenerator
	assessment *assessment.Service
	runs       repos.GenerationRunRepo
}

func newFixture(t *testing.T, starter WorkflowStarter, vector vectorsearch.Searcher) fixture {
	t.Helper()
	db := testutil.DB(t)
	log := logger.Nop()
	gen := &fakeGenerator{}
	as := assessment.NewService(log, assessment.NewFileStore(t.TempDir()), assessment.NewClassifier(log, nil, nil), nil)
	runs := repos.NewGenerationRunRepo(db, log)
	deps := CurriculumServiceDeps{
		DB:             db,
		Log:            log,
		Generator:      gen,
		Curricula:      repos.NewCurriculumRepo(db, log),
		Runs:           runs,
		Assessment:     as,
		KMOOCNamespace: "kmooc",
		Starter:        starter,
	}
	if vector != nil {
		deps.Vector = vector
	}
	return fixture{svc: NewCurriculumService(deps), gen: gen, assessment: as, runs: runs}
}

func completeInterview(t *testing.T, as *assessment.Service, topic string) string {
	t.Helper()
	ctx := context.Background()
	res, err := as.Start(ctx, uuid.NewString(), "")
	require.NoError(t, err)
	id := res.Session.SessionID
	for _, msg := range []string{topic, "취업하고 싶어요", "주 12시간", "월 5만원", "처음 배워요"} {
		_, err := as.Answer(ctx, id, msg)
		require.NoError(t, err)
	}
	return id
}

func TestGeneratePersistsDocument(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()
	user := uuid.New()

	res, err := f.svc.Generate(ctx, user, GenerateRequest{Topic: "React", Constraints: "주 10시간"})
	require.NoError(t, err)
	require.NotNil(t, res.CurriculumID)
	require.Len(t, f.gen.calls, 1)
	assert.NotEmpty(t, f.gen.calls[0].SessionID)

	row, err := f.svc.Get(ctx, *res.CurriculumID)
	require.NoError(t, err)
	assert.Equal(t, "React 6주 과정", row.Title)
	assert.Equal(t, user, row.UserID)
	var doc state.Curriculum
	require.NoError(t, json.Unmarshal(row.Document, &doc))
	assert.Equal(t, 54, doc.TotalEstimatedHours)

	list, err := f.svc.ListByUser(ctx, user, 10)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = f.svc.Get(ctx, uuid.New())
	assert.True(t, errors.Is(err, pkgerrors.ErrNotFound))
}

func TestGenerateRejectsBlankTopic(t *testing.T) {
	f := newFixture(t, nil, nil)
	_, err := f.svc.Generate(context.Background(), uuid.New(), GenerateRequest{Topic: "   "})
	assert.True(t, errors.Is(err, pkgerrors.ErrInvalidInput))
	assert.Empty(t, f.gen.calls)
}

func TestGenerateFromSession(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	open, err := f.assessment.Start(ctx, "u", "")
	require.NoError(t, err)
	_, err = f.svc.GenerateFromSession(ctx, open.Session.SessionID)
	assert.True(t, errors.Is(err, pkgerrors.ErrInvalidInput))

	_, err = f.svc.GenerateFromSession(ctx, "missing")
	assert.True(t, errors.Is(err, pkgerrors.ErrNotFound))

	id := completeInterview(t, f.assessment, "파이썬")
	res, err := f.svc.GenerateFromSession(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, res.CurriculumID)
	last := f.gen.calls[len(f.gen.calls)-1]
	assert.Equal(t, "파이썬", last.Topic)
	assert.Equal(t, id, last.SessionID)
	assert.Contains(t, last.Constraints, "주 12시간")

	sess, err := f.assessment.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{res.CurriculumID.String()}, sess.CurriculumIDs)
}

func TestGenerateAllSkipsSessionsWithCurriculum(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	done := completeInterview(t, f.assessment, "파이썬")
	fresh := completeInterview(t, f.assessment, "React")
	_, err := f.assessment.Start(ctx, "u", "")
	require.NoError(t, err)
	_, err = f.svc.GenerateFromSession(ctx, done)
	require.NoError(t, err)
	f.gen.calls = nil

	out, err := f.svc.GenerateAll(ctx)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, fresh, out[0].SessionID)
	assert.NotNil(t, out[0].CurriculumID)
	assert.Empty(t, out[0].Error)
	assert.Len(t, f.gen.calls, 1)

	again, err := f.svc.GenerateAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, again)

	topics, err := f.svc.ListSessionTopics(ctx)
	require.NoError(t, err)
	assert.Len(t, topics, 3)
}

func TestGenerateAsyncWithStarter(t *testing.T) {
	starter := &fakeStarter{}
	f := newFixture(t, starter, nil)
	ctx := context.Background()
	user := uuid.New()

	run, err := f.svc.GenerateAsync(ctx, user, GenerateRequest{Topic: "Go"})
	require.NoError(t, err)
	assert.Equal(t, types.RunStatusQueued, run.Status)
	assert.Equal(t, run.ID, starter.input.RunID)
	assert.Equal(t, "curriculum_run:"+run.ID.String(), run.WorkflowID)

	res, err := f.svc.ExecuteRun(ctx, starter.input)
	require.NoError(t, err)
	require.NotNil(t, res)

	got, err := f.svc.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, types.RunStatusSucceeded, got.Status)
	require.NotNil(t, got.CurriculumID)
	assert.Equal(t, *res.CurriculumID, *got.CurriculumID)

	// a replayed activity does not regenerate a finished run
	again, err := f.svc.ExecuteRun(ctx, starter.input)
	require.NoError(t, err)
	assert.Nil(t, again)
	assert.Len(t, f.gen.calls, 1)
}

func TestGenerateAsyncDispatchFailureMarksRunFailed(t *testing.T) {
	starter := &fakeStarter{err: errors.New("temporal unreachable")}
	f := newFixture(t, starter, nil)
	ctx := context.Background()

	_, err := f.svc.GenerateAsync(ctx, uuid.New(), GenerateRequest{Topic: "Go"})
	require.Error(t, err)

	got, err := f.svc.GetRun(ctx, starter.input.RunID)
	require.NoError(t, err)
	assert.Equal(t, types.RunStatusFailed, got.Status)
	assert.Contains(t, got.Error, "temporal unreachable")
}

func TestGenerateAsyncInProcess(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	run, err := f.svc.GenerateAsync(ctx, uuid.New(), GenerateRequest{Topic: "SQL"})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		got, err := f.svc.GetRun(ctx, run.ID)
		return err == nil && got.Status == types.RunStatusSucceeded
	}, 5*time.Second, 20*time.Millisecond)
}

func TestSearchResources(t *testing.T) {
	f := newFixture(t, nil, nil)
	_, err := f.svc.SearchResources(context.Background(), "파이썬", 3)
	assert.True(t, errors.Is(err, pkgerrors.ErrUnavailable))

	vec := &fixedSearcher{}
	f = newFixture(t, nil, vec)
	_, err = f.svc.SearchResources(context.Background(), " ", 3)
	assert.True(t, errors.Is(err, pkgerrors.ErrInvalidInput))

	out, err := f.svc.SearchResources(context.Background(), "파이썬", 100)
	require.NoError(t, err)
	assert.Equal(t, 20, vec.lastTopK)
	require.Len(t, out, 1)
	assert.Equal(t, "파이썬 기초", out[0].Title)

	_, err = f.svc.SearchResources(context.Background(), "파이썬", 0)
	require.NoError(t, err)
	assert.Equal(t, 5, vec.lastTopK)
}

func TestProgressWithoutStore(t *testing.T) {
	f := newFixture(t, nil, nil)
	_, err := f.svc.Progress(context.Background(), "s")
	assert.True(t, errors.Is(err, pkgerrors.ErrUnavailable))
}
