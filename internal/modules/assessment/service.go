package assessment

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/yungbote/learnmate-backend/internal/pkg/errors"
	"github.com/yungbote/learnmate-backend/internal/platform/logger"
)

type AnswerResult struct {
	Session           *Session     `json:"session"`
	Answered          Stage        `json:"answered_stage,omitempty"`
	Reply             string       `json:"reply"`
	NeedsConfirmation bool         `json:"needs_confirmation"`
	TopicChange       *TopicChange `json:"topic_change,omitempty"`
	Progress          Progress     `json:"progress"`
}

type Service struct {
	log        *logger.Logger
	store      Store
	classifier *Classifier
	now        func() time.Time

	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func NewService(log *logger.Logger, store Store, classifier *Classifier, now func() time.Time) *Service {
	if log == nil {
		log = logger.Nop()
	}
	if classifier == nil {
		classifier = NewClassifier(log, nil, nil)
	}
	if now == nil {
		now = time.Now
	}
	return &Service{
		log:        log.With("service", "AssessmentService"),
		store:      store,
		classifier: classifier,
		now:        now,
		locks:      map[string]*sessionLock{},
	}
}

// lock serializes read-modify-write cycles on one session. The entry is
// dropped once no caller holds or waits on it.
func (s *Service) lock(id string) func() {
	s.mu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &sessionLock{}
		s.locks[id] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, id)
		}
		s.mu.Unlock()
	}
}

func question(st Stage, topic string) string {
	switch st {
	case StageTopic:
		return "어떤 주제를 배우고 싶으신가요?"
	case StageGoal:
		return fmt.Sprintf("'%s'을(를) 배우려는 목표가 무엇인가요? (예: 취업, 업무 역량 향상, 취미)", topic)
	case StageTime:
		return "일주일에 학습에 쓸 수 있는 시간은 어느 정도인가요?"
	case StageBudget:
		return "한 달 학습 예산은 어느 정도로 생각하시나요? 무료 강의만 원하셔도 괜찮아요."
	case StageLevel:
		return fmt.Sprintf("'%s'에 대해 지금 어느 정도 알고 계신가요?", topic)
	default:
		return "평가가 완료되었습니다. 이제 맞춤 커리큘럼을 만들 수 있어요."
	}
}

// Start opens a session. A non-empty first message is answered right away.
func (s *Service) Start(ctx context.Context, userID, message string) (*AnswerResult, error) {
	now := s.now().UTC()
	sess := &Session{
		SessionID:    uuid.NewString(),
		UserID:       strings.TrimSpace(userID),
		CurrentStage: StageTopic,
		History:      []Turn{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	reply := question(StageTopic, "")
	sess.addTurn("assistant", reply, now)
	if err := s.store.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("assessment: save: %w", err)
	}
	s.log.Info("assessment session started", "session_id", sess.SessionID, "user_id", sess.UserID)
	if strings.TrimSpace(message) != "" {
		return s.Answer(ctx, sess.SessionID, message)
	}
	return &AnswerResult{Session: sess, Reply: reply, Progress: sess.Progress()}, nil
}

func (s *Service) Answer(ctx context.Context, id, message string) (*AnswerResult, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, fmt.Errorf("assessment: empty answer: %w", pkgerrors.ErrInvalidInput)
	}
	unlock := s.lock(id)
	defer unlock()

	sess, err := s.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	sess.addTurn("user", message, now)
	res := &AnswerResult{}

	switch {
	case sess.PendingTopic != nil:
		res.Reply = s.resolvePending(sess, message)
	default:
		if sess.CurrentStage != StageTopic && sess.Topic != "" {
			tc := s.classifier.TopicChange(ctx, sess.Topic, message, sess.RecentMessages(3))
			if changed(tc, sess.Topic) {
				if tc.Type.NeedsConfirmation() {
					sess.PendingTopic = &tc
					res.NeedsConfirmation = true
					res.TopicChange = &tc
					res.Reply = confirmChange(tc)
					break
				}
				s.log.Info("topic refined", "session_id", sess.SessionID, "type", string(tc.Type), "from", sess.Topic, "to", tc.NewTopic)
				sess.Topic = tc.NewTopic
				res.TopicChange = &tc
			}
		}
		if sess.Completed() {
			res.Reply = question(StageCompleted, sess.Topic)
			break
		}
		res.Answered = sess.CurrentStage
		res.Reply = s.answerStage(ctx, sess, message)
	}

	sess.addTurn("assistant", res.Reply, now)
	sess.UpdatedAt = now
	if err := s.store.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("assessment: save: %w", err)
	}
	res.Session = sess
	res.Progress = sess.Progress()
	return res, nil
}

func changed(tc TopicChange, current string) bool {
	return tc.NewTopic != "" && !strings.EqualFold(strings.TrimSpace(tc.NewTopic), strings.TrimSpace(current))
}

func confirmChange(tc TopicChange) string {
	if tc.Type == ChangeRadical {
		return fmt.Sprintf("잠깐, '%s'에서 '%s'(으)로 완전히 바꾸고 싶으신 건가요?", tc.OldTopic, tc.NewTopic)
	}
	return fmt.Sprintf("'%s' 대신 '%s'을(를) 배우고 싶으신 건가요?", tc.OldTopic, tc.NewTopic)
}

// resolvePending applies or discards a topic change. A confirmed change
// clears every later stage.
func (s *Service) resolvePending(sess *Session, reply string) string {
	tc := *sess.PendingTopic
	sess.PendingTopic = nil
	if Confirmed(reply) {
		s.log.Info("topic changed", "session_id", sess.SessionID, "type", string(tc.Type), "from", sess.Topic, "to", tc.NewTopic)
		sess.Topic = tc.NewTopic
		sess.TopicConfidence = tc.Confidence
		sess.resetAfterTopic()
		return fmt.Sprintf("주제를 '%s'(으)로 바꿨어요. %s", tc.NewTopic, question(sess.CurrentStage, sess.Topic))
	}
	return fmt.Sprintf("좋아요, '%s'(으)로 계속 진행할게요. %s", sess.Topic, question(sess.CurrentStage, sess.Topic))
}

// answerStage stores the classified answer and advances one stage. A topic
// answer that needs clarification does not advance.
func (s *Service) answerStage(ctx context.Context, sess *Session, message string) string {
	history := sess.RecentMessages(3)
	switch sess.CurrentStage {
	case StageTopic:
		r := s.classifier.Topic(ctx, message)
		// A second attempt is accepted as given.
		if r.Topic == "" || (r.NeedsClarification && topicAttempts(sess) < 2) {
			return "좀 더 구체적으로 어떤 분야를 배우고 싶으신가요? 예를 들어 프로그래밍이라면 파이썬, 자바, 웹 개발 등이 있어요."
		}
		sess.Topic, sess.TopicConfidence = r.Topic, r.Confidence
	case StageGoal:
		r := s.classifier.Goal(ctx, message, history)
		sess.Goal, sess.GoalCategory, sess.GoalConfidence = r.Goal, r.Category, r.Confidence
	case StageTime:
		r := s.classifier.Time(ctx, message, history)
		sess.TimeWeeklyHours, sess.TimeCategory, sess.TimeConfidence = r.WeeklyHours, r.Category, r.Confidence
	case StageBudget:
		r := s.classifier.Budget(ctx, message, history)
		sess.BudgetCategory, sess.BudgetMaxMonthly, sess.BudgetConfidence = r.Category, r.MaxMonthly, r.Confidence
	case StageLevel:
		r := s.classifier.Level(ctx, sess.Topic, message, history)
		sess.Level, sess.LevelConfidence = r.Level, r.Confidence
	}
	sess.CurrentStage = sess.CurrentStage.next()
	if sess.Completed() {
		s.log.Info("assessment completed", "session_id", sess.SessionID, "topic", sess.Topic)
	}
	return question(sess.CurrentStage, sess.Topic)
}

func topicAttempts(sess *Session) int {
	n := 0
	for _, t := range sess.History {
		if t.Role == "user" && t.Stage == StageTopic {
			n++
		}
	}
	return n
}

func (s *Service) Get(ctx context.Context, id string) (*Session, error) {
	return s.store.Load(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]*Session, error) {
	return s.store.List(ctx)
}

// AttachCurriculum records a generated curriculum id on the session. Ids are
// kept once, in attach order.
func (s *Service) AttachCurriculum(ctx context.Context, id, curriculumID string) (*Session, error) {
	if strings.TrimSpace(curriculumID) == "" {
		return nil, fmt.Errorf("assessment: empty curriculum id: %w", pkgerrors.ErrInvalidInput)
	}
	unlock := s.lock(id)
	defer unlock()
	sess, err := s.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, c := range sess.CurriculumIDs {
		if c == curriculumID {
			return sess, nil
		}
	}
	sess.CurriculumIDs = append(sess.CurriculumIDs, curriculumID)
	sess.UpdatedAt = s.now().UTC()
	if err := s.store.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("assessment: save: %w", err)
	}
	return sess, nil
}

// CleanupOlderThan deletes sessions created before now-age and returns how
// many were removed.
func (s *Service) CleanupOlderThan(ctx context.Context, age time.Duration) (int, error) {
	list, err := s.store.List(ctx)
	if err != nil {
		return 0, err
	}
	cutoff := s.now().Add(-age)
	removed := 0
	for _, sess := range list {
		if !sess.CreatedAt.Before(cutoff) {
			continue
		}
		if err := s.store.Delete(ctx, sess.SessionID); err != nil {
			return removed, err
		}
		removed++
	}
	if removed > 0 {
		s.log.Info("assessment sessions cleaned up", "removed", removed)
	}
	return removed, nil
}
