package assessment

import (
	"math"
	"strconv"
	"strings"
	"time"
)

type Stage string

const (
	StageTopic     Stage = "topic"
	StageGoal      Stage = "goal"
	StageTime      Stage = "time"
	StageBudget    Stage = "budget"
	StageLevel     Stage = "level"
	StageCompleted Stage = "completed"
)

// Stages lists the interview order. Completed is terminal.
var Stages = []Stage{StageTopic, StageGoal, StageTime, StageBudget, StageLevel, StageCompleted}

// answerable is the number of stages that take an answer.
const answerable = 5

func (s Stage) index() int {
	for i, st := range Stages {
		if st == s {
			return i
		}
	}
	return -1
}

func (s Stage) Valid() bool { return s.index() >= 0 }

func (s Stage) next() Stage {
	i := s.index()
	if i < 0 || i >= len(Stages)-1 {
		return StageCompleted
	}
	return Stages[i+1]
}

type Turn struct {
	Role      string    `json:"role"`
	Message   string    `json:"message"`
	Stage     Stage     `json:"stage"`
	Timestamp time.Time `json:"timestamp"`
}

// TopicChange is a classified change of topic awaiting the user's confirmation.
type TopicChange struct {
	Type       ChangeType `json:"evolution_type"`
	OldTopic   string     `json:"old_topic"`
	NewTopic   string     `json:"new_topic"`
	Confidence float64    `json:"confidence"`
	Reasoning  string     `json:"reasoning,omitempty"`
}

type Session struct {
	SessionID    string `json:"session_id"`
	UserID       string `json:"user_id,omitempty"`
	CurrentStage Stage  `json:"current_stage"`

	Topic           string  `json:"topic,omitempty"`
	TopicConfidence float64 `json:"topic_confidence,omitempty"`

	Goal           string  `json:"goal,omitempty"`
	GoalCategory   string  `json:"goal_category,omitempty"`
	GoalConfidence float64 `json:"goal_confidence,omitempty"`

	TimeWeeklyHours int     `json:"time_weekly_hours,omitempty"`
	TimeCategory    string  `json:"time_category,omitempty"`
	TimeConfidence  float64 `json:"time_confidence,omitempty"`

	BudgetCategory   string  `json:"budget_category,omitempty"`
	BudgetMaxMonthly int     `json:"budget_max_monthly"`
	BudgetConfidence float64 `json:"budget_confidence,omitempty"`

	Level           string  `json:"level,omitempty"`
	LevelConfidence float64 `json:"level_confidence,omitempty"`

	PendingTopic  *TopicChange `json:"pending_topic,omitempty"`
	History       []Turn       `json:"conversation_history"`
	CurriculumIDs []string     `json:"curriculum_ids,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *Session) Completed() bool { return s.CurrentStage == StageCompleted }

// answered reports whether a stage already holds a result.
func (s *Session) answered(st Stage) bool {
	switch st {
	case StageTopic:
		return s.Topic != ""
	case StageGoal:
		return s.Goal != ""
	case StageTime:
		return s.TimeCategory != ""
	case StageBudget:
		return s.BudgetCategory != ""
	case StageLevel:
		return s.Level != ""
	}
	return false
}

// resetAfterTopic clears every stage after topic and moves back to goal.
func (s *Session) resetAfterTopic() {
	s.Goal, s.GoalCategory, s.GoalConfidence = "", "", 0
	s.TimeWeeklyHours, s.TimeCategory, s.TimeConfidence = 0, "", 0
	s.BudgetCategory, s.BudgetMaxMonthly, s.BudgetConfidence = "", 0, 0
	s.Level, s.LevelConfidence = "", 0
	s.CurrentStage = StageGoal
}

func (s *Session) addTurn(role, msg string, now time.Time) {
	s.History = append(s.History, Turn{Role: role, Message: msg, Stage: s.CurrentStage, Timestamp: now})
}

// RecentMessages returns the last n user messages, oldest first.
func (s *Session) RecentMessages(n int) []string {
	var out []string
	for i := len(s.History) - 1; i >= 0 && len(out) < n; i-- {
		if s.History[i].Role == "user" {
			out = append(out, s.History[i].Message)
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

type Progress struct {
	Progress        float64 `json:"progress"`
	CurrentStage    Stage   `json:"current_stage"`
	CompletedStages []Stage `json:"completed_stages"`
	TotalStages     int     `json:"total_stages"`
}

// Progress is completed stages over five, as a percentage rounded to 0.1.
func (s *Session) Progress() Progress {
	done := []Stage{}
	for _, st := range Stages[:answerable] {
		if s.answered(st) {
			done = append(done, st)
		}
	}
	pct := float64(len(done)) / answerable * 100
	return Progress{
		Progress:        math.Round(pct*10) / 10,
		CurrentStage:    s.CurrentStage,
		CompletedStages: done,
		TotalStages:     answerable,
	}
}

// Constraints renders the time, budget and level results as the free-text
// constraint line a curriculum request expects.
func (s *Session) Constraints() string {
	var parts []string
	if s.TimeWeeklyHours > 0 {
		parts = append(parts, "주 "+strconv.Itoa(s.TimeWeeklyHours)+"시간")
	}
	if s.BudgetCategory != "" {
		parts = append(parts, "예산 "+budgetLabel(s.BudgetCategory))
	}
	if s.Level != "" {
		parts = append(parts, levelLabel(s.Level))
	}
	return strings.Join(parts, ", ")
}
