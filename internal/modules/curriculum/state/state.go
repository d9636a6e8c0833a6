package state

import (
	"strconv"
	"strings"
	"time"
)

type Level string

const (
	LevelBeginner     Level = "beginner"
	LevelIntermediate Level = "intermediate"
	LevelAdvanced     Level = "advanced"
)

func ParseLevel(s string) (Level, bool) {
	switch Level(strings.ToLower(strings.TrimSpace(s))) {
	case LevelBeginner:
		return LevelBeginner, true
	case LevelIntermediate:
		return LevelIntermediate, true
	case LevelAdvanced:
		return LevelAdvanced, true
	}
	return "", false
}

// Request is the public input of one generation run.
type Request struct {
	SessionID   string `json:"session_id"`
	Topic       string `json:"topic"`
	Constraints string `json:"constraints"`
	Goal        string `json:"goal"`
	UserMessage string `json:"user_message,omitempty"`
}

type PhaseEntry struct {
	Phase     Phase     `json:"phase"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

type ErrorEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

type SkeletonModule struct {
	Week          int      `json:"week"`
	Title         string   `json:"title"`
	MainTopic     string   `json:"main_topic"`
	LearningGoals []string `json:"learning_goals"`
	Difficulty    int      `json:"difficulty"`
}

type DetailedModule struct {
	Week             int      `json:"week"`
	Title            string   `json:"title"`
	Description      string   `json:"description"`
	Objectives       []string `json:"objectives"`
	LearningOutcomes []string `json:"learning_outcomes"`
	KeyConcepts      []string `json:"key_concepts"`
	EstimatedHours   int      `json:"estimated_hours"`
	LectureNote      string   `json:"lecture_note,omitempty"`
	Fallback         bool     `json:"fallback"`
}

type Resource struct {
	Title       string  `json:"title"`
	URL         string  `json:"url,omitempty"`
	Description string  `json:"description,omitempty"`
	Source      string  `json:"source"`
	Type        string  `json:"type,omitempty"`
	Score       float64 `json:"score,omitempty"`
	Duration    string  `json:"duration,omitempty"`
	Difficulty  string  `json:"difficulty,omitempty"`
	ClassTime   string  `json:"class_time,omitempty"`
	Content     string  `json:"content,omitempty"`
}

type ModuleResources struct {
	Videos               []Resource `json:"videos"`
	Documents            []Resource `json:"documents"`
	WebLinks             []Resource `json:"web_links"`
	TotalResources       int        `json:"total_resources"`
	ResourcesWithContent int        `json:"resources_with_content"`
	ContentCoverage      float64    `json:"content_coverage"`
}

// WeekKey is the moduleResources key for a week.
func WeekKey(week int) string {
	return "week_" + strconv.Itoa(week)
}

type Document struct {
	Title   string   `json:"title"`
	URL     string   `json:"url,omitempty"`
	Authors []string `json:"authors,omitempty"`
	Content string   `json:"content,omitempty"`
}

type Procedure struct {
	Key       string                `json:"key"`
	Title     string                `json:"title"`
	Skills    []string              `json:"skills"`
	Documents map[string][]Document `json:"documents,omitempty"`
}

// Procedures is the graph enrichment of the learning path.
type Procedures struct {
	Items    []Procedure `json:"items"`
	Fallback bool        `json:"fallback"`
}

func (p *Procedures) Empty() bool { return p == nil || len(p.Items) == 0 }

// State is the record threaded through every stage. Stages receive a Clone and
// return their own value; the engine commits it only on success.
type State struct {
	SessionID   string `json:"session_id"`
	Topic       string `json:"topic"`
	Constraints string `json:"constraints"`
	Goal        string `json:"goal"`
	UserMessage string `json:"user_message,omitempty"`

	Level         Level    `json:"level"`
	DurationWeeks int      `json:"duration_weeks"`
	WeeklyHours   int      `json:"weekly_hours"`
	FocusAreas    []string `json:"focus_areas"`

	CurrentPhase Phase        `json:"current_phase"`
	PhaseHistory []PhaseEntry `json:"phase_history"`
	Errors       []ErrorEntry `json:"errors"`

	PathAnalysis         string                     `json:"path_analysis"`
	Procedures           *Procedures                `json:"procedures,omitempty"`
	OverallGoal          string                     `json:"overall_goal"`
	ModuleSkeleton       []SkeletonModule           `json:"module_skeleton"`
	DetailedModules      []DetailedModule           `json:"detailed_modules"`
	BasicResources       []Resource                 `json:"basic_resources"`
	ModuleResources      map[string]ModuleResources `json:"module_resources"`
	LectureNotesComplete bool                       `json:"lecture_notes_complete"`

	FinalCurriculum       *Curriculum `json:"final_curriculum,omitempty"`
	StartedAt             time.Time   `json:"started_at"`
	CompletedAt           time.Time   `json:"completed_at,omitempty"`
	ProcessingTimeSeconds float64     `json:"processing_time_seconds"`
}

// CurriculumModule is one week of the final document.
type CurriculumModule struct {
	DetailedModule
	Resources ModuleResources `json:"resources"`
}

// Curriculum is the document returned to callers.
type Curriculum struct {
	Title                 string             `json:"title"`
	Level                 Level              `json:"level"`
	DurationWeeks         int                `json:"duration_weeks"`
	WeeklyHours           int                `json:"weekly_hours"`
	FocusAreas            []string           `json:"focus_areas"`
	Modules               []CurriculumModule `json:"modules"`
	OverallGoal           string             `json:"overall_goal"`
	BasicResources        []Resource         `json:"basic_resources"`
	SessionID             string             `json:"session_id"`
	OriginalConstraints   string             `json:"original_constraints"`
	OriginalGoal          string             `json:"original_goal"`
	GeneratedAt           time.Time          `json:"generated_at"`
	ProcessingTimeSeconds float64            `json:"processing_time_seconds"`
	TotalEstimatedHours   int                `json:"total_estimated_hours"`
	LectureNotesComplete  bool               `json:"lecture_notes_complete"`
	Procedures            *Procedures        `json:"procedures,omitempty"`
	Fallback              bool               `json:"fallback"`
	Error                 string             `json:"error,omitempty"`
}

// New seeds a State from a request.
func New(req Request, now time.Time) State {
	return State{
		SessionID:       req.SessionID,
		Topic:           strings.TrimSpace(req.Topic),
		Constraints:     req.Constraints,
		Goal:            req.Goal,
		UserMessage:     req.UserMessage,
		ModuleResources: map[string]ModuleResources{},
		StartedAt:       now,
	}
}

// Enter sets the current phase, enforcing the forward-only order.
func (s *State) Enter(phase Phase) error {
	if s.CurrentPhase != phase && !CanTransition(s.CurrentPhase, phase) {
		return &TransitionError{From: s.CurrentPhase, To: phase}
	}
	s.CurrentPhase = phase
	return nil
}

// Record appends a history entry. Existing entries are never rewritten.
func (s *State) Record(phase Phase, message string, now time.Time) {
	s.PhaseHistory = append(s.PhaseHistory, PhaseEntry{Phase: phase, Timestamp: now, Message: message})
}

// Advance is Enter followed by Record.
func (s *State) Advance(phase Phase, message string, now time.Time) error {
	if err := s.Enter(phase); err != nil {
		return err
	}
	s.Record(phase, message, now)
	return nil
}

// Fail forces the ERROR phase and records message in Errors and the history.
func (s *State) Fail(message string, now time.Time) {
	s.Errors = append(s.Errors, ErrorEntry{Timestamp: now, Message: message})
	if s.CurrentPhase == PhaseCompleted {
		return
	}
	s.CurrentPhase = PhaseError
	s.PhaseHistory = append(s.PhaseHistory, PhaseEntry{Phase: PhaseError, Timestamp: now, Message: message})
}

// Clone returns a deep copy so a stage can work on its value without aliasing
// the committed state.
func (s State) Clone() State {
	out := s
	out.FocusAreas = cloneStrings(s.FocusAreas)
	out.PhaseHistory = append([]PhaseEntry(nil), s.PhaseHistory...)
	out.Errors = append([]ErrorEntry(nil), s.Errors...)
	out.Procedures = s.Procedures.Clone()
	if s.ModuleSkeleton != nil {
		out.ModuleSkeleton = make([]SkeletonModule, len(s.ModuleSkeleton))
		for i, m := range s.ModuleSkeleton {
			m.LearningGoals = cloneStrings(m.LearningGoals)
			out.ModuleSkeleton[i] = m
		}
	}
	if s.DetailedModules != nil {
		out.DetailedModules = make([]DetailedModule, len(s.DetailedModules))
		for i, m := range s.DetailedModules {
			out.DetailedModules[i] = m.Clone()
		}
	}
	out.BasicResources = append([]Resource(nil), s.BasicResources...)
	if s.ModuleResources != nil {
		out.ModuleResources = make(map[string]ModuleResources, len(s.ModuleResources))
		for k, v := range s.ModuleResources {
			out.ModuleResources[k] = v.Clone()
		}
	}
	if s.FinalCurriculum != nil {
		fc := *s.FinalCurriculum
		out.FinalCurriculum = &fc
	}
	return out
}

func (m DetailedModule) Clone() DetailedModule {
	m.Objectives = cloneStrings(m.Objectives)
	m.LearningOutcomes = cloneStrings(m.LearningOutcomes)
	m.KeyConcepts = cloneStrings(m.KeyConcepts)
	return m
}

func (r ModuleResources) Clone() ModuleResources {
	r.Videos = cloneResources(r.Videos)
	r.Documents = cloneResources(r.Documents)
	r.WebLinks = cloneResources(r.WebLinks)
	return r
}

func cloneResources(in []Resource) []Resource {
	if in == nil {
		return nil
	}
	return append(make([]Resource, 0, len(in)), in...)
}

func (p *Procedures) Clone() *Procedures {
	if p == nil {
		return nil
	}
	out := &Procedures{Fallback: p.Fallback, Items: make([]Procedure, len(p.Items))}
	for i, item := range p.Items {
		item.Skills = cloneStrings(item.Skills)
		if item.Documents != nil {
			docs := make(map[string][]Document, len(item.Documents))
			for k, v := range item.Documents {
				docs[k] = append([]Document(nil), v...)
			}
			item.Documents = docs
		}
		out.Items[i] = item
	}
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}
