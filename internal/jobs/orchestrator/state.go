package orchestrator

import (
	"time"
)

type StageStatus string

const (
	StagePending   StageStatus = "pending"
	StageRunning   StageStatus = "running"
	StageSucceeded StageStatus = "succeeded"
	StageFailed    StageStatus = "failed"
	StageSkipped   StageStatus = "skipped"
)

type StageState struct {
	Name       string      `json:"name"`
	Status     StageStatus `json:"status"`
	Attempts   int         `json:"attempts"`
	StartedAt  *time.Time  `json:"started_at,omitempty"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
	LastError  string      `json:"last_error,omitempty"`
}

// RunState is the engine's own bookkeeping for one run, separate from the
// domain state it threads through the stages.
type RunState struct {
	Order        []string               `json:"order"`
	Stages       map[string]*StageState `json:"stages"`
	LastProgress int                    `json:"last_progress"`
	FailedStage  string                 `json:"failed_stage,omitempty"`
}

func (s *RunState) ensure() {
	if s.Stages == nil {
		s.Stages = map[string]*StageState{}
	}
}

func (s *RunState) EnsureStage(name string) *StageState {
	s.ensure()
	ss := s.Stages[name]
	if ss == nil {
		ss = &StageState{Name: name, Status: StagePending}
		s.Stages[name] = ss
		s.Order = append(s.Order, name)
	}
	return ss
}

// Status returns the recorded status of a stage, or pending if unseen.
func (s *RunState) Status(name string) StageStatus {
	if s == nil || s.Stages[name] == nil {
		return StagePending
	}
	return s.Stages[name].Status
}
