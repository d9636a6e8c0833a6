package domain

import (
	"github.com/yungbote/learnmate-backend/internal/domain/curriculum"
	"github.com/yungbote/learnmate-backend/internal/domain/jobs"
)

type (
	Curriculum    = curriculum.Curriculum
	GenerationRun = jobs.GenerationRun
)

const (
	RunStatusQueued    = jobs.RunStatusQueued
	RunStatusRunning   = jobs.RunStatusRunning
	RunStatusSucceeded = jobs.RunStatusSucceeded
	RunStatusFailed    = jobs.RunStatusFailed
)
