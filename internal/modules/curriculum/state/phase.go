package state

import "fmt"

type Phase string

const (
	PhaseParameterAnalysis  Phase = "parameter_analysis"
	PhaseLearningPath       Phase = "learning_path_planning"
	PhaseModuleStructure    Phase = "module_structure_design"
	PhaseContentDetail      Phase = "content_detail_generation"
	PhaseResourceCollection Phase = "resource_collection"
	PhaseValidation         Phase = "validation"
	PhaseLectureContent     Phase = "lecture_content_generation"
	PhaseIntegration        Phase = "integration"
	PhaseCompleted          Phase = "completed"
	PhaseError              Phase = "error"
)

// PhaseOrder is the fixed forward order. ERROR is not part of it.
var PhaseOrder = []Phase{
	PhaseParameterAnalysis,
	PhaseLearningPath,
	PhaseModuleStructure,
	PhaseContentDetail,
	PhaseResourceCollection,
	PhaseValidation,
	PhaseLectureContent,
	PhaseIntegration,
	PhaseCompleted,
}

// PhaseInfo is the human-facing description used in progress snapshots.
type PhaseInfo struct {
	Step        int    `json:"step"`
	Total       int    `json:"total"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Percent     int    `json:"-"`
}

// StageCount is the number of working stages, excluding COMPLETED.
const StageCount = 8

var phaseInfo = map[Phase]PhaseInfo{
	PhaseParameterAnalysis:  {Step: 1, Total: StageCount, Name: "학습 파라미터 분석", Description: "학습 수준과 기간, 주당 학습 시간을 분석합니다", Percent: 10},
	PhaseLearningPath:       {Step: 2, Total: StageCount, Name: "학습 경로 설계", Description: "학습 경로와 절차를 설계합니다", Percent: 20},
	PhaseModuleStructure:    {Step: 3, Total: StageCount, Name: "모듈 구조 설계", Description: "주차별 모듈 구조를 설계합니다", Percent: 35},
	PhaseContentDetail:      {Step: 4, Total: StageCount, Name: "상세 콘텐츠 생성", Description: "모듈별 상세 학습 내용을 생성합니다", Percent: 50},
	PhaseResourceCollection: {Step: 5, Total: StageCount, Name: "학습 리소스 수집", Description: "강의와 문서, 웹 자료를 수집합니다", Percent: 65},
	PhaseValidation:         {Step: 6, Total: StageCount, Name: "학습 시간 검증", Description: "학습 시간 예산을 검증하고 조정합니다", Percent: 75},
	PhaseLectureContent:     {Step: 7, Total: StageCount, Name: "강의 자료 생성", Description: "모듈별 강의 자료를 생성합니다", Percent: 85},
	PhaseIntegration:        {Step: 8, Total: StageCount, Name: "커리큘럼 통합", Description: "결과를 하나의 커리큘럼으로 통합합니다", Percent: 95},
	PhaseCompleted:          {Step: StageCount, Total: StageCount, Name: "완료", Description: "커리큘럼 생성이 완료되었습니다", Percent: 100},
	PhaseError:              {Step: 0, Total: StageCount, Name: "오류", Description: "생성 중 오류가 발생했습니다", Percent: 0},
}

func (p Phase) Info() PhaseInfo {
	if info, ok := phaseInfo[p]; ok {
		return info
	}
	return PhaseInfo{Total: StageCount, Name: string(p)}
}

// Index is the position in PhaseOrder, or -1 for ERROR and unknown phases.
func (p Phase) Index() int {
	for i, q := range PhaseOrder {
		if q == p {
			return i
		}
	}
	return -1
}

func (p Phase) Valid() bool { return p == PhaseError || p.Index() >= 0 }

// CanTransition reports whether from -> to respects the phase order. ERROR is
// reachable from anywhere and may only be followed by COMPLETED.
func CanTransition(from, to Phase) bool {
	if !to.Valid() {
		return false
	}
	if from == "" {
		return to == PhaseError || to.Index() >= 0
	}
	if to == PhaseError {
		return from != PhaseCompleted
	}
	if from == PhaseError {
		return to == PhaseCompleted
	}
	return to.Index() > from.Index()
}

type TransitionError struct {
	From Phase
	To   Phase
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid phase transition %s -> %s", e.From, e.To)
}
