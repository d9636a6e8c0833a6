package curriculumrun

const (
	WorkflowName     = "curriculum_run"
	ActivityGenerate = "curriculum_generate"
)

type Result struct {
	RunID        string `json:"run_id"`
	CurriculumID string `json:"curriculum_id,omitempty"`
	Fallback     bool   `json:"fallback"`
	Skipped      bool   `json:"skipped,omitempty"`
}
