package curriculum_generate

import (
	"time"

	"github.com/yungbote/learnmate-backend/internal/jobs/progress"
	"github.com/yungbote/learnmate-backend/internal/modules/curriculum/extract"
	"github.com/yungbote/learnmate-backend/internal/modules/curriculum/policy"
	"github.com/yungbote/learnmate-backend/internal/modules/curriculum/steps"
	"github.com/yungbote/learnmate-backend/internal/platform/logger"
	"github.com/yungbote/learnmate-backend/internal/platform/vectorsearch"
	"github.com/yungbote/learnmate-backend/internal/platform/websearch"
)

type Config struct {
	StageTimeout   time.Duration // default 10m
	CallTimeout    time.Duration // default 10s
	Attempts       int           // default 3
	RetryDelay     time.Duration // default 1s, negative disables the pause
	KMOOCNamespace string
	DocsNamespace  string
}

// Deps leaves optional backends nil when they are not configured. Passing a
// typed nil pointer inside an interface defeats the nil checks downstream.
type Deps struct {
	Log      *logger.Logger
	LLM      *extract.Extractor
	Policy   *policy.Policy
	Graph    steps.SkillGraph
	Content  steps.ContentSource
	Vector   vectorsearch.Searcher
	Web      websearch.WebSearcher
	Progress progress.Store
	Config   Config
	Now      func() time.Time
}

type Pipeline struct {
	log      *logger.Logger
	llm      *extract.Extractor
	policy   *policy.Policy
	graph    steps.SkillGraph
	content  steps.ContentSource
	vector   vectorsearch.Searcher
	web      websearch.WebSearcher
	progress progress.Store
	cfg      Config
	now      func() time.Time
}

func New(deps Deps) *Pipeline {
	log := deps.Log
	if log == nil {
		log = logger.Nop()
	}
	pol := deps.Policy
	if pol == nil {
		pol = policy.Default()
	}
	cfg := deps.Config
	if cfg.StageTimeout <= 0 {
		cfg.StageTimeout = 10 * time.Minute
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 10 * time.Second
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Second
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Pipeline{
		log:      log.With("job", "curriculum_generate"),
		llm:      deps.LLM,
		policy:   pol,
		graph:    deps.Graph,
		content:  deps.Content,
		vector:   deps.Vector,
		web:      deps.Web,
		progress: deps.Progress,
		cfg:      cfg,
		now:      now,
	}
}

// retryBackoff is the pause between extraction attempts.
func (c Config) retryBackoff() time.Duration {
	if c.RetryDelay < 0 {
		return 0
	}
	return c.RetryDelay
}

func (p *Pipeline) Type() string { return "curriculum_generate" }
