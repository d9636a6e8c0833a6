package app

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/learnmate-backend/internal/config"
	"github.com/yungbote/learnmate-backend/internal/data/db"
	"github.com/yungbote/learnmate-backend/internal/data/repos"
	httpapi "github.com/yungbote/learnmate-backend/internal/http"
	httpH "github.com/yungbote/learnmate-backend/internal/http/handlers"
	"github.com/yungbote/learnmate-backend/internal/jobs/pipeline/curriculum_generate"
	"github.com/yungbote/learnmate-backend/internal/jobs/progress"
	"github.com/yungbote/learnmate-backend/internal/modules/assessment"
	"github.com/yungbote/learnmate-backend/internal/modules/curriculum/extract"
	"github.com/yungbote/learnmate-backend/internal/modules/curriculum/policy"
	"github.com/yungbote/learnmate-backend/internal/observability"
	"github.com/yungbote/learnmate-backend/internal/platform/logger"
	"github.com/yungbote/learnmate-backend/internal/services"
	"github.com/yungbote/learnmate-backend/internal/temporalx/curriculumrun"
	"github.com/yungbote/learnmate-backend/internal/temporalx/temporalworker"
)

type App struct {
	Log        *logger.Logger
	Cfg        *config.Config
	DB         *db.Service
	Clients    Clients
	Metrics    *observability.Metrics
	Pipeline   *curriculum_generate.Pipeline
	Assessment *assessment.Service
	Curricula  services.CurriculumService

	shutdownOtel func(context.Context) error
}

type Options struct {
	// WithTemporal dials Temporal when it is configured. The one-shot CLI
	// commands run in-process and skip it.
	WithTemporal bool
}

func New(ctx context.Context, log *logger.Logger, cfg *config.Config, opts Options) (*App, error) {
	a := &App{Log: log, Cfg: cfg}

	if cfg.Telemetry.MetricsEnabled {
		a.Metrics = observability.Init(log)
	}
	a.shutdownOtel = observability.InitOTel(ctx, log, observability.OtelConfig{
		Enabled:     cfg.Telemetry.TracingEnabled,
		ServiceName: cfg.App.Name,
		Environment: cfg.App.Env,
		Version:     cfg.App.Version,
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		Insecure:    cfg.Telemetry.OTLPInsecure,
		Headers:     observability.ParseHeaders(cfg.Telemetry.OTLPHeaders),
		SampleRatio: cfg.Telemetry.SampleRatio,
	})

	pol := policy.Default()
	if cfg.Pipeline.PolicyPath != "" {
		p, err := policy.Load(cfg.Pipeline.PolicyPath)
		if err != nil {
			return nil, fmt.Errorf("load policy: %w", err)
		}
		pol = p
	}

	dbs, err := db.Open(log, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	if err := db.AutoMigrateAll(dbs.DB()); err != nil {
		_ = dbs.Close()
		return nil, fmt.Errorf("automigrate: %w", err)
	}
	a.DB = dbs

	clients, err := wireClients(log, cfg, a.Metrics, opts.WithTemporal)
	if err != nil {
		_ = dbs.Close()
		return nil, err
	}
	a.Clients = clients

	var llm *extract.Extractor
	if clients.OpenAI != nil {
		llm = extract.New(clients.OpenAI, cfg.Pipeline.LLMTimeout)
	}

	progressStore := wireProgress(log, cfg, clients)
	a.Pipeline = curriculum_generate.New(curriculum_generate.Deps{
		Log:      log,
		LLM:      llm,
		Policy:   pol,
		Graph:    clients.Graph,
		Content:  clients.Content,
		Vector:   clients.Vector,
		Web:      clients.Web,
		Progress: progressStore,
		Config: curriculum_generate.Config{
			StageTimeout:   cfg.Pipeline.StageTimeout,
			CallTimeout:    cfg.Pipeline.CallTimeout,
			Attempts:       cfg.Pipeline.Attempts,
			RetryDelay:     pipelineRetryDelay(cfg.Pipeline.RetryDelay),
			KMOOCNamespace: cfg.VectorSearch.KMOOCNamespace,
			DocsNamespace:  cfg.VectorSearch.DocsNamespace,
		},
	})

	var sessionStore assessment.Store = assessment.NewFileStore(cfg.Assessment.SessionDir)
	if clients.Redis != nil {
		sessionStore = assessment.NewRedisStore(clients.Redis, "", cfg.Redis.SessionTTL)
	}
	a.Assessment = assessment.NewService(log, sessionStore, assessment.NewClassifier(log, llm, pol), nil)

	deps := services.CurriculumServiceDeps{
		DB:             dbs.DB(),
		Log:            log,
		Generator:      a.Pipeline,
		Curricula:      repos.NewCurriculumRepo(dbs.DB(), log),
		Runs:           repos.NewGenerationRunRepo(dbs.DB(), log),
		Assessment:     a.Assessment,
		Progress:       progressStore,
		Vector:         clients.Vector,
		KMOOCNamespace: cfg.VectorSearch.KMOOCNamespace,
		CallTimeout:    cfg.Pipeline.CallTimeout,
		RunTimeout:     cfg.Pipeline.RunTimeout,
	}
	if clients.Temporal != nil {
		deps.Starter = curriculumrun.NewStarter(clients.Temporal, cfg.Temporal.Normalized().TaskQueue)
	}
	a.Curricula = services.NewCurriculumService(deps)
	return a, nil
}

// wireProgress writes snapshots to files and mirrors them to Redis when it is up.
func wireProgress(log *logger.Logger, cfg *config.Config, c Clients) progress.Store {
	stores := []progress.Store{progress.NewFileStore(cfg.Pipeline.ProgressDir)}
	if c.Redis != nil {
		stores = append(stores, progress.NewRedisStore(c.Redis, "", cfg.Redis.ProgressTTL))
	}
	return progress.NewMulti(log, stores...)
}

func (a *App) Router() *gin.Engine {
	return httpapi.NewRouter(a.routerConfig())
}

func (a *App) routerConfig() httpapi.RouterConfig {
	serviceName := ""
	if a.Cfg.Telemetry.TracingEnabled {
		serviceName = a.Cfg.App.Name
	}
	return httpapi.RouterConfig{
		Log:               a.Log,
		Metrics:           a.Metrics,
		ServiceName:       serviceName,
		CORSOrigins:       a.Cfg.HTTP.CORSOrigins,
		CurriculumHandler: httpH.NewCurriculumHandler(a.Curricula),
		AssessmentHandler: httpH.NewAssessmentHandler(a.Assessment, a.Curricula),
		HealthHandler:     httpH.NewHealthHandler(a.healthChecks()),
	}
}

// healthChecks covers the database only. Every other backend is optional.
func (a *App) healthChecks() map[string]httpH.Check {
	return map[string]httpH.Check{
		"database": func(ctx context.Context) error {
			sqlDB, err := a.DB.DB().DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
}

// Serve runs the HTTP API and the stale-session sweeper until ctx is done.
func (a *App) Serve(ctx context.Context) error {
	if a.Cfg.Assessment.MaxAge > 0 {
		go a.sweepSessions(ctx, time.Hour)
	}
	a.Log.Info("http server listening", "addr", a.Cfg.HTTP.Addr)
	return httpapi.NewServer(a.routerConfig()).Run(ctx, a.Cfg.HTTP.Addr)
}

func (a *App) sweepSessions(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := a.Assessment.CleanupOlderThan(ctx, a.Cfg.Assessment.MaxAge)
			if err != nil {
				a.Log.Warn("session cleanup failed", "error", err)
			} else if n > 0 {
				a.Log.Info("stale sessions removed", "count", n)
			}
		}
	}
}

// RunWorker polls the Temporal task queue until ctx is done.
func (a *App) RunWorker(ctx context.Context) error {
	if a.Clients.Temporal == nil {
		return fmt.Errorf("worker requires temporal.address")
	}
	r, err := temporalworker.NewRunner(a.Log, a.Clients.Temporal, a.Cfg.Temporal, a.Curricula)
	if err != nil {
		return err
	}
	if err := r.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}

func (a *App) Close() {
	if a == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	a.Clients.Close(ctx)
	if a.DB != nil {
		_ = a.DB.Close()
	}
	if a.shutdownOtel != nil {
		_ = a.shutdownOtel(ctx)
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}

// pipelineRetryDelay maps an explicit 0s to "no pause"; the pipeline treats
// zero as unset.
func pipelineRetryDelay(d time.Duration) time.Duration {
	if d == 0 {
		return -1
	}
	return d
}
