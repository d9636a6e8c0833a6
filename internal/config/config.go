package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/yungbote/learnmate-backend/internal/data/db"
	"github.com/yungbote/learnmate-backend/internal/temporalx"
)

// Config holds every setting the binaries read. Sections left empty disable
// the backend they describe; the pipeline falls back around it.
type Config struct {
	App          AppConfig          `mapstructure:"app"`
	HTTP         HTTPConfig         `mapstructure:"http"`
	Database     db.Config          `mapstructure:"database"`
	OpenAI       OpenAIConfig       `mapstructure:"openai"`
	Neo4j        Neo4jConfig        `mapstructure:"neo4j"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Pinecone     PineconeConfig     `mapstructure:"pinecone"`
	VectorSearch VectorSearchConfig `mapstructure:"vector_search"`
	WebSearch    WebSearchConfig    `mapstructure:"web_search"`
	Temporal     temporalx.Config   `mapstructure:"temporal"`
	Pipeline     PipelineConfig     `mapstructure:"pipeline"`
	Assessment   AssessmentConfig   `mapstructure:"assessment"`
	Telemetry    TelemetryConfig    `mapstructure:"telemetry"`
}

type AppConfig struct {
	Env      string `mapstructure:"env"` // dev | prod
	LogLevel string `mapstructure:"log_level"`
	Name     string `mapstructure:"name"`
	Version  string `mapstructure:"version"`
}

type HTTPConfig struct {
	Addr        string   `mapstructure:"addr"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

type OpenAIConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	EmbedModel  string        `mapstructure:"embed_model"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxRetries  int           `mapstructure:"max_retries"`
	Temperature float64       `mapstructure:"temperature"`
}

type Neo4jConfig struct {
	URI      string        `mapstructure:"uri"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	Database string        `mapstructure:"database"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	ProgressTTL time.Duration `mapstructure:"progress_ttl"`
	SessionTTL  time.Duration `mapstructure:"session_ttl"`
}

type PineconeConfig struct {
	APIKey          string `mapstructure:"api_key"`
	IndexHost       string `mapstructure:"index_host"`
	NamespacePrefix string `mapstructure:"namespace_prefix"`
}

// VectorSearchConfig selects the K-MOOC search backend: the search service
// when URL is set, otherwise Pinecone directly when it is configured.
type VectorSearchConfig struct {
	URL            string        `mapstructure:"url"`
	Timeout        time.Duration `mapstructure:"timeout"`
	KMOOCNamespace string        `mapstructure:"kmooc_namespace"`
	DocsNamespace  string        `mapstructure:"docs_namespace"`
}

type WebSearchConfig struct {
	Provider     string        `mapstructure:"provider"` // serper | brave
	SerperAPIKey string        `mapstructure:"serper_api_key"`
	BraveAPIKey  string        `mapstructure:"brave_api_key"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

type PipelineConfig struct {
	StageTimeout time.Duration `mapstructure:"stage_timeout"`
	CallTimeout  time.Duration `mapstructure:"call_timeout"`
	LLMTimeout   time.Duration `mapstructure:"llm_timeout"`
	RunTimeout   time.Duration `mapstructure:"run_timeout"`
	Attempts     int           `mapstructure:"attempts"`
	RetryDelay   time.Duration `mapstructure:"retry_delay"`
	PolicyPath   string        `mapstructure:"policy_path"`
	ContentDir   string        `mapstructure:"content_dir"`
	ProgressDir  string        `mapstructure:"progress_dir"`
}

type AssessmentConfig struct {
	SessionDir string        `mapstructure:"session_dir"`
	MaxAge     time.Duration `mapstructure:"max_age"`
}

type TelemetryConfig struct {
	MetricsEnabled bool    `mapstructure:"metrics_enabled"`
	TracingEnabled bool    `mapstructure:"tracing_enabled"`
	OTLPEndpoint   string  `mapstructure:"otlp_endpoint"`
	OTLPInsecure   bool    `mapstructure:"otlp_insecure"`
	OTLPHeaders    string  `mapstructure:"otlp_headers"`
	SampleRatio    float64 `mapstructure:"sample_ratio"`
}

func (a AppConfig) Validate() error {
	switch strings.ToLower(strings.TrimSpace(a.Env)) {
	case "dev", "prod":
		return nil
	default:
		return fmt.Errorf("app.env must be dev or prod, got %q", a.Env)
	}
}

func (h HTTPConfig) Validate() error {
	if strings.TrimSpace(h.Addr) == "" {
		return fmt.Errorf("http.addr is required")
	}
	return nil
}

func (r RedisConfig) Validate() error {
	if r.DB < 0 {
		return fmt.Errorf("redis.db must be >= 0")
	}
	return nil
}

func (p PineconeConfig) Enabled() bool {
	return strings.TrimSpace(p.APIKey) != "" && strings.TrimSpace(p.IndexHost) != ""
}

func (p PineconeConfig) Validate() error {
	if (strings.TrimSpace(p.APIKey) == "") != (strings.TrimSpace(p.IndexHost) == "") {
		return fmt.Errorf("pinecone: api_key and index_host must be set together")
	}
	return nil
}

// APIKey returns the key for the selected provider.
func (w WebSearchConfig) APIKey() string {
	if strings.EqualFold(strings.TrimSpace(w.Provider), "brave") {
		return strings.TrimSpace(w.BraveAPIKey)
	}
	return strings.TrimSpace(w.SerperAPIKey)
}

func (w WebSearchConfig) Validate() error {
	switch strings.ToLower(strings.TrimSpace(w.Provider)) {
	case "", "serper", "brave":
		return nil
	default:
		return fmt.Errorf("web_search.provider must be serper or brave, got %q", w.Provider)
	}
}

func (p PipelineConfig) Validate() error {
	if p.Attempts < 1 {
		return fmt.Errorf("pipeline.attempts must be >= 1")
	}
	if p.StageTimeout <= 0 || p.CallTimeout <= 0 {
		return fmt.Errorf("pipeline timeouts must be positive")
	}
	if p.RetryDelay < 0 {
		return fmt.Errorf("pipeline.retry_delay must be >= 0")
	}
	return nil
}

func (t TelemetryConfig) Validate() error {
	if t.SampleRatio < 0 || t.SampleRatio > 1 {
		return fmt.Errorf("telemetry.sample_ratio must be within [0,1]")
	}
	return nil
}

func (c *Config) Validate() error {
	return errors.Join(
		c.App.Validate(),
		c.HTTP.Validate(),
		c.Database.Validate(),
		c.Redis.Validate(),
		c.Pinecone.Validate(),
		c.WebSearch.Validate(),
		c.Pipeline.Validate(),
		c.Telemetry.Validate(),
	)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "dev")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.name", "learnmate")
	v.SetDefault("http.addr", ":8000")
	v.SetDefault("database.driver", db.DriverSQLite)
	v.SetDefault("database.dsn", "data/learnmate.db")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.embed_model", "text-embedding-3-small")
	v.SetDefault("openai.timeout", "60s")
	v.SetDefault("openai.max_retries", 2)
	v.SetDefault("openai.temperature", 0.3)
	v.SetDefault("neo4j.timeout", "10s")
	v.SetDefault("redis.progress_ttl", "24h")
	v.SetDefault("redis.session_ttl", "168h")
	v.SetDefault("vector_search.timeout", "10s")
	v.SetDefault("vector_search.kmooc_namespace", "kmooc")
	v.SetDefault("vector_search.docs_namespace", "documents")
	v.SetDefault("web_search.provider", "serper")
	v.SetDefault("web_search.timeout", "10s")
	v.SetDefault("temporal.namespace", "learnmate")
	v.SetDefault("temporal.task_queue", "learnmate")
	v.SetDefault("temporal.dial_timeout", "5s")
	v.SetDefault("temporal.dial_max_wait", "60s")
	v.SetDefault("temporal.retention_days", 7)
	v.SetDefault("temporal.worker_concurrency", 4)
	v.SetDefault("pipeline.stage_timeout", "10m")
	v.SetDefault("pipeline.call_timeout", "10s")
	v.SetDefault("pipeline.llm_timeout", "90s")
	v.SetDefault("pipeline.run_timeout", "30m")
	v.SetDefault("pipeline.attempts", 3)
	v.SetDefault("pipeline.retry_delay", "1s")
	v.SetDefault("pipeline.progress_dir", "progress")
	v.SetDefault("assessment.session_dir", "sessions")
	v.SetDefault("assessment.max_age", "720h")
	v.SetDefault("telemetry.metrics_enabled", true)
	v.SetDefault("telemetry.sample_ratio", 1.0)
}

// legacyEnv maps config keys onto the unprefixed variable names deployments
// already export. The LEARNMATE_ form wins when both are set.
var legacyEnv = map[string]string{
	"openai.api_key":                   "OPENAI_API_KEY",
	"openai.base_url":                  "OPENAI_BASE_URL",
	"openai.model":                     "OPENAI_MODEL",
	"neo4j.uri":                        "NEO4J_URI",
	"neo4j.user":                       "NEO4J_USER",
	"neo4j.password":                   "NEO4J_PASSWORD",
	"neo4j.database":                   "NEO4J_DATABASE",
	"redis.addr":                       "REDIS_ADDR",
	"redis.password":                   "REDIS_PASSWORD",
	"pinecone.api_key":                 "PINECONE_API_KEY",
	"pinecone.index_host":              "PINECONE_INDEX_HOST",
	"pinecone.namespace_prefix":        "PINECONE_NAMESPACE_PREFIX",
	"vector_search.url":                "VECTOR_SEARCH_URL",
	"web_search.serper_api_key":        "SERPER_API_KEY",
	"web_search.brave_api_key":         "BRAVE_API_KEY",
	"temporal.address":                 "TEMPORAL_ADDRESS",
	"temporal.namespace":               "TEMPORAL_NAMESPACE",
	"temporal.task_queue":              "TEMPORAL_TASK_QUEUE",
	"temporal.client_cert_path":        "TEMPORAL_CLIENT_CERT_PATH",
	"temporal.client_key_path":         "TEMPORAL_CLIENT_KEY_PATH",
	"temporal.client_ca_path":          "TEMPORAL_CLIENT_CA_PATH",
	"temporal.auto_register_namespace": "TEMPORAL_AUTO_REGISTER_NAMESPACE",
	"database.dsn":                     "DATABASE_URL",
	"telemetry.otlp_endpoint":          "OTEL_EXPORTER_OTLP_ENDPOINT",
	"telemetry.otlp_headers":           "OTEL_EXPORTER_OTLP_HEADERS",
}

// envOnly are keys without a default; AutomaticEnv alone does not surface
// them to Unmarshal.
var envOnly = []string{
	"app.version",
	"http.cors_origins",
	"database.host", "database.port", "database.user", "database.password", "database.name",
	"openai.embed_model",
	"redis.db",
	"vector_search.kmooc_namespace",
	"telemetry.tracing_enabled", "telemetry.otlp_insecure",
	"pipeline.policy_path", "pipeline.content_dir",
}

// Load reads an optional config file, then LEARNMATE_* and legacy env vars.
// An empty path searches ./config and the working directory; a missing file
// there is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("learnmate")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("LEARNMATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		envKey := "LEARNMATE_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envKey, legacy); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	for _, key := range envOnly {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
