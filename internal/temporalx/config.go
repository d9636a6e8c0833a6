package temporalx

import (
	"strings"
	"time"
)

// Config is empty-Address safe: no address means Temporal is disabled and
// async runs execute in-process.
type Config struct {
	Address   string `mapstructure:"address"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`

	ClientCertPath string `mapstructure:"client_cert_path"`
	ClientKeyPath  string `mapstructure:"client_key_path"`
	ClientCAPath   string `mapstructure:"client_ca_path"`

	DialTimeout           time.Duration `mapstructure:"dial_timeout"`
	DialMaxWait           time.Duration `mapstructure:"dial_max_wait"`
	AutoRegisterNamespace bool          `mapstructure:"auto_register_namespace"`
	RetentionDays         int           `mapstructure:"retention_days"`
	WorkerConcurrency     int           `mapstructure:"worker_concurrency"`
}

func (c Config) Enabled() bool { return strings.TrimSpace(c.Address) != "" }

func (c Config) withDefaults() Config {
	c.Address = strings.TrimSpace(c.Address)
	c.Namespace = stringsOr(c.Namespace, "learnmate")
	c.TaskQueue = stringsOr(c.TaskQueue, "learnmate")
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.DialMaxWait < 0 {
		c.DialMaxWait = 0
	}
	if c.RetentionDays < 1 {
		c.RetentionDays = 7
	}
	if c.RetentionDays > 365 {
		c.RetentionDays = 365
	}
	if c.WorkerConcurrency < 1 {
		c.WorkerConcurrency = 4
	}
	return c
}

// Normalized returns the config with defaults applied.
func (c Config) Normalized() Config { return c.withDefaults() }

func stringsOr(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return strings.TrimSpace(v)
}
