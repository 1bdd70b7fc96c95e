package config

import (
	"os"
	"time"

	"github.com/Swind/go-rapid-task/core"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Name            string        `yaml:"name" json:"name"`
	DefaultExecutor string        `yaml:"default_executor" json:"default_executor"`
	Pool            PoolConfig    `yaml:"pool" json:"pool"`
	Metrics         MetricsConfig `yaml:"metrics" json:"metrics"`
}

type PoolConfig struct {
	CoreSize        int           `yaml:"core_size" json:"core_size"`
	MaxSize         int           `yaml:"max_size" json:"max_size"`
	KeepAlive       time.Duration `yaml:"keep_alive" json:"keep_alive"`
	// QueueCapacity is a pointer so an explicit 0 (grow past core size at once)
	// differs from unset.
	QueueCapacity   *int          `yaml:"queue_capacity" json:"queue_capacity"`
	UsePriority     bool          `yaml:"use_priority" json:"use_priority"`
	HistoryCapacity int           `yaml:"history_capacity" json:"history_capacity"`
}

type MetricsConfig struct {
	Namespace    string        `yaml:"namespace" json:"namespace"`
	Addr         string        `yaml:"addr" json:"addr"`
	PollInterval time.Duration `yaml:"poll_interval" json:"poll_interval"`
}

// Default returns the built-in configuration.
func Default() Config {
	var c Config
	c.ApplyDefaults()
	return c
}

func (p *PoolConfig) ApplyDefaults() {
	defaults := core.DefaultPoolConfig()
	if p.CoreSize == 0 {
		p.CoreSize = defaults.CoreSize
	}
	if p.MaxSize == 0 {
		p.MaxSize = defaults.MaxSize
	}
	if p.KeepAlive == 0 {
		p.KeepAlive = defaults.KeepAlive
	}
	if p.QueueCapacity == nil {
		capacity := defaults.QueueCapacity
		p.QueueCapacity = &capacity
	}
	if p.HistoryCapacity == 0 {
		p.HistoryCapacity = defaults.HistoryCapacity
	}
}

func (p PoolConfig) queueCapacity() int {
	if p.QueueCapacity == nil {
		return core.DefaultQueueCapacity
	}
	return *p.QueueCapacity
}

func (m *MetricsConfig) ApplyDefaults() {
	if m.Namespace == "" {
		m.Namespace = "rapidtask"
	}
	if m.PollInterval == 0 {
		m.PollInterval = time.Second
	}
}

func (c *Config) ApplyDefaults() {
	if c.Name == "" {
		c.Name = "rapidtask"
	}
	if c.DefaultExecutor == "" {
		c.DefaultExecutor = string(core.ExecutorSerial)
	}
	c.Pool.ApplyDefaults()
	c.Metrics.ApplyDefaults()
}

// Load reads a YAML file, fills unset fields with defaults and applies
// environment overrides.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var r Config
	if err := yaml.Unmarshal(b, &r); err != nil {
		return nil, err
	}
	r.ApplyDefaults()
	r.ApplyEnv()
	return &r, nil
}

// RuntimeConfig converts c into the engine's configuration. Handlers are left
// nil for the caller to fill.
func (c Config) RuntimeConfig() core.RuntimeConfig {
	return core.RuntimeConfig{
		Name: c.Name,
		Pool: core.PoolConfig{
			CoreSize:        c.Pool.CoreSize,
			MaxSize:         c.Pool.MaxSize,
			KeepAlive:       c.Pool.KeepAlive,
			QueueCapacity:   c.Pool.queueCapacity(),
			UsePriority:     c.Pool.UsePriority,
			HistoryCapacity: c.Pool.HistoryCapacity,
		},
		DefaultExecutor: core.ExecutorKind(c.DefaultExecutor),
	}
}

// Validate reports configurations the runtime would refuse.
func (c Config) Validate() error {
	return c.RuntimeConfig().Validate()
}
