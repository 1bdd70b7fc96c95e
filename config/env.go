package config

import (
	"os"
	"strconv"
	"time"
)

// FromEnv loads configuration from environment variables
// Falls back to defaults if variables are not set
func FromEnv() Config {
	cfg := Default()
	cfg.ApplyEnv()
	return cfg
}

// ApplyEnv overrides c with any RAPIDTASK_* variables that are set and valid.
func (c *Config) ApplyEnv() {
	if val := getEnvInt("RAPIDTASK_POOL_CORE_SIZE"); val > 0 {
		c.Pool.CoreSize = val
	}
	if val := getEnvInt("RAPIDTASK_POOL_MAX_SIZE"); val > 0 {
		c.Pool.MaxSize = val
	}
	if val := getEnvDuration("RAPIDTASK_POOL_KEEP_ALIVE"); val > 0 {
		c.Pool.KeepAlive = val
	}
	if val, ok := lookupEnvInt("RAPIDTASK_POOL_QUEUE_CAPACITY"); ok && val >= 0 {
		c.Pool.QueueCapacity = &val
	}
	if val := os.Getenv("RAPIDTASK_DEFAULT_EXECUTOR"); val != "" {
		c.DefaultExecutor = val
	}
	if val := os.Getenv("RAPIDTASK_METRICS_NAMESPACE"); val != "" {
		c.Metrics.Namespace = val
	}
}

func getEnvInt(key string) int {
	val := os.Getenv(key)
	if val == "" {
		return 0
	}
	num, err := strconv.Atoi(val)
	if err != nil {
		return 0
	}
	return num
}

// lookupEnvInt reports whether key holds a valid integer, so 0 can be told apart
// from unset.
func lookupEnvInt(key string) (int, bool) {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		return 0, false
	}
	num, err := strconv.Atoi(val)
	if err != nil {
		return 0, false
	}
	return num, true
}

func getEnvDuration(key string) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return 0
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0
	}
	return d
}
