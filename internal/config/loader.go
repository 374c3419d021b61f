package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"

	"github.com/LavishGent/kairos/internal/types"
)

// EnvPrefix is the prefix for every KAIROS_* override.
const EnvPrefix = "kairos"

var validate = validator.New()

// Load loads configuration from a JSON file.
// If the file doesn't exist, returns default configuration.
// Caches present in the file replace the default entry of the same name.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadWithEnv loads configuration from a JSON file and applies environment overrides.
func LoadWithEnv(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return fmt.Errorf("failed to read environment: %w", err)
	}

	if v := os.Getenv("DD_AGENT_HOST"); v != "" {
		cfg.Metrics.DataDog.AgentHost = v
		cfg.Metrics.DataDog.Enabled = true
	}
	if v := os.Getenv("DD_DOGSTATSD_PORT"); v != "" {
		cfg.Metrics.DataDog.Port = parseInt(v, cfg.Metrics.DataDog.Port)
	}
	if v := os.Getenv("DD_SERVICE"); v != "" {
		cfg.Metrics.DataDog.Prefix = v
	}
	if v := os.Getenv("DD_ENV"); v != "" {
		cfg.Metrics.DataDog.Tags = append(cfg.Metrics.DataDog.Tags, "env:"+v)
	}
	if v := os.Getenv("DD_VERSION"); v != "" {
		cfg.Metrics.DataDog.Tags = append(cfg.Metrics.DataDog.Tags, "version:"+v)
	}
	return nil
}

// Validate checks struct constraints first, then cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%s failed %q validation", fieldPath(fe.Namespace()), fe.Tag())
		}
		return err
	}

	for name, cc := range c.Caches {
		if err := types.ValidateName("cache", name); err != nil {
			return err
		}
		if cc.L2Size < cc.L1Size {
			return fmt.Errorf("caches.%s.l2Size must be at least l1Size", name)
		}
	}

	for name := range c.Dependencies {
		if err := types.ValidateName("dependency", name); err != nil {
			return err
		}
	}

	if c.Monitor.SustainedSamples > c.Monitor.SampleWindow {
		return fmt.Errorf("monitor.sustainedSamples must not exceed monitor.sampleWindow")
	}

	switch c.Snapshot.Backend {
	case "redis":
		if c.Snapshot.Redis.Address == "" {
			return fmt.Errorf("snapshot.redis.address is required when backend is redis")
		}
		if c.Snapshot.Redis.PoolSize <= 0 {
			return fmt.Errorf("snapshot.redis.poolSize must be positive")
		}
	case "sql":
		if c.Snapshot.SQL.DSN.IsEmpty() {
			return fmt.Errorf("snapshot.sql.dsn is required when backend is sql")
		}
	case "memory":
		s := c.Snapshot.Memory.Shards
		if s <= 0 || (s&(s-1)) != 0 {
			return fmt.Errorf("snapshot.memory.shards must be a positive power of 2")
		}
	}

	return nil
}

// OverflowThreshold returns the L1 entry count at which overflow starts:
// ceil(ratio*capacity), never less than 1.
func OverflowThreshold(capacity int, ratio float64) int {
	t := int(math.Ceil(ratio*float64(capacity) - 1e-9))
	if t < 1 {
		return 1
	}
	return t
}

// fieldPath turns "Config.Caches[weather].L1Size" into "caches[weather].l1Size".
func fieldPath(ns string) string {
	parts := strings.Split(ns, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	for i, p := range parts {
		if p != "" {
			parts[i] = strings.ToLower(p[:1]) + p[1:]
		}
	}
	return strings.Join(parts, ".")
}

func parseInt(s string, defaultVal int) int {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return defaultVal
	}
	return v
}
