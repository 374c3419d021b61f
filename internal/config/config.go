// Package config provides configuration management for kairos.
package config

import (
	"time"

	"github.com/LavishGent/kairos/internal/types"
)

// SecretString is a string type that redacts its value when marshaled to JSON.
type SecretString = types.SecretString

// NewSecretString creates a new SecretString with the provided value.
func NewSecretString(value string) SecretString {
	return types.NewSecretString(value)
}

// Well-known cache names.
const (
	CacheWeather   = "weather"
	CacheAlerts    = "alerts"
	CacheDisasters = "disasters"
	CacheGeneral   = "general"
)

// Config contains all configuration for the kairos data plane.
//
// Caches and Dependencies are keyed by name and only come from the JSON file;
// scalar sections can also be overridden from KAIROS_* environment variables.
//
//nolint:govet // Configuration struct - logical grouping prioritized over alignment
type Config struct {
	Caches            map[string]CacheConfig      `json:"caches" ignored:"true" validate:"required,dive"`
	Dependencies      map[string]DependencyConfig `json:"dependencies" ignored:"true" validate:"dive"`
	DefaultDependency DependencyConfig            `json:"defaultDependency" split_words:"true"`
	SweepInterval     time.Duration               `json:"sweepInterval" split_words:"true" validate:"gte=0"`
	Monitor           MonitorConfig               `json:"monitor"`
	Snapshot          SnapshotConfig              `json:"snapshot"`
	Metrics           MetricsConfig               `json:"metrics"`
	KeyValidation     KeyValidationConfig         `json:"keyValidation" split_words:"true"`
}

// CacheConfig sizes one named tiered cache.
type CacheConfig struct {
	TTL    time.Duration `json:"ttl" validate:"gte=0"`
	L1Size int           `json:"l1Size" validate:"gt=0"`
	L2Size int           `json:"l2Size" validate:"gt=0"`
	// Codec compresses L2 entries: zstd, s2, gzip or none.
	Codec string `json:"codec" validate:"omitempty,oneof=zstd s2 gzip none"`
}

// DependencyConfig tunes the breaker, retry and bulkhead of one upstream.
//
//nolint:govet // Configuration struct - logical grouping prioritized over alignment
type DependencyConfig struct {
	FailureThreshold  int           `json:"failureThreshold" split_words:"true" validate:"gte=0"`
	OpenTimeout       time.Duration `json:"openTimeout" split_words:"true" validate:"gte=0"`
	HalfOpenMaxProbes int           `json:"halfOpenMaxProbes" split_words:"true" validate:"gte=0"`

	MaxRetries int           `json:"maxRetries" split_words:"true" validate:"gte=0"`
	BaseDelay  time.Duration `json:"baseDelay" split_words:"true" validate:"gte=0"`
	MaxDelay   time.Duration `json:"maxDelay" split_words:"true" validate:"gte=0"`
	Jitter     bool          `json:"jitter"`

	CallTimeout    time.Duration `json:"callTimeout" split_words:"true" validate:"gte=0"`
	MaxConcurrent  int           `json:"maxConcurrent" split_words:"true" validate:"gte=0"`
	MaxQueue       int           `json:"maxQueue" split_words:"true" validate:"gte=0"`
	AcquireTimeout time.Duration `json:"acquireTimeout" split_words:"true" validate:"gte=0"`

	// FallbackMaxAge bounds how stale a last-known-good snapshot may be.
	// Zero accepts any age.
	FallbackMaxAge time.Duration `json:"fallbackMaxAge" split_words:"true" validate:"gte=0"`
}

// MonitorConfig contains thresholds for the performance monitor.
//
//nolint:govet // Configuration struct - logical grouping prioritized over alignment
type MonitorConfig struct {
	OverflowRatio      float64       `json:"overflowRatio" split_words:"true" validate:"gt=0,lte=1"`
	HighOccupancyRatio float64       `json:"highOccupancyRatio" split_words:"true" validate:"gt=0,lte=1"`
	SampleWindow       int           `json:"sampleWindow" split_words:"true" validate:"gt=0"`
	SustainedSamples   int           `json:"sustainedSamples" split_words:"true" validate:"gt=0"`
	SampleInterval     time.Duration `json:"sampleInterval" split_words:"true" validate:"gte=0"`
	MaxMemoryBytes     int64         `json:"maxMemoryBytes" split_words:"true" validate:"gte=0"`
	LowHitRate         float64       `json:"lowHitRate" split_words:"true" validate:"gte=0,lte=1"`
	MinRequests        int64         `json:"minRequests" split_words:"true" validate:"gte=0"`
	MaxEvictionRatio   float64       `json:"maxEvictionRatio" split_words:"true" validate:"gte=0"`
}

// SnapshotConfig selects where last-known-good values are kept.
//
//nolint:govet // Configuration struct - logical grouping prioritized over alignment
type SnapshotConfig struct {
	Backend string      `json:"backend" validate:"oneof=memory redis sql none"`
	Memory  MemoryStore `json:"memory"`
	Redis   RedisConfig `json:"redis"`
	SQL     SQLConfig   `json:"sql"`
}

// MemoryStore configures the in-process snapshot store.
type MemoryStore struct {
	LifeWindow   time.Duration `json:"lifeWindow" split_words:"true"`
	MaxSizeMB    int           `json:"maxSizeMB" split_words:"true"`
	Shards       int           `json:"shards"`
	MaxEntrySize int           `json:"maxEntrySize" split_words:"true"`
}

// RedisConfig contains configuration for the Redis snapshot store.
//
//nolint:govet // Configuration struct - logical grouping prioritized over alignment
type RedisConfig struct {
	DialTimeout         time.Duration `json:"dialTimeout" split_words:"true"`
	ReadTimeout         time.Duration `json:"readTimeout" split_words:"true"`
	WriteTimeout        time.Duration `json:"writeTimeout" split_words:"true"`
	HealthCheckInterval time.Duration `json:"healthCheckInterval" split_words:"true"`
	TTL                 time.Duration `json:"ttl"`
	Password            SecretString  `json:"password"`
	Address             string        `json:"address"`
	KeyPrefix           string        `json:"keyPrefix" split_words:"true"`
	DB                  int           `json:"db"`
	PoolSize            int           `json:"poolSize" split_words:"true"`
	EnableTLS           bool          `json:"enableTLS" split_words:"true"`
	TLSSkipVerify       bool          `json:"tlsSkipVerify" split_words:"true"`
}

// SQLConfig configures the gorm-backed snapshot store.
type SQLConfig struct {
	Driver string       `json:"driver" validate:"omitempty,oneof=postgres sqlite"`
	DSN    SecretString `json:"dsn"`
}

// MetricsConfig contains configuration for metrics publishing.
//
//nolint:govet // Small config struct - minimal alignment benefit
type MetricsConfig struct {
	PublishInterval time.Duration    `json:"publishInterval" split_words:"true"`
	DataDog         DataDogConfig    `json:"datadog" ignored:"true"`
	Prometheus      PrometheusConfig `json:"prometheus"`
	Enabled         bool             `json:"enabled"`
}

// DataDogConfig contains configuration for DataDog metrics publishing.
// It is driven by the standard DD_* variables rather than KAIROS_*.
//
//nolint:govet // Small config struct - minimal alignment benefit
type DataDogConfig struct {
	Tags      []string `json:"tags"`
	AgentHost string   `json:"agentHost"`
	Prefix    string   `json:"prefix"`
	Port      int      `json:"port"`
	Enabled   bool     `json:"enabled"`
}

// PrometheusConfig configures the Prometheus collector and scrape endpoint.
type PrometheusConfig struct {
	Namespace  string `json:"namespace"`
	ListenAddr string `json:"listenAddr" split_words:"true"`
	Enabled    bool   `json:"enabled"`
}

// KeyValidationConfig contains configuration for cache key validation.
type KeyValidationConfig struct {
	ReservedPatterns  []string `json:"reservedPatterns" split_words:"true"`
	MaxKeyLength      int      `json:"maxKeyLength" split_words:"true"`
	Enabled           bool     `json:"enabled"`
	AllowEmpty        bool     `json:"allowEmpty" split_words:"true"`
	AllowControlChars bool     `json:"allowControlChars" split_words:"true"`
	AllowWhitespace   bool     `json:"allowWhitespace" split_words:"true"`
}

// ToTypesConfig converts this config to a types.KeyValidationConfig.
func (c KeyValidationConfig) ToTypesConfig() types.KeyValidationConfig {
	return types.KeyValidationConfig{
		MaxKeyLength:      c.MaxKeyLength,
		AllowEmpty:        c.AllowEmpty,
		AllowControlChars: c.AllowControlChars,
		AllowWhitespace:   c.AllowWhitespace,
		ReservedPatterns:  c.ReservedPatterns,
	}
}

// Dependency returns the settings for name, falling back to DefaultDependency
// for any zero field.
func (c *Config) Dependency(name string) DependencyConfig {
	d, ok := c.Dependencies[name]
	if !ok {
		return c.DefaultDependency
	}
	return d.merge(c.DefaultDependency)
}

func (d DependencyConfig) merge(def DependencyConfig) DependencyConfig {
	if d.FailureThreshold == 0 {
		d.FailureThreshold = def.FailureThreshold
	}
	if d.OpenTimeout == 0 {
		d.OpenTimeout = def.OpenTimeout
	}
	if d.HalfOpenMaxProbes == 0 {
		d.HalfOpenMaxProbes = def.HalfOpenMaxProbes
	}
	if d.BaseDelay == 0 {
		d.BaseDelay = def.BaseDelay
	}
	if d.MaxDelay == 0 {
		d.MaxDelay = def.MaxDelay
	}
	if d.CallTimeout == 0 {
		d.CallTimeout = def.CallTimeout
	}
	if d.MaxConcurrent == 0 {
		d.MaxConcurrent = def.MaxConcurrent
	}
	if d.MaxQueue == 0 {
		d.MaxQueue = def.MaxQueue
	}
	if d.AcquireTimeout == 0 {
		d.AcquireTimeout = def.AcquireTimeout
	}
	if d.FallbackMaxAge == 0 {
		d.FallbackMaxAge = def.FallbackMaxAge
	}
	return d
}
