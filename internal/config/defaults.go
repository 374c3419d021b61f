package config

import "time"

// DefaultConfig returns the production defaults for the dashboard feeds.
func DefaultConfig() *Config {
	return &Config{
		Caches: map[string]CacheConfig{
			CacheWeather:   {TTL: 5 * time.Minute, L1Size: 500, L2Size: 1000, Codec: "zstd"},
			CacheAlerts:    {TTL: 10 * time.Minute, L1Size: 100, L2Size: 200, Codec: "zstd"},
			CacheDisasters: {TTL: 30 * time.Minute, L1Size: 200, L2Size: 400, Codec: "zstd"},
			CacheGeneral:   {TTL: 10 * time.Minute, L1Size: 200, L2Size: 500, Codec: "s2"},
		},
		Dependencies: map[string]DependencyConfig{},
		DefaultDependency: DependencyConfig{
			FailureThreshold:  5,
			OpenTimeout:       60 * time.Second,
			HalfOpenMaxProbes: 1,
			MaxRetries:        3,
			BaseDelay:         2 * time.Second,
			MaxDelay:          30 * time.Second,
			Jitter:            true,
			CallTimeout:       15 * time.Second,
			MaxConcurrent:     10,
			MaxQueue:          20,
			AcquireTimeout:    5 * time.Second,
			FallbackMaxAge:    time.Hour,
		},
		SweepInterval: 30 * time.Second,
		Monitor: MonitorConfig{
			OverflowRatio:      0.8,
			HighOccupancyRatio: 0.9,
			SampleWindow:       30,
			SustainedSamples:   5,
			SampleInterval:     10 * time.Second,
			MaxMemoryBytes:     100 * 1024 * 1024,
			LowHitRate:         0.5,
			MinRequests:        100,
			MaxEvictionRatio:   0.3,
		},
		Snapshot: SnapshotConfig{
			Backend: "memory",
			Memory: MemoryStore{
				LifeWindow:   24 * time.Hour,
				MaxSizeMB:    64,
				Shards:       64,
				MaxEntrySize: 1024 * 1024,
			},
			Redis: RedisConfig{
				Address:             "localhost:6379",
				KeyPrefix:           "kairos:lkg:",
				TTL:                 24 * time.Hour,
				PoolSize:            10,
				DialTimeout:         5 * time.Second,
				ReadTimeout:         3 * time.Second,
				WriteTimeout:        3 * time.Second,
				HealthCheckInterval: 5 * time.Second,
			},
			SQL: SQLConfig{
				Driver: "sqlite",
				DSN:    NewSecretString("kairos.db"),
			},
		},
		Metrics: MetricsConfig{
			Enabled:         true,
			PublishInterval: 30 * time.Second,
			DataDog: DataDogConfig{
				Enabled:   false,
				AgentHost: "127.0.0.1",
				Port:      8125,
				Prefix:    "kairos",
				Tags:      []string{},
			},
			Prometheus: PrometheusConfig{
				Enabled:    false,
				Namespace:  "kairos",
				ListenAddr: ":9090",
			},
		},
		KeyValidation: KeyValidationConfig{
			Enabled:         true,
			MaxKeyLength:    512,
			AllowWhitespace: true,
		},
	}
}

// ForTesting returns tiny caches and millisecond delays suitable for unit tests.
func ForTesting() *Config {
	cfg := DefaultConfig()
	for name, c := range cfg.Caches {
		c.L1Size = 4
		c.L2Size = 8
		c.TTL = time.Minute
		cfg.Caches[name] = c
	}
	cfg.DefaultDependency = DependencyConfig{
		FailureThreshold:  3,
		OpenTimeout:       50 * time.Millisecond,
		HalfOpenMaxProbes: 1,
		MaxRetries:        2,
		BaseDelay:         time.Millisecond,
		MaxDelay:          5 * time.Millisecond,
		Jitter:            false,
		CallTimeout:       time.Second,
		MaxConcurrent:     4,
		MaxQueue:          4,
		AcquireTimeout:    50 * time.Millisecond,
		FallbackMaxAge:    time.Minute,
	}
	cfg.SweepInterval = 0
	cfg.Monitor.SampleInterval = 0
	cfg.Snapshot.Backend = "memory"
	cfg.Snapshot.Memory.Shards = 8
	cfg.Snapshot.Memory.MaxSizeMB = 1
	cfg.Snapshot.Redis.KeyPrefix = "test:lkg:"
	cfg.Snapshot.Redis.HealthCheckInterval = 0
	cfg.Metrics.Enabled = false
	return cfg
}

// ForTestingWithRedis returns a test config that keeps snapshots in Redis.
func ForTestingWithRedis(addr string) *Config {
	cfg := ForTesting()
	cfg.Snapshot.Backend = "redis"
	cfg.Snapshot.Redis.Address = addr
	return cfg
}
