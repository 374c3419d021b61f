// Package kairos is the data plane behind a public dashboard that aggregates
// weather, alert and natural-disaster feeds.
//
// It combines a two-tier in-process cache with a resilience layer that keeps
// the dashboard serving data while upstream APIs fail.
//
// # Features
//
//   - Tiered caches: a plain L1 and a compressed L2 per named cache, with
//     overflow from L1 into L2 and promotion back on access
//   - Resilience: circuit breaker, retry with exponential backoff and jitter,
//     and a bulkhead per upstream dependency
//   - Fallbacks: static values or the last known good response, kept in
//     memory, Redis or a SQL database
//   - Observability: cache performance analysis, system health and
//     pluggable metrics publishers (slog, DataDog, Prometheus)
//
// # Quick Start
//
//	sys, err := kairos.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := sys.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer sys.Shutdown(context.Background())
//
// # Fetching Data
//
// Fetch reads from the cache and calls the upstream on a miss. Concurrent
// misses for the same key share one upstream call:
//
//	res, err := sys.Fetch(ctx, kairos.Request{
//	    Cache:      kairos.CacheWeather,
//	    Key:        "nyc",
//	    Dependency: "weather-api",
//	    Fetch: func(ctx context.Context) ([]byte, error) {
//	        return client.Forecast(ctx, "nyc")
//	    },
//	})
//
// res.Source tells whether the value came from the cache, the upstream or a
// fallback. Without an explicit Fallback the last known good response for
// the key is served, as long as it is younger than the dependency's
// FallbackMaxAge.
//
// Transient failures that exhaust their retries, and calls rejected by an
// open breaker, are answered with the fallback value and no error. Errors
// wrapped with MarkPermanent are not retried; they return the fallback value
// together with a *DependencyError.
//
// # Direct Cache Access
//
//	err := kairos.SetJSON(sys, kairos.CacheAlerts, "tx", alerts, kairos.WithTTL(time.Minute))
//	alerts, err := kairos.GetJSON[[]Alert](sys, kairos.CacheAlerts, "tx")
//
// # Health
//
//	health := sys.SystemHealth()      // healthy, degraded or unhealthy
//	analysis := sys.AnalyzePerformance()
//
// # Configuration
//
// Load configuration from a JSON file with KAIROS_* environment overrides:
//
//	sys, err := kairos.NewFromFile("kairos.json")
//
// For testing, use the test configuration:
//
//	sys, err := kairos.NewFromConfig(kairos.TestConfig())
//
// # Thread Safety
//
// All methods of System are safe for concurrent use.
package kairos
