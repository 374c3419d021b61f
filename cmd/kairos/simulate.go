package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/LavishGent/kairos/pkg/kairos"
)

var (
	simRequests    int
	simKeys        int
	simBatch       int
	simFailureRate float64
	simLatency     time.Duration
	simOutageAfter int
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a flaky synthetic upstream through the caches",
	Long: `Send requests for weather, alert and disaster feeds through the cache
and resilience pipeline. The synthetic upstreams fail at random with the
given rate and can be taken down completely after a number of requests.

At the end the command prints where values were served from, per-cache
tier statistics, the performance analysis and the health of every
dependency.`,
	RunE: runSimulate,
}

func init() {
	simulateCmd.Flags().IntVarP(&simRequests, "requests", "n", 1000, "number of requests to send")
	simulateCmd.Flags().IntVar(&simKeys, "keys", 50, "distinct keys per feed")
	simulateCmd.Flags().IntVar(&simBatch, "batch", 16, "requests fetched concurrently per batch")
	simulateCmd.Flags().Float64Var(&simFailureRate, "failure-rate", 0.2, "probability that an upstream call fails")
	simulateCmd.Flags().DurationVar(&simLatency, "latency", 2*time.Millisecond, "simulated upstream latency")
	simulateCmd.Flags().IntVar(&simOutageAfter, "outage-after", 0, "take every upstream down after this many requests (0 disables)")
	rootCmd.AddCommand(simulateCmd)
}

// feed is one synthetic upstream behind a cache.
type feed struct {
	cache      string
	dependency string
	prefix     string
}

var feeds = []feed{
	{cache: kairos.CacheWeather, dependency: "weather-api", prefix: "city"},
	{cache: kairos.CacheAlerts, dependency: "nws", prefix: "state"},
	{cache: kairos.CacheDisasters, dependency: "eonet", prefix: "event"},
}

var errUpstream = errors.New("synthetic upstream failure")

func runSimulate(cmd *cobra.Command, args []string) error {
	if simBatch <= 0 || simKeys <= 0 {
		return fmt.Errorf("--batch and --keys must be positive")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	sys, err := kairos.NewFromConfig(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	if err := sys.Start(ctx); err != nil {
		return err
	}
	defer func() {
		_ = sys.Shutdown(context.Background())
	}()

	sent := 0
	upstream := func(f feed, key string) kairos.Operation {
		down := simOutageAfter > 0 && sent >= simOutageAfter
		return func(ctx context.Context) ([]byte, error) {
			select {
			case <-time.After(simLatency):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			if down || rand.Float64() < simFailureRate {
				return nil, errUpstream
			}
			return fmt.Appendf(nil, `{"feed":%q,"key":%q,"at":%q}`, f.cache, key, time.Now().Format(time.RFC3339Nano)), nil
		}
	}

	start := time.Now()
	for sent < simRequests {
		n := min(simBatch, simRequests-sent)
		reqs := make([]kairos.Request, 0, n)
		for i := 0; i < n; i++ {
			f := feeds[rand.IntN(len(feeds))]
			key := fmt.Sprintf("%s:%d", f.prefix, rand.IntN(simKeys))
			reqs = append(reqs, kairos.Request{
				Cache:      f.cache,
				Key:        key,
				Dependency: f.dependency,
				Fetch:      upstream(f, key),
				Fallback: kairos.FirstOf(
					sys.LastKnownGood(f.dependency, key),
					kairos.Static([]byte(`{"stale":true}`)),
				),
			})
		}
		_, _ = sys.FetchAll(ctx, reqs)
		sent += n
	}
	elapsed := time.Since(start)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Sent %d requests in %s\n\n", sent, elapsed.Round(time.Millisecond))
	printFetchStats(out, sys.FetchStats())
	printCacheStats(out, sys.GetAllStats())
	printAnalysis(out, sys.AnalyzePerformance())
	printHealth(out, sys.SystemHealth(), sys.ErrorStats(time.Hour))
	return nil
}

func printFetchStats(out io.Writer, s kairos.FetchStats) {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SOURCE\tREQUESTS")
	for _, src := range sortedKeys(s.BySource) {
		fmt.Fprintf(tw, "%s\t%d\n", src, s.BySource[src])
	}
	fmt.Fprintf(tw, "errors\t%d\n", s.Errors)
	_ = tw.Flush()
	fmt.Fprintf(out, "latency avg=%.2fms p50=%.2fms p95=%.2fms p99=%.2fms\n\n",
		s.AvgLatencyMs, s.P50LatencyMs, s.P95LatencyMs, s.P99LatencyMs)
}

func printCacheStats(out io.Writer, stats map[string]kairos.CacheStats) {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CACHE\tL1\tL2\tL2 BYTES\tL1 HIT\tL2 HIT\tPROMOTIONS\tOVERFLOWS\tEVICTIONS")
	for _, name := range sortedKeys(stats) {
		s := stats[name]
		p := s.Performance
		fmt.Fprintf(tw, "%s\t%d/%d\t%d/%d\t%d\t%.1f%%\t%.1f%%\t%d\t%d\t%d\n",
			name,
			s.L1.Entries, s.L1.Capacity,
			s.L2.Entries, s.L2.Capacity,
			s.L2.Bytes,
			p.L1HitRate()*100, p.L2HitRate()*100,
			p.Promotions, p.Overflows, p.Evictions,
		)
	}
	_ = tw.Flush()
	fmt.Fprintln(out)
}

func printAnalysis(out io.Writer, a kairos.PerformanceAnalysis) {
	fmt.Fprintf(out, "Cache health: %s\n", a.OverallHealth)
	for _, rec := range a.Recommendations {
		fmt.Fprintf(out, "  - %s\n", rec)
	}
	fmt.Fprintln(out)
}

func printHealth(out io.Writer, h kairos.SystemHealth, errs kairos.ErrorStats) {
	fmt.Fprintf(out, "System health: %s\n", h.Overall)
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DEPENDENCY\tBREAKER\tDEGRADED\tERRORS")
	for _, dep := range sortedKeys(h.Breakers) {
		fmt.Fprintf(tw, "%s\t%s\t%t\t%d\n", dep, h.Breakers[dep], h.Services[dep].Degraded, errs.ByDependency[dep])
	}
	_ = tw.Flush()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
