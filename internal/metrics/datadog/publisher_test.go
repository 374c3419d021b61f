package datadog

import (
	"net"
	"strings"
	"testing"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"

	"github.com/LavishGent/kairos/internal/config"
	"github.com/LavishGent/kairos/internal/metrics"
	"github.com/LavishGent/kairos/internal/types"
)

// listen starts a UDP sink standing in for the DataDog agent.
func listen(t *testing.T) (*net.UDPConn, int) {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("ListenUDP() error = %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn, conn.LocalAddr().(*net.UDPAddr).Port
}

func readAll(t *testing.T, conn *net.UDPConn) string {
	t.Helper()
	var sb strings.Builder
	buf := make([]byte, 65536)
	for {
		_ = conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		n, err := conn.Read(buf)
		if err != nil {
			return sb.String()
		}
		sb.Write(buf[:n])
		sb.WriteByte('\n')
	}
}

func TestNewPublisherDisabled(t *testing.T) {
	p, err := NewPublisher(&config.DataDogConfig{Enabled: false}, nil)
	if err != nil {
		t.Fatalf("NewPublisher() error = %v", err)
	}
	if _, ok := p.(*metrics.NoOpPublisher); !ok {
		t.Errorf("NewPublisher() = %T, want *metrics.NoOpPublisher", p)
	}
}

func TestPublisherSendsStatsD(t *testing.T) {
	conn, port := listen(t)

	p, err := NewPublisher(&config.DataDogConfig{
		Enabled:   true,
		AgentHost: "127.0.0.1",
		Port:      port,
		Tags:      []string{"env:test"},
	}, nil, statsd.WithoutTelemetry(), statsd.WithoutClientSideAggregation())
	if err != nil {
		t.Fatalf("NewPublisher() error = %v", err)
	}

	p.Incr("breaker.transitions", "dependency:eonet")
	p.PublishHealthMetrics(&types.PublisherHealthMetrics{
		System: &types.SystemHealth{
			Overall:  types.HealthStatusDegraded,
			Breakers: map[string]string{"eonet": "half-open"},
		},
	})
	if err := p.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	out := readAll(t, conn)
	for _, want := range []string{
		"kairos.breaker.transitions:1|c",
		"kairos.system.health:1|g",
		"kairos.breaker.state:1|g",
		"env:test",
		"dependency:eonet",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("statsd output missing %q:\n%s", want, out)
		}
	}
}
