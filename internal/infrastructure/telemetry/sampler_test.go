package telemetry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/synapse/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/synapse/internal/infrastructure/resilience"
)

// Values are in USER_HZ ticks (100 per second).
const statFixture = `cpu  %d 0 %d %d 0 0 0 0 0 0
cpu0 %d 0 %d %d 0 0 0 0 0 0
btime 1700000000
`

const meminfoFixture = `MemTotal:       16777216 kB
MemFree:         4194304 kB
MemAvailable:    8388608 kB
`

func writeStat(t *testing.T, dir string, user, system, idle int) {
	t.Helper()
	content := []byte(fmt.Sprintf(statFixture, user, system, idle, user, system, idle))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stat"), content, 0o644))
}

func newFixture(t *testing.T) (string, *Sampler) {
	t.Helper()
	dir := t.TempDir()
	writeStat(t, dir, 100, 100, 800)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "meminfo"), []byte(meminfoFixture), 0o644))

	s, err := NewSampler(dir, nil)
	require.NoError(t, err)
	return dir, s.WithMinInterval(0)
}

func TestUsage(t *testing.T) {
	dir, s := newFixture(t)
	ctx := context.Background()

	first, err := s.Usage(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 20.0, first.CPUPercent, 0.001)
	assert.InDelta(t, 8.0, first.MemoryGB, 0.001)

	// 200 busy and 200 idle ticks since the last reading
	writeStat(t, dir, 200, 200, 1000)

	second, err := s.Usage(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 50.0, second.CPUPercent, 0.001)
}

func TestUsageCachesWithinInterval(t *testing.T) {
	dir, s := newFixture(t)
	s.WithMinInterval(time.Hour)

	first, err := s.Usage(context.Background())
	require.NoError(t, err)

	writeStat(t, dir, 1000, 1000, 1000)

	second, err := s.Usage(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestUsageMissingFiles(t *testing.T) {
	s, err := NewSampler(t.TempDir(), nil)
	require.NoError(t, err)

	_, err = s.Usage(context.Background())
	assert.Error(t, err)
}

func TestUsageStopsReadingAfterRepeatedFailures(t *testing.T) {
	dir := t.TempDir()
	s, err := NewSampler(dir, nil)
	require.NoError(t, err)
	s.WithMinInterval(0)

	for i := 0; i < failureThreshold; i++ {
		_, err := s.Usage(context.Background())
		require.Error(t, err)
		assert.NotErrorIs(t, err, resilience.ErrCircuitOpen)
	}

	// Fixing procfs does not help until the cooldown passes.
	writeStat(t, dir, 100, 100, 800)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "meminfo"), []byte(meminfoFixture), 0o644))

	_, err = s.Usage(context.Background())
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
}

func TestUsageCanceled(t *testing.T) {
	_, s := newFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Usage(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunPublishesMetrics(t *testing.T) {
	_, s := newFixture(t)
	metrics := monitoring.NewMetrics(prometheus.NewRegistry())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx, 10*time.Millisecond, metrics)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.HostMemoryGB) > 7.9
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}

func TestCPUPercentBounds(t *testing.T) {
	assert.Equal(t, 0.0, cpuPercent(cpuTimes{total: 10}, cpuTimes{total: 10}))
	assert.Equal(t, 100.0, cpuPercent(cpuTimes{}, cpuTimes{busy: 20, total: 10}))
	assert.Equal(t, 0.0, cpuPercent(cpuTimes{busy: 5, total: 5}, cpuTimes{busy: 4, total: 10}))
}
