package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/procfs"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/synapse/internal/domain/status"
	"github.com/GriffinCanCode/synapse/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/synapse/internal/infrastructure/resilience"
)

const (
	bytesPerGB = 1 << 30

	// DefaultMinInterval is the shortest span a CPU reading is computed over.
	DefaultMinInterval = 500 * time.Millisecond

	// Consecutive read failures before procfs is left alone for a while.
	failureThreshold = 3
	failureCooldown  = time.Minute
)

// ErrNoMeminfo indicates the kernel did not report memory totals.
var ErrNoMeminfo = errors.New("meminfo missing MemTotal or MemAvailable")

// cpuTimes is a cumulative CPU time reading in seconds.
type cpuTimes struct {
	busy  float64
	total float64
}

// Sampler reads host CPU and memory usage from procfs
type Sampler struct {
	fs          procfs.FS
	minInterval time.Duration
	breaker     *resilience.Breaker
	logger      *zap.Logger

	mu       sync.Mutex
	prev     *cpuTimes    // Protected by mu
	last     status.Usage // Protected by mu
	lastTime time.Time    // Protected by mu
	now      func() time.Time
}

// NewSampler opens procfs at mountPoint ("" means /proc)
func NewSampler(mountPoint string, logger *zap.Logger) (*Sampler, error) {
	if mountPoint == "" {
		mountPoint = procfs.DefaultMountPoint
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	fs, err := procfs.NewFS(mountPoint)
	if err != nil {
		return nil, fmt.Errorf("open procfs: %w", err)
	}

	return &Sampler{
		fs:          fs,
		minInterval: DefaultMinInterval,
		breaker: resilience.New("procfs", resilience.Settings{
			Threshold: failureThreshold,
			Cooldown:  failureCooldown,
			OnStateChange: func(name string, from, to resilience.State) {
				logger.Info("Telemetry breaker state changed",
					zap.String("breaker", name),
					zap.Stringer("from", from),
					zap.Stringer("to", to),
				)
			},
		}),
		logger: logger,
		now:    time.Now,
	}, nil
}

// WithMinInterval changes how often a fresh reading is taken
func (s *Sampler) WithMinInterval(d time.Duration) *Sampler {
	s.minInterval = d
	return s
}

// Usage returns CPU percent since the previous reading and memory in use.
// Calls closer together than the minimum interval get the cached value.
func (s *Sampler) Usage(ctx context.Context) (status.Usage, error) {
	if err := ctx.Err(); err != nil {
		return status.Usage{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.prev != nil && now.Sub(s.lastTime) < s.minInterval {
		return s.last, nil
	}

	var (
		times cpuTimes
		memGB float64
	)
	err := s.breaker.Do(func() error {
		var err error
		if times, err = s.readCPU(); err != nil {
			return err
		}
		memGB, err = s.readMemory()
		return err
	})
	if err != nil {
		return status.Usage{}, err
	}

	// The first reading is the average since boot.
	base := cpuTimes{}
	if s.prev != nil {
		base = *s.prev
	}

	usage := status.Usage{
		CPUPercent: cpuPercent(base, times),
		MemoryGB:   memGB,
	}

	s.prev = &times
	s.last = usage
	s.lastTime = now
	return usage, nil
}

// Run samples every interval, publishing to metrics, until ctx is done
func (s *Sampler) Run(ctx context.Context, interval time.Duration, metrics *monitoring.Metrics) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			usage, err := s.Usage(ctx)
			if err != nil {
				s.logger.Debug("Telemetry sample failed", zap.Error(err))
				continue
			}
			if metrics != nil {
				metrics.SetHostUsage(usage.CPUPercent, usage.MemoryGB)
			}
		}
	}
}

func (s *Sampler) readCPU() (cpuTimes, error) {
	stat, err := s.fs.Stat()
	if err != nil {
		return cpuTimes{}, fmt.Errorf("read stat: %w", err)
	}

	c := stat.CPUTotal
	idle := c.Idle + c.Iowait
	busy := c.User + c.Nice + c.System + c.IRQ + c.SoftIRQ + c.Steal
	return cpuTimes{busy: busy, total: busy + idle}, nil
}

func (s *Sampler) readMemory() (float64, error) {
	mem, err := s.fs.Meminfo()
	if err != nil {
		return 0, fmt.Errorf("read meminfo: %w", err)
	}
	if mem.MemTotal == nil || mem.MemAvailable == nil {
		return 0, ErrNoMeminfo
	}

	// meminfo reports kB
	usedKB := *mem.MemTotal - min(*mem.MemAvailable, *mem.MemTotal)
	return float64(usedKB) * 1024 / bytesPerGB, nil
}

func cpuPercent(prev, cur cpuTimes) float64 {
	total := cur.total - prev.total
	if total <= 0 {
		return 0
	}
	busy := cur.busy - prev.busy
	pct := busy / total * 100
	return max(0, min(100, pct))
}
