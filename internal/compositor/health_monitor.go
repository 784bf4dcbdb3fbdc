package compositor

import (
	"context"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/radmix/compositor/internal/logging"
	"github.com/radmix/compositor/internal/metrics"
)

// cacheByter is the slice of segstore.Store the health monitor needs
// to publish cache occupancy; satisfied by *segstore.Store.
type cacheByter interface {
	CacheBytes() int64
}

// HealthMonitor periodically samples process CPU and memory usage,
// publishes segment cache occupancy, and prunes reaped producers from
// a Registry. It is the compositor-domain replacement for the
// bird-detection build's periodic CPU sampler.
type HealthMonitor struct {
	registry *Registry
	store    cacheByter
	interval time.Duration
	proc     *process.Process
}

// NewHealthMonitor constructs a monitor for the current process. store
// may be nil if no segment store is in use.
func NewHealthMonitor(registry *Registry, store cacheByter, interval time.Duration) (*HealthMonitor, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &HealthMonitor{registry: registry, store: store, interval: interval, proc: proc}, nil
}

// Run blocks, sampling on each tick until ctx is canceled.
func (h *HealthMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.sample()
		}
	}
}

func (h *HealthMonitor) sample() {
	if pct, err := h.proc.CPUPercentWithContext(context.Background()); err == nil {
		metrics.HealthCPUPercent.Set(pct)
	} else {
		logging.Warn("health monitor failed to sample CPU", "error", err)
	}

	if memInfo, err := h.proc.MemoryInfoWithContext(context.Background()); err == nil {
		metrics.HealthRSSBytes.Set(float64(memInfo.RSS))
	} else {
		logging.Warn("health monitor failed to sample memory", "error", err)
	}

	if h.store != nil {
		metrics.SegStoreCacheBytes.Set(float64(h.store.CacheBytes()))
	}

	reaped := h.registry.Prune()
	if reaped > 0 {
		logging.Debug("pruned reaped compositor producers", "count", reaped)
	}
}

// SystemCPUPercent returns the host-wide CPU utilization percentage,
// sampled over a short window. Supplemental to the per-process figures
// above; grounded on the same gopsutil package used for per-process
// sampling.
func SystemCPUPercent() (float64, error) {
	percentages, err := cpu.Percent(200*time.Millisecond, false)
	if err != nil || len(percentages) == 0 {
		return 0, err
	}
	return percentages[0], nil
}
