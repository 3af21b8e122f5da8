package coordinator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// defaultDrainInterval is how often the drainer attempts to pop one queued
// call per tenant when no explicit interval is configured.
const defaultDrainInterval = time.Second

// QueueDrainer periodically pops queued calls off each tenant's FIFO and
// retries admission, rate-limited so a burst of released capacity does not
// stampede the calendar/LLM providers behind it. Grounded on the same
// Start/Stop/ticker shape as [scheduler.SyncLoop].
type QueueDrainer struct {
	coordinator *RedisCoordinator
	tenants     TenantLister
	limiter     *rate.Limiter
	interval    time.Duration
	onAdmitted  func(ctx context.Context, callSID, tenantID string)

	done     chan struct{}
	stopOnce sync.Once
}

// TenantLister supplies the tenant IDs whose queues should be drained.
type TenantLister interface {
	ListActiveIDs() []string
}

// QueueDrainerConfig configures a [QueueDrainer].
type QueueDrainerConfig struct {
	Coordinator *RedisCoordinator
	Tenants     TenantLister

	// Limiter caps how many re-admissions are attempted per second across
	// all tenants. Defaults to 5 events/sec with a burst of 5.
	Limiter *rate.Limiter

	// Interval is how often each tenant's queue head is checked. Defaults
	// to 1 second.
	Interval time.Duration

	// OnAdmitted is invoked when a previously queued call is admitted.
	OnAdmitted func(ctx context.Context, callSID, tenantID string)
}

// NewQueueDrainer creates a [QueueDrainer] from cfg.
func NewQueueDrainer(cfg QueueDrainerConfig) *QueueDrainer {
	limiter := cfg.Limiter
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Limit(5), 5)
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultDrainInterval
	}
	return &QueueDrainer{
		coordinator: cfg.Coordinator,
		tenants:     cfg.Tenants,
		limiter:     limiter,
		interval:    interval,
		onAdmitted:  cfg.OnAdmitted,
		done:        make(chan struct{}),
	}
}

// Start begins periodic draining in a background goroutine until Stop is
// called or ctx is cancelled.
func (d *QueueDrainer) Start(ctx context.Context) {
	go d.loop(ctx)
}

// Stop halts the drainer. Safe to call multiple times.
func (d *QueueDrainer) Stop() {
	d.stopOnce.Do(func() { close(d.done) })
}

func (d *QueueDrainer) loop(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.done:
			return
		case <-ticker.C:
			d.RunOnce(ctx)
		}
	}
}

// RunOnce attempts to drain one queued call per tenant, respecting the rate
// limiter.
func (d *QueueDrainer) RunOnce(ctx context.Context) {
	for _, tenantID := range d.tenants.ListActiveIDs() {
		if !d.limiter.Allow() {
			return
		}
		callSID, err := d.coordinator.rdb.LPop(ctx, d.coordinator.queueKey(tenantID)).Result()
		if err != nil {
			continue // empty queue or transient error; try again next tick
		}

		result, err := d.coordinator.AdmitCall(ctx, callSID, tenantID)
		if err != nil {
			slog.Warn("coordinator: re-admission attempt failed", "call_sid", callSID, "tenant_id", tenantID, "err", err)
			continue
		}
		if result.Admitted && d.onAdmitted != nil {
			d.onAdmitted(ctx, callSID, tenantID)
		}
	}
}
