package coordinator_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/MrWong99/glyphoxa/internal/coordinator"
)

type fixedTenantLister struct {
	ids []string
}

func (f fixedTenantLister) ListActiveIDs() []string { return f.ids }

func TestQueueDrainerRunOnceReadmitsQueuedCallOnceCapacityFrees(t *testing.T) {
	rdb := getRedis(t)
	c, err := coordinator.NewRedisCoordinator(coordinator.RedisCoordinatorConfig{
		Redis:                rdb,
		Name:                 "test",
		MaxGlobalActiveCalls: 100,
		MaxTenantActiveCalls: 1,
		QueueEnabled:         true,
		QueueMaxSize:         5,
	})
	if err != nil {
		t.Fatalf("NewRedisCoordinator() error = %v", err)
	}

	ctx := context.Background()
	if _, err := c.AdmitCall(ctx, "CA1", "acme"); err != nil {
		t.Fatalf("AdmitCall(1) error = %v", err)
	}
	result, err := c.AdmitCall(ctx, "CA2", "acme")
	if err != nil {
		t.Fatalf("AdmitCall(2) error = %v", err)
	}
	if !result.Queued {
		t.Fatalf("expected CA2 to be queued, got %+v", result)
	}

	if err := c.ReleaseCall(ctx, "CA1", "acme"); err != nil {
		t.Fatalf("ReleaseCall() error = %v", err)
	}

	var mu sync.Mutex
	var admitted []string
	drainer := coordinator.NewQueueDrainer(coordinator.QueueDrainerConfig{
		Coordinator: c,
		Tenants:     fixedTenantLister{ids: []string{"acme"}},
		Limiter:     rate.NewLimiter(rate.Inf, 10),
		OnAdmitted: func(ctx context.Context, callSID, tenantID string) {
			mu.Lock()
			admitted = append(admitted, callSID)
			mu.Unlock()
		},
	})

	drainer.RunOnce(ctx)

	mu.Lock()
	defer mu.Unlock()
	if len(admitted) != 1 || admitted[0] != "CA2" {
		t.Fatalf("got admitted %v, want [CA2]", admitted)
	}
}

func TestQueueDrainerStartStop(t *testing.T) {
	rdb := getRedis(t)
	c, err := coordinator.NewRedisCoordinator(coordinator.RedisCoordinatorConfig{Redis: rdb, Name: "test"})
	if err != nil {
		t.Fatalf("NewRedisCoordinator() error = %v", err)
	}

	drainer := coordinator.NewQueueDrainer(coordinator.QueueDrainerConfig{
		Coordinator: c,
		Tenants:     fixedTenantLister{},
		Interval:    time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	drainer.Start(ctx)
	time.Sleep(5 * time.Millisecond)
	drainer.Stop()
	cancel()

	// Stop must be idempotent.
	drainer.Stop()
}
