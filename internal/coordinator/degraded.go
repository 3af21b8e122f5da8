package coordinator

import (
	"context"
	"time"
)

// Degraded is the in-process [Coordinator] used when COORDINATOR_URL is
// unset. It provides no cross-instance coordination — acceptable only for
// single-instance deployments, per spec.md §4.6. Grounded on the teacher's
// mock-provider pattern (pkg/provider/llm/mock): a fixed-response stand-in
// satisfying the same interface as the real backend.
type Degraded struct{}

// NewDegraded creates a [Degraded] coordinator.
func NewDegraded() *Degraded {
	return &Degraded{}
}

// MarkWebhookProcessed always reports fresh, per spec.md's degraded-mode
// contract. Without a shared backend there is no way to detect a redelivery
// across process restarts or other instances.
func (d *Degraded) MarkWebhookProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return true, nil
}

// AdmitCall always admits immediately, per spec.md's degraded-mode contract.
func (d *Degraded) AdmitCall(ctx context.Context, callSID, tenantID string) (AdmitResult, error) {
	return AdmitResult{Admitted: true, Queued: false}, nil
}

// RefreshCall is a no-op; there are no counters to refresh.
func (d *Degraded) RefreshCall(ctx context.Context, callSID, tenantID string) error {
	return nil
}

// ReleaseCall is a no-op; there are no counters to release.
func (d *Degraded) ReleaseCall(ctx context.Context, callSID, tenantID string) error {
	return nil
}

var (
	_ Coordinator = (*Degraded)(nil)
	_ Coordinator = (*RedisCoordinator)(nil)
)
