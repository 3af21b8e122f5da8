package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// defaultSessionTTL is used when [RedisCoordinatorConfig.SessionTTL] is
	// zero.
	defaultSessionTTL = 10 * time.Minute

	// defaultWebhookTTL is used when
	// [RedisCoordinatorConfig.WebhookIdempotencyTTL] is zero.
	defaultWebhookTTL = 24 * time.Hour
)

// RedisCoordinator is the production [Coordinator], backed by a shared Redis
// instance so that every node in the cluster observes the same webhook
// idempotency markers and admission counters.
type RedisCoordinator struct {
	rdb  *redis.Client
	name string

	sessionTTL   time.Duration
	webhookTTL   time.Duration
	maxGlobal    int
	maxTenant    int
	queueEnabled bool
	queueMaxSize int
}

// RedisCoordinatorConfig configures a [RedisCoordinator].
type RedisCoordinatorConfig struct {
	// Redis is the shared client. Required.
	Redis *redis.Client

	// Name namespaces every key this coordinator writes, so multiple
	// logical deployments can share a Redis instance. Defaults to
	// "voicereceptiond" if empty.
	Name string

	// MaxGlobalActiveCalls caps concurrently admitted calls cluster-wide.
	// Zero means unbounded.
	MaxGlobalActiveCalls int

	// MaxTenantActiveCalls caps concurrently admitted calls per tenant.
	// Zero means unbounded.
	MaxTenantActiveCalls int

	// QueueEnabled allows AdmitCall to queue instead of reject when a cap is
	// exceeded.
	QueueEnabled bool

	// QueueMaxSize is the maximum length of a tenant's FIFO admission
	// queue.
	QueueMaxSize int

	// SessionTTL is the TTL refreshed on a call's counters and session key.
	// Defaults to 10 minutes.
	SessionTTL time.Duration

	// WebhookIdempotencyTTL is the TTL on mark_webhook_processed keys.
	// Defaults to 24 hours.
	WebhookIdempotencyTTL time.Duration
}

// NewRedisCoordinator creates a [RedisCoordinator] from cfg.
func NewRedisCoordinator(cfg RedisCoordinatorConfig) (*RedisCoordinator, error) {
	if cfg.Redis == nil {
		return nil, fmt.Errorf("coordinator: redis client is required")
	}
	name := cfg.Name
	if name == "" {
		name = "voicereceptiond"
	}
	sessionTTL := cfg.SessionTTL
	if sessionTTL <= 0 {
		sessionTTL = defaultSessionTTL
	}
	webhookTTL := cfg.WebhookIdempotencyTTL
	if webhookTTL <= 0 {
		webhookTTL = defaultWebhookTTL
	}
	return &RedisCoordinator{
		rdb:          cfg.Redis,
		name:         name,
		sessionTTL:   sessionTTL,
		webhookTTL:   webhookTTL,
		maxGlobal:    cfg.MaxGlobalActiveCalls,
		maxTenant:    cfg.MaxTenantActiveCalls,
		queueEnabled: cfg.QueueEnabled,
		queueMaxSize: cfg.QueueMaxSize,
	}, nil
}

func (c *RedisCoordinator) webhookKey(key string) string {
	return fmt.Sprintf("%s:webhook:%s", c.name, key)
}

func (c *RedisCoordinator) globalCounterKey() string {
	return fmt.Sprintf("%s:calls:global", c.name)
}

func (c *RedisCoordinator) tenantCounterKey(tenantID string) string {
	return fmt.Sprintf("%s:calls:tenant:%s", c.name, tenantID)
}

func (c *RedisCoordinator) sessionKey(callSID string) string {
	return fmt.Sprintf("%s:call:%s", c.name, callSID)
}

func (c *RedisCoordinator) queueKey(tenantID string) string {
	return fmt.Sprintf("%s:queue:%s", c.name, tenantID)
}

// MarkWebhookProcessed implements [Coordinator].
func (c *RedisCoordinator) MarkWebhookProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = c.webhookTTL
	}
	ok, err := c.rdb.SetNX(ctx, c.webhookKey(key), 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("coordinator: mark webhook processed: %w", err)
	}
	return ok, nil
}

// AdmitCall implements [Coordinator].
func (c *RedisCoordinator) AdmitCall(ctx context.Context, callSID, tenantID string) (AdmitResult, error) {
	globalKey := c.globalCounterKey()
	tenantKey := c.tenantCounterKey(tenantID)

	global, err := c.incrWithExpire(ctx, globalKey)
	if err != nil {
		return AdmitResult{}, fmt.Errorf("coordinator: increment global counter: %w", err)
	}
	if c.maxGlobal > 0 && global > int64(c.maxGlobal) {
		c.rdb.Decr(ctx, globalKey)
		return c.reject(ctx, tenantID, callSID)
	}

	tenant, err := c.incrWithExpire(ctx, tenantKey)
	if err != nil {
		c.rdb.Decr(ctx, globalKey)
		return AdmitResult{}, fmt.Errorf("coordinator: increment tenant counter: %w", err)
	}
	if c.maxTenant > 0 && tenant > int64(c.maxTenant) {
		c.rdb.Decr(ctx, globalKey)
		c.rdb.Decr(ctx, tenantKey)
		return c.reject(ctx, tenantID, callSID)
	}

	if err := c.rdb.Set(ctx, c.sessionKey(callSID), tenantID, c.sessionTTL).Err(); err != nil {
		c.rdb.Decr(ctx, globalKey)
		c.rdb.Decr(ctx, tenantKey)
		return AdmitResult{}, fmt.Errorf("coordinator: set session key: %w", err)
	}

	return AdmitResult{Admitted: true}, nil
}

func (c *RedisCoordinator) incrWithExpire(ctx context.Context, key string) (int64, error) {
	pipe := c.rdb.TxPipeline()
	incrCmd := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, c.sessionTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incrCmd.Val(), nil
}

// reject handles the over-cap path: queue the call if queueing is enabled
// and there is room, otherwise reject outright.
func (c *RedisCoordinator) reject(ctx context.Context, tenantID, callSID string) (AdmitResult, error) {
	if !c.queueEnabled {
		return AdmitResult{Admitted: false, Queued: false}, nil
	}

	qlen, err := c.rdb.LLen(ctx, c.queueKey(tenantID)).Result()
	if err != nil {
		return AdmitResult{}, fmt.Errorf("coordinator: check queue length: %w", err)
	}
	if c.queueMaxSize > 0 && qlen >= int64(c.queueMaxSize) {
		return AdmitResult{Admitted: false, Queued: false}, nil
	}

	if err := c.rdb.RPush(ctx, c.queueKey(tenantID), callSID).Err(); err != nil {
		return AdmitResult{}, fmt.Errorf("coordinator: push to admission queue: %w", err)
	}
	return AdmitResult{Admitted: false, Queued: true}, nil
}

// RefreshCall implements [Coordinator].
func (c *RedisCoordinator) RefreshCall(ctx context.Context, callSID, tenantID string) error {
	pipe := c.rdb.TxPipeline()
	pipe.Expire(ctx, c.sessionKey(callSID), c.sessionTTL)
	pipe.Expire(ctx, c.globalCounterKey(), c.sessionTTL)
	pipe.Expire(ctx, c.tenantCounterKey(tenantID), c.sessionTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("coordinator: refresh call %q: %w", callSID, err)
	}
	return nil
}

// ReleaseCall implements [Coordinator].
func (c *RedisCoordinator) ReleaseCall(ctx context.Context, callSID, tenantID string) error {
	pipe := c.rdb.TxPipeline()
	pipe.Decr(ctx, c.globalCounterKey())
	pipe.Decr(ctx, c.tenantCounterKey(tenantID))
	pipe.Del(ctx, c.sessionKey(callSID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("coordinator: release call %q: %w", callSID, err)
	}
	return nil
}
