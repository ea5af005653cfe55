// Package realtime tracks live websocket connections per organization and pushes
// payloads to them.
package realtime

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/kiranshivaraju/analyzr/internal/cache"
	"github.com/redis/go-redis/v9"
)

// DefaultLease is how long a registration stays listed without a refresh. It
// must exceed the handler's ping period, which is when live connections renew.
const DefaultLease = 2 * time.Minute

// Directory resolves the live connection ids of an organization.
type Directory interface {
	ConnectionsFor(ctx context.Context, orgID string) ([]string, error)
}

// Registry is a Directory that connections can join and leave. Register also
// renews an existing registration.
type Registry interface {
	Directory
	Register(ctx context.Context, orgID, connID string) error
	Unregister(ctx context.Context, orgID, connID string) error
}

// RedisDirectory keeps one sorted set per organization, scored by the last
// time each connection registered. Entries older than the lease are dropped,
// so a process that dies without unregistering stops being listed.
type RedisDirectory struct {
	client *redis.Client
	lease  time.Duration
	now    func() time.Time
}

type DirectoryOption func(*RedisDirectory)

// WithLease sets how long a registration survives without renewal.
func WithLease(d time.Duration) DirectoryOption {
	return func(r *RedisDirectory) { r.lease = d }
}

// WithDirectoryClock overrides time.Now, mainly for tests.
func WithDirectoryClock(now func() time.Time) DirectoryOption {
	return func(r *RedisDirectory) { r.now = now }
}

func NewRedisDirectory(client *redis.Client, opts ...DirectoryOption) *RedisDirectory {
	d := &RedisDirectory{client: client, lease: DefaultLease, now: time.Now}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *RedisDirectory) Register(ctx context.Context, orgID, connID string) error {
	key := cache.OrgConnectionsKey(orgID)
	pipe := d.client.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(d.now().UnixMilli()), Member: connID})
	pipe.PExpire(ctx, key, d.lease)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("register connection %s: %w", connID, err)
	}
	return nil
}

func (d *RedisDirectory) Unregister(ctx context.Context, orgID, connID string) error {
	if err := d.client.ZRem(ctx, cache.OrgConnectionsKey(orgID), connID).Err(); err != nil {
		return fmt.Errorf("unregister connection %s: %w", connID, err)
	}
	return nil
}

func (d *RedisDirectory) ConnectionsFor(ctx context.Context, orgID string) ([]string, error) {
	key := cache.OrgConnectionsKey(orgID)
	cutoff := d.now().Add(-d.lease).UnixMilli()

	pipe := d.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(cutoff, 10))
	members := pipe.ZRange(ctx, key, 0, -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("list connections for org %s: %w", orgID, err)
	}
	return members.Val(), nil
}

var _ Registry = (*RedisDirectory)(nil)
