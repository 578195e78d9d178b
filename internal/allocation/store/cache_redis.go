package store

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"fleetbook/internal/allocation/models"
	id "fleetbook/pkg/domain"
	"fleetbook/pkg/platform/circuit"
)

const (
	employeeKeyPrefix = "fleetbook:employee:"
	vehicleKeyPrefix  = "fleetbook:vehicle:"

	defaultCacheTTL = time.Hour
)

// Directory is the master-data half of the record store.
type Directory interface {
	FindEmployee(ctx context.Context, employeeID id.EmployeeID) (*models.Employee, error)
	FindVehicle(ctx context.Context, vehicleID id.VehicleID) (*models.Vehicle, error)
	ListEmployees(ctx context.Context) ([]*models.Employee, error)
	ListVehicles(ctx context.Context) ([]*models.Vehicle, error)
}

// CachedDirectory is a read-through Redis cache over a Directory. Employees
// and vehicles are immutable once seeded, so entries are never invalidated;
// they only expire. Redis failures fall back to the backing directory, and
// repeated failures open a breaker that bypasses Redis until a probe succeeds.
type CachedDirectory struct {
	next    Directory
	client  *redis.Client
	ttl     time.Duration
	logger  *slog.Logger
	breaker *circuit.Breaker
}

type CachedDirectoryOption func(*CachedDirectory)

func WithCacheTTL(ttl time.Duration) CachedDirectoryOption {
	return func(c *CachedDirectory) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func WithCacheLogger(logger *slog.Logger) CachedDirectoryOption {
	return func(c *CachedDirectory) {
		c.logger = logger
	}
}

// WithCacheBreaker replaces the default Redis circuit breaker.
func WithCacheBreaker(b *circuit.Breaker) CachedDirectoryOption {
	return func(c *CachedDirectory) {
		if b != nil {
			c.breaker = b
		}
	}
}

func NewCachedDirectory(next Directory, client *redis.Client, opts ...CachedDirectoryOption) *CachedDirectory {
	c := &CachedDirectory{
		next:    next,
		client:  client,
		ttl:     defaultCacheTTL,
		logger:  slog.Default(),
		breaker: circuit.New("redis-directory"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

func (c *CachedDirectory) FindEmployee(ctx context.Context, employeeID id.EmployeeID) (*models.Employee, error) {
	key := employeeKeyPrefix + employeeID.String()
	var cached models.Employee
	if c.get(ctx, key, &cached) {
		return &cached, nil
	}
	e, err := c.next.FindEmployee(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	c.set(ctx, key, e)
	return e, nil
}

func (c *CachedDirectory) FindVehicle(ctx context.Context, vehicleID id.VehicleID) (*models.Vehicle, error) {
	key := vehicleKeyPrefix + vehicleID.String()
	var cached models.Vehicle
	if c.get(ctx, key, &cached) {
		return &cached, nil
	}
	v, err := c.next.FindVehicle(ctx, vehicleID)
	if err != nil {
		return nil, err
	}
	c.set(ctx, key, v)
	return v, nil
}

// ListEmployees is not cached.
func (c *CachedDirectory) ListEmployees(ctx context.Context) ([]*models.Employee, error) {
	return c.next.ListEmployees(ctx)
}

// ListVehicles is not cached.
func (c *CachedDirectory) ListVehicles(ctx context.Context) ([]*models.Vehicle, error) {
	return c.next.ListVehicles(ctx)
}

func (c *CachedDirectory) get(ctx context.Context, key string, dst any) bool {
	if !c.breaker.Allow() {
		return false
	}
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		c.recordSuccess(ctx)
		return false
	}
	if err != nil {
		c.recordFailure(ctx, "directory cache read failed", key, err)
		return false
	}
	c.recordSuccess(ctx)
	if err := json.Unmarshal(raw, dst); err != nil {
		c.logger.WarnContext(ctx, "directory cache entry corrupt", "key", key, "error", err)
		return false
	}
	return true
}

func (c *CachedDirectory) set(ctx context.Context, key string, v any) {
	if c.breaker.IsOpen() {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.recordFailure(ctx, "directory cache write failed", key, err)
	}
}

func (c *CachedDirectory) recordFailure(ctx context.Context, msg, key string, err error) {
	c.logger.WarnContext(ctx, msg, "key", key, "error", err)
	if _, change := c.breaker.RecordFailure(); change.Opened {
		c.logger.WarnContext(ctx, "directory cache bypassed", "breaker", c.breaker.Name())
	}
}

func (c *CachedDirectory) recordSuccess(ctx context.Context) {
	if _, change := c.breaker.RecordSuccess(); change.Closed {
		c.logger.InfoContext(ctx, "directory cache restored", "breaker", c.breaker.Name())
	}
}
