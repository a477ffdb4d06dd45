// Package resolver implements the endpoint resolver: a process-wide,
// coarse-locked TTL cache in front of the coordination service's
// service/method -> host:port lookup.
package resolver

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/EKerSun/rpcgo/internal/coordinator"
	"github.com/EKerSun/rpcgo/internal/rpcerr"
)

// DefaultTTL is the default cache entry lifetime.
const DefaultTTL = 5 * time.Minute

// Endpoint is an immutable (host, port) pair.
type Endpoint struct {
	Host string
	Port uint16
}

func (e Endpoint) String() string {
	return fmt.Sprintf("%s:%d", e.Host, e.Port)
}

// cachedEndpoint is a resolved Endpoint plus its cache expiry.
type cachedEndpoint struct {
	endpoint  Endpoint
	expiresAt time.Time
}

// Cache is the process-wide resolver: one mutex guarding a
// "service:method" -> cachedEndpoint map. Entries are only ever
// overwritten on re-lookup after expiry, never individually removed.
type Cache struct {
	coord Coordinator
	ttl   time.Duration

	mu      sync.Mutex
	entries map[string]cachedEndpoint
}

// Coordinator is the subset of coordinator.Coordinator the resolver needs.
type Coordinator interface {
	Get(ctx context.Context, path string) (string, error)
}

var _ Coordinator = (*coordinator.MemoryCoordinator)(nil)

// NewCache constructs a Cache backed by coord, with entries expiring after
// ttl (DefaultTTL if zero).
func NewCache(coord Coordinator, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{coord: coord, ttl: ttl, entries: make(map[string]cachedEndpoint)}
}

// Resolve returns the Endpoint for service.method, consulting the
// coordination service only on a cache miss or TTL expiry.
func (c *Cache) Resolve(ctx context.Context, service, method string) (Endpoint, error) {
	key := service + ":" + method

	c.mu.Lock()
	entry, ok := c.entries[key]
	c.mu.Unlock()

	if ok && time.Now().Before(entry.expiresAt) {
		return entry.endpoint, nil
	}

	path := fmt.Sprintf("/%s/%s", service, method)
	value, err := c.coord.Get(ctx, path)
	if err != nil {
		return Endpoint{}, rpcerr.New(rpcerr.SERVICE_UNAVAILABLE, service, "endpoint lookup failed: "+err.Error())
	}
	if value == "" {
		return Endpoint{}, rpcerr.New(rpcerr.SERVICE_UNAVAILABLE, service, "empty endpoint value")
	}

	endpoint, err := parseEndpoint(value)
	if err != nil {
		return Endpoint{}, rpcerr.New(rpcerr.SERVICE_UNAVAILABLE, service, err.Error())
	}

	c.mu.Lock()
	c.entries[key] = cachedEndpoint{endpoint: endpoint, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()

	return endpoint, nil
}

func parseEndpoint(value string) (Endpoint, error) {
	idx := strings.LastIndexByte(value, ':')
	if idx < 0 {
		return Endpoint{}, fmt.Errorf("endpoint value %q lacks a colon", value)
	}
	host := value[:idx]
	portStr := value[idx+1:]

	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return Endpoint{}, fmt.Errorf("endpoint value %q has invalid port: %w", value, err)
	}
	return Endpoint{Host: host, Port: uint16(port)}, nil
}
