// Package coordinator defines the coordination-service client interface
// that stands in for a ZooKeeper-backed name registry, plus two concrete
// implementations: an in-process MemoryCoordinator for tests and
// single-binary deployments, and a TCPCoordinator that speaks a small line
// protocol against the cmd/rpccoordinator daemon.
package coordinator

import (
	"context"
	"fmt"
	"sync"

	"github.com/EKerSun/rpcgo/internal/rpcerr"
)

// Coordinator is the minimal name->value lookup with connect/create/get
// expected of a coordination service client.
type Coordinator interface {
	// Connect establishes the session. It must be called before Create/Get.
	Connect(ctx context.Context) error
	// Create adds or overwrites path with data. With TCPCoordinator, ephemeral
	// nodes are tied to the session: the daemon drops them when the owning
	// connection disconnects. MemoryCoordinator ignores the ephemeral flag and
	// keeps every node; its Close removes nothing.
	Create(ctx context.Context, path, data string, ephemeral bool) error
	// Get returns the value stored at path, or an error if it does not exist.
	Get(ctx context.Context, path string) (string, error)
	// Close releases the coordinator's session.
	Close() error
}

// MemoryCoordinator is an in-process Coordinator backed by a map, with one
// coarse mutex — sufficient for tests and single-binary deployments where
// the server and client share a process.
type MemoryCoordinator struct {
	mu   sync.Mutex
	data map[string]string
}

// NewMemoryCoordinator constructs an empty MemoryCoordinator.
func NewMemoryCoordinator() *MemoryCoordinator {
	return &MemoryCoordinator{data: make(map[string]string)}
}

func (c *MemoryCoordinator) Connect(ctx context.Context) error { return nil }

func (c *MemoryCoordinator) Create(ctx context.Context, path, data string, ephemeral bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[path] = data
	return nil
}

func (c *MemoryCoordinator) Get(ctx context.Context, path string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.data[path]
	if !ok {
		return "", rpcerr.New(rpcerr.SERVICE_UNAVAILABLE, path, "no such node")
	}
	return v, nil
}

func (c *MemoryCoordinator) Close() error { return nil }

// fullPath builds the `/service/method` path layout used as the node key.
func fullPath(service, method string) string {
	return fmt.Sprintf("/%s/%s", service, method)
}
