package coordinator

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/EKerSun/rpcgo/internal/rpcerr"
	"github.com/EKerSun/rpcgo/internal/wire"
)

// TCPCoordinator is a Coordinator backed by a cmd/rpccoordinator daemon,
// speaking a small line protocol over the same framing internal/wire uses
// for RPC traffic: CONNECT, CREATE <path> <ephemeral:0|1> <data...>, GET
// <path>, each framed as one request/response pair.
type TCPCoordinator struct {
	addr string

	mu   sync.Mutex
	conn net.Conn
}

// NewTCPCoordinator returns a TCPCoordinator dialing addr on Connect.
func NewTCPCoordinator(addr string) *TCPCoordinator {
	return &TCPCoordinator{addr: addr}
}

func (c *TCPCoordinator) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	dialer := net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return rpcerr.New(rpcerr.SERVICE_UNAVAILABLE, c.addr, err.Error())
	}
	c.conn = conn

	reply, err := c.roundTripLocked("CONNECT")
	if err != nil {
		conn.Close()
		c.conn = nil
		return err
	}
	if reply != "OK" {
		conn.Close()
		c.conn = nil
		return rpcerr.New(rpcerr.SERVICE_UNAVAILABLE, c.addr, "coordinator rejected connect: "+reply)
	}
	return nil
}

func (c *TCPCoordinator) Create(ctx context.Context, path, data string, ephemeral bool) error {
	eph := "0"
	if ephemeral {
		eph = "1"
	}
	cmd := fmt.Sprintf("CREATE %s %s %s", path, eph, data)

	c.mu.Lock()
	defer c.mu.Unlock()

	reply, err := c.roundTripLocked(cmd)
	if err != nil {
		return err
	}
	if strings.HasPrefix(reply, "ERR ") {
		return rpcerr.New(rpcerr.SERVICE_UNAVAILABLE, path, strings.TrimPrefix(reply, "ERR "))
	}
	return nil
}

func (c *TCPCoordinator) Get(ctx context.Context, path string) (string, error) {
	cmd := "GET " + path

	c.mu.Lock()
	defer c.mu.Unlock()

	reply, err := c.roundTripLocked(cmd)
	if err != nil {
		return "", err
	}
	if strings.HasPrefix(reply, "ERR ") {
		return "", rpcerr.New(rpcerr.SERVICE_UNAVAILABLE, path, strings.TrimPrefix(reply, "ERR "))
	}
	return strings.TrimPrefix(reply, "OK "), nil
}

func (c *TCPCoordinator) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// roundTripLocked must be called with c.mu held; it writes one framed
// request line and reads one framed response line.
func (c *TCPCoordinator) roundTripLocked(line string) (string, error) {
	if c.conn == nil {
		return "", rpcerr.New(rpcerr.SERVICE_UNAVAILABLE, c.addr, "coordinator not connected")
	}

	c.conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	if err := wire.WriteFrame(c.conn, []byte(line)); err != nil {
		return "", err
	}

	c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	resp, err := wire.ReadFrame(c.conn)
	if err != nil {
		return "", err
	}
	return string(resp), nil
}
