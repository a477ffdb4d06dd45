// Package pool implements the sharded TCP connection pool: bounded total
// capacity via a counting semaphore, per-shard idle queues bounded at 64
// handles, SO_ERROR validation, and a background idle reaper.
package pool

import (
	"context"
	"hash/fnv"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/EKerSun/rpcgo/internal/resolver"
	"github.com/EKerSun/rpcgo/internal/rpcerr"
)

// MaxIdlePerShard bounds each shard's idle queue.
const MaxIdlePerShard = 64

// DefaultShardNum is the shard count used when Config.ShardNum is zero.
const DefaultShardNum = 16

// Config configures a Pool's capacity and reclamation behaviour.
type Config struct {
	MaxConn     int
	ShardNum    int
	IdleTimeout time.Duration
}

// Conn is a pooled, validated TCP connection handle. Callers must pass it
// back to Pool.Release (or the pool leaks a capacity token).
type Conn struct {
	net.Conn

	ep        resolver.Endpoint
	lastUsed  time.Time
	closeOnce sync.Once
}

type shard struct {
	mu          sync.Mutex
	idle        map[resolver.Endpoint][]*Conn
	idleCount   int
	activeCount int
}

// Pool is the process-wide connection pool.
type Pool struct {
	cfg    Config
	shards []*shard

	// tokens is a counting semaphore over the total live-socket count: one
	// token is held for the lifetime of every live socket (idle or active),
	// acquired at creation and returned when the socket is actually closed.
	// A buffered channel blocks a Get the same way a condvar wait would, and
	// a send wakes exactly one waiter.
	tokens chan struct{}

	totalConn int64 // atomic, diagnostic only; capacity is enforced by tokens

	running   atomic.Bool
	reaperSig chan struct{}
}

// New constructs a Pool and starts its background idle reaper.
func New(cfg Config) *Pool {
	if cfg.ShardNum <= 0 {
		cfg.ShardNum = DefaultShardNum
	}
	if cfg.MaxConn <= 0 {
		cfg.MaxConn = 1024
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 90 * time.Second
	}

	p := &Pool{
		cfg:       cfg,
		shards:    make([]*shard, cfg.ShardNum),
		tokens:    make(chan struct{}, cfg.MaxConn),
		reaperSig: make(chan struct{}),
	}
	for i := range p.shards {
		p.shards[i] = &shard{idle: make(map[resolver.Endpoint][]*Conn)}
	}
	for i := 0; i < cfg.MaxConn; i++ {
		p.tokens <- struct{}{}
	}

	p.running.Store(true)
	go p.reapLoop()

	return p
}

func (p *Pool) shardFor(ep resolver.Endpoint) *shard {
	h := fnv.New32a()
	h.Write([]byte(ep.String()))
	return p.shards[h.Sum32()%uint32(len(p.shards))]
}

// defaultDialTimeout bounds the dial itself when timeout_ms==0 requested no
// wait for pool capacity; a zero timeout governs queuing for a token, not
// the socket connect that follows once one is held.
const defaultDialTimeout = 5 * time.Second

// Get returns a validated, connected handle to ep, reusing an idle
// connection from ep's shard if one is available, otherwise creating a new
// one subject to the pool's capacity limit and timeout. A malformed
// endpoint yields CONFIG_ERROR before anything is attempted; a zero timeout
// with no capacity immediately available yields RESOURCE_EXHAUSTED instead
// of waiting.
func (p *Pool) Get(ctx context.Context, ep resolver.Endpoint, timeout time.Duration) (*Conn, error) {
	if err := validateEndpoint(ep); err != nil {
		return nil, err
	}

	s := p.shardFor(ep)

	// Fast path: pop and validate idle handles until one is good or the
	// queue for this endpoint is empty.
	for {
		c, ok := s.popIdle(ep)
		if !ok {
			break
		}
		if validate(c.Conn) {
			s.mu.Lock()
			s.activeCount++
			s.mu.Unlock()
			c.lastUsed = time.Now()
			return c, nil
		}
		p.destroy(c)
	}

	// Slow path: acquire a capacity token, then dial. timeout_ms==0 means
	// don't wait for capacity at all: fail fast with RESOURCE_EXHAUSTED
	// instead of queuing.
	var dialTimeout time.Duration
	if timeout <= 0 {
		select {
		case <-p.tokens:
		default:
			return nil, rpcerr.New(rpcerr.RESOURCE_EXHAUSTED, ep.String(), "pool exhausted: no connection available with a zero timeout")
		}
		dialTimeout = defaultDialTimeout
	} else {
		deadline := time.Now().Add(timeout)
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, rpcerr.New(rpcerr.TIMEOUT, ep.String(), "pool get timed out waiting for capacity")
		}

		select {
		case <-p.tokens:
		case <-time.After(remaining):
			return nil, rpcerr.New(rpcerr.TIMEOUT, ep.String(), "pool get timed out waiting for capacity")
		case <-ctx.Done():
			return nil, rpcerr.New(rpcerr.TIMEOUT, ep.String(), "pool get canceled waiting for capacity")
		}

		dialTimeout = time.Until(deadline)
		if dialTimeout <= 0 {
			dialTimeout = time.Millisecond
		}
	}

	dialer := net.Dialer{Timeout: dialTimeout}
	raw, err := dialer.DialContext(ctx, "tcp", ep.String())
	if err != nil {
		p.tokens <- struct{}{} // give back the token; no socket was created
		return nil, rpcerr.New(rpcerr.NETWORK_ERROR, ep.String(), err.Error())
	}

	atomic.AddInt64(&p.totalConn, 1)
	s.mu.Lock()
	s.activeCount++
	s.mu.Unlock()

	return &Conn{Conn: raw, ep: ep, lastUsed: time.Now()}, nil
}

// validateEndpoint rejects a resolved endpoint that can never be dialed:
// an empty host or a zero port. This is caught before touching the idle
// queue or capacity semaphore so a bad resolver result never consumes a
// token.
func validateEndpoint(ep resolver.Endpoint) error {
	if strings.TrimSpace(ep.Host) == "" {
		return rpcerr.New(rpcerr.CONFIG_ERROR, ep.String(), "malformed endpoint: empty host")
	}
	if strings.ContainsAny(ep.Host, " \t/\\") {
		return rpcerr.New(rpcerr.CONFIG_ERROR, ep.String(), "malformed endpoint: invalid host")
	}
	if ep.Port == 0 {
		return rpcerr.New(rpcerr.CONFIG_ERROR, ep.String(), "malformed endpoint: zero port")
	}
	return nil
}

// Release returns a handle to its shard's idle queue if there is room,
// otherwise closes it. Idempotent only across one Get/Release cycle —
// calling Release twice on the same handle is a caller bug.
func (p *Pool) Release(c *Conn) {
	s := p.shardFor(c.ep)

	s.mu.Lock()
	s.activeCount--
	if s.idleCount < MaxIdlePerShard {
		c.lastUsed = time.Now()
		s.idle[c.ep] = append(s.idle[c.ep], c)
		s.idleCount++
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	p.destroy(c)
}

// popIdle dequeues the oldest idle handle for ep from its shard, FIFO.
func (s *shard) popIdle(ep resolver.Endpoint) (*Conn, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conns := s.idle[ep]
	if len(conns) == 0 {
		return nil, false
	}
	c := conns[0]
	rest := conns[1:]
	if len(rest) == 0 {
		delete(s.idle, ep)
	} else {
		s.idle[ep] = rest
	}
	s.idleCount--
	return c, true
}

// destroy permanently closes a handle and returns its capacity token.
// Idempotent: safe to call more than once on the same *Conn.
func (p *Pool) destroy(c *Conn) {
	c.closeOnce.Do(func() {
		c.Conn.Close()
		atomic.AddInt64(&p.totalConn, -1)
		p.tokens <- struct{}{}
	})
}

// Discard permanently closes a handle instead of returning it to the idle
// queue — used on the error path when a connection must not be reused
// (e.g. after a write or read failure).
func (p *Pool) Discard(c *Conn) {
	s := p.shardFor(c.ep)
	s.mu.Lock()
	s.activeCount--
	s.mu.Unlock()

	p.destroy(c)
}

// Shutdown stops the reaper and closes every idle handle. In-use handles
// remain the caller's responsibility.
func (p *Pool) Shutdown() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	close(p.reaperSig)

	for _, s := range p.shards {
		s.mu.Lock()
		for _, conns := range s.idle {
			for _, c := range conns {
				c.Conn.Close()
			}
		}
		s.idle = make(map[resolver.Endpoint][]*Conn)
		s.idleCount = 0
		s.mu.Unlock()
	}
}

func (p *Pool) reapLoop() {
	interval := p.cfg.IdleTimeout / 2
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.reaperSig:
			return
		case <-ticker.C:
			p.reapOnce()
		}
	}
}

// reapOnce scans each shard's idle queues head-first (oldest entries
// first), removing up to half of each queue's entries that are stale or
// fail validation, stopping at the first entry that is neither.
func (p *Pool) reapOnce() {
	now := time.Now()

	for _, s := range p.shards {
		s.mu.Lock()
		for ep, conns := range s.idle {
			limit := len(conns) / 2
			cut := 0
			for cut < len(conns) && cut < limit {
				c := conns[cut]
				stale := now.Sub(c.lastUsed) > p.cfg.IdleTimeout
				if !stale && validate(c.Conn) {
					break
				}
				cut++
			}
			if cut == 0 {
				continue
			}
			for _, c := range conns[:cut] {
				c.Conn.Close()
				atomic.AddInt64(&p.totalConn, -1)
				p.tokens <- struct{}{}
			}
			s.idleCount -= cut
			remaining := conns[cut:]
			if len(remaining) == 0 {
				delete(s.idle, ep)
			} else {
				s.idle[ep] = remaining
			}
		}
		s.mu.Unlock()
	}
}

// validate reports whether conn's pending socket error (SO_ERROR) is zero.
// Non-TCP connections (e.g. in tests using net.Pipe) are assumed valid.
func validate(conn net.Conn) bool {
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return true
	}

	rc, err := tc.SyscallConn()
	if err != nil {
		return false
	}

	var sockErr int
	ctrlErr := rc.Control(func(fd uintptr) {
		sockErr, err = unix.GetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_ERROR)
	})
	if ctrlErr != nil || err != nil {
		return false
	}
	return sockErr == 0
}

// Stats reports pool-wide accounting for tests and diagnostics.
type Stats struct {
	TotalConn  int64
	ActiveConn int
	IdleConn   int
	MaxConn    int
}

// Stats returns a point-in-time snapshot of pool accounting.
func (p *Pool) Stats() Stats {
	var active, idle int
	for _, s := range p.shards {
		s.mu.Lock()
		active += s.activeCount
		idle += s.idleCount
		s.mu.Unlock()
	}
	return Stats{
		TotalConn:  atomic.LoadInt64(&p.totalConn),
		ActiveConn: active,
		IdleConn:   idle,
		MaxConn:    p.cfg.MaxConn,
	}
}
