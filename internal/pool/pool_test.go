package pool

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/EKerSun/rpcgo/internal/resolver"
	"github.com/EKerSun/rpcgo/internal/rpcerr"
)

func startEchoListener(t *testing.T) (resolver.Endpoint, func()) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	done := make(chan struct{})
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				<-done
				c.Close()
			}(conn)
		}
	}()

	tcpAddr := ln.Addr().(*net.TCPAddr)
	ep := resolver.Endpoint{Host: "127.0.0.1", Port: uint16(tcpAddr.Port)}

	return ep, func() {
		close(done)
		ln.Close()
	}
}

func TestPoolGetRelease(t *testing.T) {
	ep, stop := startEchoListener(t)
	defer stop()

	p := New(Config{MaxConn: 4, ShardNum: 1, IdleTimeout: time.Second})
	defer p.Shutdown()

	c, err := p.Get(context.Background(), ep, time.Second)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	stats := p.Stats()
	if stats.ActiveConn != 1 {
		t.Errorf("expected 1 active conn, got %d", stats.ActiveConn)
	}

	p.Release(c)

	stats = p.Stats()
	if stats.ActiveConn != 0 || stats.IdleConn != 1 {
		t.Errorf("expected 0 active / 1 idle after release, got %+v", stats)
	}
}

func TestPoolAccountingInvariant(t *testing.T) {
	ep, stop := startEchoListener(t)
	defer stop()

	p := New(Config{MaxConn: 8, ShardNum: 2, IdleTimeout: time.Second})
	defer p.Shutdown()

	var conns []*Conn
	for i := 0; i < 5; i++ {
		c, err := p.Get(context.Background(), ep, time.Second)
		if err != nil {
			t.Fatalf("Get #%d: %v", i, err)
		}
		conns = append(conns, c)
	}

	stats := p.Stats()
	if stats.ActiveConn+stats.IdleConn != int(stats.TotalConn) {
		t.Errorf("accounting invariant violated: active(%d)+idle(%d) != total(%d)", stats.ActiveConn, stats.IdleConn, stats.TotalConn)
	}
	if int(stats.TotalConn) > stats.MaxConn {
		t.Errorf("total_conn %d exceeds max_conn %d", stats.TotalConn, stats.MaxConn)
	}

	for _, c := range conns {
		p.Release(c)
	}

	stats = p.Stats()
	if stats.ActiveConn+stats.IdleConn != int(stats.TotalConn) {
		t.Errorf("accounting invariant violated after release: active(%d)+idle(%d) != total(%d)", stats.ActiveConn, stats.IdleConn, stats.TotalConn)
	}
}

func TestPoolIdleBound(t *testing.T) {
	ep, stop := startEchoListener(t)
	defer stop()

	// MaxConn comfortably above MaxIdlePerShard, single shard so every
	// connection maps to the same idle queue.
	p := New(Config{MaxConn: MaxIdlePerShard + 10, ShardNum: 1, IdleTimeout: time.Second})
	defer p.Shutdown()

	var conns []*Conn
	for i := 0; i < MaxIdlePerShard+5; i++ {
		c, err := p.Get(context.Background(), ep, time.Second)
		if err != nil {
			t.Fatalf("Get #%d: %v", i, err)
		}
		conns = append(conns, c)
	}

	for _, c := range conns {
		p.Release(c)
	}

	stats := p.Stats()
	if stats.IdleConn > MaxIdlePerShard {
		t.Errorf("idle conn count %d exceeds MaxIdlePerShard %d", stats.IdleConn, MaxIdlePerShard)
	}
}

func TestPoolGetTimeoutWhenExhausted(t *testing.T) {
	ep, stop := startEchoListener(t)
	defer stop()

	p := New(Config{MaxConn: 1, ShardNum: 1, IdleTimeout: time.Second})
	defer p.Shutdown()

	c, err := p.Get(context.Background(), ep, time.Second)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	_ = c // held, not released: pool is now at capacity

	_, err = p.Get(context.Background(), ep, 50*time.Millisecond)
	if err == nil {
		t.Fatal("expected timeout error when pool is exhausted")
	}
}

func TestPoolGetResourceExhaustedOnZeroTimeout(t *testing.T) {
	ep, stop := startEchoListener(t)
	defer stop()

	p := New(Config{MaxConn: 1, ShardNum: 1, IdleTimeout: time.Second})
	defer p.Shutdown()

	c, err := p.Get(context.Background(), ep, time.Second)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	_ = c // held, not released: pool is now at capacity

	_, err = p.Get(context.Background(), ep, 0)
	if err == nil {
		t.Fatal("expected an error when the pool is exhausted and timeout is zero")
	}
	rerr, ok := err.(*rpcerr.Error)
	if !ok || rerr.Kind != rpcerr.RESOURCE_EXHAUSTED {
		t.Errorf("got %v, want RESOURCE_EXHAUSTED", err)
	}
}

func TestPoolGetConfigErrorOnMalformedEndpoint(t *testing.T) {
	p := New(Config{MaxConn: 4, ShardNum: 1, IdleTimeout: time.Second})
	defer p.Shutdown()

	cases := []resolver.Endpoint{
		{Host: "", Port: 8080},
		{Host: "  ", Port: 8080},
		{Host: "127.0.0.1", Port: 0},
	}
	for _, ep := range cases {
		_, err := p.Get(context.Background(), ep, time.Second)
		if err == nil {
			t.Fatalf("endpoint %+v: expected CONFIG_ERROR", ep)
		}
		rerr, ok := err.(*rpcerr.Error)
		if !ok || rerr.Kind != rpcerr.CONFIG_ERROR {
			t.Errorf("endpoint %+v: got %v, want CONFIG_ERROR", ep, err)
		}
	}
}

func TestPoolGetUnblocksOnRelease(t *testing.T) {
	ep, stop := startEchoListener(t)
	defer stop()

	p := New(Config{MaxConn: 1, ShardNum: 1, IdleTimeout: time.Second})
	defer p.Shutdown()

	c, err := p.Get(context.Background(), ep, time.Second)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	go func() {
		time.Sleep(50 * time.Millisecond)
		p.Release(c)
	}()

	_, err = p.Get(context.Background(), ep, time.Second)
	if err != nil {
		t.Fatalf("expected Get to succeed once capacity freed up, got: %v", err)
	}
}
