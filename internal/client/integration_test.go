package client

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EKerSun/rpcgo/internal/breaker"
	"github.com/EKerSun/rpcgo/internal/codec"
	"github.com/EKerSun/rpcgo/internal/coordinator"
	"github.com/EKerSun/rpcgo/internal/pool"
	"github.com/EKerSun/rpcgo/internal/resolver"
	"github.com/EKerSun/rpcgo/internal/rpc"
	"github.com/EKerSun/rpcgo/internal/rpcerr"
	"github.com/EKerSun/rpcgo/internal/server"
	"github.com/EKerSun/rpcgo/internal/wire"
)

// reserveLoopbackPort binds an ephemeral loopback port, closes it, and
// returns the port number plus the "host:port" address string, so a
// Dispatcher can be constructed with a known AdvertisePort before Serve
// rebinds the same address.
func reserveLoopbackPort(t *testing.T) (int, string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err, "reserve port")
	addr := ln.Addr().String()
	ln.Close()

	_, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err, "split host port")
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err, "parse port")
	return port, addr
}

func addrString(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}

type loginRequest struct {
	Name string `json:"name"`
	Pwd  string `json:"pwd"`
}

type resultCode struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

type loginResponse struct {
	Result  resultCode `json:"result"`
	Success bool       `json:"success"`
}

func newUserService() *rpc.ServiceDescriptor {
	svc := rpc.NewServiceDescriptor("UserService")
	svc.AddMethod(&rpc.MethodDescriptor{
		Name:        "Login",
		NewRequest:  func() any { return new(loginRequest) },
		NewResponse: func() any { return new(loginResponse) },
		Handler: func(ctx context.Context, req, resp any) error {
			// Mirrors the stubbed local login service this framework was
			// always meant to front: it never actually authenticates, it
			// just reports that the call reached the service.
			resp.(*loginResponse).Result = resultCode{ErrCode: 0, ErrMsg: "Login Success!"}
			resp.(*loginResponse).Success = false
			return nil
		},
	})
	return svc
}

// startUserServiceServer runs a real internal/server.Dispatcher over
// loopback TCP, publishing into coord.
func startUserServiceServer(t *testing.T, coord coordinator.Coordinator) (stop func()) {
	t.Helper()

	port, addr := reserveLoopbackPort(t)

	d := server.New(server.Config{
		ListenAddr:    addr,
		AdvertiseHost: "127.0.0.1",
		AdvertisePort: uint16(port),
		Services:      []string{"UserService"},
		Coordinator:   coord,
	})
	d.Register(newUserService())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Serve(ctx)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)

	return func() {
		cancel()
		d.Close()
		<-done
	}
}

// startLongLivedUserServiceServer runs a raw listener that speaks the same
// framed-request/unframed-response wire protocol as server.Dispatcher, but
// keeps each connection open across multiple requests instead of closing
// after one response. server.Dispatcher itself deliberately closes after
// every response (its short-lived-connection policy), which makes a pooled
// connection unusable on its second checkout; pool reuse is a property of
// internal/pool against a connection that is actually kept alive, so it is
// exercised against this long-lived double rather than the real Dispatcher.
func startLongLivedUserServiceServer(t *testing.T) (addr string, stop func()) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err, "listen")

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				for {
					payload, err := wire.ReadFrame(conn)
					if err != nil {
						return
					}
					header, err := wire.DecodeHeader(payload)
					if err != nil {
						return
					}
					if header.ServiceName != "UserService" || header.MethodName != "Login" {
						return
					}
					resp := loginResponse{Result: resultCode{ErrCode: 0, ErrMsg: "Login Success!"}, Success: false}
					body, err := codec.Default.Marshal(resp)
					if err != nil {
						return
					}
					if err := wire.WriteResponse(conn, body); err != nil {
						return
					}
				}
			}()
		}
	}()

	return ln.Addr().String(), func() { ln.Close() }
}

func TestScenario1HappyPathLogin(t *testing.T) {
	coord := coordinator.NewMemoryCoordinator()
	stop := startUserServiceServer(t, coord)
	defer stop()

	ch := NewChannel(Config{
		Breakers: breaker.NewRegistry(breaker.DefaultConfig()),
		Resolver: resolver.NewCache(coord, time.Minute),
		Pool:     pool.New(pool.Config{MaxConn: 4}),
	})

	ctrl := NewController()
	var resp loginResponse
	err := ch.CallMethod(context.Background(), ctrl, "UserService", "Login",
		loginRequest{Name: "zhang san", Pwd: "123456"}, &resp)

	require.NoError(t, err)
	assert.False(t, ctrl.Failed(), "controller reports failed: %s", ctrl.ErrorText())
	assert.Equal(t, 0, resp.Result.ErrCode)
	assert.Equal(t, "Login Success!", resp.Result.ErrMsg)
	assert.False(t, resp.Success)
}

func TestScenario2UnknownService(t *testing.T) {
	coord := coordinator.NewMemoryCoordinator() // nothing published

	ch := NewChannel(Config{
		Breakers: breaker.NewRegistry(breaker.DefaultConfig()),
		Resolver: resolver.NewCache(coord, time.Minute),
		Pool:     pool.New(pool.Config{MaxConn: 4}),
	})

	ctrl := NewController()
	var resp loginResponse
	err := ch.CallMethod(context.Background(), ctrl, "UserService", "Login",
		loginRequest{Name: "zhang san", Pwd: "123456"}, &resp)

	require.Error(t, err, "expected an error for an unpublished service")
	assert.True(t, ctrl.Failed())
	rerr, ok := err.(*rpcerr.Error)
	require.True(t, ok, "expected *rpcerr.Error, got %T", err)
	assert.Equal(t, rpcerr.SERVICE_UNAVAILABLE, rerr.Kind)

	// SERVICE_UNAVAILABLE does feed the breaker (rpcerr.Kind.Feeds), but a
	// single occurrence is below FailureThreshold, so the breaker stays
	// CLOSED after exactly one resolver miss.
	br := ch.breakers.Get("UserService")
	assert.Equal(t, breaker.CLOSED, br.State(), "state after a single failure below threshold")
}

func TestScenario3BreakerTripsOnConsecutiveNetworkErrors(t *testing.T) {
	coord := coordinator.NewMemoryCoordinator()
	// Publish an endpoint nothing is listening on, so every call hits a
	// connection refused (NETWORK_ERROR).
	port, _ := reserveLoopbackPort(t)
	require.NoError(t, coord.Create(context.Background(), "/UserService/Login", addrString("127.0.0.1", port), false))

	cfg := breaker.Config{FailureThreshold: 3, ResetTimeout: 5 * time.Second, HalfOpenMaxRequests: 5, SuccessThreshold: 3}
	ch := NewChannel(Config{
		Breakers: breaker.NewRegistry(cfg),
		Resolver: resolver.NewCache(coord, time.Minute),
		Pool:     pool.New(pool.Config{MaxConn: 4}),
	})

	for i := 0; i < cfg.FailureThreshold; i++ {
		ctrl := NewController()
		var resp loginResponse
		err := ch.CallMethod(context.Background(), ctrl, "UserService", "Login", loginRequest{}, &resp)
		require.Errorf(t, err, "call %d: expected NETWORK_ERROR from a refused connection", i)
	}

	ctrl := NewController()
	var resp loginResponse
	err := ch.CallMethod(context.Background(), ctrl, "UserService", "Login", loginRequest{}, &resp)
	require.Error(t, err, "expected the fourth call to be denied by the open breaker")
	rerr, ok := err.(*rpcerr.Error)
	require.True(t, ok, "expected *rpcerr.Error, got %T", err)
	assert.Equal(t, rpcerr.SERVICE_UNAVAILABLE, rerr.Kind)
}

func TestScenario4HalfOpenRecovery(t *testing.T) {
	coord := coordinator.NewMemoryCoordinator()
	port, addr := reserveLoopbackPort(t)
	require.NoError(t, coord.Create(context.Background(), "/UserService/Login", addrString("127.0.0.1", port), false))

	// A short reset_timeout keeps this test fast while still exercising the
	// real CLOSED->OPEN->HALF_OPEN->CLOSED path end to end.
	cfg := breaker.Config{FailureThreshold: 3, ResetTimeout: 50 * time.Millisecond, HalfOpenMaxRequests: 5, SuccessThreshold: 3}
	ch := NewChannel(Config{
		Breakers: breaker.NewRegistry(cfg),
		Resolver: resolver.NewCache(coord, time.Minute),
		Pool:     pool.New(pool.Config{MaxConn: 4}),
	})
	br := ch.breakers.Get("UserService")

	for i := 0; i < cfg.FailureThreshold; i++ {
		ctrl := NewController()
		var resp loginResponse
		err := ch.CallMethod(context.Background(), ctrl, "UserService", "Login", loginRequest{}, &resp)
		require.Errorf(t, err, "call %d: expected NETWORK_ERROR from a refused connection", i)
	}
	require.Equal(t, breaker.OPEN, br.State())

	time.Sleep(cfg.ResetTimeout + 20*time.Millisecond)

	// Bring the service back before the next call probes it.
	d := server.New(server.Config{
		ListenAddr:    addr,
		AdvertiseHost: "127.0.0.1",
		AdvertisePort: uint16(port),
		Services:      []string{"UserService"},
		Coordinator:   coord,
	})
	d.Register(newUserService())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Serve(ctx)
	time.Sleep(20 * time.Millisecond)

	for i := 0; i < cfg.SuccessThreshold; i++ {
		ctrl := NewController()
		var resp loginResponse
		err := ch.CallMethod(context.Background(), ctrl, "UserService", "Login", loginRequest{}, &resp)
		require.NoErrorf(t, err, "recovery call %d", i)
	}
	require.Equal(t, breaker.CLOSED, br.State())

	// A further call now takes the CLOSED fast path.
	ctrl := NewController()
	var resp loginResponse
	err := ch.CallMethod(context.Background(), ctrl, "UserService", "Login", loginRequest{}, &resp)
	require.NoError(t, err, "post-recovery call")
}

func TestScenario5PoolReuseAcrossSequentialCalls(t *testing.T) {
	addr, stop := startLongLivedUserServiceServer(t)
	defer stop()

	coord := coordinator.NewMemoryCoordinator()
	require.NoError(t, coord.Create(context.Background(), "/UserService/Login", addr, false))

	p := pool.New(pool.Config{MaxConn: 2, ShardNum: 1})
	ch := NewChannel(Config{
		Breakers: breaker.NewRegistry(breaker.DefaultConfig()),
		Resolver: resolver.NewCache(coord, time.Minute),
		Pool:     p,
	})

	for i := 0; i < 3; i++ {
		ctrl := NewController()
		var resp loginResponse
		err := ch.CallMethod(context.Background(), ctrl, "UserService", "Login", loginRequest{}, &resp)
		require.NoErrorf(t, err, "call %d", i)
	}

	stats := p.Stats()
	assert.Equal(t, 0, stats.ActiveConn, "want no active connections between calls")
	assert.Equal(t, 1, stats.IdleConn, "want one reused idle connection")
	assert.Equal(t, int64(1), stats.TotalConn, "want exactly one connect observed across three sequential calls")
}

func TestScenario6PoolTimeoutWhenExhausted(t *testing.T) {
	coord := coordinator.NewMemoryCoordinator()
	stop := startUserServiceServer(t, coord)
	defer stop()

	p := pool.New(pool.Config{MaxConn: 1, ShardNum: 1})
	ep := mustResolve(t, coord)

	// Hold the only slot with an in-flight Get, then race a second Get with
	// a 100ms timeout.
	held, err := p.Get(context.Background(), ep, time.Second)
	require.NoError(t, err, "Get (holder)")
	defer p.Release(held)

	start := time.Now()
	_, err = p.Get(context.Background(), ep, 100*time.Millisecond)
	elapsed := time.Since(start)

	require.Error(t, err, "expected TIMEOUT while the pool is exhausted")
	rerr, ok := err.(*rpcerr.Error)
	require.True(t, ok, "expected *rpcerr.Error, got %T", err)
	assert.Equal(t, rpcerr.TIMEOUT, rerr.Kind)
	assert.True(t, elapsed >= 100*time.Millisecond && elapsed <= 200*time.Millisecond,
		"elapsed = %v, want roughly 100-150ms", elapsed)
}

func mustResolve(t *testing.T, coord coordinator.Coordinator) resolver.Endpoint {
	t.Helper()
	cache := resolver.NewCache(coord, time.Minute)
	ep, err := cache.Resolve(context.Background(), "UserService", "Login")
	require.NoError(t, err, "Resolve")
	return ep
}
