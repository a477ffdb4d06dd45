package client

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/EKerSun/rpcgo/internal/breaker"
	"github.com/EKerSun/rpcgo/internal/codec"
	"github.com/EKerSun/rpcgo/internal/pool"
	"github.com/EKerSun/rpcgo/internal/resolver"
	"github.com/EKerSun/rpcgo/internal/rpcerr"
	"github.com/EKerSun/rpcgo/internal/wire"
)

// DefaultPoolGetTimeout bounds how long CallMethod waits for a pooled
// connection before giving up.
const DefaultPoolGetTimeout = 2 * time.Second

// DefaultCallTimeout bounds the write+read portion of one call, once a
// connection is in hand.
const DefaultCallTimeout = 10 * time.Second

// Config configures a Channel's dependencies and timeouts.
type Config struct {
	Breakers       *breaker.Registry
	Resolver       *resolver.Cache
	Pool           *pool.Pool
	Serializer     codec.Serializer
	PoolGetTimeout time.Duration
	CallTimeout    time.Duration
}

// Channel is the client-side call pipeline: one Channel is shared by every
// call a process makes, fanning out across services and methods.
type Channel struct {
	breakers       *breaker.Registry
	resolver       *resolver.Cache
	pool           *pool.Pool
	serializer     codec.Serializer
	poolGetTimeout time.Duration
	callTimeout    time.Duration
}

// NewChannel constructs a Channel from cfg, filling in defaults for any
// zero-valued timeout or serializer.
func NewChannel(cfg Config) *Channel {
	if cfg.Serializer == nil {
		cfg.Serializer = codec.Default
	}
	if cfg.PoolGetTimeout <= 0 {
		cfg.PoolGetTimeout = DefaultPoolGetTimeout
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	return &Channel{
		breakers:       cfg.Breakers,
		resolver:       cfg.Resolver,
		pool:           cfg.Pool,
		serializer:     cfg.Serializer,
		poolGetTimeout: cfg.PoolGetTimeout,
		callTimeout:    cfg.CallTimeout,
	}
}

// CallMethod runs one RPC: breaker gate, serialize, resolve, pool, write,
// read, deserialize, and breaker/controller finalization. req and resp must
// be pointers the Serializer can marshal/unmarshal respectively.
//
// Every outcome — success or failure — is reported through controller
// rather than a returned error, mirroring the original stub's
// "Controller::Failed()/ErrorText()" convention; CallMethod's own error
// return exists only so Go callers that don't need controller introspection
// can check err directly.
func (ch *Channel) CallMethod(ctx context.Context, controller *Controller, service, method string, req, resp any) error {
	if controller == nil {
		controller = NewController()
	}

	if controller.IsCanceled() {
		return ch.fail(controller, rpcerr.New(rpcerr.SYSTEM_ERROR, service, "call already canceled"))
	}

	br := ch.breakers.Get(service)
	if !br.AllowRequest() {
		// The controller's failure text is a literal "Service Unavailable:
		// <service>", not the generic Kind/Target/Message rendering — this
		// is the one message callers are expected to match on exactly.
		controller.SetFailed(fmt.Sprintf("Service Unavailable: %s", service))
		return rpcerr.New(rpcerr.SERVICE_UNAVAILABLE, service, "circuit breaker is open")
	}

	payload, err := ch.serializer.Marshal(req)
	if err != nil {
		// Marshaling is purely local: it never reflects the remote
		// service's health, so it must not feed the breaker.
		return ch.fail(controller, rpcerr.New(rpcerr.PROTOCOL_ERROR, service, "marshal request: "+err.Error()))
	}

	header, err := ch.encodeRequest(service, method, payload)
	if err != nil {
		return ch.fail(controller, err)
	}

	endpoint, err := ch.resolver.Resolve(ctx, service, method)
	if err != nil {
		kind, msg := classify(err)
		br.RecordResult(kind)
		return ch.fail(controller, rpcerr.New(kind, service, msg))
	}

	conn, err := ch.pool.Get(ctx, endpoint, ch.poolGetTimeout)
	if err != nil {
		kind, msg := classify(err)
		br.RecordResult(kind)
		return ch.fail(controller, rpcerr.New(kind, service, msg))
	}

	deadline := time.Now().Add(ch.callTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	if err := wire.WriteFrame(conn, header); err != nil {
		ch.pool.Discard(conn)
		br.RecordResult(rpcerr.NETWORK_ERROR)
		return ch.fail(controller, rpcerr.New(rpcerr.NETWORK_ERROR, service, "write request: "+err.Error()))
	}

	respBytes, err := wire.ReadResponse(conn)
	if err == nil && len(respBytes) == 0 {
		// The peer closed the connection without sending any response.
		err = io.ErrUnexpectedEOF
	}
	if err != nil {
		ch.pool.Discard(conn)
		br.RecordResult(rpcerr.NETWORK_ERROR)
		return ch.fail(controller, rpcerr.New(rpcerr.NETWORK_ERROR, service, "read response: "+err.Error()))
	}

	// A clean framed round trip pools the connection for reuse regardless
	// of what the payload itself turns out to contain.
	ch.pool.Release(conn)

	if err := ch.serializer.Unmarshal(respBytes, resp); err != nil {
		// A malformed response is the remote's fault, not the network's,
		// but it still means the service didn't serve the call: count it
		// as SERVICE_UNAVAILABLE-adjacent via INVALID_RESPONSE, which does
		// not feed the breaker (ambiguous whether the process or the wire
		// is at fault).
		return ch.fail(controller, rpcerr.New(rpcerr.INVALID_RESPONSE, service, "unmarshal response: "+err.Error()))
	}

	br.RecordResult(rpcerr.SUCCESS)
	controller.mu.Lock()
	controller.failed = false
	controller.errText = ""
	controller.mu.Unlock()
	return nil
}

func (ch *Channel) fail(controller *Controller, err error) error {
	controller.SetFailed(err.Error())
	return err
}

// classify extracts the rpcerr.Kind and message from err, defaulting to
// SYSTEM_ERROR for any error that is not an *rpcerr.Error (Resolve and
// pool.Get wrap every error they return, so that default is not reached
// from those two call sites).
func classify(err error) (rpcerr.Kind, string) {
	if rerr, ok := err.(*rpcerr.Error); ok {
		return rerr.Kind, rerr.Message
	}
	return rpcerr.SYSTEM_ERROR, err.Error()
}
