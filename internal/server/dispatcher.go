// Package server implements the server-side receive/dispatch mirror of
// internal/client.Channel: a goroutine-per-connection accept loop feeding a
// bounded worker pool, mirroring muduo's event-loop + fixed thread pool the
// way Go idiomatically renders it.
package server

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/EKerSun/rpcgo/internal/codec"
	"github.com/EKerSun/rpcgo/internal/coordinator"
	"github.com/EKerSun/rpcgo/internal/logger"
	"github.com/EKerSun/rpcgo/internal/rpc"
	"github.com/EKerSun/rpcgo/internal/wire"
)

// Config configures a Dispatcher.
type Config struct {
	// ListenAddr is the address the Dispatcher's Serve binds.
	ListenAddr string
	// AdvertiseHost/Port are published to the coordinator for each
	// registered service/method, i.e. what clients dial.
	AdvertiseHost string
	AdvertisePort uint16
	// Services restricts publication to this allow-list; a configured
	// service with no matching descriptor is a fatal startup error.
	// A nil/empty slice publishes every registered service.
	Services []string

	WorkerCount int
	Serializer  codec.Serializer
	Coordinator coordinator.Coordinator
	Logger      *logger.StyledLogger
}

// Dispatcher owns a registration table of services, publishes their
// methods to the coordination service, and serves incoming connections.
type Dispatcher struct {
	cfg        Config
	services   map[string]*rpc.ServiceDescriptor
	workers    *rpc.WorkerPool
	serializer codec.Serializer
	log        *logger.StyledLogger

	mu       sync.Mutex
	listener net.Listener
}

// New constructs a Dispatcher with an empty registration table.
func New(cfg Config) *Dispatcher {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = rpc.DefaultWorkerCount
	}
	if cfg.Serializer == nil {
		cfg.Serializer = codec.Default
	}
	return &Dispatcher{
		cfg:        cfg,
		services:   make(map[string]*rpc.ServiceDescriptor),
		workers:    rpc.NewWorkerPool(cfg.WorkerCount, cfg.WorkerCount*8),
		serializer: cfg.Serializer,
		log:        cfg.Logger,
	}
}

// Register adds svc to the dispatcher's table. Must be called before Serve.
func (d *Dispatcher) Register(svc *rpc.ServiceDescriptor) {
	d.services[svc.Name] = svc
}

// publish announces every method of every allow-listed service to the
// coordination service as "/service/method" -> "host:port". A configured
// service name with no matching descriptor is a fatal startup error,
// matching the original's "can't find my own service" abort.
func (d *Dispatcher) publish(ctx context.Context) error {
	if d.cfg.Coordinator == nil {
		return nil
	}
	if err := d.cfg.Coordinator.Connect(ctx); err != nil {
		return fmt.Errorf("connect to coordination service: %w", err)
	}

	d.mu.Lock()
	names := d.cfg.Services
	d.mu.Unlock()
	if len(names) == 0 {
		for name := range d.services {
			names = append(names, name)
		}
	}

	endpoint := fmt.Sprintf("%s:%d", d.cfg.AdvertiseHost, d.cfg.AdvertisePort)
	for _, name := range names {
		svc, ok := d.services[name]
		if !ok {
			return fmt.Errorf("configured service %q has no registered descriptor", name)
		}
		for _, method := range svc.Methods {
			path := fmt.Sprintf("/%s/%s", svc.Name, method.Name)
			if err := d.cfg.Coordinator.Create(ctx, path, endpoint, true); err != nil {
				return fmt.Errorf("publish %s: %w", path, err)
			}
		}
	}
	return nil
}

// Republish swaps in a new publish allow-list and re-announces every
// allow-listed service to the coordination service. cmd/rpcserver drives it
// from a live config reload (internal/config.Watch) so an operator can add a
// service to the allow-list without restarting the process. Nodes already
// published for a service dropped from the list are not withdrawn.
func (d *Dispatcher) Republish(ctx context.Context, services []string) error {
	d.mu.Lock()
	d.cfg.Services = services
	d.mu.Unlock()
	return d.publish(ctx)
}

// Serve binds cfg.ListenAddr, publishes the registration table, and accepts
// connections until ctx is canceled or Close is called.
func (d *Dispatcher) Serve(ctx context.Context) error {
	if err := d.publish(ctx); err != nil {
		return err
	}

	ln, err := net.Listen("tcp", d.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", d.cfg.ListenAddr, err)
	}
	d.mu.Lock()
	d.listener = ln
	d.mu.Unlock()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		go d.handleConn(ctx, conn)
	}
}

// Close stops accepting new connections and stops the worker pool; handler
// jobs still queued are not guaranteed to run.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	ln := d.listener
	d.mu.Unlock()

	var err error
	if ln != nil {
		err = ln.Close()
	}
	d.workers.Stop()
	return err
}

// handleConn serves exactly one request per connection: read one frame,
// decode the RpcHeader, dispatch to the worker pool, write the response
// unframed, and close — a short-lived-connection policy.
func (d *Dispatcher) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	payload, err := wire.ReadFrame(conn)
	if err != nil {
		d.logWarn("failed to read request frame", "error", err)
		return
	}

	header, err := wire.DecodeHeader(payload)
	if err != nil {
		d.logWarn("failed to decode request header", "error", err)
		return
	}

	svc, ok := d.services[header.ServiceName]
	if !ok {
		d.logWarn("dropping request for unknown service", "service", header.ServiceName)
		return
	}
	method, ok := svc.Methods[header.MethodName]
	if !ok {
		d.logWarn("dropping request for unknown method", "service", header.ServiceName, "method", header.MethodName)
		return
	}

	req := method.NewRequest()
	if err := d.serializer.Unmarshal(header.Params, req); err != nil {
		d.logWarn("dropping request with malformed params", "service", header.ServiceName, "method", header.MethodName, "error", err)
		return
	}
	resp := method.NewResponse()

	done := make(chan error, 1)
	d.workers.Submit(rpc.HandlerJob{
		Ctx:        ctx,
		Method:     method,
		Request:    req,
		Response:   resp,
		Completion: func(err error) { done <- err },
	})

	select {
	case err := <-done:
		if err != nil {
			d.logWarn("dropping request after handler error", "service", header.ServiceName, "method", header.MethodName, "error", err)
			return
		}
	case <-ctx.Done():
		return
	}

	body, err := d.serializer.Marshal(resp)
	if err != nil {
		d.logWarn("dropping response that failed to marshal", "service", header.ServiceName, "method", header.MethodName, "error", err)
		return
	}
	if err := wire.WriteResponse(conn, body); err != nil {
		d.logWarn("failed to write response", "error", err)
	}
}

func (d *Dispatcher) logWarn(format string, args ...any) {
	if d.log == nil {
		return
	}
	d.log.Warn(format, args...)
}
