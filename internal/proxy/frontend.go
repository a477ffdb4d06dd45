package proxy

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/EKerSun/rpcgo/internal/logger"
	"github.com/EKerSun/rpcgo/internal/wire"
)

// Handler processes one proxy-inbound message: content is the RequestHeader's
// opaque body, which the handler is expected to decode into a typed request
// and forward through a client.Channel.
type Handler func(ctx context.Context, conn net.Conn, content []byte)

// Frontend is the proxy's inbound TCP acceptor. Unlike the server
// Dispatcher, proxy connections are long-lived: a Frontend reads a stream
// of framed RequestHeader messages from each connection until it closes.
type Frontend struct {
	listenAddr string
	log        *logger.StyledLogger

	mu       sync.RWMutex
	handlers map[uint32]Handler

	conns *ConnectionManager
}

// NewFrontend constructs a Frontend bound to listenAddr.
func NewFrontend(listenAddr string, log *logger.StyledLogger) *Frontend {
	return &Frontend{
		listenAddr: listenAddr,
		log:        log,
		handlers:   make(map[uint32]Handler),
		conns:      NewConnectionManager(),
	}
}

// Connections returns the Frontend's ConnectionManager, so a pub/sub
// collaborator can look up a live connection by client_id.
func (f *Frontend) Connections() *ConnectionManager {
	return f.conns
}

// RegisterHandler binds messageID to handler. Must be called before Serve.
func (f *Frontend) RegisterHandler(messageID uint32, handler Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[messageID] = handler
}

// Serve accepts connections until ctx is canceled.
func (f *Frontend) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", f.listenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", f.listenAddr, err)
	}

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
		go f.handleConn(ctx, conn)
	}
}

// handleConn reads framed RequestHeader messages from conn until it closes,
// dispatching each to the handler registered for its message ID.
func (f *Frontend) handleConn(ctx context.Context, conn net.Conn) {
	id := f.conns.Add(conn)
	defer func() {
		f.conns.Remove(id)
		conn.Close()
	}()

	for {
		payload, err := wire.ReadFrame(conn)
		if err != nil {
			return
		}

		req, err := wire.DecodeRequestHeader(payload)
		if err != nil {
			f.logWarn("failed to decode proxy request header", "error", err)
			return
		}

		f.mu.RLock()
		handler, ok := f.handlers[req.MessageID]
		f.mu.RUnlock()
		if !ok {
			f.logWarn("no handler registered for message", "message_id", req.MessageID)
			continue
		}

		handler(ctx, conn, req.Content)
	}
}

func (f *Frontend) logWarn(format string, args ...any) {
	if f.log == nil {
		return
	}
	f.log.Warn(format, args...)
}
