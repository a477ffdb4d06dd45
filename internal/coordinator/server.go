package coordinator

import (
	"context"
	"log/slog"
	"net"
	"strings"
	"sync"

	"github.com/EKerSun/rpcgo/internal/wire"
)

// Server implements the daemon side of the TCPCoordinator line protocol. It
// holds the same durable/ephemeral node store a real coordination service
// would, tracking which connection owns each ephemeral node so it can be
// dropped when that connection disconnects.
type Server struct {
	logger *slog.Logger

	mu    sync.Mutex
	nodes map[string]string
	owner map[string]net.Conn // path -> owning connection, for ephemeral nodes
}

// NewServer constructs an empty coordinator Server.
func NewServer(logger *slog.Logger) *Server {
	return &Server{
		logger: logger,
		nodes:  make(map[string]string),
		owner:  make(map[string]net.Conn),
	}
}

// Serve accepts connections on ln until it is closed or ctx is canceled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
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
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	defer s.dropEphemeralOwnedBy(conn)

	for {
		frame, err := wire.ReadFrame(conn)
		if err != nil {
			return
		}

		line := string(frame)
		reply := s.handleLine(conn, line)

		if err := wire.WriteFrame(conn, []byte(reply)); err != nil {
			return
		}
	}
}

func (s *Server) handleLine(conn net.Conn, line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "ERR empty command"
	}

	switch fields[0] {
	case "CONNECT":
		return "OK"
	case "PING":
		return "OK"
	case "CREATE":
		return s.handleCreate(conn, fields)
	case "GET":
		return s.handleGet(fields)
	default:
		return "ERR unknown command " + fields[0]
	}
}

func (s *Server) handleCreate(conn net.Conn, fields []string) string {
	if len(fields) < 3 {
		return "ERR CREATE requires path, ephemeral flag, and data"
	}
	path := fields[1]
	ephemeral := fields[2] == "1"
	data := ""
	if len(fields) > 3 {
		data = strings.Join(fields[3:], " ")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nodes[path] = data
	if ephemeral {
		s.owner[path] = conn
	} else {
		delete(s.owner, path)
	}

	if s.logger != nil {
		s.logger.Info("coordinator node created", "path", path, "ephemeral", ephemeral)
	}
	return "OK"
}

func (s *Server) handleGet(fields []string) string {
	if len(fields) < 2 {
		return "ERR GET requires a path"
	}
	path := fields[1]

	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.nodes[path]
	if !ok {
		return "ERR no such node " + path
	}
	return "OK " + data
}

func (s *Server) dropEphemeralOwnedBy(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for path, owner := range s.owner {
		if owner == conn {
			delete(s.owner, path)
			delete(s.nodes, path)
			if s.logger != nil {
				s.logger.Info("coordinator ephemeral node dropped", "path", path)
			}
		}
	}
}
