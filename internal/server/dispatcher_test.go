package server

import (
	"context"
	"encoding/json"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/EKerSun/rpcgo/internal/coordinator"
	"github.com/EKerSun/rpcgo/internal/rpc"
	"github.com/EKerSun/rpcgo/internal/wire"
)

type echoRequest struct {
	Text string `json:"text"`
}

type echoResponse struct {
	Text string `json:"text"`
}

func newEchoService() *rpc.ServiceDescriptor {
	svc := rpc.NewServiceDescriptor("Echo")
	svc.AddMethod(&rpc.MethodDescriptor{
		Name:        "Say",
		NewRequest:  func() any { return new(echoRequest) },
		NewResponse: func() any { return new(echoResponse) },
		Handler: func(ctx context.Context, req, resp any) error {
			resp.(*echoResponse).Text = req.(*echoRequest).Text
			return nil
		},
	})
	return svc
}

func startDispatcher(t *testing.T) (addr string, coord *coordinator.MemoryCoordinator) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr = ln.Addr().String()
	ln.Close() // free the port; Dispatcher.Serve rebinds it

	coord = coordinator.NewMemoryCoordinator()

	d := New(Config{
		ListenAddr:    addr,
		AdvertiseHost: "127.0.0.1",
		AdvertisePort: uint16(mustPort(t, addr)),
		Services:      []string{"Echo"},
		Coordinator:   coord,
	})
	d.Register(newEchoService())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	errCh := make(chan error, 1)
	go func() { errCh <- d.Serve(ctx) }()

	// Give the listener a moment to bind before tests dial it.
	time.Sleep(20 * time.Millisecond)

	return addr, coord
}

func mustPort(t *testing.T, addr string) int {
	t.Helper()
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("split host port: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("parse port: %v", err)
	}
	return port
}

func TestDispatcherPublishesToCoordinator(t *testing.T) {
	_, coord := startDispatcher(t)

	value, err := coord.Get(context.Background(), "/Echo/Say")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if value == "" {
		t.Error("expected a published endpoint value")
	}
}

func TestDispatcherHandlesCall(t *testing.T) {
	addr, _ := startDispatcher(t)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	params, _ := json.Marshal(echoRequest{Text: "ping"})
	header, err := wire.EncodeHeader(wire.RpcHeader{ServiceName: "Echo", MethodName: "Say", Params: params})
	if err != nil {
		t.Fatalf("EncodeHeader: %v", err)
	}
	if err := wire.WriteFrame(conn, header); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	body, err := wire.ReadResponse(conn)
	if err != nil {
		t.Fatalf("ReadResponse: %v", err)
	}
	var resp echoResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("Unmarshal: %v (body=%q)", err, body)
	}
	if resp.Text != "ping" {
		t.Errorf("got %q, want %q", resp.Text, "ping")
	}
}

func TestDispatcherUnknownServiceDropsConnection(t *testing.T) {
	addr, _ := startDispatcher(t)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	header, _ := wire.EncodeHeader(wire.RpcHeader{ServiceName: "Nope", MethodName: "X", Params: []byte("{}")})
	if err := wire.WriteFrame(conn, header); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	// An unknown service is logged and dropped, not answered with an error
	// envelope: the dispatcher simply closes the connection, so the client
	// reads an empty body at EOF.
	body, err := wire.ReadResponse(conn)
	if err != nil {
		t.Fatalf("ReadResponse: %v", err)
	}
	if len(body) != 0 {
		t.Errorf("expected an empty body on a dropped connection, got %q", body)
	}
}
