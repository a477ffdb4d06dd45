// Command rpccoordinator runs the standalone coordination-service daemon
// TCPCoordinator clients dial: a small line protocol (CONNECT, CREATE, GET,
// PING) framed with internal/wire, standing in for an external ZooKeeper or
// etcd deployment so the module is runnable over a real socket.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/EKerSun/rpcgo/internal/coordinator"
)

func main() {
	os.Exit(run())
}

func run() int {
	var addr string
	pflag.StringVar(&addr, "addr", "127.0.0.1:2181", "address to listen on")
	pflag.Parse()

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rpccoordinator: listen on %s: %v\n", addr, err)
		return 1
	}

	srv := coordinator.NewServer(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("rpccoordinator starting", "addr", addr)
	if err := srv.Serve(ctx, ln); err != nil {
		log.Error("rpccoordinator exited with error", "error", err)
		return 1
	}
	return 0
}
