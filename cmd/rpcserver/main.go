// Command rpcserver runs the server dispatcher: it registers the process's
// services, publishes them to the coordination service, and serves RPC
// calls until terminated.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/EKerSun/rpcgo/internal/config"
	"github.com/EKerSun/rpcgo/internal/coordinator"
	"github.com/EKerSun/rpcgo/internal/logger"
	"github.com/EKerSun/rpcgo/internal/server"
	"github.com/EKerSun/rpcgo/theme"
)

func main() {
	os.Exit(run())
}

func run() int {
	var configPath string
	pflag.StringVarP(&configPath, "config", "i", "", "path to the server config file")
	pflag.Parse()

	if configPath == "" {
		fmt.Fprintln(os.Stderr, "rpcserver: -i <configfile> is required")
		return 2
	}

	slogLogger, cleanup, err := logger.New(&logger.Config{Level: "info", PrettyLogs: true})
	if err != nil {
		fmt.Fprintf(os.Stderr, "rpcserver: init logger: %v\n", err)
		return 1
	}
	defer cleanup()
	log := logger.NewStyledLogger(slogLogger, theme.Default())

	var dPtr atomic.Pointer[server.Dispatcher]
	cfg, stopWatch, err := config.Watch(configPath, func(next *config.Config) {
		d := dPtr.Load()
		if d == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.Republish(ctx, next.Services); err != nil {
			log.Warn("config reload: republish failed", "error", err)
			return
		}
		log.Info("config reload: republished allow-list", "services", next.Services)
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "rpcserver: parse config: %v\n", err)
		return 2
	}
	defer stopWatch()

	coord := coordinator.NewTCPCoordinator(fmt.Sprintf("%s:%d", cfg.ZookeeperIP, cfg.ZookeeperPort))

	d := server.New(server.Config{
		ListenAddr:    fmt.Sprintf("%s:%d", cfg.RPCServerIP, cfg.RPCServerPort),
		AdvertiseHost: cfg.RPCServerIP,
		AdvertisePort: uint16(cfg.RPCServerPort),
		Services:      cfg.Services,
		WorkerCount:   cfg.WorkerCount,
		Coordinator:   coord,
		Logger:        log,
	})
	RegisterServices(d)
	dPtr.Store(d)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("rpcserver starting", "addr", fmt.Sprintf("%s:%d", cfg.RPCServerIP, cfg.RPCServerPort))
	if err := d.Serve(ctx); err != nil {
		log.Error("rpcserver exited with error", "error", err)
		return 1
	}
	return 0
}
