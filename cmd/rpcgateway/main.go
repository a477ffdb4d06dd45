// Command rpcgateway runs the proxy frontend: it accepts long-lived client
// connections, dispatches framed RequestHeader messages by message ID, and
// forwards into the backend services through a client.Channel.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/EKerSun/rpcgo/internal/breaker"
	"github.com/EKerSun/rpcgo/internal/client"
	"github.com/EKerSun/rpcgo/internal/config"
	"github.com/EKerSun/rpcgo/internal/coordinator"
	"github.com/EKerSun/rpcgo/internal/logger"
	"github.com/EKerSun/rpcgo/internal/pool"
	"github.com/EKerSun/rpcgo/internal/proxy"
	"github.com/EKerSun/rpcgo/internal/resolver"
	"github.com/EKerSun/rpcgo/theme"
)

func main() {
	os.Exit(run())
}

func run() int {
	var configPath string
	pflag.StringVarP(&configPath, "config", "i", "", "path to the gateway config file")
	pflag.Parse()

	if configPath == "" {
		fmt.Fprintln(os.Stderr, "rpcgateway: -i <configfile> is required")
		return 2
	}

	cfg, err := config.Parse(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rpcgateway: parse config: %v\n", err)
		return 2
	}

	slogLogger, cleanup, err := logger.New(&logger.Config{Level: "info", PrettyLogs: true})
	if err != nil {
		fmt.Fprintf(os.Stderr, "rpcgateway: init logger: %v\n", err)
		return 1
	}
	defer cleanup()
	log := logger.NewStyledLogger(slogLogger, theme.Default())

	coord := coordinator.NewTCPCoordinator(fmt.Sprintf("%s:%d", cfg.ZookeeperIP, cfg.ZookeeperPort))
	if err := coord.Connect(context.Background()); err != nil {
		log.Error("failed to connect to coordination service", "error", err)
		return 1
	}

	channel := client.NewChannel(client.Config{
		Breakers: breaker.NewRegistry(breaker.Config{
			FailureThreshold:    cfg.FailureThreshold,
			ResetTimeout:        cfg.ResetTimeout,
			HalfOpenMaxRequests: cfg.HalfOpenMaxRequests,
			SuccessThreshold:    cfg.SuccessThreshold,
		}),
		Resolver: resolver.NewCache(coord, resolver.DefaultTTL),
		Pool: pool.New(pool.Config{
			MaxConn:     cfg.MaxConn,
			ShardNum:    cfg.ShardNum,
			IdleTimeout: cfg.IdleTimeout,
		}),
		PoolGetTimeout: cfg.PoolGetTimeout,
	})

	frontend := proxy.NewFrontend(fmt.Sprintf("%s:%d", cfg.GateServerIP, cfg.GateServerPort), log)
	RegisterRoutes(frontend, channel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("rpcgateway starting", "addr", fmt.Sprintf("%s:%d", cfg.GateServerIP, cfg.GateServerPort))
	if err := frontend.Serve(ctx); err != nil {
		log.Error("rpcgateway exited with error", "error", err)
		return 1
	}
	return 0
}
