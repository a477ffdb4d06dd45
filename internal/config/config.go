package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const DefaultFileWriteDelay = 150 * time.Millisecond

var (
	lastReload  time.Time
	reloadMutex sync.Mutex
)

// Parse reads the plain key=value configuration grammar from path: one
// key=value per line, '#' begins a comment, surrounding whitespace is
// trimmed, blank lines are skipped. The key "services" may repeat; each
// occurrence appends to the publish allow-list. Unrecognised keys are
// ignored rather than rejected, a deliberately permissive line protocol.
func Parse(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	cfg := DefaultConfig()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		idx := strings.IndexByte(line, '=')
		if idx < 0 {
			continue
		}

		key := strings.TrimSpace(line[:idx])
		value := strings.TrimSpace(line[idx+1:])
		if key == "" {
			continue
		}

		applyKey(cfg, key, value)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	return cfg, nil
}

func applyKey(cfg *Config, key, value string) {
	switch key {
	case "services":
		if value != "" {
			cfg.Services = append(cfg.Services, value)
		}
	case "rpcserverip":
		cfg.RPCServerIP = value
	case "rpcserverport":
		cfg.RPCServerPort = atoiOr(value, cfg.RPCServerPort)
	case "gateserverip":
		cfg.GateServerIP = value
	case "gateserverport":
		cfg.GateServerPort = atoiOr(value, cfg.GateServerPort)
	case "zookeeperip":
		cfg.ZookeeperIP = value
	case "zookeeperport":
		cfg.ZookeeperPort = atoiOr(value, cfg.ZookeeperPort)
	case "workercount":
		cfg.WorkerCount = atoiOr(value, cfg.WorkerCount)
	case "maxconn":
		cfg.MaxConn = atoiOr(value, cfg.MaxConn)
	case "shardnum":
		cfg.ShardNum = atoiOr(value, cfg.ShardNum)
	case "idletimeout":
		cfg.IdleTimeout = durationOr(value, cfg.IdleTimeout)
	case "poolgettimeoutms":
		cfg.PoolGetTimeout = millisOr(value, cfg.PoolGetTimeout)
	case "failurethreshold":
		cfg.FailureThreshold = atoiOr(value, cfg.FailureThreshold)
	case "resettimeout":
		cfg.ResetTimeout = durationOr(value, cfg.ResetTimeout)
	case "halfopenmaxrequests":
		cfg.HalfOpenMaxRequests = atoiOr(value, cfg.HalfOpenMaxRequests)
	case "successthreshold":
		cfg.SuccessThreshold = atoiOr(value, cfg.SuccessThreshold)
	case "coordinatoraddr":
		cfg.CoordinatorAddr = value
	}
}

func atoiOr(s string, fallback int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}

func millisOr(s string, fallback time.Duration) time.Duration {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return time.Duration(n) * time.Millisecond
}

func durationOr(s string, fallback time.Duration) time.Duration {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return time.Duration(n) * time.Second
}

// Watch parses path once and then calls onChange with a freshly re-parsed
// Config every time the file is modified on disk, debouncing rapid
// successive write events from the same save.
func Watch(path string, onChange func(*Config)) (*Config, func() error, error) {
	cfg, err := Parse(path)
	if err != nil {
		return nil, nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, fmt.Errorf("config: new watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, nil, fmt.Errorf("config: watch %s: %w", path, err)
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if !debounce() {
					continue
				}
				// On some platforms the write event fires before the file
				// is fully flushed.
				time.Sleep(DefaultFileWriteDelay)
				reloaded, err := Parse(path)
				if err != nil {
					continue
				}
				if onChange != nil {
					onChange(reloaded)
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return cfg, watcher.Close, nil
}

func debounce() bool {
	reloadMutex.Lock()
	defer reloadMutex.Unlock()

	now := time.Now()
	if now.Sub(lastReload) < 500*time.Millisecond {
		return false
	}
	lastReload = now
	return true
}
