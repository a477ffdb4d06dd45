package config

import "time"

// Config holds the parsed contents of the plain key=value configuration
// file plus the tunables otherwise left as hard-coded constants.
type Config struct {
	// RPCServerIP / RPCServerPort is the address a server process binds to
	// and publishes to the coordination service.
	RPCServerIP   string
	RPCServerPort int

	// GateServerIP / GateServerPort is the address the proxy frontend binds to.
	GateServerIP   string
	GateServerPort int

	// ZookeeperIP / ZookeeperPort is the coordination service address.
	ZookeeperIP   string
	ZookeeperPort int

	// Services is the publish allow-list; built by repeated `services=` lines.
	Services []string

	// WorkerCount sizes the server dispatcher's bounded handler pool.
	WorkerCount int
	// MaxConn is the process-wide connection pool ceiling.
	MaxConn int
	// ShardNum is the number of pool shards idle connections are spread
	// across; the MaxConn ceiling applies to the whole pool, not per shard.
	ShardNum int
	// IdleTimeout bounds how long an idle pooled connection is kept before reaping.
	IdleTimeout time.Duration
	// PoolGetTimeout bounds how long Pool.Get waits for a handle before failing.
	PoolGetTimeout time.Duration

	// FailureThreshold is the consecutive-failure count that trips a breaker open.
	FailureThreshold int
	// ResetTimeout is how long a breaker stays OPEN before allowing a probe.
	ResetTimeout time.Duration
	// HalfOpenMaxRequests caps the probes admitted while HALF_OPEN after the
	// probe that made the transition; completed probes do not free a slot.
	HalfOpenMaxRequests int
	// SuccessThreshold is the consecutive HALF_OPEN success count that closes a breaker.
	SuccessThreshold int

	// CoordinatorAddr holds the `coordinatoraddr` key. cmd/rpcserver and
	// cmd/rpcgateway do not read it: they dial the coordination daemon at
	// ZookeeperIP:ZookeeperPort.
	CoordinatorAddr string
}

// Defaults for the tunables otherwise left as hard-coded constants.
const (
	DefaultWorkerCount         = 4
	DefaultMaxConn             = 1024
	DefaultShardNum            = 16
	DefaultIdleTimeout         = 90 * time.Second
	DefaultPoolGetTimeout      = 2 * time.Second
	DefaultFailureThreshold    = 3
	DefaultResetTimeout        = 5 * time.Second
	DefaultHalfOpenMaxRequests = 5
	DefaultSuccessThreshold    = 3
	DefaultZookeeperPort       = 2181
)

// DefaultConfig returns a Config with every tunable set to its documented
// default constant. Parse starts from this and overrides only the keys
// present in the file.
func DefaultConfig() *Config {
	return &Config{
		ZookeeperIP:         "127.0.0.1",
		ZookeeperPort:       DefaultZookeeperPort,
		WorkerCount:         DefaultWorkerCount,
		MaxConn:             DefaultMaxConn,
		ShardNum:            DefaultShardNum,
		IdleTimeout:         DefaultIdleTimeout,
		PoolGetTimeout:      DefaultPoolGetTimeout,
		FailureThreshold:    DefaultFailureThreshold,
		ResetTimeout:        DefaultResetTimeout,
		HalfOpenMaxRequests: DefaultHalfOpenMaxRequests,
		SuccessThreshold:    DefaultSuccessThreshold,
	}
}
