package constants

import "time"

// API Server Constants
const (
	// DefaultAPIHost is the default API server host
	DefaultAPIHost = "localhost"

	// DefaultAPIPort is the default API server port
	DefaultAPIPort = 8080

	// MinPort is the minimum valid port number
	MinPort = 1

	// MaxPort is the maximum valid port number
	MaxPort = 65535

	// DefaultReadTimeout is the default HTTP read timeout
	DefaultReadTimeout = 15 * time.Second

	// DefaultWriteTimeout is the default HTTP write timeout
	DefaultWriteTimeout = 120 * time.Second

	// DefaultIdleTimeout is the default HTTP idle timeout
	DefaultIdleTimeout = 60 * time.Second

	// DefaultShutdownTimeout is the default graceful shutdown timeout
	DefaultShutdownTimeout = 30 * time.Second

	// DefaultMaxHeaderBytes is the default maximum request header size (1 MB)
	DefaultMaxHeaderBytes = 1 << 20 // 1 MB

	// DefaultMaxBodyBytes caps the size of a query request body
	DefaultMaxBodyBytes = 1 << 20

	// DefaultRateLimitPerSecond is the default API rate limit (requests per second)
	DefaultRateLimitPerSecond = 50

	// DefaultRateLimitBurst is the default API rate limit burst size
	DefaultRateLimitBurst = 100
)

// API Paths
const (
	DefaultAccountsPath     = "/v1/accounts"
	DefaultTransactionsPath = "/v1/transactions"
	DefaultHealthPath       = "/health"
	DefaultVersionPath      = "/version"
	DefaultMetricsPath      = "/metrics"
)

// RPC Client Constants
const (
	// DefaultRPCTimeout bounds dialing and each JSON-RPC call
	DefaultRPCTimeout = 30 * time.Second

	// DefaultRPCRequestsPerSecond is the per-endpoint call rate; 0 disables throttling
	DefaultRPCRequestsPerSecond = 0

	// DefaultRPCBurst is the per-endpoint burst when throttling is enabled
	DefaultRPCBurst = 20

	// DefaultMaxRawClients bounds the clients kept for raw RPC URL targets
	DefaultMaxRawClients = 32
)

// Query Constants
const (
	// DefaultMaxConcurrency bounds per-entity fan-out inside one chain; 0 means unbounded
	DefaultMaxConcurrency = 64

	// DefaultBatchSize is the default number of blocks per JSON-RPC batch
	DefaultBatchSize = 10

	// DefaultMaxConcurrentBatches bounds block batches in flight
	DefaultMaxConcurrentBatches = 4

	// DefaultMaxBlockRange caps the span of one block range query
	DefaultMaxBlockRange = 10_000
)

// ENS Constants
const (
	// DefaultENSCanonicalChain is the network ENS names are always resolved on
	DefaultENSCanonicalChain = "ethereum"

	// DefaultENSRegistry is the ENS registry deployed on Ethereum mainnet
	DefaultENSRegistry = "0x00000000000C2E074eC69A0dFb2997BA6C7d2e1e"
)

// Telemetry Constants
const (
	// DefaultServiceName identifies this process in traces
	DefaultServiceName = "chainquery"
)

// Metrics Constants
const (
	// DefaultMetricsNamespace prefixes every Prometheus metric
	DefaultMetricsNamespace = "chainquery"
)
