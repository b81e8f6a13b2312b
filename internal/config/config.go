package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/0xmhha/chainquery/internal/constants"
	"github.com/0xmhha/chainquery/pkg/types/chain"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "CHAINQUERY_"

// DefaultEnvFile is read when present and no env file is named explicitly
const DefaultEnvFile = ".env"

// Config holds all configuration for chainquery
type Config struct {
	RPC       RPCConfig         `yaml:"rpc"`
	Log       LogConfig         `yaml:"log"`
	Query     QueryConfig       `yaml:"query"`
	Fetch     FetchConfig       `yaml:"fetch"`
	ENS       ENSConfig         `yaml:"ens"`
	Chains    map[string]string `yaml:"chains"`
	API       APIConfig         `yaml:"api"`
	Telemetry TelemetryConfig   `yaml:"telemetry"`
}

// RPCConfig holds settings shared by every dialed endpoint
type RPCConfig struct {
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	MaxRawClients     int           `yaml:"max_raw_clients"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// QueryConfig holds resolver configuration
type QueryConfig struct {
	// MaxConcurrency bounds in-flight ids or transactions per chain
	MaxConcurrency int `yaml:"max_concurrency"`
}

// FetchConfig holds block fetching configuration
type FetchConfig struct {
	BatchSize            int    `yaml:"batch_size"`
	MaxConcurrentBatches int    `yaml:"max_concurrent_batches"`
	MaxBlockRange        uint64 `yaml:"max_block_range"`
}

// ENSConfig holds name resolution configuration
type ENSConfig struct {
	// CanonicalChain is the chain names are resolved on, whatever the query targets
	CanonicalChain string `yaml:"canonical_chain"`
	Registry       string `yaml:"registry"`
}

// APIConfig holds HTTP server configuration
type APIConfig struct {
	Host               string        `yaml:"host"`
	Port               int           `yaml:"port"`
	ReadTimeout        time.Duration `yaml:"read_timeout"`
	WriteTimeout       time.Duration `yaml:"write_timeout"`
	IdleTimeout        time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout    time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes       int64         `yaml:"max_body_bytes"`
	EnableRateLimit    bool          `yaml:"enable_rate_limit"`
	RateLimitPerSecond float64       `yaml:"rate_limit_per_second"`
	RateLimitBurst     int           `yaml:"rate_limit_burst"`
	AllowRPCURLs       bool          `yaml:"allow_rpc_urls"`
}

// TelemetryConfig holds tracing configuration
type TelemetryConfig struct {
	// OTLPEndpoint is the OTLP/HTTP collector; empty disables export
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	ServiceName  string `yaml:"service_name"`
	Insecure     bool   `yaml:"insecure"`
}

// NewConfig creates a new Config with default values
func NewConfig() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

// SetDefaults sets default values for the configuration
func (c *Config) SetDefaults() {
	// RPC defaults
	if c.RPC.Timeout == 0 {
		c.RPC.Timeout = constants.DefaultRPCTimeout
	}
	if c.RPC.Burst == 0 {
		c.RPC.Burst = constants.DefaultRPCBurst
	}
	if c.RPC.MaxRawClients == 0 {
		c.RPC.MaxRawClients = constants.DefaultMaxRawClients
	}

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}

	// Query defaults
	if c.Query.MaxConcurrency == 0 {
		c.Query.MaxConcurrency = constants.DefaultMaxConcurrency
	}

	// Fetch defaults
	if c.Fetch.BatchSize == 0 {
		c.Fetch.BatchSize = constants.DefaultBatchSize
	}
	if c.Fetch.MaxConcurrentBatches == 0 {
		c.Fetch.MaxConcurrentBatches = constants.DefaultMaxConcurrentBatches
	}
	if c.Fetch.MaxBlockRange == 0 {
		c.Fetch.MaxBlockRange = constants.DefaultMaxBlockRange
	}

	// ENS defaults
	if c.ENS.CanonicalChain == "" {
		c.ENS.CanonicalChain = constants.DefaultENSCanonicalChain
	}
	if c.ENS.Registry == "" {
		c.ENS.Registry = constants.DefaultENSRegistry
	}

	if c.Chains == nil {
		c.Chains = make(map[string]string)
	}

	// API defaults
	if c.API.Host == "" {
		c.API.Host = constants.DefaultAPIHost
	}
	if c.API.Port == 0 {
		c.API.Port = constants.DefaultAPIPort
	}
	if c.API.ReadTimeout == 0 {
		c.API.ReadTimeout = constants.DefaultReadTimeout
	}
	if c.API.WriteTimeout == 0 {
		c.API.WriteTimeout = constants.DefaultWriteTimeout
	}
	if c.API.IdleTimeout == 0 {
		c.API.IdleTimeout = constants.DefaultIdleTimeout
	}
	if c.API.ShutdownTimeout == 0 {
		c.API.ShutdownTimeout = constants.DefaultShutdownTimeout
	}
	if c.API.MaxBodyBytes == 0 {
		c.API.MaxBodyBytes = constants.DefaultMaxBodyBytes
	}
	if c.API.RateLimitPerSecond == 0 {
		c.API.RateLimitPerSecond = constants.DefaultRateLimitPerSecond
	}
	if c.API.RateLimitBurst == 0 {
		c.API.RateLimitBurst = constants.DefaultRateLimitBurst
	}

	// Telemetry defaults
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = constants.DefaultServiceName
	}
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// LoadEnvFiles exports the variables of dotenv files without overriding the
// process environment. A missing DefaultEnvFile is ignored.
func LoadEnvFiles(files ...string) error {
	if len(files) == 0 {
		if err := godotenv.Load(DefaultEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", DefaultEnvFile, err)
		}
		return nil
	}
	if err := godotenv.Load(files...); err != nil {
		return fmt.Errorf("failed to load env files: %w", err)
	}
	return nil
}

// LoadFromEnv loads configuration overrides from CHAINQUERY_* variables
func (c *Config) LoadFromEnv() error {
	// RPC configuration
	if err := envDuration("RPC_TIMEOUT", &c.RPC.Timeout); err != nil {
		return err
	}
	if err := envFloat("RPC_REQUESTS_PER_SECOND", &c.RPC.RequestsPerSecond); err != nil {
		return err
	}
	if err := envInt("RPC_BURST", &c.RPC.Burst); err != nil {
		return err
	}
	if err := envInt("RPC_MAX_RAW_CLIENTS", &c.RPC.MaxRawClients); err != nil {
		return err
	}

	// Log configuration
	envString("LOG_LEVEL", &c.Log.Level)
	envString("LOG_FORMAT", &c.Log.Format)

	// Query configuration
	if err := envInt("QUERY_MAX_CONCURRENCY", &c.Query.MaxConcurrency); err != nil {
		return err
	}

	// Fetch configuration
	if err := envInt("FETCH_BATCH_SIZE", &c.Fetch.BatchSize); err != nil {
		return err
	}
	if err := envInt("FETCH_MAX_CONCURRENT_BATCHES", &c.Fetch.MaxConcurrentBatches); err != nil {
		return err
	}
	if v, ok := lookup("FETCH_MAX_BLOCK_RANGE"); ok {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid %sFETCH_MAX_BLOCK_RANGE: %w", EnvPrefix, err)
		}
		c.Fetch.MaxBlockRange = n
	}

	// ENS configuration
	envString("ENS_CANONICAL_CHAIN", &c.ENS.CanonicalChain)
	envString("ENS_REGISTRY", &c.ENS.Registry)

	// Per-chain endpoints, e.g. CHAINQUERY_RPC_URL_ETHEREUM
	for _, name := range chain.All() {
		if url, ok := lookup("RPC_URL_" + strings.ToUpper(name.String())); ok {
			if c.Chains == nil {
				c.Chains = make(map[string]string)
			}
			c.Chains[name.String()] = url
		}
	}

	// API configuration
	envString("API_HOST", &c.API.Host)
	if err := envInt("API_PORT", &c.API.Port); err != nil {
		return err
	}
	if v, ok := lookup("API_RATE_LIMIT_ENABLED"); ok {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %sAPI_RATE_LIMIT_ENABLED: %w", EnvPrefix, err)
		}
		c.API.EnableRateLimit = enabled
	}
	if err := envFloat("API_RATE_LIMIT_PER_SECOND", &c.API.RateLimitPerSecond); err != nil {
		return err
	}
	if err := envInt("API_RATE_LIMIT_BURST", &c.API.RateLimitBurst); err != nil {
		return err
	}
	if v, ok := lookup("API_ALLOW_RPC_URLS"); ok {
		allowed, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %sAPI_ALLOW_RPC_URLS: %w", EnvPrefix, err)
		}
		c.API.AllowRPCURLs = allowed
	}

	// Telemetry configuration
	envString("OTLP_ENDPOINT", &c.Telemetry.OTLPEndpoint)
	envString("SERVICE_NAME", &c.Telemetry.ServiceName)

	return nil
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(EnvPrefix + key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func envString(key string, dst *string) {
	if v, ok := lookup(key); ok {
		*dst = v
	}
}

func envInt(key string, dst *int) error {
	v, ok := lookup(key)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s%s: %w", EnvPrefix, key, err)
	}
	*dst = n
	return nil
}

func envFloat(key string, dst *float64) error {
	v, ok := lookup(key)
	if !ok {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("invalid %s%s: %w", EnvPrefix, key, err)
	}
	*dst = f
	return nil
}

func envDuration(key string, dst *time.Duration) error {
	v, ok := lookup(key)
	if !ok {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s%s: %w", EnvPrefix, key, err)
	}
	*dst = d
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// Validate RPC configuration
	if c.RPC.Timeout <= 0 {
		return fmt.Errorf("RPC timeout must be positive")
	}
	if c.RPC.RequestsPerSecond < 0 {
		return fmt.Errorf("RPC requests per second cannot be negative")
	}
	if c.RPC.RequestsPerSecond > 0 && c.RPC.Burst <= 0 {
		return fmt.Errorf("RPC burst must be positive when throttling")
	}
	if c.RPC.MaxRawClients < 0 {
		return fmt.Errorf("RPC max raw clients cannot be negative")
	}

	// Validate log configuration
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.Log.Level] {
		return fmt.Errorf("invalid log level %q, must be one of: debug, info, warn, error", c.Log.Level)
	}

	validLogFormats := map[string]bool{
		"json":    true,
		"console": true,
	}
	if !validLogFormats[c.Log.Format] {
		return fmt.Errorf("invalid log format %q, must be one of: json, console", c.Log.Format)
	}

	// Validate query and fetch configuration
	if c.Query.MaxConcurrency < 0 {
		return fmt.Errorf("query max concurrency cannot be negative")
	}
	if c.Fetch.BatchSize <= 0 {
		return fmt.Errorf("fetch batch size must be positive")
	}
	if c.Fetch.MaxConcurrentBatches < 0 {
		return fmt.Errorf("fetch max concurrent batches cannot be negative")
	}

	// Validate ENS configuration
	if _, err := chain.Parse(c.ENS.CanonicalChain); err != nil {
		return fmt.Errorf("invalid ENS canonical chain: %w", err)
	}
	if !common.IsHexAddress(c.ENS.Registry) {
		return fmt.Errorf("invalid ENS registry address %q", c.ENS.Registry)
	}

	// Validate chain endpoints
	if _, err := c.ChainOverrides(); err != nil {
		return err
	}

	// Validate API configuration
	if c.API.Port < constants.MinPort || c.API.Port > constants.MaxPort {
		return fmt.Errorf("API port must be between %d and %d", constants.MinPort, constants.MaxPort)
	}
	if c.API.MaxBodyBytes <= 0 {
		return fmt.Errorf("API max body bytes must be positive")
	}
	if c.API.EnableRateLimit && (c.API.RateLimitPerSecond <= 0 || c.API.RateLimitBurst <= 0) {
		return fmt.Errorf("API rate limit and burst must be positive when rate limiting is enabled")
	}

	return nil
}

// ChainOverrides returns the configured endpoint of each named chain
func (c *Config) ChainOverrides() (map[chain.Chain]string, error) {
	overrides := make(map[chain.Chain]string, len(c.Chains))
	for name, url := range c.Chains {
		ch, err := chain.Parse(name)
		if err != nil {
			return nil, fmt.Errorf("invalid chain %q: %w", name, err)
		}
		if _, err := chain.ForRPC(url); err != nil {
			return nil, fmt.Errorf("invalid RPC URL for chain %s: %w", name, err)
		}
		overrides[ch] = url
	}
	return overrides, nil
}

// CanonicalChain returns the chain ENS names are resolved on
func (c *Config) CanonicalChain() chain.Chain {
	ch, err := chain.Parse(c.ENS.CanonicalChain)
	if err != nil {
		return chain.Ethereum
	}
	return ch
}

// Load is a convenience method that loads configuration in the following order:
// 1. Set defaults
// 2. Load from file (if provided)
// 3. Export dotenv files (DefaultEnvFile when none are named)
// 4. Load from environment variables (override file)
// 5. Validate
func Load(configFile string, envFiles ...string) (*Config, error) {
	cfg := NewConfig()

	// Load from file if provided
	if configFile != "" {
		if err := cfg.LoadFromFile(configFile); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := LoadEnvFiles(envFiles...); err != nil {
		return nil, err
	}

	// Load from environment variables (override file)
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	// Set defaults for any missing values
	cfg.SetDefaults()

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}
