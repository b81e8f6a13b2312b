package main

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/0xmhha/chainquery/internal/config"
	"github.com/0xmhha/chainquery/internal/logger"
	"github.com/0xmhha/chainquery/internal/telemetry"
	"github.com/0xmhha/chainquery/pkg/api"
	"github.com/0xmhha/chainquery/pkg/ens"
	"github.com/0xmhha/chainquery/pkg/fetch"
	"github.com/0xmhha/chainquery/pkg/metrics"
	"github.com/0xmhha/chainquery/pkg/multichain"
	"github.com/0xmhha/chainquery/pkg/resolver"
	"github.com/0xmhha/chainquery/pkg/types/chain"
)

// app holds the components shared by every mode
type app struct {
	cfg     *config.Config
	log     *zap.Logger
	gateway *multichain.Gateway
	engine  *resolver.Engine

	shutdownTracer telemetry.ShutdownFunc
}

// newApp wires logger, tracing, metrics, gateway, name resolver and engine from cfg.
// Metrics register on reg.
func newApp(ctx context.Context, cfg *config.Config, reg prometheus.Registerer) (*app, error) {
	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.OTLPEndpoint, cfg.Telemetry.Insecure)
	if err != nil {
		log.Warn("tracing disabled", zap.Error(err))
	}

	m := metrics.New(reg, "")

	overrides, err := cfg.ChainOverrides()
	if err != nil {
		return nil, err
	}
	gateway, err := multichain.NewGateway(&multichain.Config{
		Overrides:         overrides,
		Timeout:           cfg.RPC.Timeout,
		RequestsPerSecond: cfg.RPC.RequestsPerSecond,
		Burst:             cfg.RPC.Burst,
		MaxRawClients:     cfg.RPC.MaxRawClients,
	}, m, log)
	if err != nil {
		return nil, err
	}

	canonical := chain.ForChain(cfg.CanonicalChain())
	names := ens.NewResolver(func(ctx context.Context) (ens.ContractCaller, error) {
		c, err := gateway.Dial(ctx, canonical)
		if err != nil {
			return nil, err
		}
		return c, nil
	}, &ens.Config{Registry: common.HexToAddress(cfg.ENS.Registry)}, log)

	blocks := fetch.NewBlockResolver(&fetch.Config{
		BatchSize:            cfg.Fetch.BatchSize,
		MaxConcurrentBatches: cfg.Fetch.MaxConcurrentBatches,
		MaxBlockRange:        cfg.Fetch.MaxBlockRange,
	}, log)

	engine, err := resolver.NewEngine(
		resolver.GatewayDialer(gateway),
		names,
		blocks,
		&resolver.Config{MaxConcurrency: cfg.Query.MaxConcurrency},
		m,
		log,
	)
	if err != nil {
		gateway.Close()
		return nil, err
	}

	return &app{
		cfg:            cfg,
		log:            log,
		gateway:        gateway,
		engine:         engine,
		shutdownTracer: shutdownTracer,
	}, nil
}

// apiConfig maps the api section of the configuration onto the server config
func (a *app) apiConfig() *api.Config {
	c := a.cfg.API
	return &api.Config{
		Host:               c.Host,
		Port:               c.Port,
		ReadTimeout:        c.ReadTimeout,
		WriteTimeout:       c.WriteTimeout,
		IdleTimeout:        c.IdleTimeout,
		MaxHeaderBytes:     api.DefaultConfig().MaxHeaderBytes,
		MaxBodyBytes:       c.MaxBodyBytes,
		ShutdownTimeout:    c.ShutdownTimeout,
		EnableRateLimit:    c.EnableRateLimit,
		RateLimitPerSecond: c.RateLimitPerSecond,
		RateLimitBurst:     c.RateLimitBurst,
		AllowRPCURLs:       c.AllowRPCURLs,
		Version:            version,
	}
}

func (a *app) close(ctx context.Context) {
	a.gateway.Close()
	if a.shutdownTracer != nil {
		if err := a.shutdownTracer(ctx); err != nil {
			a.log.Warn("failed to flush traces", zap.Error(err))
		}
	}
	_ = a.log.Sync()
}
