// Command chainquery resolves EVM accounts and transactions across chains.
//
// Usage:
//
//	chainquery accounts -chains ethereum,base -ids vitalik.eth,0x... -fields balance,nonce
//	chainquery txs -chains ethereum -block 10000000:10000015 -where 'gas<=22000' -fields all
//	chainquery serve -config chainquery.yaml
//
// Query rows are written to stdout as JSON lines; logs go to stderr.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/0xmhha/chainquery/internal/config"
	"github.com/0xmhha/chainquery/pkg/api"
	"github.com/0xmhha/chainquery/pkg/types"
	"github.com/0xmhha/chainquery/pkg/types/chain"
)

var (
	// Version information (injected at build time)
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

const usage = `usage: chainquery <accounts|txs|serve|version> [flags]

  accounts  resolve account fields for addresses or ENS names
  txs       resolve transactions by hash and/or block, filtered by predicates
  serve     start the HTTP API
  version   print version information

Run "chainquery <mode> -h" for the flags of a mode.
`

// errUsage is returned for a malformed command line
var errUsage = errors.New("invalid usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr, prometheus.DefaultRegisterer); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "chainquery: %v\n", err)
		}
		if errors.Is(err, errUsage) || errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

// run executes one mode. Rows go to stdout, diagnostics to stderr.
func run(ctx context.Context, args []string, stdout, stderr io.Writer, reg prometheus.Registerer) error {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return errUsage
	}

	mode, rest := args[0], args[1:]
	switch mode {
	case "accounts":
		return runAccounts(ctx, rest, stdout, stderr, reg)
	case "txs", "transactions":
		return runTransactions(ctx, rest, stdout, stderr, reg)
	case "serve":
		return runServe(ctx, rest, stderr, reg)
	case "version", "-version", "--version":
		fmt.Fprintf(stdout, "chainquery version %s\n  commit: %s\n  built:  %s\n", version, commit, buildTime)
		return nil
	case "help", "-h", "-help", "--help":
		fmt.Fprint(stdout, usage)
		return nil
	default:
		fmt.Fprint(stderr, usage)
		return fmt.Errorf("%w: unknown mode %q", errUsage, mode)
	}
}

// commonFlags are shared by every mode
type commonFlags struct {
	configFile string
	envFile    string
	logLevel   string
	logFormat  string
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configFile, "config", "", "Path to configuration file (YAML)")
	fs.StringVar(&c.envFile, "env", "", "Path to a dotenv file (default: .env when present)")
	fs.StringVar(&c.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&c.logFormat, "log-format", "", "Log format (json, console)")
}

// load reads the configuration and applies flag overrides
func (c *commonFlags) load() (*config.Config, error) {
	var envFiles []string
	if c.envFile != "" {
		envFiles = append(envFiles, c.envFile)
	}
	cfg, err := config.Load(c.configFile, envFiles...)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if c.logLevel != "" {
		cfg.Log.Level = c.logLevel
	}
	if c.logFormat != "" {
		cfg.Log.Format = c.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// listFlag collects a repeatable flag
type listFlag []string

func (l *listFlag) String() string { return strings.Join(*l, " ") }

func (l *listFlag) Set(v string) error {
	*l = append(*l, v)
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet("chainquery "+name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func runAccounts(ctx context.Context, args []string, stdout, stderr io.Writer, reg prometheus.Registerer) error {
	var (
		flags  commonFlags
		chains string
		ids    string
		fields string
	)
	fs := newFlagSet("accounts", stderr)
	flags.register(fs)
	fs.StringVar(&chains, "chains", chain.Ethereum.String(), "Comma separated chain names or RPC URLs")
	fs.StringVar(&ids, "ids", "", "Comma separated addresses or ENS names")
	fs.StringVar(&fields, "fields", "all", "Comma separated account fields, or all")
	if err := fs.Parse(args); err != nil {
		return err
	}

	entityIDs, err := types.AccountIDs(splitList(ids))
	if err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	accountFields, err := types.ParseAccountFields(splitList(fields))
	if err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	targets, err := chain.ParseTargets(chains)
	if err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	cfg, err := flags.load()
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg, reg)
	if err != nil {
		return err
	}
	defer a.close(context.WithoutCancel(ctx))

	results, err := a.engine.ResolveAccounts(ctx, entityIDs, accountFields, targets)
	if err != nil {
		return err
	}
	return writeJSONLines(stdout, results)
}

func runTransactions(ctx context.Context, args []string, stdout, stderr io.Writer, reg prometheus.Registerer) error {
	var (
		flags  commonFlags
		chains string
		hashes string
		block  string
		where  listFlag
		fields string
	)
	fs := newFlagSet("txs", stderr)
	flags.register(fs)
	fs.StringVar(&chains, "chains", chain.Ethereum.String(), "Comma separated chain names or RPC URLs")
	fs.StringVar(&hashes, "hashes", "", "Comma separated transaction hashes")
	fs.StringVar(&block, "block", "", `Block number, tag or range "start:end"`)
	fs.Var(&where, "where", `Predicate such as "gas<=22000" (repeatable)`)
	fs.StringVar(&fields, "fields", "all", "Comma separated transaction fields, or all")
	if err := fs.Parse(args); err != nil {
		return err
	}

	q, err := buildTransactionQuery(splitList(hashes), block, where, splitList(fields))
	if err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	targets, err := chain.ParseTargets(chains)
	if err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	cfg, err := flags.load()
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg, reg)
	if err != nil {
		return err
	}
	defer a.close(context.WithoutCancel(ctx))

	results, err := a.engine.ResolveTransactions(ctx, q, targets)
	if err != nil {
		return err
	}
	return writeJSONLines(stdout, results)
}

// buildTransactionQuery parses the txs flags. A query with neither hashes nor
// block is passed through; the resolver rejects it.
func buildTransactionQuery(hashes []string, block string, where []string, fields []string) (*types.TransactionQuery, error) {
	q := &types.TransactionQuery{}
	for _, h := range hashes {
		b, err := hexutil.Decode(h)
		if err != nil || len(b) != common.HashLength {
			return nil, fmt.Errorf("invalid transaction hash %q", h)
		}
		q.IDs = append(q.IDs, common.BytesToHash(b))
	}
	if block != "" {
		id, err := types.ParseBlockID(block)
		if err != nil {
			return nil, err
		}
		q.Block = &id
	}
	for _, expr := range where {
		p, err := types.ParsePredicateExpr(expr)
		if err != nil {
			return nil, err
		}
		q.Predicates = append(q.Predicates, p)
	}
	f, err := types.ParseTransactionFields(fields)
	if err != nil {
		return nil, err
	}
	q.Fields = f
	return q, nil
}

func runServe(ctx context.Context, args []string, stderr io.Writer, reg prometheus.Registerer) error {
	var (
		flags commonFlags
		host  string
		port  int
	)
	fs := newFlagSet("serve", stderr)
	flags.register(fs)
	fs.StringVar(&host, "host", "", "API server host")
	fs.IntVar(&port, "port", 0, "API server port")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := flags.load()
	if err != nil {
		return err
	}
	if host != "" {
		cfg.API.Host = host
	}
	if port != 0 {
		cfg.API.Port = port
	}

	a, err := newApp(ctx, cfg, reg)
	if err != nil {
		return err
	}
	defer a.close(context.WithoutCancel(ctx))

	server, err := api.NewServer(a.apiConfig(), a.engine, a.gateway, a.log)
	if err != nil {
		return err
	}

	a.log.Info("starting chainquery",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("build_time", buildTime),
	)

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Start()
	}()

	select {
	case <-ctx.Done():
		a.log.Info("received shutdown signal")
	case err := <-errChan:
		return err
	}

	return server.Stop(context.WithoutCancel(ctx))
}

// writeJSONLines writes one JSON document per row
func writeJSONLines[T any](w io.Writer, rows []T) error {
	enc := json.NewEncoder(w)
	for _, row := range rows {
		if err := enc.Encode(row); err != nil {
			return fmt.Errorf("failed to write result: %w", err)
		}
	}
	return nil
}
