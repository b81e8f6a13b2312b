// Package chain describes the EVM networks a query can target.
// A Target names a network either symbolically (a Chain from the catalogue)
// or by a raw JSON-RPC URL.
package chain

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Chain is the symbolic name of a well-known EVM network
type Chain string

const (
	Ethereum  Chain = "ethereum"
	Sepolia   Chain = "sepolia"
	Holesky   Chain = "holesky"
	Arbitrum  Chain = "arbitrum"
	Base      Chain = "base"
	Blast     Chain = "blast"
	Optimism  Chain = "optimism"
	Polygon   Chain = "polygon"
	Mantle    Chain = "mantle"
	Zksync    Chain = "zksync"
	Taiko     Chain = "taiko"
	Celo      Chain = "celo"
	Avalanche Chain = "avalanche"
	Scroll    Chain = "scroll"
	Bnb       Chain = "bnb"
	Linea     Chain = "linea"
	Zora      Chain = "zora"
	Moonbeam  Chain = "moonbeam"
	Moonriver Chain = "moonriver"
	Ronin     Chain = "ronin"
	Fantom    Chain = "fantom"
	Kava      Chain = "kava"
	Gnosis    Chain = "gnosis"
)

// Sentinel errors for chain parsing and lookup
var (
	ErrUnknownChain   = errors.New("unknown chain")
	ErrInvalidRPCURL  = errors.New("invalid rpc url")
	ErrEmptyTarget    = errors.New("chain or rpc url is required")
	ErrUnknownChainID = errors.New("unknown chain id")
)

// spec holds the static facts of a catalogue entry
type spec struct {
	id     uint64
	rpcURL string
}

var catalogue = map[Chain]spec{
	Ethereum:  {id: 1, rpcURL: "https://ethereum-rpc.publicnode.com"},
	Sepolia:   {id: 11155111, rpcURL: "https://ethereum-sepolia-rpc.publicnode.com"},
	Holesky:   {id: 17000, rpcURL: "https://ethereum-holesky-rpc.publicnode.com"},
	Arbitrum:  {id: 42161, rpcURL: "https://arbitrum-one-rpc.publicnode.com"},
	Base:      {id: 8453, rpcURL: "https://base-rpc.publicnode.com"},
	Blast:     {id: 81457, rpcURL: "https://rpc.blast.io"},
	Optimism:  {id: 10, rpcURL: "https://optimism-rpc.publicnode.com"},
	Polygon:   {id: 137, rpcURL: "https://polygon-bor-rpc.publicnode.com"},
	Mantle:    {id: 5000, rpcURL: "https://rpc.mantle.xyz"},
	Zksync:    {id: 324, rpcURL: "https://mainnet.era.zksync.io"},
	Taiko:     {id: 167000, rpcURL: "https://rpc.mainnet.taiko.xyz"},
	Celo:      {id: 42220, rpcURL: "https://forno.celo.org"},
	Avalanche: {id: 43114, rpcURL: "https://avalanche-c-chain-rpc.publicnode.com"},
	Scroll:    {id: 534352, rpcURL: "https://rpc.scroll.io"},
	Bnb:       {id: 56, rpcURL: "https://bsc-rpc.publicnode.com"},
	Linea:     {id: 59144, rpcURL: "https://rpc.linea.build"},
	Zora:      {id: 7777777, rpcURL: "https://rpc.zora.energy"},
	Moonbeam:  {id: 1284, rpcURL: "https://rpc.api.moonbeam.network"},
	Moonriver: {id: 1285, rpcURL: "https://rpc.api.moonriver.moonbeam.network"},
	Ronin:     {id: 2020, rpcURL: "https://api.roninchain.com/rpc"},
	Fantom:    {id: 250, rpcURL: "https://rpc.ftm.tools"},
	Kava:      {id: 2222, rpcURL: "https://evm.kava.io"},
	Gnosis:    {id: 100, rpcURL: "https://rpc.gnosischain.com"},
}

// aliases maps alternative spellings accepted by Parse
var aliases = map[string]Chain{
	"eth":     Ethereum,
	"mainnet": Ethereum,
	"arb":     Arbitrum,
	"op":      Optimism,
	"matic":   Polygon,
	"bsc":     Bnb,
	"avax":    Avalanche,
	"ftm":     Fantom,
	"xdai":    Gnosis,
}

// Parse returns the catalogue chain for name (case-insensitive, aliases allowed)
func Parse(name string) (Chain, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if _, ok := catalogue[Chain(n)]; ok {
		return Chain(n), nil
	}
	if c, ok := aliases[n]; ok {
		return c, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownChain, name)
}

// FromID returns the catalogue chain with the given numeric chain id
func FromID(id uint64) (Chain, error) {
	for c, s := range catalogue {
		if s.id == id {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %d", ErrUnknownChainID, id)
}

// All returns every catalogue chain sorted by name
func All() []Chain {
	chains := make([]Chain, 0, len(catalogue))
	for c := range catalogue {
		chains = append(chains, c)
	}
	sort.Slice(chains, func(i, j int) bool { return chains[i] < chains[j] })
	return chains
}

// ID returns the numeric chain id, or 0 for chains outside the catalogue
func (c Chain) ID() uint64 {
	return catalogue[c].id
}

// RPCURL returns the default public endpoint of the chain
func (c Chain) RPCURL() string {
	return catalogue[c].rpcURL
}

// Known reports whether c is in the catalogue
func (c Chain) Known() bool {
	_, ok := catalogue[c]
	return ok
}

func (c Chain) String() string {
	return string(c)
}

// Info is the chain descriptor stamped onto result rows
type Info struct {
	Name   string `json:"name"`
	ID     uint64 `json:"id"`
	RPCURL string `json:"rpcUrl,omitempty"`
}

// InfoFor builds the descriptor for a catalogue chain reached through rpcURL
func InfoFor(c Chain, rpcURL string) Info {
	return Info{Name: c.String(), ID: c.ID(), RPCURL: rpcURL}
}

// Target identifies a network by catalogue name or by explicit RPC URL.
// Exactly one of the two is set.
type Target struct {
	chain  Chain
	rpcURL string
}

// ForChain returns a Target naming a catalogue chain
func ForChain(c Chain) Target {
	return Target{chain: c}
}

// ForRPC returns a Target for an explicit endpoint
func ForRPC(rawURL string) (Target, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Target{}, fmt.Errorf("%w: %v", ErrInvalidRPCURL, err)
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return Target{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidRPCURL, u.Scheme)
	}
	if u.Host == "" {
		return Target{}, fmt.Errorf("%w: missing host", ErrInvalidRPCURL)
	}
	return Target{rpcURL: rawURL}, nil
}

// ParseTarget accepts either a chain name or an RPC URL
func ParseTarget(s string) (Target, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Target{}, ErrEmptyTarget
	}
	if strings.Contains(s, "://") {
		return ForRPC(s)
	}
	c, err := Parse(s)
	if err != nil {
		return Target{}, err
	}
	return ForChain(c), nil
}

// ParseTargets splits a comma separated list of chain names or URLs
func ParseTargets(s string) ([]Target, error) {
	var targets []Target
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		t, err := ParseTarget(part)
		if err != nil {
			return nil, err
		}
		targets = append(targets, t)
	}
	if len(targets) == 0 {
		return nil, ErrEmptyTarget
	}
	return targets, nil
}

// Chain returns the catalogue chain and true when the target is symbolic
func (t Target) Chain() (Chain, bool) {
	return t.chain, t.chain != ""
}

// RPCURL returns the explicit endpoint, or the catalogue default for symbolic targets
func (t Target) RPCURL() string {
	if t.rpcURL != "" {
		return t.rpcURL
	}
	return t.chain.RPCURL()
}

// IsZero reports whether the target is unset
func (t Target) IsZero() bool {
	return t.chain == "" && t.rpcURL == ""
}

func (t Target) String() string {
	if t.chain != "" {
		return t.chain.String()
	}
	return t.rpcURL
}

// MarshalText implements encoding.TextMarshaler
func (t Target) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (t *Target) UnmarshalText(text []byte) error {
	parsed, err := ParseTarget(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
