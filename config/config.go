package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// TLSConfig holds paths to the PEM files needed for mTLS.
// When nil or all paths empty, the node falls back to plain WebSocket.
type TLSConfig struct {
	CACert   string `json:"ca_cert"`   // CA certificate PEM path
	NodeCert string `json:"node_cert"` // node certificate PEM path
	NodeKey  string `json:"node_key"`  // node private key PEM path
}

// SeedPeer identifies a remote node to connect to on startup.
type SeedPeer struct {
	ID  string `json:"id"`  // remote node ID
	URL string `json:"url"` // ws:// or wss:// endpoint
}

// Config holds all node configuration.
type Config struct {
	NodeID  string `json:"node_id"`
	DataDir string `json:"data_dir"`
	RPCPort int    `json:"rpc_port"`
	P2PPort int    `json:"p2p_port"`

	// ChainMaxLength is the ChainStore ring capacity (spec.md §6).
	ChainMaxLength int `json:"chain_max_length"`
	// TickPeriodMillis, SelectGraceMillis, ResyncGraceMillis are the
	// scheduler's three configured waits (spec.md §6), in milliseconds
	// for JSON round-tripping (time.Duration's text form isn't a plain
	// int and the teacher's config is all plain JSON scalars).
	TickPeriodMillis  int64 `json:"tick_period_millis"`
	SelectGraceMillis int64 `json:"select_grace_millis"`
	ResyncGraceMillis int64 `json:"resync_grace_millis"`

	// DifficultyTargetHex is the PoW threshold consumed by crypto.Mine
	// (spec.md §6 difficulty_target).
	DifficultyTargetHex string `json:"difficulty_target_hex"`

	MinPeers     int        `json:"min_peers"`               // peers required before Networker.Ready()
	SeedPeers    []SeedPeer `json:"seed_peers,omitempty"`     // initial peers to connect to
	TLS          *TLSConfig `json:"tls,omitempty"`            // nil → plain WebSocket
	RPCAuthToken string     `json:"rpc_auth_token,omitempty"` // empty → no auth
}

// TickPeriod, SelectGrace, and ResyncGrace convert the config's millisecond
// fields to time.Duration for use by consensus.Scheduler and
// clock.ForkResolver.
func (c *Config) TickPeriod() time.Duration  { return time.Duration(c.TickPeriodMillis) * time.Millisecond }
func (c *Config) SelectGrace() time.Duration { return time.Duration(c.SelectGraceMillis) * time.Millisecond }
func (c *Config) ResyncGrace() time.Duration { return time.Duration(c.ResyncGraceMillis) * time.Millisecond }

// DefaultConfig returns a single-node development configuration. The
// difficulty target is intentionally easy (about 1 in 256 digests
// admissible) so a development node mines pings/ticks in milliseconds;
// production deployments tighten it.
func DefaultConfig() *Config {
	return &Config{
		NodeID:              "node0",
		DataDir:             "./data",
		RPCPort:             8545,
		P2PPort:             30303,
		ChainMaxLength:      1000,
		TickPeriodMillis:    5000,
		SelectGraceMillis:   10000,
		ResyncGraceMillis:   5000,
		DifficultyTargetHex: "00ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff",
		MinPeers:            0,
	}
}

// Load reads a JSON config file from path and validates required fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// Validate checks that all required fields are present and well-formed.
func (c *Config) Validate() error {
	if c.NodeID == "" {
		return fmt.Errorf("node_id must not be empty")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	if c.RPCPort <= 0 || c.RPCPort > 65535 {
		return fmt.Errorf("rpc_port must be 1-65535, got %d", c.RPCPort)
	}
	if c.P2PPort <= 0 || c.P2PPort > 65535 {
		return fmt.Errorf("p2p_port must be 1-65535, got %d", c.P2PPort)
	}
	if c.RPCPort == c.P2PPort {
		return fmt.Errorf("rpc_port and p2p_port must not be the same (%d)", c.RPCPort)
	}
	if c.ChainMaxLength <= 0 {
		return fmt.Errorf("chain_max_length must be positive, got %d", c.ChainMaxLength)
	}
	if c.TickPeriodMillis <= 0 || c.SelectGraceMillis <= 0 || c.ResyncGraceMillis <= 0 {
		return fmt.Errorf("tick_period_millis, select_grace_millis, resync_grace_millis must all be positive")
	}
	if c.DifficultyTargetHex == "" {
		return fmt.Errorf("difficulty_target_hex must not be empty")
	}
	if c.MinPeers < 0 {
		return fmt.Errorf("min_peers must be >= 0, got %d", c.MinPeers)
	}
	if c.TLS != nil {
		t := c.TLS
		allSet := t.CACert != "" && t.NodeCert != "" && t.NodeKey != ""
		allEmpty := t.CACert == "" && t.NodeCert == "" && t.NodeKey == ""
		if !allSet && !allEmpty {
			return fmt.Errorf("tls: all three paths (ca_cert, node_cert, node_key) must be set or all empty")
		}
	}
	return nil
}

// Save writes the config to path as formatted JSON.
func Save(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
