package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/holiman/uint256"

	"github.com/landvn/landledger/audit"
	"github.com/landvn/landledger/ledger"
)

// GenesisConfig describes the ledger's initial state. Amounts are decimal
// strings so configs stay readable at wei scale.
type GenesisConfig struct {
	Admin         string            `json:"admin"`
	ListingFee    string            `json:"listing_fee"`
	CancelPenalty string            `json:"cancel_penalty"`
	Alloc         map[string]string `json:"alloc"` // address → initial balance
}

// IdentityConfig points at the node's identifier key files. PrivateKeyPath
// may be empty; such a node encrypts but answers "unavailable" on decrypt.
type IdentityConfig struct {
	PublicKeyPath  string `json:"public_key_path"`
	PrivateKeyPath string `json:"private_key_path"`
}

// Config holds all node configuration.
type Config struct {
	NodeID       string         `json:"node_id"`
	DataDir      string         `json:"data_dir"`
	RPCPort      int            `json:"rpc_port"`
	RPCAuthToken string         `json:"rpc_auth_token"` // empty → no auth
	Identity     IdentityConfig `json:"identity"`
	Audit        audit.Config   `json:"audit"`
	Genesis      GenesisConfig  `json:"genesis"`
}

// DefaultConfig returns a single-node development configuration.
func DefaultConfig() *Config {
	return &Config{
		NodeID:  "node0",
		DataDir: "./data",
		RPCPort: 8545,
		Identity: IdentityConfig{
			PublicKeyPath:  "./keys/identity.pub",
			PrivateKeyPath: "./keys/identity.key",
		},
		Audit: audit.Config{
			Enabled: false,
			Brokers: []string{"localhost:9092"},
			Topic:   "landledger.audit",
		},
		Genesis: GenesisConfig{
			Admin:         "admin",
			ListingFee:    "10000000000000000", // 0.01 unit
			CancelPenalty: "5000000000000000",  // 0.005 unit
			Alloc:         map[string]string{},
		},
	}
}

// Load reads a JSON config file from path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config to path as formatted JSON.
func Save(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// LedgerGenesis parses the genesis section's decimal amounts.
func (c *Config) LedgerGenesis() (*ledger.Genesis, error) {
	fee, err := uint256.FromDecimal(c.Genesis.ListingFee)
	if err != nil {
		return nil, fmt.Errorf("genesis listing_fee %q: %w", c.Genesis.ListingFee, err)
	}
	penalty, err := uint256.FromDecimal(c.Genesis.CancelPenalty)
	if err != nil {
		return nil, fmt.Errorf("genesis cancel_penalty %q: %w", c.Genesis.CancelPenalty, err)
	}
	alloc := make(map[string]*uint256.Int, len(c.Genesis.Alloc))
	for addr, raw := range c.Genesis.Alloc {
		bal, err := uint256.FromDecimal(raw)
		if err != nil {
			return nil, fmt.Errorf("genesis alloc %s %q: %w", addr, raw, err)
		}
		alloc[addr] = bal
	}
	return &ledger.Genesis{
		Admin:         c.Genesis.Admin,
		ListingFee:    fee,
		CancelPenalty: penalty,
		Alloc:         alloc,
	}, nil
}
