package config

import (
	"path/filepath"
	"testing"
)

func TestDefaultConfigParses(t *testing.T) {
	cfg := DefaultConfig()
	gen, err := cfg.LedgerGenesis()
	if err != nil {
		t.Fatal(err)
	}
	if gen.Admin != "admin" {
		t.Errorf("admin: got %q", gen.Admin)
	}
	if gen.ListingFee.Dec() != "10000000000000000" {
		t.Errorf("listing fee: got %s", gen.ListingFee.Dec())
	}
	if gen.CancelPenalty.Dec() != "5000000000000000" {
		t.Errorf("cancel penalty: got %s", gen.CancelPenalty.Dec())
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	cfg := DefaultConfig()
	cfg.NodeID = "node7"
	cfg.RPCAuthToken = "secret"
	cfg.Audit.Enabled = true
	cfg.Genesis.Alloc = map[string]string{"alice": "12345"}

	if err := Save(cfg, path); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.NodeID != "node7" || loaded.RPCAuthToken != "secret" || !loaded.Audit.Enabled {
		t.Errorf("loaded config: %+v", loaded)
	}
	gen, err := loaded.LedgerGenesis()
	if err != nil {
		t.Fatal(err)
	}
	if gen.Alloc["alice"].Dec() != "12345" {
		t.Errorf("alloc: got %s", gen.Alloc["alice"].Dec())
	}
}

func TestLedgerGenesisRejectsBadAmounts(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Genesis.ListingFee = "not a number"
	if _, err := cfg.LedgerGenesis(); err == nil {
		t.Error("bad listing fee must fail")
	}

	cfg = DefaultConfig()
	cfg.Genesis.Alloc = map[string]string{"alice": "-5"}
	if _, err := cfg.LedgerGenesis(); err == nil {
		t.Error("negative alloc must fail")
	}
}
