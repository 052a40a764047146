// Command node starts a land ledger node.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/landvn/landledger/audit"
	"github.com/landvn/landledger/config"
	"github.com/landvn/landledger/events"
	"github.com/landvn/landledger/identity"
	"github.com/landvn/landledger/indexer"
	"github.com/landvn/landledger/ledger"
	"github.com/landvn/landledger/rpc"
	"github.com/landvn/landledger/storage"

	// Import command modules to trigger their init() self-registration.
	_ "github.com/landvn/landledger/ledger/modules/admin"
	_ "github.com/landvn/landledger/ledger/modules/market"
	_ "github.com/landvn/landledger/ledger/modules/registry"
	_ "github.com/landvn/landledger/ledger/modules/token"
)

func main() {
	cfgPath := flag.String("config", "config.json", "path to config file")
	genKey := flag.Bool("genkey", false, "generate a new identity key pair and exit")
	flag.Parse()

	// ---- generate key mode ----
	if *genKey {
		cfg, err := loadConfig(*cfgPath)
		if err != nil {
			log.Fatalf("config: %v", err)
		}
		codec, err := identity.Generate()
		if err != nil {
			log.Fatal(err)
		}
		if err := identity.SaveKey(cfg.Identity.PublicKeyPath, codec.PublicKey()); err != nil {
			log.Fatal(err)
		}
		if err := identity.SaveKey(cfg.Identity.PrivateKeyPath, codec.PrivateKey()); err != nil {
			log.Fatal(err)
		}
		fmt.Printf("Generated identity key pair.\n")
		fmt.Printf("Public key:  %s\n", cfg.Identity.PublicKeyPath)
		fmt.Printf("Private key: %s\n", cfg.Identity.PrivateKeyPath)
		return
	}

	// ---- load config ----
	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// ---- identity codec ----
	var rpcCodec identity.Codec
	codec, err := identity.Load(cfg.Identity.PublicKeyPath, cfg.Identity.PrivateKeyPath)
	switch {
	case err == nil:
		rpcCodec = codec
		if !codec.CanDecrypt() {
			log.Println("[node] no identity private key, decryptIdentifier will answer \"unavailable\"")
		}
	case errors.Is(err, os.ErrNotExist):
		log.Println("[node] no identity public key, decryptIdentifier will answer \"unavailable\"")
	default:
		log.Fatalf("identity keys: %v", err)
	}

	// ---- open DB ----
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		log.Fatalf("mkdir data dir: %v", err)
	}
	db, err := storage.NewLevelDB(cfg.DataDir + "/ledger")
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	// ---- initialise state ----
	state := storage.NewStateDB(db)

	// ---- genesis (no-op on an initialised ledger) ----
	gen, err := cfg.LedgerGenesis()
	if err != nil {
		log.Fatalf("genesis: %v", err)
	}
	if err := ledger.Bootstrap(state, *gen); err != nil {
		log.Fatalf("bootstrap: %v", err)
	}

	// ---- events ----
	emitter := events.NewEmitter()

	// ---- indexer ----
	idx := indexer.New(db, emitter)

	// ---- audit feed ----
	publisher, err := audit.NewPublisher(cfg.Audit)
	if err != nil {
		log.Fatalf("audit: %v", err)
	}
	if publisher != nil {
		publisher.Attach(emitter)
		defer publisher.Close()
		log.Printf("[node] audit feed enabled, topic %s", cfg.Audit.Topic)
	}

	// ---- executor ----
	exec := ledger.NewExecutor(state, emitter)

	// ---- RPC ----
	rpcAddr := fmt.Sprintf(":%d", cfg.RPCPort)
	rpcHandler := rpc.NewHandler(exec, idx, rpcCodec)
	rpcServer := rpc.NewServer(rpcAddr, rpcHandler, cfg.RPCAuthToken)
	if err := rpcServer.Start(); err != nil {
		log.Fatalf("rpc start: %v", err)
	}
	defer rpcServer.Stop()
	if cfg.RPCAuthToken != "" {
		log.Println("[node] RPC Bearer token authentication enabled")
	}
	log.Printf("[node] %s ready, state root %s", cfg.NodeID, exec.StateRoot())

	// ---- graceful shutdown ----
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Println("Shutting down...")
	// Deferred calls run in LIFO: rpcServer.Stop → publisher.Close → db.Close
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("Config file not found at %s, using defaults.", path)
			return config.DefaultConfig(), nil
		}
		return nil, err
	}
	return cfg, nil
}
