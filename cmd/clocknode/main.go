// Command clocknode starts a clock-chain node: it mines pings and ticks,
// gossips them to peers, selects a winner every round, and serves an
// RPC endpoint for observing the result.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/tolelom/tolchain/clock"
	"github.com/tolelom/tolchain/config"
	"github.com/tolelom/tolchain/consensus"
	"github.com/tolelom/tolchain/crypto"
	"github.com/tolelom/tolchain/crypto/certgen"
	"github.com/tolelom/tolchain/events"
	"github.com/tolelom/tolchain/network"
	"github.com/tolelom/tolchain/rpc"
	"github.com/tolelom/tolchain/storage"
	"github.com/tolelom/tolchain/validator"
	"github.com/tolelom/tolchain/wallet"
)

func main() {
	cfgPath := flag.String("config", "config.json", "path to config file")
	keyPath := flag.String("key", "validator.key", "path to keystore file")
	genKey := flag.Bool("genkey", false, "generate a new validator key and exit")
	genCerts := flag.String("gencerts", "", "generate CA + node TLS certs into the given directory and exit (requires node ID from config)")
	bootstrap := flag.Bool("bootstrap", false, "allow seeding a fresh chain whose first tick references the genesis placeholder")
	flag.Parse()

	// Read keystore password from environment (not CLI flags — they leak via ps).
	password := os.Getenv("TOL_PASSWORD")
	if password == "" {
		log.Println("WARNING: TOL_PASSWORD not set — keystore will use an empty password")
	}

	// ---- generate key mode ----
	if *genKey {
		w, err := wallet.Generate()
		if err != nil {
			log.Fatal(err)
		}
		if err := wallet.SaveKey(*keyPath, password, w.PrivKey()); err != nil {
			log.Fatal(err)
		}
		fmt.Printf("Generated key. Public key (node address): %s\n", w.PubKey())
		fmt.Printf("Saved to: %s\n", *keyPath)
		return
	}

	// ---- generate certs mode ----
	if *genCerts != "" {
		cfgForCerts, err := loadConfig(*cfgPath)
		if err != nil {
			log.Fatalf("config: %v", err)
		}
		if err := certgen.GenerateAll(*genCerts, cfgForCerts.NodeID, nil); err != nil {
			log.Fatalf("gencerts: %v", err)
		}
		fmt.Printf("Certificates generated in %s for node %q\n", *genCerts, cfgForCerts.NodeID)
		return
	}

	// ---- load config ----
	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// ---- load node key ----
	privKey, err := wallet.LoadKey(*keyPath, password)
	if err != nil {
		log.Fatalf("load key: %v", err)
	}
	w := wallet.New(privKey)

	// ---- difficulty target ----
	target, err := crypto.NewDifficultyTarget(cfg.DifficultyTargetHex)
	if err != nil {
		log.Fatalf("difficulty target: %v", err)
	}

	// ---- open DB, tick log ----
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		log.Fatalf("mkdir data dir: %v", err)
	}
	db, err := storage.NewLevelDB(cfg.DataDir + "/chain")
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()
	tickLog, err := storage.NewTickLog(db)
	if err != nil {
		log.Fatalf("open tick log: %v", err)
	}

	// ---- chain store (genesis-seeded on construction) ----
	store, err := clock.NewChainStore(cfg.ChainMaxLength, tickLog)
	if err != nil {
		log.Fatalf("chain store: %v", err)
	}

	// ---- pools, selector ----
	pools := clock.NewPools()
	selector := clock.NewSelector(crypto.JSONHasher{}, clock.ModePingCount)

	// ---- validator ----
	v := validator.New(validator.Config{DifficultyTarget: target, BootstrapMode: *bootstrap})

	// ---- events ----
	emitter := events.NewEmitter()
	emitter.Subscribe(events.EventTickSelected, func(ev events.Event) {
		log.Printf("[events] tick selected: %v", ev.Data)
	})
	emitter.Subscribe(events.EventForkDetected, func(events.Event) {
		log.Println("[events] fork detected, attempting resync")
	})

	// ---- TLS ----
	tlsCfg, err := config.LoadTLSConfig(cfg.TLS)
	if err != nil {
		log.Fatalf("tls: %v", err)
	}
	if tlsCfg != nil {
		log.Println("mTLS enabled for P2P")
	}

	// ---- network ----
	p2pAddr := fmt.Sprintf(":%d", cfg.P2PPort)
	node := network.NewNode(cfg.NodeID, p2pAddr, tlsCfg, cfg.MinPeers, store.Snapshot)
	if err := node.Start(); err != nil {
		log.Fatalf("p2p start: %v", err)
	}
	defer node.Stop()
	log.Printf("P2P listening on %s", p2pAddr)

	// ---- cycle lock shared between scheduler and fork resolver ----
	var cycleLock sync.Mutex
	resolver := clock.NewForkResolver(node, v, cfg.ResyncGrace(), &cycleLock)

	// ---- consensus scheduler ----
	sched := consensus.New(pools, store, selector, resolver, node, v, w, emitter, target,
		cfg.TickPeriod(), cfg.SelectGrace(), &cycleLock)
	sched.RegisterGossipHandlers(node)

	// ---- connect to seed peers ----
	for _, sp := range cfg.SeedPeers {
		if err := node.AddPeer(sp.ID, sp.URL); err != nil {
			log.Printf("seed peer %s (%s): %v", sp.ID, sp.URL, err)
			continue
		}
		log.Printf("Connected to seed peer %s (%s)", sp.ID, sp.URL)
	}

	// ---- RPC ----
	rpcAddr := fmt.Sprintf(":%d", cfg.RPCPort)
	rpcHandler := rpc.NewHandler(store, pools, v, cfg.NodeID)
	rpcServer := rpc.NewServer(rpcAddr, rpcHandler, cfg.RPCAuthToken)
	if err := rpcServer.Start(); err != nil {
		log.Fatalf("rpc start: %v", err)
	}
	defer rpcServer.Stop()
	log.Printf("RPC listening on %s", rpcAddr)
	if cfg.RPCAuthToken != "" {
		log.Println("RPC Bearer token authentication enabled")
	}

	// ---- consensus loop ----
	go sched.Run()
	log.Printf("Consensus running (node: %s)", w.PubKey())

	// ---- graceful shutdown ----
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Println("Shutting down...")

	// 1. Stop consensus first (no new ticks produced)
	sched.Stop()
	time.Sleep(100 * time.Millisecond)

	// 2. Deferred calls run in LIFO: rpcServer.Stop → node.Stop → db.Close
	log.Println("Shutdown complete.")
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
