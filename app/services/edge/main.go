package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ardanlabs/p2pledger/foundation/blockchain/database"
	"github.com/ardanlabs/p2pledger/foundation/blockchain/edge"
	"github.com/ardanlabs/p2pledger/foundation/blockchain/peer"
	"github.com/ardanlabs/p2pledger/foundation/blockchain/signature"
	"github.com/ardanlabs/p2pledger/foundation/keystore"
	"github.com/ardanlabs/p2pledger/foundation/logger"
	"github.com/ardanlabs/conf/v3"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// build is the git version of this program. It is set using build flags in the makefile.
var build = "develop"

func main() {

	// Construct the application logger.
	log, err := logger.New("EDGE")
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer log.Sync()

	// Perform the startup and shutdown sequence.
	if err := run(log); err != nil {
		log.Errorw("startup", "ERROR", err)
		log.Sync()
		os.Exit(1)
	}
}

func run(log *zap.SugaredLogger) error {

	// =========================================================================
	// Configuration

	cfg := struct {
		conf.Version
		Net struct {
			Host         string        `conf:"default:127.0.0.1,help:IP address cores reach this edge on"`
			Port         int           `conf:"default:50095"`
			CoreHost     string        `conf:"default:127.0.0.1"`
			CorePort     int           `conf:"default:50082"`
			PingInterval time.Duration `conf:"default:30m"`
			DialTimeout  time.Duration `conf:"default:3s"`
			DebugHost    string        `conf:"default:0.0.0.0:7090"`
		}
		Wallet struct {
			KeyPath string `conf:"default:zblock/accounts/edge.ecdsa"`
		}
	}{
		Version: conf.Version{
			Build: build,
			Desc:  "p2p ledger edge node",
		},
	}

	const prefix = "EDGE"
	help, err := conf.Parse(prefix, &cfg)
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	// =========================================================================
	// App Starting

	log.Infow("starting service", "version", build)
	defer log.Infow("shutdown complete")

	out, err := conf.String(&cfg)
	if err != nil {
		return fmt.Errorf("generating config for output: %w", err)
	}
	log.Infow("startup", "config", out)

	// The edge registers with its core using the address of its key so the
	// core can tell edges behind the same host apart.
	privateKey, _, err := keystore.LoadOrGenerate(cfg.Wallet.KeyPath)
	if err != nil {
		return fmt.Errorf("unable to load private key for edge: %w", err)
	}
	address := signature.PublicKeyToAddress(privateKey.PublicKey)

	// =========================================================================
	// Edge Support

	// Cores answer from their IP address, so the core is resolved before
	// frames from it can be recognized.
	core, err := peer.Resolve(cfg.Net.CoreHost, cfg.Net.CorePort)
	if err != nil {
		return fmt.Errorf("net core: %w", err)
	}

	e := edge.New(edge.Config{
		Host:         cfg.Net.Host,
		Port:         cfg.Net.Port,
		Core:         core,
		Payload:      address,
		PingInterval: cfg.Net.PingInterval,
		DialTimeout:  cfg.Net.DialTimeout,
		OnChain: func(blocks []database.Block) {
			if n := len(blocks); n > 0 {
				log.Infow("chain", "height", n, "head", blocks[n-1].Hash)
			}
		},
		OnBlock: func(blk database.Block) {
			log.Infow("block", "index", blk.Index, "hash", blk.Hash, "txs", len(blk.Transactions))
		},
		OnMessage: func(payload json.RawMessage) {
			log.Infow("message", "payload", string(payload))
		},
		EvHandler: edge.EventHandler(logger.EventHandler(log, "00000000-0000-0000-0000-000000000000")),
	})

	if err := e.Start(); err != nil {
		return fmt.Errorf("starting edge: %w", err)
	}

	if err := e.RequestFullChain(); err != nil {
		log.Errorw("startup", "status", "request full chain", "ERROR", err)
	}

	// =========================================================================
	// Start Debug Service

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	go func() {
		log.Infow("startup", "status", "debug router started", "host", cfg.Net.DebugHost)
		if err := http.ListenAndServe(cfg.Net.DebugHost, mux); err != nil {
			log.Errorw("shutdown", "status", "debug router closed", "host", cfg.Net.DebugHost, "ERROR", err)
		}
	}()

	// =========================================================================
	// Shutdown

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	sig := <-shutdown
	log.Infow("shutdown", "status", "shutdown started", "signal", sig)

	return e.Shutdown()
}
