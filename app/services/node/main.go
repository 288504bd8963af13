package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ardanlabs/p2pledger/app/services/node/handlers"
	"github.com/ardanlabs/p2pledger/foundation/blockchain/connmgr"
	"github.com/ardanlabs/p2pledger/foundation/blockchain/genesis"
	"github.com/ardanlabs/p2pledger/foundation/blockchain/peer"
	"github.com/ardanlabs/p2pledger/foundation/blockchain/signature"
	"github.com/ardanlabs/p2pledger/foundation/blockchain/state"
	"github.com/ardanlabs/p2pledger/foundation/blockchain/wire"
	"github.com/ardanlabs/p2pledger/foundation/blockchain/worker"
	"github.com/ardanlabs/p2pledger/foundation/events"
	"github.com/ardanlabs/p2pledger/foundation/keystore"
	"github.com/ardanlabs/p2pledger/foundation/logger"
	"github.com/ardanlabs/p2pledger/foundation/nameservice"
	"github.com/ardanlabs/conf/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// build is the git version of this program. It is set using build flags in the makefile.
var build = "develop"

func main() {

	// Construct the application logger.
	log, err := logger.New("NODE")
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

	// This is all the configuration for the application and the default values.
	// Configuration values will be passed through the application as individual
	// values.
	cfg := struct {
		conf.Version
		Web struct {
			ReadTimeout     time.Duration `conf:"default:5s"`
			WriteTimeout    time.Duration `conf:"default:10s"`
			IdleTimeout     time.Duration `conf:"default:120s"`
			ShutdownTimeout time.Duration `conf:"default:20s"`
			DebugHost       string        `conf:"default:0.0.0.0:7080"`
			PublicHost      string        `conf:"default:0.0.0.0:8080"`
		}
		Net struct {
			Host          string        `conf:"default:127.0.0.1,help:IP address peers reach this node on"`
			Port          int           `conf:"default:50082"`
			BootstrapHost string        `conf:"default:"`
			BootstrapPort int           `conf:"default:0"`
			PingInterval  time.Duration `conf:"default:30m"`
			DialTimeout   time.Duration `conf:"default:3s"`
			ReadTimeout   time.Duration `conf:"default:30s"`
			MaxFrameSize  int64         `conf:"default:16777216"`
			Workers       int64         `conf:"default:10"`
		}
		State struct {
			GenesisPath  string        `conf:"default:zblock/genesis.json"`
			KeyPath      string        `conf:"default:zblock/accounts/node.ecdsa"`
			MineInterval time.Duration `conf:"default:10s"`
			MessageTTL   time.Duration `conf:"default:10m"`
		}
		NameService struct {
			Folder string `conf:"default:zblock/accounts/"`
		}
	}{
		Version: conf.Version{
			Build: build,
			Desc:  "p2p ledger core node",
		},
	}

	// Parse will set the defaults and then look for any overriding values
	// in environment variables and command line flags.
	const prefix = "NODE"
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

	// Display the current configuration to the logs.
	out, err := conf.String(&cfg)
	if err != nil {
		return fmt.Errorf("generating config for output: %w", err)
	}
	log.Infow("startup", "config", out)

	// =========================================================================
	// Node Key

	// The node key is created on first start. Its address receives the
	// rewards of the blocks this node builds.
	privateKey, created, err := keystore.LoadOrGenerate(cfg.State.KeyPath)
	if err != nil {
		return fmt.Errorf("unable to load private key for node: %w", err)
	}
	beneficiary := signature.PublicKeyToAddress(privateKey.PublicKey)
	log.Infow("startup", "status", "node key", "path", cfg.State.KeyPath, "created", created, "beneficiary", beneficiary)

	// =========================================================================
	// Name Service Support

	// The nameservice package provides name resolution for addresses. The
	// names come from the file names in the accounts folder.
	ns, err := nameservice.New(cfg.NameService.Folder)
	if err != nil {
		return fmt.Errorf("unable to load account name service: %w", err)
	}

	// Logging the accounts for documentation in the logs.
	for address, name := range ns.Copy() {
		log.Infow("startup", "status", "nameservice", "name", name, "address", address)
	}

	// =========================================================================
	// Blockchain Support

	gen, err := genesis.Load(cfg.State.GenesisPath)
	if err != nil {
		return fmt.Errorf("unable to load genesis: %w", err)
	}

	// Peers know this node by the IP address its connections come from, so
	// the host it advertises and the bootstrap node must be IP addresses.
	if err := peer.CheckAdvertised(cfg.Net.Host); err != nil {
		return fmt.Errorf("net host: %w", err)
	}

	var bootstrap peer.Peer
	if cfg.Net.BootstrapHost != "" {
		bootstrap, err = peer.Resolve(cfg.Net.BootstrapHost, cfg.Net.BootstrapPort)
		if err != nil {
			return fmt.Errorf("net bootstrap: %w", err)
		}
	}

	// The blockchain packages accept a function of this signature to allow the
	// application to log. Changes to the chain are also sent to any websocket
	// client that is connected into the system through the events package.
	evts := events.New()
	ev := logger.EventHandler(log, "00000000-0000-0000-0000-000000000000")

	onChange := func(c state.Change) {
		if err := evts.Send(string(c.Kind), c); err != nil {
			log.Errorw("events", "kind", c.Kind, "ERROR", err)
		}
	}

	// The state is not constructed until the connection manager exists, but
	// the manager does not deliver messages before the state starts it.
	var st *state.State

	cm := connmgr.New(connmgr.Config{
		Host:         cfg.Net.Host,
		Port:         cfg.Net.Port,
		PingInterval: cfg.Net.PingInterval,
		DialTimeout:  cfg.Net.DialTimeout,
		ReadTimeout:  cfg.Net.ReadTimeout,
		MaxFrameSize: cfg.Net.MaxFrameSize,
		Workers:      cfg.Net.Workers,
		Handler: func(msg wire.Message, fromCore bool, origin peer.Peer) {
			st.HandleMessage(msg, fromCore, origin)
		},
		EvHandler: connmgr.EventHandler(ev),
	})

	// The state value represents the blockchain node and manages the chain
	// and the pool and provides an API for application support.
	st, err = state.New(state.Config{
		Beneficiary: beneficiary,
		Genesis:     gen,
		Network:     cm,
		Bootstrap:   bootstrap,
		MessageTTL:  cfg.State.MessageTTL,
		OnChange:    onChange,
		EvHandler:   state.EventHandler(ev),
	})
	if err != nil {
		return err
	}

	// The worker package implements the block production loop. It needs to
	// be registered with the state before the node starts taking messages.
	st.Worker = worker.Run(worker.Config{
		State:     st,
		Interval:  cfg.State.MineInterval,
		EvHandler: worker.EventHandler(ev),
	})

	if err := st.Start(); err != nil {
		st.Shutdown()
		return fmt.Errorf("starting node: %w", err)
	}

	// =========================================================================
	// Start Debug Service

	log.Infow("startup", "status", "debug router started", "host", cfg.Web.DebugHost)

	// The Debug function returns a mux to listen and serve on for all the debug
	// related endpoints. This includes the standard library endpoints.

	// Construct the mux for the debug calls.
	debugMux := handlers.DebugMux(build, log, st)

	// Start the service listening for debug requests.
	// Not concerned with shutting this down with load shedding.
	go func() {
		if err := http.ListenAndServe(cfg.Web.DebugHost, debugMux); err != nil {
			log.Errorw("shutdown", "status", "debug router closed", "host", cfg.Web.DebugHost, "ERROR", err)
		}
	}()

	// =========================================================================
	// Service Start/Stop Support

	// Make a channel to listen for an interrupt or terminate signal from the OS.
	// Use a buffered channel because the signal package requires it.
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	// Make a channel to listen for errors coming from the listener. Use a
	// buffered channel so the goroutine can exit if we don't collect this error.
	serverErrors := make(chan error, 1)

	// =========================================================================
	// Start Public Service

	log.Infow("startup", "status", "initializing V1 public API support")

	// Construct the mux for the public API calls.
	publicMux := handlers.PublicMux(handlers.MuxConfig{
		Shutdown: shutdown,
		Log:      log,
		State:    st,
		NS:       ns,
		Evts:     evts,
	})

	// Construct a server to service the requests against the mux.
	public := http.Server{
		Addr:         cfg.Web.PublicHost,
		Handler:      publicMux,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		ErrorLog:     zap.NewStdLog(log.Desugar()),
	}

	// Start the service listening for api requests.
	go func() {
		log.Infow("startup", "status", "public api router started", "host", public.Addr)
		serverErrors <- public.ListenAndServe()
	}()

	// =========================================================================
	// Shutdown

	// Blocking main and waiting for shutdown.
	select {
	case err := <-serverErrors:
		return multierr.Append(fmt.Errorf("server error: %w", err), st.Shutdown())

	case sig := <-shutdown:
		log.Infow("shutdown", "status", "shutdown started", "signal", sig)
		defer log.Infow("shutdown", "status", "shutdown complete", "signal", sig)

		// Release any web sockets that are currently active.
		log.Infow("shutdown", "status", "shutdown web socket channels")
		evts.Shutdown()

		// Give outstanding requests a deadline for completion.
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancel()

		// Asking listener to shut down and shed load.
		var err error
		log.Infow("shutdown", "status", "shutdown public API started")
		if e := public.Shutdown(ctx); e != nil {
			public.Close()
			err = multierr.Append(err, fmt.Errorf("could not stop public service gracefully: %w", e))
		}

		// Stop building blocks and leave the network.
		log.Infow("shutdown", "status", "shutdown node started")
		err = multierr.Append(err, st.Shutdown())

		return err
	}
}
