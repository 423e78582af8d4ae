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

	"github.com/ardanlabs/conf/v3"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/ardanlabs/powchain/app/services/node/handlers"
	"github.com/ardanlabs/powchain/foundation/blockchain/genesis"
	"github.com/ardanlabs/powchain/foundation/blockchain/signature"
	"github.com/ardanlabs/powchain/foundation/blockchain/state"
	"github.com/ardanlabs/powchain/foundation/blockchain/storage"
	"github.com/ardanlabs/powchain/foundation/blockchain/verifier"
	"github.com/ardanlabs/powchain/foundation/blockchain/worker"
	"github.com/ardanlabs/powchain/foundation/events"
	"github.com/ardanlabs/powchain/foundation/logger"
	"github.com/ardanlabs/powchain/foundation/metrics"
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
			DebugHost       string        `conf:"default:0.0.0.0:7080"`
			ShutdownTimeout time.Duration `conf:"default:20s"`
		}
		State struct {
			MinerKeyPath   string        `conf:"default:zblock/accounts/miner1.ecdsa"`
			GenesisPath    string        `conf:"default:zblock/genesis.json"`
			Storage        string        `conf:"default:disk"`
			DBPath         string        `conf:"default:zblock/blocks"`
			SelectStrategy string        `conf:"default:feerate"`
			Verification   string        `conf:"default:production"`
			MineWorkers    int           `conf:"default:0"`
			BlockInterval  time.Duration `conf:"default:0s"`
		}
	}{
		Version: conf.Version{
			Build: build,
			Desc:  "proof of work blockchain node",
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
	// Blockchain Support

	// Need to load the private key file for the configured miner so the
	// pubkey hash can get credited with the rewards and fees.
	privateKey, err := crypto.LoadECDSA(cfg.State.MinerKeyPath)
	if err != nil {
		return fmt.Errorf("unable to load private key for node: %w", err)
	}

	signer, err := signature.NewKeySignerFromECDSA(privateKey)
	if err != nil {
		return err
	}

	gen, err := genesis.Load(cfg.State.GenesisPath)
	if err != nil {
		return fmt.Errorf("unable to load genesis: %w", err)
	}

	strg, err := storage.Open(cfg.State.Storage, cfg.State.DBPath)
	if err != nil {
		return err
	}

	var txVerifier state.TxVerifier
	switch cfg.State.Verification {
	case verifier.Production.String():
		txVerifier = verifier.New(signature.Secp256k1{})
	case verifier.Development.String():
		txVerifier = verifier.NewDevelopment()
	default:
		return fmt.Errorf("unknown verification mode %q", cfg.State.Verification)
	}

	// The node collectors are registered along with the go runtime and
	// process collectors.
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// The blockchain packages accept a function of this signature to allow the
	// application to log. Each log line and every accepted block and transaction
	// is also published to the websocket clients of the debug service.
	evts := events.New()
	defer evts.Shutdown()

	ev := evts.Handler(logger.EvHandler(log, uuid.NewString()))

	// The state value represents the blockchain node and manages the blockchain
	// database and provides an API for application support.
	st, err := state.New(state.Config{
		Genesis:        gen,
		Storage:        strg,
		Verifier:       txVerifier,
		MinerPKH:       signer.PubKeyHash(),
		SelectStrategy: cfg.State.SelectStrategy,
		MineWorkers:    cfg.State.MineWorkers,
		Metrics:        metrics.New(reg),
		Publisher:      evts,
		EvHandler:      ev,
	})
	if err != nil {
		return err
	}
	defer st.Shutdown()

	latest := st.RetrieveLatestBlock()
	log.Infow("startup", "status", "chain loaded", "height", latest.Height, "hash", latest.Hash())

	// The worker package implements the different workflows such as mining,
	// transaction sharing, and mempool maintenance. The worker will register
	// itself with the state.
	worker.Run(st, ev, worker.WithBlockInterval(cfg.State.BlockInterval))

	// =========================================================================
	// Start Debug Service

	log.Infow("startup", "status", "debug router started", "host", cfg.Web.DebugHost)

	// The Debug function returns a mux to listen and serve on for all the debug
	// related endpoints. This includes the standard library endpoints.
	debug := http.Server{
		Addr:     cfg.Web.DebugHost,
		Handler: handlers.DebugMux(handlers.DebugConfig{
			Build:    build,
			Log:      log,
			State:    st,
			Evts:     evts,
			Gatherer: reg,
		}),
		ErrorLog: zap.NewStdLog(log.Desugar()),
	}

	// Make a channel to listen for errors coming from the listener. Use a
	// buffered channel so the goroutine can exit if we don't collect this error.
	serverErrors := make(chan error, 1)

	go func() {
		serverErrors <- debug.ListenAndServe()
	}()

	// =========================================================================
	// Shutdown

	// Make a channel to listen for an interrupt or terminate signal from the OS.
	// Use a buffered channel because the signal package requires it.
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	// Blocking main and waiting for shutdown.
	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		log.Infow("shutdown", "status", "shutdown started", "signal", sig)
		defer log.Infow("shutdown", "status", "shutdown complete", "signal", sig)

		// Give outstanding requests a deadline for completion.
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancel()

		// Asking listener to shut down and shed load.
		if err := debug.Shutdown(ctx); err != nil {
			debug.Close()
			return fmt.Errorf("could not stop debug service gracefully: %w", err)
		}
	}

	return nil
}
