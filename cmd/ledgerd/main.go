// main.go - Ledger daemon entrypoint.
//
// Boot sequence:
//   - load config and logger
//   - compile the encryption circuit and generate/load Groth16 keys
//   - restore the arithmetic engine from disk, or generate a fresh keypair
//   - load the persisted ledger store if the engine was restored
//   - serve the HTTP surface until interrupted
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"confledger/internal/confidential"
	"confledger/internal/encproof"
	"confledger/internal/ledger"
)

const version = "0.1.0"

func main() {
	configPath := flag.String("config", "ledgerd.json", "path to config file")
	flag.Parse()

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}

	log, closeLog, err := NewLogger(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		os.Stderr.WriteString("logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer closeLog()

	log.Info().Str("version", version).Msg("starting ledgerd")

	// Proof system setup. Compiling the circuit and setting up keys is slow
	// on first boot; afterwards the keys load from disk.
	ccs, err := encproof.Compile()
	if err != nil {
		log.Fatal().Err(err).Msg("circuit compilation failed")
	}
	if err := os.MkdirAll(cfg.KeyDir, 0o755); err != nil {
		log.Fatal().Err(err).Msg("key dir creation failed")
	}
	_, vk, err := encproof.SetupOrLoadKeys(ccs,
		filepath.Join(cfg.KeyDir, "proving.key"),
		filepath.Join(cfg.KeyDir, "verifying.key"))
	if err != nil {
		log.Fatal().Err(err).Msg("proof key setup failed")
	}

	// The engine's handle table holds the ciphertext values the store's
	// handles point at, so the two restore together: a store reloaded
	// against a fresh engine would leave every account undecryptable.
	enginePath := filepath.Join(cfg.KeyDir, "engine.json")
	engine, err := confidential.LoadEngineFromFile(enginePath)
	restored := err == nil
	if restored {
		log.Info().Str("path", enginePath).Msg("restored engine state")
	} else {
		if !os.IsNotExist(err) {
			log.Fatal().Err(err).Msg("engine state load failed")
		}
		engineKey, err := confidential.GenerateEngineKey()
		if err != nil {
			log.Fatal().Err(err).Msg("engine keygen failed")
		}
		engine = confidential.NewEngine(engineKey, nil)
	}
	engine.SetVerifier(encproof.NewVerifier(vk, engine.PublicKey()))
	log.Info().Str("self", engine.SelfAddress().Hex()).Msg("engine ready")

	store := ledger.NewMemoryStore()
	if restored {
		if loaded, err := ledger.LoadStoreFromFile(cfg.LedgerPath); err == nil {
			store = loaded
			log.Info().Str("path", cfg.LedgerPath).Msg("loaded persisted ledger")
		}
	} else if _, err := os.Stat(cfg.LedgerPath); err == nil {
		log.Warn().Str("path", cfg.LedgerPath).
			Msg("ignoring persisted ledger: no engine state to serve its handles")
	}

	metrics := NewMetrics()
	health := NewHealthChecker(version)
	health.RegisterComponent("store", func() error {
		if _, err := os.Stat(cfg.LedgerPath); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	})
	health.RegisterComponent("keys", func() error {
		_, err := os.Stat(filepath.Join(cfg.KeyDir, "verifying.key"))
		return err
	})

	srv := &Server{
		cfg:        cfg,
		log:        log,
		engine:     engine,
		store:      store,
		enginePath: enginePath,
		metrics:    metrics,
		health:     health,
		limiter: NewIdentityRateLimiter(cfg.RateLimitTokens, cfg.RateLimitRefill,
			time.Duration(cfg.RateLimitPeriodSeconds)*time.Second),
	}
	srv.ledger = ledger.New(engine, store, &logEmitter{log: log})

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      srv.Router(),
		ReadTimeout:  time.Duration(cfg.TimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Msg("listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown failed")
	}
	if err := store.SaveToFile(cfg.LedgerPath); err != nil {
		log.Error().Err(err).Msg("final ledger persist failed")
	}
	if err := engine.SaveToFile(enginePath); err != nil {
		log.Error().Err(err).Msg("final engine persist failed")
	}
}
