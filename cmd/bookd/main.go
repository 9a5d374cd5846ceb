package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"

	"github.com/signbook/signbook/params"
	"github.com/signbook/signbook/pkg/api"
	"github.com/signbook/signbook/pkg/book"
	"github.com/signbook/signbook/pkg/chain"
	"github.com/signbook/signbook/pkg/crypto"
	"github.com/signbook/signbook/pkg/store"
	"github.com/signbook/signbook/pkg/util"
)

func main() {
	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv("")

	logFile := os.Getenv("LOG_FILE")
	if logFile == "" {
		logFile = "data/bookd.log"
	}
	logger, err := util.NewLoggerWithFile(logFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", logFile)

	settlement := common.HexToAddress(cfg.Chain.Settlement)

	// ---- Chain collaborator ----
	var ch chain.Chain
	if cfg.Chain.RPCURL == "" {
		// dev mode: in-memory chain, nothing leaves the process
		sugar.Infow("chain_sim_mode")
		ch = chain.NewSim(settlement)
	} else {
		var signer *crypto.Signer
		if cfg.Chain.PrivateKey != "" {
			signer, err = crypto.FromPrivateKeyHex(cfg.Chain.PrivateKey)
			if err != nil {
				sugar.Fatalw("invalid_private_key", "err", err)
			}
			sugar.Infow("signing_key_loaded", "address", signer.Address().Hex())
		}
		ch, err = chain.Dial(cfg.Chain.RPCURL, settlement, cfg.Chain.ChainID, signer, cfg.Chain.CallTimeout, cfg.Chain.Retries, sugar)
		if err != nil {
			sugar.Fatalw("chain_dial_failed", "rpc", cfg.Chain.RPCURL, "err", err)
		}
		sugar.Infow("chain_connected", "rpc", cfg.Chain.RPCURL, "settlement", settlement.Hex())
	}

	// ---- Ledger over pebble ----
	pebbleStore, err := store.Open(cfg.Store.Path)
	if err != nil {
		sugar.Fatalw("store_open_failed", "path", cfg.Store.Path, "err", err)
	}
	ledger, err := book.NewLedger(pebbleStore, sugar)
	if err != nil {
		sugar.Fatalw("ledger_open_failed", "err", err)
	}
	defer ledger.Close()

	// ---- Book components ----
	clock := util.RealClock{}
	validator := book.NewValidator(ch, ledger, clock, sugar)
	avail := book.NewAvailability(ch, ledger, settlement)
	matcher := book.NewMatcher(ledger, avail, clock, sugar)
	recon := book.NewReconciler(ledger, ch, sugar)

	// ---- API ----
	server := api.NewServer(ledger, validator, matcher, avail, recon, clock, sugar)
	go func() {
		if err := server.Start(cfg.API.Addr, cfg.API.AllowedOrigins); err != nil {
			sugar.Fatalw("api_server_failed", "err", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	sugar.Infow("shutting_down", "signal", sig.String())
}
