package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/hyperflow/params"
	"github.com/uhyunpark/hyperflow/pkg/api"
	hlcrypto "github.com/uhyunpark/hyperflow/pkg/crypto"
	"github.com/uhyunpark/hyperflow/pkg/dms"
	"github.com/uhyunpark/hyperflow/pkg/exchange"
	"github.com/uhyunpark/hyperflow/pkg/meta"
	"github.com/uhyunpark/hyperflow/pkg/nonce"
	"github.com/uhyunpark/hyperflow/pkg/session"
	"github.com/uhyunpark/hyperflow/pkg/store"
	"github.com/uhyunpark/hyperflow/pkg/util"
)

func main() {
	// Load config from .env file and environment variables
	cfg, err := params.LoadFromEnv("")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logFile := os.Getenv("LOG_FILE")
	if logFile == "" {
		logFile = "data/trader.log"
	}
	logger, err := util.NewLoggerWithFile(logFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	if cfg.PrivateKey == "" {
		logger.Fatal("HL_PRIVATE_KEY is required")
	}
	signer, err := hlcrypto.FromPrivateKeyHex(cfg.PrivateKey)
	if err != nil {
		logger.Fatal("load signing key", zap.Error(err))
	}
	logger.Info("trader starting",
		zap.String("network", string(cfg.Network)),
		zap.String("account", signer.Address().Hex()),
	)

	var vault *common.Address
	if cfg.VaultAddress != "" {
		addr := common.HexToAddress(cfg.VaultAddress)
		vault = &addr
	}

	// ---- Nonce state: restore the replay window across restarts ----
	nonceStore, err := store.OpenNonceStore(cfg.DataDir + "/nonces")
	if err != nil {
		logger.Fatal("open nonce store", zap.Error(err))
	}
	defer nonceStore.Close()

	last, recent, err := nonceStore.Load()
	if err != nil {
		logger.Fatal("load nonce state", zap.Error(err))
	}
	nonces := nonce.Restore(util.RealClock{}, last, recent)
	logger.Info("nonce state restored", zap.Int64("last", last), zap.Int("window", len(recent)))

	// ---- Exchange client ----
	poster := exchange.NewHTTPPoster(cfg.Endpoints.BaseURL)
	registry := meta.NewRegistry(poster)
	refreshCtx, cancelRefresh := context.WithTimeout(context.Background(), 15*time.Second)
	if err := registry.Refresh(refreshCtx); err != nil {
		logger.Warn("asset metadata refresh failed, will retry lazily", zap.Error(err))
	}
	cancelRefresh()

	client := exchange.NewClient(poster, signer, nonces, cfg.Network == params.Mainnet, vault, logger)
	canceller := exchange.NewBatchCanceller(client, logger)

	// ---- Dead-man's-switch: fires one cancel-all over resting orders ----
	sched := dms.NewScheduler(util.RealClock{}, func(ctx context.Context) error {
		refs := client.RestingRefs()
		if len(refs) == 0 {
			return nil
		}
		var firstErr error
		for _, o := range canceller.CancelMany(ctx, refs) {
			if o.Err != nil && firstErr == nil {
				firstErr = o.Err
			}
		}
		return firstErr
	}, logger)

	// ---- Session: heartbeats are the liveness the switch guards ----
	sess := session.NewMachine(cfg.Session, session.NewWSTransport(), cfg.Endpoints.WSURL, util.RealClock{}, logger)
	sess.OnHeartbeat = func() {
		sched.Renew(cfg.DMS.Duration)
	}

	if err := sess.Subscribe(session.Subscription{Type: "allMids"}); err != nil {
		logger.Warn("subscribe allMids", zap.Error(err))
	}
	if cfg.AccountAddress != "" {
		if err := sess.Subscribe(session.Subscription{Type: "orderUpdates", User: cfg.AccountAddress}); err != nil {
			logger.Warn("subscribe orderUpdates", zap.Error(err))
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Status server ----
	var statusSrv *api.Server
	if cfg.StatusAddr != "" {
		statusSrv = api.NewServer(sess, sched, nonces, client, logger)
		go func() {
			if err := statusSrv.Start(cfg.StatusAddr); err != nil {
				logger.Error("status server", zap.Error(err))
			}
		}()
	}

	// Persist the nonce window periodically and on shutdown.
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l, r := nonces.Snapshot()
				if err := nonceStore.Save(l, r); err != nil {
					logger.Warn("persist nonce state", zap.Error(err))
				}
			}
		}
	}()

	sched.Arm(cfg.DMS.Duration)

	runErr := make(chan error, 1)
	go func() { runErr <- sess.Run(ctx) }()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-runErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("session stopped", zap.Error(err))
		}
	}

	// Shutdown order: close the session first, then disarm the switch.
	// A deliberate shutdown never auto-cancels resting orders.
	sess.Close()
	sched.Cancel()

	if statusSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := statusSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("status server shutdown", zap.Error(err))
		}
		cancel()
	}

	l, r := nonces.Snapshot()
	if err := nonceStore.Save(l, r); err != nil {
		logger.Warn("final nonce persist", zap.Error(err))
	}
	logger.Info("trader stopped")
}
