package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/haven-wallet/haven-wallet/internal/api"
	"github.com/haven-wallet/haven-wallet/internal/app"
	"github.com/haven-wallet/haven-wallet/internal/approval"
	"github.com/haven-wallet/haven-wallet/internal/chain"
	"github.com/haven-wallet/haven-wallet/internal/config"
	"github.com/haven-wallet/haven-wallet/internal/crypto"
	"github.com/haven-wallet/haven-wallet/internal/keystore"
	"github.com/haven-wallet/haven-wallet/internal/logger"
	"github.com/haven-wallet/haven-wallet/internal/registry"
	"github.com/haven-wallet/haven-wallet/internal/session"
	"github.com/haven-wallet/haven-wallet/internal/storage"
	"github.com/haven-wallet/haven-wallet/pkg/types"
)

// logSurface signals new approval requests into the structured log. The
// trusted surface polls /v1/approvals; the signal is informational.
type logSurface struct{}

func (logSurface) Present(ctx context.Context, req *types.ApprovalRequest) {
	logger.Info(ctx, "approval pending",
		"approval_id", req.ID,
		"kind", string(req.Kind),
		"origin", req.Origin,
	)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := logger.Init(); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	// Initialize the persistence backend
	var store storage.BlobStore
	switch cfg.StorageBackend {
	case config.StorageBackendPostgres:
		pg, err := storage.NewPostgresStore(cfg.PostgresDSN)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		store = pg
	case config.StorageBackendVault:
		store, err = storage.NewVaultStore(&storage.VaultConfig{
			Address: cfg.VaultAddress,
			Token:   cfg.VaultToken,
			Mount:   cfg.VaultMount,
		})
		if err != nil {
			slog.Error("failed to connect to vault", "error", err)
			os.Exit(1)
		}
	case config.StorageBackendMemory:
		store = storage.NewMemoryStore()
	default:
		slog.Error("unknown storage backend", "backend", cfg.StorageBackend)
		os.Exit(1)
	}

	slog.Info("initialized storage", "backend", cfg.StorageBackend)

	// Optional envelope sealing of persisted blobs
	if cfg.BlobSeal == config.BlobSealKMS {
		sealer, err := storage.NewKMSSealer(cfg.KMSKeyID, cfg.KMSKeyRegion)
		if err != nil {
			slog.Error("failed to initialize KMS sealer", "error", err)
			os.Exit(1)
		}
		store = storage.NewSealedStore(store, sealer)
		slog.Info("blob sealing enabled", "key_id", cfg.KMSKeyID)
	}

	// Chain client for nonce, fees, and broadcast
	var chainClient chain.Client
	if cfg.EthRPCURL != "" {
		chainClient, err = chain.NewEthClient(cfg.EthRPCURL)
		if err != nil {
			slog.Error("failed to connect to chain RPC", "error", err, "url", cfg.EthRPCURL)
			os.Exit(1)
		}
		slog.Info("connected to chain RPC", "chain_id", chainClient.ChainID().String())
	} else {
		slog.Warn("no chain RPC configured, transaction approvals will fail")
	}

	// Core services
	ks := keystore.New(store)
	reg := registry.New(store, ks)
	trust := approval.NewTrustStore(store)
	broker := approval.New(logSurface{}, trust)
	sess := session.New(ks, uint(cfg.MaxUnlockAttempts), cfg.LockoutDuration)

	kdfParams := crypto.ParamsForProfile(cfg.ScryptProfile)
	walletService := app.NewWalletService(reg, ks, kdfParams)
	approvalService := app.NewApprovalService(broker, trust, ks, reg, chainClient)

	server := api.NewServer(cfg, sess, walletService, approvalService, broker, trust)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		slog.Error("server error", "error", err)
		os.Exit(1)

	case sig := <-shutdown:
		slog.Info("received shutdown signal", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			slog.Error("error during shutdown", "error", err)
			slog.Warn("forcing shutdown")
		}

		slog.Info("server stopped")
	}
}
