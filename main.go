// Package main is the entry point for the crowdfunding ledger node (cfl).
// It restores the ledger from the snapshot store, serves the ABCI socket for
// Tendermint and runs the HTTP gateway with its websocket event stream.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"crowdfund.ledger/cfl/internal/abci"
	"crowdfund.ledger/cfl/internal/api"
	"crowdfund.ledger/cfl/internal/config"
	"crowdfund.ledger/cfl/internal/discovery"
	"crowdfund.ledger/cfl/internal/docs"
	"crowdfund.ledger/cfl/internal/identity"
	"crowdfund.ledger/cfl/internal/ledger"
	"crowdfund.ledger/cfl/internal/logger"
	"crowdfund.ledger/cfl/internal/store"
	"crowdfund.ledger/cfl/internal/tendermint"
	"crowdfund.ledger/cfl/internal/types"
	"crowdfund.ledger/cfl/internal/web"
)

func main() {
	cfgPath := os.Getenv("CONFIG_FILE")
	if cfgPath == "" {
		cfgPath = config.DefaultPath
	}
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	ring := logger.NewRing(cfg.LogBufferSize)
	log := logger.New(cfg.AppEnv, os.Stdout, ring)
	log.Info().Str("version", types.Version).Str("env", cfg.AppEnv).Msg("cfl node starting")

	if err := run(cfg, ring, log); err != nil {
		log.Fatal().Err(err).Msg("node stopped")
	}
	log.Info().Msg("shutdown complete")
}

func run(cfg *config.Config, ring *logger.Ring, log zerolog.Logger) error {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	// The node key doubles as the fee admin when neither genesis nor config
	// names one.
	admin := cfg.Admin
	if admin == "" {
		id, err := identity.LoadOrCreateIdentity(filepath.Join(cfg.DataDir, cfg.KeyFile))
		if err != nil {
			return fmt.Errorf("load node key: %w", err)
		}
		admin = id.Account()
	}
	log.Info().Str("admin", admin).Msg("operator account")

	st, err := store.NewStore(cfg.DBPath())
	if err != nil {
		return fmt.Errorf("open snapshot store: %w", err)
	}
	defer st.Close()
	st.SetRetention(cfg.SnapshotKeep)

	// The web server is built before the app so committed events have a sink.
	var srv *web.Server
	app, err := abci.NewApplication(abci.Options{
		Params: ledger.Params{
			Admin:              admin,
			FeeRateBasisPoints: cfg.FeeRateBP,
		},
		Store:       st,
		BackupEvery: cfg.BackupEvery,
		MaxBackups:  cfg.MaxBackups,
		Logger:      log.With().Str("component", "abci").Logger(),
		OnEvent: func(ev ledger.Event) {
			if srv != nil {
				srv.Publish(ev)
			}
		},
	})
	if err != nil {
		return fmt.Errorf("create application: %w", err)
	}
	height, _ := app.LastCommit()
	log.Info().Int64("height", height).Msg("ledger restored")

	apiService := api.NewService(app, st, ring, docs.NewService(nil), log.With().Str("component", "api").Logger())
	apiService.SetMaxBackups(cfg.MaxBackups)
	srv = web.NewServer(apiService, st, ring, log, cfg.APIPort)

	if cfg.MDNS {
		mdns, err := discovery.NewService(log)
		if err != nil {
			return err
		}
		txt := map[string]string{"ver": types.Version, "admin": admin, "rpc": cfg.RPCAddress}
		if err := mdns.Start(cfg.APIPort, txt); err != nil {
			return err
		}
		defer mdns.Stop()
		apiService.SetPeers(mdns)
	}

	if err := ensurePortAvailable(cfg.APIPort); err != nil {
		return fmt.Errorf("port %d unavailable: %w", cfg.APIPort, err)
	}

	abciServer, err := tendermint.NewABCIServer(app, &tendermint.Config{
		TendermintHome: cfg.TendermintHome,
		SocketAddress:  cfg.ABCIAddress,
	}, log)
	if err != nil {
		return err
	}
	if err := abciServer.Start(); err != nil {
		return err
	}
	defer abciServer.Stop()
	log.Info().Str("socket", abciServer.SocketPath()).Msg("ABCI server listening")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	nodeExited := make(chan error, 1)
	if cfg.SpawnTendermint {
		if err := tendermint.InitTendermint(ctx, cfg.TendermintHome); err != nil {
			return err
		}
		cmd := tendermint.GetTendermintCommand(ctx, cfg.TendermintHome, cfg.ABCIAddress)
		if err := cmd.Start(); err != nil {
			return fmt.Errorf("start tendermint: %w", err)
		}
		log.Info().Int("pid", cmd.Process.Pid).Msg("tendermint node started")
		go func() { nodeExited <- cmd.Wait() }()
	}

	serverErrors := srv.Start()
	log.Info().Msgf("gateway available at http://localhost:%d", cfg.APIPort)

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case err := <-serverErrors:
		if err != nil {
			return fmt.Errorf("gateway exited: %w", err)
		}
	case err := <-nodeExited:
		if err != nil {
			return fmt.Errorf("tendermint exited: %w", err)
		}
		log.Warn().Msg("tendermint exited")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("gateway shutdown")
	}
	return nil
}

func ensurePortAvailable(port int) error {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return err
	}
	return listener.Close()
}
