package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/vesting/internal/address"
	"github.com/alfredjeanlab/vesting/internal/config"
	"github.com/alfredjeanlab/vesting/internal/events"
	"github.com/alfredjeanlab/vesting/internal/export"
	"github.com/alfredjeanlab/vesting/internal/keeper"
	"github.com/alfredjeanlab/vesting/internal/server"
	"github.com/alfredjeanlab/vesting/internal/store"
	"github.com/alfredjeanlab/vesting/internal/store/memory"
	"github.com/alfredjeanlab/vesting/internal/store/postgres"
	"github.com/alfredjeanlab/vesting/internal/vesting"
)

// openStore connects the configured store backend.
func openStore(cfg *config.Config, logger *slog.Logger) (store.Store, func() error, error) {
	if cfg.Store == config.StoreMemory {
		logger.Warn("using in-memory store; state is lost on exit")
		return memory.New(), func() error { return nil }, nil
	}
	pg, err := postgres.New(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	return pg, pg.Close, nil
}

// exportDestinations builds the snapshot destinations named in cfg.
func exportDestinations(ctx context.Context, cfg *config.Config, logger *slog.Logger) []export.Destination {
	var dests []export.Destination
	if cfg.ExportS3Bucket != "" {
		s3Dest, err := export.NewS3Destination(ctx, cfg.ExportS3Bucket, cfg.ExportS3Key, cfg.ExportS3Region, cfg.ExportS3Endpoint)
		if err != nil {
			logger.Error("failed to create S3 export destination", "err", err)
		} else {
			dests = append(dests, s3Dest)
			logger.Info("export S3 destination enabled", "bucket", cfg.ExportS3Bucket, "key", cfg.ExportS3Key)
		}
	}
	if cfg.ExportFile != "" {
		dests = append(dests, export.NewFileDestination(cfg.ExportFile))
		logger.Info("export file destination enabled", "path", cfg.ExportFile)
	}
	return dests
}

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Start the vesting server",
	GroupID: "system",
	// The server needs no client connection.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		st, closeStore, err := openStore(cfg, logger)
		if err != nil {
			return err
		}

		var publisher events.Publisher
		if cfg.NATSURL != "" {
			pub, err := events.NewNATSPublisher(cfg.NATSURL)
			if err != nil {
				closeStore()
				return err
			}
			publisher = pub
			logger.Info("events enabled", "nats_url", cfg.NATSURL)
		} else {
			publisher = &events.NoopPublisher{}
			logger.Info("events disabled (VESTING_NATS_URL not set)")
		}

		engine := vesting.New(st,
			vesting.WithLogger(logger),
			vesting.WithPublisher(publisher),
			vesting.WithDeriver(address.NewDeriver(cfg.ProgramID)),
		)
		vestingServer := server.NewVestingServer(engine, logger)
		grpcServer := server.NewGRPCServer(vestingServer, cfg.AuthToken, cfg.SignatureMaxSkew)

		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			publisher.Close()
			closeStore()
			return err
		}
		go func() {
			logger.Info("gRPC server listening", "addr", cfg.GRPCAddr)
			if err := grpcServer.Serve(lis); err != nil {
				logger.Error("gRPC server error", "err", err)
			}
		}()

		httpServer := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           vestingServer.NewHTTPHandler(cfg.AuthToken, cfg.SignatureMaxSkew),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("HTTP server error", "err", err)
			}
		}()

		keeperCtx, keeperCancel := context.WithCancel(context.Background())
		defer keeperCancel()
		var crankKeeper *keeper.Keeper
		if cfg.CrankSchedule != "" {
			k, err := keeper.New(engine, keeper.Config{
				Spec:       cfg.CrankSchedule,
				HubAccount: cfg.CrankHubAccount,
				BatchSize:  cfg.CrankBatch,
				Rate:       cfg.CrankRate,
			}, nil, logger)
			if err == nil {
				err = k.Start(keeperCtx)
			}
			if err != nil {
				logger.Error("crank keeper disabled", "err", err)
			} else {
				crankKeeper = k
			}
		}

		var scheduler *export.Scheduler
		if cfg.ExportInterval > 0 {
			if dests := exportDestinations(context.Background(), cfg, logger); len(dests) > 0 {
				scheduler = export.NewScheduler(st, dests, cfg.ExportInterval, logger)
				scheduler.Start(context.Background())
				logger.Info("export scheduler started", "interval", cfg.ExportInterval)
			}
		}

		logger.Info("vesting server started",
			"grpc_addr", cfg.GRPCAddr,
			"http_addr", cfg.HTTPAddr,
			"store", cfg.Store,
			"program_id", engine.Deriver().ProgramID(),
		)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)

		if crankKeeper != nil {
			keeperCancel()
			crankKeeper.Stop()
			logger.Info("crank keeper stopped")
		}
		if scheduler != nil {
			scheduler.Stop()
			logger.Info("export scheduler stopped")
		}

		grpcServer.GracefulStop()
		logger.Info("gRPC server stopped")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "err", err)
		}
		logger.Info("HTTP server stopped")

		if err := publisher.Close(); err != nil {
			logger.Error("error closing publisher", "err", err)
		}
		if err := closeStore(); err != nil {
			logger.Error("error closing store", "err", err)
		}

		logger.Info("shutdown complete")
		return nil
	},
}
