package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	grpcapi "ai-voice-bridge-service/internal/api/grpc"
	"ai-voice-bridge-service/internal/app"
	"ai-voice-bridge-service/internal/config"
	httpapi "ai-voice-bridge-service/internal/http"
	"ai-voice-bridge-service/internal/observability"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create application")
	}
	defer application.Shutdown()

	if err := application.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start application")
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.Service.HTTPPort,
		Handler:           httpapi.NewRouter(application),
		ReadHeaderTimeout: 10 * time.Second,
	}

	metricsServer := observability.NewServer(cfg.Observability.MetricsAddr, application.Ready)

	healthServer := grpcapi.New()
	lis, err := net.Listen("tcp", ":"+cfg.Service.GRPCHealthPort)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to listen for gRPC health")
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", httpServer.Addr).Msg("AI Voice Bridge service started")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(metricsServer.ListenAndServe)
	g.Go(func() error { return healthServer.Serve(lis) })

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down servers")
		healthServer.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("HTTP shutdown incomplete")
		}

		// Shutdown does not track hijacked WebSocket connections. Live calls
		// get the close timeout to finish before the store and writers close.
		drainCtx, drainCancel := context.WithTimeout(context.Background(), httpapi.CloseTimeout)
		defer drainCancel()
		if err := application.WaitSessions(drainCtx); err != nil {
			log.Warn().Err(err).Msg("Call sessions still open at shutdown")
		}

		metricsCtx, metricsCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer metricsCancel()
		return metricsServer.Shutdown(metricsCtx)
	})

	healthServer.SetServing(true)

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Server error")
	}
}
