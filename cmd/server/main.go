package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	httpapi "github.com/escrowroom/escrowroom/internal/api/http"
	"github.com/escrowroom/escrowroom/internal/application/auth"
	"github.com/escrowroom/escrowroom/internal/application/deposit"
	"github.com/escrowroom/escrowroom/internal/application/dispute"
	approom "github.com/escrowroom/escrowroom/internal/application/room"
	"github.com/escrowroom/escrowroom/internal/application/sweeper"
	"github.com/escrowroom/escrowroom/internal/config"
	"github.com/escrowroom/escrowroom/internal/domain/settlement"
	"github.com/escrowroom/escrowroom/internal/infrastructure/gateway"
	"github.com/escrowroom/escrowroom/internal/infrastructure/keystore"
	"github.com/escrowroom/escrowroom/internal/infrastructure/postgres"
	"github.com/escrowroom/escrowroom/internal/infrastructure/sse"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db error: %v", err)
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool, "internal/migrations"); err != nil {
		log.Fatalf("migration error: %v", err)
	}

	// repositories
	roomRepo := postgres.NewRoomRepository(pool)
	settlementRepo := postgres.NewSettlementRepository(pool)
	disputeRepo := postgres.NewDisputeRepository(pool)
	userRepo := postgres.NewUserRepository(pool)
	sessionRepo := postgres.NewSessionRepository(pool)

	// infrastructure
	sseHub := sse.NewHub(logger)
	locks := approom.NewLocker()

	var gw settlement.Gateway
	var sim settlement.Simulator
	simulated := cfg.GatewayMode == config.GatewaySimulated
	if simulated {
		simGw := gateway.NewSimulated(logger)
		gw, sim = simGw, simGw
	} else {
		keys, err := keystore.NewFromEnv()
		if err != nil {
			log.Fatalf("keystore error: %v", err)
		}
		gw = gateway.NewHTTPClient(cfg.GatewayURL, cfg.GatewayTimeout, keys, logger)
	}

	// services
	authSvc := auth.NewService(userRepo, sessionRepo, cfg.SessionTTL, logger)
	roomSvc := approom.NewService(roomRepo, settlementRepo, gw, sseHub, userRepo, locks, simulated, logger)
	depositSvc := deposit.NewService(roomRepo, gw, sim, sseHub, locks, logger)
	disputeSvc := dispute.NewService(disputeRepo, roomRepo, sseHub, userRepo, logger)
	sweepSvc := sweeper.NewService(roomRepo, sseHub, locks, cfg.NegotiationTTL, cfg.DepositTTL, cfg.ExpiryWarning, logger)

	// API server
	roomDefaults := httpapi.RoomDefaults{
		ChainID:       cfg.ChainID,
		TokenSymbol:   cfg.TokenSymbol,
		TokenDecimals: cfg.TokenDecimals,
	}
	apiServer := httpapi.NewServer(roomSvc, depositSvc, disputeSvc, authSvc, settlementRepo, sseHub, roomDefaults, cfg.SessionCookieName, cfg.SessionCookieSecure)

	httpServer := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      apiServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// background loops
	go func() {
		ticker := time.NewTicker(cfg.SweepInterval)
		defer ticker.Stop()
		for range ticker.C {
			if _, err := sweepSvc.Sweep(context.Background()); err != nil {
				logger.Error().Err(err).Msg("sweep pass failed")
			}
			if _, err := sweepSvc.Warn(context.Background()); err != nil {
				logger.Error().Err(err).Msg("warn pass failed")
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for range ticker.C {
			if n, err := sessionRepo.DeleteExpired(context.Background()); err == nil && n > 0 {
				logger.Info().Int("deleted", n).Msg("expired sessions pruned")
			}
		}
	}()

	// start server
	go func() {
		logger.Info().Str("addr", cfg.ServerAddr).Str("gateway_mode", string(cfg.GatewayMode)).Msg("http server started")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	// graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctxShutdown)
	sseHub.Stop()
}
