// README: Entry point; loads config, wires services, starts HTTP server and
// the expiry sweeper.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"taxihub/internal/auth"
	"taxihub/internal/config"
	"taxihub/internal/gateway"
	httptransport "taxihub/internal/http"
	"taxihub/internal/infra"
	"taxihub/internal/modules/ban"
	"taxihub/internal/modules/rating"
	"taxihub/internal/modules/stats"
	"taxihub/internal/modules/tariff"
	"taxihub/internal/modules/trip"
	"taxihub/internal/modules/user"
	"taxihub/internal/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := observability.NewLogger(cfg.Log.Level)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		logger.Fatal("database init failed", zap.Error(err))
	}
	defer dbPool.Close()

	redisClient := infra.NewRedis(cfg.Redis.Addr)
	defer func() { _ = redisClient.Close() }()

	gw := gateway.NewHTTPClient(cfg.Gateway.BaseURL, cfg.Gateway.Token)

	userStore := user.NewStore(dbPool)
	userSvc := user.NewService(userStore)

	banStore := ban.NewStore(dbPool)
	strikes := ban.NewRedisStrikes(redisClient)
	guard := ban.NewGuard(banStore, strikes, cfg.Guard, logger)

	ratingStore := rating.NewStore(dbPool)
	ratingSvc := rating.NewService(ratingStore)

	catalogue := tariff.NewStore(dbPool)
	statsStore := stats.NewStore(dbPool)

	tripStore := trip.NewPgStore(dbPool)
	engine := trip.NewEngine(tripStore, userSvc, guard, ratingSvc, catalogue, gw, cfg.Trip, logger)

	tokens := auth.NewManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	handler := httptransport.NewRouter(httptransport.ServerDeps{
		Trips:         engine,
		Users:         userSvc,
		Guard:         guard,
		Catalogue:     catalogue,
		Stats:         statsStore,
		Tokens:        tokens,
		AdminPassword: cfg.Auth.AdminPassword,
		Log:           logger,
	})

	server := &http.Server{Addr: cfg.HTTP.Addr, Handler: handler}

	go engine.RunExpirySweeper(ctx)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("server starting", zap.String("addr", cfg.HTTP.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server stopped", zap.Error(err))
	}
	logger.Info("server stopped")
}
