package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/vucinatim/air-jam/backend/go/internal/auth"
	"github.com/vucinatim/air-jam/backend/go/internal/config"
	"github.com/vucinatim/air-jam/backend/go/internal/health"
	"github.com/vucinatim/air-jam/backend/go/internal/logging"
	"github.com/vucinatim/air-jam/backend/go/internal/middleware"
	"github.com/vucinatim/air-jam/backend/go/internal/ratelimit"
	"github.com/vucinatim/air-jam/backend/go/internal/registry"
	"github.com/vucinatim/air-jam/backend/go/internal/router"
)

func main() {
	for _, path := range []string{".env", "../../.env", "../../../.env"} {
		if err := godotenv.Load(path); err == nil {
			break
		}
	}

	cfg, err := config.ValidateEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := logging.Initialize(cfg.GoEnv != "production"); err != nil {
		fmt.Fprintln(os.Stderr, "failed to initialize logger:", err)
		os.Exit(1)
	}
	ctx := context.Background()

	verifier, storeChecker, err := buildVerifier(cfg)
	if err != nil {
		logging.Fatal(ctx, "failed to build auth verifier", zap.Error(err))
	}

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	}
	rl, err := ratelimit.New(cfg.RateLimitWsConnectIP, cfg.RateLimitControllerJoin, redisClient)
	if err != nil {
		logging.Fatal(ctx, "failed to build rate limiter", zap.Error(err))
	}

	reg := registry.New()
	hub := router.New(reg, verifier, rl, cfg)

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.CorrelationID())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.AllowedOrigins
	corsConfig.AllowCredentials = true
	engine.Use(cors.New(corsConfig))

	healthHandler := health.NewHandler(storeChecker)
	engine.GET("/health", healthHandler.Liveness)
	engine.GET("/health/ready", healthHandler.Readiness)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	engine.GET("/ws", hub.ServeWs)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: engine,
	}

	go func() {
		logging.Info(ctx, "air-jam broker listening", zap.Int("port", cfg.Port), zap.String("auth_mode", cfg.AuthMode()))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatal(ctx, "server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logging.Info(ctx, "shutting down broker")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	hub.Shutdown(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error(ctx, "server forced to shutdown", zap.Error(err))
	}

	logging.Info(ctx, "broker exited")
}

// buildVerifier resolves the auth mode §4.2/§6 describe from the validated
// config, returning the health probe's optional store checker alongside it.
func buildVerifier(cfg *config.Config) (auth.Verifier, health.StoreChecker, error) {
	switch cfg.AuthMode() {
	case "store":
		store, err := auth.NewStoreVerifier(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	case "master-key":
		return auth.NewMasterKeyVerifier(cfg.MasterKey), nil, nil
	default:
		return auth.NewDevVerifier(), nil, nil
	}
}
