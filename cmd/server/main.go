package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/lulajax/streamer-hub/internal/auth"
	"github.com/lulajax/streamer-hub/internal/bridge"
	"github.com/lulajax/streamer-hub/internal/config"
	"github.com/lulajax/streamer-hub/internal/database"
	"github.com/lulajax/streamer-hub/internal/logging"
	"github.com/lulajax/streamer-hub/internal/redis"
	"github.com/lulajax/streamer-hub/internal/room"
	"github.com/lulajax/streamer-hub/internal/server"
	"github.com/lulajax/streamer-hub/internal/widget"
	"github.com/lulajax/streamer-hub/internal/widgetdata"
)

const tokenTTL = 24 * time.Hour

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupDB(cfg *config.Config) *pgxpool.Pool {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := database.RunMigrations(ctx, pool); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	return pool
}

// setupRedis connects to Redis when configured. Redis is optional: without it
// the node still works, it just stops sharing invalidations with other nodes.
func setupRedis(cfg *config.Config) *goredis.Client {
	if cfg.RedisURL == "" {
		slog.Info("REDIS_URL not set, cross-node invalidation disabled")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := redis.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func runGracefulShutdown(cancel context.CancelFunc, srv *server.Server, roomHub *room.Hub, widgetHub *widget.Hub) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		roomHub.Stop()
		widgetHub.Stop()
		cancel()

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port)

	pool := setupDB(cfg)
	defer pool.Close()

	redisClient := setupRedis(cfg)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	presetRepo := database.NewPresetRepo(pool)
	sessionRepo := database.NewSessionRepo(pool)
	giftRepo := database.NewGiftRepo(pool)

	tokens := auth.NewService(cfg.JWTSecret, tokenTTL)
	provider := widgetdata.NewProvider(presetRepo, sessionRepo)

	roomHub := room.NewHub(tokens, clock)
	widgetHub := widget.NewHub(provider, clock)

	var relay *bridge.Relay
	if redisClient != nil {
		instanceID := cfg.InstanceID
		if instanceID == "" {
			instanceID = uuid.NewString()
		}
		relay = bridge.NewRelay(redisClient, instanceID)
	}

	changeBridge := bridge.New(sessionRepo, presetRepo, widgetHub, relay)
	bridgeCtx, bridgeCancel := context.WithCancel(context.Background())
	go changeBridge.Run(bridgeCtx)

	srv := server.NewServer(cfg, server.Deps{
		RoomHub:   roomHub,
		WidgetHub: widgetHub,
		Presets:   presetRepo,
		Sessions:  sessionRepo,
		Gifts:     giftRepo,
		Publisher: changeBridge,
		Tokens:    tokens,
		Pool:      pool,
		Redis:     redisClient,
		Clock:     clock,
	})

	done := runGracefulShutdown(bridgeCancel, srv, roomHub, widgetHub)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
