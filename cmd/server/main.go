package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Nixie-Tech-LLC/herald/internal/config"
	"github.com/Nixie-Tech-LLC/herald/internal/db"
	"github.com/Nixie-Tech-LLC/herald/internal/device"
	"github.com/Nixie-Tech-LLC/herald/internal/http/middleware"
	"github.com/Nixie-Tech-LLC/herald/internal/mqtt"
	"github.com/Nixie-Tech-LLC/herald/internal/redis"
	"github.com/Nixie-Tech-LLC/herald/internal/schedule"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// initialize PostgreSQL
	conn, err := db.Init(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("db init")
	}
	defer conn.Close()

	// run pending migrations
	if err := db.RunMigrations(conn, cfg.MigrationsPath); err != nil {
		log.Fatal().Err(err).Msg("db migrate")
	}
	store := db.NewStore(conn)

	sessions := device.NewService(store, device.WithDebounce(cfg.SyncDebounce))

	// cross-instance flush relay
	if cfg.RedisAddress != "" {
		client, err := redis.NewClient(ctx, cfg.RedisAddress, cfg.RedisUsername, cfg.RedisPassword)
		if err != nil {
			log.Fatal().Err(err).Msg("redis init")
		}
		defer client.Close()

		relay := redis.NewRelay(client)
		sessions.SetRelay(relay)
		go func() {
			err := relay.Subscribe(ctx, func(ctx context.Context, playerID int) {
				if err := sessions.Flush(ctx, playerID); err != nil && !errors.Is(err, device.ErrOffline) {
					log.Warn().Err(err).Int("player_id", playerID).Msg("relayed flush failed")
				}
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("redis relay stopped")
			}
		}()
	}

	// players that speak MQTT instead of websockets
	if cfg.MQTTBrokerURL != "" {
		client, err := mqtt.Connect(cfg.MQTTBrokerURL, "herald-server")
		if err != nil {
			log.Fatal().Err(err).Msg("mqtt connect")
		}
		defer mqtt.Disconnect(client)

		bridge := mqtt.NewBridge(client, sessions)
		if err := bridge.Start(ctx, client); err != nil {
			log.Fatal().Err(err).Msg("mqtt subscribe")
		}
		defer bridge.Close()
	}

	files := InitStorage(cfg)
	compiler := schedule.NewCompiler(store)

	if cfg.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger())
	RegisterRoutes(r, cfg, store, sessions, compiler, files)

	srv := &http.Server{Addr: cfg.ServerAddress, Handler: r}
	go func() {
		log.Info().Str("addr", cfg.ServerAddress).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	// hijacked websockets are not tracked by Shutdown; closing the service drops them
	sessions.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}

func setupLogging(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339
	if cfg.Environment == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}
