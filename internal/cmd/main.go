package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mintkit/gameroom/internal/auth"
	"github.com/mintkit/gameroom/internal/dbconfig"
	"github.com/mintkit/gameroom/internal/events"
	"github.com/mintkit/gameroom/internal/game/cards"
	"github.com/mintkit/gameroom/internal/game/duel"
	"github.com/mintkit/gameroom/internal/game/golf"
	"github.com/mintkit/gameroom/internal/game/race"
	"github.com/mintkit/gameroom/internal/gateway"
	"github.com/mintkit/gameroom/internal/room"
	"github.com/mintkit/gameroom/internal/store"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := loadConfig(getEnv("CONFIG_PATH", "config.yaml"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Persistence backend
	var gameStore room.Store
	var pool *pgxpool.Pool
	switch cfg.Persistence.Backend {
	case "postgres":
		dbCfg := dbconfig.NewConfigFromEnv()
		pool, err = pgxpool.New(ctx, dbCfg.DSN())
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		if err := pool.Ping(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to ping database")
		}
		defer pool.Close()
		gameStore = store.NewPostgres(pool)
		log.Info().Str("database", dbCfg.Database).Msg("using postgres persistence")
	default:
		gameStore = store.NewMemory()
		log.Info().Msg("using in-memory persistence")
	}

	// Optional event publishing
	var publisher room.MatchEventPublisher
	if cfg.NATS.Enabled {
		jsCfg := events.DefaultJetStreamConfig()
		jsCfg.URL = getEnv("NATS_URL", cfg.NATS.URL)
		jsPublisher, err := events.NewJetStreamPublisher(jsCfg)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to NATS")
		}
		defer jsPublisher.Close()
		publisher = jsPublisher
		log.Info().Str("url", jsCfg.URL).Msg("publishing match events to NATS")
	}

	// Authentication
	var authenticator auth.Authenticator
	switch cfg.Auth.Mode {
	case "insecure":
		log.Warn().Msg("insecure auth mode enabled, tokens are trusted as-is")
		authenticator = auth.InsecureAuthenticator{}
	default:
		secret := os.Getenv("JWT_SECRET")
		if secret == "" {
			log.Fatal().Msg("JWT_SECRET environment variable is required")
		}
		authenticator = auth.NewJWTAuthenticator([]byte(secret))
	}

	// Game catalog
	specs := map[string]room.GameSpec{
		"cards": cards.Spec(),
		"duel":  duel.Spec(),
		"race":  race.Spec(),
		"golf":  golf.Spec(),
	}
	games := make(map[string]room.GameSpec)
	for _, name := range cfg.Rooms.EnabledGames {
		spec, ok := specs[name]
		if !ok {
			log.Fatal().Str("game", name).Msg("unknown game in enabled_games")
		}
		games[name] = spec
	}

	registry := room.NewRegistry(room.RegistryOptions{
		Store:       gameStore,
		Publisher:   publisher,
		GraceWindow: cfg.graceWindow(),
		Games:       games,
	})

	handler := gateway.NewHandler(registry, authenticator, gateway.DefaultConnectionConfig())
	server := setupServer(cfg, handler)

	go func() {
		log.Info().Str("addr", server.Addr).Strs("games", cfg.Rooms.EnabledGames).Msg("game room server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	// Suspend-saves playing matches and closes every connection.
	registry.DisposeAll("shutdown")

	log.Info().Msg("game room server shutdown complete")
}
