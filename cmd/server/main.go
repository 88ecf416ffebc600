package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"amkj-server/internal/admin"
	"amkj-server/internal/clients"
	"amkj-server/internal/config"
	"amkj-server/internal/counter"
	"amkj-server/internal/datastore"
	"amkj-server/internal/db"
	"amkj-server/internal/matchmaking"
	"amkj-server/internal/ranking"
	"amkj-server/internal/registry"
	"amkj-server/internal/rmc"
	"amkj-server/internal/status"
	"amkj-server/internal/tournament"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := zerolog.New(os.Stderr)
		bootLogger.Fatal().Err(err).Msg("load config")
	}

	logger := newLogger(cfg)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := db.New(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect document store")
	}
	defer database.Close(context.Background())

	if err := database.Init(ctx); err != nil {
		logger.Fatal().Err(err).Msg("initialise document store")
	}

	counters, err := counter.New(ctx, cfg.RedisURI)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect counter store")
	}
	defer counters.Close()

	connections := registry.New()

	statusCtrl, err := status.NewController(ctx, status.NewMongoStore(database.Status), connections, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("load server status")
	}
	go statusCtrl.Run(ctx)

	friends := clients.NewFriends(cfg.FriendsURL, cfg.FriendsAPIKey)
	accounts := clients.NewAccount(cfg.AccountURL, cfg.AccountAPIKey)

	// Feature engines.
	tournamentStore := tournament.NewMongoStore(database.Tournaments)
	tournaments := tournament.NewService(tournamentStore, database, logger)

	gatheringStore := matchmaking.NewMongoStore(database.Gatherings)
	gatherings := matchmaking.NewService(gatheringStore, database, friends, connections, logger)

	commonDataStore := ranking.NewMongoCommonDataStore(database.CommonData)
	rankings := ranking.NewService(
		ranking.NewMongoScoreStore(database.Rankings),
		ranking.NewMongoCompetitionStore(database.TournamentScores),
		commonDataStore,
		tournamentStore,
		counters,
		logger)

	objects := datastore.NewService(
		datastore.NewMongoStore(database.DataStore),
		datastore.NewCDNProber(cfg.BucketName, cfg.CDNDomain),
		database,
		logger)

	// Rendezvous listeners.
	granter := rmc.NewTicketGranter(cfg.SecurePassword)
	sessions := rmc.NewMongoSessions(database.Sessions)

	authServer := rmc.NewAuthServer(cfg.AccessKey, logger)
	rmc.NewAuthHandlers(statusCtrl, accounts, granter, cfg.ExternalAddress, cfg.SecurePort, logger).
		Register(authServer)

	secureServer := rmc.NewSecureServer(granter, statusCtrl, connections, sessions, cfg.AccessKey, logger)
	rmc.NewSecureHandlers(sessions, logger).Register(secureServer)
	rmc.NewMatchmakingHandlers(gatherings, tournaments, logger).Register(secureServer)
	rmc.NewRankingHandlers(rankings, logger).Register(secureServer)
	rmc.NewDataStoreHandlers(objects, logger).Register(secureServer)

	adminServer := admin.NewServer(statusCtrl, connections, gatheringStore, tournamentStore,
		commonDataStore, cfg.AdminAPIKey, logger)

	servers := []*http.Server{
		{Addr: cfg.AuthAddr, Handler: authServer.Router()},
		{Addr: cfg.SecureAddr, Handler: secureServer.Router()},
		{Addr: cfg.AdminAddr, Handler: adminServer.Router()},
	}
	for _, srv := range servers {
		srv := srv
		go func() {
			logger.Info().Str("addr", srv.Addr).Msg("listener up")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Fatal().Err(err).Str("addr", srv.Addr).Msg("listener failed")
			}
		}()
	}

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	statusCtrl.Shutdown(shutdownCtx)
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Str("addr", srv.Addr).Msg("listener shutdown")
		}
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.LogFormat == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.Level(level).With().Timestamp().Logger()
}
