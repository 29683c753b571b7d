// Package main is the entry point for the casino bot.
package main

import (
	"context"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"telegram-casino-bot/internal/bot"
	"telegram-casino-bot/internal/config"
	"telegram-casino-bot/internal/display"
	"telegram-casino-bot/internal/game"
	"telegram-casino-bot/internal/game/coinflip"
	"telegram-casino-bot/internal/game/escalator"
	"telegram-casino-bot/internal/game/rps"
	"telegram-casino-bot/internal/handler"
	"telegram-casino-bot/internal/httpapi"
	"telegram-casino-bot/internal/ledger"
	"telegram-casino-bot/internal/metrics"
	"telegram-casino-bot/internal/oracle"
	"telegram-casino-bot/internal/pkg/clock"
	"telegram-casino-bot/internal/pkg/db"
	"telegram-casino-bot/internal/reaper"
	"telegram-casino-bot/internal/registry"
	"telegram-casino-bot/internal/repository"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// .env is optional; real deployments set the environment directly.
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("No .env file loaded")
	}

	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if level, err := zerolog.ParseLevel(cfg.Log.Level); err == nil {
		zerolog.SetGlobalLevel(level)
	} else {
		log.Warn().Str("level", cfg.Log.Level).Msg("Unknown log level, keeping default")
	}
	log.Info().Msg("Configuration loaded successfully")

	metrics.Init()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbPool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbPool.Close()

	if err := db.Migrate(ctx, dbPool.Pool); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	txRepo := repository.NewTransactionRepository(dbPool.Pool)
	rollRepo := repository.NewRollRequestRepository(dbPool.Pool)

	var accounts ledger.Store = ledger.NewMemoryStore()
	if cfg.Ledger.Backend == "postgres" {
		accounts = repository.NewAccountRepository(dbPool.Pool)
	}
	var journal ledger.Journal
	if cfg.Ledger.Journal {
		journal = txRepo
	}
	led := ledger.New(accounts, journal, cfg.Ledger.StartingBalance)

	checks := map[string]httpapi.Pinger{"postgres": dbPool}

	var groupStore registry.Store = registry.NewMemoryStore()
	if cfg.Redis.Enabled {
		rs, err := registry.NewRedisStore(ctx, &cfg.Redis)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to redis")
		}
		defer rs.Close()
		groupStore = rs
		checks["redis"] = rs
	}
	clk := clock.Real{}
	groups := registry.New(groupStore).WithClock(clk.Now)
	table := game.NewTable(game.NewMemoryStore())

	// The game table starts empty, so any chat still claimed in a persistent
	// group store belongs to a game lost in the last shutdown.
	if n, err := groups.ReleaseOrphans(ctx, clk.Now(), 0, table.Has); err != nil {
		log.Error().Err(err).Msg("Failed to release chats left over from the last run")
	} else if n > 0 {
		log.Warn().Int("chats", n).Msg("Released chats left over from the last run")
	}

	bridge := oracle.NewBridge(rollRepo, clk, oracle.Config{
		Interval: cfg.Oracle.PollInterval,
		Attempts: cfg.Oracle.MaxAttempts,
	})
	if cfg.Oracle.LocalRoller {
		go oracle.NewLocalRoller(rollRepo, cfg.Oracle.PollInterval/2).Run(ctx)
	}

	telegramBot, err := bot.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create bot")
	}

	rules := game.Rules{
		MinBet:      cfg.Games.MinBet,
		MaxBet:      cfg.Games.MaxBet,
		JoinTimeout: cfg.Games.JoinTimeout,
	}
	env := &game.Env{
		Ledger:  led,
		Claims:  groups,
		Table:   table,
		Display: display.NewTelegram(telegramBot.API()),
		Clock:   clk,
		Rand:    rand.IntN,
		Rules:   rules,
	}

	rpsGame := rps.New(env)
	escalatorGame := escalator.New(env, bridge, cfg.Games.HouseMaxRolls, cfg.Games.HousePace)

	games := game.NewRegistry()
	for _, g := range []game.Game{coinflip.New(env), rpsGame, escalatorGame} {
		if err := games.Register(g); err != nil {
			log.Fatal().Err(err).Msg("Failed to register game")
		}
	}
	log.Info().
		Int("game_count", len(games.List())).
		Strs("games", games.Commands()).
		Msg("Games registered")

	sweeper := reaper.New(env, groups, bridge, reaper.Config{
		Interval:   cfg.Reaper.Interval,
		StaleAfter: cfg.GameStaleAfter(),
		IdleAfter:  cfg.GroupIdleAfter(),
	})
	go sweeper.Run(ctx)

	telegramBot.Mount(handler.New(handler.Dependencies{
		Accounts:  led,
		Groups:    groups,
		Games:     games,
		Table:     table,
		RPS:       rpsGame,
		Escalator: escalatorGame,
		Sweeper:   sweeper,
		Rules:     rules,
		BotName:   telegramBot.Username(),
		Now:       clk.Now,
	}))

	var httpServer *httpapi.Server
	if cfg.HTTP.Enabled {
		httpServer = httpapi.NewServer(cfg.HTTP.Addr, httpapi.NewRouter(httpapi.Dependencies{
			Table:   table,
			Checks:  checks,
			History: txRepo,
			Now:     clk.Now,
		}))
		go httpServer.Start()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Info().Msg("Bot is starting...")
		telegramBot.Start()
	}()

	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	telegramBot.Stop()
	if httpServer != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("HTTP server shutdown failed")
		}
		done()
	}
	escalatorGame.Wait()
	cancel()
	log.Info().Msg("Bot stopped gracefully")
}
