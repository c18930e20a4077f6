// Package main is the entry point for the Discord economy bot.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/bot"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/config"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/game/attack"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/game/guildwar"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/game/lottery"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/game/prediction"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/game/trap"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/handler"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/metrics"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/pkg/db"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/pkg/lock"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/pkg/rng"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/repository"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/scheduler"
	"github.com/LCKYN/fifatargrean-discord-bot-v2/internal/service"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	for _, file := range []string{".env.secret", ".env"} {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn().Err(err).Str("file", file).Msg("Failed to load env file")
		}
	}

	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if level, err := zerolog.ParseLevel(cfg.Log.Level); err == nil {
		zerolog.SetGlobalLevel(level)
	} else {
		log.Warn().Str("level", cfg.Log.Level).Msg("Unknown log level, using info")
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	log.Info().Msg("Configuration loaded successfully")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = log.Logger.WithContext(ctx)

	pool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool.Pool); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	// Repositories
	users := repository.NewUserRepository(pool)
	settings := repository.NewSettingsRepository(pool)
	roles := repository.NewRoleRepository(pool)
	history := repository.NewAttackHistoryRepository(pool)
	tickets := repository.NewLotteryRepository(pool)
	markets := repository.NewPredictionRepository(pool)
	wars := repository.NewGuildWarRepository(pool)

	userLock := lock.NewUserLock()
	src := rng.Default()

	// Services
	accounts := service.NewAccountService(pool, users, src)
	transfers := service.NewTransferService(pool, users, settings)
	rankings := service.NewRankingService(users, roles)
	shop := service.NewShopService(pool, users, roles, cfg.Economy.RoleDuration())
	shutups := service.NewShutupService(pool, users, settings, src)
	airdrops := service.NewAirdropService(pool, users, settings, src)
	daily := service.NewDailyService(pool, users, settings)

	prices, err := cfg.Economy.ParseRolePrices()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid role prices")
	}
	if err := shop.Seed(ctx, prices); err != nil {
		log.Fatal().Err(err).Msg("Failed to seed the role shop")
	}

	// Games
	attacks := attack.NewService(pool, users, settings, history, userLock, src)
	attacks.SetProtected(func(userID int64) bool {
		return cfg.Discord.IsProtected(strconv.FormatInt(userID, 10))
	})
	traps := trap.NewEngine(pool, users, settings, roles, userLock, cfg.Discord.PenaltyRoleID)
	lotto := lottery.NewService(pool, users, settings, tickets, userLock, src)
	predictions := prediction.NewService(pool, users, settings, markets, cfg.Economy.PredictionCost)
	guildWars := guildwar.NewService(pool, users, settings, wars, src)

	// Handlers
	trapHandler := handler.NewTrapHandler(cfg, traps)
	airdropHandler := handler.NewAirdropHandler(cfg, airdrops)
	predictionHandler := handler.NewPredictionHandler(cfg, predictions)
	events := handler.NewEvents(cfg, accounts, trapHandler, airdropHandler)

	b, err := bot.New(ctx, cfg, events,
		handler.NewAccountHandler(cfg, accounts),
		handler.NewTransferHandler(cfg, transfers),
		handler.NewBegHandler(cfg, accounts, transfers, attacks),
		handler.NewAttackHandler(ctx, cfg, attacks),
		handler.NewShutupHandler(cfg, shutups),
		handler.NewShopHandler(cfg, shop),
		handler.NewAdminHandler(cfg, accounts, airdrops, daily),
		airdropHandler,
		handler.NewRankingHandler(cfg, rankings),
		trapHandler,
		handler.NewLotteryHandler(cfg, lotto),
		predictionHandler,
		handler.NewGuildWarHandler(cfg, guildWars),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create bot")
	}

	sched := scheduler.New()
	sched.Every("prediction_lock", cfg.Scheduler.PredictionLockInterval, predictionHandler.LockJob(b.Session))
	sched.Every("role_expiry", cfg.Scheduler.RoleExpiryInterval, func(ctx context.Context, now time.Time) error {
		n, err := shop.ExpireDue(ctx, now, handler.RoleRevoker(b.Session, cfg.Discord.GuildID))
		if n > 0 {
			log.Info().Int("count", n).Msg("Expired shop roles removed")
		}
		return err
	})
	sched.Every("trap_prune", cfg.Scheduler.TrapPruneInterval, func(_ context.Context, now time.Time) error {
		if n := traps.Prune(now); n > 0 {
			log.Debug().Int("count", n).Msg("Expired traps pruned")
		}
		return nil
	})
	sched.Daily("daily", func(ctx context.Context, now time.Time) error {
		_, err := daily.Run(log.Logger.WithContext(ctx), now)
		return err
	})

	metricsServer := metrics.NewServer(cfg.Metrics.Addr, pool)
	metricsServer.Start()

	if err := b.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start bot")
	}
	sched.Start(ctx)
	log.Info().Msg("Bot is running. Press CTRL-C to exit.")

	<-ctx.Done()
	log.Info().Msg("Received shutdown signal")

	b.Stop()
	sched.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Metrics server shutdown failed")
	}
	log.Info().Msg("Bot stopped gracefully")
}
