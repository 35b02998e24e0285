package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/wfunc/partygame/auth"
	"github.com/wfunc/partygame/broadcast"
	"github.com/wfunc/partygame/config"
	"github.com/wfunc/partygame/game"
	"github.com/wfunc/partygame/logger"
	"github.com/wfunc/partygame/monitor"
	"github.com/wfunc/partygame/persistence"
	"github.com/wfunc/partygame/quizbank"
	"github.com/wfunc/partygame/ratelimit"
	"github.com/wfunc/partygame/room"
	"github.com/wfunc/partygame/server"
	"github.com/wfunc/partygame/session"
	"github.com/wfunc/partygame/timer"
)

const metricsRefresh = 10 * time.Second

func main() {
	configPath := flag.String("config", ".", "directory containing config.yaml")
	flag.Parse()

	logger.Init("info")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Log.Fatalf("Failed to load configuration: %v", err)
	}
	logger.Init(cfg.Log.Level)
	defer logger.Sync()
	log := logger.L()

	store, err := openStore(cfg)
	if err != nil {
		logger.Log.Fatalf("Failed to open room store: %v", err)
	}
	defer store.Close()

	bank, closeBank, err := openBank(cfg)
	if err != nil {
		logger.Log.Fatalf("Failed to open quiz bank: %v", err)
	}
	defer closeBank()

	sessions := session.NewManager()
	local := broadcast.NewRoomBroadcaster(sessions, log)
	var broadcaster room.Broadcaster = local
	var remote server.Channel
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			logger.Log.Fatalf("Failed to connect to redis: %v", err)
		}
		defer client.Close()
		channel := broadcast.NewRedisChannel(client, log)
		broadcaster = broadcast.NewFanout(local, channel)
		remote = channel
		log.Info("redis channel enabled", zap.String("addr", cfg.Redis.Addr))
	}

	metrics := monitor.NewMetrics("partygame")

	engineCfg := game.Config{
		Bank:                  bank,
		Points:                cfg.Quiz.Points,
		QuizDuration:          cfg.Quiz.Duration,
		DefaultCountdown:      cfg.Game.DefaultCountdown,
		QuizOrder:             cfg.Quiz.Order,
		RepresentativeByTable: cfg.Quiz.RepresentativeByTable,
		RemoveOnDisconnect:    cfg.Room.RemoveOnDisconnect,
	}

	timers := timer.NewTimerManager()
	defer timers.Stop()

	if cfg.RateLimit.Enabled {
		limiter := ratelimit.New(ratelimit.Policy{
			TapMinInterval:    cfg.RateLimit.TapMinInterval,
			TapWindow:         cfg.RateLimit.TapWindow,
			TapWindowBudget:   cfg.RateLimit.TapWindowBudget,
			AnswerMinInterval: cfg.RateLimit.AnswerMinInterval,
			IdleTTL:           cfg.RateLimit.IdleTTL,
		})
		engineCfg.Limiter = limiter
		timers.AddTimer(cfg.RateLimit.SweepInterval, cfg.RateLimit.SweepInterval, func() {
			if n := limiter.Sweep(time.Now()); n > 0 {
				log.Debug("rate limiter swept", zap.Int("evicted", n))
			}
		})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rooms := room.NewRoomManager(ctx, room.Options{
		Engine:       engineCfg,
		Store:        store,
		Broadcaster:  broadcaster,
		Metrics:      metrics,
		Logger:       log,
		TickInterval: cfg.Game.TickInterval,
		SaveInterval: cfg.Room.SaveInterval,
		InboxSize:    cfg.Room.InboxSize,
	})
	timers.AddTimer(metricsRefresh, metricsRefresh, func() {
		metrics.SetActiveRooms(rooms.Count())
	})

	var authenticator *auth.Authenticator
	if cfg.Auth.Enabled {
		authenticator = auth.NewAuthenticator(cfg.Auth.AdminPasswordHash, auth.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.ExpireHours))
	} else {
		log.Warn("admin auth disabled, anyone may host")
	}

	gameServer := server.NewGameServer(server.Options{
		HTTPAddress:    cfg.Server.HTTPAddress,
		RPCAddress:     cfg.Server.RPCAddress,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Rooms:          rooms,
		Sessions:       sessions,
		Auth:           authenticator,
		Redis:          remote,
		Metrics:        metrics,
		Logger:         log,
	})

	logger.Log.Infof("Starting party game server on %s", cfg.Server.HTTPAddress)
	if err := gameServer.Start(ctx); err != nil {
		log.Error("server stopped", zap.Error(err))
	}
	log.Info("bye")
}

func openStore(cfg *config.Config) (persistence.Store, error) {
	if cfg.Database.Driver != "postgres" {
		return persistence.NewMemoryStore(), nil
	}
	store, err := persistence.NewGormPostgreSQL(cfg.Database.Postgres.DSN())
	if err != nil {
		return nil, err
	}
	logger.Log.Info("Database connection successful.")
	return store, nil
}

// openBank 使用 postgres 题库时，空表会写入内置题目
func openBank(cfg *config.Config) (quizbank.Bank, func(), error) {
	if cfg.Quiz.Bank != "postgres" {
		return quizbank.NewMemoryBank(quizbank.DemoQuestions()), func() {}, nil
	}
	bank, err := quizbank.NewPostgresBank(cfg.Database.Postgres.DSN())
	if err != nil {
		return nil, nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	n, err := bank.Count(ctx)
	if err != nil {
		bank.Close()
		return nil, nil, err
	}
	if n == 0 {
		if err := bank.Upsert(ctx, quizbank.DemoQuestions()); err != nil {
			bank.Close()
			return nil, nil, err
		}
		logger.Log.Infof("Seeded quiz bank with %d demo questions", len(quizbank.DemoQuestions()))
	}
	return bank, func() { _ = bank.Close() }, nil
}
