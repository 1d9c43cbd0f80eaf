package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"tutor/internal/adapter/repo"
	"tutor/internal/conversation"
	"tutor/internal/infra"
	"tutor/internal/sweeper"
)

func main() {
	once := flag.Bool("once", false, "run a single sweep and exit")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv).With().Str("cmd", "sweeper").Logger()
	if cfg.StoreBackend != infra.BackendPostgres {
		logger.Fatal().Str("store_backend", cfg.StoreBackend).Msg("sweeper needs STORE_BACKEND=postgres; memory sessions are swept by the api process")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("sweeper: db connection failed")
	}
	defer pool.Close()

	store := conversation.NewStore(repo.NewConversationRepository(infra.NewSQLRunner(pool, logger)), logger)
	sw, err := sweeper.New(sweeper.Options{
		Sessions: store,
		IdleTTL:  cfg.SessionIdleTTL,
		Schedule: cfg.SweepSchedule,
		Logger:   logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("sweeper init failed")
	}

	if *once {
		runCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
		defer cancel()
		n, err := sw.RunOnce(runCtx)
		if err != nil {
			logger.Fatal().Err(err).Msg("sweep failed")
		}
		logger.Info().Int64("ended", n).Msg("sweep complete")
		return
	}

	sw.Start()
	<-ctx.Done()
	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sw.Stop(stopCtx)
	logger.Info().Msg("sweeper stopped")
}
