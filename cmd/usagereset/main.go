package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"tutor/internal/adapter/repo"
	"tutor/internal/domain"
	"tutor/internal/infra"
)

func main() {
	var (
		userFlag    string
		backendFlag string
	)
	flag.StringVar(&userFlag, "user", "", "user id whose usage ledger is reset")
	flag.StringVar(&backendFlag, "backend", "", "ledger backend (postgres or redis); defaults to LEDGER_BACKEND")
	flag.Parse()

	_ = godotenv.Load()

	userID := strings.TrimSpace(userFlag)
	if userID == "" {
		exitWithError(errors.New("-user is required"))
	}
	backend := strings.ToLower(strings.TrimSpace(backendFlag))
	if backend == "" {
		backend = strings.ToLower(strings.TrimSpace(os.Getenv("LEDGER_BACKEND")))
	}
	if backend == "" {
		backend = infra.BackendPostgres
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger := infra.NewLogger("cli").With().Str("cmd", "usagereset").Str("backend", backend).Logger()

	var ledger domain.LedgerStore
	switch backend {
	case infra.BackendPostgres:
		dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
		if dbURL == "" {
			exitWithError(errors.New("DATABASE_URL is required"))
		}
		pool, err := infra.NewDBPool(ctx, &infra.Config{DatabaseURL: dbURL})
		if err != nil {
			exitWithError(fmt.Errorf("failed to connect database: %w", err))
		}
		defer pool.Close()
		ledger = repo.NewLedgerRepository(infra.NewSQLRunner(pool, logger))
	case infra.BackendRedis:
		opts, err := redis.ParseURL(strings.TrimSpace(os.Getenv("REDIS_URL")))
		if err != nil {
			exitWithError(fmt.Errorf("REDIS_URL is invalid: %w", err))
		}
		client := redis.NewClient(opts)
		defer client.Close()
		ledger = repo.NewRedisLedgerRepository(client, "tutor:usage:")
	default:
		exitWithError(fmt.Errorf("unsupported backend %q", backend))
	}

	before, err := ledger.Get(ctx, userID)
	if err != nil {
		exitWithError(fmt.Errorf("failed to load ledger: %w", err))
	}
	if err := ledger.Reset(ctx, userID); err != nil {
		exitWithError(fmt.Errorf("failed to reset ledger: %w", err))
	}

	fmt.Printf("Usage ledger for %s reset\n", userID)
	fmt.Printf("previous_count=%d\n", before.Count)
	if before.ResetAt != nil {
		fmt.Printf("previous_reset_at=%s\n", before.ResetAt.Format(time.RFC3339))
	}
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
