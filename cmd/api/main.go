package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"tutor/internal/adapter/repo"
	"tutor/internal/conversation"
	"tutor/internal/domain"
	"tutor/internal/http/handlers"
	httpapi "tutor/internal/http/httpapi"
	"tutor/internal/infra"
	"tutor/internal/infra/credentials"
	"tutor/internal/infra/geoip"
	"tutor/internal/metrics"
	"tutor/internal/middleware"
	"tutor/internal/orchestrator"
	"tutor/internal/plans"
	"tutor/internal/providers/chat"
	"tutor/internal/quota"
	"tutor/internal/storage"
	"tutor/internal/streamer"
	"tutor/internal/sweeper"
)

func main() {
	// Muat .env (opsional)
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	flushSentry := infra.InitSentry(cfg, logger)
	defer flushSentry()
	shutdownTracing, err := infra.InitTracing(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("tracing init failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// DB pool (pgxpool), hanya jika ada backend postgres
	var (
		pool   *pgxpool.Pool
		runner *infra.SQLRunner
	)
	if cfg.NeedsDatabase() {
		pool, err = infra.NewDBPool(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect database")
		}
		defer pool.Close()
		if cfg.AutoMigrate {
			if err := infra.Migrate(ctx, pool, logger); err != nil {
				logger.Fatal().Err(err).Msg("migration failed")
			}
		}
		runner = infra.NewSQLRunner(pool, logger)
	}

	var redisClient *redis.Client
	if cfg.LedgerBackend == infra.BackendRedis {
		redisClient, err = infra.NewRedisClient(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect redis")
		}
		defer redisClient.Close()
	}

	catalog, err := loadCatalog(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("plan catalog invalid")
	}

	m := metrics.New()

	gate, err := quota.NewGate(quota.Options{
		Plans:   catalog,
		Ledger:  newLedger(cfg, runner, redisClient),
		Logger:  logger.With().Str("component", "quota").Logger(),
		Metrics: m,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("quota gate init failed")
	}

	var convRepo domain.ConversationRepository = conversation.NewMemoryRepository()
	if cfg.StoreBackend == infra.BackendPostgres {
		convRepo = repo.NewConversationRepository(runner)
	}
	store := conversation.NewStore(convRepo, logger.With().Str("component", "conversation").Logger())

	backend, err := newChatBackend(ctx, cfg, runner, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("chat backend init failed")
	}

	replier, err := streamer.New(streamer.Options{
		Backend:        backend,
		Logger:         logger.With().Str("component", "streamer").Str("provider", backend.Name()).Logger(),
		Metrics:        m,
		BackendTimeout: cfg.BackendTimeout,
		DrainTimeout:   cfg.StreamDrainTimeout,
		Keepalive:      cfg.StreamKeepalive,
		AutoFallback:   cfg.StreamAutoFallback,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("streamer init failed")
	}

	orch, err := orchestrator.New(orchestrator.Options{
		Gate:          gate,
		Conversations: store,
		Replier:       replier,
		Logger:        logger.With().Str("component", "orchestrator").Logger(),
		HistoryTurns:  cfg.HistoryTurns,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("orchestrator init failed")
	}

	files, err := storage.NewFileStore(cfg.StoragePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("storage init failed")
	}

	var lookup middleware.CountryLookup
	resolver, err := geoip.Open(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	} else if resolver != nil {
		lookup = resolver.CountryCode
		defer resolver.Close()
	}

	app := &handlers.App{
		Converser:      orch,
		Conversations:  store,
		Usage:          gate,
		Plans:          catalog,
		Attachments:    files,
		Metrics:        m,
		Logger:         logger,
		Ready:          readiness(runner, redisClient),
		StorageBaseURL: cfg.StorageBaseURL,
	}

	limiter := middleware.NewRateLimiter(cfg.RateLimitPerMin, max(cfg.RateLimitPerMin/6, 1))
	router := httpapi.NewRouter(app, httpapi.Options{
		Logger:        logger,
		Metrics:       m,
		RateLimiter:   limiter,
		JWTSecret:     cfg.JWTSecret,
		DefaultPlan:   catalog.DefaultID(),
		DefaultLocale: cfg.DefaultLocale,
		CORSOrigins:   cfg.CORSOrigins,
		CountryLookup: lookup,
		Static:        files.Handler(),
	})

	// Memory sessions live in this process, so the sweeper has to as well.
	if cfg.StoreBackend == infra.BackendMemory && cfg.SessionIdleTTL > 0 {
		sw, err := sweeper.New(sweeper.Options{
			Sessions: store,
			IdleTTL:  cfg.SessionIdleTTL,
			Schedule: cfg.SweepSchedule,
			Logger:   logger.With().Str("component", "sweeper").Logger(),
			Metrics:  m,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("sweeper init failed")
		}
		sw.Start()
		defer sw.Stop(context.Background())
	}

	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := limiter.Sweep(); n > 0 {
					logger.Debug().Int("visitors", n).Msg("rate limiter swept")
				}
			}
		}
	}()

	server := infra.NewHTTPServer(cfg, router)
	go func() {
		logger.Info().Str("provider", backend.Name()).Msgf("API listening on %s", server.Addr())
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), server.ShutdownTimeout())
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("tracing shutdown failed")
	}
	logger.Info().Msg("server stopped")
}

func loadCatalog(cfg *infra.Config) (*plans.Catalog, error) {
	if cfg.PlanCatalogPath != "" {
		return plans.LoadFile(cfg.PlanCatalogPath, cfg.DefaultPlan)
	}
	return plans.NewCatalog(plans.Defaults(), cfg.DefaultPlan)
}

func newLedger(cfg *infra.Config, runner *infra.SQLRunner, client *redis.Client) domain.LedgerStore {
	switch cfg.LedgerBackend {
	case infra.BackendRedis:
		return repo.NewRedisLedgerRepository(client, "tutor:usage:")
	case infra.BackendMemory:
		return quota.NewMemoryLedger()
	}
	return repo.NewLedgerRepository(runner)
}

// newChatBackend picks the generation backend. An OpenAI key missing from
// the environment is looked up in integration_tokens before giving up.
func newChatBackend(ctx context.Context, cfg *infra.Config, runner *infra.SQLRunner, logger infra.Logger) (chat.Backend, error) {
	switch cfg.ChatProvider {
	case chat.ProviderOpenAI:
		opts := chat.OpenAIOptions{
			APIKey:       cfg.OpenAIAPIKey,
			Model:        cfg.OpenAIModel,
			BaseURL:      cfg.OpenAIBaseURL,
			Organization: cfg.OpenAIOrg,
			OnWarning: func(reason, detail string) {
				logger.Warn().Str("reason", reason).Str("detail", detail).Msg("openai config adjusted")
			},
		}
		if opts.APIKey == "" && runner != nil {
			lookupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			stored, err := credentials.NewStore(runner).Lookup(lookupCtx, credentials.ProviderOpenAI)
			cancel()
			if err != nil {
				logger.Warn().Err(err).Msg("stored openai key lookup failed")
			}
			if !stored.Empty() {
				opts.APIKey = stored.Token
				if stored.Model != "" {
					opts.Model = stored.Model
				}
				if stored.BaseURL != "" && opts.BaseURL == "" {
					opts.BaseURL = stored.BaseURL
				}
				logger.Info().Time("stored_at", stored.UpdatedAt).Msg("using stored openai key")
			}
		}
		if opts.APIKey == "" {
			if cfg.AppEnv == "production" {
				return nil, domain.ConfigurationError("OPENAI_API_KEY is required", nil)
			}
			logger.Warn().Msg("openai key missing, using static backend")
			return chat.NewStaticBackend(), nil
		}
		return chat.NewOpenAIBackend(opts)
	case chat.ProviderOllama:
		return chat.NewOllamaBackend(chat.OllamaOptions{
			ServerURL: cfg.OllamaURL,
			Model:     cfg.OllamaModel,
		})
	}
	return chat.NewStaticBackend(), nil
}

func readiness(runner *infra.SQLRunner, client *redis.Client) func(context.Context) error {
	return func(ctx context.Context) error {
		if runner != nil {
			if err := runner.Ping(ctx); err != nil {
				return err
			}
		}
		if client != nil {
			if err := client.Ping(ctx).Err(); err != nil {
				return err
			}
		}
		return nil
	}
}
