package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/ndewijer/valuation-engine/internal/config"
	"github.com/ndewijer/valuation-engine/internal/database"
	"github.com/ndewijer/valuation-engine/internal/ibkr"
	"github.com/ndewijer/valuation-engine/internal/logging"
	"github.com/ndewijer/valuation-engine/internal/repository"
	"github.com/ndewijer/valuation-engine/internal/scheduler"
	"github.com/ndewijer/valuation-engine/internal/service"
	"github.com/ndewijer/valuation-engine/internal/yahoo"
)

// jobTimeout bounds a single scheduled refresh.
const jobTimeout = 30 * time.Minute

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logging.NewConsole("info").Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := newLogger(cfg.Log)

	// Open database connection
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer db.Close()

	if err := database.HealthCheck(db); err != nil {
		log.Fatal().Err(err).Msg("Database health check failed")
	}
	if err := database.Migrate(context.Background(), db); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate database")
	}
	log.Info().Str("path", cfg.Database.Path).Msg("Connected to database")

	// Create repositories
	refRepo := repository.NewReferenceRepository(db)
	accountRepo := repository.NewAccountRepository(db)
	portfolioRepo := repository.NewPortfolioRepository(db)
	transactionRepo := repository.NewTransactionRepository(db)

	// Create services
	cache := service.NewSeriesCache()
	locks := service.NewAccountLocks()
	refData := service.NewRefDataService(refRepo, cache, log)
	accounts := service.NewAccountService(accountRepo, portfolioRepo, transactionRepo, refData, cache, locks, log)

	client := yahoo.NewFinanceClient(
		yahoo.WithBaseURL(cfg.Feed.BaseURL),
		yahoo.WithToken(cfg.Feed.Token),
		yahoo.WithHTTPClient(&http.Client{Timeout: cfg.Feed.Timeout}),
		yahoo.WithRateLimit(cfg.Feed.RatePerSecond),
		yahoo.WithRetries(cfg.Feed.MaxRetries, time.Second),
	)
	refresh := service.NewRefreshService(client, refData, cfg.Refresh.LookbackMonths, log)

	// Refresh market data, then revalue open accounts against it.
	job := scheduler.JobFunc{
		JobName: refresh.Job().Name(),
		Fn: func(ctx context.Context) error {
			if err := refresh.Job().Run(ctx); err != nil {
				return err
			}
			_, err := accounts.Warm(ctx)
			return err
		},
	}

	sched := scheduler.New(log, jobTimeout)
	scheduled := false
	if cfg.Refresh.Enabled {
		if err := sched.AddJob(cfg.Refresh.Schedule, job); err != nil {
			log.Fatal().Err(err).Str("schedule", cfg.Refresh.Schedule).Msg("Invalid refresh schedule")
		}
		scheduled = true
	} else {
		log.Info().Msg("Scheduled refresh disabled")
	}

	if cfg.Broker.Enabled() {
		transactions := service.NewTransactionService(db, transactionRepo, accounts, refData, log)
		statements := service.NewStatementService(ibkr.NewFlexClient(), transactions, refData, log)
		importJob := statements.Job(cfg.Broker.Token, cfg.Broker.QueryID, cfg.Broker.AccountID)
		if err := sched.AddJob(cfg.Broker.Schedule, importJob); err != nil {
			log.Fatal().Err(err).Str("schedule", cfg.Broker.Schedule).Msg("Invalid statement import schedule")
		}
		scheduled = true
	}

	if scheduled {
		sched.Start()
	}
	if cfg.Refresh.Enabled {
		// Fill the current window before the first tick.
		go func() {
			if err := sched.RunNow(job); err != nil {
				log.Warn().Err(err).Str("job", job.Name()).Msg("Initial refresh failed")
			}
		}()
	}

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")
	if scheduled {
		sched.Stop()
	}
	log.Info().Int("cachedSeries", cache.Len()).Msg("Exited")
}

func newLogger(cfg config.LogConfig) zerolog.Logger {
	if cfg.Pretty {
		return logging.NewConsole(cfg.Level)
	}
	return logging.New(cfg.Level, os.Stderr)
}
