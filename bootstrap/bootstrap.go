// Package bootstrap wires all dependencies and starts the application.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/artpar/fetchvault/adapters/clock"
	"github.com/artpar/fetchvault/adapters/hasher"
	"github.com/artpar/fetchvault/adapters/idgen"
	"github.com/artpar/fetchvault/adapters/memory"
	"github.com/artpar/fetchvault/adapters/metrics"
	"github.com/artpar/fetchvault/adapters/payment"
	"github.com/artpar/fetchvault/adapters/sqlite"
	"github.com/artpar/fetchvault/adapters/storage"
	"github.com/artpar/fetchvault/adapters/ytdlp"
	"github.com/artpar/fetchvault/app"
	"github.com/artpar/fetchvault/config"
	"github.com/artpar/fetchvault/ports"
	"github.com/artpar/fetchvault/web"
	"github.com/rs/zerolog"
)

// App represents the running application.
type App struct {
	Logger     zerolog.Logger
	DB         *sqlite.DB
	HTTPServer *http.Server
	Metrics    *metrics.Collector
	Holder     *config.Holder

	orchestrator *app.Orchestrator
	notifier     *app.Notifier
	rates        *memory.RateLimitStore

	cancelSweep context.CancelFunc
}

// New creates and initializes the application from a loaded config.
func New(cfg *config.Config) (*App, error) {
	return build(cfg, nil)
}

// NewWithHotReload creates the application with config file watching.
func NewWithHotReload(path string) (*App, error) {
	logger := setupLogger("info", "json")
	holder, err := config.NewHolder(path, logger)
	if err != nil {
		return nil, err
	}
	return build(holder.Get(), holder)
}

func build(cfg *config.Config, holder *config.Holder) (*App, error) {
	logger := setupLogger(cfg.Logging.Level, cfg.Logging.Format)

	collector := metrics.New()
	clk := clock.Real{}
	ids := idgen.UUID{}
	hash := hasher.NewBcrypt(0)

	var (
		db       *sqlite.DB
		tenants  ports.TenantStore
		credits  ports.CreditStore
		idem     ports.IdempotencyStore
		marker   ports.EventMarker
		err      error
	)

	switch cfg.Database.Driver {
	case "sqlite":
		db, err = sqlite.Open(cfg.Database.DSN)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		if err := db.Migrate(); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate database: %w", err)
		}
		tenants = sqlite.NewTenantStore(db)
		credits = sqlite.NewCreditStore(db, ids, clk)
		idem = sqlite.NewIdempotencyStore(db, clk)
		marker = sqlite.NewEventMarker(db, clk)
		logger.Info().Str("dsn", cfg.Database.DSN).Msg("using sqlite stores")
	default:
		tenants = memory.NewTenantStore()
		credits = memory.NewCreditStore(memory.CreditStoreConfig{IDGen: ids, Clock: clk})
		idem = memory.NewIdempotencyStore(clk)
		marker = memory.NewEventMarker(clk)
		logger.Info().Msg("using in-memory stores")
	}

	// Rate windows and in-flight batches are per-process state.
	rates := memory.NewRateLimitStore(memory.RateLimitStoreConfig{})
	batches := memory.NewBatchStore()

	fetcher := ytdlp.New(cfg.Fetch.Binary, logger)
	objects := storage.NewLocal(cfg.Storage.Dir, cfg.Storage.BaseURL)
	packer := app.NewPacker(objects, cfg.Storage.WorkDir, cfg.Archive.PartCeilingBytes(), collector, logger)
	notifier := app.NewNotifier(marker, clk, collector, logger)

	orchestrator := app.NewOrchestrator(batches, tenants, credits, fetcher, packer,
		notifier, clk, collector, logger, app.OrchestratorConfig{
			WorkDir:     cfg.Storage.WorkDir,
			ItemWorkers: cfg.Fetch.ItemWorkers,
			Retention:   cfg.Batches.Retention,
			SweepEvery:  cfg.Batches.SweepEvery,
		})

	admission := app.NewAdmissionService(credits, rates, idem, batches,
		orchestrator, ids, clk, collector, logger)

	billing := app.NewBillingService(paymentProvider(cfg), tenants, marker, clk, logger)

	handler := web.NewHandler(web.Deps{
		Admission: admission,
		Billing:   billing,
		Tenants:   tenants,
		Rates:     rates,
		Credits:   credits,
		Hasher:    hash,
		Clock:     clk,
		Metrics:   collector,
		Logger:    logger,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      handler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	a := &App{
		Logger:       logger,
		DB:           db,
		HTTPServer:   server,
		Metrics:      collector,
		Holder:       holder,
		orchestrator: orchestrator,
		notifier:     notifier,
		rates:        rates,
	}

	if holder != nil {
		holder.OnChange(func(newCfg *config.Config) {
			setLogLevel(newCfg.Logging.Level)
			collector.ConfigReloads.Inc()
			collector.ConfigLastReload.SetToCurrentTime()
		})
		if err := holder.WatchFile(); err != nil {
			logger.Warn().Err(err).Msg("config file watch unavailable")
		}
		holder.WatchSignals()
	}

	return a, nil
}

func paymentProvider(cfg *config.Config) ports.PaymentProvider {
	switch cfg.Billing.Mode {
	case "stripe":
		return payment.NewStripeProvider(payment.StripeConfig{
			SecretKey:     cfg.Billing.StripeKey,
			WebhookSecret: cfg.Billing.WebhookSecret,
		})
	default:
		return payment.NewDummyProvider(cfg.Billing.WebhookSecret)
	}
}

// Run starts the HTTP server and blocks until shutdown.
func (a *App) Run() error {
	sweepCtx, cancel := context.WithCancel(context.Background())
	a.cancelSweep = cancel
	go a.orchestrator.Run(sweepCtx)

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().Str("addr", a.HTTPServer.Addr).Msg("server listening")
		if err := a.HTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		a.Logger.Info().Str("signal", sig.String()).Msg("shutting down")
		return a.Shutdown()
	}
}

// Shutdown gracefully stops the application.
func (a *App) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := a.HTTPServer.Shutdown(ctx); err != nil {
		a.Logger.Error().Err(err).Msg("http shutdown error")
	}

	if a.cancelSweep != nil {
		a.cancelSweep()
	}
	a.orchestrator.Shutdown()
	a.notifier.Shutdown()
	a.rates.Close()

	if a.Holder != nil {
		a.Holder.Stop()
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			return err
		}
	}
	a.Logger.Info().Msg("shutdown complete")
	return nil
}

func setupLogger(level, format string) zerolog.Logger {
	setLogLevel(level)

	if format == "console" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

func setLogLevel(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}
