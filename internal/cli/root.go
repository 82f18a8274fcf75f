package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/ogulcanaydogan/cloud-budget-guardian/internal/config"
	"github.com/ogulcanaydogan/cloud-budget-guardian/pkg/alerts"
	"github.com/ogulcanaydogan/cloud-budget-guardian/pkg/metrics"
	"github.com/ogulcanaydogan/cloud-budget-guardian/pkg/model"
	"github.com/ogulcanaydogan/cloud-budget-guardian/pkg/storage"
	"github.com/ogulcanaydogan/cloud-budget-guardian/pkg/tracker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags.
var Version = "dev"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "cbg",
	Short: "Cloud Budget Guardian - budget monitoring and alerting for cloud spend",
	Long: `Cloud Budget Guardian evaluates recurring cloud budgets against recorded
daily costs, projects end-of-period spend, and sends at most one alert per
budget per period over email, Slack and generic webhooks.`,
	SilenceUsage: true,
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.cbg/config.yaml)")
}

// loadConfig loads the configuration.
func loadConfig() (*config.Config, error) {
	return config.Load(cfgFile)
}

// newLogger creates a structured logger from config.
func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Logging.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	if strings.EqualFold(cfg.Logging.Format, "text") {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}

	return slog.New(handler)
}

// app holds the wired engine for one command invocation.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *storage.SQLite
	registry   *prometheus.Registry
	dispatcher *alerts.Dispatcher
	manager    *tracker.BudgetManager
}

// Close releases the database.
func (a *app) Close() error {
	return a.store.Close()
}

// initApp opens storage and wires metrics, channels, dispatcher and manager.
func initApp(cfg *config.Config) (*app, error) {
	logger := newLogger(cfg)

	store, err := storage.NewSQLite(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	dispatcher := alerts.NewDispatcher(
		initChannels(cfg, logger),
		cfg.Alerts.Timeout,
		logger,
		alerts.WithDeliveryRecorder(m),
	)

	manager := tracker.NewBudgetManager(store, dispatcher, logger,
		tracker.WithQueryTimeout(cfg.Storage.QueryTimeout),
		tracker.WithMaxConcurrency(cfg.Engine.MaxConcurrency),
		tracker.WithRecorder(m),
	)

	return &app{
		cfg:        cfg,
		logger:     logger,
		store:      store,
		registry:   registry,
		dispatcher: dispatcher,
		manager:    manager,
	}, nil
}

// unavailableChannels warns about every active budget that lists a channel
// with no registered transport, e.g. email without an SMTP host. Those
// channels are skipped at delivery time. It returns budget ID to channels.
func (a *app) unavailableChannels(ctx context.Context) (map[string][]model.Channel, error) {
	budgets, err := a.store.ListBudgets(ctx, "")
	if err != nil {
		return nil, err
	}
	missing := make(map[string][]model.Channel)
	for _, b := range budgets {
		if !b.IsActive {
			continue
		}
		for _, c := range b.Channels {
			if a.dispatcher.Available(c) {
				continue
			}
			missing[b.ID] = append(missing[b.ID], c)
			a.logger.Warn("budget lists a channel with no transport configured",
				"budget_id", b.ID,
				"tenant_id", b.TenantID,
				"channel", c,
			)
		}
	}
	return missing, nil
}

// initChannels creates the delivery transports from config. Email is only
// registered when an SMTP host is set.
func initChannels(cfg *config.Config, logger *slog.Logger) []alerts.Channel {
	pool := alerts.NewEndpointPool(nil, alerts.BreakerSettings{
		MaxFailures: cfg.Alerts.Breaker.MaxFailures,
		OpenTimeout: cfg.Alerts.Breaker.OpenTimeout,
	})

	channels := []alerts.Channel{
		alerts.NewSlackChannel(pool, cfg.Alerts.DashboardURL),
		alerts.NewWebhookChannel(pool, cfg.Alerts.Webhook.Secret),
	}

	smtp := cfg.Alerts.SMTP
	if smtp.Host == "" {
		logger.Debug("smtp host not configured, email channel unavailable")
		return channels
	}
	mailer := alerts.NewSMTPMailer(alerts.SMTPConfig{
		Host:     smtp.Host,
		Port:     smtp.Port,
		Username: smtp.Username,
		Password: smtp.Password,
		From:     smtp.From,
		StartTLS: smtp.StartTLS,
	})
	return append(channels, alerts.NewEmailChannel(mailer, smtp.From, cfg.Alerts.DashboardURL))
}

// withApp loads config, wires the app and runs fn with it.
func withApp(fn func(a *app) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := initApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}
