package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"tvwebhook/internal/alerting"
	"tvwebhook/internal/cache"
	"tvwebhook/internal/config"
	"tvwebhook/internal/httpapi"
	"tvwebhook/internal/scheduler"
	"tvwebhook/internal/service"
	"tvwebhook/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, cfg.Timeout, a.Logger)
	}
	return nil
}

func (a *App) resolveSecret(ctx context.Context) error {
	if a.Config.Webhook.SecretSSMParam == "" {
		return nil
	}
	client, err := config.NewSSMClient(ctx)
	if err != nil {
		return err
	}
	if err := a.Config.ResolveSecret(ctx, client); err != nil {
		return err
	}
	a.Logger.Info().Str("parameter", a.Config.Webhook.SecretSSMParam).Msg("webhook secret loaded from ssm")
	return nil
}

func (a *App) openPostgres(ctx context.Context) (*storage.PostgresMirror, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	mirror := storage.NewPostgresMirror(pool)
	if err := mirror.EnsureSchema(ctx); err != nil {
		mirror.Close()
		return nil, nil, err
	}
	return mirror, mirror.Close, nil
}

func (a *App) openRedis(ctx context.Context) (*storage.RedisMirror, func(), error) {
	if a.Config.Redis.Addr == "" {
		return nil, nil, nil
	}

	mirror := storage.NewRedisMirror(storage.NewRedisClient(a.Config.Redis), a.Config.Redis)
	if err := mirror.Ping(ctx); err != nil {
		_ = mirror.Close()
		return nil, nil, fmt.Errorf("connect redis %s: %w", a.Config.Redis.Addr, err)
	}
	closer := func() {
		_ = mirror.Close()
	}
	return mirror, closer, nil
}

// newService wires the pipeline with every configured sink. The returned
// closer releases mirror connections.
func (a *App) newService(ctx context.Context) (*service.Service, func(), error) {
	if err := a.resolveSecret(ctx); err != nil {
		return nil, nil, err
	}
	if a.Config.UsesDefaultSecret() {
		a.Logger.Warn().Msg("webhook.secret is still the default placeholder; set SECRET before exposing the service")
	}

	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var mirrors []storage.RecordSink

	pg, closePG, err := a.openPostgres(ctx)
	if err != nil {
		return nil, nil, err
	}
	if pg != nil {
		mirrors = append(mirrors, pg)
		closers = append(closers, closePG)
		a.Logger.Info().Msg("postgres mirror enabled")
	}

	rd, closeRedis, err := a.openRedis(ctx)
	if err != nil {
		closeAll()
		return nil, nil, err
	}
	if rd != nil {
		mirrors = append(mirrors, rd)
		closers = append(closers, closeRedis)
		a.Logger.Info().Str("channel", a.Config.Redis.Channel).Msg("redis mirror enabled")
	}

	svc := service.New(service.Options{
		Secret:            a.Config.Webhook.Secret,
		SelfTestEnabled:   a.Config.Webhook.SelfTestEnabled,
		SideEffectTimeout: a.Config.Webhook.SinkTimeout,
	}, storage.NewFileStore(a.Config.Storage.Dir), mirrors, cache.NewLastMessage(), a.newNotifier(), a.Logger)

	return svc, closeAll, nil
}

// Run serves the webhook until SIGINT or SIGTERM.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	svc, closeSinks, err := a.newService(ctx)
	if err != nil {
		return err
	}
	defer closeSinks()

	if interval := a.Config.Stats.Interval; interval > 0 {
		sched := scheduler.New(scheduler.Options{Interval: interval, AlignToStart: true}, a.Logger)
		reporter := scheduler.NewStatsReporter(svc.Stats().Snapshot, a.Logger)
		go func() {
			if err := sched.Run(ctx, reporter.Tick); err != nil && !errors.Is(err, context.Canceled) {
				a.Logger.Error().Err(err).Msg("stats reporter stopped")
			}
		}()
	}

	gin.SetMode(gin.ReleaseMode)
	server := httpapi.NewServer(a.Config.Server, a.Config.App.Name, svc, a.Logger)

	a.Logger.Info().
		Str("storage_dir", a.Config.Storage.Dir).
		Bool("selftest", a.Config.Webhook.SelfTestEnabled).
		Msg("starting webhook service")
	if err := server.Run(ctx); err != nil {
		a.Logger.Error().Err(err).Msg("webhook service terminated with error")
		return err
	}

	a.Logger.Info().Msg("webhook service stopped")
	return nil
}

// ExportOptions hold parameters for exporting stored records.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	Ticker    string
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// SelfTestOptions configure an offline self-test run.
type SelfTestOptions struct {
	Overrides map[string]string
}
