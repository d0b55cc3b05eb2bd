package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/franchiseos/leadhub/internal/audit"
	"github.com/franchiseos/leadhub/internal/channel"
	"github.com/franchiseos/leadhub/internal/channel/adapters/avito"
	"github.com/franchiseos/leadhub/internal/channel/adapters/instagram"
	maxchannel "github.com/franchiseos/leadhub/internal/channel/adapters/max"
	"github.com/franchiseos/leadhub/internal/channel/adapters/telegram"
	"github.com/franchiseos/leadhub/internal/channel/adapters/vk"
	"github.com/franchiseos/leadhub/internal/channel/adapters/whatsapp"
	"github.com/franchiseos/leadhub/internal/config"
	"github.com/franchiseos/leadhub/internal/db"
	dbsqlc "github.com/franchiseos/leadhub/internal/db/sqlc"
	"github.com/franchiseos/leadhub/internal/handlers"
	"github.com/franchiseos/leadhub/internal/inbound"
	"github.com/franchiseos/leadhub/internal/integration"
	"github.com/franchiseos/leadhub/internal/jobs"
	"github.com/franchiseos/leadhub/internal/leads"
	"github.com/franchiseos/leadhub/internal/logger"
	"github.com/franchiseos/leadhub/internal/notify"
	"github.com/franchiseos/leadhub/internal/ratelimit"
	"github.com/franchiseos/leadhub/internal/routing"
	"github.com/franchiseos/leadhub/internal/server"
)

func runServe() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideDBConn,
			provideDBQueries,
			provideChannelRegistry,
			provideIntegrationService,
			provideLeadStore,
			provideAuditSink,
			provideLeadService,
			provideNotifier,
			provideLeadCreator,
			provideRoutingEngine,
			provideMessageStore,
			provideNormalizer,
			providePipeline,
			provideRateLimitBackend,
			provideLimiter,
			provideScheduler,
			provideServerHandler(providePingHandler),
			provideServerHandler(handlers.NewChannelHandler),
			provideServerHandler(provideWebhookHandler),
			provideServerHandler(provideIntegrationHandler),
			provideServerHandler(provideLeadHandler),
			provideServer,
		),
		fx.Invoke(
			startNotifier,
			startScheduler,
			startServer,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

func provideConfig() (config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return config.Config{}, err
	}
	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		return config.Config{}, errors.New("auth.jwt_secret must be set")
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideDBConn(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	conn, err := db.Open(context.Background(), cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { conn.Close(); return nil }})
	return conn, nil
}

func provideDBQueries(conn *pgxpool.Pool) *dbsqlc.Queries {
	return dbsqlc.New(conn)
}

func provideChannelRegistry(log *slog.Logger) (*channel.Registry, error) {
	registry := channel.NewRegistry()
	registry.MustRegister(telegram.NewTelegramAdapter(log))
	registry.MustRegister(instagram.NewInstagramAdapter(log))
	registry.MustRegister(vk.NewVKAdapter(log))
	registry.MustRegister(whatsapp.NewWhatsAppAdapter(log))
	registry.MustRegister(avito.NewAvitoAdapter(log))
	registry.MustRegister(maxchannel.NewMaxAdapter(log))
	if err := registry.Complete(); err != nil {
		return nil, err
	}
	return registry, nil
}

func provideIntegrationService(log *slog.Logger, queries *dbsqlc.Queries, registry *channel.Registry) *integration.Service {
	return integration.NewService(log, queries, registry)
}

func provideLeadStore(log *slog.Logger, conn *pgxpool.Pool) *leads.DBStore {
	return leads.NewDBStore(log, conn)
}

func provideAuditSink(log *slog.Logger, queries *dbsqlc.Queries) *audit.DBSink {
	return audit.NewDBSink(log, queries)
}

func provideLeadService(log *slog.Logger, cfg config.Config, store *leads.DBStore, sink *audit.DBSink) *leads.Service {
	return leads.NewService(log, store, leads.NewStagePolicy(cfg.Leads.TerminalStages), sink)
}

// provideNotifier builds every configured sender behind the bounded
// dispatcher. Unconfigured senders are skipped.
func provideNotifier(log *slog.Logger, cfg config.Config, store *leads.DBStore, registry *channel.Registry) *notify.Dispatcher {
	var senders []notify.Sender
	if textSender, ok := registry.GetTextSender(channel.Telegram); ok {
		senders = append(senders, notify.NewTelegramSender(textSender, cfg.Notify.Telegram.BotToken))
	}
	senders = append(senders,
		notify.NewMailgunSender(cfg.Notify.Mailgun),
		notify.NewSMTPSender(cfg.Notify.SMTP),
	)
	service := notify.NewService(log, store, senders...)
	if len(service.Senders()) == 0 {
		log.Warn("no notification sender configured; assignees will not be notified")
	}
	return notify.NewDispatcher(log, service, cfg.Notify)
}

func provideLeadCreator(log *slog.Logger, store *leads.DBStore, dispatcher *notify.Dispatcher, sink *audit.DBSink) *leads.Creator {
	return leads.NewCreator(log, store, leads.NewAssigner(log, store), dispatcher, sink)
}

func provideRoutingEngine(log *slog.Logger, store *leads.DBStore) *routing.Engine {
	return routing.NewEngine(log, store)
}

func provideMessageStore(log *slog.Logger, queries *dbsqlc.Queries) *inbound.DBMessageStore {
	return inbound.NewDBMessageStore(log, queries)
}

func provideNormalizer(log *slog.Logger, registry *channel.Registry, integrations *integration.Service, store *inbound.DBMessageStore) *inbound.Normalizer {
	return inbound.NewNormalizer(log, registry, integrations, store)
}

func providePipeline(log *slog.Logger, cfg config.Config, normalizer *inbound.Normalizer, integrations *integration.Service, engine *routing.Engine, creator *leads.Creator) *inbound.Pipeline {
	return inbound.NewPipeline(log, normalizer, integrations, engine, creator, cfg.Pipeline.TimeoutDuration())
}

// rateLimitBackend is the counter store shared by the limiter and the
// janitor. sweeper is nil when Redis expires keys by itself.
type rateLimitBackend struct {
	store   ratelimit.Store
	sweeper jobs.Sweeper
}

func provideRateLimitBackend(lc fx.Lifecycle, log *slog.Logger, cfg config.Config) (rateLimitBackend, error) {
	if cfg.Redis.Enabled {
		client, err := ratelimit.NewRedisClient(context.Background(), cfg.Redis)
		if err != nil {
			return rateLimitBackend{}, fmt.Errorf("redis connect: %w", err)
		}
		lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { return client.Close() }})
		log.Info("rate limit counters shared through redis", slog.String("addr", cfg.Redis.Addr))
		return rateLimitBackend{store: ratelimit.NewRedisStore(client, cfg.Redis.KeyPrefix)}, nil
	}
	store := ratelimit.NewMemoryStore(cfg.RateLimit.MaxKeys)
	return rateLimitBackend{store: store, sweeper: store}, nil
}

func provideLimiter(log *slog.Logger, cfg config.Config, backend rateLimitBackend) *ratelimit.Limiter {
	return ratelimit.NewLimiter(log, backend.store, cfg.RateLimit)
}

func provideScheduler(log *slog.Logger, cfg config.Config, backend rateLimitBackend) (*jobs.Scheduler, error) {
	scheduler := jobs.NewScheduler(log)
	if backend.sweeper != nil {
		job := jobs.SweepJob(log, "ratelimit-sweep", cfg.RateLimit.Sweep, backend.sweeper)
		if err := scheduler.Add(job); err != nil {
			return nil, err
		}
	}
	return scheduler, nil
}

func providePingHandler(log *slog.Logger, conn *pgxpool.Pool) *handlers.PingHandler {
	return handlers.NewPingHandler(log, conn)
}

func provideWebhookHandler(log *slog.Logger, cfg config.Config, pipeline *inbound.Pipeline, registry *channel.Registry, integrations *integration.Service, limiter *ratelimit.Limiter) *handlers.WebhookHandler {
	return handlers.NewWebhookHandler(log, pipeline, registry, integrations, limiter, cfg.Webhook)
}

func provideIntegrationHandler(log *slog.Logger, integrations *integration.Service, leadService *leads.Service, store *leads.DBStore) *handlers.IntegrationHandler {
	return handlers.NewIntegrationHandler(log, integrations, leadService, store)
}

func provideLeadHandler(log *slog.Logger, leadService *leads.Service, integrations *integration.Service) *handlers.LeadHandler {
	return handlers.NewLeadHandler(log, leadService, integrations)
}

type serverParams struct {
	fx.In

	Logger         *slog.Logger
	Config         config.Config
	ServerHandlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	return server.NewServer(params.Logger, params.Config.Server.Addr, params.Config.Auth.JWTSecret, params.ServerHandlers...)
}

func startNotifier(lc fx.Lifecycle, dispatcher *notify.Dispatcher) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			dispatcher.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return dispatcher.Stop(ctx)
		},
	})
}

func startScheduler(lc fx.Lifecycle, scheduler *jobs.Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			scheduler.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return scheduler.Stop(ctx)
		},
	})
}

func startServer(lc fx.Lifecycle, logger *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner, cfg config.Config) {
	fmt.Printf("Starting LeadHub %s\n", Version)
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			logger.Info("server listening", slog.String("addr", cfg.Server.Addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
