package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"terralens/internal/analysis/application"
	"terralens/internal/analysis/infrastructure/genai"
	"terralens/internal/analysis/infrastructure/openai"
	analysishttp "terralens/internal/analysis/interfaces/http"
	analysismcp "terralens/internal/analysis/interfaces/mcp"
	"terralens/internal/analysis/notify"
	apihttp "terralens/internal/api/http"
	"terralens/internal/audit"
	"terralens/internal/auth"
	"terralens/internal/config"
	"terralens/internal/docstore"
	"terralens/internal/docstore/memory"
	"terralens/internal/docstore/postgres"
	"terralens/internal/docstore/sqlite"
	"terralens/internal/logging"
	"terralens/internal/observability/metrics"
	settingsapp "terralens/internal/settings/application"
	settingshttp "terralens/internal/settings/interfaces/http"
	siteapp "terralens/internal/sites/application"
	siteshttp "terralens/internal/sites/interfaces/http"
	"terralens/internal/sites/interfaces/mq"
)

func appOptions(cfg *config.Config) []fx.Option {
	return []fx.Option{
		fx.Supply(cfg),
		fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger.Named("fx")}
		}),
		fx.Provide(
			newLogger,
			provideStore,
			provideGenerator,
			providePrompts,
			provideSettings,
			provideAnalysisService,
			provideSitePublisher,
			provideRepository,
			provideRouter,
		),
		fx.Invoke(registerMetrics, startHTTPServer),
	}
}

func newLogger(lc fx.Lifecycle, cfg *config.Config) (*zap.Logger, error) {
	logger, err := logging.NewLogger(cfg.ServiceName, cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			_ = logger.Sync()
			return nil
		},
	})
	return logger, nil
}

type storeResult struct {
	fx.Out

	Store   docstore.Store
	Counter metrics.DocumentCounter
	Audit   audit.Logger
}

func provideStore(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) (storeResult, error) {
	switch cfg.Store.Driver {
	case config.DriverMemory:
		logger.Warn("using in-memory document store; data is lost on exit")
		store := memory.NewStore()
		return storeResult{Store: store, Counter: store, Audit: audit.NewZapLogger(logger)}, nil

	case config.DriverSQLite:
		store, err := sqlite.Open(cfg.Store.SQLitePath)
		if err != nil {
			return storeResult{}, err
		}
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error {
				return store.Close()
			},
		})
		logger.Info("sqlite document store opened", zap.String("path", cfg.Store.SQLitePath))
		return storeResult{Store: store, Counter: store, Audit: audit.NewZapLogger(logger)}, nil

	case config.DriverPostgres:
		pool, err := newPool(lc, logger, cfg.Store.DatabaseURL)
		if err != nil {
			return storeResult{}, err
		}
		db := stdlib.OpenDBFromPool(pool)
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error {
				return db.Close()
			},
		})
		store := postgres.NewStore(pool)
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error {
				return store.Close()
			},
		})
		return storeResult{Store: store, Counter: store, Audit: audit.NewRepository(db)}, nil
	}
	return storeResult{}, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}

func newPool(lc fx.Lifecycle, logger *zap.Logger, databaseURL string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	// registered before the sql.DB hook so it stops last
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := pool.Ping(ctx); err != nil {
				logger.Error("database ping failed", zap.Error(err))
				return fmt.Errorf("database unreachable: %w", err)
			}
			logger.Info("database connection established")
			return nil
		},
		OnStop: func(context.Context) error {
			pool.Close()
			logger.Info("database connection closed")
			return nil
		},
	})
	return pool, nil
}

func provideGenerator(cfg *config.Config) (application.Generator, error) {
	switch cfg.Model.Provider {
	case config.ProviderGenAI:
		return genai.NewGenerator(context.Background(), cfg.Model.GeminiAPIKey,
			genai.WithModel(cfg.Model.Name),
			genai.WithTimeout(cfg.Model.Timeout),
		)
	case config.ProviderOpenAI:
		return openai.NewGenerator(cfg.Model.OpenAIAPIKey,
			openai.WithModel(cfg.Model.Name),
			openai.WithTimeout(cfg.Model.Timeout),
			openai.WithBaseURL(cfg.Model.OpenAIBaseURL),
		)
	}
	return nil, fmt.Errorf("unknown model provider %q", cfg.Model.Provider)
}

func providePrompts(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) (*application.PromptLibrary, error) {
	prompts := application.NewPromptLibrary(logger)
	if cfg.PromptsFile == "" {
		return prompts, nil
	}
	if err := prompts.Load(cfg.PromptsFile); err != nil {
		logger.Warn("prompt overrides partially rejected", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	var done <-chan struct{}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			var err error
			done, err = prompts.Watch(ctx, cfg.PromptsFile)
			return err
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			if done == nil {
				return nil
			}
			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
	return prompts, nil
}

func provideSettings(store docstore.Store, logger *zap.Logger) (*settingsapp.Service, error) {
	return settingsapp.NewService(store, logger)
}

func provideAnalysisService(
	cfg *config.Config,
	generator application.Generator,
	prompts *application.PromptLibrary,
	settings *settingsapp.Service,
	logger *zap.Logger,
) (*application.Service, error) {
	var opts []application.ServiceOption
	if cfg.Notify.WebhookURL != "" {
		channel, err := notify.NewWebhookChannel(cfg.Notify.WebhookURL)
		if err != nil {
			return nil, err
		}
		tpl, err := notify.NewTemplate(cfg.Notify.Template)
		if err != nil {
			return nil, fmt.Errorf("notify template: %w", err)
		}
		notifier, err := notify.NewNotifier(channel, tpl, logger,
			notify.WithSettings(settings),
			notify.WithCooldown(cfg.Notify.Cooldown),
		)
		if err != nil {
			return nil, err
		}
		opts = append(opts, application.WithAnomalyNotifier(notifier))
	}
	return application.NewService(generator, prompts, logger, opts...)
}

func provideSitePublisher(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) (siteapp.ChangePublisher, error) {
	if cfg.RabbitMQ.URL == "" {
		return nil, nil
	}
	conn, err := mq.NewConnection(lc, logger, cfg.RabbitMQ.URL)
	if err != nil {
		return nil, err
	}
	publisher, err := mq.NewPublisher(conn, cfg.RabbitMQ.Exchange, logger)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return publisher.Close()
		},
	})
	return publisher, nil
}

func provideRepository(store docstore.Store, publisher siteapp.ChangePublisher, logger *zap.Logger) (*siteapp.Repository, error) {
	var opts []siteapp.Option
	if publisher != nil {
		opts = append(opts, siteapp.WithPublisher(publisher))
	}
	return siteapp.NewRepository(store, logger, opts...)
}

func provideRouter(
	cfg *config.Config,
	repo *siteapp.Repository,
	analysis *application.Service,
	settings *settingsapp.Service,
	auditLogger audit.Logger,
	logger *zap.Logger,
) (http.Handler, error) {
	sitesHandler, err := siteshttp.NewHandler(repo, auditLogger, logger)
	if err != nil {
		return nil, err
	}
	defaults := analysishttp.DefaultsFunc(func(r *http.Request) string {
		return settings.DefaultReportFormat(r.Context())
	})
	analysisHandler, err := analysishttp.NewHandler(analysis, defaults, auditLogger, logger)
	if err != nil {
		return nil, err
	}
	settingsHandler, err := settingshttp.NewHandler(settings, auditLogger, logger)
	if err != nil {
		return nil, err
	}

	routes := apihttp.Routes{
		Sites:    sitesHandler,
		Analysis: analysisHandler,
		Settings: settingsHandler,
	}
	if cfg.MCPEnabled {
		srv, err := analysismcp.NewServer(analysis, version, logger)
		if err != nil {
			return nil, err
		}
		routes.MCP = analysismcp.NewHTTPHandler(srv)
	}

	policy := auth.NewDefaultPolicy(apihttp.ExemptPaths, nil)
	authMiddleware := auth.NewMiddleware([]byte(cfg.Auth.JWTSecret), policy, logger)
	return apihttp.NewRouter(routes, authMiddleware, logger), nil
}

func registerMetrics(counter metrics.DocumentCounter, logger *zap.Logger) {
	metrics.Init(counter, logger)
}

func startHTTPServer(lc fx.Lifecycle, cfg *config.Config, handler http.Handler, logger *zap.Logger) {
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			listener, err := net.Listen("tcp", cfg.HTTPAddr)
			if err != nil {
				return err
			}
			logger.Info("http listening", zap.String("addr", listener.Addr().String()))
			go func() {
				if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return server.Shutdown(ctx)
		},
	})
}
