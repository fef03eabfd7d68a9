package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kart-io/alerthub/api"
	"github.com/kart-io/alerthub/config"
	"github.com/kart-io/alerthub/core"
	"github.com/kart-io/alerthub/handlers/push"
	"github.com/kart-io/alerthub/handlers/webhook"
	"github.com/kart-io/alerthub/hub"
	"github.com/kart-io/alerthub/interactions"
	interactionsqlite "github.com/kart-io/alerthub/interactions/sqlite"
	"github.com/kart-io/alerthub/logger"
	"github.com/kart-io/alerthub/observability"
	"github.com/kart-io/alerthub/providers/system"
	"github.com/kart-io/alerthub/queue"
	queueredis "github.com/kart-io/alerthub/queue/redis"
	"github.com/kart-io/alerthub/registry"
	"github.com/kart-io/alerthub/service"
	"github.com/kart-io/alerthub/store"
	memorystore "github.com/kart-io/alerthub/store/memory"
	redisstore "github.com/kart-io/alerthub/store/redis"
	sqlitestore "github.com/kart-io/alerthub/store/sqlite"
	"github.com/kart-io/alerthub/unified"
)

func newServeCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the notification pipeline",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	return cmd
}

func serve(parent context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log := buildLogger(cfg.Logging.Level)

	telemetry, err := observability.New(ctx, &observability.Config{
		Enabled:     cfg.Telemetry.Enabled,
		Endpoint:    cfg.Telemetry.Endpoint,
		ServiceName: cfg.Telemetry.ServiceName,
		Insecure:    cfg.Telemetry.Insecure,
	})
	if err != nil {
		return fmt.Errorf("setting up telemetry: %w", err)
	}
	defer shutdownTelemetry(telemetry, log)

	notificationStore, err := buildStore(cfg, log)
	if err != nil {
		return err
	}
	defer notificationStore.Close()

	svc := service.New(service.Options{Store: notificationStore, Logger: log})
	if err := svc.Initialize(ctx, &service.Config{
		MaxNotifications:   cfg.Service.MaxNotifications,
		DefaultExpiry:      cfg.Service.DefaultExpiry,
		DefaultPriority:    core.Priority(cfg.Service.DefaultPriority),
		AutoMarkAsRead:     cfg.Service.AutoMarkAsRead,
		DedupWindow:        cfg.Service.DedupWindow,
		RateLimitWindow:    cfg.Service.RateLimitWindow,
		RateLimitMaxEvents: cfg.Service.RateLimitMaxEvents,
	}); err != nil {
		return fmt.Errorf("initializing notification service: %w", err)
	}

	reg := registry.New(log)
	h := hub.New(hub.Options{Logger: log, Telemetry: telemetry})
	h.SetService(svc)
	h.SetRegistry(reg)

	if err := registerHandlers(cfg, reg, log); err != nil {
		return err
	}

	if cfg.SystemMonitor.Enabled {
		monitor := system.New(system.Config{
			CheckInterval:      cfg.SystemMonitor.CheckInterval,
			GoroutineThreshold: cfg.SystemMonitor.GoroutineThreshold,
			HeapThresholdBytes: cfg.SystemMonitor.HeapThresholdBytes,
		}, log)
		if err := reg.RegisterProvider(monitor); err != nil {
			return fmt.Errorf("registering system provider: %w", err)
		}
	}

	interactionStore, err := buildInteractionStore(cfg, log)
	if err != nil {
		return err
	}
	defer interactionStore.Close()

	interactionRegistry, err := interactions.New(interactions.Options{
		Store:    interactionStore,
		Notifier: h,
		Logger:   log,
	})
	if err != nil {
		return fmt.Errorf("building interaction registry: %w", err)
	}

	facade, err := unified.New(unified.Options{
		Hub:          h,
		Interactions: interactionRegistry,
		Logger:       log,
	})
	if err != nil {
		return fmt.Errorf("building unified facade: %w", err)
	}

	if err := h.Initialize(ctx); err != nil {
		return fmt.Errorf("initializing hub: %w", err)
	}
	if err := h.Start(ctx); err != nil {
		return fmt.Errorf("starting hub: %w", err)
	}

	worker, q, err := buildQueueWorker(ctx, cfg, h, log)
	if err != nil {
		return err
	}
	if worker != nil {
		if err := worker.Start(ctx); err != nil {
			return fmt.Errorf("starting queue worker: %w", err)
		}
	}

	var apiServer *api.Server
	if cfg.API.Enabled {
		apiServer, err = api.New(api.Options{
			Config: api.Config{
				Addr:         cfg.API.Addr,
				ReadTimeout:  cfg.API.ReadTimeout,
				WriteTimeout: cfg.API.WriteTimeout,
				MaxBodyBytes: cfg.API.MaxBodyBytes,
			},
			Service:      svc,
			Hub:          h,
			Facade:       facade,
			Interactions: interactionRegistry,
			Queue:        q,
			Logger:       log,
		})
		if err != nil {
			return fmt.Errorf("building api server: %w", err)
		}
		go func() {
			if err := apiServer.Start(); err != nil {
				log.Error(ctx, "api server failed", "error", err)
				stop()
			}
		}()
	}

	log.Info(ctx, "alerthub running",
		"store", cfg.Store.Backend, "queue", cfg.Queue.Backend,
		"api", cfg.API.Enabled, "version", version)

	<-ctx.Done()
	log.Info(context.Background(), "shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if apiServer != nil {
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			log.Warn(shutdownCtx, "api shutdown failed", "error", err)
		}
	}
	if worker != nil {
		worker.Stop()
	}
	if q != nil {
		if err := q.Close(); err != nil {
			log.Warn(shutdownCtx, "closing queue failed", "error", err)
		}
	}
	if err := h.Stop(shutdownCtx); err != nil {
		log.Warn(shutdownCtx, "stopping hub reported errors", "error", err)
	}
	return nil
}

func buildLogger(level string) logger.Interface {
	base := logger.Default
	switch level {
	case "silent":
		return base.LogMode(logger.Silent)
	case "error":
		return base.LogMode(logger.Error)
	case "warn":
		return base.LogMode(logger.Warn)
	case "debug":
		return base.LogMode(logger.Debug)
	default:
		return base.LogMode(logger.Info)
	}
}

func buildStore(cfg *config.Config, log logger.Interface) (store.Store, error) {
	switch cfg.Store.Backend {
	case config.BackendSQLite:
		s, err := sqlitestore.New(sqlitestore.Options{
			Path:    cfg.Store.SQLite.Path,
			MaxSize: cfg.Service.MaxNotifications,
			Logger:  log,
		})
		if err != nil {
			return nil, fmt.Errorf("opening sqlite store: %w", err)
		}
		return s, nil
	case config.BackendRedis:
		s, err := redisstore.New(&redisstore.Options{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
			Key:      cfg.Store.Redis.Key,
			MaxSize:  cfg.Service.MaxNotifications,
			Logger:   log,
		})
		if err != nil {
			return nil, fmt.Errorf("connecting redis store: %w", err)
		}
		return s, nil
	default:
		return memorystore.New(cfg.Service.MaxNotifications), nil
	}
}

func buildInteractionStore(cfg *config.Config, log logger.Interface) (interactions.Store, error) {
	if cfg.Store.Backend == config.BackendSQLite {
		s, err := interactionsqlite.New(interactionsqlite.Options{
			Path:   cfg.Store.SQLite.InteractionsPath,
			Logger: log,
		})
		if err != nil {
			return nil, fmt.Errorf("opening sqlite interaction store: %w", err)
		}
		return s, nil
	}
	return interactions.NewMemoryStore(), nil
}

func registerHandlers(cfg *config.Config, reg *registry.Registry, log logger.Interface) error {
	if cfg.Push.Enabled {
		h, err := push.New(push.Config{
			URLs:        cfg.Push.URLs,
			MinPriority: core.Priority(cfg.Push.MinPriority),
			Timeout:     cfg.Push.Timeout,
		}, log)
		if err != nil {
			return fmt.Errorf("building push handler: %w", err)
		}
		if err := reg.RegisterHandler(h); err != nil {
			return fmt.Errorf("registering push handler: %w", err)
		}
	}
	if cfg.Webhook.Enabled {
		h, err := webhook.New(webhook.Config{
			URL:     cfg.Webhook.URL,
			Secret:  cfg.Webhook.Secret,
			Timeout: cfg.Webhook.Timeout,
		}, log)
		if err != nil {
			return fmt.Errorf("building webhook handler: %w", err)
		}
		if err := reg.RegisterHandler(h); err != nil {
			return fmt.Errorf("registering webhook handler: %w", err)
		}
	}
	return nil
}

func buildQueueWorker(ctx context.Context, cfg *config.Config, h *hub.Hub, log logger.Interface) (*queue.Worker, queue.Queue, error) {
	var q queue.Queue
	switch cfg.Queue.Backend {
	case "":
		return nil, nil, nil
	case config.BackendRedis:
		rq, err := queueredis.New(ctx, &queueredis.Options{
			Addr:     cfg.Queue.Redis.Addr,
			Password: cfg.Queue.Redis.Password,
			DB:       cfg.Queue.Redis.DB,
			Stream:   cfg.Queue.Redis.Stream,
			Group:    cfg.Queue.Redis.Group,
			Consumer: cfg.Queue.Redis.Consumer,
			Logger:   log,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("connecting redis queue: %w", err)
		}
		q = rq
	default:
		q = queue.NewMemoryQueue(cfg.Queue.BufferSize)
	}

	worker := queue.NewWorker(q, h, queue.WorkerConfig{
		Concurrency:  cfg.Queue.Concurrency,
		MaxAttempts:  cfg.Queue.MaxAttempts,
		RetryBackoff: cfg.Queue.Backoff,
	}, log)
	return worker, q, nil
}

func shutdownTelemetry(t *observability.Telemetry, log logger.Interface) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := t.Shutdown(ctx); err != nil {
		log.Warn(ctx, "telemetry shutdown failed", "error", err)
	}
}
