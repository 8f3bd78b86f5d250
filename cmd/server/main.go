package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/rivetr/rivetr/internal/alert"
	"github.com/rivetr/rivetr/internal/backup"
	"github.com/rivetr/rivetr/internal/cleanup"
	"github.com/rivetr/rivetr/internal/compose"
	"github.com/rivetr/rivetr/internal/config"
	"github.com/rivetr/rivetr/internal/contextutil"
	"github.com/rivetr/rivetr/internal/cost"
	"github.com/rivetr/rivetr/internal/diskmonitor"
	"github.com/rivetr/rivetr/internal/events"
	"github.com/rivetr/rivetr/internal/logger"
	"github.com/rivetr/rivetr/internal/metrics"
	"github.com/rivetr/rivetr/internal/monitor"
	"github.com/rivetr/rivetr/internal/notify"
	"github.com/rivetr/rivetr/internal/notify/channel"
	"github.com/rivetr/rivetr/internal/runner"
	"github.com/rivetr/rivetr/internal/store"
	"github.com/rivetr/rivetr/internal/utils"

	_ "github.com/rivetr/rivetr/internal/runtime/docker"
	_ "github.com/rivetr/rivetr/internal/runtime/noop"
	_ "github.com/rivetr/rivetr/internal/runtime/podman"
)

func main() {
	app := &cli.App{
		Name:    "rivetr",
		Usage:   "Rivetr control plane - reconciles Apps, ManagedDatabases and Services against a local container runtime",
		Version: "0.1.0",
		Commands: []*cli.Command{
			{
				Name:   "server",
				Usage:  "Start the control plane server",
				Flags:  config.Flags(),
				Action: runServer,
			},
			{
				Name:  "migrate",
				Usage: "Apply the database schema and exit",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "database",
						Value:   "sqlite://./data/rivetr.db",
						EnvVars: []string{"RIVETR_DATABASE"},
					},
				},
				Action: runMigrate,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runMigrate(c *cli.Context) error {
	ctx := context.Background()
	st, err := store.Open(ctx, c.String("database"))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()
	fmt.Println("schema applied")
	return nil
}

func runServer(c *cli.Context) error {
	cfg := config.FromCLI(c)

	ctx, log := logger.PrepareLoggerWithConfig(context.Background(), zapConfigFromEnv())
	defer log.Sync()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if cfg.Auth.AdminToken == "" {
		token, err := utils.GenerateSecureToken(32)
		if err != nil {
			return fmt.Errorf("generate fallback admin token: %w", err)
		}
		cfg.Auth.AdminToken = token
		log.Warn("RIVETR_ADMIN_TOKEN not set, generated a one-time fallback admin token for this process",
			zap.String("admin_token", token))
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutdown signal received")
		cancel()
	}()

	st, err := store.Open(ctx, cfg.Server.Database)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()
	log.Info("database ready", zap.String("driver", st.Driver))

	rt, err := runner.Select(ctx, cfg.Runtime.RuntimeType, map[string]interface{}{
		"host": cfg.Runtime.DockerSocket,
	})
	if err != nil {
		return fmt.Errorf("select container runtime: %w", err)
	}
	defer rt.Close()
	log.Info("container runtime selected", zap.String("runtime", rt.Name()))
	ctx = contextutil.InitRuntimeDirect(ctx, rt)

	composeMgr := compose.New(cfg.Server.DataDir)

	pub, err := newEventBus(cfg.Events)
	if err != nil {
		return fmt.Errorf("init event bus: %w", err)
	}
	defer pub.Close()

	var emailChannel channel.Channel
	if cfg.Email.SendGridAPIKey != "" {
		ec, err := channel.NewEmailChannel(channel.EmailConfig{
			APIKey:    cfg.Email.SendGridAPIKey,
			FromEmail: cfg.Email.FromEmail,
			FromName:  cfg.Email.FromName,
		}, nil)
		if err != nil {
			log.Warn("email channel disabled", zap.Error(err))
		} else {
			emailChannel = ec
		}
	} else {
		log.Warn("RIVETR_SENDGRID_API_KEY not set, email notifications disabled")
	}

	dispatcher := notify.New(st, emailChannel, cfg.NotificationQueue.Capacity)
	mon := monitor.New(st, rt, cfg.ContainerMonitor, composeMgr, pub)
	evaluator := alert.New(st, dispatcher, cfg.AlertEvaluator.DashboardURL)
	backupScheduler := backup.New(st, rt, cfg.Server.DataDir, cfg.DatabaseBackup.BackupDir)
	costCalc := cost.New(st, cfg.Cost.RetentionDays)
	gc := cleanup.New(st, rt, cfg.Cleanup.MaxDeploymentsPerApp, cfg.Cleanup.PruneImages)
	collector := metrics.New(st, rt, cfg.ResourceMetrics.TickInterval, cfg.ResourceMetrics.RetentionHours)
	diskMon := diskmonitor.New(cfg.Server.DataDir, cfg.DiskMonitor.WarningThreshold, cfg.DiskMonitor.CriticalThreshold)

	log.Info("reconciling state against container runtime before serving traffic")
	if err := mon.ReconcileStartup(ctx); err != nil {
		return fmt.Errorf("startup reconciliation: %w", err)
	}

	var wg sync.WaitGroup
	runLoop := func(name string, fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info("background loop started", zap.String("loop", name))
			fn()
			log.Info("background loop stopped", zap.String("loop", name))
		}()
	}

	runLoop("notify.dispatcher", func() { dispatcher.Run(ctx) })
	runLoop("monitor", func() { monitor.Run(ctx, mon) })
	if cfg.AlertEvaluator.Enabled {
		runLoop("alert.evaluator", func() {
			alert.Run(ctx, evaluator, time.Duration(cfg.AlertEvaluator.CheckIntervalSecs)*time.Second)
		})
	}
	if cfg.DatabaseBackup.Enabled {
		runLoop("backup.scheduler", func() {
			backup.Run(ctx, backupScheduler, time.Duration(cfg.DatabaseBackup.CheckIntervalSeconds)*time.Second)
		})
	}
	runLoop("cost.calculator", func() { cost.Run(ctx, costCalc) })
	if cfg.Cleanup.Enabled {
		runLoop("cleanup", func() {
			cleanup.RunLoop(ctx, gc, time.Duration(cfg.Cleanup.CleanupIntervalSeconds)*time.Second)
		})
	}
	runLoop("metrics.collector", func() { metrics.Run(ctx, collector) })
	if cfg.DiskMonitor.Enabled {
		runLoop("diskmonitor", func() {
			diskmonitor.Run(ctx, diskMon, time.Duration(cfg.DiskMonitor.CheckIntervalSeconds)*time.Second)
		})
	}

	router := newRouter(cfg, log)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.APIPort)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("http server listening", zap.String("addr", addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server error", zap.Error(err))
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("http server shutdown error", zap.Error(err))
	}

	wg.Wait()
	log.Info("server stopped")
	return nil
}

// newRouter wires the minimal HTTP surface left in scope: health/readiness
// and the shared middleware stack the rest of the API (out of scope here)
// would also sit behind.
func newRouter(cfg config.Config, log *zap.Logger) http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Compress(5))

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.Server.ExternalURL},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if cfg.RateLimit.Enabled {
		router.Use(httprate.LimitByIP(
			cfg.RateLimit.APIRequestsPerWindow,
			time.Duration(cfg.RateLimit.WindowSeconds)*time.Second,
		))
	}

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return router
}

// newEventBus builds the internal pub/sub layer: in-memory by default, or
// Redis-backed when a URL is configured so a second process can observe
// control-plane events.
func newEventBus(cfg config.EventsConfig) (events.PubSub, error) {
	if cfg.RedisURL == "" {
		return events.NewMemoryPubSub(), nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse events redis url: %w", err)
	}
	return events.NewRedisPubSub(redis.NewClient(opts)), nil
}

func zapConfigFromEnv() zap.Config {
	if os.Getenv("RIVETR_ENV") == "development" || os.Getenv("RIVETR_ENV") == "dev" {
		return zap.NewDevelopmentConfig()
	}
	return zap.NewProductionConfig()
}
