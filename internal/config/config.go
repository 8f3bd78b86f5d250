// Package config loads Rivetr's process-wide configuration from flags and
// environment variables, following the sectioned table in the specification
// (server, runtime, auth, container_monitor, cleanup, database_backup,
// disk_monitor, rate_limit).
package config

import (
	"time"

	"github.com/urfave/cli/v2"
)

// Config is the fully-resolved process configuration. It is built once at
// startup from CLI flags (which fall back to environment variables via
// urfave/cli's EnvVars) and passed down to every component by value or
// narrowed to the sub-struct it needs.
type Config struct {
	Server            ServerConfig
	Runtime           RuntimeConfig
	Auth              AuthConfig
	ContainerMonitor  ContainerMonitorConfig
	AlertEvaluator    AlertEvaluatorConfig
	Cleanup           CleanupConfig
	DatabaseBackup    DatabaseBackupConfig
	DiskMonitor       DiskMonitorConfig
	RateLimit         RateLimitConfig
	ResourceMetrics   ResourceMetricsConfig
	Cost              CostConfig
	NotificationQueue NotificationQueueConfig
	Email             EmailConfig
	Events            EventsConfig
}

type ServerConfig struct {
	Host        string
	APIPort     int
	ProxyPort   int
	DataDir     string
	ExternalURL string
	Database    string
}

type RuntimeConfig struct {
	RuntimeType  string // auto, docker, podman
	DockerSocket string
}

type AuthConfig struct {
	AdminToken    string
	EncryptionKey string
	OldKeys       []string
}

// ContainerMonitorConfig mirrors spec.md §4.3 / §6.
type ContainerMonitorConfig struct {
	Enabled             bool
	CheckIntervalSecs   int
	MaxRestartAttempts  int
	InitialBackoffSecs  int
	MaxBackoffSecs      int
	StableDurationSecs  int
}

// AlertEvaluatorConfig mirrors spec.md §4.4 / §6.
type AlertEvaluatorConfig struct {
	Enabled             bool
	CheckIntervalSecs   int
	DashboardURL        string
}

// CleanupConfig mirrors spec.md §4.7 / §6.
type CleanupConfig struct {
	Enabled                bool
	CleanupIntervalSeconds int
	MaxDeploymentsPerApp   int
	PruneImages            bool
}

// DatabaseBackupConfig mirrors spec.md §4.8 / §6.
type DatabaseBackupConfig struct {
	Enabled             bool
	CheckIntervalSeconds int
	BackupDir           string
}

// DiskMonitorConfig mirrors spec.md §6; the component itself is a
// supplemented feature (see SPEC_FULL.md SUPPLEMENTED FEATURES).
type DiskMonitorConfig struct {
	Enabled             bool
	CheckIntervalSeconds int
	WarningThreshold    int
	CriticalThreshold   int
}

// RateLimitConfig is ambient HTTP-layer infrastructure; the handlers behind
// it are out of scope, but the middleware construction is not.
type RateLimitConfig struct {
	Enabled                 bool
	APIRequestsPerWindow    int
	WebhookRequestsPerWindow int
	AuthRequestsPerWindow   int
	WindowSeconds           int
	CleanupInterval         time.Duration
}

// ResourceMetricsConfig governs the collector (spec.md §4.5).
type ResourceMetricsConfig struct {
	TickInterval    time.Duration
	RetentionHours  int
}

// CostConfig governs retention for the cost calculator (spec.md §4.6).
type CostConfig struct {
	RetentionDays int
}

// NotificationQueueConfig governs the dispatcher's bounded queue (§4.9).
type NotificationQueueConfig struct {
	Capacity int
}

// EmailConfig holds the process-wide SendGrid credentials backing the
// email NotificationChannel type. Left empty, email channels are skipped
// with a logged warning rather than failing the whole dispatcher.
type EmailConfig struct {
	SendGridAPIKey string
	FromEmail      string
	FromName       string
}

// EventsConfig governs the internal pub/sub layer. Left empty, events stay
// in-memory (single-process); a Redis URL upgrades it to a Redis-backed
// client any second process can subscribe to.
type EventsConfig struct {
	RedisURL string
}

// Flags returns the full urfave/cli flag set for the "server" command, one
// env-var-bound flag per RIVETR_* variable in the configuration table.
func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "host", Value: "0.0.0.0", EnvVars: []string{"RIVETR_HOST"}},
		&cli.IntFlag{Name: "api-port", Value: 8080, EnvVars: []string{"RIVETR_API_PORT"}},
		&cli.IntFlag{Name: "proxy-port", Value: 8443, EnvVars: []string{"RIVETR_PROXY_PORT"}},
		&cli.StringFlag{Name: "data-dir", Value: "./data", EnvVars: []string{"RIVETR_DATA_DIR"}},
		&cli.StringFlag{Name: "external-url", EnvVars: []string{"RIVETR_EXTERNAL_URL"}},
		&cli.StringFlag{Name: "database", Value: "sqlite://./data/rivetr.db", EnvVars: []string{"RIVETR_DATABASE"}},

		&cli.StringFlag{Name: "runtime-type", Value: "auto", EnvVars: []string{"RIVETR_RUNTIME_TYPE"}},
		&cli.StringFlag{Name: "docker-socket", EnvVars: []string{"RIVETR_DOCKER_SOCKET"}},

		&cli.StringFlag{Name: "admin-token", EnvVars: []string{"RIVETR_ADMIN_TOKEN"}},
		&cli.StringFlag{Name: "encryption-key", EnvVars: []string{"RIVETR_ENCRYPTION_KEY"}},
		&cli.StringSliceFlag{Name: "old-encryption-keys", EnvVars: []string{"RIVETR_OLD_ENCRYPTION_KEYS"}},

		&cli.BoolFlag{Name: "monitor-enabled", Value: true, EnvVars: []string{"RIVETR_MONITOR_ENABLED"}},
		&cli.IntFlag{Name: "monitor-check-interval-secs", Value: 15, EnvVars: []string{"RIVETR_MONITOR_CHECK_INTERVAL_SECS"}},
		&cli.IntFlag{Name: "monitor-max-restart-attempts", Value: 5, EnvVars: []string{"RIVETR_MONITOR_MAX_RESTART_ATTEMPTS"}},
		&cli.IntFlag{Name: "monitor-initial-backoff-secs", Value: 5, EnvVars: []string{"RIVETR_MONITOR_INITIAL_BACKOFF_SECS"}},
		&cli.IntFlag{Name: "monitor-max-backoff-secs", Value: 300, EnvVars: []string{"RIVETR_MONITOR_MAX_BACKOFF_SECS"}},
		&cli.IntFlag{Name: "monitor-stable-duration-secs", Value: 60, EnvVars: []string{"RIVETR_MONITOR_STABLE_DURATION_SECS"}},

		&cli.BoolFlag{Name: "alert-evaluator-enabled", Value: true, EnvVars: []string{"RIVETR_ALERT_EVALUATOR_ENABLED"}},
		&cli.IntFlag{Name: "alert-evaluator-check-interval-secs", Value: 60, EnvVars: []string{"RIVETR_ALERT_EVALUATOR_CHECK_INTERVAL_SECS"}},

		&cli.BoolFlag{Name: "cleanup-enabled", Value: true, EnvVars: []string{"RIVETR_CLEANUP_ENABLED"}},
		&cli.IntFlag{Name: "cleanup-interval-seconds", Value: 86400, EnvVars: []string{"RIVETR_CLEANUP_INTERVAL_SECONDS"}},
		&cli.IntFlag{Name: "cleanup-max-deployments-per-app", Value: 10, EnvVars: []string{"RIVETR_CLEANUP_MAX_DEPLOYMENTS_PER_APP"}},
		&cli.BoolFlag{Name: "cleanup-prune-images", Value: false, EnvVars: []string{"RIVETR_CLEANUP_PRUNE_IMAGES"}},

		&cli.BoolFlag{Name: "backup-enabled", Value: true, EnvVars: []string{"RIVETR_BACKUP_ENABLED"}},
		&cli.IntFlag{Name: "backup-check-interval-seconds", Value: 300, EnvVars: []string{"RIVETR_BACKUP_CHECK_INTERVAL_SECONDS"}},
		&cli.StringFlag{Name: "backup-dir", Value: "backups", EnvVars: []string{"RIVETR_BACKUP_DIR"}},

		&cli.BoolFlag{Name: "disk-monitor-enabled", Value: true, EnvVars: []string{"RIVETR_DISK_MONITOR_ENABLED"}},
		&cli.IntFlag{Name: "disk-monitor-check-interval-seconds", Value: 300, EnvVars: []string{"RIVETR_DISK_MONITOR_CHECK_INTERVAL_SECONDS"}},
		&cli.IntFlag{Name: "disk-monitor-warning-threshold", Value: 80, EnvVars: []string{"RIVETR_DISK_MONITOR_WARNING_THRESHOLD"}},
		&cli.IntFlag{Name: "disk-monitor-critical-threshold", Value: 90, EnvVars: []string{"RIVETR_DISK_MONITOR_CRITICAL_THRESHOLD"}},

		&cli.BoolFlag{Name: "rate-limit-enabled", Value: true, EnvVars: []string{"RIVETR_RATE_LIMIT_ENABLED"}},
		&cli.IntFlag{Name: "rate-limit-api-requests-per-window", Value: 300, EnvVars: []string{"RIVETR_RATE_LIMIT_API_REQUESTS_PER_WINDOW"}},
		&cli.IntFlag{Name: "rate-limit-webhook-requests-per-window", Value: 60, EnvVars: []string{"RIVETR_RATE_LIMIT_WEBHOOK_REQUESTS_PER_WINDOW"}},
		&cli.IntFlag{Name: "rate-limit-auth-requests-per-window", Value: 20, EnvVars: []string{"RIVETR_RATE_LIMIT_AUTH_REQUESTS_PER_WINDOW"}},
		&cli.IntFlag{Name: "rate-limit-window-seconds", Value: 60, EnvVars: []string{"RIVETR_RATE_LIMIT_WINDOW_SECONDS"}},

		&cli.DurationFlag{Name: "metrics-tick-interval", Value: 60 * time.Second, EnvVars: []string{"RIVETR_METRICS_TICK_INTERVAL"}},
		&cli.IntFlag{Name: "metrics-retention-hours", Value: 24, EnvVars: []string{"RIVETR_METRICS_RETENTION_HOURS"}},

		&cli.IntFlag{Name: "cost-retention-days", Value: 365, EnvVars: []string{"RIVETR_COST_RETENTION_DAYS"}},

		&cli.IntFlag{Name: "notification-queue-capacity", Value: 256, EnvVars: []string{"RIVETR_NOTIFICATION_QUEUE_CAPACITY"}},

		&cli.StringFlag{Name: "sendgrid-api-key", EnvVars: []string{"RIVETR_SENDGRID_API_KEY"}},
		&cli.StringFlag{Name: "email-from-address", EnvVars: []string{"RIVETR_EMAIL_FROM_ADDRESS"}},
		&cli.StringFlag{Name: "email-from-name", Value: "Rivetr", EnvVars: []string{"RIVETR_EMAIL_FROM_NAME"}},

		&cli.StringFlag{Name: "events-redis-url", EnvVars: []string{"RIVETR_EVENTS_REDIS_URL"}},
	}
}

// FromCLI builds a Config from a populated urfave/cli context.
func FromCLI(c *cli.Context) Config {
	return Config{
		Server: ServerConfig{
			Host:        c.String("host"),
			APIPort:     c.Int("api-port"),
			ProxyPort:   c.Int("proxy-port"),
			DataDir:     c.String("data-dir"),
			ExternalURL: c.String("external-url"),
			Database:    c.String("database"),
		},
		Runtime: RuntimeConfig{
			RuntimeType:  c.String("runtime-type"),
			DockerSocket: c.String("docker-socket"),
		},
		Auth: AuthConfig{
			AdminToken:    c.String("admin-token"),
			EncryptionKey: c.String("encryption-key"),
			OldKeys:       c.StringSlice("old-encryption-keys"),
		},
		ContainerMonitor: ContainerMonitorConfig{
			Enabled:            c.Bool("monitor-enabled"),
			CheckIntervalSecs:  c.Int("monitor-check-interval-secs"),
			MaxRestartAttempts: c.Int("monitor-max-restart-attempts"),
			InitialBackoffSecs: c.Int("monitor-initial-backoff-secs"),
			MaxBackoffSecs:     c.Int("monitor-max-backoff-secs"),
			StableDurationSecs: c.Int("monitor-stable-duration-secs"),
		},
		AlertEvaluator: AlertEvaluatorConfig{
			Enabled:           c.Bool("alert-evaluator-enabled"),
			CheckIntervalSecs: c.Int("alert-evaluator-check-interval-secs"),
			DashboardURL:      c.String("external-url"),
		},
		Cleanup: CleanupConfig{
			Enabled:                c.Bool("cleanup-enabled"),
			CleanupIntervalSeconds: c.Int("cleanup-interval-seconds"),
			MaxDeploymentsPerApp:   c.Int("cleanup-max-deployments-per-app"),
			PruneImages:            c.Bool("cleanup-prune-images"),
		},
		DatabaseBackup: DatabaseBackupConfig{
			Enabled:              c.Bool("backup-enabled"),
			CheckIntervalSeconds: c.Int("backup-check-interval-seconds"),
			BackupDir:            c.String("backup-dir"),
		},
		DiskMonitor: DiskMonitorConfig{
			Enabled:              c.Bool("disk-monitor-enabled"),
			CheckIntervalSeconds: c.Int("disk-monitor-check-interval-seconds"),
			WarningThreshold:     c.Int("disk-monitor-warning-threshold"),
			CriticalThreshold:    c.Int("disk-monitor-critical-threshold"),
		},
		RateLimit: RateLimitConfig{
			Enabled:                  c.Bool("rate-limit-enabled"),
			APIRequestsPerWindow:     c.Int("rate-limit-api-requests-per-window"),
			WebhookRequestsPerWindow: c.Int("rate-limit-webhook-requests-per-window"),
			AuthRequestsPerWindow:    c.Int("rate-limit-auth-requests-per-window"),
			WindowSeconds:            c.Int("rate-limit-window-seconds"),
			CleanupInterval:          time.Minute,
		},
		ResourceMetrics: ResourceMetricsConfig{
			TickInterval:   c.Duration("metrics-tick-interval"),
			RetentionHours: c.Int("metrics-retention-hours"),
		},
		Cost: CostConfig{
			RetentionDays: c.Int("cost-retention-days"),
		},
		NotificationQueue: NotificationQueueConfig{
			Capacity: c.Int("notification-queue-capacity"),
		},
		Email: EmailConfig{
			SendGridAPIKey: c.String("sendgrid-api-key"),
			FromEmail:      c.String("email-from-address"),
			FromName:       c.String("email-from-name"),
		},
		Events: EventsConfig{
			RedisURL: c.String("events-redis-url"),
		},
	}
}
