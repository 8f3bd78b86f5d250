package store

import (
	"time"

	"github.com/rivetr/rivetr/internal/enum"
)

// TimeFormat is the ISO-8601 UTC string layout used for every persisted
// timestamp column, matching the data model's "Timestamps are ISO-8601 UTC
// strings" rule.
const TimeFormat = time.RFC3339

// App is the user-declared application row (spec.md §3).
type App struct {
	ID                    string
	Name                  string
	GitURL                string
	Branch                string
	Dockerfile            string
	Port                  int
	MemoryLimitBytes      int64
	CPULimit              float64
	ProjectID             *string
	Domains               string // JSON array, opaque at this layer
	PortMappings          string // JSON object, opaque at this layer
	BasicAuthEnabled      bool
	BasicAuthUsername     *string
	BasicAuthPasswordHash *string
	PreDeployCommands     string // JSON array
	PostDeployCommands    string // JSON array
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Deployment is one attempt to bring an App's commit to `running` (§4.2).
type Deployment struct {
	ID            string
	AppID         string
	CommitSHA     *string
	CommitMessage *string
	Status        enum.DeploymentStatus
	ContainerID   *string
	ImageTag      *string
	ErrorMessage  *string
	StartedAt     time.Time
	FinishedAt    *time.Time
}

// DeploymentLog is an append-only audit row for a Deployment.
type DeploymentLog struct {
	ID           string
	DeploymentID string
	Timestamp    time.Time
	Level        enum.LogLevel
	Message      string
}

// ManagedDatabase is a first-class postgres/mysql/mongodb/redis instance.
type ManagedDatabase struct {
	ID           string
	Name         string
	DBType       enum.DatabaseEngine
	Version      string
	ContainerID  *string
	Status       enum.ManagedDatabaseStatus
	InternalPort int
	ExternalPort *int
	Credentials  string // encrypted JSON, opaque at this layer
	VolumeName   string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// DatabaseCredentials is the decoded shape of ManagedDatabase.Credentials,
// used by the backup scheduler's dump-command builders.
type DatabaseCredentials struct {
	Username     string `json:"username"`
	Password     string `json:"password"`
	RootPassword string `json:"root_password,omitempty"`
	Database     string `json:"database,omitempty"`
}

// Service is a Docker-Compose workload managed as a unit.
type Service struct {
	ID             string
	Name           string
	ComposeContent string
	Status         enum.ServiceStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// EnvVar is an app-scoped environment variable.
type EnvVar struct {
	ID       string
	AppID    string
	Key      string
	Value    string
	IsSecret bool
}

// Volume is an app-scoped mount.
type Volume struct {
	ID            string
	AppID         string
	Name          string
	HostPath      string
	ContainerPath string
	ReadOnly      bool
}

// ResourceMetric is one sample produced by the collector (§4.5).
type ResourceMetric struct {
	AppID            string
	Timestamp        time.Time
	CPUPercent       float64
	MemoryBytes      int64
	MemoryLimitBytes int64
	DiskBytes        int64
	DiskLimitBytes   int64
}

// AlertConfig is a per-app (or global, when AppID is nil) threshold.
type AlertConfig struct {
	ID               string
	AppID            *string
	MetricType       enum.MetricType
	ThresholdPercent float64
	Enabled          bool
}

// GlobalAlertDefault is the process-wide fallback threshold per metric.
type GlobalAlertDefault struct {
	MetricType       enum.MetricType
	ThresholdPercent float64
	Enabled          bool
}

// AlertBreachCount is the ephemeral consecutive-breach counter for (app,metric).
type AlertBreachCount struct {
	AppID               string
	MetricType          enum.MetricType
	ConsecutiveBreaches int
	LastBreachAt        *time.Time
}

// AlertEvent is a firing/resolved alert lifecycle row.
type AlertEvent struct {
	ID                  string
	AppID               string
	MetricType          enum.MetricType
	ThresholdPercent    float64
	CurrentValue        float64
	Status              enum.AlertEventStatus
	FiredAt             time.Time
	ResolvedAt          *time.Time
	LastNotifiedAt      *time.Time
	ConsecutiveBreaches int
}

// CostRate is an administrator-editable monthly rate per resource type.
type CostRate struct {
	ResourceType enum.MetricType
	RatePerUnit  float64
}

// CostSnapshot is a per-app, per-day aggregated cost row (§4.6).
type CostSnapshot struct {
	AppID        string
	SnapshotDate string // YYYY-MM-DD
	AvgCPUCores  float64
	AvgMemoryGB  float64
	AvgDiskGB    float64
	CPUCost      float64
	MemoryCost   float64
	DiskCost     float64
	TotalCost    float64
	SampleCount  int
}

// DatabaseBackup is one backup attempt/result (§4.8).
type DatabaseBackup struct {
	ID           string
	DatabaseID   string
	BackupType   enum.BackupType
	Status       enum.BackupStatus
	FilePath     *string
	FileSize     *int64
	BackupFormat *string
	StartedAt    *time.Time
	CompletedAt  *time.Time
	ErrorMessage *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// DatabaseBackupSchedule drives the scheduler's due-time scan.
type DatabaseBackupSchedule struct {
	ID             string
	DatabaseID     string
	Enabled        bool
	ScheduleType   enum.BackupScheduleType
	ScheduleHour   int
	ScheduleDay    *int
	RetentionCount int
	LastRunAt      *time.Time
	NextRunAt      *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NotificationChannel is an administrator-configured delivery target.
type NotificationChannel struct {
	ID          string
	Name        string
	ChannelType enum.ChannelType
	Config      string // JSON, opaque at this layer
	Enabled     bool
}

// NotificationSubscription binds a channel to an event type (and optionally
// a single app).
type NotificationSubscription struct {
	ID        string
	ChannelID string
	EventType string
	AppID     *string
}
