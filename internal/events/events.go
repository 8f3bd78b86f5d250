package events

import "time"

// EventType identifies the shape of an event's payload for subscribers
// doing a type switch after unmarshaling.
type EventType string

const (
	EventTypeDeploymentStatus EventType = "deployment_status"
	EventTypeDatabaseStatus   EventType = "database_status"
	EventTypeServiceStatus    EventType = "service_status"
	EventTypeAlertFired       EventType = "alert_fired"
	EventTypeBackupCompleted  EventType = "backup_completed"
)

// DeploymentStatusEvent is published whenever the monitor or deploy flow
// changes a Deployment's status (running/stopped/failed).
type DeploymentStatusEvent struct {
	Type         EventType `json:"type"`
	DeploymentID string    `json:"deployment_id"`
	AppID        string    `json:"app_id"`
	Status       string    `json:"status"`
	Error        string    `json:"error,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// DatabaseStatusEvent is published whenever the monitor changes a
// ManagedDatabase's status.
type DatabaseStatusEvent struct {
	Type       EventType `json:"type"`
	DatabaseID string    `json:"database_id"`
	Status     string    `json:"status"`
	Timestamp  time.Time `json:"timestamp"`
}

// ServiceStatusEvent is published whenever the monitor changes a Compose
// Service's status.
type ServiceStatusEvent struct {
	Type      EventType `json:"type"`
	ServiceID string    `json:"service_id"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// AlertFiredEvent describes an alert opening or resolving. No component
// publishes it; the alert evaluator reports alerts only through the
// notification dispatcher.
type AlertFiredEvent struct {
	Type       EventType `json:"type"`
	AlertID    string    `json:"alert_id"`
	AppID      string    `json:"app_id"`
	MetricType string    `json:"metric_type"`
	Resolved   bool      `json:"resolved"`
	Timestamp  time.Time `json:"timestamp"`
}

// BackupCompletedEvent describes the outcome (success or failure) of a
// database dump. No component publishes it; the backup scheduler records
// outcomes only in the store.
type BackupCompletedEvent struct {
	Type       EventType `json:"type"`
	DatabaseID string    `json:"database_id"`
	BackupID   string    `json:"backup_id"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}
