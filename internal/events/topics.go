package events

import "fmt"

// Topic constants follow the same hierarchical "{resource}:{id}" naming
// convention as the teacher's GraphQL-subscription topics, repurposed here
// for deployment/database/service/alert/backup lifecycle events rather than
// trading-bot events.
const (
	prefixDeployment = "deployment"
	prefixDatabase   = "database"
	prefixService    = "service"
	prefixAppAlerts  = "app:alerts"
)

// DeploymentTopic returns the topic for a single Deployment's status
// changes. Subscribers receive DeploymentStatusEvent messages.
func DeploymentTopic(deploymentID string) string {
	return fmt.Sprintf("%s:%s", prefixDeployment, deploymentID)
}

// DatabaseTopic returns the topic for a single ManagedDatabase's status
// changes. Subscribers receive DatabaseStatusEvent messages.
func DatabaseTopic(databaseID string) string {
	return fmt.Sprintf("%s:%s", prefixDatabase, databaseID)
}

// ServiceTopic returns the topic for a single Compose Service's status
// changes. Subscribers receive ServiceStatusEvent messages.
func ServiceTopic(serviceID string) string {
	return fmt.Sprintf("%s:%s", prefixService, serviceID)
}

// AppAlertsTopic returns the topic for every alert fired against a given
// App, regardless of metric type. Subscribers receive AlertFiredEvent
// messages.
func AppAlertsTopic(appID string) string {
	return fmt.Sprintf("%s:%s", prefixAppAlerts, appID)
}
