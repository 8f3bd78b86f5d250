package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/matcornic/hermes/v2"
	"github.com/rivetr/rivetr/internal/enum"
	"github.com/rivetr/rivetr/internal/notify/channel"
)

func hermesConfig(dashboardURL string) hermes.Hermes {
	return hermes.Hermes{
		Theme: new(hermes.Default),
		Product: hermes.Product{
			Name:      "Rivetr",
			Link:      dashboardURL,
			Copyright: "© Rivetr. All rights reserved.",
		},
	}
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// AlertFiredMessage renders the notification sent the first time an alert
// starts firing, and on every re-notification while it stays breached.
func AlertFiredMessage(dashboardURL, appName string, metricType enum.MetricType, currentValue, threshold float64, severity enum.AlertSeverity) channel.Message {
	subject := fmt.Sprintf("[%s] %s %s alert: %.1f%% (threshold %.1f%%)",
		strings.ToUpper(string(severity)), appName, metricType, currentValue, threshold)

	h := hermesConfig(dashboardURL)
	email := hermes.Email{
		Body: hermes.Body{
			Title: fmt.Sprintf("%s alert firing for %s", titleCase(string(metricType)), appName),
			Intros: []string{
				fmt.Sprintf("**%s** has breached its %s threshold.", appName, metricType),
			},
			Dictionary: []hermes.Entry{
				{Key: "Metric", Value: string(metricType)},
				{Key: "Current value", Value: fmt.Sprintf("%.1f%%", currentValue)},
				{Key: "Threshold", Value: fmt.Sprintf("%.1f%%", threshold)},
				{Key: "Severity", Value: string(severity)},
				{Key: "Fired at", Value: time.Now().UTC().Format("2006-01-02 15:04:05 MST")},
			},
			Outros: []string{
				"View the app's resource graphs in the dashboard for more detail.",
			},
		},
	}

	htmlBody, _ := h.GenerateHTML(email)
	body, _ := h.GeneratePlainText(email)

	return channel.Message{
		Subject:  subject,
		Body:     body,
		HTMLBody: htmlBody,
		Metadata: map[string]any{
			"app_name":    appName,
			"metric_type": string(metricType),
			"severity":    string(severity),
		},
	}
}

// AlertResolvedMessage renders the notification sent when a firing alert
// falls back below its threshold (or its metric is disabled mid-breach).
func AlertResolvedMessage(dashboardURL, appName string, metricType enum.MetricType, currentValue float64) channel.Message {
	subject := fmt.Sprintf("[RESOLVED] %s %s alert", appName, metricType)

	h := hermesConfig(dashboardURL)
	email := hermes.Email{
		Body: hermes.Body{
			Title: fmt.Sprintf("%s alert resolved for %s", titleCase(string(metricType)), appName),
			Intros: []string{
				fmt.Sprintf("**%s**'s %s usage has returned to normal.", appName, metricType),
			},
			Dictionary: []hermes.Entry{
				{Key: "Metric", Value: string(metricType)},
				{Key: "Current value", Value: fmt.Sprintf("%.1f%%", currentValue)},
				{Key: "Resolved at", Value: time.Now().UTC().Format("2006-01-02 15:04:05 MST")},
			},
		},
	}

	htmlBody, _ := h.GenerateHTML(email)
	body, _ := h.GeneratePlainText(email)

	return channel.Message{
		Subject:  subject,
		Body:     body,
		HTMLBody: htmlBody,
		Metadata: map[string]any{
			"app_name":    appName,
			"metric_type": string(metricType),
		},
	}
}
