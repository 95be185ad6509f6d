package telemetry

import (
	"os"
	"strings"
)

// buildResourceAttrs builds the OTEL_RESOURCE_ATTRIBUTES value for an
// agent container. Returns "" when both inputs are empty.
func buildResourceAttrs(role, projectID string) string {
	var attrs []string
	if role != "" {
		attrs = append(attrs, "tinker.role="+role)
	}
	if projectID != "" {
		attrs = append(attrs, "tinker.project="+projectID)
	}
	return strings.Join(attrs, ",")
}

// ContainerEnv returns the telemetry variables to inject into an agent
// container so that the in-container credential helper and the agent
// report to the same collector as the host.
//
// Returns nil when telemetry is not active (TINKER_OTEL_METRICS_URL not set).
func ContainerEnv(role, projectID string) map[string]string {
	metricsURL := os.Getenv(EnvMetricsURL)
	if metricsURL == "" {
		return nil
	}
	m := map[string]string{
		EnvMetricsURL:                  metricsURL,
		"CLAUDE_CODE_ENABLE_TELEMETRY": "1",
	}
	if attrs := buildResourceAttrs(role, projectID); attrs != "" {
		m["OTEL_RESOURCE_ATTRIBUTES"] = attrs
	}
	if logsURL := os.Getenv(EnvLogsURL); logsURL != "" {
		m[EnvLogsURL] = logsURL
	}
	return m
}
