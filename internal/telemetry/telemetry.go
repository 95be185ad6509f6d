// Package telemetry wires OpenTelemetry metrics and logs for tinker-agent.
//
// Export is opt-in: nothing is installed unless TINKER_OTEL_METRICS_URL
// or TINKER_OTEL_LOGS_URL is set. The recorder helpers are safe to call
// either way.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

// Environment variables that enable export.
const (
	EnvMetricsURL = "TINKER_OTEL_METRICS_URL"
	EnvLogsURL    = "TINKER_OTEL_LOGS_URL"
)

// metricInterval bounds how long a short-lived invocation buffers metrics.
const metricInterval = 10 * time.Second

// Provider owns the installed SDK providers. A nil *Provider is valid
// and does nothing.
type Provider struct {
	mp *sdkmetric.MeterProvider
	lp *sdklog.LoggerProvider
}

// Init installs global meter and logger providers for whichever
// endpoints are configured. Returns (nil, nil) when telemetry is off.
func Init(ctx context.Context, serviceName, version string) (*Provider, error) {
	metricsURL := os.Getenv(EnvMetricsURL)
	logsURL := os.Getenv(EnvLogsURL)
	if metricsURL == "" && logsURL == "" {
		return nil, nil
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", serviceName),
		attribute.String("service.version", version),
	))
	if err != nil {
		return nil, fmt.Errorf("telemetry resource: %w", err)
	}

	p := &Provider{}
	if metricsURL != "" {
		exp, err := otlpmetrichttp.New(ctx, otlpmetrichttp.WithEndpointURL(metricsURL))
		if err != nil {
			return nil, fmt.Errorf("metrics exporter: %w", err)
		}
		p.mp = sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(metricInterval))),
			sdkmetric.WithResource(res),
		)
		otel.SetMeterProvider(p.mp)
	}
	if logsURL != "" {
		exp, err := otlploghttp.New(ctx, otlploghttp.WithEndpointURL(logsURL))
		if err != nil {
			return nil, errors.Join(fmt.Errorf("logs exporter: %w", err), p.Shutdown(ctx))
		}
		p.lp = sdklog.NewLoggerProvider(
			sdklog.WithProcessor(sdklog.NewBatchProcessor(exp)),
			sdklog.WithResource(res),
		)
		global.SetLoggerProvider(p.lp)
	}
	return p, nil
}

// Shutdown flushes and stops the providers. Must be called before the
// process exits or is replaced, or buffered data is lost.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	var errs []error
	if p.mp != nil {
		errs = append(errs, p.mp.Shutdown(ctx))
	}
	if p.lp != nil {
		errs = append(errs, p.lp.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
