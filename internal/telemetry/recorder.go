package telemetry

// Each Record function below emits an OTel log event and increments a
// metric counter. With no provider installed both go to the global
// no-op implementations.

import (
	"context"
	"sync"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterRecorderName = "github.com/RoM4iK/tinker-agent"
	loggerName        = "tinker-agent"
)

// recorderInstruments holds all lazy-initialized OTel metric instruments.
type recorderInstruments struct {
	launchTotal        metric.Int64Counter
	stopTotal          metric.Int64Counter
	attachTotal        metric.Int64Counter
	userDiscoveryTotal metric.Int64Counter
	tokenMintTotal     metric.Int64Counter
	tokenCacheHitTotal metric.Int64Counter

	tokenMintDurationHist metric.Float64Histogram
}

var (
	instOnce sync.Once
	inst     recorderInstruments
)

// initInstruments registers all recorder metric instruments against the current
// global MeterProvider. Must be called after telemetry.Init so the real
// provider is set. Also called lazily on first use as a safety net.
func initInstruments() {
	instOnce.Do(func() {
		m := otel.GetMeterProvider().Meter(meterRecorderName)

		inst.launchTotal, _ = m.Int64Counter("tinker.container.launches.total",
			metric.WithDescription("Total agent container launches"),
		)
		inst.stopTotal, _ = m.Int64Counter("tinker.container.stops.total",
			metric.WithDescription("Total agent container removals"),
		)
		inst.attachTotal, _ = m.Int64Counter("tinker.session.attaches.total",
			metric.WithDescription("Total interactive session attaches"),
		)
		inst.userDiscoveryTotal, _ = m.Int64Counter("tinker.session.user_discovery.total",
			metric.WithDescription("In-container user discovery results by winning probe"),
		)
		inst.tokenMintTotal, _ = m.Int64Counter("tinker.credential.mints.total",
			metric.WithDescription("Total installation token exchanges"),
		)
		inst.tokenCacheHitTotal, _ = m.Int64Counter("tinker.credential.cache_hits.total",
			metric.WithDescription("Total installation tokens served from cache"),
		)

		inst.tokenMintDurationHist, _ = m.Float64Histogram("tinker.credential.mint.duration_ms",
			metric.WithDescription("Token exchange round-trip latency in milliseconds"),
			metric.WithUnit("ms"),
		)
	})
}

// statusStr returns "ok" or "error" depending on whether err is nil.
func statusStr(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// emit sends an OTel log event with the given body and key-value attributes.
func emit(ctx context.Context, body string, sev otellog.Severity, attrs ...otellog.KeyValue) {
	logger := global.GetLoggerProvider().Logger(loggerName)
	var r otellog.Record
	r.SetBody(otellog.StringValue(body))
	r.SetSeverity(sev)
	r.AddAttributes(attrs...)
	logger.Emit(ctx, r)
}

// errKV returns a log KeyValue with the error message, or empty string if nil.
func errKV(err error) otellog.KeyValue {
	if err != nil {
		return otellog.String("error", truncateOutput(err.Error(), maxErrorLog))
	}
	return otellog.String("error", "")
}

// severity returns SeverityInfo on success, SeverityError on failure.
func severity(err error) otellog.Severity {
	if err != nil {
		return otellog.SeverityError
	}
	return otellog.SeverityInfo
}

// maxErrorLog is the maximum number of bytes of an error message
// captured in logs. Exchange errors carry the provider's response body.
const maxErrorLog = 1024

// truncateOutput trims s to max bytes and appends "…" when truncated.
// Avoids splitting multi-byte UTF-8 characters at the boundary.
func truncateOutput(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	truncated := s[:limit]
	for len(truncated) > 0 && !utf8.ValidString(truncated) {
		truncated = truncated[:len(truncated)-1]
	}
	return truncated + "…"
}

// RecordLaunch records an agent container launch (metrics + log event).
func RecordLaunch(ctx context.Context, role, container string, err error) {
	initInstruments()
	status := statusStr(err)
	inst.launchTotal.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("role", role),
			attribute.String("status", status),
		),
	)
	emit(ctx, "container.launch", severity(err),
		otellog.String("role", role),
		otellog.String("container", container),
		otellog.String("status", status),
		errKV(err),
	)
}

// RecordStop records a container removal (metrics + log event).
func RecordStop(ctx context.Context, role, container string, err error) {
	initInstruments()
	status := statusStr(err)
	inst.stopTotal.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("role", role),
			attribute.String("status", status),
		),
	)
	emit(ctx, "container.stop", severity(err),
		otellog.String("role", role),
		otellog.String("container", container),
		otellog.String("status", status),
		errKV(err),
	)
}

// RecordAttach records an attach attempt (metrics + log event).
// autoStarted reports whether the container had to be launched first.
func RecordAttach(ctx context.Context, role, container, user string, autoStarted bool, err error) {
	initInstruments()
	status := statusStr(err)
	inst.attachTotal.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("role", role),
			attribute.Bool("auto_started", autoStarted),
			attribute.String("status", status),
		),
	)
	emit(ctx, "session.attach", severity(err),
		otellog.String("role", role),
		otellog.String("container", container),
		otellog.String("user", user),
		otellog.Bool("auto_started", autoStarted),
		otellog.String("status", status),
		errKV(err),
	)
}

// RecordUserDiscovery records which probe identified the session user.
// probe is "default" when every probe came back empty.
func RecordUserDiscovery(ctx context.Context, container, probe, user string) {
	initInstruments()
	inst.userDiscoveryTotal.Add(ctx, 1,
		metric.WithAttributes(attribute.String("probe", probe)),
	)
	sev := otellog.SeverityInfo
	if probe == "default" {
		sev = otellog.SeverityWarn
	}
	emit(ctx, "session.user_discovery", sev,
		otellog.String("container", container),
		otellog.String("probe", probe),
		otellog.String("user", user),
	)
}

// RecordTokenMint records an installation token exchange with its
// duration (metrics + log event). The token itself is never logged.
func RecordTokenMint(ctx context.Context, installationID string, durationMs float64, err error) {
	initInstruments()
	status := statusStr(err)
	attrs := metric.WithAttributes(attribute.String("status", status))
	inst.tokenMintTotal.Add(ctx, 1, attrs)
	inst.tokenMintDurationHist.Record(ctx, durationMs, attrs)
	emit(ctx, "credential.mint", severity(err),
		otellog.String("installation_id", installationID),
		otellog.Float64("duration_ms", durationMs),
		otellog.String("status", status),
		errKV(err),
	)
}

// RecordTokenCacheHit records a token served from the cache.
func RecordTokenCacheHit(ctx context.Context, installationID string) {
	initInstruments()
	inst.tokenCacheHitTotal.Add(ctx, 1)
	emit(ctx, "credential.cache_hit", otellog.SeverityDebug,
		otellog.String("installation_id", installationID),
	)
}
