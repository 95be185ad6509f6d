package telemetry

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	otellog "go.opentelemetry.io/otel/log"
)

// resetInstruments re-arms initInstruments so it registers against the
// current global MeterProvider.
func resetInstruments(t *testing.T) {
	t.Helper()
	instOnce = sync.Once{}
	t.Cleanup(func() { instOnce = sync.Once{} })
}

func TestOutcomeHelpers(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		err      error
		status   string
		severity otellog.Severity
		errValue string
	}{
		{nil, "ok", otellog.SeverityInfo, ""},
		{boom, "error", otellog.SeverityError, "boom"},
	}
	for _, tt := range tests {
		if got := statusStr(tt.err); got != tt.status {
			t.Errorf("statusStr(%v) = %q, want %q", tt.err, got, tt.status)
		}
		if got := severity(tt.err); got != tt.severity {
			t.Errorf("severity(%v) = %v, want %v", tt.err, got, tt.severity)
		}
		if got := errKV(tt.err).Value.AsString(); got != tt.errValue {
			t.Errorf("errKV(%v) = %q, want %q", tt.err, got, tt.errValue)
		}
	}
}

func TestTruncateOutput(t *testing.T) {
	tests := []struct {
		in    string
		limit int
		want  string
	}{
		{"", 10, ""},
		{"hello", 10, "hello"},
		{"abcde", 5, "abcde"},
		{"abcdefghij", 5, "abcde…"},
		{"héllo", 2, "h…"}, // never splits a rune
	}
	for _, tt := range tests {
		if got := truncateOutput(tt.in, tt.limit); got != tt.want {
			t.Errorf("truncateOutput(%q, %d) = %q, want %q", tt.in, tt.limit, got, tt.want)
		}
	}
}

func TestErrKVTruncatesExchangeBody(t *testing.T) {
	body := strings.Repeat("x", maxErrorLog+100)
	got := errKV(errors.New(body)).Value.AsString()
	if len(got) != maxErrorLog+len("…") {
		t.Errorf("len = %d, want %d", len(got), maxErrorLog+len("…"))
	}
}

// The Record functions run against the no-op providers here; they must
// not panic for either outcome.
func TestRecordFunctionsNoop(t *testing.T) {
	resetInstruments(t)
	ctx := context.Background()
	fail := errors.New("exit 125")

	RecordLaunch(ctx, "planner", "tinker-planner", nil)
	RecordLaunch(ctx, "worker", "tinker-autonomous-worker", fail)
	RecordStop(ctx, "planner", "tinker-planner", nil)
	RecordStop(ctx, "planner", "tinker-planner", fail)
	RecordAttach(ctx, "worker", "tinker-autonomous-worker", "rails", false, nil)
	RecordAttach(ctx, "worker", "tinker-autonomous-worker", "", true, fail)
	RecordUserDiscovery(ctx, "tinker-planner", "supervisor", "dev")
	RecordUserDiscovery(ctx, "tinker-planner", "default", "rails")
	RecordTokenMint(ctx, "12345", 87.5, nil)
	RecordTokenMint(ctx, "12345", 3.0, errors.New("HTTP 401"))
	RecordTokenCacheHit(ctx, "12345")
}
