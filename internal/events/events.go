// Package events keeps a local history of what tinker-agent did.
//
// Events are simple, synchronous, append-only records. The recorder
// writes JSON lines to .tinker/events.jsonl under the project root;
// the reader scans them back. Recording is best-effort: errors are
// logged to stderr but never returned to callers.
package events

import (
	"context"
	"encoding/json"
	"time"
)

// Event type constants.
const (
	ContainerLaunched     = "container.launched"
	ContainerLaunchFailed = "container.launch_failed"
	ContainerStopped      = "container.stopped"
	SessionAttached       = "session.attached"
	SessionAutoStarted    = "session.auto_started"
)

// Event is a single recorded occurrence.
type Event struct {
	Seq     uint64          `json:"seq"`
	Type    string          `json:"type"`
	Ts      time.Time       `json:"ts"`
	Actor   string          `json:"actor"`
	Subject string          `json:"subject,omitempty"`
	Message string          `json:"message,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Recorder records events. Safe for concurrent use. Best-effort.
type Recorder interface {
	Record(e Event)
}

// Provider records and reads back events.
type Provider interface {
	Recorder
	List(filter Filter) ([]Event, error)
	LatestSeq() (uint64, error)
	Close() error
}

// Watcher yields events as they are appended.
type Watcher interface {
	Next() (Event, error)
	Close() error
}

// Watchable is a [Provider] that can follow new events.
type Watchable interface {
	Provider
	Watch(ctx context.Context, afterSeq uint64) (Watcher, error)
}

// Discard silently drops all events.
var Discard Recorder = discardRecorder{}

type discardRecorder struct{}

func (discardRecorder) Record(Event) {}

// MustPayload marshals v for [Event.Payload], returning nil on failure.
func MustPayload(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}
