package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// PollInterval is how often a [Watcher] from [FileRecorder.Watch]
// checks the log for new lines.
const PollInterval = 250 * time.Millisecond

// FileRecorder appends events to a JSONL log. Every append holds an
// advisory lock on "<path>.lock" and re-reads the highest Seq first, so
// launches running in separate processes still get distinct, increasing
// sequence numbers. Failures are reported on stderr and never returned.
type FileRecorder struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	lock   *flock.Flock
	seq    uint64
	stderr io.Writer
}

// NewFileRecorder opens the log at path for appending, creating it and
// its directory if needed.
func NewFileRecorder(path string, stderr io.Writer) (*FileRecorder, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating event log directory: %w", err)
	}
	seq, err := ReadLatestSeq(path)
	if err != nil {
		return nil, err
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening event log: %w", err)
	}
	return &FileRecorder{path: path, file: file, lock: flock.New(path + ".lock"), seq: seq, stderr: stderr}, nil
}

// Path returns the log location.
func (r *FileRecorder) Path() string { return r.path }

// Record assigns the next Seq, stamps Ts when unset, and appends e.
func (r *FileRecorder) Record(e Event) {
	if err := r.append(e); err != nil {
		fmt.Fprintf(r.stderr, "events: %v\n", err) //nolint:errcheck // best-effort stderr
	}
}

func (r *FileRecorder) append(e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.lock.Lock(); err != nil {
		return fmt.Errorf("lock: %w", err)
	}
	defer r.lock.Unlock() //nolint:errcheck // released on close anyway

	if latest, err := ReadLatestSeq(r.path); err == nil {
		r.seq = max(r.seq, latest)
	}
	r.seq++
	e.Seq = r.seq
	if e.Ts.IsZero() {
		e.Ts = time.Now()
	}
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if _, err := r.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

// List returns the logged events that match filter.
func (r *FileRecorder) List(filter Filter) ([]Event, error) {
	return ReadFiltered(r.path, filter)
}

// LatestSeq returns the highest Seq in the log.
func (r *FileRecorder) LatestSeq() (uint64, error) {
	return ReadLatestSeq(r.path)
}

// Watch follows the log, yielding events with Seq above afterSeq until
// ctx ends.
func (r *FileRecorder) Watch(ctx context.Context, afterSeq uint64) (Watcher, error) {
	return &fileWatcher{ctx: ctx, path: r.path, after: afterSeq, every: PollInterval}, nil
}

// Close releases the log file and lock.
func (r *FileRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return errors.Join(r.file.Close(), r.lock.Close())
}

type fileWatcher struct {
	ctx     context.Context
	path    string
	after   uint64
	every   time.Duration
	offset  int64
	pending []Event
}

// Next blocks until an event past the cursor is logged. It returns
// ctx.Err() once the context ends.
func (w *fileWatcher) Next() (Event, error) {
	for len(w.pending) == 0 {
		if err := w.ctx.Err(); err != nil {
			return Event{}, err
		}
		evts, off, err := ReadFrom(w.path, w.offset)
		if err != nil {
			return Event{}, err
		}
		w.offset = off
		for _, e := range evts {
			if e.Seq > w.after {
				w.pending = append(w.pending, e)
				w.after = e.Seq
			}
		}
		if len(w.pending) > 0 {
			break
		}
		t := time.NewTimer(w.every)
		select {
		case <-w.ctx.Done():
			t.Stop()
			return Event{}, w.ctx.Err()
		case <-t.C:
		}
	}
	e := w.pending[0]
	w.pending = w.pending[1:]
	return e, nil
}

func (w *fileWatcher) Close() error { return nil }
