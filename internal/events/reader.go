package events

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

// Filter selects events. Zero fields match everything.
type Filter struct {
	Type     string
	Actor    string
	Subject  string    // role
	Since    time.Time // inclusive
	AfterSeq uint64
}

// Match reports whether e satisfies every set field of f.
func (f Filter) Match(e Event) bool {
	switch {
	case f.AfterSeq > 0 && e.Seq <= f.AfterSeq:
		return false
	case f.Type != "" && e.Type != f.Type:
		return false
	case f.Actor != "" && e.Actor != f.Actor:
		return false
	case f.Subject != "" && e.Subject != f.Subject:
		return false
	case !f.Since.IsZero() && e.Ts.Before(f.Since):
		return false
	}
	return true
}

func (f Filter) apply(in []Event) []Event {
	var out []Event
	for _, e := range in {
		if f.Match(e) {
			out = append(out, e)
		}
	}
	return out
}

// ReadAll returns every event in the log at path. A missing log is
// empty, not an error.
func ReadAll(path string) ([]Event, error) {
	evts, _, err := ReadFrom(path, 0)
	return evts, err
}

// ReadFiltered returns the events in the log at path that match filter.
func ReadFiltered(path string, filter Filter) ([]Event, error) {
	all, err := ReadAll(path)
	if err != nil {
		return nil, err
	}
	return filter.apply(all), nil
}

// ReadLatestSeq returns the highest Seq in the log, or 0 when the log is
// missing or empty.
func ReadLatestSeq(path string) (uint64, error) {
	all, err := ReadAll(path)
	var top uint64
	for _, e := range all {
		top = max(top, e.Seq)
	}
	return top, err
}

// ReadFrom decodes the complete lines that start at byte offset and
// returns them with the offset just past the last complete line. A
// trailing line without its newline is a write in progress; it is left
// for the next call. Undecodable lines are skipped.
func ReadFrom(path string, offset int64) ([]Event, int64, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, offset, nil
	}
	if err != nil {
		return nil, offset, fmt.Errorf("reading events: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only file

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, offset, fmt.Errorf("seeking events: %w", err)
	}
	var out []Event
	br := bufio.NewReader(f)
	for {
		line, err := br.ReadBytes('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				return out, offset, nil
			}
			return out, offset, fmt.Errorf("scanning events: %w", err)
		}
		offset += int64(len(line))
		var e Event
		if json.Unmarshal(bytes.TrimSpace(line), &e) == nil {
			out = append(out, e)
		}
	}
}
