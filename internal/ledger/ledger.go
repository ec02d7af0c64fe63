// Package ledger is the append-only event log a run exposes to outside
// tooling. Every published and consumed event is recorded in arrival
// order, tagged with the iteration and source hat. The loop never reads
// the log back; it exists for post-hoc inspection.
//
// The active-run marker file lets out-of-process collaborators discover
// which log a running loop is writing. The marker path is injected
// configuration, never discovered from ambient state.
package ledger

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/a-marczewski/hatloop/internal/event"
)

// Entry is one logged event.
type Entry struct {
	Time       time.Time `json:"ts"`
	Iteration  int       `json:"iteration"`
	Direction  string    `json:"direction"` // "published" or "consumed"
	Topic      string    `json:"topic"`
	Payload    string    `json:"payload"`
	Source     string    `json:"source,omitempty"`
	Target     string    `json:"target,omitempty"`
	Recipients []string  `json:"recipients,omitempty"`
}

// Ledger appends entries to a per-run JSONL file.
type Ledger struct {
	f      *os.File
	path   string
	marker string
	runID  string
	logger *zap.Logger
}

// Open creates a new run log under dir and writes the active-run
// marker. markerPath may be empty to skip the marker entirely.
func Open(dir, markerPath string, logger *zap.Logger) (*Ledger, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}
	runID := uuid.NewString()
	path := filepath.Join(dir, fmt.Sprintf("run-%s-%s.jsonl", time.Now().Format("20060102-150405"), runID[:8]))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open run log: %w", err)
	}

	if markerPath != "" {
		if err := os.WriteFile(markerPath, []byte(path+"\n"), 0644); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to write run marker: %w", err)
		}
	}

	return &Ledger{f: f, path: path, marker: markerPath, runID: runID, logger: logger}, nil
}

// Path returns the run log's file path.
func (l *Ledger) Path() string { return l.path }

// RunID returns the run's unique id.
func (l *Ledger) RunID() string { return l.runID }

// Record appends one entry. Failures are logged, not returned: a full
// disk must not stop the loop.
func (l *Ledger) Record(e Entry) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	data, err := json.Marshal(e)
	if err != nil {
		l.logger.Warn("failed to encode ledger entry", zap.Error(err))
		return
	}
	if _, err := l.f.Write(append(data, '\n')); err != nil {
		l.logger.Warn("failed to append ledger entry", zap.Error(err))
	}
}

// Observer returns a bus observer that records every publish. iteration
// is read lazily so the observer can be registered before the loop
// starts.
func (l *Ledger) Observer(iteration func() int) event.Observer {
	return func(ev event.Event) {
		l.Record(Entry{
			Iteration: iteration(),
			Direction: "published",
			Topic:     ev.Topic,
			Payload:   ev.Payload,
			Source:    ev.Source,
			Target:    ev.Target,
		})
	}
}

// Close closes the log and clears the active-run marker.
func (l *Ledger) Close() error {
	if l.marker != "" {
		_ = os.Remove(l.marker)
	}
	return l.f.Close()
}

// ReadEntries loads every entry from a run log, skipping malformed
// lines.
func ReadEntries(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, scanner.Err()
}
