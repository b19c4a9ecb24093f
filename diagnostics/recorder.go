// Package diagnostics persists redacted step events and page snapshots for
// one automation run.
package diagnostics

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// StepEvent is one redacted entry in a run's event log.
type StepEvent struct {
	RunID string                 `json:"run_id"`
	TS    float64                `json:"ts"`
	Event string                 `json:"event"`
	Step  map[string]interface{} `json:"step,omitempty"`
	Extra map[string]interface{} `json:"extra,omitempty"`
}

// EventSink receives every recorded event in addition to the run log, e.g.
// a NATS subject. Sink errors never fail a run.
type EventSink interface {
	Publish(ctx context.Context, evt StepEvent) error
}

// Recorder appends redacted StepEvents to a per-run JSONL file and saves
// page snapshots. One recorder per run; files are keyed by run ID so
// concurrent runs never interleave writes.
type Recorder struct {
	dir     string
	runID   string
	saveRaw bool
	sink    EventSink

	mu   sync.Mutex
	file *os.File
}

// NewRecorder opens the step log for runID under dir. sink may be nil.
func NewRecorder(dir, runID string, saveRaw bool, sink EventSink) (*Recorder, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create diagnostics dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("steps_%s.jsonl", runID))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open step log: %w", err)
	}
	return &Recorder{dir: dir, runID: runID, saveRaw: saveRaw, sink: sink, file: f}, nil
}

// Record appends one event. Payloads are redacted before anything touches
// disk or the sink.
func (r *Recorder) Record(event string, step map[string]interface{}, extra map[string]interface{}) {
	evt := StepEvent{
		RunID: r.runID,
		TS:    float64(time.Now().UnixNano()) / 1e9,
		Event: event,
	}
	if step != nil {
		evt.Step = RedactValue(step).(map[string]interface{})
	}
	if extra != nil {
		evt.Extra = RedactValue(extra).(map[string]interface{})
	}

	data, err := json.Marshal(evt)
	if err != nil {
		log.Printf("⚠️ could not marshal step event %q: %v", event, err)
		return
	}

	r.mu.Lock()
	if r.file != nil {
		if _, err := r.file.Write(append(data, '\n')); err != nil {
			log.Printf("⚠️ could not write step event: %v", err)
		}
	}
	r.mu.Unlock()

	if r.sink != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := r.sink.Publish(ctx, evt); err != nil {
			log.Printf("⚠️ event sink publish failed: %v", err)
		}
		cancel()
	}
}

// SaveSnapshot persists the page HTML (redacted unless the recorder was
// opened with saveRaw) and an optional screenshot, keyed by provider and
// timestamp.
func (r *Recorder) SaveSnapshot(provider, html string, screenshot []byte) {
	ts := time.Now().Unix()
	if html != "" {
		if !r.saveRaw {
			html = Redact(html)
		}
		path := filepath.Join(r.dir, fmt.Sprintf("%s_%d.html", provider, ts))
		if err := os.WriteFile(path, []byte(html), 0644); err != nil {
			log.Printf("⚠️ could not save html snapshot: %v", err)
		}
	}
	if len(screenshot) > 0 {
		path := filepath.Join(r.dir, fmt.Sprintf("%s_%d.png", provider, ts))
		if err := os.WriteFile(path, screenshot, 0644); err != nil {
			log.Printf("⚠️ could not save screenshot: %v", err)
		}
	}
}

// Path returns the step log location.
func (r *Recorder) Path() string {
	return filepath.Join(r.dir, fmt.Sprintf("steps_%s.jsonl", r.runID))
}

func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}
