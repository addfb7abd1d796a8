package eventlog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync"
)

// DebugTrailConfig controls the optional human-readable debug trail: a
// best-effort, asynchronous NDJSON mirror of traffic for local inspection.
// It is not the canonical log (eventlog.Store/JSONLWriter are) — it exists
// purely so a developer can `tail -f` one session's conversation.
type DebugTrailConfig struct {
	Enabled   bool
	Dir       string
	QueueSize int
}

// DebugTrailEntry is one line of the debug trail.
type DebugTrailEntry struct {
	MetaSessionID string `json:"metaSessionId"`
	Channel       string `json:"channel"`
	Direction     string `json:"direction"`
	EventType     string `json:"eventType"`
	ContentRaw    string `json:"contentRaw"`
	Content       string `json:"content"`
}

// DebugTrail asynchronously writes DebugTrailEntry values to per-session
// NDJSON files under Dir/<metaSessionId>.ndjson. Reconstructed from the
// surviving contract of the teacher's ConversationLogger (only its test
// file was retrieved, not its implementation): a queued, per-session
// writer with ANSI-stripping for readability.
type DebugTrail struct {
	cfg    DebugTrailConfig
	logger *slog.Logger
	queue  chan DebugTrailEntry

	mu     sync.Mutex
	files  map[string]*os.File
	done   chan struct{}
	closed bool
}

// NewDebugTrail creates a DebugTrail. If cfg.Enabled is false, Log is a
// no-op and no goroutine or files are created.
func NewDebugTrail(cfg DebugTrailConfig, logger *slog.Logger) (*DebugTrail, error) {
	if !cfg.Enabled {
		return &DebugTrail{cfg: cfg, logger: logger}, nil
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("eventlog: create debug trail dir: %w", err)
	}

	dt := &DebugTrail{
		cfg:    cfg,
		logger: logger,
		queue:  make(chan DebugTrailEntry, cfg.QueueSize),
		files:  make(map[string]*os.File),
		done:   make(chan struct{}),
	}
	go dt.run()
	return dt, nil
}

// Log enqueues entry for asynchronous writing. It never blocks the caller
// beyond the channel send; a full queue drops the entry and logs a warning.
func (dt *DebugTrail) Log(entry DebugTrailEntry) {
	if !dt.cfg.Enabled {
		return
	}
	entry.Content = cleanForReadability(entry.ContentRaw)
	select {
	case dt.queue <- entry:
	default:
		dt.logger.Warn("debug trail queue full, dropping entry", "meta_session_id", entry.MetaSessionID)
	}
}

func (dt *DebugTrail) run() {
	defer close(dt.done)
	for entry := range dt.queue {
		if err := dt.write(entry); err != nil {
			dt.logger.Warn("debug trail write failed", "error", err, "meta_session_id", entry.MetaSessionID)
		}
	}
}

func (dt *DebugTrail) write(entry DebugTrailEntry) error {
	f, err := dt.fileFor(entry.MetaSessionID)
	if err != nil {
		return err
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = f.Write(data)
	return err
}

func (dt *DebugTrail) fileFor(metaSessionID string) (*os.File, error) {
	dt.mu.Lock()
	defer dt.mu.Unlock()

	if f, ok := dt.files[metaSessionID]; ok {
		return f, nil
	}
	path := filepath.Join(dt.cfg.Dir, metaSessionID+".ndjson")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open debug trail file %s: %w", path, err)
	}
	dt.files[metaSessionID] = f
	return f, nil
}

// Close stops accepting new entries, drains the queue, and closes every
// open file handle.
func (dt *DebugTrail) Close() error {
	if !dt.cfg.Enabled || dt.closed {
		return nil
	}
	dt.closed = true
	close(dt.queue)
	<-dt.done

	dt.mu.Lock()
	defer dt.mu.Unlock()
	var firstErr error
	for id, f := range dt.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close debug trail file for %s: %w", id, err)
		}
	}
	return firstErr
}

var ansiEscapePattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// cleanForReadability strips ANSI escape sequences so the debug trail is
// readable with a plain pager.
func cleanForReadability(raw string) string {
	stripped := ansiEscapePattern.ReplaceAll([]byte(raw), nil)
	return string(bytes.TrimSpace(stripped))
}
