package eventlog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// MetaSession is one row of the meta_sessions table: the durable facts
// about a gateway session that outlive any single adapter instance.
type MetaSession struct {
	MetaSessionID     string
	Project           string
	Cwd               string
	ActiveProvider    string
	ActiveModel       string
	BrainURL          string
	GatewaySessionID  string
	ProviderSessionID string
	UpdatedAtEpoch    int64
}

// Store is the indexed event store: a modernc.org/sqlite-backed database
// supporting recent-event queries by session, plus the meta_sessions table.
// Modeled on the teacher's SQLiteStore (WAL pragmas, busy_timeout,
// ON CONFLICT DO UPDATE upserts), generalized from a single users/
// agent_sessions schema to an append-mostly events table plus one
// upsert-style meta_sessions table.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the indexed store at dbPath and
// upgrades its schema by additive column migration.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("eventlog: create database directory: %w", err)
	}

	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("eventlog: open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("eventlog: ping database: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("eventlog: initialize schema: %w", err)
	}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("eventlog: migrate schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		meta_session_id TEXT NOT NULL,
		created_at_epoch INTEGER NOT NULL,
		kind TEXT NOT NULL,
		provider TEXT,
		request_id TEXT,
		subtype TEXT,
		payload TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_events_session_time
		ON events(meta_session_id, created_at_epoch DESC);

	CREATE TABLE IF NOT EXISTS meta_sessions (
		meta_session_id TEXT PRIMARY KEY,
		project TEXT,
		cwd TEXT,
		updated_at INTEGER NOT NULL
	);
	`
	_, err := s.db.Exec(query)
	return err
}

// migrate adds columns meta_sessions has grown since the first schema
// version, via PRAGMA table_info introspection, so existing databases
// upgrade in place without a destructive rebuild.
func (s *Store) migrate() error {
	wanted := map[string]string{
		"active_provider":     "TEXT",
		"active_model":        "TEXT",
		"brain_url":           "TEXT",
		"gateway_session_id":  "TEXT",
		"provider_session_id": "TEXT",
	}

	existing, err := s.columnSet("meta_sessions")
	if err != nil {
		return err
	}

	for col, decl := range wanted {
		if existing[col] {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE meta_sessions ADD COLUMN %s %s", col, decl)
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("add column %s: %w", col, err)
		}
	}
	return nil
}

func (s *Store) columnSet(table string) (map[string]bool, error) {
	rows, err := s.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var cid int
		var name, ctype string
		var notNull int
		var dflt sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
			return nil, err
		}
		cols[name] = true
	}
	return cols, rows.Err()
}

// AppendEvent inserts ev, retrying on SQLITE_BUSY with exponential backoff
// (mirrors the teacher's deleteAgentSessionWithRetry pattern).
func (s *Store) AppendEvent(ctx context.Context, ev Event) error {
	return withBusyRetry(func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO events (meta_session_id, created_at_epoch, kind, provider, request_id, subtype, payload)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			ev.MetaSessionID, ev.CreatedAtEpoch, string(ev.Kind), ev.Provider, ev.RequestID, ev.Subtype, string(ev.Payload),
		)
		return err
	})
}

// RecentEvents returns up to limit events for metaSessionID, most recent
// first.
func (s *Store) RecentEvents(ctx context.Context, metaSessionID string, limit int) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT meta_session_id, created_at_epoch, kind, provider, request_id, subtype, payload
		FROM events WHERE meta_session_id = ?
		ORDER BY created_at_epoch DESC LIMIT ?`, metaSessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var ev Event
		var provider, requestID, subtype, payload sql.NullString
		if err := rows.Scan(&ev.MetaSessionID, &ev.CreatedAtEpoch, &ev.Kind, &provider, &requestID, &subtype, &payload); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		ev.Provider = provider.String
		ev.RequestID = requestID.String
		ev.Subtype = subtype.String
		ev.Payload = []byte(payload.String)
		out = append(out, ev)
	}
	return out, rows.Err()
}

// UpsertMetaSession creates or updates the durable facts for one session.
func (s *Store) UpsertMetaSession(ctx context.Context, ms MetaSession) error {
	return withBusyRetry(func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO meta_sessions (
				meta_session_id, project, cwd, active_provider, active_model,
				brain_url, gateway_session_id, provider_session_id, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(meta_session_id) DO UPDATE SET
				project = excluded.project,
				cwd = excluded.cwd,
				active_provider = excluded.active_provider,
				active_model = excluded.active_model,
				brain_url = excluded.brain_url,
				gateway_session_id = excluded.gateway_session_id,
				provider_session_id = excluded.provider_session_id,
				updated_at = excluded.updated_at`,
			ms.MetaSessionID, ms.Project, ms.Cwd, ms.ActiveProvider, ms.ActiveModel,
			ms.BrainURL, ms.GatewaySessionID, ms.ProviderSessionID, ms.UpdatedAtEpoch,
		)
		return err
	})
}

// GetMetaSession retrieves the durable facts for one session, or nil if
// none exist yet.
func (s *Store) GetMetaSession(ctx context.Context, metaSessionID string) (*MetaSession, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT meta_session_id, project, cwd, active_provider, active_model,
		       brain_url, gateway_session_id, provider_session_id, updated_at
		FROM meta_sessions WHERE meta_session_id = ?`, metaSessionID)

	var ms MetaSession
	var project, cwd, provider, model, brainURL, gwID, provID sql.NullString
	err := row.Scan(&ms.MetaSessionID, &project, &cwd, &provider, &model, &brainURL, &gwID, &provID, &ms.UpdatedAtEpoch)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan meta_session row: %w", err)
	}
	ms.Project, ms.Cwd = project.String, cwd.String
	ms.ActiveProvider, ms.ActiveModel = provider.String, model.String
	ms.BrainURL = brainURL.String
	ms.GatewaySessionID, ms.ProviderSessionID = gwID.String, provID.String
	return &ms, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func withBusyRetry(op func() error) error {
	const maxRetries = 3
	baseDelay := 50 * time.Millisecond

	for i := 0; i < maxRetries; i++ {
		err := op()
		if err == nil {
			return nil
		}
		if !strings.Contains(err.Error(), "database is locked") && !strings.Contains(err.Error(), "SQLITE_BUSY") {
			return err
		}
		if i == maxRetries-1 {
			return err
		}
		delay := baseDelay * time.Duration(1<<i)
		slog.Debug("eventlog: write failed with SQLITE_BUSY, retrying", "attempt", i+1, "delay", delay)
		time.Sleep(delay)
	}
	return nil
}
