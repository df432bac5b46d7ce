package config

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Schema for the meetings table.
const Schema = `
CREATE TABLE IF NOT EXISTS meetings (
	id              TEXT PRIMARY KEY,
	url             TEXT NOT NULL,
	target_language TEXT NOT NULL DEFAULT '',
	voice_id        TEXT NOT NULL DEFAULT '',
	selectors       TEXT NOT NULL DEFAULT '[]',
	auto_start      INTEGER NOT NULL DEFAULT 0,
	status          TEXT NOT NULL DEFAULT 'active',
	updated_at      INTEGER NOT NULL
);
`

// Meeting statuses.
const (
	StatusActive   = "active"
	StatusDisabled = "disabled"
)

// DBMeeting is a row from the meetings table.
type DBMeeting struct {
	MeetingConfig
	Status    string
	UpdatedAt time.Time
}

// OpenDB opens the SQLite database at path with WAL and a busy timeout,
// and creates the meetings table.
func OpenDB(path string) (*sql.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("config: mkdir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("config: open db: %w", err)
	}
	if path == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	for _, p := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
		Schema,
	} {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("config: init db: %w", err)
		}
	}
	return db, nil
}

// LoadMeetings reads active meetings.
func LoadMeetings(ctx context.Context, db *sql.DB) ([]MeetingConfig, error) {
	rows, err := ListMeetings(ctx, db)
	if err != nil {
		return nil, err
	}
	var out []MeetingConfig
	for _, r := range rows {
		if r.Status == StatusActive {
			out = append(out, r.MeetingConfig)
		}
	}
	return out, nil
}

// ListMeetings reads every row, ordered by id.
func ListMeetings(ctx context.Context, db *sql.DB) ([]DBMeeting, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, url, target_language, voice_id, selectors, auto_start, status, updated_at
		FROM meetings
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("config: query meetings: %w", err)
	}
	defer rows.Close()

	var out []DBMeeting
	for rows.Next() {
		var m DBMeeting
		var selsJSON string
		var autoStart int
		var updatedMs int64
		if err := rows.Scan(&m.ID, &m.URL, &m.TargetLanguage, &m.VoiceID,
			&selsJSON, &autoStart, &m.Status, &updatedMs); err != nil {
			return nil, fmt.Errorf("config: scan meeting: %w", err)
		}
		if err := json.Unmarshal([]byte(selsJSON), &m.Selectors); err != nil {
			return nil, fmt.Errorf("config: meeting %s selectors: %w", m.ID, err)
		}
		m.AutoStart = autoStart != 0
		m.UpdatedAt = time.UnixMilli(updatedMs)
		out = append(out, m)
	}
	return out, rows.Err()
}

// SaveMeeting inserts or replaces a meeting row as active.
func SaveMeeting(ctx context.Context, db *sql.DB, m MeetingConfig) error {
	if m.ID == "" || m.URL == "" {
		return fmt.Errorf("config: save meeting: id and url are required")
	}
	sels := m.Selectors
	if sels == nil {
		sels = []string{}
	}
	selsJSON, err := json.Marshal(sels)
	if err != nil {
		return fmt.Errorf("config: save meeting: %w", err)
	}
	autoStart := 0
	if m.AutoStart {
		autoStart = 1
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO meetings (id, url, target_language, voice_id, selectors, auto_start, status, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 'active', ?)
		ON CONFLICT(id) DO UPDATE SET
			url = excluded.url,
			target_language = excluded.target_language,
			voice_id = excluded.voice_id,
			selectors = excluded.selectors,
			auto_start = excluded.auto_start,
			status = 'active',
			updated_at = excluded.updated_at
	`, m.ID, m.URL, m.TargetLanguage, m.VoiceID, string(selsJSON), autoStart, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("config: save meeting %s: %w", m.ID, err)
	}
	return nil
}

// SetMeetingStatus sets status on one meeting. It reports whether the row existed.
func SetMeetingStatus(ctx context.Context, db *sql.DB, id, status string) (bool, error) {
	res, err := db.ExecContext(ctx,
		`UPDATE meetings SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UnixMilli(), id)
	if err != nil {
		return false, fmt.Errorf("config: set status %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
