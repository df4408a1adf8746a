package hub

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"aquos/internal/aquos"

	_ "modernc.org/sqlite"
)

// ActionRecord is one processed action as kept in the action log
type ActionRecord struct {
	ID        int64     `json:"id"`
	DeviceID  string    `json:"device_id"`
	Nonce     string    `json:"nonce,omitempty"`
	Type      string    `json:"type"`
	Action    string    `json:"action"`
	Success   bool      `json:"success"`
	Code      string    `json:"code,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists the last known state of each television and a log of the
// actions the hub processed.
type Store struct {
	db *sql.DB
}

// NewStore opens the SQLite database at path, creating the schema if needed
func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps in-memory databases shared and serializes writes.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS device_state (
			device_id TEXT PRIMARY KEY,
			power TEXT NOT NULL,
			mute TEXT NOT NULL,
			active_identifier INTEGER NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS action_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			device_id TEXT NOT NULL,
			nonce TEXT,
			type TEXT NOT NULL,
			action TEXT,
			success INTEGER NOT NULL,
			code TEXT,
			error TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_action_log_device_id ON action_log(device_id)`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}

	return nil
}

// SaveState records the state of a device, replacing the previous one
func (s *Store) SaveState(ctx context.Context, deviceID string, state aquos.State) error {
	query := `INSERT INTO device_state (device_id, power, mute, active_identifier, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(device_id) DO UPDATE SET
			power = excluded.power,
			mute = excluded.mute,
			active_identifier = excluded.active_identifier,
			updated_at = excluded.updated_at`
	if _, err := s.db.ExecContext(ctx, query, deviceID, string(state.Power), string(state.Mute), state.ActiveIdentifier); err != nil {
		return fmt.Errorf("failed to save state of %s: %w", deviceID, err)
	}
	return nil
}

// LoadState returns the stored state of a device. The boolean is false when
// nothing was stored yet.
func (s *Store) LoadState(ctx context.Context, deviceID string) (aquos.State, bool, error) {
	var (
		state      aquos.State
		power      string
		mute       string
		identifier int
	)
	query := `SELECT power, mute, active_identifier FROM device_state WHERE device_id = ?`
	err := s.db.QueryRowContext(ctx, query, deviceID).Scan(&power, &mute, &identifier)
	if errors.Is(err, sql.ErrNoRows) {
		return state, false, nil
	}
	if err != nil {
		return state, false, fmt.Errorf("failed to load state of %s: %w", deviceID, err)
	}

	state.Power = aquos.Power(power)
	state.Mute = aquos.MuteState(mute)
	state.ActiveIdentifier = identifier
	return state, true, nil
}

// LogAction appends a processed action to the log
func (s *Store) LogAction(ctx context.Context, record ActionRecord) error {
	query := `INSERT INTO action_log (device_id, nonce, type, action, success, code, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		record.DeviceID, record.Nonce, record.Type, record.Action, record.Success, record.Code, record.Error)
	if err != nil {
		return fmt.Errorf("failed to log action: %w", err)
	}
	return nil
}

// RecentActions returns the latest actions of a device, newest first
func (s *Store) RecentActions(ctx context.Context, deviceID string, limit int) ([]ActionRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, device_id, COALESCE(nonce, ''), type, COALESCE(action, ''), success,
			COALESCE(code, ''), COALESCE(error, ''), created_at
		FROM action_log WHERE device_id = ? ORDER BY id DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, deviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query actions: %w", err)
	}
	defer rows.Close()

	var records []ActionRecord
	for rows.Next() {
		var record ActionRecord
		if err := rows.Scan(&record.ID, &record.DeviceID, &record.Nonce, &record.Type, &record.Action,
			&record.Success, &record.Code, &record.Error, &record.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan action: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}
