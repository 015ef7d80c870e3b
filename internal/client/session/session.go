// Package session persists the client's login state: the bearer token and a
// snapshot of the user profile captured at login time.
package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

const (
	keyToken   = "token"
	keyProfile = "user"
)

const createSessionTable = `
CREATE TABLE IF NOT EXISTS session (
	key TEXT PRIMARY KEY,
	value BLOB NOT NULL
);
`

// Profile is the locally stored user snapshot. It can go stale relative to
// the server record; there is no refresh flow.
type Profile struct {
	Username string `json:"username,omitempty"`
	Email    string `json:"email"`
}

// Manager stores the session in a local sqlite key-value table and keeps an
// in-memory authenticated flag so state checks never hit storage.
type Manager struct {
	db *sql.DB

	mu            sync.RWMutex
	authenticated bool
}

func NewManager(db *sql.DB) *Manager {
	return &Manager{db: db}
}

func (m *Manager) Init(ctx context.Context) error {
	if _, err := m.db.ExecContext(ctx, createSessionTable); err != nil {
		return fmt.Errorf("create session table: %w", err)
	}
	return nil
}

// Load seeds the in-memory authenticated flag from storage. Called once at
// startup; a read failure counts as "not authenticated" rather than an error
// so a corrupt store drops the user at the login screen instead of crashing.
func (m *Manager) Load(ctx context.Context) {
	token := m.Token(ctx)
	m.mu.Lock()
	m.authenticated = token != ""
	m.mu.Unlock()
}

// Token returns the stored bearer token, or "" when absent or unreadable.
func (m *Manager) Token(ctx context.Context) string {
	var value []byte
	err := m.db.QueryRowContext(ctx, `SELECT value FROM session WHERE key = ?`, keyToken).Scan(&value)
	if err != nil {
		return ""
	}
	return string(value)
}

// Profile returns the stored profile snapshot, zero-valued when absent.
func (m *Manager) Profile(ctx context.Context) Profile {
	var value []byte
	err := m.db.QueryRowContext(ctx, `SELECT value FROM session WHERE key = ?`, keyProfile).Scan(&value)
	if err != nil {
		return Profile{}
	}

	var profile Profile
	if err := json.Unmarshal(value, &profile); err != nil {
		return Profile{}
	}
	return profile
}

// SetSession stores the token and profile in a single transaction so a failed
// write never leaves a token without a profile or vice versa.
func (m *Manager) SetSession(ctx context.Context, token string, profile Profile) error {
	if token == "" {
		return errors.New("token is required")
	}

	encoded, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}

	err = m.withTx(ctx, func(tx *sql.Tx) error {
		if err := setValue(ctx, tx, keyToken, []byte(token)); err != nil {
			return err
		}
		return setValue(ctx, tx, keyProfile, encoded)
	})
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.authenticated = true
	m.mu.Unlock()
	return nil
}

// Clear removes the token and profile together. Safe to call when no session
// exists; the result is the same either way.
func (m *Manager) Clear(ctx context.Context) error {
	err := m.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM session WHERE key = ?`, keyToken); err != nil {
			return fmt.Errorf("delete token: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM session WHERE key = ?`, keyProfile); err != nil {
			return fmt.Errorf("delete profile: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.authenticated = false
	m.mu.Unlock()
	return nil
}

// IsAuthenticated reports the in-memory flag; it is only recomputed from
// storage by Load and updated by SetSession/Clear.
func (m *Manager) IsAuthenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.authenticated
}

func (m *Manager) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func setValue(ctx context.Context, tx *sql.Tx, key string, value []byte) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO session (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("set session[%s]: %w", key, err)
	}
	return nil
}
