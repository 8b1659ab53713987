package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"webot/internal/logging"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// SaveSession upserts the opaque session blob for a chat.
func (s *Store) SaveSession(chatID string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.Exec(
		`INSERT INTO sessions(chat_id, session_data, updated_at) VALUES(?, ?, ?)
		 ON CONFLICT(chat_id) DO UPDATE SET session_data=excluded.session_data, updated_at=excluded.updated_at`,
		chatID, string(data), now,
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	logging.StoreDebug("Session saved for chat %s (%d bytes)", chatID, len(data))
	return nil
}

// GetSession returns the stored session blob, or ErrNotFound.
func (s *Store) GetSession(chatID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var data string
	err := s.db.QueryRow(`SELECT session_data FROM sessions WHERE chat_id=?`, chatID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return []byte(data), nil
}

// DeleteSession removes the stored session. Deleting a session that does
// not exist is not an error.
func (s *Store) DeleteSession(chatID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM sessions WHERE chat_id=?`, chatID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// HasSession reports whether a session blob exists for the chat.
func (s *Store) HasSession(chatID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM sessions WHERE chat_id=?`, chatID).Scan(&n); err != nil {
		return false, fmt.Errorf("has session: %w", err)
	}
	return n > 0, nil
}

// Credentials holds a saved portal login.
type Credentials struct {
	ServiceNumber string
	Password      string
}

// SaveCredentials upserts the portal login for a chat.
func (s *Store) SaveCredentials(chatID, serviceNumber, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.Exec(
		`INSERT INTO credentials(chat_id, service_number, password, updated_at) VALUES(?, ?, ?, ?)
		 ON CONFLICT(chat_id) DO UPDATE SET service_number=excluded.service_number, password=excluded.password, updated_at=excluded.updated_at`,
		chatID, serviceNumber, password, now,
	)
	if err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}
	return nil
}

// GetCredentials returns the saved login, or ErrNotFound.
func (s *Store) GetCredentials(chatID string) (Credentials, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var c Credentials
	err := s.db.QueryRow(
		`SELECT service_number, password FROM credentials WHERE chat_id=?`, chatID,
	).Scan(&c.ServiceNumber, &c.Password)
	if errors.Is(err, sql.ErrNoRows) {
		return Credentials{}, ErrNotFound
	}
	if err != nil {
		return Credentials{}, fmt.Errorf("get credentials: %w", err)
	}
	return c, nil
}

// DeleteCredentials removes the saved login. Idempotent.
func (s *Store) DeleteCredentials(chatID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM credentials WHERE chat_id=?`, chatID); err != nil {
		return fmt.Errorf("delete credentials: %w", err)
	}
	return nil
}
