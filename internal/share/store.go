package share

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const linkSchemaSQL = `
CREATE TABLE IF NOT EXISTS share_links (
	share_id   TEXT PRIMARY KEY,
	created_at INTEGER NOT NULL,
	expires_at INTEGER,
	payload    TEXT NOT NULL
);
`

// SQLiteStore is the write-through persistence behind the service.
type SQLiteStore struct {
	conn *sql.DB
}

// OpenSQLiteStore opens (or creates) the share-link database.
func OpenSQLiteStore(dsn string) (*SQLiteStore, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("share: open store: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("share: ping store: %w", err)
	}
	if _, err := conn.Exec(linkSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("share: apply schema: %w", err)
	}
	return &SQLiteStore{conn: conn}, nil
}

// Put upserts a link.
func (s *SQLiteStore) Put(l Link) error {
	payload, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("share: marshal link: %w", err)
	}
	var expires any
	if l.ExpiresAt != nil {
		expires = *l.ExpiresAt
	}
	_, err = s.conn.Exec(`
		INSERT INTO share_links (share_id, created_at, expires_at, payload)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(share_id) DO UPDATE SET
			expires_at = excluded.expires_at,
			payload    = excluded.payload
	`, l.ShareID, l.CreatedAt, expires, string(payload))
	if err != nil {
		return fmt.Errorf("share: upsert: %w", err)
	}
	return nil
}

// Delete removes a link; deleting an absent link is not an error.
func (s *SQLiteStore) Delete(id string) error {
	if _, err := s.conn.Exec(`DELETE FROM share_links WHERE share_id = ?`, id); err != nil {
		return fmt.Errorf("share: delete: %w", err)
	}
	return nil
}

// LoadAll returns every persisted link.
func (s *SQLiteStore) LoadAll() ([]Link, error) {
	rows, err := s.conn.Query(`SELECT payload FROM share_links`)
	if err != nil {
		return nil, fmt.Errorf("share: load: %w", err)
	}
	defer rows.Close()

	var out []Link
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var l Link
		if err := json.Unmarshal([]byte(payload), &l); err != nil {
			continue
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}
