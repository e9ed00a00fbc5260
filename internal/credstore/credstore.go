// Package credstore persists the session credentials across process restarts
// in a small local SQLite database.
package credstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const (
	keyAccessToken  = "accessToken"
	keyRefreshToken = "refreshToken"
	keyCurrentUser  = "currentUser"
)

// Credentials is the full persisted snapshot. The three values are written and
// cleared together; a partially present snapshot is corrupt.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	UserJSON     string
}

// Complete reports whether every key is present.
func (c Credentials) Complete() bool {
	return c.AccessToken != "" && c.RefreshToken != "" && c.UserJSON != ""
}

// Empty reports whether no key is present.
func (c Credentials) Empty() bool {
	return c.AccessToken == "" && c.RefreshToken == "" && c.UserJSON == ""
}

type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("credstore dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("credstore open: %w", err)
	}
	// single local file, no concurrent writers expected
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS credentials (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("credstore init: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Save writes all three keys in one transaction so a failure can never leave a
// partial snapshot behind.
func (s *Store) Save(ctx context.Context, creds Credentials) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for key, value := range map[string]string{
		keyAccessToken:  creds.AccessToken,
		keyRefreshToken: creds.RefreshToken,
		keyCurrentUser:  creds.UserJSON,
	} {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO credentials (key, value) VALUES (?, ?)
			 ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
			key, value,
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Load returns whatever is persisted. Missing keys come back empty; the caller
// decides whether a partial snapshot is corrupt.
func (s *Store) Load(ctx context.Context) (Credentials, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM credentials`)
	if err != nil {
		return Credentials{}, err
	}
	defer rows.Close()

	var creds Credentials
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return Credentials{}, err
		}
		switch key {
		case keyAccessToken:
			creds.AccessToken = value
		case keyRefreshToken:
			creds.RefreshToken = value
		case keyCurrentUser:
			creds.UserJSON = value
		}
	}
	return creds, rows.Err()
}

// Clear removes every key. Clearing an already empty store is a no-op.
func (s *Store) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM credentials`)
	return err
}
