// Package tokendb stores Aquicore token pairs in a SQLite database, one row
// per profile. It is the "sqlite" token store backend of the CLI.
package tokendb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver, registers as "sqlite".

	"github.com/tonimelisma/aquicore-go/pkg/aquicore"
)

const (
	sqlLoad = `SELECT username, access_token, refresh_token, updated_at
		FROM tokens WHERE profile = ?`

	sqlUpsert = `INSERT INTO tokens (profile, username, access_token, refresh_token, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(profile) DO UPDATE SET
			username = excluded.username,
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			updated_at = excluded.updated_at`

	sqlDelete = `DELETE FROM tokens WHERE profile = ?`
)

// Record is one stored row.
type Record struct {
	Profile   string
	Username  string
	Tokens    aquicore.TokenPair
	UpdatedAt time.Time
}

// Store is a SQLite-backed token store. Safe for concurrent use.
type Store struct {
	db      *sql.DB
	logger  *slog.Logger
	nowFunc func() time.Time
}

// dirPerms is used when creating the database directory.
const dirPerms = 0o700

// Open opens (creating if needed) the database at dbPath and applies
// migrations.
func Open(ctx context.Context, dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), dirPerms); err != nil {
		return nil, fmt.Errorf("tokendb: creating directory for %s: %w", dbPath, err)
	}

	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)&_pragma=busy_timeout(5000)",
		dbPath,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("tokendb: opening database %s: %w", dbPath, err)
	}

	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("token database opened", slog.String("db_path", dbPath))

	return &Store{db: db, logger: logger, nowFunc: time.Now}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Load returns the record for profile. found is false when nothing is stored.
func (s *Store) Load(ctx context.Context, profile string) (rec Record, found bool, err error) {
	var updated int64

	rec.Profile = profile

	row := s.db.QueryRowContext(ctx, sqlLoad, profile)
	if err := row.Scan(&rec.Username, &rec.Tokens.AccessToken, &rec.Tokens.RefreshToken, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, false, nil
		}

		return Record{}, false, fmt.Errorf("tokendb: loading profile %q: %w", profile, err)
	}

	rec.UpdatedAt = time.Unix(0, updated).UTC()

	return rec, true, nil
}

// Save upserts the token pair for profile.
func (s *Store) Save(ctx context.Context, profile, username string, pair aquicore.TokenPair) error {
	if pair.AccessToken == "" && pair.RefreshToken == "" {
		return errors.New("tokendb: refusing to save empty token pair")
	}

	_, err := s.db.ExecContext(ctx, sqlUpsert,
		profile, username, pair.AccessToken, pair.RefreshToken, s.nowFunc().UnixNano())
	if err != nil {
		return fmt.Errorf("tokendb: saving profile %q: %w", profile, err)
	}

	s.logger.Debug("saved tokens", slog.String("profile", profile))

	return nil
}

// Delete removes the row for profile. Deleting a missing profile is not an
// error.
func (s *Store) Delete(ctx context.Context, profile string) error {
	if _, err := s.db.ExecContext(ctx, sqlDelete, profile); err != nil {
		return fmt.Errorf("tokendb: deleting profile %q: %w", profile, err)
	}

	return nil
}
