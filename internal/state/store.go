package state

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"cropadvisor/internal/domain"

	_ "modernc.org/sqlite"
)

// Store persists session language preferences, weather-alert subscriptions,
// and the crop data records the alert scheduler cross-references. The hot
// path for sessions and subscriptions stays in memory; the store exists so a
// gateway restart does not lose standing subscriptions or the crop data set.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

func Open(dbPath string, logger *slog.Logger) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection for SQLite.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &Store{db: db, logger: logger}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	return store, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		channel    TEXT NOT NULL,
		chat_id    TEXT NOT NULL,
		language   TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (channel, chat_id)
	);

	CREATE TABLE IF NOT EXISTS subscriptions (
		channel    TEXT NOT NULL,
		chat_id    TEXT NOT NULL,
		location   TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (channel, chat_id)
	);

	CREATE TABLE IF NOT EXISTS crops (
		location   TEXT PRIMARY KEY,
		crop       TEXT NOT NULL,
		crop_hindi TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// --- sessions ---

func (s *Store) UpsertSession(ctx context.Context, ref domain.ChatRef, lang domain.Language) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (channel, chat_id, language) VALUES (?, ?, ?)
		 ON CONFLICT(channel, chat_id) DO UPDATE SET language=excluded.language, updated_at=CURRENT_TIMESTAMP`,
		string(ref.Channel), ref.ChatID, string(lang),
	)
	return err
}

func (s *Store) LoadSessions(ctx context.Context) (map[domain.ChatRef]domain.Language, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT channel, chat_id, language FROM sessions`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[domain.ChatRef]domain.Language)
	for rows.Next() {
		var channel, chatID, lang string
		if err := rows.Scan(&channel, &chatID, &lang); err != nil {
			return nil, err
		}
		out[domain.ChatRef{Channel: domain.ChannelName(channel), ChatID: chatID}] = domain.Language(lang)
	}
	return out, rows.Err()
}

// --- subscriptions ---

func (s *Store) UpsertSubscription(ctx context.Context, ref domain.ChatRef, location string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO subscriptions (channel, chat_id, location) VALUES (?, ?, ?)
		 ON CONFLICT(channel, chat_id) DO UPDATE SET location=excluded.location, updated_at=CURRENT_TIMESTAMP`,
		string(ref.Channel), ref.ChatID, location,
	)
	return err
}

func (s *Store) DeleteSubscription(ctx context.Context, ref domain.ChatRef) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM subscriptions WHERE channel=? AND chat_id=?`,
		string(ref.Channel), ref.ChatID,
	)
	return err
}

func (s *Store) LoadSubscriptions(ctx context.Context) (map[domain.ChatRef]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT channel, chat_id, location FROM subscriptions`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[domain.ChatRef]string)
	for rows.Next() {
		var channel, chatID, location string
		if err := rows.Scan(&channel, &chatID, &location); err != nil {
			return nil, err
		}
		out[domain.ChatRef{Channel: domain.ChannelName(channel), ChatID: chatID}] = location
	}
	return out, rows.Err()
}

// --- crop data ---

// CropByLocation implements domain.CropStore. A miss returns (nil, nil): no
// crop data for a location is a valid state, not an error.
func (s *Store) CropByLocation(ctx context.Context, location string) (*domain.CropRecord, error) {
	var rec domain.CropRecord
	err := s.db.QueryRowContext(ctx,
		`SELECT location, crop, crop_hindi FROM crops WHERE location = ?`, location,
	).Scan(&rec.Location, &rec.Crop, &rec.CropHindi)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) UpsertCrop(ctx context.Context, rec domain.CropRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO crops (location, crop, crop_hindi) VALUES (?, ?, ?)
		 ON CONFLICT(location) DO UPDATE SET crop=excluded.crop, crop_hindi=excluded.crop_hindi`,
		rec.Location, rec.Crop, rec.CropHindi,
	)
	return err
}

func (s *Store) ListCrops(ctx context.Context) ([]domain.CropRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT location, crop, crop_hindi FROM crops ORDER BY location`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.CropRecord
	for rows.Next() {
		var rec domain.CropRecord
		if err := rows.Scan(&rec.Location, &rec.Crop, &rec.CropHindi); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}
