package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/mr1hm/quake-notify/internal/models"
)

// SQLiteDB implements EventRepository, WatermarkStore and UserDirectory
// on one database handle.
type SQLiteDB struct {
	db *sql.DB
}

func NewSQLiteDB(path string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error while pinging database: %w", err)
	}

	s := &SQLiteDB{
		db: db,
	}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("error while migrating database: %w", err)
	}

	return s, nil
}

func (s *SQLiteDB) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS events (
			id TEXT NOT NULL,
			source TEXT NOT NULL,
			magnitude REAL NOT NULL,
			place TEXT,
			time INTEGER NOT NULL,
			latitude REAL NOT NULL,
			longitude REAL NOT NULL,
			depth_km REAL,
			PRIMARY KEY (source, id)
		);

		CREATE TABLE IF NOT EXISTS watermarks (
			source TEXT PRIMARY KEY,
			last_timestamp INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			push_token TEXT,
			preferences TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_events_time ON events(time);
		CREATE INDEX IF NOT EXISTS idx_events_source ON events(source);
  	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

func (s *SQLiteDB) Add(ctx context.Context, e *models.Event) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events (id, source, magnitude, place, time, latitude, longitude, depth_km)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Source, e.Magnitude, e.Place, e.Time, e.Latitude, e.Longitude, e.DepthKm,
	)
	if err != nil {
		return fmt.Errorf("error inserting event %s: %w", e.Key(), err)
	}
	return nil
}

func (s *SQLiteDB) Exists(ctx context.Context, source, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM events WHERE source = ? AND id = ?`, source, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("error checking event %s_%s: %w", source, id, err)
	}
	return true, nil
}

func (s *SQLiteDB) ListEvents(ctx context.Context, opts Filter) ([]models.Event, error) {
	query := `SELECT id, source, magnitude, place, time, latitude, longitude, depth_km FROM events`
	var conds []string
	var args []any

	if opts.Source != "" {
		conds = append(conds, "source = ?")
		args = append(args, opts.Source)
	}
	if opts.MinMagnitude != nil {
		conds = append(conds, "magnitude >= ?")
		args = append(args, *opts.MinMagnitude)
	}
	if opts.Since != nil {
		conds = append(conds, "time >= ?")
		args = append(args, opts.Since.UnixMilli())
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY time DESC"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error listing events: %w", err)
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		var e models.Event
		var place sql.NullString
		var depth sql.NullFloat64
		if err := rows.Scan(&e.ID, &e.Source, &e.Magnitude, &place, &e.Time, &e.Latitude, &e.Longitude, &depth); err != nil {
			return nil, fmt.Errorf("error scanning event: %w", err)
		}
		e.Place = place.String
		e.DepthKm = depth.Float64
		events = append(events, e)
	}
	return events, rows.Err()
}

// GetWatermark returns 0 for a source that has never completed a run.
func (s *SQLiteDB) GetWatermark(ctx context.Context, source string) (int64, error) {
	var ts int64
	err := s.db.QueryRowContext(ctx,
		`SELECT last_timestamp FROM watermarks WHERE source = ?`, source).Scan(&ts)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("error reading watermark for %s: %w", source, err)
	}
	return ts, nil
}

func (s *SQLiteDB) SetWatermark(ctx context.Context, source string, ts int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO watermarks (source, last_timestamp) VALUES (?, ?)
		ON CONFLICT(source) DO UPDATE SET last_timestamp = excluded.last_timestamp`,
		source, ts,
	)
	if err != nil {
		return fmt.Errorf("error writing watermark for %s: %w", source, err)
	}
	return nil
}

// ListNotifiable returns users that hold a push token and have at least
// one profile with notifications enabled.
func (s *SQLiteDB) ListNotifiable(ctx context.Context) ([]models.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, push_token, preferences FROM users WHERE push_token IS NOT NULL AND push_token != ''`)
	if err != nil {
		return nil, fmt.Errorf("error listing users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		var prefs string
		if err := rows.Scan(&u.ID, &u.PushToken, &prefs); err != nil {
			return nil, fmt.Errorf("error scanning user: %w", err)
		}
		if err := json.Unmarshal([]byte(prefs), &u.Preferences); err != nil {
			return nil, fmt.Errorf("error decoding preferences for user %s: %w", u.ID, err)
		}
		if !u.Preferences.Enabled() {
			continue
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *SQLiteDB) RemoveToken(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET push_token = NULL WHERE id = ?`, userID)
	if err != nil {
		return fmt.Errorf("error removing token for user %s: %w", userID, err)
	}
	return nil
}

func (s *SQLiteDB) UpsertUser(ctx context.Context, u *models.User) error {
	prefs, err := json.Marshal(u.Preferences)
	if err != nil {
		return fmt.Errorf("error encoding preferences for user %s: %w", u.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (id, push_token, preferences) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET push_token = excluded.push_token, preferences = excluded.preferences`,
		u.ID, u.PushToken, string(prefs),
	)
	if err != nil {
		return fmt.Errorf("error upserting user %s: %w", u.ID, err)
	}
	return nil
}
