package checkpoint

import (
	"context"
	"database/sql"
	"time"

	"github.com/Jill09166/facebook-group-post-scraper/lib/scrapers/facebook/feed"

	_ "embed"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var Schema string

// Store persists the last advanced cursor and the set of emitted post
// urls per seed, so a cancelled run can restart where it left off.
type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	_, err = db.Exec(Schema)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) SaveCursor(ctx context.Context, cursor feed.Cursor) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cursors (seed, token, page, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (seed) DO UPDATE SET
			token = excluded.token,
			page = excluded.page,
			updated_at = excluded.updated_at
	`, cursor.Seed, cursor.Token, cursor.Page, time.Now().Unix())
	return err
}

// LoadCursor returns the persisted cursor for a seed, or nil when no run
// has checkpointed it yet.
func (s *Store) LoadCursor(ctx context.Context, seed string) (*feed.Cursor, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT token, page FROM cursors WHERE seed = ?
	`, seed)

	cursor := feed.Cursor{Seed: seed}
	err := row.Scan(&cursor.Token, &cursor.Page)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cursor, nil
}

func (s *Store) MarkEmitted(ctx context.Context, seed, url string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO emitted (seed, url) VALUES (?, ?)
		ON CONFLICT (seed, url) DO NOTHING
	`, seed, url)
	return err
}

// EmittedUrls returns the urls already written out for a seed by a
// previous run.
func (s *Store) EmittedUrls(ctx context.Context, seed string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT url FROM emitted WHERE seed = ?
	`, seed)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	urls := map[string]bool{}
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return nil, err
		}
		urls[url] = true
	}
	return urls, rows.Err()
}

// Clear drops all state for a seed, used when starting a fresh run.
func (s *Store) Clear(ctx context.Context, seed string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM cursors WHERE seed = ?`, seed)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `DELETE FROM emitted WHERE seed = ?`, seed)
	return err
}
