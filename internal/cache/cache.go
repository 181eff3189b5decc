// Package cache persists extracted recipes in a local SQLite database so
// repeated runs do not refetch pages that already yielded a result.
package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/forkbench/recipegrab/internal/clock"
	"github.com/forkbench/recipegrab/internal/recipe"
)

// Mode selects how the cache participates in a run.
type Mode string

const (
	// ModeDefault serves cached recipes and fetches the rest.
	ModeDefault Mode = "default"
	// ModeOnly serves cached recipes and never touches the network.
	ModeOnly Mode = "only"
	// ModeNew refetches everything and overwrites cached entries.
	ModeNew Mode = "new"
)

// ParseMode validates a cache mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeDefault, ModeOnly, ModeNew:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown cache mode %q", s)
	}
}

// Store is a SQLite-backed recipe cache keyed by normalized URL.
type Store struct {
	db    *sql.DB
	clock clock.Clock
}

// Open opens (and if necessary creates) the cache database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}
	s := &Store{db: db, clock: clock.System{}}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize cache schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS recipes (
		url TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		total_time TEXT NOT NULL,
		yields TEXT NOT NULL,
		ingredients TEXT NOT NULL,
		instructions TEXT NOT NULL,
		image TEXT NOT NULL,
		host TEXT NOT NULL,
		nutrients TEXT NOT NULL,
		status INTEGER NOT NULL,
		version TEXT NOT NULL,
		fetched_at TEXT NOT NULL
	);`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create recipes table: %w", err)
	}
	return nil
}

// Get returns the cached recipe for rawURL, or ok=false when absent.
func (s *Store) Get(ctx context.Context, rawURL string) (*recipe.Recipe, bool, error) {
	key, err := NormalizeURL(rawURL)
	if err != nil {
		return nil, false, err
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT url, title, total_time, yields, ingredients, instructions,
		       image, host, nutrients, status, version
		FROM recipes WHERE url = ?`, key)

	var r recipe.Recipe
	var status int
	err = row.Scan(&r.URL, &r.Title, &r.TotalTime, &r.Yields, &r.Ingredients,
		&r.Instructions, &r.Image, &r.Host, &r.Nutrients, &status, &r.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read cached recipe: %w", err)
	}
	r.Status = recipe.Status(status)
	return &r, true, nil
}

// Put stores r, replacing any previous entry for the same URL.
func (s *Store) Put(ctx context.Context, r *recipe.Recipe) error {
	key, err := NormalizeURL(r.URL)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO recipes
		(url, title, total_time, yields, ingredients, instructions,
		 image, host, nutrients, status, version, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		key, r.Title, r.TotalTime, r.Yields, r.Ingredients, r.Instructions,
		r.Image, r.Host, r.Nutrients, int(r.Status), r.Version,
		s.clock.Now().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("store recipe: %w", err)
	}
	return nil
}

// Erase drops every cached recipe.
func (s *Store) Erase(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM recipes`); err != nil {
		return fmt.Errorf("erase cache: %w", err)
	}
	return nil
}

// Len reports the number of cached recipes.
func (s *Store) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM recipes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count cached recipes: %w", err)
	}
	return n, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
