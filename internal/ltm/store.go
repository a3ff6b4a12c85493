// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ltm is the long-term memory store for formatted citations. Rows
// live in a single SQLite table and are never updated once written.
package ltm

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/citation-manager/pkg/types"
)

const (
	defaultPath  = "data/citation_ltm.db"
	defaultLimit = 50

	// timeLayout matches SQLite's CURRENT_TIMESTAMP text with microseconds,
	// so created_at sorts and compares as text.
	timeLayout = "2006-01-02 15:04:05.000000"
)

// Store manages the citation SQLite database.
type Store struct {
	db           *sql.DB
	path         string
	defaultLimit int
	now          func() time.Time
}

// Open opens or creates the store at cfg.Path and ensures the schema exists.
// The handle uses a single connection; callers must Close it.
func Open(cfg types.StoreConfig) (*Store, error) {
	path := cfg.Path
	if path == "" {
		path = defaultPath
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	limit := cfg.DefaultLimit
	if limit <= 0 {
		limit = defaultLimit
	}

	s := &Store{
		db:           db,
		path:         path,
		defaultLimit: limit,
		now:          time.Now,
	}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS citations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			doi TEXT,
			title TEXT,
			authors TEXT,
			style TEXT,
			formatted TEXT,
			metadata TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			user_id TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_citations_created_at ON citations(created_at)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}

	// Databases created before per-user retrieval lack user_id.
	rows, err := s.db.Query(`PRAGMA table_info(citations)`)
	if err != nil {
		return fmt.Errorf("reading table info: %w", err)
	}
	hasUser := false
	for rows.Next() {
		var (
			cid     int
			name    string
			colType string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dflt, &pk); err != nil {
			rows.Close()
			return fmt.Errorf("scanning table info: %w", err)
		}
		if name == "user_id" {
			hasUser = true
		}
	}
	rows.Close()
	if !hasUser {
		if _, err := s.db.Exec(`ALTER TABLE citations ADD COLUMN user_id TEXT`); err != nil {
			return fmt.Errorf("adding user_id column: %w", err)
		}
	}
	return nil
}

// Save appends a row for c rendered as formatted in style and returns its id.
func (s *Store) Save(ctx context.Context, c types.Citation, style, formatted, userID string) (int64, error) {
	authors := c.Authors
	if authors == nil {
		authors = []string{}
	}
	authorsJSON, err := json.Marshal(authors)
	if err != nil {
		return 0, fmt.Errorf("encoding authors: %w", err)
	}
	metadata, err := json.Marshal(c)
	if err != nil {
		return 0, fmt.Errorf("encoding metadata: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO citations (doi, title, authors, style, formatted, metadata, created_at, user_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		nullable(c.DOI), nullable(c.Title), string(authorsJSON), style, formatted,
		string(metadata), s.now().UTC().Format(timeLayout), nullable(userID),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting citation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading citation id: %w", err)
	}
	return id, nil
}

// ExistsDuplicate reports whether a row has the same DOI or the same title,
// compared case-insensitively after trimming. Empty arguments are ignored.
func (s *Store) ExistsDuplicate(ctx context.Context, doi, title string) (bool, error) {
	checks := []struct {
		column string
		value  string
	}{
		{"doi", doi},
		{"title", title},
	}
	for _, chk := range checks {
		v := strings.ToLower(strings.TrimSpace(chk.value))
		if v == "" {
			continue
		}
		var one int
		err := s.db.QueryRowContext(ctx,
			`SELECT 1 FROM citations WHERE LOWER(TRIM(`+chk.column+`)) = ? LIMIT 1`, v,
		).Scan(&one)
		switch {
		case err == nil:
			return true, nil
		case err != sql.ErrNoRows:
			return false, fmt.Errorf("checking duplicate %s: %w", chk.column, err)
		}
	}
	return false, nil
}

// Count returns the number of stored rows.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM citations`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting citations: %w", err)
	}
	return n, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// FormatTime renders t the way created_at is stored, for range filters.
func FormatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
