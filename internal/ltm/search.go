// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ltm

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Query holds retrieval filters. Zero values mean no filter.
type Query struct {
	UserID string
	// Text re-ranks results by occurrence count; it does not filter.
	Text  string
	Style string
	Since time.Time
	Until time.Time
	// Limit caps rows before ranking. Zero uses the store default.
	Limit int
}

// Row is a stored citation.
type Row struct {
	ID        int64          `json:"id" yaml:"id"`
	DOI       string         `json:"doi" yaml:"doi"`
	Title     string         `json:"title" yaml:"title"`
	Authors   []string       `json:"authors" yaml:"authors"`
	Style     string         `json:"style" yaml:"style"`
	Formatted string         `json:"formatted" yaml:"formatted"`
	Metadata  map[string]any `json:"metadata" yaml:"metadata"`
	CreatedAt string         `json:"created_at" yaml:"created_at"`
	UserID    string         `json:"user_id,omitempty" yaml:"user_id,omitempty"`
	RawText   string         `json:"raw_text,omitempty" yaml:"raw_text,omitempty"`

	metadataText string
}

// Search returns rows matching q, newest first. With a text query the rows
// are re-ranked by how often the text occurs in title, formatted text, and
// metadata, plus one for rows owned by q.UserID; ties keep recency order.
func (s *Store) Search(ctx context.Context, q Query) ([]Row, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = s.defaultLimit
	}

	var (
		qb   strings.Builder
		args []any
	)
	qb.WriteString(`SELECT id, doi, title, authors, style, formatted, metadata, created_at, user_id
		FROM citations WHERE 1=1`)

	if q.UserID != "" {
		qb.WriteString(` AND user_id = ?`)
		args = append(args, q.UserID)
	}
	if q.Style != "" {
		qb.WriteString(` AND LOWER(style) = LOWER(?)`)
		args = append(args, q.Style)
	}
	if !q.Since.IsZero() {
		qb.WriteString(` AND created_at >= ?`)
		args = append(args, FormatTime(q.Since))
	}
	if !q.Until.IsZero() {
		qb.WriteString(` AND created_at <= ?`)
		args = append(args, FormatTime(q.Until))
	}
	qb.WriteString(` ORDER BY created_at DESC, id DESC LIMIT ?`)
	args = append(args, limit)

	rows, err := s.query(ctx, qb.String(), args...)
	if err != nil {
		return nil, err
	}

	if text := strings.ToLower(strings.TrimSpace(q.Text)); text != "" {
		scores := make(map[int64]int, len(rows))
		for _, r := range rows {
			n := 0
			for _, field := range []string{r.Title, r.Formatted, r.metadataText} {
				n += strings.Count(strings.ToLower(field), text)
			}
			if q.UserID != "" && r.UserID == q.UserID {
				n++
			}
			scores[r.ID] = n
		}
		sort.SliceStable(rows, func(i, j int) bool {
			return scores[rows[i].ID] > scores[rows[j].ID]
		})
	}
	return rows, nil
}

// Recent returns the newest limit rows.
func (s *Store) Recent(ctx context.Context, limit int) ([]Row, error) {
	return s.Search(ctx, Query{Limit: limit})
}

// All returns every row, oldest first.
func (s *Store) All(ctx context.Context) ([]Row, error) {
	return s.query(ctx, `SELECT id, doi, title, authors, style, formatted, metadata, created_at, user_id
		FROM citations ORDER BY created_at, id`)
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]Row, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying citations: %w", err)
	}
	defer rows.Close()

	results := []Row{}
	for rows.Next() {
		var (
			r                                     Row
			doi, title, authors, style, formatted sql.NullString
			metadata, userID                      sql.NullString
			createdAt                             any
		)
		if err := rows.Scan(&r.ID, &doi, &title, &authors, &style, &formatted, &metadata, &createdAt, &userID); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		r.DOI, r.Title, r.Style, r.Formatted = doi.String, title.String, style.String, formatted.String
		r.CreatedAt, r.UserID = createdAtText(createdAt), userID.String
		r.metadataText = metadata.String

		if err := json.Unmarshal([]byte(authors.String), &r.Authors); err != nil || r.Authors == nil {
			r.Authors = []string{}
		}
		if err := json.Unmarshal([]byte(metadata.String), &r.Metadata); err != nil || r.Metadata == nil {
			r.Metadata = map[string]any{}
		}
		r.RawText = liftRawText(r.Metadata)

		results = append(results, r)
	}
	return results, rows.Err()
}

// createdAtText renders a created_at value in the stored layout. The driver
// returns DATETIME columns as time.Time when the text parses, and as text
// otherwise.
func createdAtText(v any) string {
	switch t := v.(type) {
	case time.Time:
		return FormatTime(t)
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return ""
	}
}

// liftRawText returns the reference text recorded in metadata, if any.
func liftRawText(md map[string]any) string {
	for _, key := range []string{"raw_text", "source_text"} {
		if s, ok := md[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
