// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ltm

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/citation-manager/pkg/types"
)

// testStore opens a store in a temp dir whose clock advances one second per
// save, starting at base.
func testStore(t *testing.T, base time.Time) *Store {
	t.Helper()
	s, err := Open(types.StoreConfig{Path: filepath.Join(t.TempDir(), "db", "ltm.db")})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	tick := base
	s.now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}
	return s
}

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func save(t *testing.T, s *Store, c types.Citation, style, formatted, user string) int64 {
	t.Helper()
	id, err := s.Save(context.Background(), c, style, formatted, user)
	require.NoError(t, err)
	return id
}

func TestSaveAndRecent(t *testing.T) {
	s := testStore(t, t0)
	ctx := context.Background()

	id1 := save(t, s, types.Citation{Title: "First", Authors: []string{"A B"}, DOI: "10.1/a"}, "APA", "A. First.", "u1")
	id2 := save(t, s, types.Citation{Title: "Second", RawText: "raw second"}, "MLA", "Second.", "")
	assert.Greater(t, id2, id1)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rows, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Second", rows[0].Title)
	assert.Equal(t, "raw second", rows[0].RawText)
	assert.Equal(t, []string{}, rows[0].Authors)
	assert.Empty(t, rows[0].UserID)

	first := rows[1]
	assert.Equal(t, id1, first.ID)
	assert.Equal(t, "10.1/a", first.DOI)
	assert.Equal(t, []string{"A B"}, first.Authors)
	assert.Equal(t, "u1", first.UserID)
	assert.Equal(t, "First", first.Metadata["title"])
	assert.Equal(t, "2024-05-01 12:00:01.000000", first.CreatedAt)
}

func TestCreatedAtKeepsStoredLayout(t *testing.T) {
	s := testStore(t, t0)
	ctx := context.Background()
	_, err := s.db.ExecContext(ctx, `INSERT INTO citations (title, created_at) VALUES (?, ?), (?, ?)`,
		"Micro", "2024-05-01 12:00:00.123456",
		"Legacy", "2024-04-30 08:15:00")
	require.NoError(t, err)

	rows, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "2024-05-01 12:00:00.123456", rows[0].CreatedAt)
	assert.Equal(t, "2024-04-30 08:15:00.000000", rows[1].CreatedAt)

	var buf bytes.Buffer
	require.NoError(t, s.ExportJSON(ctx, &buf))
	assert.Contains(t, buf.String(), `"created_at": "2024-05-01 12:00:00.123456"`)
}

func TestExistsDuplicate(t *testing.T) {
	s := testStore(t, t0)
	ctx := context.Background()
	save(t, s, types.Citation{Title: "  Deep Learning ", DOI: "10.1/ABC"}, "apa", "x", "")

	tests := []struct {
		name       string
		doi, title string
		want       bool
	}{
		{"doi case-insensitive", " 10.1/abc ", "", true},
		{"title trimmed", "", "deep learning", true},
		{"either matches", "10.9/zzz", "Deep Learning", true},
		{"no match", "10.9/zzz", "Other", false},
		{"nothing given", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ExistsDuplicate(ctx, tt.doi, tt.title)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSearch_Filters(t *testing.T) {
	s := testStore(t, t0)
	ctx := context.Background()
	save(t, s, types.Citation{Title: "a1"}, "APA", "f", "alice")  // t0+1s
	save(t, s, types.Citation{Title: "b1"}, "mla", "f", "bob")    // t0+2s
	save(t, s, types.Citation{Title: "a2"}, "apa", "f", "alice")  // t0+3s
	save(t, s, types.Citation{Title: "a3"}, "IEEE", "f", "alice") // t0+4s

	tests := []struct {
		name string
		q    Query
		want []string
	}{
		{"all newest first", Query{}, []string{"a3", "a2", "b1", "a1"}},
		{"user", Query{UserID: "alice"}, []string{"a3", "a2", "a1"}},
		{"style case-insensitive", Query{Style: "APA"}, []string{"a2", "a1"}},
		{"since", Query{Since: t0.Add(2 * time.Second)}, []string{"a3", "a2", "b1"}},
		{"until", Query{Until: t0.Add(2 * time.Second)}, []string{"b1", "a1"}},
		{"limit", Query{Limit: 2}, []string{"a3", "a2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := s.Search(ctx, tt.q)
			require.NoError(t, err)
			titles := make([]string, len(rows))
			for i, r := range rows {
				titles[i] = r.Title
			}
			assert.Equal(t, tt.want, titles)
		})
	}
}

func TestSearch_TextRanking(t *testing.T) {
	s := testStore(t, t0)
	ctx := context.Background()
	save(t, s, types.Citation{Title: "Graph neural graph networks"}, "apa", "graph", "u1")
	save(t, s, types.Citation{Title: "Unrelated"}, "apa", "nothing", "u1")
	save(t, s, types.Citation{Title: "Graph theory"}, "apa", "x", "u2")

	rows, err := s.Search(ctx, Query{Text: "GRAPH"})
	require.NoError(t, err)
	require.Len(t, rows, 3, "text ranks but does not filter")
	assert.Equal(t, "Graph neural graph networks", rows[0].Title)
	assert.Equal(t, "Graph theory", rows[1].Title)
	assert.Equal(t, "Unrelated", rows[2].Title)
}

func TestSearch_EmptyStore(t *testing.T) {
	s := testStore(t, t0)
	rows, err := s.Search(context.Background(), Query{Text: "x"})
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.NotNil(t, rows)
}

func TestOpen_ReopenKeepsRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ltm.db")
	s, err := Open(types.StoreConfig{Path: path})
	require.NoError(t, err)
	_, err = s.Save(context.Background(), types.Citation{Title: "kept"}, "apa", "kept", "")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(types.StoreConfig{Path: path})
	require.NoError(t, err)
	defer s.Close()
	n, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, path, s.Path())
}

func TestExport(t *testing.T) {
	s := testStore(t, t0)
	ctx := context.Background()
	save(t, s, types.Citation{Title: "One", Year: "2001"}, "apa", "One.", "")
	save(t, s, types.Citation{Title: "Two"}, "apa", "Two.", "")

	var buf bytes.Buffer
	require.NoError(t, s.ExportJSON(ctx, &buf))
	var rows []Row
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "One", rows[0].Title, "export is oldest first")
	assert.Equal(t, float64(2001), rows[0].Metadata["year"])

	buf.Reset()
	require.NoError(t, s.ExportYAML(ctx, &buf))
	var decoded []map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "Two", decoded[1]["title"])
}
