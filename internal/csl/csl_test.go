// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package csl

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/citation-manager/internal/container"
	"github.com/pdiddy/citation-manager/pkg/types"
)

func TestParseAuthorName(t *testing.T) {
	tests := []struct {
		in   string
		want Name
	}{
		{"Ada Lovelace", Name{Given: "Ada", Family: "Lovelace"}},
		{"John Ronald Tolkien", Name{Given: "John Ronald", Family: "Tolkien"}},
		{"Plato", Name{Literal: "Plato"}},
		{"  ", Name{Literal: "  "}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseAuthorName(tt.in))
		})
	}
}

func TestToItem(t *testing.T) {
	c := types.Citation{
		Title:   "Notes",
		Authors: []string{"Ada Lovelace"},
		Year:    "1843",
		Journal: "Scientific Memoirs",
		Volume:  "3",
		Issue:   "1",
		Pages:   "666-731",
		DOI:     "10.1000/notes",
		URL:     "https://example.org/notes",
	}

	item := ToItem(c, "", true)
	assert.Equal(t, "10.1000/notes", item.ID)
	assert.Equal(t, "article-journal", item.Type)
	assert.Equal(t, []Name{{Given: "Ada", Family: "Lovelace"}}, item.Author)
	require.NotNil(t, item.Issued)
	assert.Equal(t, [][]int{{1843}}, item.Issued.DateParts)
	assert.Equal(t, "Scientific Memoirs", item.ContainerTitle)
	assert.Equal(t, "666-731", item.Page)
	assert.Equal(t, "10.1000/notes", item.DOI)

	item = ToItem(c, "book", false)
	assert.Equal(t, "book", item.Type)
	assert.Empty(t, item.DOI)
	assert.Equal(t, "https://example.org/notes", item.URL)
}

func TestToItem_Defaults(t *testing.T) {
	item := ToItem(types.Citation{Year: "circa 1900", SourceType: "web"}, "", true)
	assert.Equal(t, "item-1", item.ID)
	assert.Equal(t, "webpage", item.Type)
	assert.Equal(t, []Name{{Literal: "Unknown"}}, item.Author)
	assert.Nil(t, item.Issued)

	assert.Equal(t, "article-journal", ToItem(types.Citation{}, "thesis", true).Type)
	assert.Equal(t, "https://x", ToItem(types.Citation{URL: "https://x"}, "", true).ID)
}

func TestWriteYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteYAML([]Item{ToItem(types.Citation{Title: "T", Year: "2020", DOI: "10.1/a"}, "", true)}, &buf))

	var decoded []map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, "10.1/a", decoded[0]["DOI"])
	assert.Equal(t, "article-journal", decoded[0]["type"])
	assert.Contains(t, buf.String(), "date-parts")
}

func writeStyle(t *testing.T, dir, name string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte("<style/>"), 0o644))
	return p
}

func TestStyleResolver(t *testing.T) {
	custom := t.TempDir()
	builtin := t.TempDir()
	writeStyle(t, builtin, "apa.csl")
	writeStyle(t, builtin, "ieee.csl")
	customAPA := writeStyle(t, custom, "apa.csl")
	mla := writeStyle(t, custom, "modern-language-association (1).csl")
	chicago := writeStyle(t, builtin, "Chicago-Fullnote-Bibliography.csl")
	vancouver := writeStyle(t, builtin, "vancouver.csl")

	r := NewStyleResolver(custom, builtin)

	tests := []struct {
		style     string
		wantPath  string
		wantFound bool
	}{
		{"", customAPA, true},
		{" APA ", customAPA, true},
		{"mla", mla, true},
		{"ieee", filepath.Join(builtin, "ieee.csl"), true},
		{"chicago", chicago, true},
		{"Vancouver", vancouver, true},
		{"harvard", filepath.Join(builtin, "harvard.csl"), false},
		{"nature", filepath.Join(builtin, "nature.csl"), false},
	}
	for _, tt := range tests {
		t.Run(tt.style, func(t *testing.T) {
			res := r.Resolve(tt.style)
			assert.Equal(t, tt.wantPath, res.Path)
			assert.Equal(t, tt.wantFound, res.Found)
		})
	}
	assert.Equal(t, []string{custom, builtin}, r.Dirs())
}

func TestStyleResolver_MissingDirs(t *testing.T) {
	r := NewStyleResolver("", "/does/not/exist")
	res := r.Resolve("mla")
	assert.False(t, res.Found)
	assert.Equal(t, filepath.Join("/does/not/exist", "mla.csl"), res.Path)
}

// fakeTool is a container.Tool that records its input and replies with a
// canned output.
type fakeTool struct {
	out   string
	err   error
	stdin string
	inv   container.Invocation
}

func (f *fakeTool) Name() string { return "pandoc" }

func (f *fakeTool) Run(_ context.Context, inv container.Invocation) error {
	f.inv = inv
	if inv.Stdin != nil {
		data, _ := io.ReadAll(inv.Stdin)
		f.stdin = string(data)
	}
	if f.err != nil {
		return f.err
	}
	_, _ = io.WriteString(inv.Stdout, f.out)
	return nil
}

func TestPandocBibliography(t *testing.T) {
	tool := &fakeTool{out: "Lovelace, A. (1843). Notes.\n\nBabbage, C. (1864).\nPassages.\n\n"}
	p := newPandoc(types.RenderConfig{}, func(bin, image string) (container.Tool, error) {
		assert.Equal(t, "pandoc", bin)
		return tool, nil
	})

	entries, err := p.Bibliography(context.Background(), "/styles/apa.csl", []Item{{ID: "a", Type: "book", Title: "Notes"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"Lovelace, A. (1843). Notes.", "Babbage, C. (1864). Passages."}, entries)

	assert.Equal(t, "/styles", tool.inv.Dir)
	assert.Equal(t, []string{"--citeproc", "--csl", "apa.csl", "-f", "markdown", "-t", "plain", "--wrap=none"}, tool.inv.Args)
	assert.True(t, strings.HasPrefix(tool.stdin, "---\n"))
	assert.Contains(t, tool.stdin, "nocite:")
	assert.Contains(t, tool.stdin, "@*")
	assert.Contains(t, tool.stdin, "references:")
	assert.True(t, p.Available())
}

func TestPandocBibliography_Errors(t *testing.T) {
	empty := newPandoc(types.RenderConfig{}, func(string, string) (container.Tool, error) {
		return &fakeTool{out: "\n\n"}, nil
	})
	_, err := empty.Bibliography(context.Background(), "/s/apa.csl", []Item{{ID: "a"}})
	assert.ErrorIs(t, err, errEmptyOutput)

	failing := newPandoc(types.RenderConfig{}, func(string, string) (container.Tool, error) {
		return &fakeTool{err: errors.New("exit status 83")}, nil
	})
	_, err = failing.Bibliography(context.Background(), "/s/apa.csl", []Item{{ID: "a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rendering with pandoc")

	calls := 0
	missing := newPandoc(types.RenderConfig{PandocBinary: "pandoc3"}, func(string, string) (container.Tool, error) {
		calls++
		return nil, errors.New("pandoc3 not found")
	})
	assert.False(t, missing.Available())
	assert.False(t, missing.Available())
	assert.Equal(t, "pandoc3", missing.Name())
	assert.Equal(t, 1, calls, "discovery runs once")
}

// fakeEngine is an Engine with scripted output.
type fakeEngine struct {
	available bool
	entries   []string
	err       error
	calls     int
	lastItems []Item
}

func (f *fakeEngine) Name() string    { return "fake" }
func (f *fakeEngine) Available() bool { return f.available }

func (f *fakeEngine) Bibliography(_ context.Context, _ string, items []Item) ([]string, error) {
	f.calls++
	f.lastItems = items
	return f.entries, f.err
}

func newTestRenderer(t *testing.T, engine Engine, withStyle bool) *Renderer {
	t.Helper()
	dir := t.TempDir()
	if withStyle {
		writeStyle(t, dir, "apa.csl")
	}
	return NewRenderer(engine, NewStyleResolver("", dir), zap.NewNop())
}

func TestRender_EngineUnavailable(t *testing.T) {
	r := newTestRenderer(t, &fakeEngine{}, true)
	got := r.Render(context.Background(), "APA", types.Citation{Title: "X", Year: "2020", Authors: []string{"A B"}}, "", true)

	assert.Equal(t, EngineFallback, got.Engine)
	assert.NotEmpty(t, got.Text)
	assert.Contains(t, got.Text, "2020")
	assert.Contains(t, got.Text, "X")
	assert.True(t, got.StyleFound)
}

func TestRender_UsesEngine(t *testing.T) {
	engine := &fakeEngine{available: true, entries: []string{"B, A. (2020). X."}}
	r := newTestRenderer(t, engine, true)

	got := r.Render(context.Background(), "apa", types.Citation{Title: "X", Year: "2020"}, "", true)
	assert.Equal(t, EngineCSL, got.Engine)
	assert.Equal(t, "B, A. (2020). X.", got.Text)
	assert.Empty(t, got.FallbackReason)
}

func TestRender_FallsBack(t *testing.T) {
	tests := []struct {
		name      string
		engine    *fakeEngine
		withStyle bool
		reason    string
	}{
		{"engine error", &fakeEngine{available: true, err: errors.New("boom")}, true, "boom"},
		{"style missing", &fakeEngine{available: true, entries: []string{"x"}}, false, "style file not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRenderer(t, tt.engine, tt.withStyle)
			got := r.Render(context.Background(), "apa", types.Citation{Title: "X"}, "", true)
			assert.Equal(t, EngineFallback, got.Engine)
			assert.Contains(t, got.FallbackReason, tt.reason)
			assert.Equal(t, "Unknown. n.d.. X", got.Text)
		})
	}
}

func TestRender_StyleMissingIsLogged(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	engine := &fakeEngine{available: true, entries: []string{"x"}}
	r := NewRenderer(engine, NewStyleResolver("", t.TempDir()), zap.New(core))

	got := r.Render(context.Background(), "apa", types.Citation{Title: "X"}, "", true)
	assert.Equal(t, EngineFallback, got.Engine)
	assert.False(t, got.StyleFound)
	assert.Zero(t, engine.calls)

	entries := logs.FilterMessage("csl style file not found, using fallback").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "apa", entries[0].ContextMap()["style"])
	assert.Equal(t, got.StylePath, entries[0].ContextMap()["path"])
}

func TestCheck(t *testing.T) {
	assert.NoError(t, newTestRenderer(t, &fakeEngine{available: true}, false).Check("apa"))
	assert.NoError(t, newTestRenderer(t, &fakeEngine{}, true).Check("apa"))

	err := newTestRenderer(t, &fakeEngine{}, false).Check("apa")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoRenderer))
}

func TestBibliography(t *testing.T) {
	items := []types.Citation{
		{Title: "One", DOI: "10.1/a"},
		{Title: "Two", DOI: "10.1/a"},
		{Title: "Three"},
	}

	engine := &fakeEngine{available: true, entries: []string{"e1", "e2", "e3"}}
	got := newTestRenderer(t, engine, true).Bibliography(context.Background(), "apa", items, true)
	assert.Equal(t, EngineCSL, got.Engine)
	assert.Equal(t, "e1\ne2\ne3", got.Text)
	require.Len(t, engine.lastItems, 3)
	assert.Equal(t, "10.1/a", engine.lastItems[0].ID)
	assert.Equal(t, "10.1/a-2", engine.lastItems[1].ID)

	got = newTestRenderer(t, &fakeEngine{}, true).Bibliography(context.Background(), "apa", items, false)
	assert.Equal(t, EngineFallback, got.Engine)
	lines := strings.Split(got.Text, "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Unknown. n.d.. One", lines[0])
}

func TestBibliography_Empty(t *testing.T) {
	engine := &fakeEngine{available: true}
	got := newTestRenderer(t, engine, true).Bibliography(context.Background(), "apa", nil, true)
	assert.Empty(t, got.Text)
	assert.Equal(t, 0, engine.calls)
}

func TestManual(t *testing.T) {
	c := types.Citation{
		Title:   " Notes ",
		Authors: []string{"Ada Lovelace", "Charles Babbage"},
		Year:    "1843",
		Journal: "Scientific Memoirs",
		Volume:  "3",
		Issue:   "1",
		Pages:   "666-731",
		DOI:     "10.1000/notes",
		URL:     "https://example.org",
	}
	assert.Equal(t,
		"Ada Lovelace, Charles Babbage. 1843. Notes. Scientific Memoirs. 3(1). 666-731. https://doi.org/10.1000/notes",
		Manual(c, true))
	assert.Equal(t,
		"Ada Lovelace, Charles Babbage. 1843. Notes. Scientific Memoirs. 3(1). 666-731. https://example.org",
		Manual(c, false))

	assert.Equal(t, "Unknown. n.d.. Book. Acme", Manual(types.Citation{Title: "Book", Publisher: "Acme"}, true))
}

func TestStatus(t *testing.T) {
	s := newTestRenderer(t, &fakeEngine{available: true}, true).Status()
	assert.Equal(t, "fake", s.Engine)
	assert.True(t, s.EngineAvailable)
	assert.True(t, s.Styles["apa"].Found)
	assert.False(t, s.Styles["ieee"].Found)
	assert.Len(t, s.Styles, len(KnownStyles))
}
