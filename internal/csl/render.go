// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package csl

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/citation-manager/pkg/types"
)

// Engine labels reported in Rendered.Engine.
const (
	EngineCSL      = "csl"
	EngineFallback = "fallback"
)

// ErrNoRenderer means neither a CSL engine nor the requested style file is
// available.
var ErrNoRenderer = errors.New("no CSL renderer available")

// Rendered is a formatted citation or bibliography and how it was produced.
type Rendered struct {
	Text           string `json:"text"`
	Engine         string `json:"engine"`
	StylePath      string `json:"style_path"`
	StyleFound     bool   `json:"style_found"`
	FallbackReason string `json:"fallback_reason,omitempty"`
}

// Status describes the renderer for diagnostics.
type Status struct {
	Engine          string                `json:"engine"`
	EngineAvailable bool                  `json:"engine_available"`
	EngineError     string                `json:"engine_error,omitempty"`
	StyleDirs       []string              `json:"style_dirs"`
	Styles          map[string]Resolution `json:"styles"`
}

// Renderer formats citations in a named style.
type Renderer struct {
	engine Engine
	styles *StyleResolver
	logger *zap.Logger
}

// NewRenderer returns a renderer using engine and styles.
func NewRenderer(engine Engine, styles *StyleResolver, logger *zap.Logger) *Renderer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Renderer{engine: engine, styles: styles, logger: logger}
}

// Resolve returns the style file used for style.
func (r *Renderer) Resolve(style string) Resolution {
	return r.styles.Resolve(style)
}

// Check returns ErrNoRenderer when the engine is unavailable and the style
// file cannot be found. Rendering still succeeds in that case through the
// fallback, so only callers that treat a missing renderer as fatal use it.
func (r *Renderer) Check(style string) error {
	res := r.styles.Resolve(style)
	if r.engine.Available() || res.Found {
		return nil
	}
	return fmt.Errorf("%w: engine %s unavailable and style file not found: %s", ErrNoRenderer, r.engine.Name(), res.Path)
}

// Render formats one citation. It never fails: engine errors, missing
// styles, and empty output all produce the manual format.
func (r *Renderer) Render(ctx context.Context, style string, c types.Citation, sourceType string, includeDOI bool) Rendered {
	res := r.styles.Resolve(style)
	out := Rendered{StylePath: res.Path, StyleFound: res.Found}

	entries, reason := r.run(ctx, res, []Item{ToItem(c, sourceType, includeDOI)})
	if reason != "" {
		out.Engine = EngineFallback
		out.FallbackReason = reason
		out.Text = Manual(c, includeDOI)
		return out
	}
	out.Engine = EngineCSL
	out.Text = entries[0]
	return out
}

// Bibliography formats items as newline-separated entries in the style's
// order, or in input order through the manual format when the engine cannot
// be used.
func (r *Renderer) Bibliography(ctx context.Context, style string, items []types.Citation, includeDOI bool) Rendered {
	res := r.styles.Resolve(style)
	out := Rendered{StylePath: res.Path, StyleFound: res.Found}

	cslItems := make([]Item, len(items))
	seen := make(map[string]int, len(items))
	for i, c := range items {
		item := ToItem(c, "", includeDOI)
		seen[item.ID]++
		if n := seen[item.ID]; n > 1 {
			item.ID += "-" + strconv.Itoa(n)
		}
		cslItems[i] = item
	}

	var entries []string
	var reason string
	if len(items) > 0 {
		entries, reason = r.run(ctx, res, cslItems)
	}
	if len(items) == 0 || reason != "" {
		lines := make([]string, len(items))
		for i, c := range items {
			lines[i] = Manual(c, includeDOI)
		}
		out.Engine = EngineFallback
		out.FallbackReason = reason
		out.Text = strings.Join(lines, "\n")
		return out
	}
	out.Engine = EngineCSL
	out.Text = strings.Join(entries, "\n")
	return out
}

// run invokes the engine, returning a non-empty reason when the caller must
// fall back.
func (r *Renderer) run(ctx context.Context, res Resolution, items []Item) ([]string, string) {
	if !r.engine.Available() {
		return nil, "engine unavailable"
	}
	if !res.Found {
		r.logger.Warn("csl style file not found, using fallback",
			zap.String("style", res.Key),
			zap.String("path", res.Path),
			zap.Strings("dirs", r.styles.Dirs()),
		)
		return nil, "style file not found: " + res.Path
	}
	entries, err := r.engine.Bibliography(ctx, res.Path, items)
	if err != nil {
		r.logger.Warn("csl render failed, using fallback",
			zap.String("style", res.Key),
			zap.String("engine", r.engine.Name()),
			zap.Error(err),
		)
		return nil, err.Error()
	}
	return entries, ""
}

// Status reports engine availability and how each known style resolves.
func (r *Renderer) Status() Status {
	s := Status{
		Engine:          r.engine.Name(),
		EngineAvailable: r.engine.Available(),
		StyleDirs:       r.styles.Dirs(),
		Styles:          make(map[string]Resolution, len(KnownStyles)),
	}
	if u, ok := r.engine.(interface{ Unavailable() error }); ok {
		if err := u.Unavailable(); err != nil {
			s.EngineError = err.Error()
		}
	}
	for _, k := range KnownStyles {
		s.Styles[k] = r.styles.Resolve(k)
	}
	return s
}

// Manual formats c as "Authors. Year. Title. Venue. Volume(Issue). Pages.
// Link", omitting empty parts. The link is the DOI URL when includeDOI is
// set and a DOI exists, otherwise the record's URL.
func Manual(c types.Citation, includeDOI bool) string {
	authors := "Unknown"
	if len(c.Authors) > 0 {
		authors = strings.Join(c.Authors, ", ")
	}
	year := strings.TrimSpace(string(c.Year))
	if year == "" {
		year = "n.d."
	}
	venue := strings.TrimSpace(c.Journal)
	if venue == "" {
		venue = strings.TrimSpace(c.Publisher)
	}
	volIss := strings.TrimSpace(c.Volume)
	if iss := strings.TrimSpace(c.Issue); iss != "" {
		volIss += "(" + iss + ")"
	}
	link := c.URL
	if includeDOI && c.DOI != "" {
		link = "https://doi.org/" + strings.TrimSpace(strings.TrimPrefix(c.DOI, "https://doi.org/"))
	}

	parts := []string{authors, year, strings.TrimSpace(c.Title), venue, volIss, strings.TrimSpace(c.Pages), link}
	kept := parts[:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, ". ")
}
