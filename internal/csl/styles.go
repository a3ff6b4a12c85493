// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package csl

import (
	"os"
	"path/filepath"
	"strings"
)

// DefaultStyle is used when the caller names no style.
const DefaultStyle = "apa"

// KnownStyles are the style keys with alias tables.
var KnownStyles = []string{"apa", "mla", "chicago", "harvard", "ieee"}

var styleFiles = map[string][]string{
	"apa":     {"apa.csl"},
	"mla":     {"mla.csl", "modern-language-association.csl", "modern-language-association (1).csl"},
	"chicago": {"chicago-author-date.csl", "chicago-note-bibliography.csl", "chicago.csl"},
	"harvard": {"harvard.csl", "harvard-cite-them-right.csl"},
	"ieee":    {"ieee.csl"},
}

var styleTokens = map[string][]string{
	"mla":     {"mla", "modern-language-association"},
	"chicago": {"chicago", "author-date", "note-bibliography"},
	"harvard": {"harvard", "cite-them-right"},
}

// Resolution is the outcome of looking up a style file.
type Resolution struct {
	Key   string `json:"key"`
	Path  string `json:"path"`
	Found bool   `json:"found"`
}

// StyleResolver finds .csl files for style keys. The configured directory is
// searched before the built-in one.
type StyleResolver struct {
	dirs    []string
	builtin string
}

// NewStyleResolver returns a resolver over styleDir (may be empty) and the
// built-in directory.
func NewStyleResolver(styleDir, builtinDir string) *StyleResolver {
	r := &StyleResolver{builtin: builtinDir}
	if styleDir != "" {
		r.dirs = append(r.dirs, styleDir)
	}
	if builtinDir != "" && builtinDir != styleDir {
		r.dirs = append(r.dirs, builtinDir)
	}
	return r
}

// Dirs returns the searched directories in order.
func (r *StyleResolver) Dirs() []string {
	return append([]string(nil), r.dirs...)
}

// Key lower-cases and trims style, defaulting to apa.
func Key(style string) string {
	k := strings.ToLower(strings.TrimSpace(style))
	if k == "" {
		return DefaultStyle
	}
	return k
}

// Resolve returns the style file for style. When nothing matches, Path is the
// first alias under the built-in directory and Found is false.
func (r *StyleResolver) Resolve(style string) Resolution {
	key := Key(style)
	candidates, ok := styleFiles[key]
	if !ok {
		candidates = []string{key + ".csl"}
	}
	tokens, ok := styleTokens[key]
	if !ok {
		tokens = []string{key}
	}

	for _, dir := range r.dirs {
		if p := resolveInDir(dir, candidates, tokens); p != "" {
			return Resolution{Key: key, Path: p, Found: true}
		}
	}
	return Resolution{Key: key, Path: filepath.Join(r.builtin, candidates[0])}
}

func resolveInDir(dir string, candidates, tokens []string) string {
	for _, name := range candidates {
		p := filepath.Join(dir, name)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	for _, e := range entries {
		name := strings.ToLower(e.Name())
		if e.IsDir() || !strings.HasSuffix(name, ".csl") {
			continue
		}
		for _, t := range tokens {
			if strings.Contains(name, t) {
				return filepath.Join(dir, e.Name())
			}
		}
	}
	return ""
}
