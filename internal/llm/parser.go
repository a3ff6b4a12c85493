// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package llm asks a language model to parse reference text into metadata
// and to audit a record against a citation style.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/pdiddy/citation-manager/pkg/types"
)

// Task names understood by the wrapper agent.
const (
	TaskParseCitation    = "llm_parse_citation"
	TaskStyleSuggestions = "style_suggestions"
)

const (
	defaultTimeout          = 10 * time.Second
	defaultReferenceTimeout = 4 * time.Second
)

var fenceRe = regexp.MustCompile("(?s)^```(?:json|JSON)?\\s*(.*?)\\s*```$")

// Parser turns model output into citation metadata and suggestions.
type Parser struct {
	backend          backend
	timeout          time.Duration
	referenceTimeout time.Duration
}

// New returns a parser for the configured provider.
func New(cfg types.LLMConfig) (*Parser, error) {
	var (
		b   backend
		err error
	)
	switch cfg.Provider {
	case types.LLMWrapper:
		b = newWrapperBackend(cfg.WrapperHost, cfg.WrapperPort)
	case types.LLMOpenAI:
		b, err = newOpenAIBackend(cfg)
		if err != nil {
			return nil, err
		}
	case types.LLMNone:
		return nil, errors.New("no LLM provider configured")
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
	return newParser(b, cfg), nil
}

func newParser(b backend, cfg types.LLMConfig) *Parser {
	p := &Parser{
		backend:          b,
		timeout:          cfg.Timeout,
		referenceTimeout: cfg.ReferenceTimeout,
	}
	if p.timeout <= 0 {
		p.timeout = defaultTimeout
	}
	if p.referenceTimeout <= 0 {
		p.referenceTimeout = defaultReferenceTimeout
	}
	return p
}

// Name identifies the backend in use.
func (p *Parser) Name() string { return p.backend.Name() }

// ParseCitation extracts metadata from free-form citation text. The result
// uses the record's field names and may be passed to metadata.Normalize.
func (p *Parser) ParseCitation(ctx context.Context, text string) (map[string]any, error) {
	prompt := "You are a citation parser. Extract structured metadata as compact JSON only. " +
		"Fields: source_type (article|book|web), title, authors (array of strings), year, journal, " +
		"publisher, volume, issue, pages, doi, url, isbn, accessed (YYYY-MM-DD or empty). " +
		"Return ONLY JSON with these keys." +
		"\n\nText:\n" + text
	return p.parseObject(ctx, p.timeout, prompt)
}

// ParseReference extracts metadata from one entry of a reference list. It
// uses the shorter per-reference timeout.
func (p *Parser) ParseReference(ctx context.Context, ref string) (map[string]any, error) {
	prompt := "You are a citation parser. Extract structured metadata as compact JSON only. " +
		"Fields: source_type (article|book|web), title, authors (array of strings), year, journal, " +
		"publisher, volume, issue, pages, doi, url. Return ONLY JSON with these keys.\n\n" +
		"Reference: " + ref
	return p.parseObject(ctx, p.referenceTimeout, prompt)
}

func (p *Parser) parseObject(ctx context.Context, timeout time.Duration, prompt string) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := p.backend.Complete(ctx, TaskParseCitation, prompt)
	if err != nil {
		return nil, err
	}
	body := unfence(out)
	if body == "" {
		return map[string]any{}, nil
	}
	dec := json.NewDecoder(strings.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decoding parsed citation: %w", err)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("parsed citation is %T, not an object", v)
	}
	return obj, nil
}

// promptMetadata fixes the key order of the metadata shown to the model.
type promptMetadata struct {
	SourceType string     `json:"source_type"`
	Title      string     `json:"title"`
	Authors    []string   `json:"authors"`
	Year       types.Year `json:"year"`
	Journal    string     `json:"journal"`
	Publisher  string     `json:"publisher"`
	Volume     string     `json:"volume"`
	Issue      string     `json:"issue"`
	Pages      string     `json:"pages"`
	DOI        string     `json:"doi"`
	URL        string     `json:"url"`
}

// StyleSuggestions asks the model for corrections that bring c in line with
// style. The result is trimmed and de-duplicated.
func (p *Parser) StyleSuggestions(ctx context.Context, style, sourceType string, c types.Citation) ([]string, error) {
	authors := c.Authors
	if authors == nil {
		authors = []string{}
	}
	var md bytes.Buffer
	enc := json.NewEncoder(&md)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(promptMetadata{
		SourceType: sourceType,
		Title:      c.Title,
		Authors:    authors,
		Year:       c.Year,
		Journal:    c.Journal,
		Publisher:  c.Publisher,
		Volume:     c.Volume,
		Issue:      c.Issue,
		Pages:      c.Pages,
		DOI:        c.DOI,
		URL:        c.URL,
	}); err != nil {
		return nil, fmt.Errorf("encoding metadata: %w", err)
	}

	prompt := "You are a citation style auditor. Analyze the metadata strictly for the requested style " +
		"and return ONLY a compact JSON array of human-readable suggestions (strings). " +
		"Do not include any commentary or keys. Focus on actionable corrections. " +
		"Cover case rules, required fields, DOI/URL formatting, page ranges, punctuation, and common style-specific requirements.\n\n" +
		"Style: " + style + "\n" +
		"SourceType: " + sourceType + "\n" +
		"Metadata: " + strings.TrimSpace(md.String()) + "\n\n" +
		`Return: ["Suggestion 1", "Suggestion 2", ...]`

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	out, err := p.backend.Complete(ctx, TaskStyleSuggestions, prompt)
	if err != nil {
		return nil, err
	}
	body := unfence(out)
	if body == "" {
		return []string{}, nil
	}
	var items []any
	if err := json.Unmarshal([]byte(body), &items); err != nil {
		return nil, fmt.Errorf("decoding style suggestions: %w", err)
	}

	seen := make(map[string]bool, len(items))
	suggestions := make([]string, 0, len(items))
	for _, it := range items {
		s := strings.TrimSpace(fmt.Sprint(it))
		if it == nil || s == "" || seen[s] {
			continue
		}
		seen[s] = true
		suggestions = append(suggestions, s)
	}
	return suggestions, nil
}

// unfence strips a surrounding markdown code fence.
func unfence(s string) string {
	s = strings.TrimSpace(s)
	if m := fenceRe.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return s
}
