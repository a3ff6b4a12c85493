// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package agent runs the citation pipeline: it extracts and normalizes
// metadata, layers registry and LLM enrichment, validates, renders, and
// optionally saves the result to long-term memory.
package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/citation-manager/internal/csl"
	"github.com/pdiddy/citation-manager/internal/httputil"
	"github.com/pdiddy/citation-manager/internal/ltm"
	"github.com/pdiddy/citation-manager/internal/metrics"
	"github.com/pdiddy/citation-manager/pkg/types"
)

// Version is reported in response metadata when the caller sets none.
const Version = "1.1.0"

// Defaults applied when a request leaves a parameter empty.
const (
	DefaultStyle      = "APA"
	DefaultConvertTo  = "MLA"
	DefaultSourceType = types.SourceArticle

	defaultPDFBudget = 150 * time.Second
)

// ErrNoStore is returned when an operation needs long-term memory and none
// is configured.
var ErrNoStore = errors.New("long-term memory store not configured")

// Enricher looks up registry metadata.
type Enricher interface {
	Lookup(ctx context.Context, doi string) (types.Citation, bool)
	Search(ctx context.Context, text string) (types.Citation, bool)
	VerifyDOI(ctx context.Context, doi string) bool
}

// LLM parses references and audits records with a language model.
type LLM interface {
	ParseCitation(ctx context.Context, text string) (map[string]any, error)
	ParseReference(ctx context.Context, ref string) (map[string]any, error)
	StyleSuggestions(ctx context.Context, style, sourceType string, c types.Citation) ([]string, error)
}

// Store persists rendered citations.
type Store interface {
	Save(ctx context.Context, c types.Citation, style, formatted, userID string) (int64, error)
	ExistsDuplicate(ctx context.Context, doi, title string) (bool, error)
	Search(ctx context.Context, q ltm.Query) ([]ltm.Row, error)
}

// Options wires a Service. Renderer is required; Enricher, LLM, and Store
// may be nil to disable the features that use them.
type Options struct {
	Renderer *csl.Renderer
	Enricher Enricher
	LLM      LLM
	Store    Store
	Metrics  *metrics.Metrics
	Logger   *zap.Logger

	// HTTPClient is used for URL liveness checks (default http.DefaultClient).
	HTTPClient *http.Client

	// PDFTimeBudget stops processing PDF references once exceeded (default 150s).
	PDFTimeBudget time.Duration
}

// Service is the citation manager agent.
type Service struct {
	renderer   *csl.Renderer
	enricher   Enricher
	llm        LLM
	store      Store
	metrics    *metrics.Metrics
	logger     *zap.Logger
	httpClient *http.Client
	pdfBudget  time.Duration
	now        func() time.Time
}

// New returns a Service built from opts.
func New(opts Options) *Service {
	s := &Service{
		renderer:   opts.Renderer,
		enricher:   opts.Enricher,
		llm:        opts.LLM,
		store:      opts.Store,
		metrics:    opts.Metrics,
		logger:     opts.Logger,
		httpClient: opts.HTTPClient,
		pdfBudget:  opts.PDFTimeBudget,
		now:        time.Now,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.httpClient == nil {
		s.httpClient = http.DefaultClient
	}
	if s.pdfBudget <= 0 {
		s.pdfBudget = defaultPDFBudget
	}
	return s
}

// RendererStatus reports engine availability and style resolution.
func (s *Service) RendererStatus() csl.Status {
	return s.renderer.Status()
}

// LiveChecks reports whether the record's DOI is registered and its URL
// answers. Keys are present only for fields the record has.
type LiveChecks map[string]bool

func (s *Service) liveChecks(ctx context.Context, c types.Citation) LiveChecks {
	checks := LiveChecks{}
	if c.DOI != "" && s.enricher != nil {
		checks["doi_valid"] = s.enricher.VerifyDOI(ctx, c.DOI)
	}
	if c.URL != "" {
		checks["url_valid"] = httputil.Reachable(ctx, s.httpClient, c.URL)
	}
	return checks
}

func (s *Service) render(ctx context.Context, style string, c types.Citation, sourceType string, includeDOI bool) csl.Rendered {
	out := s.renderer.Render(ctx, style, c, sourceType, includeDOI)
	s.metrics.Render(out.Engine)
	return out
}

func (s *Service) bibliography(ctx context.Context, style string, items []types.Citation, includeDOI bool) csl.Rendered {
	out := s.renderer.Bibliography(ctx, style, items, includeDOI)
	s.metrics.Render(out.Engine)
	return out
}

// SaveToLTM renders c and stores it for userID. Records with no title,
// DOI, URL, or raw text are skipped, as are duplicates unless force is set.
// saved reports whether a row was written.
func (s *Service) SaveToLTM(ctx context.Context, c types.Citation, style, userID string, force bool) (saved bool, err error) {
	if s.store == nil {
		return false, ErrNoStore
	}
	if !c.Persistable() {
		s.metrics.LTMSave(metrics.SaveEmpty)
		return false, nil
	}
	if style == "" {
		style = DefaultStyle
	}

	if !force {
		dup, err := s.store.ExistsDuplicate(ctx, c.DOI, c.Title)
		if err != nil {
			s.logger.Warn("duplicate check failed", zap.String("doi", c.DOI), zap.Error(err))
		}
		if dup {
			s.metrics.LTMSave(metrics.SaveDuplicate)
			return false, nil
		}
	}

	formatted := s.render(ctx, style, c, "", true).Text
	if strings.TrimSpace(formatted) == "" {
		formatted = plainText(c)
	}

	id, err := s.store.Save(ctx, c, style, formatted, userID)
	if err != nil {
		s.metrics.LTMSave(metrics.SaveError)
		return false, fmt.Errorf("saving citation: %w", err)
	}
	s.metrics.LTMSave(metrics.SaveSaved)
	s.logger.Debug("citation saved", zap.Int64("id", id), zap.String("user_id", userID))
	return true, nil
}

// plainText is the stored text for a record the renderer produced nothing
// for: the raw reference, or its title, year, venue, and DOI joined by
// " — ".
func plainText(c types.Citation) string {
	if raw := strings.TrimSpace(c.RawText); raw != "" {
		return raw
	}
	title := strings.TrimSpace(c.Title)
	if title == "" {
		title = "Untitled"
	}
	pieces := []string{title}
	if c.Year != "" && c.Year != "n.d." {
		pieces = append(pieces, "("+string(c.Year)+")")
	}
	venue := c.Journal
	if venue == "" {
		venue = c.Publisher
	}
	if venue = strings.TrimSpace(venue); venue != "" {
		pieces = append(pieces, venue)
	}
	if doi := strings.TrimSpace(c.DOI); doi != "" {
		pieces = append(pieces, "DOI: "+doi)
	}
	return strings.Join(pieces, " — ")
}

// sourceTypeOr returns the record's source type, or def when unset.
func sourceTypeOr(c types.Citation, def string) string {
	if c.SourceType != "" {
		return c.SourceType
	}
	return def
}

// sparse reports whether c lacks a title, authors, or year.
func sparse(c types.Citation) bool {
	return c.Title == "" || len(c.Authors) == 0 || c.Year == ""
}
