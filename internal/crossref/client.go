// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package crossref looks up and searches bibliographic records in the
// Crossref registry.
package crossref

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/pdiddy/citation-manager/internal/httputil"
	"github.com/pdiddy/citation-manager/internal/metrics"
	"github.com/pdiddy/citation-manager/pkg/types"
)

const (
	// DefaultBaseURL is the Crossref REST API root.
	DefaultBaseURL = "https://api.crossref.org"

	lookupTimeout = 4 * time.Second
	searchTimeout = 4500 * time.Millisecond
	verifyTimeout = 3 * time.Second

	defaultRateLimit = 5.0
	defaultCacheTTL  = time.Hour
	missTTL          = 5 * time.Minute

	// minSearchLen is the shortest text worth a bibliographic search.
	minSearchLen = 40
	maxAuthors   = 10
)

// Client is a rate-limited, caching Crossref client. Methods never return
// errors: registry failures are logged and reported as "not found".
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	limiter    *rate.Limiter
	cache      *gocache.Cache
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

// NewClient returns a client configured by cfg.
func NewClient(cfg types.CrossrefConfig, logger *zap.Logger, m *metrics.Metrics) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	limit := cfg.RateLimit
	if limit <= 0 {
		limit = defaultRateLimit
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = "citation-manager/1.0"
	}
	if cfg.Mailto != "" && !strings.Contains(ua, "mailto:") {
		ua += " (mailto:" + cfg.Mailto + ")"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    base,
		userAgent:  ua,
		limiter:    rate.NewLimiter(rate.Limit(limit), 1),
		cache:      gocache.New(ttl, 2*ttl),
		logger:     logger,
		metrics:    m,
	}
}

// work is the subset of a Crossref work record the agent uses.
type work struct {
	Title          []string   `json:"title"`
	Author         []author   `json:"author"`
	PublishedPrint *dateParts `json:"published-print"`
	PublishedOnl   *dateParts `json:"published-online"`
	ContainerTitle []string   `json:"container-title"`
	DOI            string     `json:"DOI"`
	URL            string     `json:"URL"`
}

type author struct {
	Given  string `json:"given"`
	Family string `json:"family"`
}

type dateParts struct {
	DateParts [][]*int `json:"date-parts"`
}

func (d *dateParts) year() (int, bool) {
	if d == nil || len(d.DateParts) == 0 || len(d.DateParts[0]) == 0 || d.DateParts[0][0] == nil {
		return 0, false
	}
	return *d.DateParts[0][0], true
}

type workResponse struct {
	Message work `json:"message"`
}

type searchResponse struct {
	Message struct {
		Items []work `json:"items"`
	} `json:"message"`
}

type cached struct {
	rec types.Citation
	ok  bool
}

// Lookup fetches the record registered for doi. The returned record carries
// doi as given.
func (c *Client) Lookup(ctx context.Context, doi string) (types.Citation, bool) {
	doi = strings.TrimSpace(doi)
	if doi == "" {
		return types.Citation{}, false
	}
	key := "work:" + strings.ToLower(doi)
	if v, found := c.cache.Get(key); found {
		hit := v.(cached)
		return hit.rec.Clone(), hit.ok
	}

	ctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()

	var resp workResponse
	if err := c.get(ctx, c.baseURL+"/works/"+escapeDOI(doi), &resp); err != nil {
		c.fail("doi lookup", doi, err)
		if isNotFound(err) {
			c.cache.Set(key, cached{}, missTTL)
		}
		return types.Citation{}, false
	}

	rec := toCitation(resp.Message)
	rec.DOI = doi
	c.cache.Set(key, cached{rec: rec, ok: true}, gocache.DefaultExpiration)
	return rec.Clone(), true
}

// Search returns the top bibliographic match for free-form reference text.
// Text shorter than 40 characters is not searched.
func (c *Client) Search(ctx context.Context, text string) (types.Citation, bool) {
	text = strings.TrimSpace(text)
	if len(text) < minSearchLen {
		return types.Citation{}, false
	}

	ctx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	q := url.Values{}
	q.Set("query.bibliographic", text)
	q.Set("rows", "1")

	var resp searchResponse
	if err := c.get(ctx, c.baseURL+"/works?"+q.Encode(), &resp); err != nil {
		c.fail("bibliographic search", "", err)
		return types.Citation{}, false
	}
	if len(resp.Message.Items) == 0 {
		return types.Citation{}, false
	}
	return toCitation(resp.Message.Items[0]), true
}

// VerifyDOI reports whether the registry answers 200 for doi.
func (c *Client) VerifyDOI(ctx context.Context, doi string) bool {
	doi = strings.TrimSpace(doi)
	if doi == "" {
		return false
	}
	if v, found := c.cache.Get("work:" + strings.ToLower(doi)); found {
		return v.(cached).ok
	}

	ctx, cancel := context.WithTimeout(ctx, verifyTimeout)
	defer cancel()
	if err := c.get(ctx, c.baseURL+"/works/"+escapeDOI(doi), nil); err != nil {
		if !isNotFound(err) {
			c.fail("doi verify", doi, err)
		}
		return false
	}
	return true
}

func (c *Client) get(ctx context.Context, u string, v any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for rate limiter: %w", err)
	}
	return httputil.GetJSON(ctx, c.httpClient, u, c.userAgent, v)
}

func (c *Client) fail(op, doi string, err error) {
	c.metrics.EnrichmentFailed("crossref")
	if isNotFound(err) {
		c.logger.Debug("crossref record not found", zap.String("op", op), zap.String("doi", doi))
		return
	}
	c.logger.Warn("crossref request failed", zap.String("op", op), zap.String("doi", doi), zap.Error(err))
}

// escapeDOI escapes each path segment of doi, keeping its slashes.
func escapeDOI(doi string) string {
	segs := strings.Split(doi, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.Join(segs, "/")
}

func isNotFound(err error) bool {
	var se *httputil.StatusError
	return errors.As(err, &se) && se.Code == http.StatusNotFound
}

func toCitation(w work) types.Citation {
	var rec types.Citation
	if len(w.Title) > 0 {
		rec.Title = w.Title[0]
	}
	for i, a := range w.Author {
		if i == maxAuthors {
			break
		}
		name := strings.TrimSpace(strings.Join(nonEmpty(a.Given, a.Family), " "))
		if name != "" {
			rec.Authors = append(rec.Authors, name)
		}
	}
	if y, ok := w.PublishedPrint.year(); ok {
		rec.Year = types.YearOf(y)
	} else if y, ok := w.PublishedOnl.year(); ok {
		rec.Year = types.YearOf(y)
	}
	if len(w.ContainerTitle) > 0 {
		rec.Journal = w.ContainerTitle[0]
	}
	rec.DOI = strings.ToLower(w.DOI)
	rec.URL = w.URL
	return rec
}

func nonEmpty(parts ...string) []string {
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
