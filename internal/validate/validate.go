// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package validate checks a citation record for missing fields, malformed
// identifiers, and style-specific omissions, and scores its completeness.
package validate

import (
	"math"
	"regexp"
	"strings"
	"unicode"

	"github.com/pdiddy/citation-manager/pkg/types"
)

var (
	doiSyntaxRe  = regexp.MustCompile(`(?i)^10\.\d{4,9}/[-._;()/:A-Z0-9]+$`)
	urlSchemeRe  = regexp.MustCompile(`(?i)^https?://`)
	digitsRe     = regexp.MustCompile(`^\d+$`)
	pageRangeRe  = regexp.MustCompile(`^(?:\d+|[A-Za-z]?\d+\s*[-–—‑]\s*[A-Za-z]?\d+)$`)
	upperStartRe = regexp.MustCompile(`^[A-Z]`)
)

// confidenceFields are the fields counted toward the completeness score.
var confidenceFields = []string{
	"title", "authors", "year", "journal", "publisher",
	"volume", "issue", "pages", "doi", "url",
}

// Result is the outcome of validating one record.
type Result struct {
	Errors      []string `json:"errors"`
	Suggestions []string `json:"suggestions"`
	Confidence  float64  `json:"confidence"`
}

// DOISyntaxValid reports whether doi has the 10.NNNN/suffix shape. A
// doi.org URL prefix is tolerated.
func DOISyntaxValid(doi string) bool {
	d := strings.TrimSpace(doi)
	if d == "" {
		return false
	}
	low := strings.ToLower(d)
	if strings.HasPrefix(low, "http://doi.org/") || strings.HasPrefix(low, "https://doi.org/") {
		d = d[strings.Index(low, "doi.org/")+len("doi.org/"):]
	}
	return doiSyntaxRe.MatchString(d)
}

// Validate checks c as a record of the given source type, adding reminders
// for style when it names a known citation style. An empty source type is
// treated as an article.
func Validate(c types.Citation, sourceType, style string) Result {
	r := Result{Errors: []string{}, Suggestions: []string{}}

	if !c.Has("title") {
		r.Errors = append(r.Errors, "Missing required field: title")
	}
	if !c.Has("year") {
		r.Errors = append(r.Errors, "Missing required field: year")
	}

	st := strings.ToLower(sourceType)
	if st == "" {
		st = types.SourceArticle
	}
	isArticle := st == types.SourceArticle || st == types.SourceJournal
	isWeb := st == types.SourceWeb || st == types.SourceWebsite

	switch {
	case isArticle:
		if c.Journal == "" {
			r.suggest("Add 'journal' for journal articles.")
		}
		if len(c.Authors) == 0 {
			r.suggest("Provide at least one author.")
		}
	case st == types.SourceBook:
		if c.Publisher == "" {
			r.suggest("Add 'publisher' for books.")
		}
	case isWeb:
		if c.URL == "" {
			r.suggest("Provide a URL for web sources.")
		}
	}

	if c.DOI == "" {
		r.suggest("Consider adding DOI if available.")
	} else if !DOISyntaxValid(c.DOI) {
		r.Errors = append(r.Errors, "Invalid DOI syntax.")
	}

	if c.URL != "" && !urlSchemeRe.MatchString(strings.TrimSpace(c.URL)) {
		r.Errors = append(r.Errors, "URL must start with http:// or https://")
	}

	title := strings.TrimSpace(c.Title)
	if title != "" {
		switch {
		case isUpper(title):
			r.suggest("Title appears to be ALL CAPS; adjust capitalization.")
		case isLower(title):
			r.suggest("Title appears to be all lowercase; adjust capitalization.")
		}
	}

	if c.Year != "" {
		if y, ok := c.Year.Int(); !ok {
			r.Errors = append(r.Errors, "Year must be numeric.")
		} else if y < 1500 || y > 2100 {
			r.Errors = append(r.Errors, "Year looks out of plausible range (1500–2100).")
		}
	}
	if c.Volume != "" && !digitsRe.MatchString(c.Volume) {
		r.suggest("Volume should be numeric.")
	}
	if c.Issue != "" && !digitsRe.MatchString(c.Issue) {
		r.suggest("Issue should be numeric.")
	}
	if c.Pages != "" && !pageRangeRe.MatchString(strings.TrimSpace(c.Pages)) {
		r.suggest("Pages should look like '12-34'.")
	}

	r.Confidence = Confidence(c)
	r.styleSuggestions(c, strings.ToLower(strings.TrimSpace(style)), title, isArticle, isWeb, st == types.SourceBook)
	return r
}

// Confidence is the share of the ten bibliographic fields that are present,
// rounded to two decimals.
func Confidence(c types.Citation) float64 {
	filled := 0
	for _, f := range confidenceFields {
		if c.Has(f) {
			filled++
		}
	}
	return math.Round(float64(filled)/float64(len(confidenceFields))*100) / 100
}

func (r *Result) styleSuggestions(c types.Citation, style, title string, isArticle, isWeb, isBook bool) {
	switch style {
	case "apa":
		if title != "" {
			words := strings.Fields(title)
			caps := 0
			for _, w := range words {
				if upperStartRe.MatchString(w) {
					caps++
				}
			}
			if len(words) >= 4 && float64(caps) > float64(len(words))/2 {
				r.suggest("APA: Convert title to sentence case (capitalize first word and proper nouns).")
			}
		}
		if c.DOI == "" && isArticle {
			r.suggest("APA: Include DOI if available for journal articles.")
		}
	case "mla":
		if isWeb {
			r.suggest("MLA: Include access date for web sources (optional but common).")
		}
		if isArticle && c.Pages == "" {
			r.suggest("MLA: Add page range for articles when applicable.")
		}
	case "chicago":
		if isBook && c.Publisher == "" {
			r.suggest("Chicago: Include publisher for books and consider publisher location.")
		}
		if isArticle && c.Pages == "" {
			r.suggest("Chicago: Provide page range for articles when available.")
		}
	case "harvard":
		if isArticle && c.Pages == "" {
			r.suggest("Harvard: Include page numbers for journal articles when applicable.")
		}
		if isWeb && c.URL == "" {
			r.suggest("Harvard: Provide the URL for web sources.")
		}
	case "ieee":
		if c.DOI == "" && isArticle {
			r.suggest("IEEE: Include DOI if available for journal articles.")
		}
		if c.Journal != "" {
			r.suggest("IEEE: Use standard journal abbreviation if known.")
		}
	}
}

func (r *Result) suggest(s string) {
	r.Suggestions = append(r.Suggestions, s)
}

// isUpper reports whether s has at least one cased letter and no lower-case
// letters.
func isUpper(s string) bool {
	cased := false
	for _, ch := range s {
		if unicode.IsLower(ch) {
			return false
		}
		if unicode.IsUpper(ch) || unicode.IsTitle(ch) {
			cased = true
		}
	}
	return cased
}

// isLower reports whether s has at least one cased letter and no upper-case
// letters.
func isLower(s string) bool {
	cased := false
	for _, ch := range s {
		if unicode.IsUpper(ch) || unicode.IsTitle(ch) {
			return false
		}
		if unicode.IsLower(ch) {
			cased = true
		}
	}
	return cased
}

// MergeSuggestions returns the union of base and extra, keeping base order
// and appending unseen extras.
func MergeSuggestions(base, extra []string) []string {
	seen := make(map[string]bool, len(base)+len(extra))
	out := make([]string, 0, len(base)+len(extra))
	for _, list := range [][]string{base, extra} {
		for _, s := range list {
			if s == "" || seen[s] {
				continue
			}
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
