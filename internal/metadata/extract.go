// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package metadata

import (
	"regexp"
	"strings"

	"github.com/pdiddy/citation-manager/pkg/types"
)

var (
	doiRe         = regexp.MustCompile(`(?i)10\.\d{4,9}/[-._;()/:A-Z0-9]+`)
	urlRe         = regexp.MustCompile(`https?://\S+`)
	yearRe        = regexp.MustCompile(`\((\d{4})\)|\b(\d{4})\b`)
	quotedTitleRe = regexp.MustCompile(`"([^"]{3,})"|“([^”]{3,})”|‘([^’]{3,})’|'([^']{3,})'`)

	journalAbbrevRe = regexp.MustCompile(`\bJ\.?\s*[A-Z]`)
	volumeYearRe    = regexp.MustCompile(`\b\d+\s*\(\d{4}\)\b`)
	lowerInitialRe  = regexp.MustCompile(`^[a-z]`)
	nameSplitRe     = regexp.MustCompile(`;|,| and `)
)

// journalStopWords mark a comma segment as a venue rather than a title or
// author list.
var journalStopWords = map[string]bool{
	"journal": true, "proc.": true, "proceedings": true, "algebra": true,
	"math": true, "math.": true, "appl.": true, "applied": true, "pure": true,
	"transactions": true, "ann.": true, "soc.": true, "society": true, "forum": true,
}

// Extract recovers DOI, URL, year, title and authors from a free-form
// reference string. Fields it cannot find are left empty. It never panics;
// on an unexpected failure it returns whatever it found so far.
func Extract(raw string) (c types.Citation) {
	if raw == "" {
		return c
	}
	defer func() { _ = recover() }()

	if m := doiRe.FindString(raw); m != "" {
		c.DOI = NormalizeDOI(m)
	}
	c.URL = urlRe.FindString(raw)
	if m := yearRe.FindStringSubmatch(raw); m != nil {
		if m[1] != "" {
			c.Year = types.Year(m[1])
		} else {
			c.Year = types.Year(m[2])
		}
	}

	if m := quotedTitleRe.FindStringSubmatch(raw); m != nil {
		for _, g := range m[1:] {
			if g != "" {
				c.Title = g
				break
			}
		}
		return c
	}

	c.Title, c.Authors = scanSegments(raw)
	return c
}

// scanSegments walks the comma-separated segments of an unquoted reference.
// Segments before the first title-like one are author candidates; scanning
// stops at the title or at the first venue-like segment.
func scanSegments(raw string) (string, []string) {
	var segs []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			segs = append(segs, s)
		}
	}

	var title string
	var authorSegs []string
	for _, seg := range segs {
		if isJournalish(seg) {
			break
		}
		if isTitleish(seg) {
			title = strings.Trim(strings.TrimSpace(seg), " .")
			break
		}
		authorSegs = append(authorSegs, seg)
	}

	var authors []string
	seen := make(map[string]bool)
	for _, n := range nameSplitRe.Split(strings.Join(authorSegs, ", "), -1) {
		n = strings.TrimSpace(n)
		if n == "" || isJournalish(n) || len(strings.Fields(n)) < 2 || seen[n] {
			continue
		}
		seen[n] = true
		authors = append(authors, n)
	}
	return title, authors
}

// isJournalish reports whether s looks like a venue: an abbreviated
// "J. Foo", a "12 (1999)" volume-year pair, or a venue stop word.
func isJournalish(s string) bool {
	if journalAbbrevRe.MatchString(s) || volumeYearRe.MatchString(s) {
		return true
	}
	for _, tok := range strings.Fields(strings.ToLower(s)) {
		if journalStopWords[strings.Trim(tok, ".,()[]")] {
			return true
		}
	}
	return false
}

// isTitleish reports whether s has at least three words and enough of them
// start lower-case to read like running title text.
func isTitleish(s string) bool {
	words := strings.Fields(s)
	if len(words) < 3 {
		return false
	}
	lowers := 0
	for _, w := range words {
		if lowerInitialRe.MatchString(w) {
			lowers++
		}
	}
	return lowers >= max(2, len(words)/3)
}
