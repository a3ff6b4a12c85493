// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package metadata turns raw citation input into Citation records: it
// normalizes loosely typed mappings, extracts fields from free-form reference
// text, merges partial records, and removes duplicates.
package metadata

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/pdiddy/citation-manager/pkg/types"
)

var (
	authorSepRe = regexp.MustCompile(`[;,]`)
	pageDashRe  = regexp.MustCompile(`\s*[-–—‑]\s*`)
)

// doiPrefixes are stripped from the front of a DOI, compared case-insensitively.
var doiPrefixes = []string{"https://doi.org/", "http://doi.org/", "doi:"}

// Normalize canonicalizes a raw metadata mapping into a Citation. Authors
// come from "author" or "authors" (a list is taken as is, a string is split
// on ";" and ","), the DOI loses any doi: or doi.org prefix and is
// lower-cased, and page ranges use a single ASCII hyphen. Numeric values are
// rendered as decimal text.
func Normalize(raw map[string]any) types.Citation {
	if raw == nil {
		return types.Citation{Authors: []string{}}
	}

	authorsField := raw["author"]
	if isEmptyValue(authorsField) {
		authorsField = raw["authors"]
	}

	c := types.Citation{
		Title:      text(raw["title"]),
		Authors:    authorList(authorsField),
		Year:       types.Year(text(raw["year"])),
		Journal:    text(raw["journal"]),
		Publisher:  text(raw["publisher"]),
		Volume:     text(raw["volume"]),
		Issue:      text(raw["issue"]),
		Pages:      NormalizePages(text(raw["pages"])),
		DOI:        NormalizeDOI(text(raw["doi"])),
		URL:        text(raw["url"]),
		RawText:    text(raw["raw_text"]),
		SourceType: text(raw["source_type"]),
	}
	return c
}

// NormalizeDOI strips doi: and doi.org URL prefixes, trims, and lower-cases.
// It is idempotent.
func NormalizeDOI(doi string) string {
	d := strings.TrimSpace(doi)
	for stripped := true; stripped; {
		stripped = false
		for _, p := range doiPrefixes {
			if len(d) >= len(p) && strings.EqualFold(d[:len(p)], p) {
				d = strings.TrimSpace(d[len(p):])
				stripped = true
			}
		}
	}
	return strings.ToLower(d)
}

// NormalizePages replaces every dash variant, with its surrounding
// whitespace, by a single "-".
func NormalizePages(pages string) string {
	p := strings.TrimSpace(pages)
	if p == "" {
		return ""
	}
	return pageDashRe.ReplaceAllString(p, "-")
}

// SplitAuthors splits an author string on ";" and "," into trimmed,
// non-empty names. A string of only separators yields no names.
func SplitAuthors(s string) []string {
	parts := []string{}
	for _, p := range authorSepRe.Split(s, -1) {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

func authorList(v any) []string {
	switch a := v.(type) {
	case []string:
		return append([]string{}, a...)
	case []any:
		out := make([]string, 0, len(a))
		for _, e := range a {
			if e == nil {
				continue
			}
			out = append(out, text(e))
		}
		return out
	case string:
		return SplitAuthors(a)
	case nil:
		return []string{}
	default:
		return SplitAuthors(text(a))
	}
}

// text renders a loosely typed JSON value as the string the record stores.
func text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return types.NumberText(t)
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		if t {
			return "true"
		}
		return ""
	case []any:
		if len(t) == 0 {
			return ""
		}
		return text(t[0])
	default:
		return fmt.Sprint(t)
	}
}

func isEmptyValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	case []string:
		return len(t) == 0
	}
	return false
}
