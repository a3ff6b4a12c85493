// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Source types recognized by the validator and renderer. Anything else is
// treated like an article.
const (
	SourceArticle = "article"
	SourceJournal = "journal"
	SourceBook    = "book"
	SourceWeb     = "web"
	SourceWebsite = "website"
)

// Year holds a publication year as the source supplied it. Registries send
// numbers, free text and LLM output send strings, so the text is kept and
// parsed on demand.
type Year string

// Int returns the numeric year and whether the text is an integer.
func (y Year) Int() (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(string(y)))
	if err != nil {
		return 0, false
	}
	return n, true
}

// YearOf formats n as a Year.
func YearOf(n int) Year {
	return Year(strconv.Itoa(n))
}

// MarshalJSON writes numeric years as JSON numbers and anything else as a
// string.
func (y Year) MarshalJSON() ([]byte, error) {
	if n, ok := y.Int(); ok {
		return []byte(strconv.Itoa(n)), nil
	}
	return json.Marshal(string(y))
}

// UnmarshalJSON accepts a number, a string, or null.
func (y *Year) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*y = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*y = Year(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*y = Year(NumberText(n))
	return nil
}

// NumberText renders a JSON number without a trailing ".0" when it is
// integral.
func NumberText(n json.Number) string {
	if i, err := n.Int64(); err == nil {
		return strconv.FormatInt(i, 10)
	}
	if f, err := n.Float64(); err == nil && f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return n.String()
}

// Citation is the fixed-shape metadata record that flows through the
// pipeline. Every field is optional; an empty string or empty list means
// absent.
type Citation struct {
	Title      string   `json:"title" yaml:"title"`
	Authors    []string `json:"authors" yaml:"authors"`
	Year       Year     `json:"year,omitempty" yaml:"year,omitempty"`
	Journal    string   `json:"journal,omitempty" yaml:"journal,omitempty"`
	Publisher  string   `json:"publisher,omitempty" yaml:"publisher,omitempty"`
	Volume     string   `json:"volume,omitempty" yaml:"volume,omitempty"`
	Issue      string   `json:"issue,omitempty" yaml:"issue,omitempty"`
	Pages      string   `json:"pages,omitempty" yaml:"pages,omitempty"`
	DOI        string   `json:"doi,omitempty" yaml:"doi,omitempty"`
	URL        string   `json:"url,omitempty" yaml:"url,omitempty"`
	RawText    string   `json:"raw_text,omitempty" yaml:"raw_text,omitempty"`
	SourceType string   `json:"source_type,omitempty" yaml:"source_type,omitempty"`
}

// CitationFields lists the record's field names in canonical order.
var CitationFields = []string{
	"title", "authors", "year", "journal", "publisher", "volume",
	"issue", "pages", "doi", "url", "raw_text", "source_type",
}

// Value returns the named field. Authors are returned as a []string, every
// other field as a string. Unknown names return nil.
func (c Citation) Value(field string) any {
	switch field {
	case "title":
		return c.Title
	case "authors":
		return c.Authors
	case "year":
		return string(c.Year)
	case "journal":
		return c.Journal
	case "publisher":
		return c.Publisher
	case "volume":
		return c.Volume
	case "issue":
		return c.Issue
	case "pages":
		return c.Pages
	case "doi":
		return c.DOI
	case "url":
		return c.URL
	case "raw_text":
		return c.RawText
	case "source_type":
		return c.SourceType
	}
	return nil
}

// Has reports whether the named field holds a value.
func (c Citation) Has(field string) bool {
	switch v := c.Value(field).(type) {
	case string:
		return v != ""
	case []string:
		return len(v) > 0
	}
	return false
}

// Persistable reports whether the record carries enough to be stored: a
// non-blank title, a DOI, a URL, or the raw reference text.
func (c Citation) Persistable() bool {
	return strings.TrimSpace(c.Title) != "" || c.DOI != "" || c.URL != "" || c.RawText != ""
}

// Clone returns a copy that shares no slices with c.
func (c Citation) Clone() Citation {
	if c.Authors != nil {
		c.Authors = append([]string(nil), c.Authors...)
	}
	return c
}
