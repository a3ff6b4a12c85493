// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package csl maps citation records to CSL items, resolves CSL style files,
// and renders formatted references through an external citeproc engine with
// a hand-written fallback.
package csl

import (
	"io"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/citation-manager/pkg/types"
)

// Item is a bibliographic entry in CSL-JSON/CSL-YAML form, consumable by
// pandoc and reference managers.
type Item struct {
	ID             string `json:"id" yaml:"id"`
	Type           string `json:"type" yaml:"type"`
	Title          string `json:"title" yaml:"title"`
	Author         []Name `json:"author" yaml:"author"`
	Issued         *Date  `json:"issued,omitempty" yaml:"issued,omitempty"`
	ContainerTitle string `json:"container-title,omitempty" yaml:"container-title,omitempty"`
	Volume         string `json:"volume,omitempty" yaml:"volume,omitempty"`
	Issue          string `json:"issue,omitempty" yaml:"issue,omitempty"`
	Page           string `json:"page,omitempty" yaml:"page,omitempty"`
	Publisher      string `json:"publisher,omitempty" yaml:"publisher,omitempty"`
	DOI            string `json:"DOI,omitempty" yaml:"DOI,omitempty"`
	URL            string `json:"URL,omitempty" yaml:"URL,omitempty"`
}

// Name is a person's name in CSL form.
type Name struct {
	Family  string `json:"family,omitempty" yaml:"family,omitempty"`
	Given   string `json:"given,omitempty" yaml:"given,omitempty"`
	Literal string `json:"literal,omitempty" yaml:"literal,omitempty"`
}

// Date is a CSL date using date-parts.
type Date struct {
	DateParts [][]int `json:"date-parts" yaml:"date-parts"`
}

var itemTypes = map[string]string{
	types.SourceArticle: "article-journal",
	types.SourceBook:    "book",
	types.SourceWeb:     "webpage",
}

// ToItem converts c into a CSL item. sourceType overrides the record's own
// source type when set. The DOI is emitted only when includeDOI is true.
func ToItem(c types.Citation, sourceType string, includeDOI bool) Item {
	if sourceType == "" {
		sourceType = c.SourceType
	}
	typ, ok := itemTypes[strings.ToLower(strings.TrimSpace(sourceType))]
	if !ok {
		typ = "article-journal"
	}

	item := Item{
		ID:             itemID(c),
		Type:           typ,
		Title:          c.Title,
		ContainerTitle: c.Journal,
		Volume:         c.Volume,
		Issue:          c.Issue,
		Page:           c.Pages,
		Publisher:      c.Publisher,
		URL:            c.URL,
	}

	for _, a := range c.Authors {
		item.Author = append(item.Author, parseAuthorName(a))
	}
	if len(item.Author) == 0 {
		item.Author = []Name{{Literal: "Unknown"}}
	}

	if y, ok := c.Year.Int(); ok {
		item.Issued = &Date{DateParts: [][]int{{y}}}
	}

	if includeDOI && c.DOI != "" {
		item.DOI = strings.TrimSpace(strings.TrimPrefix(c.DOI, "https://doi.org/"))
	}
	return item
}

func itemID(c types.Citation) string {
	switch {
	case c.DOI != "":
		return c.DOI
	case c.URL != "":
		return c.URL
	}
	return "item-1"
}

// parseAuthorName splits a full name on the last space: everything before is
// given, the last token is family. Single-token and blank names use the
// literal field.
func parseAuthorName(name string) Name {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return Name{Literal: name}
	}
	idx := strings.LastIndex(trimmed, " ")
	if idx < 0 {
		return Name{Literal: trimmed}
	}
	return Name{
		Given:  strings.TrimSpace(trimmed[:idx]),
		Family: trimmed[idx+1:],
	}
}

// WriteYAML writes items as a CSL-YAML list to w.
func WriteYAML(items []Item, w io.Writer) error {
	enc := yaml.NewEncoder(w)
	defer enc.Close()
	return enc.Encode(items)
}
