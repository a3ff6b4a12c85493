// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package metadata

import (
	"fmt"

	"github.com/pdiddy/citation-manager/pkg/types"
)

// Merge fills the empty fields of base from incoming. A field already set in
// base is never changed. Neither argument is modified.
func Merge(base, incoming types.Citation) types.Citation {
	out := base.Clone()
	fill(&out.Title, incoming.Title)
	if len(out.Authors) == 0 && len(incoming.Authors) > 0 {
		out.Authors = append([]string(nil), incoming.Authors...)
	}
	if out.Year == "" {
		out.Year = incoming.Year
	}
	fill(&out.Journal, incoming.Journal)
	fill(&out.Publisher, incoming.Publisher)
	fill(&out.Volume, incoming.Volume)
	fill(&out.Issue, incoming.Issue)
	fill(&out.Pages, incoming.Pages)
	fill(&out.DOI, incoming.DOI)
	fill(&out.URL, incoming.URL)
	fill(&out.RawText, incoming.RawText)
	fill(&out.SourceType, incoming.SourceType)
	return out
}

func fill(dst *string, v string) {
	if *dst == "" && v != "" {
		*dst = v
	}
}

// Change records one field that a merge step altered.
type Change struct {
	Field  string `json:"field"`
	Before any    `json:"before"`
	After  any    `json:"after"`
	Source string `json:"source"`
}

// Diff lists the fields that differ between before and after, attributing
// each change to source.
func Diff(before, after types.Citation, source string) []Change {
	var changes []Change
	for _, f := range types.CitationFields {
		b, a := before.Value(f), after.Value(f)
		if fmt.Sprint(b) == fmt.Sprint(a) {
			continue
		}
		changes = append(changes, Change{Field: f, Before: b, After: a, Source: source})
	}
	return changes
}
