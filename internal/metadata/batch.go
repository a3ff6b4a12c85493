// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package metadata

import (
	"context"
	"regexp"
	"strings"

	"github.com/pdiddy/citation-manager/pkg/types"
)

// DOIResolver looks up registry metadata for a DOI. ok is false when the
// registry had nothing or could not be reached.
type DOIResolver interface {
	Lookup(ctx context.Context, doi string) (c types.Citation, ok bool)
}

// ProcessBatchItems turns a list of raw items into records. A string item is
// treated as reference text and extracted. A mapping is normalized, filled
// from its raw_text, and completed from the registry when it has a DOI but
// no title. Items of any other shape are skipped. resolver may be nil.
func ProcessBatchItems(ctx context.Context, items []any, resolver DOIResolver) []types.Citation {
	out := make([]types.Citation, 0, len(items))
	for _, raw := range items {
		switch v := raw.(type) {
		case string:
			out = append(out, Merge(Normalize(nil), Extract(v)))
		case map[string]any:
			c := Merge(Normalize(v), Extract(text(v["raw_text"])))
			out = append(out, CompleteFromDOI(ctx, c, resolver))
		}
	}
	return out
}

// CompleteFromDOI merges registry metadata into c when c has a DOI but no
// title.
func CompleteFromDOI(ctx context.Context, c types.Citation, resolver DOIResolver) types.Citation {
	if resolver == nil || c.DOI == "" || c.Title != "" {
		return c
	}
	if fetched, ok := resolver.Lookup(ctx, c.DOI); ok {
		return Merge(c, fetched)
	}
	return c
}

// DuplicateKey identifies a record for de-duplication: the lower-cased DOI,
// or the trimmed lower-cased title when there is no DOI. Records with
// neither have an empty key.
func DuplicateKey(c types.Citation) string {
	if k := strings.ToLower(c.DOI); k != "" {
		return k
	}
	return strings.ToLower(strings.TrimSpace(c.Title))
}

// DetectDuplicates keeps the first record for each duplicate key, preserving
// order. Records without a key are always kept.
func DetectDuplicates(items []types.Citation) []types.Citation {
	seen := make(map[string]bool)
	out := make([]types.Citation, 0, len(items))
	for _, it := range items {
		key := DuplicateKey(it)
		if key == "" {
			out = append(out, it)
			continue
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, it)
	}
	return out
}

var (
	spaceRunRe  = regexp.MustCompile(`\s+`)
	bareYearRe  = regexp.MustCompile(`\b(19\d{2}|20\d{2}|21\d{2})\b`)
	arxivIDRe   = regexp.MustCompile(`(?i)arXiv\s*:\s*([0-9.]+)(?:v\d+)?`)
	arxivAbsURL = "https://arxiv.org/abs/"
)

// Postprocess cleans records recovered from PDF reference lists: it
// collapses whitespace and trailing punctuation in free-text fields, drops
// venue-like author entries when a journal is known, recovers the year from
// the raw text, and recognizes arXiv identifiers.
func Postprocess(c types.Citation) types.Citation {
	out := c.Clone()
	for _, f := range []*string{&out.Title, &out.Journal, &out.Publisher, &out.URL} {
		*f = strings.Trim(strings.TrimSpace(spaceRunRe.ReplaceAllString(*f, " ")), " .,")
	}

	authors := make([]string, 0, len(out.Authors))
	for _, a := range out.Authors {
		if a == "" {
			continue
		}
		a = strings.TrimSpace(spaceRunRe.ReplaceAllString(a, " "))
		if out.Journal != "" && isVenueName(a) {
			continue
		}
		authors = append(authors, a)
	}
	out.Authors = authors

	if out.Year == "" {
		if m := bareYearRe.FindString(out.RawText); m != "" {
			out.Year = types.Year(m)
		}
	}

	if m := arxivIDRe.FindStringSubmatch(out.RawText); m != nil {
		fill(&out.Journal, "arXiv")
		fill(&out.SourceType, types.SourceArticle)
		fill(&out.URL, arxivAbsURL+m[1])
	}
	return out
}

// isVenueName is isJournalish without the volume-year rule.
func isVenueName(s string) bool {
	if journalAbbrevRe.MatchString(s) {
		return true
	}
	for _, tok := range strings.Fields(strings.ToLower(s)) {
		if journalStopWords[strings.Trim(tok, ".,()[]")] {
			return true
		}
	}
	return false
}
