// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package agent

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/pdiddy/citation-manager/internal/csl"
	"github.com/pdiddy/citation-manager/internal/ltm"
	"github.com/pdiddy/citation-manager/internal/metadata"
)

// BibliographyResult is a formatted bibliography and its entry count.
type BibliographyResult struct {
	FormattedBibliography string `json:"formatted_bibliography"`
	Count                 int    `json:"count"`

	Rendered csl.Rendered `json:"-"`
}

// Batch formats items as a bibliography. A string item is reference text;
// a mapping is metadata. The style is upper-cased and defaults to APA.
func (s *Service) Batch(ctx context.Context, items []any, style string, includeDOI bool) BibliographyResult {
	style = upperOr(style, DefaultStyle)
	processed := metadata.ProcessBatchItems(ctx, items, s.resolver())
	out := s.bibliography(ctx, style, processed, includeDOI)
	return BibliographyResult{FormattedBibliography: out.Text, Count: len(processed), Rendered: out}
}

// BibliographyParams are the inputs for Bibliography.
type BibliographyParams struct {
	Items            []any
	Style            string
	RemoveDuplicates bool
	Save             bool
	SaveAll          bool
	UserID           string
}

// Bibliography formats items like Batch after optionally removing
// duplicates. When saving, SaveAll stores every processed item and skips
// the duplicate check; otherwise the de-duplicated items are stored with
// the check. Save failures are logged and do not fail the request.
func (s *Service) Bibliography(ctx context.Context, p BibliographyParams) BibliographyResult {
	style := upperOr(p.Style, DefaultStyle)
	all := metadata.ProcessBatchItems(ctx, p.Items, s.resolver())
	processed := all
	if p.RemoveDuplicates {
		processed = metadata.DetectDuplicates(all)
	}
	out := s.bibliography(ctx, style, processed, true)

	if p.Save {
		toSave := processed
		if p.SaveAll {
			toSave = all
		}
		saved := 0
		for _, it := range toSave {
			ok, err := s.SaveToLTM(ctx, it, style, p.UserID, p.SaveAll)
			if err != nil {
				s.logger.Warn("failed to save bibliography item", zap.String("title", it.Title), zap.Error(err))
				continue
			}
			if ok {
				saved++
			}
		}
		s.logger.Info("bibliography saved",
			zap.String("user_id", p.UserID),
			zap.Int("saved", saved),
			zap.Int("candidates", len(toSave)),
		)
	}

	return BibliographyResult{FormattedBibliography: out.Text, Count: len(processed), Rendered: out}
}

// Retrieve searches long-term memory.
func (s *Service) Retrieve(ctx context.Context, q ltm.Query) ([]ltm.Row, error) {
	if s.store == nil {
		return nil, ErrNoStore
	}
	rows, err := s.store.Search(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("searching long-term memory: %w", err)
	}
	return rows, nil
}
