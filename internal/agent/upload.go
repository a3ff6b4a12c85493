// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package agent

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/pdiddy/citation-manager/internal/metadata"
	"github.com/pdiddy/citation-manager/internal/pdfref"
	"github.com/pdiddy/citation-manager/internal/validate"
	"github.com/pdiddy/citation-manager/pkg/types"
)

// UploadParams are the options for processing an uploaded PDF.
type UploadParams struct {
	Style      string
	IncludeDOI bool
	LLMParse   bool
	Save       bool
	SaveAll    bool
	UserID     string
}

// ItemValidation is the per-reference validation outcome.
type ItemValidation struct {
	Errors      []string   `json:"errors"`
	Suggestions []string   `json:"suggestions"`
	Confidence  float64    `json:"confidence"`
	LiveChecks  LiveChecks `json:"live_checks"`
}

// UploadResult is the outcome of processing a PDF's reference list.
type UploadResult struct {
	FormattedBibliography string           `json:"formatted_bibliography"`
	Items                 []types.Citation `json:"items"`
	ItemsFormatted        []string         `json:"items_formatted"`
	ItemsValidation       []ItemValidation `json:"items_validation"`
	Count                 int              `json:"count"`
	StyleUsed             string           `json:"style_used"`
	IncludeDOI            bool             `json:"include_doi"`
	LLMParse              bool             `json:"llm_parse"`
	RawReferencesText     string           `json:"raw_references_text"`
	Truncated             bool             `json:"truncated"`
	ProcessedCount        int              `json:"processed_count"`
	TotalCandidates       int              `json:"total_candidates"`
	TimeBudgetSeconds     int              `json:"time_budget_seconds"`
}

// UploadPDF extracts the reference list from a PDF and processes each
// candidate entry. Processing stops once the time budget is spent; the
// result then reports Truncated.
func (s *Service) UploadPDF(ctx context.Context, data []byte, p UploadParams) (UploadResult, error) {
	style := p.Style
	if style == "" {
		style = DefaultStyle
	}

	section, candidates, err := pdfref.References(data)
	if err != nil {
		return UploadResult{}, fmt.Errorf("extracting references: %w", err)
	}
	s.logger.Info("extracted PDF references",
		zap.Int("bytes", len(data)),
		zap.Int("candidates", len(candidates)),
	)

	res := UploadResult{
		Items:             []types.Citation{},
		ItemsFormatted:    []string{},
		ItemsValidation:   []ItemValidation{},
		StyleUsed:         style,
		IncludeDOI:        p.IncludeDOI,
		LLMParse:          p.LLMParse,
		RawReferencesText: section,
		TotalCandidates:   len(candidates),
		TimeBudgetSeconds: int(s.pdfBudget.Seconds()),
	}

	start := s.now()
	for _, ref := range candidates {
		if s.now().Sub(start) > s.pdfBudget {
			s.logger.Warn("PDF time budget exceeded",
				zap.Int("processed", res.ProcessedCount),
				zap.Int("total", len(candidates)),
			)
			break
		}
		if ctx.Err() != nil {
			break
		}

		item := s.referenceItem(ctx, ref, p)
		st := sourceTypeOr(item, DefaultSourceType)

		live := s.liveChecks(ctx, item)
		v := validate.Validate(item, st, style)
		res.ItemsValidation = append(res.ItemsValidation, ItemValidation{
			Errors:      v.Errors,
			Suggestions: v.Suggestions,
			Confidence:  v.Confidence,
			LiveChecks:  live,
		})
		res.ItemsFormatted = append(res.ItemsFormatted, s.render(ctx, style, item, st, p.IncludeDOI).Text)
		res.Items = append(res.Items, item)

		if p.Save {
			if _, err := s.SaveToLTM(ctx, item, style, p.UserID, p.SaveAll); err != nil {
				s.logger.Warn("failed to save PDF reference", zap.String("title", item.Title), zap.Error(err))
			}
		}
		res.ProcessedCount++
	}

	res.FormattedBibliography = s.bibliography(ctx, style, res.Items, p.IncludeDOI).Text
	res.Count = len(res.Items)
	res.Truncated = res.ProcessedCount < res.TotalCandidates
	return res, nil
}

// referenceItem turns one candidate reference into a record: extraction,
// LLM parsing when the extraction is sparse, registry search when fields
// or the DOI are missing, DOI completion, and cleanup.
func (s *Service) referenceItem(ctx context.Context, ref string, p UploadParams) types.Citation {
	item := metadata.Extract(ref)

	if p.LLMParse && s.llm != nil && sparse(item) {
		parsed, err := s.llm.ParseReference(ctx, ref)
		if err != nil {
			s.metrics.EnrichmentFailed("llm")
			s.logger.Warn("LLM reference parse failed", zap.Error(err))
		} else if len(parsed) > 0 {
			item = metadata.Merge(item, metadata.Normalize(parsed))
		}
	}
	item.RawText = ref
	if item.Authors == nil {
		item.Authors = []string{}
	}

	if p.IncludeDOI && s.enricher != nil && (sparse(item) || item.DOI == "") {
		if found, ok := s.enricher.Search(ctx, ref); ok {
			item = metadata.Merge(item, found)
		}
	}
	item = metadata.CompleteFromDOI(ctx, item, s.resolver())
	return metadata.Postprocess(item)
}
