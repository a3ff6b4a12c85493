// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package agent

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/citation-manager/internal/csl"
	"github.com/pdiddy/citation-manager/internal/metadata"
	"github.com/pdiddy/citation-manager/internal/validate"
	"github.com/pdiddy/citation-manager/pkg/types"
)

// ProcessParams are the inputs for formatting one citation.
type ProcessParams struct {
	Style      string
	SourceType string
	RawText    string
	Metadata   map[string]any
	IncludeDOI bool
	LLMParse   bool
	Save       bool
	SaveAll    bool
	UserID     string
}

// ProcessResult is the outcome of formatting one citation.
type ProcessResult struct {
	FormattedCitation string            `json:"formatted_citation"`
	StyleUsed         string            `json:"style_used"`
	Confidence        float64           `json:"confidence"`
	ErrorsDetected    []string          `json:"errors_detected"`
	Suggestions       []string          `json:"suggestions"`
	SuggestionsLLM    []string          `json:"suggestions_llm"`
	LiveChecks        LiveChecks        `json:"live_checks"`
	ParsedMetadata    types.Citation    `json:"parsed_metadata"`
	PreLLMMetadata    types.Citation    `json:"pre_llm_metadata"`
	LLMAppliedChanges []metadata.Change `json:"llm_applied_changes"`
	SourceTypeUsed    string            `json:"source_type_used"`

	// Rendered describes how FormattedCitation was produced.
	Rendered csl.Rendered `json:"-"`
}

// Status is "ok" when validation found no errors, "warning" otherwise.
func (r ProcessResult) Status() string {
	if len(r.ErrorsDetected) == 0 {
		return "ok"
	}
	return "warning"
}

// Process parses, enriches, validates, and renders one citation. The only
// errors are a missing renderer and a failed save.
func (s *Service) Process(ctx context.Context, p ProcessParams) (ProcessResult, error) {
	style := p.Style
	if style == "" {
		style = DefaultStyle
	}
	sourceType := p.SourceType
	if sourceType == "" {
		sourceType = DefaultSourceType
	}

	base := metadata.CompleteFromDOI(ctx, metadata.Normalize(p.Metadata), s.resolver())
	extracted := metadata.Extract(p.RawText)

	var llmParsed map[string]any
	if p.LLMParse && p.RawText != "" && s.llm != nil {
		parsed, err := s.llm.ParseCitation(ctx, p.RawText)
		if err != nil {
			s.metrics.EnrichmentFailed("llm")
			s.logger.Warn("LLM citation parse failed", zap.Error(err))
		}
		llmParsed = parsed
	}

	pre := metadata.Merge(base, extracted)
	merged := pre.Clone()
	if p.RawText != "" {
		merged.RawText = p.RawText
	}

	changes := []metadata.Change{}
	if len(llmParsed) > 0 {
		after := metadata.Merge(merged, metadata.Normalize(llmParsed))
		changes = append(changes, metadata.Diff(merged, after, "LLM")...)
		merged = after
	}

	live := s.liveChecks(ctx, merged)
	v := validate.Validate(merged, sourceType, style)

	suggestions := v.Suggestions
	llmSuggestions := []string{}
	if p.LLMParse && s.llm != nil {
		got, err := s.llm.StyleSuggestions(ctx, style, sourceType, merged)
		if err != nil {
			s.metrics.EnrichmentFailed("llm")
			s.logger.Warn("LLM style suggestions failed", zap.String("style", style), zap.Error(err))
		} else {
			llmSuggestions = got
			suggestions = validate.MergeSuggestions(suggestions, got)
		}
	}

	if err := s.renderer.Check(style); err != nil {
		return ProcessResult{}, err
	}
	rendered := s.render(ctx, style, merged, sourceType, p.IncludeDOI)

	if p.Save {
		if _, err := s.SaveToLTM(ctx, merged, style, p.UserID, p.SaveAll); err != nil {
			return ProcessResult{}, err
		}
	}

	return ProcessResult{
		FormattedCitation: rendered.Text,
		StyleUsed:         style,
		Confidence:        v.Confidence,
		ErrorsDetected:    v.Errors,
		Suggestions:       suggestions,
		SuggestionsLLM:    llmSuggestions,
		LiveChecks:        live,
		ParsedMetadata:    merged,
		PreLLMMetadata:    pre,
		LLMAppliedChanges: changes,
		SourceTypeUsed:    sourceType,
		Rendered:          rendered,
	}, nil
}

// Convert re-renders a metadata mapping in the target style. Empty styles
// default to APA (from) and MLA (to).
func (s *Service) Convert(ctx context.Context, md map[string]any, from, to string) csl.Rendered {
	from = upperOr(from, DefaultStyle)
	to = upperOr(to, DefaultConvertTo)
	s.logger.Debug("converting citation", zap.String("from", from), zap.String("to", to))
	return s.render(ctx, to, metadata.Normalize(md), "", true)
}

// resolver returns the enricher as a DOI resolver, or nil.
func (s *Service) resolver() metadata.DOIResolver {
	if s.enricher == nil {
		return nil
	}
	return s.enricher
}

func upperOr(s, def string) string {
	if s = strings.TrimSpace(s); s == "" {
		return def
	}
	return strings.ToUpper(s)
}
