// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/pdiddy/citation-manager/internal/agent"
	"github.com/pdiddy/citation-manager/internal/crossref"
	"github.com/pdiddy/citation-manager/internal/csl"
	"github.com/pdiddy/citation-manager/internal/llm"
	"github.com/pdiddy/citation-manager/internal/ltm"
	"github.com/pdiddy/citation-manager/internal/metrics"
	"github.com/pdiddy/citation-manager/pkg/types"
)

// deps is a fully wired agent and the resources it holds open.
type deps struct {
	svc   *agent.Service
	store *ltm.Store
}

func (d deps) Close() {
	if d.store != nil {
		d.store.Close()
	}
}

type buildOpts struct {
	// offline skips the registry client and the LLM backend.
	offline bool
	// noStore leaves long-term memory unset.
	noStore bool
}

func newRenderer(cfg types.RenderConfig, logger *zap.Logger) *csl.Renderer {
	styles := csl.NewStyleResolver(cfg.StyleDir, cfg.BuiltinStyleDir)
	return csl.NewRenderer(csl.NewPandoc(cfg), styles, logger)
}

// build wires the agent from cfg. reg may be nil when no metrics are
// exported.
func build(cfg types.AgentConfig, logger *zap.Logger, reg prometheus.Registerer, o buildOpts) (deps, *metrics.Metrics, error) {
	var m *metrics.Metrics
	if reg != nil {
		m = metrics.New(reg)
	}

	opts := agent.Options{
		Renderer:      newRenderer(cfg.Render, logger),
		Metrics:       m,
		Logger:        logger,
		PDFTimeBudget: cfg.PDF.TimeBudget,
	}

	if !o.offline {
		opts.Enricher = crossref.NewClient(cfg.Crossref, logger, m)
		if cfg.LLM.Provider != types.LLMNone {
			p, err := llm.New(cfg.LLM)
			if err != nil {
				logger.Warn("LLM parsing disabled", zap.String("provider", string(cfg.LLM.Provider)), zap.Error(err))
			} else {
				logger.Info("LLM parsing enabled", zap.String("backend", p.Name()))
				opts.LLM = p
			}
		}
	}

	var d deps
	if !o.noStore {
		store, err := ltm.Open(cfg.Store)
		if err != nil {
			return deps{}, nil, fmt.Errorf("opening long-term memory: %w", err)
		}
		d.store = store
		opts.Store = store
	}

	d.svc = agent.New(opts)
	return d, m, nil
}
