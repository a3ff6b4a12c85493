// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package csl

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/citation-manager/internal/container"
	"github.com/pdiddy/citation-manager/pkg/types"
)

// Engine renders CSL items with a style file.
type Engine interface {
	// Name identifies the engine and where it runs.
	Name() string

	// Available reports whether the engine can be invoked.
	Available() bool

	// Bibliography renders items with the style at stylePath and returns one
	// plain-text entry per rendered reference.
	Bibliography(ctx context.Context, stylePath string, items []Item) ([]string, error)
}

const (
	defaultPandocBinary = "pandoc"
	defaultPandocImage  = "pandoc/core"
	defaultTimeout      = 20 * time.Second
)

var errEmptyOutput = errors.New("engine produced no output")

// Pandoc renders through pandoc's citeproc, using the binary on PATH or a
// container image when the binary is missing.
type Pandoc struct {
	bin     string
	image   string
	timeout time.Duration
	find    func(bin, image string) (container.Tool, error)

	once    sync.Once
	tool    container.Tool
	findErr error
}

// NewPandoc returns a pandoc engine configured by cfg. Tool discovery runs
// once, on first use.
func NewPandoc(cfg types.RenderConfig) *Pandoc {
	return newPandoc(cfg, container.FindTool)
}

func newPandoc(cfg types.RenderConfig, find func(bin, image string) (container.Tool, error)) *Pandoc {
	p := &Pandoc{
		bin:     cfg.PandocBinary,
		image:   cfg.PandocImage,
		timeout: cfg.Timeout,
		find:    find,
	}
	if p.bin == "" {
		p.bin = defaultPandocBinary
	}
	if p.timeout <= 0 {
		p.timeout = defaultTimeout
	}
	return p
}

func (p *Pandoc) resolve() (container.Tool, error) {
	p.once.Do(func() {
		p.tool, p.findErr = p.find(p.bin, p.image)
	})
	return p.tool, p.findErr
}

func (p *Pandoc) Name() string {
	if tool, err := p.resolve(); err == nil {
		return tool.Name()
	}
	return p.bin
}

func (p *Pandoc) Available() bool {
	_, err := p.resolve()
	return err == nil
}

// Unavailable returns why the engine cannot run, or nil.
func (p *Pandoc) Unavailable() error {
	_, err := p.resolve()
	return err
}

type frontMatter struct {
	Nocite     string `yaml:"nocite"`
	References []Item `yaml:"references"`
}

func (p *Pandoc) Bibliography(ctx context.Context, stylePath string, items []Item) ([]string, error) {
	tool, err := p.resolve()
	if err != nil {
		return nil, err
	}

	doc, err := markdownDocument(items)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var out bytes.Buffer
	err = tool.Run(ctx, container.Invocation{
		Args: []string{
			"--citeproc",
			"--csl", filepath.Base(stylePath),
			"-f", "markdown",
			"-t", "plain",
			"--wrap=none",
		},
		Dir:    filepath.Dir(stylePath),
		Stdin:  bytes.NewReader(doc),
		Stdout: &out,
	})
	if err != nil {
		return nil, fmt.Errorf("rendering with %s: %w", tool.Name(), err)
	}

	entries := splitEntries(out.String())
	if len(entries) == 0 {
		return nil, errEmptyOutput
	}
	return entries, nil
}

// markdownDocument builds a pandoc input whose front matter carries the
// references and cites all of them.
func markdownDocument(items []Item) ([]byte, error) {
	body, err := yaml.Marshal(frontMatter{Nocite: "@*", References: items})
	if err != nil {
		return nil, fmt.Errorf("encoding references: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(body)
	buf.WriteString("---\n")
	return buf.Bytes(), nil
}

// splitEntries splits plain-text bibliography output into paragraphs.
func splitEntries(out string) []string {
	out = strings.ReplaceAll(out, "\r\n", "\n")
	var entries []string
	for _, para := range strings.Split(out, "\n\n") {
		if s := strings.TrimSpace(para); s != "" {
			entries = append(entries, strings.Join(strings.Fields(s), " "))
		}
	}
	return entries
}
