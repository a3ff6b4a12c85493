// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ltm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"go.yaml.in/yaml/v3"
)

// ExportJSON writes every row to w as an indented JSON array.
func (s *Store) ExportJSON(ctx context.Context, w io.Writer) error {
	rows, err := s.All(ctx)
	if err != nil {
		return fmt.Errorf("querying for export: %w", err)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rows); err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	return nil
}

// ExportYAML writes every row to w as a YAML list.
func (s *Store) ExportYAML(ctx context.Context, w io.Writer) error {
	rows, err := s.All(ctx)
	if err != nil {
		return fmt.Errorf("querying for export: %w", err)
	}
	enc := yaml.NewEncoder(w)
	defer enc.Close()
	if err := enc.Encode(rows); err != nil {
		return fmt.Errorf("marshaling YAML: %w", err)
	}
	return nil
}
