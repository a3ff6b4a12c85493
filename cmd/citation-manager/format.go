// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/citation-manager/internal/agent"
	"github.com/pdiddy/citation-manager/internal/metadata"
	"github.com/pdiddy/citation-manager/internal/validate"
)

var formatCmd = &cobra.Command{
	Use:   "format [reference text...]",
	Short: "Format one citation",
	Long: `Format parses reference text and/or a metadata object, enriches it from
Crossref when a DOI is known, validates it, and prints the citation in the
requested style. Validation errors are reported on stderr.`,
	Example: `  citation-manager format --style MLA 'Smith, J. (2020). "A title". Journal of Things.'
  citation-manager format --metadata '{"doi":"10.1038/nature14539"}' --json`,
	RunE: runFormat,
}

var validateCmd = &cobra.Command{
	Use:   "validate [reference text...]",
	Short: "Check a citation for missing or malformed fields",
	Long: `Validate extracts and normalizes a citation without network access or
rendering, then prints detected errors, style suggestions, and the
completeness confidence. Exits non-zero when errors are found.`,
	RunE: runValidate,
}

func init() {
	for _, c := range []*cobra.Command{formatCmd, validateCmd} {
		c.Flags().String("style", agent.DefaultStyle, "citation style: APA, MLA, Chicago, Harvard, IEEE")
		c.Flags().String("source-type", agent.DefaultSourceType, "source type: article, book, web")
		c.Flags().String("metadata", "", "metadata as a JSON object")
		c.Flags().String("metadata-file", "", "read metadata from a JSON file (- for stdin)")
		c.Flags().Bool("json", false, "output the full result as JSON")
	}
	formatCmd.Flags().Bool("no-doi", false, "omit DOI links from the rendered citation")
	formatCmd.Flags().Bool("llm", false, "use the configured LLM to parse and audit the citation")
	formatCmd.Flags().Bool("offline", false, "skip Crossref and LLM calls")
	formatCmd.Flags().Bool("save", false, "save the result to long-term memory")
	formatCmd.Flags().Bool("save-all", false, "save even when a duplicate exists")
	formatCmd.Flags().String("user", "", "owner recorded with saved citations")

	rootCmd.AddCommand(formatCmd, validateCmd)
}

// readMetadata decodes --metadata or --metadata-file. Neither set yields
// nil.
func readMetadata(cmd *cobra.Command) (map[string]any, error) {
	raw, _ := cmd.Flags().GetString("metadata")
	file, _ := cmd.Flags().GetString("metadata-file")

	var data []byte
	switch {
	case raw != "" && file != "":
		return nil, fmt.Errorf("use either --metadata or --metadata-file")
	case raw != "":
		data = []byte(raw)
	case file != "":
		var err error
		data, err = readInput(cmd, file)
		if err != nil {
			return nil, err
		}
	default:
		return nil, nil
	}

	var md map[string]any
	if err := json.Unmarshal(data, &md); err != nil {
		return nil, fmt.Errorf("parsing metadata: %w", err)
	}
	return md, nil
}

// readInput reads path, or stdin for "-".
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func runFormat(cmd *cobra.Command, args []string) error {
	md, err := readMetadata(cmd)
	if err != nil {
		return err
	}
	rawText := strings.TrimSpace(strings.Join(args, " "))
	if rawText == "" && len(md) == 0 {
		return fmt.Errorf("provide reference text or --metadata")
	}

	style, _ := cmd.Flags().GetString("style")
	sourceType, _ := cmd.Flags().GetString("source-type")
	noDOI, _ := cmd.Flags().GetBool("no-doi")
	useLLM, _ := cmd.Flags().GetBool("llm")
	offline, _ := cmd.Flags().GetBool("offline")
	save, _ := cmd.Flags().GetBool("save")
	saveAll, _ := cmd.Flags().GetBool("save-all")
	user, _ := cmd.Flags().GetString("user")
	asJSON, _ := cmd.Flags().GetBool("json")

	logger, err := newLogger(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	d, _, err := build(loadConfig(viper.GetViper()), logger, nil, buildOpts{offline: offline, noStore: !save})
	if err != nil {
		return err
	}
	defer d.Close()

	res, err := d.svc.Process(cmd.Context(), agent.ProcessParams{
		Style:      strings.ToUpper(style),
		SourceType: sourceType,
		RawText:    rawText,
		Metadata:   md,
		IncludeDOI: !noDOI,
		LLMParse:   useLLM,
		Save:       save,
		SaveAll:    saveAll,
		UserID:     user,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON {
		return writeJSON(out, res)
	}
	fmt.Fprintln(out, res.FormattedCitation)
	for _, e := range res.ErrorsDetected {
		fmt.Fprintf(cmd.ErrOrStderr(), "error: %s\n", e)
	}
	if res.Rendered.FallbackReason != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "note: manual format used (%s)\n", res.Rendered.FallbackReason)
	}
	return nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	md, err := readMetadata(cmd)
	if err != nil {
		return err
	}
	rawText := strings.TrimSpace(strings.Join(args, " "))
	if rawText == "" && len(md) == 0 {
		return fmt.Errorf("provide reference text or --metadata")
	}
	style, _ := cmd.Flags().GetString("style")
	sourceType, _ := cmd.Flags().GetString("source-type")
	asJSON, _ := cmd.Flags().GetBool("json")

	c := metadata.Merge(metadata.Normalize(md), metadata.Extract(rawText))
	if rawText != "" {
		c.RawText = rawText
	}
	res := validate.Validate(c, sourceType, strings.ToUpper(style))

	out := cmd.OutOrStdout()
	if asJSON {
		if err := writeJSON(out, struct {
			Metadata any `json:"metadata"`
			validate.Result
		}{c, res}); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(out, "confidence: %.2f\n", res.Confidence)
		for _, e := range res.Errors {
			fmt.Fprintf(out, "error: %s\n", e)
		}
		for _, s := range res.Suggestions {
			fmt.Fprintf(out, "suggestion: %s\n", s)
		}
	}
	if len(res.Errors) > 0 {
		return fmt.Errorf("%d validation error(s)", len(res.Errors))
	}
	return nil
}
