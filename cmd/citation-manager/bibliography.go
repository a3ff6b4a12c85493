// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/citation-manager/internal/agent"
)

var bibliographyCmd = &cobra.Command{
	Use:   "bibliography FILE",
	Short: "Format a bibliography from a JSON list of references",
	Long: `Bibliography reads a JSON array whose entries are reference strings or
metadata objects (FILE may be - for stdin), removes duplicates by DOI or
title, and prints the formatted bibliography one entry per line.`,
	Args: cobra.ExactArgs(1),
	RunE: runBibliography,
}

func init() {
	bibliographyCmd.Flags().String("style", agent.DefaultStyle, "citation style: APA, MLA, Chicago, Harvard, IEEE")
	bibliographyCmd.Flags().Bool("keep-duplicates", false, "skip duplicate removal")
	bibliographyCmd.Flags().Bool("offline", false, "skip Crossref DOI completion")
	bibliographyCmd.Flags().Bool("save", false, "save entries to long-term memory")
	bibliographyCmd.Flags().Bool("save-all", false, "save every entry, bypassing duplicate checks")
	bibliographyCmd.Flags().String("user", "", "owner recorded with saved citations")
	bibliographyCmd.Flags().StringP("output", "o", "", "write to this file instead of stdout")

	rootCmd.AddCommand(bibliographyCmd)
}

func runBibliography(cmd *cobra.Command, args []string) error {
	data, err := readInput(cmd, args[0])
	if err != nil {
		return err
	}
	var items []any
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("parsing %s: expected a JSON array: %w", args[0], err)
	}

	style, _ := cmd.Flags().GetString("style")
	keepDups, _ := cmd.Flags().GetBool("keep-duplicates")
	offline, _ := cmd.Flags().GetBool("offline")
	save, _ := cmd.Flags().GetBool("save")
	saveAll, _ := cmd.Flags().GetBool("save-all")
	user, _ := cmd.Flags().GetString("user")
	output, _ := cmd.Flags().GetString("output")

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

	res := d.svc.Bibliography(cmd.Context(), agent.BibliographyParams{
		Items:            items,
		Style:            style,
		RemoveDuplicates: !keepDups,
		Save:             save,
		SaveAll:          saveAll,
		UserID:           user,
	})

	if output == "" {
		fmt.Fprintln(cmd.OutOrStdout(), res.FormattedBibliography)
	} else if err := os.WriteFile(output, []byte(res.FormattedBibliography+"\n"), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", output, err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%d entries (%s, %s)\n", res.Count, style, res.Rendered.Engine)
	return nil
}
