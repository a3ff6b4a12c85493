// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pdiddy/citation-manager/internal/agent"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of citation-manager",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "citation-manager %s (agent %s)\n", version, agent.Version)
	},
}

var cslStatusCmd = &cobra.Command{
	Use:   "csl-status",
	Short: "Report CSL engine availability and style file resolution",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig(viper.GetViper())
		st := newRenderer(cfg.Render, zap.NewNop()).Status()

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return writeJSON(cmd.OutOrStdout(), st)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "engine: %s (available: %t)\n", st.Engine, st.EngineAvailable)
		if st.EngineError != "" {
			fmt.Fprintf(out, "engine error: %s\n", st.EngineError)
		}
		fmt.Fprintf(out, "style dirs: %v\n", st.StyleDirs)
		keys := make([]string, 0, len(st.Styles))
		for k := range st.Styles {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			res := st.Styles[k]
			mark := "missing"
			if res.Found {
				mark = "found"
			}
			fmt.Fprintf(out, "  %-8s %-8s %s\n", k, mark, res.Path)
		}
		return nil
	},
}

func init() {
	cslStatusCmd.Flags().Bool("json", false, "output status as JSON")

	rootCmd.AddCommand(versionCmd, cslStatusCmd)
}
