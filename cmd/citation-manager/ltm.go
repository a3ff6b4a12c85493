// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/citation-manager/internal/backup"
	"github.com/pdiddy/citation-manager/internal/ltm"
)

var ltmCmd = &cobra.Command{
	Use:   "ltm",
	Short: "Search, export, and back up long-term citation memory",
}

var ltmSearchCmd = &cobra.Command{
	Use:   "search [text]",
	Short: "Search saved citations",
	Long: `Search lists saved citations newest first, filtered by owner, style, and
creation time. Text re-ranks the results by how often it occurs in each
citation; it does not filter.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLTMSearch,
}

var ltmExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export every saved citation as JSON or YAML",
	RunE:  runLTMExport,
}

var ltmBackupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Upload a gzipped snapshot to S3 and rotate old snapshots",
	Long: `Backup exports the store as gzipped JSON, uploads it to the configured
bucket under backup.prefix, and deletes the oldest snapshots beyond
backup.keep. Credentials come from config, the environment, or the
backup-access-key and backup-secret-key secret files.`,
	RunE: runLTMBackup,
}

func init() {
	ltmSearchCmd.Flags().String("user", "", "only citations saved by this owner")
	ltmSearchCmd.Flags().String("style", "", "only citations saved in this style")
	ltmSearchCmd.Flags().String("since", "", "created at or after (YYYY-MM-DD or RFC 3339)")
	ltmSearchCmd.Flags().String("until", "", "created at or before (YYYY-MM-DD or RFC 3339)")
	ltmSearchCmd.Flags().Int("limit", 50, "maximum rows")
	ltmSearchCmd.Flags().Bool("json", false, "output rows as JSON")

	ltmExportCmd.Flags().String("format", "json", "export format: json or yaml")
	ltmExportCmd.Flags().StringP("output", "o", "", "write to this file instead of stdout")

	ltmBackupCmd.Flags().String("bucket", "", "target bucket (overrides backup.bucket)")
	_ = viper.BindPFlag("backup.bucket", ltmBackupCmd.Flags().Lookup("bucket"))

	ltmCmd.AddCommand(ltmSearchCmd, ltmExportCmd, ltmBackupCmd)
	rootCmd.AddCommand(ltmCmd)
}

func openConfiguredStore() (*ltm.Store, error) {
	return ltm.Open(loadConfig(viper.GetViper()).Store)
}

func parseDate(flag, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("--%s: invalid date %q", flag, s)
}

func runLTMSearch(cmd *cobra.Command, args []string) error {
	q := ltm.Query{}
	if len(args) == 1 {
		q.Text = args[0]
	}
	q.UserID, _ = cmd.Flags().GetString("user")
	q.Style, _ = cmd.Flags().GetString("style")
	q.Limit, _ = cmd.Flags().GetInt("limit")

	since, _ := cmd.Flags().GetString("since")
	until, _ := cmd.Flags().GetString("until")
	var err error
	if q.Since, err = parseDate("since", since); err != nil {
		return err
	}
	if q.Until, err = parseDate("until", until); err != nil {
		return err
	}

	store, err := openConfiguredStore()
	if err != nil {
		return err
	}
	defer store.Close()

	rows, err := store.Search(cmd.Context(), q)
	if err != nil {
		return err
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		if rows == nil {
			rows = []ltm.Row{}
		}
		return writeJSON(cmd.OutOrStdout(), rows)
	}
	return printRows(cmd.OutOrStdout(), rows)
}

func printRows(w io.Writer, rows []ltm.Row) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tSTYLE\tDOI\tTITLE")
	for _, r := range rows {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", r.ID, r.CreatedAt, r.Style, r.DOI, r.Title)
	}
	return tw.Flush()
}

func runLTMExport(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	output, _ := cmd.Flags().GetString("output")
	if format != "json" && format != "yaml" {
		return fmt.Errorf("--format must be json or yaml, got %q", format)
	}

	store, err := openConfiguredStore()
	if err != nil {
		return err
	}
	defer store.Close()

	w := cmd.OutOrStdout()
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("creating %s: %w", output, err)
		}
		defer f.Close()
		w = f
	}

	if format == "yaml" {
		err = store.ExportYAML(cmd.Context(), w)
	} else {
		err = store.ExportJSON(cmd.Context(), w)
	}
	if err != nil {
		return err
	}
	if output != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "Exported %s to %s\n", store.Path(), output)
	}
	return nil
}

func runLTMBackup(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	cfg := loadConfig(viper.GetViper())
	client, err := backup.NewClient(cmd.Context(), cfg.Backup)
	if err != nil {
		return err
	}
	up, err := backup.New(client, cfg.Backup, logger)
	if err != nil {
		return err
	}

	store, err := ltm.Open(cfg.Store)
	if err != nil {
		return err
	}
	defer store.Close()

	res, err := up.Run(cmd.Context(), store)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Uploaded s3://%s/%s (%d bytes), removed %d old snapshot(s)\n",
		cfg.Backup.Bucket, res.Key, res.Bytes, len(res.Deleted))
	return nil
}
