package main

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/timmy/assetlens/internal/service"
)

var (
	flagSearchLimit     int
	flagSearchWorkspace string
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search indexed assets by text",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <asset_id>",
	Short: "Remove every indexed record of an asset",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

var recordsCmd = &cobra.Command{
	Use:   "records <asset_id>",
	Short: "List the ledger rows of an asset",
	Args:  cobra.ExactArgs(1),
	RunE:  runRecords,
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Probe providers and print their availability",
	Args:  cobra.NoArgs,
	RunE:  runHealth,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Count ledger rows per workspace",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

var jobCmd = &cobra.Command{
	Use:   "job <job_id>",
	Short: "Show the progress of an ingest job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJob,
}

var auditCmd = &cobra.Command{
	Use:   "audit <key>",
	Short: "Print an archived moderation verdict",
	Args:  cobra.ExactArgs(1),
	RunE:  runAudit,
}

var errLedgerDisabled = errors.New("database ledger is disabled (database.enabled=false)")

func init() {
	searchCmd.Flags().IntVar(&flagSearchLimit, "limit", service.DefaultSearchLimit, "Number of results to show")
	searchCmd.Flags().StringVar(&flagSearchWorkspace, "workspace", "", "Only return assets of this workspace")

	rootCmd.AddCommand(searchCmd, deleteCmd, recordsCmd, healthCmd, statsCmd, jobCmd, auditCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	pipeline, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer pipeline.Close()

	results, err := pipeline.Analysis.Search(ctx, &service.SearchRequest{
		Query:     strings.Join(args, " "),
		Limit:     flagSearchLimit,
		Workspace: flagSearchWorkspace,
	})
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No results.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SCORE\tASSET\tWORKSPACE\tDESCRIPTION")
	for _, r := range results {
		fmt.Fprintf(w, "%.4f\t%s\t%s\t%s\n", r.Score, r.AssetID, r.Workspace(), truncate(r.Description, 80))
	}
	return w.Flush()
}

func runDelete(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	pipeline, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer pipeline.Close()

	if err := pipeline.Analysis.DeleteAsset(ctx, args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
	return nil
}

func runRecords(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	pipeline, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer pipeline.Close()

	records, err := pipeline.Analysis.ListAssetRecords(ctx, args[0])
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RECORD\tCREATED\tMODEL\tDESCRIPTION")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.RecordID, r.CreatedAt.Format("2006-01-02 15:04:05"),
			r.EmbeddingModel, truncate(r.Description, 60))
	}
	return w.Flush()
}

func runHealth(cmd *cobra.Command, _ []string) error {
	ctx, stop := signalContext()
	defer stop()

	pipeline, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer pipeline.Close()

	report := pipeline.Analysis.Health()
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "content_moderation\t%s\n", report.ContentModeration)
	fmt.Fprintf(w, "image_description\t%s\n", report.ImageDescription)
	fmt.Fprintf(w, "vector_search\t%s\n", report.VectorSearch)
	return w.Flush()
}

func runStats(cmd *cobra.Command, _ []string) error {
	ctx, stop := signalContext()
	defer stop()

	pipeline, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer pipeline.Close()

	if pipeline.Assets == nil {
		return errLedgerDisabled
	}
	counts, err := pipeline.Assets.CountByWorkspace(ctx)
	if err != nil {
		return err
	}

	workspaces := make([]string, 0, len(counts))
	for ws := range counts {
		workspaces = append(workspaces, ws)
	}
	sort.Strings(workspaces)

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "WORKSPACE\tRECORDS")
	for _, ws := range workspaces {
		name := ws
		if name == "" {
			name = "(none)"
		}
		fmt.Fprintf(w, "%s\t%d\n", name, counts[ws])
	}
	return w.Flush()
}

func runJob(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	pipeline, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer pipeline.Close()

	if pipeline.Jobs == nil {
		return errLedgerDisabled
	}
	job, err := pipeline.Jobs.Get(ctx, args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "job %s (%s) from %s\n", job.ID, job.Status, job.Source)
	fmt.Fprintf(out, "total=%d indexed=%d unsafe=%d undescribed=%d failed=%d\n",
		job.Total, job.Indexed, job.Unsafe, job.Undescribed, job.Failed)
	if job.ErrorLog != "" {
		fmt.Fprintln(out, job.ErrorLog)
	}
	return nil
}

func runAudit(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	pipeline, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer pipeline.Close()

	if pipeline.Archive == nil {
		return errors.New("audit archive is disabled (storage.enabled=false)")
	}
	audit, err := pipeline.Archive.Load(ctx, args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s checked %s\n", audit.ID, audit.CheckedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(out, "image sha256=%s %s %dx%d\n", audit.ImageSHA256, audit.Format, audit.Width, audit.Height)
	fmt.Fprintf(out, "threshold=%.2f %s\n", audit.Threshold, audit.Verdict.Message)
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
