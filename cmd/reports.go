package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/quorumworks/govpilot/internal/model"
	"github.com/quorumworks/govpilot/internal/store"
)

var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "Inspect voting round history",
	Long:  "Commands for listing, viewing, and pruning persisted round reports.",
}

// -- reports list --

var reportsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List round reports",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		policy, _ := cmd.Flags().GetString("policy")
		since, _ := cmd.Flags().GetDuration("since")
		limit, _ := cmd.Flags().GetInt("limit")

		filter := store.ReportFilter{
			Policy: policy,
			Limit:  limit,
		}
		if since > 0 {
			filter.Since = time.Now().Add(-since)
		}

		reports, err := st.ListReports(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "reports list")
		}

		if len(reports) == 0 {
			fmt.Fprintln(os.Stderr, "No reports found.")
			return nil
		}

		formatReportsList(os.Stdout, reports)
		return nil
	},
}

// -- reports show --

var reportsShowCmd = &cobra.Command{
	Use:   "show <round-id>",
	Short: "Show the full report of one round",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		report, err := st.GetReport(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "reports show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

// -- reports prune --

var reportsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete reports older than a retention window",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		olderThan, _ := cmd.Flags().GetDuration("older-than")
		if olderThan <= 0 {
			return eris.New("--older-than must be > 0")
		}

		pruned, err := st.PruneReports(ctx, time.Now().Add(-olderThan))
		if err != nil {
			return eris.Wrap(err, "reports prune")
		}

		fmt.Printf("Pruned %d reports.\n", pruned)
		return nil
	},
}

func init() {
	reportsListCmd.Flags().String("policy", "", "filter by policy (conservative, aggressive)")
	reportsListCmd.Flags().Duration("since", 0, "time window (e.g. 24h, 168h); 0 means no window")
	reportsListCmd.Flags().Int("limit", 50, "max number of reports to display")

	reportsPruneCmd.Flags().Duration("older-than", 30*24*time.Hour, "delete reports older than this")

	reportsCmd.AddCommand(reportsListCmd)
	reportsCmd.AddCommand(reportsShowCmd)
	reportsCmd.AddCommand(reportsPruneCmd)
	rootCmd.AddCommand(reportsCmd)
}

// formatReportsList writes a tabular list of reports to w.
func formatReportsList(out io.Writer, reports []model.RunReport) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tPOLICY\tSTARTED\tDURATION\tSCANNED\tEVALUATED\tCAST\tBRAKE")
	_, _ = fmt.Fprintln(w, "--\t------\t-------\t--------\t-------\t---------\t----\t-----")

	for _, r := range reports {
		brake := ""
		if r.BrakeTripped {
			brake = "tripped"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			truncateID(r.ID),
			r.Policy,
			r.StartedAt.Format("2006-01-02 15:04"),
			r.Duration().Round(time.Second),
			r.ProposalsScanned,
			r.ProposalsEvaluated,
			r.VotesCast,
			brake,
		)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
