package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/quorumworks/govpilot/internal/model"
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Scan the registry for votable proposals",
	Long:  "Reads the most recent proposal window through the resilience layer and lists the proposals currently eligible for a vote. Casts nothing.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("discover"); err != nil {
			return err
		}

		_, _, _, scanner := buildReadPath()

		proposals, scanned := scanner.DiscoverVotable(ctx)

		p := message.NewPrinter(language.English)
		if len(proposals) == 0 {
			_, _ = p.Fprintf(os.Stderr, "Scanned %d proposals, none votable.\n", scanned)
			return nil
		}

		formatProposals(os.Stdout, proposals)
		_, _ = p.Fprintf(os.Stdout, "\nScanned %d proposals, %d votable.\n", scanned, len(proposals))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(discoverCmd)
}

// formatProposals writes a tabular list of votable proposals to w.
func formatProposals(out io.Writer, proposals []model.Proposal) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tKIND\tASSET\tAMOUNT\tSUPPORT\tENDS")
	_, _ = fmt.Fprintln(w, "--\t----\t-----\t------\t-------\t----")

	for _, p := range proposals {
		support := "n/a"
		if ratio := p.SupportRatio(); ratio >= 0 {
			support = fmt.Sprintf("%.0f%%", ratio*100)
		}

		ends := time.Unix(p.EndTime, 0).UTC().Format("2006-01-02 15:04")

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			p.ID,
			p.Kind,
			truncateAddr(p.TargetAsset),
			p.Amount,
			support,
			ends,
		)
	}
	_ = w.Flush()
}

// truncateAddr shortens a hex address for compact display.
func truncateAddr(addr string) string {
	if len(addr) > 12 {
		return addr[:8] + ".." + addr[len(addr)-4:]
	}
	return addr
}
