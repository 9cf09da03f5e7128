package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

var roundOutput string

var roundCmd = &cobra.Command{
	Use:   "round",
	Short: "Run a single voting round",
	Long:  "Discovers votable proposals, evaluates each under the configured policy, and casts the decided vote once per identity. Prints the round report when done.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("round"); err != nil {
			return err
		}

		env, err := initVoting(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		report := env.Coord.RunVotingRound(ctx)

		zap.L().Info("round complete",
			zap.String("round_id", report.ID),
			zap.Int("scanned", report.ProposalsScanned),
			zap.Int("evaluated", report.ProposalsEvaluated),
			zap.Int("votes_cast", report.VotesCast),
		)

		switch roundOutput {
		case "yaml":
			out, err := yaml.Marshal(report)
			if err != nil {
				return eris.Wrap(err, "marshal report")
			}
			_, err = os.Stdout.Write(out)
			return err
		case "json":
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		default:
			return eris.Errorf("unknown output format %q", roundOutput)
		}
	},
}

func init() {
	roundCmd.Flags().StringVar(&roundOutput, "output", "json", "report output format (json, yaml)")
	rootCmd.AddCommand(roundCmd)
}
