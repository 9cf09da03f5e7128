package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/quorumworks/govpilot/internal/config"
	"github.com/quorumworks/govpilot/pkg/registry"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "Check the health of configured RPC providers",
	Long:  "Probes every configured provider endpoint with a liveness call and prints the results.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("discover"); err != nil {
			return err
		}

		client := registry.NewClient(registry.WithContract(cfg.Registry.Contract))
		formatProviderProbes(os.Stdout, probeProviders(ctx, client, cfg.Providers))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(providersCmd)
}

// providerProbe is one endpoint's liveness result.
type providerProbe struct {
	Name     string
	URL      string
	Priority int
	Latency  time.Duration
	Err      error
}

// probeProviders pings each endpoint sequentially with a short per-probe
// timeout.
func probeProviders(ctx context.Context, client registry.Client, providers []config.ProviderConfig) []providerProbe {
	probes := make([]providerProbe, 0, len(providers))
	for _, p := range providers {
		name := p.Name
		if name == "" {
			name = p.URL
		}

		probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		start := time.Now()
		err := client.Ping(probeCtx, p.URL)
		latency := time.Since(start)
		cancel()

		probes = append(probes, providerProbe{
			Name:     name,
			URL:      p.URL,
			Priority: p.Priority,
			Latency:  latency,
			Err:      err,
		})
	}
	return probes
}

// formatProviderProbes writes a tabular probe summary to w.
func formatProviderProbes(out io.Writer, probes []providerProbe) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tPRIORITY\tSTATUS\tLATENCY\tDETAIL")
	_, _ = fmt.Fprintln(w, "----\t--------\t------\t-------\t------")

	for _, p := range probes {
		status := "ok"
		detail := ""
		if p.Err != nil {
			status = "unreachable"
			detail = p.Err.Error()
			if len(detail) > 60 {
				detail = detail[:57] + "..."
			}
		}
		_, _ = fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n",
			p.Name,
			p.Priority,
			status,
			p.Latency.Round(time.Millisecond),
			detail,
		)
	}
	_ = w.Flush()
}
