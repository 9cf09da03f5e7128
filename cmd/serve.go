package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/quorumworks/govpilot/internal/monitoring"
	"github.com/quorumworks/govpilot/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run voting rounds on a schedule behind a status server",
	Long:  "Starts the round scheduler, the alert checker, and an HTTP server exposing provider health, aggregate metrics, and round reports.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		env, err := initVoting(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		collector := monitoring.NewCollector(env.Store, env.Pool)
		alerter := monitoring.NewAlerter(cfg.Alerts)
		publisher, err := monitoring.NewPublisher(cfg.Alerts)
		if err != nil {
			return err
		}
		defer publisher.Close() //nolint:errcheck
		checker := monitoring.NewChecker(collector, alerter, publisher, cfg.Alerts)

		// Manual round triggers from the API; buffered so a trigger during a
		// running round coalesces instead of queueing up.
		trigger := make(chan struct{}, 1)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(env, collector, trigger),
		}

		g, ctx := errgroup.WithContext(ctx)

		g.Go(func() error {
			zap.L().Info("starting status server", zap.Int("port", port))
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return eris.Wrap(err, "server listen")
			}
			return nil
		})

		g.Go(func() error {
			runScheduler(ctx, env, trigger)
			return nil
		})

		g.Go(func() error {
			checker.Run(ctx)
			return nil
		})

		// Graceful shutdown
		g.Go(func() error {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})

		return g.Wait()
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// runScheduler runs a voting round every configured interval and whenever a
// manual trigger arrives. Rounds never overlap; this goroutine owns them.
func runScheduler(ctx context.Context, env *votingEnv, trigger <-chan struct{}) {
	interval := time.Duration(cfg.Round.IntervalSecs) * time.Second

	zap.L().Info("starting round scheduler", zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("round scheduler stopped")
			return
		case <-ticker.C:
		case <-trigger:
			zap.L().Info("round triggered via API")
		}
		env.Coord.RunVotingRound(ctx)
	}
}

// newRouter builds the status API.
func newRouter(env *votingEnv, collector *monitoring.Collector, trigger chan<- struct{}) http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
		snap, err := collector.Collect(req.Context(), cfg.Alerts.LookbackHours)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"policy":     env.Engine.PolicyName(),
			"identities": len(env.Identities),
			"providers":  env.Pool.Snapshot(),
			"metrics":    snap,
		})
	})

	r.Get("/reports", func(w http.ResponseWriter, req *http.Request) {
		filter := store.ReportFilter{
			Policy: req.URL.Query().Get("policy"),
			Limit:  50,
		}
		reports, err := env.Store.ListReports(req.Context(), filter)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, reports)
	})

	r.Get("/reports/{id}", func(w http.ResponseWriter, req *http.Request) {
		report, err := env.Store.GetReport(req.Context(), chi.URLParam(req, "id"))
		if err != nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, report)
	})

	r.Post("/rounds", func(w http.ResponseWriter, _ *http.Request) {
		select {
		case trigger <- struct{}{}:
			writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
		default:
			writeJSON(w, http.StatusConflict, map[string]string{"status": "round already pending"})
		}
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
