package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/oppscan/oppscan/internal/config"
	"github.com/oppscan/oppscan/internal/domain"
	"github.com/oppscan/oppscan/internal/net/budget"
	"github.com/oppscan/oppscan/internal/orchestrator"
	"github.com/oppscan/oppscan/internal/provider"
	"github.com/oppscan/oppscan/internal/store"
	"github.com/oppscan/oppscan/internal/store/cache"
	"github.com/oppscan/oppscan/internal/store/postgres"
	"github.com/oppscan/oppscan/internal/telemetry"
)

// Exit codes mirror each terminal domain.RunStatus so a scheduler can
// branch on $? without parsing the audit JSON.
const (
	exitCompleted = 0
	exitDegraded  = 2
	exitFailed    = 3
	exitCancelled = 130
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute one end-to-end pipeline run",
		Long:  "Runs discovery, fetch, data-quality gating, scoring, and shortlist finalization once, then exits.",
		RunE:  runRun,
	}

	cmd.Flags().Int("max-asins", 0, "cap the number of ASINs processed this run (0 = no cap)")
	cmd.Flags().Bool("freeze", false, "freeze the shortlist regardless of run outcome")
	cmd.Flags().Bool("skip-discovery", false, "skip category discovery, use the existing tracked catalog")
	cmd.Flags().String("asins", "", "comma-separated explicit ASIN list, bypasses discovery entirely")
	cmd.Flags().String("artifact-dir", "artifacts", "directory for per-run audit JSON (empty disables)")
	cmd.Flags().Duration("timeout", 30*time.Minute, "overall run timeout")

	return cmd
}

// runExitCode carries the exit code a RunE function wants main() to use,
// set only on a clean return so every defer in runRun unwinds first.
var runExitCode int

func runRun(cmd *cobra.Command, args []string) error {
	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	bootstrapLogging(cmd, cfg.LogLevel)

	maxASINs, _ := cmd.Flags().GetInt("max-asins")
	freeze, _ := cmd.Flags().GetBool("freeze")
	skipDiscovery, _ := cmd.Flags().GetBool("skip-discovery")
	asinsFlag, _ := cmd.Flags().GetString("asins")
	artifactDir, _ := cmd.Flags().GetString("artifact-dir")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	var asins []string
	if asinsFlag != "" {
		for _, a := range strings.Split(asinsFlag, ",") {
			if a = strings.TrimSpace(a); a != "" {
				asins = append(asins, a)
			}
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	ctx = installSignalCancel(ctx, cancel)

	pg, err := postgres.Open(ctx, cfg.Datastore.DSN, cfg.Datastore.MaxOpenConns, cfg.Datastore.QueryTimeout)
	if err != nil {
		return fmt.Errorf("connect datastore: %w", err)
	}
	defer pg.Close()

	tracker := budget.NewTracker(cfg.Provider.DailyRequestLimit, cfg.Provider.BudgetResetHour, cfg.Provider.BudgetWarnThreshold)
	client := provider.NewClient(cfg.Provider, tracker)

	var c cache.Cache
	if cfg.Datastore.RedisAddr != "" {
		c = cache.NewAuto(cfg.Datastore.RedisAddr)
	} else {
		c = cache.New()
	}

	metrics := telemetry.NewRegistry()
	client.SetMetrics(metrics)

	orchStore := orchestrator.Store{
		Products:   pg.Products,
		Snapshots:  pg.Snapshots,
		Runs:       pg.Runs,
		Artifacts:  pg.Artifacts,
		Shortlists: pg.Shortlists,
		Reviews:    pg.Reviews,
		Events:     pg.Events,
		Aggregates: pg,
	}
	orch := orchestrator.New(cfg, client, orchStore, c, artifactDir)
	orch.SetMetrics(metrics)

	opsServer, err := startOpsServer(cfg, client, pg, pg.Runs)
	if err != nil {
		log.Warn().Err(err).Msg("ops server failed to start, continuing without it")
	} else {
		defer shutdownOpsServer(opsServer)
	}

	run, err := orch.Run(ctx, orchestrator.RunOptions{
		MaxASINs:      maxASINs,
		Freeze:        freeze,
		SkipDiscovery: skipDiscovery,
		ASINs:         asins,
	})
	if err != nil {
		return fmt.Errorf("run failed to start: %w", err)
	}

	log.Info().
		Str("run_id", run.ID).
		Str("status", string(run.Status)).
		Int("asins_ok", run.AsinsOK).
		Int("asins_failed", run.AsinsFailed).
		Bool("dq_passed", run.DQPassed).
		Bool("shortlist_frozen", run.ShortlistFrozen).
		Msg("run finished")

	runExitCode = exitCodeFor(run.Status)
	return nil
}

func exitCodeFor(status domain.RunStatus) int {
	switch status {
	case domain.RunCompleted:
		return exitCompleted
	case domain.RunDegraded:
		return exitDegraded
	case domain.RunCancelled:
		return exitCancelled
	default:
		return exitFailed
	}
}

// installSignalCancel cancels ctx on SIGINT/SIGTERM so an in-flight run
// freezes its shortlist and exits 130 instead of leaving a half-written
// run row.
func installSignalCancel(ctx context.Context, cancel context.CancelFunc) context.Context {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		log.Warn().Msg("signal received, cancelling run")
		cancel()
	}()
	return ctx
}

var _ store.Aggregates = (*postgres.Store)(nil)
