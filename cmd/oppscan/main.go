// Command oppscan runs the marketplace-opportunity pipeline: discovery,
// fetch, scoring, and shortlist maintenance, plus a local-only ops
// surface for health and metrics.
package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const (
	appName = "oppscan"
	version = "v0.1.0"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
	// else: stderr is a pipe or file (cron, systemd, k8s) - leave zerolog's
	// default JSON writer so log aggregators get structured lines.

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Marketplace opportunity scanner",
		Version: version,
		Long: `oppscan discovers, scores, and shortlists marketplace product
opportunities: category discovery, snapshot capture, review-signal
extraction, and a deterministic economic score, run end to end on a
schedule or on demand.`,
	}

	rootCmd.PersistentFlags().String("config", "", "path to a YAML config file (defaults baked in if omitted)")
	rootCmd.PersistentFlags().CountP("verbose", "v", "increase log verbosity (-v, -vv)")

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newOpsCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
	os.Exit(runExitCode)
}

func bootstrapLogging(cmd *cobra.Command, logLevel string) {
	verbosity, _ := cmd.Flags().GetCount("verbose")
	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	if verbosity >= 1 {
		level = zerolog.DebugLevel
	}
	if verbosity >= 2 {
		level = zerolog.TraceLevel
	}
	zerolog.SetGlobalLevel(level)
}
