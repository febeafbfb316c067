package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/oppscan/oppscan/internal/config"
	"github.com/oppscan/oppscan/internal/httpops"
	"github.com/oppscan/oppscan/internal/telemetry"
)

func newOpsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ops",
		Short: "Serve /healthz and /metrics without running the pipeline",
		Long:  "Starts the ops-only HTTP surface and blocks, for deployments that run the pipeline via a separate scheduler.",
		RunE:  runOpsServe,
	}
	return cmd
}

func runOpsServe(cmd *cobra.Command, args []string) error {
	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	bootstrapLogging(cmd, cfg.LogLevel)

	telemetry.NewRegistry() // registers the pipeline gauges so /metrics reports zero values rather than 404ing on them
	health := httpops.NewHealthHandler(nil, nil, nil, version, "")
	server, err := httpops.NewServer(cfg.Ops, health)
	if err != nil {
		return err
	}
	log.Info().Str("addr", fmt.Sprintf("%s:%d", cfg.Ops.Host, cfg.Ops.Port)).Msg("serving ops endpoints, ctrl-c to stop")
	return server.Start()
}

// startOpsServer launches the ops HTTP surface in the background for a
// `run` invocation, wired against the live provider client and run
// store so /healthz reflects the run actually in progress.
func startOpsServer(cfg config.Config, providerClient httpops.ProviderHealthChecker, datastore httpops.DatastoreHealthChecker, runs httpops.RunLister) (*httpops.Server, error) {
	health := httpops.NewHealthHandler(providerClient, datastore, runs, version, "")
	server, err := httpops.NewServer(cfg.Ops, health)
	if err != nil {
		return nil, err
	}
	go func() {
		if err := server.Start(); err != nil {
			log.Debug().Err(err).Msg("ops server stopped")
		}
	}()
	return server, nil
}

func shutdownOpsServer(server *httpops.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("ops server shutdown error")
	}
}
