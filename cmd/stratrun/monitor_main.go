package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/quantlab/stratrun/internal/monitor"
	"github.com/quantlab/stratrun/internal/telemetry"
)

// runMonitor starts the standalone monitoring HTTP server
func runMonitor(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("addr")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := monitor.NewServer(addr, telemetry.NewCollector())
	log.Info().Str("addr", addr).Msg("Starting monitor server, Ctrl-C to stop")
	return server.Start(ctx)
}
