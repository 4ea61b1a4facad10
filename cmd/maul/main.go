// Package main is the entry point for the maul CLI.
// It serves the simulation API and offers offline simulation helpers.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/maulworks/maul/internal/server"
	"github.com/maulworks/maul/pkg/cascade"
	"github.com/maulworks/maul/pkg/config"
	"github.com/maulworks/maul/pkg/domain"
	"github.com/maulworks/maul/pkg/logging"
	"github.com/maulworks/maul/pkg/registry"
	"github.com/maulworks/maul/pkg/trust"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "maul",
		Short: "Agent trust and governance simulation engine",
		Long: `maul models a small multi-agent ecosystem with deliberately weak
governance: unauthenticated goal updates, bypassable policy checks, a
tamperable audit log and a marketplace where listings misstate their
capabilities. Use it to study how agent failures and governance gaps
compound.

Example:
  maul serve --config maul.yaml
  maul simulate --trigger planner --failure trust_collapse --depth 3`,
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to configuration file (YAML)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newSimulateCmd())
	rootCmd.AddCommand(newSeedCmd())
	return rootCmd
}

func loadConfig(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, nil, err
	}
	level, err := cmd.Flags().GetString("log-level")
	if err != nil {
		return nil, nil, err
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	if level != "" {
		cfg.Logging.Level = level
	}

	logger := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Pretty: cfg.Logging.Pretty,
	})
	return cfg, logger, nil
}

func newServeCmd() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the simulation HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if addr, _ := cmd.Flags().GetString("listen"); addr != "" {
				cfg.Server.Address = addr
			}
			slog.SetDefault(logger)

			srv, err := server.New(cfg, logger, server.Options{})
			if err != nil {
				return fmt.Errorf("initializing server: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()
			return srv.Start(ctx)
		},
	}
	serveCmd.Flags().StringP("listen", "p", "", "Address to listen on (overrides config)")
	return serveCmd
}

func newSimulateCmd() *cobra.Command {
	simulateCmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a cascading failure simulation offline and print the events",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			trigger, _ := cmd.Flags().GetString("trigger")
			failure, _ := cmd.Flags().GetString("failure")
			depth, _ := cmd.Flags().GetInt("depth")

			reg := registry.New(logger)
			graph := trust.NewGraph(reg)
			seed := cfg.Seed.OrDefault()
			for _, a := range seed.Agents {
				if _, err := reg.Register(a.ToCard()); err != nil {
					return err
				}
				for _, to := range a.TrustedAgents {
					graph.AddEdge(a.ID, to)
				}
			}
			for _, e := range seed.Trust {
				graph.AddEdge(e.From, e.To)
			}

			sim := cascade.NewSimulator(reg, graph, logger)
			events, err := sim.Simulate(context.Background(), domain.CascadeRequest{
				TriggerAgent: trigger,
				FailureType:  domain.FailureType(failure),
				Depth:        depth,
			})
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{
				"trigger_agent":  trigger,
				"failure_type":   failure,
				"events":         events,
				"affected_count": len(events),
			})
		},
	}
	simulateCmd.Flags().String("trigger", "planner", "Agent that fails first")
	simulateCmd.Flags().String("failure", string(domain.FailureMemoryWipe),
		"Failure type (state_corruption, goal_override, memory_wipe, trust_collapse)")
	simulateCmd.Flags().Int("depth", 2, "Propagation depth")
	return simulateCmd
}

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Print the default seed ecosystem as YAML",
		Long: `Prints the built-in agents, policies, trust edges and marketplace
listings as a YAML document suitable for the "seed" section of a
configuration file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var empty config.SeedConfig
			out, err := yaml.Marshal(empty.OrDefault())
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}
